package ingest_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/monthlyrank/internal/domain/ingest"
	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
)

const tenPlayers = "順位,識別番号,氏名\n" +
	"1,p01,Alice\n" +
	",p02,Bob\n" +
	"3,p03,Carol\n" +
	"4.0,p04,Dave\n" +
	"5,p05,Eve\n" +
	"NaN,p06,Frank\n" +
	"x,p07,Grace\n" +
	"8,p08,Heidi\n" +
	"9,p09,Ivan\n" +
	"10,p10,Judy\n"

func TestIngest(t *testing.T) {
	Convey("Given an ingestor with default columns", t, func() {
		in := ingest.New()

		Convey("When ingesting a ten player UTF-8 upload", func() {
			records, err := in.Ingest("fairy_cs_20240512.csv", []byte(tenPlayers))

			Convey("Then every row is scored with participants=10", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 10)
				for _, r := range records {
					So(r.ParticipantCount, ShouldEqual, 10)
					So(r.PointsEarned, ShouldEqual, scoring.BasePoints(r.FinishRank)*r.ParticipantCount)
					So(r.MonthKey, ShouldEqual, "2024-05")
					So(r.EventDate, ShouldEqual, time.Date(2024, time.May, 12, 0, 0, 0, 0, time.UTC))
					So(r.Source, ShouldEqual, "fairy_cs_20240512.csv")
				}
			})

			Convey("And the winner earns 200 while a missing rank earns 30", func() {
				So(records[0].PlayerID, ShouldEqual, "p01")
				So(records[0].PointsEarned, ShouldEqual, 200)
				So(records[1].FinishRank, ShouldEqual, ingest.DefaultMissingRank)
				So(records[1].PointsEarned, ShouldEqual, 30)
			})

			Convey("And integral floats parse while NaN and text fall to the worst tier", func() {
				So(records[3].FinishRank, ShouldEqual, 4)
				So(records[3].PointsEarned, ShouldEqual, 100)
				So(records[5].FinishRank, ShouldEqual, ingest.DefaultMissingRank)
				So(records[6].FinishRank, ShouldEqual, ingest.DefaultMissingRank)
			})
		})

		Convey("When a required column is missing", func() {
			_, err := in.Ingest("20240512.csv", []byte("順位,氏名\n1,Alice\n"))

			Convey("Then a ValidationError names it", func() {
				var verr *model.ValidationError
				So(errors.As(err, &verr), ShouldBeTrue)
				So(verr.Column, ShouldEqual, ingest.DefaultIDColumn)
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the filename has no 8-digit token", func() {
			_, err := in.Ingest("results.csv", []byte(tenPlayers))

			Convey("Then a DateParseError is returned", func() {
				So(errors.Is(err, model.ErrDateParse), ShouldBeTrue)
			})
		})

		Convey("When the 8-digit token is not a calendar date", func() {
			_, err := in.Ingest("20240231.csv", []byte(tenPlayers))

			So(errors.Is(err, model.ErrDateParse), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "20240231")
		})

		Convey("When the digits belong to a longer number", func() {
			_, err := in.Ingest("event_202405121.csv", []byte(tenPlayers))

			So(errors.Is(err, model.ErrDateParse), ShouldBeTrue)
		})

		Convey("When the upload has cells holding sentinel values", func() {
			body := "順位,識別番号,氏名\n2,p1,#N/A\n3,inf,Bob\n,,\n"
			records, err := in.Ingest("20240601.csv", []byte(body))

			Convey("Then they become empty and blank rows are not counted", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 2)
				So(records[0].PlayerName, ShouldEqual, "")
				So(records[1].PlayerID, ShouldEqual, "")
				So(records[0].ParticipantCount, ShouldEqual, 2)
			})
		})

		Convey("When the upload has a header but no rows", func() {
			records, err := in.Ingest("20240601.csv", []byte("順位,識別番号,氏名\n"))

			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)
		})

		Convey("When a file fails more than one check", func() {
			Convey("Then a bad header is reported before a bad date", func() {
				_, err := in.Ingest("results.csv", []byte("順位,氏名\n1,Alice\n"))
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(errors.Is(err, model.ErrDateParse), ShouldBeFalse)
			})

			Convey("Then an unreadable table is reported before a bad date", func() {
				_, err := in.Ingest("results.csv", nil)
				So(errors.Is(err, model.ErrEncoding), ShouldBeTrue)
				So(errors.Is(err, model.ErrDateParse), ShouldBeFalse)
			})
		})
	})
}

func TestIngestBatch(t *testing.T) {
	Convey("Given an ingestor with default columns", t, func() {
		in := ingest.New()

		Convey("When ingesting a dated upload", func() {
			b, err := in.IngestBatch("fairy_cs_20240512.csv", []byte(tenPlayers))

			Convey("Then the batch carries the date, month and records", func() {
				So(err, ShouldBeNil)
				So(b.EventDate, ShouldEqual, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC))
				So(b.MonthKey, ShouldEqual, "2024-05")
				So(b.Records, ShouldHaveLength, 10)
				So(b.Records[0].MonthKey, ShouldEqual, b.MonthKey)
			})
		})

		Convey("When the upload has no rows", func() {
			b, err := in.IngestBatch("20240601.csv", []byte("順位,識別番号,氏名\n"))

			Convey("Then the month is still known", func() {
				So(err, ShouldBeNil)
				So(b.Records, ShouldBeEmpty)
				So(b.MonthKey, ShouldEqual, "2024-06")
			})
		})

		Convey("When the date is invalid", func() {
			b, err := in.IngestBatch("20240231.csv", []byte(tenPlayers))

			So(errors.Is(err, model.ErrDateParse), ShouldBeTrue)
			So(b.Records, ShouldBeNil)
		})
	})
}

func TestIngestEncodings(t *testing.T) {
	Convey("Given uploads in different encodings", t, func() {
		in := ingest.New()

		Convey("When the file is UTF-8 with a byte-order mark", func() {
			body := append([]byte{0xEF, 0xBB, 0xBF}, []byte("順位,識別番号,氏名\n1,p1,妖精\n")...)
			records, err := in.Ingest("20240512.csv", body)

			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0].PlayerName, ShouldEqual, "妖精")
		})

		Convey("When the file is cp932", func() {
			sjis, err := japanese.ShiftJIS.NewEncoder().String("順位,識別番号,氏名\n2,p1,妖精太郎\n")
			So(err, ShouldBeNil)
			records, err := in.Ingest("20240512.csv", []byte(sjis))

			Convey("Then it is decoded by the legacy fallback", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 1)
				So(records[0].PlayerName, ShouldEqual, "妖精太郎")
				So(records[0].FinishRank, ShouldEqual, 2)
			})
		})

		Convey("When the file is tab separated", func() {
			records, err := in.Ingest("20240512.tsv", []byte("順位\t識別番号\t氏名\n1\tp1\tAlice\n"))

			So(err, ShouldBeNil)
			So(records[0].PlayerName, ShouldEqual, "Alice")
		})

		Convey("When no candidate can parse the table", func() {
			body := "順位,識別番号,氏名\n1,p1,Alice,extra,cells\n"
			_, err := in.Ingest("20240512.csv", []byte(body))

			Convey("Then an EncodingError lists every candidate", func() {
				var encErr *model.EncodingError
				So(errors.As(err, &encErr), ShouldBeTrue)
				So(encErr.Tried, ShouldResemble, []string{"utf-8-sig", "utf-8", "cp932", "euc-jp"})
			})
		})

		Convey("When the file is empty", func() {
			_, err := in.Ingest("20240512.csv", nil)

			So(errors.Is(err, model.ErrEncoding), ShouldBeTrue)
		})

		Convey("When only UTF-8 is allowed and the file is cp932", func() {
			strict := ingest.New(ingest.WithEncodings("utf-8"))
			sjis, _ := japanese.ShiftJIS.NewEncoder().String("順位,識別番号,氏名\n1,p1,妖精\n")
			_, err := strict.Ingest("20240512.csv", []byte(sjis))

			So(errors.Is(err, model.ErrEncoding), ShouldBeTrue)
		})
	})
}

func TestIngestOptions(t *testing.T) {
	Convey("Given an ingestor with English column names", t, func() {
		in := ingest.New(
			ingest.WithRankColumns("Place"),
			ingest.WithIDColumns("Member ID"),
			ingest.WithNameColumns("Display Name"),
			ingest.WithMissingRank(33),
		)

		Convey("When headers differ in case, spacing and underscores", func() {
			records, err := in.Ingest("cup-20240301.csv", []byte("place,member_id,DISPLAY-NAME\n,m1,Zed\n"))

			Convey("Then columns are still located", func() {
				So(err, ShouldBeNil)
				So(records[0].PlayerID, ShouldEqual, "m1")
				So(records[0].FinishRank, ShouldEqual, 33)
				So(records[0].PointsEarned, ShouldEqual, 3)
			})
		})

		Convey("When the rank column is missing", func() {
			_, err := in.Ingest("20240301.csv", []byte("Member ID,Display Name\nm1,Zed\n"))

			var verr *model.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Column, ShouldEqual, "Place")
		})
	})
}

func TestIngestWorkbook(t *testing.T) {
	Convey("Given an .xlsx upload", t, func() {
		f := excelize.NewFile()
		sheet := f.GetSheetName(0)
		So(f.SetSheetRow(sheet, "A1", &[]any{"順位", "識別番号", "氏名"}), ShouldBeNil)
		So(f.SetSheetRow(sheet, "A2", &[]any{1, "p1", "Alice"}), ShouldBeNil)
		So(f.SetSheetRow(sheet, "A3", &[]any{"", "p2", "Bob"}), ShouldBeNil)
		buf, err := f.WriteToBuffer()
		So(err, ShouldBeNil)

		Convey("When ingesting it", func() {
			records, err := ingest.New().Ingest("20240715.xlsx", buf.Bytes())

			Convey("Then rows are scored like CSV rows", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 2)
				So(records[0].PointsEarned, ShouldEqual, 40)
				So(records[1].PointsEarned, ShouldEqual, 6)
			})
		})

		Convey("When the bytes are not a workbook", func() {
			_, err := ingest.New().Ingest("20240715.xlsx", []byte("順位,識別番号,氏名\n"))

			So(errors.Is(err, model.ErrEncoding), ShouldBeTrue)
		})
	})
}
