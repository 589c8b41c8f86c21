package aggregate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/monthlyrank/internal/domain/aggregate"
	"github.com/okian/monthlyrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type staticLog struct {
	records []model.EventRecord
	err     error
	reads   int
}

func (s *staticLog) ReadAll(context.Context) ([]model.EventRecord, error) {
	s.reads++
	return s.records, s.err
}

func rec(month, id, name string, points int) model.EventRecord {
	return model.EventRecord{MonthKey: month, PlayerID: id, PlayerName: name, PointsEarned: points}
}

func TestRecompute(t *testing.T) {
	Convey("Given a log spanning two months", t, func() {
		records := []model.EventRecord{
			rec("2024-05", "p1", "Alice", 25),
			rec("2024-05", "p2", "Bob", 40),
			rec("2024-04", "p1", "Alice", 999),
			rec("2024-05", "p1", "Alice", 120),
		}

		Convey("When recomputing May", func() {
			totals := aggregate.Recompute(records, "2024-05")

			Convey("Then only May records are summed per player", func() {
				So(totals, ShouldResemble, []model.PlayerMonthlyTotal{
					{MonthKey: "2024-05", PlayerID: "p1", PlayerName: "Alice", TotalPoints: 145},
					{MonthKey: "2024-05", PlayerID: "p2", PlayerName: "Bob", TotalPoints: 40},
				})
			})

			Convey("And a second call returns the same totals", func() {
				So(aggregate.Recompute(records, "2024-05"), ShouldResemble, totals)
			})
		})

		Convey("When the same batch is appended twice", func() {
			batch := []model.EventRecord{rec("2024-05", "p3", "Carol", 70), rec("2024-05", "p4", "Dan", 10)}
			doubled := append(append(append([]model.EventRecord{}, records...), batch...), batch...)
			totals := aggregate.Recompute(doubled, "2024-05")

			Convey("Then the affected totals double", func() {
				So(totals[2].TotalPoints, ShouldEqual, 140)
				So(totals[3].TotalPoints, ShouldEqual, 20)
			})
		})

		Convey("When a later upload renames a player", func() {
			renamed := append(append([]model.EventRecord{}, records...),
				rec("2024-05", "p2", "Robert", 5),
				rec("2024-05", "p2", "", 5),
			)
			totals := aggregate.Recompute(renamed, "2024-05")

			Convey("Then the last non-empty name wins", func() {
				So(totals[1].PlayerName, ShouldEqual, "Robert")
				So(totals[1].TotalPoints, ShouldEqual, 50)
			})
		})

		Convey("When the month has no records", func() {
			So(aggregate.Recompute(records, "2023-01"), ShouldBeEmpty)
			So(aggregate.Recompute(nil, "2024-05"), ShouldBeEmpty)
		})

		Convey("When listing months", func() {
			So(aggregate.Months(records), ShouldResemble, []string{"2024-05", "2024-04"})
		})
	})
}

func TestEngine(t *testing.T) {
	Convey("Given an engine over a log", t, func() {
		log := &staticLog{records: []model.EventRecord{rec("2024-05", "p1", "Alice", 10)}}
		engine := aggregate.NewEngine(log)
		ctx := context.Background()

		Convey("When recomputing a month", func() {
			totals, err := engine.Recompute(ctx, "2024-05")

			Convey("Then the full log is read each time", func() {
				So(err, ShouldBeNil)
				So(totals, ShouldHaveLength, 1)
				_, _ = engine.Recompute(ctx, "2024-05")
				So(log.reads, ShouldEqual, 2)
			})
		})

		Convey("When the month key is malformed", func() {
			_, err := engine.Recompute(ctx, "2024-5")

			So(errors.Is(err, aggregate.ErrMonthKey), ShouldBeTrue)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(log.reads, ShouldEqual, 0)
		})

		Convey("When the log fails", func() {
			log.err = model.External("eventlog.read", errors.New("unavailable"))
			_, err := engine.Recompute(ctx, "2024-05")

			So(errors.Is(err, model.ErrExternalService), ShouldBeTrue)
		})
	})
}
