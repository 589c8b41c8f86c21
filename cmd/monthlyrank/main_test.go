package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/monthlyrank/internal/adapters/mq/bus"
	"github.com/okian/monthlyrank/internal/adapters/notify"
	"github.com/okian/monthlyrank/internal/adapters/retry"
	"github.com/okian/monthlyrank/internal/config"
	"github.com/okian/monthlyrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.Options{Output: io.Discard}); err != nil {
		panic(err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"monthlyrank"}, args...))
	return out.String(), err
}

func TestCLI(t *testing.T) {
	Convey("Given a workbook store configured through the environment", t, func() {
		dir := t.TempDir()
		t.Setenv(config.EnvConfigFile, "")
		t.Setenv("MONTHLYRANK_STORE__DRIVER", config.StoreXLSX)
		t.Setenv("MONTHLYRANK_STORE__XLSX_PATH", filepath.Join(dir, "rank.xlsx"))

		first := writeFile(t, dir, "20240512.csv", "順位,識別番号,氏名\n1,p1,Alice\n2,p2,Bob\n3,p3,Carol\n")
		second := writeFile(t, dir, "20240519_results.csv", "順位,識別番号,氏名\n1,p2,Bob\n2,p1,Alicia\n")

		Convey("When two files are ingested in one run", func() {
			out, err := run("ingest", first, second)
			So(err, ShouldBeNil)

			Convey("Then a ranking is printed after each file", func() {
				So(out, ShouldEqual,
					"🏆 2024-05 マンスリーランキング\n\n1位 Alice - 60pt\n2位 Bob - 45pt\n3位 Carol - 30pt\n"+
						"🏆 2024-05 マンスリーランキング\n\n1位 Alicia - 90pt\n2位 Bob - 85pt\n3位 Carol - 30pt\n")
			})

			Convey("And a later run reads the same ranking from the workbook", func() {
				out, err := run("ranking", "2024-05")
				So(err, ShouldBeNil)
				So(out, ShouldEqual, "🏆 2024-05 マンスリーランキング\n\n1位 Alicia - 90pt\n2位 Bob - 85pt\n3位 Carol - 30pt\n")
			})

			Convey("And publishing reprints it", func() {
				out, err := run("publish", "2024-05")
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "1位 Alicia - 90pt")
			})
		})

		Convey("When a month has no events", func() {
			out, err := run("ranking", "2023-01")

			So(err, ShouldBeNil)
			So(out, ShouldEqual, "🏆 2023-01 マンスリーランキング\n\n")
		})

		Convey("When a file name carries no date", func() {
			bad := writeFile(t, dir, "results.csv", "順位,識別番号,氏名\n1,p1,Alice\n")
			_, err := run("ingest", bad)

			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "results.csv")
		})

		Convey("When arguments are missing", func() {
			_, err := run("ingest")
			So(err, ShouldNotBeNil)

			_, err = run("ranking")
			So(err, ShouldNotBeNil)
		})

		Convey("When the month is malformed", func() {
			_, err := run("ranking", "2024-13")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBuildSink(t *testing.T) {
	Convey("Given a default config", t, func() {
		cfg := config.New()
		lg := logger.Get()
		policy := retry.DefaultPolicy()

		Convey("When only the log sink is configured", func() {
			s, err := buildSink(cfg, nil, policy, lg)

			So(err, ShouldBeNil)
			So(s.Name(), ShouldEqual, "log")
		})

		Convey("When the webhook and bus sinks are added", func() {
			b, err := bus.New(bus.Config{Driver: bus.DriverGoChannel}, nil)
			So(err, ShouldBeNil)
			defer b.Close()

			cfg.Notify.Sinks = []string{config.SinkLog, config.SinkWebhook, config.SinkBus}
			cfg.Notify.Webhook.URL = "https://example.test/hook"
			s, err := buildSink(cfg, b, policy, lg)

			So(err, ShouldBeNil)
			multi, ok := s.(*notify.Multi)
			So(ok, ShouldBeTrue)
			names := make([]string, 0, 3)
			for _, sink := range multi.Sinks() {
				names = append(names, sink.Name())
			}
			So(names, ShouldResemble, []string{"log", "webhook", "bus"})
		})

		Convey("When the bus sink has no bus", func() {
			cfg.Notify.Sinks = []string{config.SinkBus}
			_, err := buildSink(cfg, nil, policy, lg)

			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When a sink is unknown", func() {
			cfg.Notify.Sinks = []string{"pager"}
			_, err := buildSink(cfg, nil, policy, lg)

			So(errors.Is(err, notify.ErrUnknownSink), ShouldBeTrue)
		})
	})
}

func TestOpenStore(t *testing.T) {
	Convey("Given store settings", t, func() {
		ctx := context.Background()
		cfg := config.New().Store

		Convey("When the memory store is chosen", func() {
			s, closeFn, err := openStore(ctx, cfg)

			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
			So(closeFn(), ShouldBeNil)
		})

		Convey("When the workbook store is chosen", func() {
			cfg.Driver = config.StoreXLSX
			cfg.XLSXPath = filepath.Join(t.TempDir(), "rank.xlsx")
			s, closeFn, err := openStore(ctx, cfg)

			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
			So(closeFn, ShouldBeNil)
		})

		Convey("When the sheets credentials are missing", func() {
			cfg.Driver = config.StoreSheets
			cfg.Sheets.SpreadsheetID = "sheet-123"
			cfg.Sheets.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
			_, _, err := openStore(ctx, cfg)

			So(err, ShouldNotBeNil)
		})

		Convey("When the driver is unknown", func() {
			cfg.Driver = "redis"
			_, _, err := openStore(ctx, cfg)

			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
