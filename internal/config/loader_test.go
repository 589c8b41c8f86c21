package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/monthlyrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.Notify.Sinks, convey.ShouldResemble, []string{"log"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("MONTHLYRANK_ADDR", ":8080")
			t.Setenv("MONTHLYRANK_QUEUE_SIZE", "16")
			t.Setenv("MONTHLYRANK_STORE__DRIVER", "XLSX")
			t.Setenv("MONTHLYRANK_STORE__XLSX_PATH", "/tmp/rank.xlsx")
			t.Setenv("MONTHLYRANK_PIPELINE__REJECT_DUPLICATE_UPLOADS", "true")
			t.Setenv("MONTHLYRANK_RETRY__MAX_INTERVAL", "2s")
			t.Setenv("MONTHLYRANK_NOTIFY__SINKS", "log, webhook")
			t.Setenv("MONTHLYRANK_NOTIFY__WEBHOOK__URL", "https://example.test/hook")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 16)
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.StoreXLSX)
				convey.So(cfg.Store.XLSXPath, convey.ShouldEqual, "/tmp/rank.xlsx")
				convey.So(cfg.Pipeline.RejectDuplicateUploads, convey.ShouldBeTrue)
				convey.So(cfg.Retry.MaxInterval, convey.ShouldEqual, 2*time.Second)
				convey.So(cfg.Notify.Sinks, convey.ShouldResemble, []string{"log", "webhook"})
				convey.So(cfg.Notify.Webhook.URL, convey.ShouldEqual, "https://example.test/hook")
			})

			convey.Convey("And untouched nested defaults survive", func() {
				convey.So(cfg.Store.EventResource, convey.ShouldEqual, "events")
				convey.So(cfg.Notify.Webhook.Mode, convey.ShouldEqual, "text")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := writeConfigFile(t, `
addr: ":9090"
queue_size: 128
ingest:
  rank_column: rank
  encodings: [utf-8, cp932]
store:
  driver: sheets
  sheets:
    spreadsheet_id: sheet-123
    credentials_file: /etc/monthlyrank/sa.json
notify:
  sinks: [log, bus]
bus:
  driver: gochannel
`)
			t.Setenv("MONTHLYRANK_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 128)
				convey.So(cfg.Ingest.RankColumn, convey.ShouldEqual, "rank")
				convey.So(cfg.Ingest.IDColumn, convey.ShouldEqual, "識別番号")
				convey.So(cfg.Ingest.Encodings, convey.ShouldResemble, []string{"utf-8", "cp932"})
				convey.So(cfg.Store.Sheets.SpreadsheetID, convey.ShouldEqual, "sheet-123")
				convey.So(cfg.Store.Sheets.Timeout, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.Notify.Sinks, convey.ShouldResemble, []string{"log", "bus"})
				convey.So(cfg.Bus.Driver, convey.ShouldEqual, config.BusGoChannel)
			})

			convey.Convey("And env vars still win over the file", func() {
				t.Setenv("MONTHLYRANK_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 128)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldStartWith, "config: cannot load source: ")
			convey.So(err.Error(), convey.ShouldContainSubstring, "missing.yaml")
		})

		convey.Convey("When the file is not YAML", func() {
			_, err := config.LoadFile(writeConfigFile(t, "addr: [unterminated"))

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the layered result is invalid", func() {
			t.Setenv("MONTHLYRANK_STORE__DRIVER", "postgres")
			_, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldStartWith, "config: invalid setting: ")
			convey.So(err.Error(), convey.ShouldContainSubstring, "postgres_dsn")
		})
	})
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// clearConfigEnvVars unsets every inherited MONTHLYRANK_ variable. Convey
// reruns the root block per leaf, so this also resets values set by t.Setenv
// in earlier leaves.
func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) {
			t.Setenv(key, "")
			_ = os.Unsetenv(key)
		}
	}
}
