// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Keys are grouped by concern; nested keys map to env vars with "__".
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/monthlyrank/internal/domain/ingest"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreXLSX     = "xlsx"
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
)

// Notification sinks.
const (
	SinkLog     = "log"
	SinkWebhook = "webhook"
	SinkBus     = "bus"
)

// Bus drivers. BusNone disables the bus.
const (
	BusNone      = "none"
	BusGoChannel = "gochannel"
	BusNATS      = "nats"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the pipeline queue.
	QueueSize int `koanf:"queue_size"`

	// MaxUploadBytes caps POST /uploads bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	Ingest   IngestConfig   `koanf:"ingest"`
	Store    StoreConfig    `koanf:"store"`
	Notify   NotifyConfig   `koanf:"notify"`
	Bus      BusConfig      `koanf:"bus"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Retry    RetryConfig    `koanf:"retry"`
}

// IngestConfig names the upload columns.
type IngestConfig struct {
	RankColumn  string   `koanf:"rank_column"`
	IDColumn    string   `koanf:"id_column"`
	NameColumn  string   `koanf:"name_column"`
	MissingRank int      `koanf:"missing_rank"`
	Encodings   []string `koanf:"encodings"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	Driver        string       `koanf:"driver"`
	EventResource string       `koanf:"event_resource"`
	XLSXPath      string       `koanf:"xlsx_path"`
	PostgresDSN   string       `koanf:"postgres_dsn"`
	Sheets        SheetsConfig `koanf:"sheets"`
}

// SheetsConfig configures the Google Sheets store.
type SheetsConfig struct {
	SpreadsheetID   string        `koanf:"spreadsheet_id"`
	CredentialsFile string        `koanf:"credentials_file"`
	BaseURL         string        `koanf:"base_url"`
	Timeout         time.Duration `koanf:"timeout"`
}

// NotifyConfig lists the sinks reports are sent to, in order.
type NotifyConfig struct {
	Sinks   []string      `koanf:"sinks"`
	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig configures the chat webhook sink.
type WebhookConfig struct {
	URL           string  `koanf:"url"`
	Mode          string  `koanf:"mode"`
	Username      string  `koanf:"username"`
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// BusConfig selects the message bus transport.
type BusConfig struct {
	Driver     string `koanf:"driver"`
	NATSURL    string `koanf:"nats_url"`
	QueueGroup string `koanf:"queue_group"`
}

// PipelineConfig tunes the pipeline service.
type PipelineConfig struct {
	RejectDuplicateUploads bool   `koanf:"reject_duplicate_uploads"`
	DedupeSize             int    `koanf:"dedupe_size"`
	SummaryPrefix          string `koanf:"summary_prefix"`
}

// RetryConfig bounds retries of store and sink calls.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		QueueSize:      64,
		MaxUploadBytes: 10 << 20,
		Ingest: IngestConfig{
			RankColumn:  "順位",
			IDColumn:    "識別番号",
			NameColumn:  "氏名",
			MissingRank: 64,
			Encodings:   []string{"utf-8-sig", "utf-8", "cp932", "euc-jp"},
		},
		Store: StoreConfig{
			Driver:        StoreMemory,
			EventResource: "events",
			XLSXPath:      "monthlyrank.xlsx",
			Sheets: SheetsConfig{
				BaseURL: "https://sheets.googleapis.com",
				Timeout: 30 * time.Second,
			},
		},
		Notify: NotifyConfig{
			Sinks: []string{SinkLog},
			Webhook: WebhookConfig{
				Mode:          "text",
				RatePerSecond: 2,
				Burst:         1,
			},
		},
		Bus: BusConfig{
			Driver:     BusNone,
			QueueGroup: "monthlyrank",
		},
		Pipeline: PipelineConfig{
			DedupeSize:    10000,
			SummaryPrefix: "monthly_",
		},
		Retry: RetryConfig{
			MaxAttempts:     4,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// normalize trims list values and splits comma separated entries, which
// is how lists arrive from env vars.
func (c *Config) normalize() {
	c.Notify.Sinks = splitList(c.Notify.Sinks)
	c.Ingest.Encodings = splitList(c.Ingest.Encodings)
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Bus.Driver = strings.ToLower(strings.TrimSpace(c.Bus.Driver))
	if c.Bus.Driver == "" {
		c.Bus.Driver = BusNone
	}
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	if c.QueueSize <= 0 {
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.Ingest.RankColumn == "" || c.Ingest.IDColumn == "" || c.Ingest.NameColumn == "" {
		return invalid("ingest column names must not be empty")
	}
	for _, name := range c.Ingest.Encodings {
		if _, ok := ingest.LookupEncoding(name); !ok {
			return invalid("unknown encoding %q", name)
		}
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreXLSX:
		if c.Store.XLSXPath == "" {
			return invalid("store.xlsx_path is required for the xlsx store")
		}
	case StoreSheets:
		if c.Store.Sheets.SpreadsheetID == "" || c.Store.Sheets.CredentialsFile == "" {
			return invalid("store.sheets.spreadsheet_id and store.sheets.credentials_file are required")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return invalid("store.postgres_dsn is required for the postgres store")
		}
	default:
		return invalid("unknown store.driver %q", c.Store.Driver)
	}

	if len(c.Notify.Sinks) == 0 {
		return invalid("notify.sinks must name at least one sink")
	}
	for _, sink := range c.Notify.Sinks {
		switch sink {
		case SinkLog:
		case SinkWebhook:
			if c.Notify.Webhook.URL == "" {
				return invalid("notify.webhook.url is required for the webhook sink")
			}
			if m := c.Notify.Webhook.Mode; m != "text" && m != "embed" {
				return invalid("notify.webhook.mode must be text or embed, got %q", m)
			}
		case SinkBus:
			if c.Bus.Driver == BusNone {
				return invalid("the bus sink needs bus.driver")
			}
		default:
			return invalid("unknown sink %q", sink)
		}
	}

	switch c.Bus.Driver {
	case BusNone, BusGoChannel:
	case BusNATS:
		if c.Bus.NATSURL == "" {
			return invalid("bus.nats_url is required for the nats bus")
		}
	default:
		return invalid("unknown bus.driver %q", c.Bus.Driver)
	}

	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1")
	}
	return nil
}
