package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"golang.org/x/time/rate"
)

// Webhook delivery modes.
const (
	ModeText  = "text"
	ModeEmbed = "embed"
)

// embedDescriptionLimit is the Discord limit for an embed description.
const embedDescriptionLimit = 4096

// WebhookError is a non-2xx response from the webhook endpoint.
type WebhookError struct {
	Status int
	Body   string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook status %d: %s", e.Status, e.Body)
}

// Temporary reports whether resending may succeed.
func (e *WebhookError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Refused reports whether the message was rate limited and not posted.
func (e *WebhookError) Refused() bool {
	return e.Status == http.StatusTooManyRequests
}

type webhookMessage struct {
	Content  string         `json:"content,omitempty"`
	Username string         `json:"username,omitempty"`
	Embeds   []report.Embed `json:"embeds,omitempty"`
}

// WebhookSink posts reports to a Discord-compatible webhook.
type WebhookSink struct {
	url      string
	mode     string
	username string
	client   *http.Client
	limiter  *rate.Limiter

	// A failed report resumes at its first unposted message when the same
	// report is sent again, so retries never repeat posted chunks.
	mu       sync.Mutex
	pending  string
	resumeAt int
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithMode selects text or embed delivery.
func WithMode(mode string) WebhookOption {
	return func(s *WebhookSink) {
		if mode == ModeText || mode == ModeEmbed {
			s.mode = mode
		}
	}
}

// WithUsername overrides the webhook display name.
func WithUsername(name string) WebhookOption {
	return func(s *WebhookSink) { s.username = name }
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRateLimit limits posts to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) WebhookOption {
	return func(s *WebhookSink) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url string, opts ...WebhookOption) (*WebhookSink, error) {
	if url == "" {
		return nil, ErrNoWebhookURL
	}
	s := &WebhookSink{
		url:     url,
		mode:    ModeText,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Notify implements Sink.
func (s *WebhookSink) Notify(ctx context.Context, r report.Report) (err error) {
	defer func(start time.Time) { observe(s.Name(), start, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages(r)
	key := r.MonthKey + "\x00" + r.Text
	start := 0
	if key == s.pending {
		start = s.resumeAt
	}
	for i := start; i < len(msgs); i++ {
		if err := s.post(ctx, msgs[i]); err != nil {
			s.pending, s.resumeAt = key, i
			return model.External("notify.webhook", err)
		}
	}
	s.pending, s.resumeAt = "", 0
	return nil
}

func (s *WebhookSink) messages(r report.Report) []webhookMessage {
	if s.mode == ModeEmbed {
		parts := report.Chunks(r.Embed.Description, embedDescriptionLimit)
		if len(parts) == 0 {
			parts = []string{""}
		}
		out := make([]webhookMessage, len(parts))
		for i, p := range parts {
			e := report.Embed{Color: r.Embed.Color, Description: p}
			if i == 0 {
				e.Title = r.Embed.Title
			}
			out[i] = webhookMessage{Username: s.username, Embeds: []report.Embed{e}}
		}
		return out
	}
	out := make([]webhookMessage, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = webhookMessage{Content: c, Username: s.username}
	}
	return out
}

func (s *WebhookSink) post(ctx context.Context, msg webhookMessage) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &WebhookError{Status: resp.StatusCode, Body: string(raw)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
