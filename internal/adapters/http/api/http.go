// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit runs an upload through the pipeline and returns the new ranking.
	Submit(ctx context.Context, u model.Upload) (report.Report, error)

	// Ranking recomputes a month without writing anything.
	Ranking(ctx context.Context, month string) (report.Report, error)

	// Publish rewrites the month summary and notifies again.
	Publish(ctx context.Context, month string) (report.Report, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	uploadHandler  *UploadHandler
	rankingHandler *RankingHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, stats StatsFunc, opts ...Option) *Server {
	cfg := options{
		maxUploadBytes: defaultMaxUploadBytes,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("api")
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(stats),
		uploadHandler:  NewUploadHandler(deps, cfg.maxUploadBytes),
		rankingHandler: NewRankingHandler(deps, cfg.publishTimeout, cfg.logger),
	}
}

// Routes returns the router serving every endpoint.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Post("/uploads", MetricsMiddleware(s.uploadHandler.HandlePostUpload, "uploads"))
	r.Route("/rankings/{month}", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.rankingHandler.HandleGetRanking, "rankings"))
		r.Post("/publish", MetricsMiddleware(s.rankingHandler.HandlePublish, "publish"))
	})
	return r
}

// Option configures the Server.
type Option func(*options)

type options struct {
	maxUploadBytes int64
	publishTimeout time.Duration
	logger         logger.Logger
}

const (
	defaultMaxUploadBytes = 10 << 20
	defaultPublishTimeout = 2 * time.Minute
)

// WithMaxUploadBytes caps the size of an upload body.
func WithMaxUploadBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxUploadBytes = n
		}
	}
}

// WithPublishTimeout bounds a background republish.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

// WithLogger sets the logger for background work.
func WithLogger(lg logger.Logger) Option {
	return func(o *options) {
		if lg != nil {
			o.logger = lg
		}
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type rankingResponse struct {
	Month   string               `json:"month"`
	Entries []model.RankingEntry `json:"entries"`
}

type publishResponse struct {
	Status string `json:"status"`
	Month  string `json:"month"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writePipelineError writes err with the status its kind maps to.
func writePipelineError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}
