package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
	"github.com/okian/monthlyrank/pkg/logger"
)

// RankingDependencies defines the interface for ranking reads and republishing.
type RankingDependencies interface {
	Ranking(ctx context.Context, month string) (report.Report, error)
	Publish(ctx context.Context, month string) (report.Report, error)
}

// RankingHandler handles monthly ranking requests.
type RankingHandler struct {
	deps    RankingDependencies
	timeout time.Duration
	logger  logger.Logger
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingDependencies, timeout time.Duration, lg logger.Logger) *RankingHandler {
	return &RankingHandler{deps: deps, timeout: timeout, logger: lg}
}

func monthParam(r *http.Request, op string) (string, error) {
	month := chi.URLParam(r, "month")
	if !model.ValidMonthKey(month) {
		return "", WrapKind(op, ErrBadRequest, fmt.Errorf("month %q must be YYYY-MM", month))
	}
	return month, nil
}

// HandleGetRanking handles GET /rankings/{month}.
func (h *RankingHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ranking"
	month, err := monthParam(r, op)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rep, err := h.deps.Ranking(r.Context(), month)
	if err != nil {
		writePipelineError(w, Wrap(op, err))
		return
	}
	entries := rep.Entries
	if entries == nil {
		entries = []model.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, rankingResponse{Month: month, Entries: entries})
}

// HandlePublish handles POST /rankings/{month}/publish. The republish runs
// in the background after the request is accepted.
func (h *RankingHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	const op = "api.publish"
	month, err := monthParam(r, op)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	go func() {
		defer cancel()
		rep, err := h.deps.Publish(ctx, month)
		if err != nil {
			h.logger.Error(ctx, "republish failed", logger.String("month", month), logger.Error(err))
			return
		}
		h.logger.Info(ctx, "republished ranking",
			logger.String("month", month),
			logger.Int("entries", len(rep.Entries)),
		)
	}()
	writeJSON(w, http.StatusAccepted, publishResponse{Status: "accepted", Month: month})
}
