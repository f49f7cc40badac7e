package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/user/medcrawl/internal/delivery/http/response"
	"github.com/user/medcrawl/internal/entity"
	"github.com/user/medcrawl/internal/usecase"
	"go.uber.org/zap"
)

// Handler exposes run status and run triggering for every configured
// source.
type Handler struct {
	runners map[string]*usecase.CrawlRunner
	logger  *zap.Logger
}

func NewHandler(runners map[string]*usecase.CrawlRunner, logger *zap.Logger) *Handler {
	return &Handler{
		runners: runners,
		logger:  logger,
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListRuns returns the latest run summary for every source, sorted
// by source name. Sources that never ran report the idle state.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	out := make([]response.RunSummaryResponse, 0, len(h.runners))
	for source, runner := range h.runners {
		out = append(out, toRunResponse(source, runner.LastSummary()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	runner, ok := h.runners[source]
	if !ok {
		h.writeJSONError(w, "unknown source", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toRunResponse(source, runner.LastSummary()))
}

// HandleStartRun kicks off a crawl in the background. A source with a run
// already in flight answers 409.
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	runner, ok := h.runners[source]
	if !ok {
		h.writeJSONError(w, "unknown source", http.StatusNotFound)
		return
	}
	if runner.Running() {
		h.writeJSONError(w, "run already in progress", http.StatusConflict)
		return
	}

	go func() {
		if _, err := runner.Run(context.Background()); err != nil {
			h.logger.Error("run failed", zap.String("source", source), zap.Error(err))
		}
	}()

	h.writeJSON(w, http.StatusAccepted, response.StartRunResponse{
		Status:  "accepted",
		Message: "run started",
		Source:  source,
	})
}

func toRunResponse(source string, s *entity.RunSummary) response.RunSummaryResponse {
	if s == nil {
		return response.RunSummaryResponse{Source: source, State: string(entity.RunIdle)}
	}
	resp := response.RunSummaryResponse{
		Source:           s.Source,
		State:            string(s.State),
		Stored:           s.Stored,
		ExtractionErrors: s.ExtractionErrors,
		DimensionsFailed: s.DimensionsFailed,
		Error:            s.Err,
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		resp.StartedAt = &t
	}
	if !s.FinishedAt.IsZero() {
		t := s.FinishedAt
		resp.FinishedAt = &t
	}
	return resp
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write json response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
