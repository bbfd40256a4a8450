package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "marketcore/internal/errors"
	"marketcore/internal/store"
)

// maxRunsLimit caps the page size of GET /runs
const maxRunsLimit = 500

// RunService lists and fetches recorded ingest runs
type RunService interface {
	Runs(ctx context.Context, filter store.Filter) ([]store.Run, error)
	Run(ctx context.Context, id string) (store.Run, error)
}

// RunsHandler serves the run history
type RunsHandler struct {
	service      RunService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service RunService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "runs")),
		errorHandler: errorHandler,
	}
}

// Routes returns the runs routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	return r
}

// runSummary is a run without its per-source outcomes and issues
type runSummary struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Sources    int       `json:"sources"`
	Loaded     int       `json:"loaded"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Rows       int       `json:"rows"`
	Cancelled  bool      `json:"cancelled"`
	Valid      bool      `json:"valid"`
	Errors     int       `json:"errors"`
	Warnings   int       `json:"warnings"`
}

func summarize(run store.Run) runSummary {
	return runSummary{
		ID:         run.ID,
		Trigger:    run.Trigger,
		Target:     run.Target,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Sources:    run.Sources,
		Loaded:     run.Loaded,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		Rows:       run.Rows,
		Cancelled:  run.Cancelled,
		Valid:      run.Valid,
		Errors:     run.Errors,
		Warnings:   run.Warnings,
	}
}

// ListRuns handles GET /runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	runs, err := h.service.Runs(r.Context(), filter)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	out := make([]runSummary, len(runs))
	for i, run := range runs {
		out[i] = summarize(run)
	}
	render.JSON(w, r, map[string]interface{}{
		"runs":  out,
		"count": len(out),
	})
}

// GetRun handles GET /runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Run(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	filter := store.Filter{Trigger: q.Get("trigger"), Limit: 50}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apierrors.NewConfigError(fmt.Sprintf("since %q is not an RFC 3339 time", v), nil)
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxRunsLimit {
			return filter, apierrors.NewConfigError(fmt.Sprintf("limit must be between 1 and %d", maxRunsLimit), nil)
		}
		filter.Limit = limit
	}
	return filter, nil
}
