package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"marketcore/internal/infrastructure"
	"marketcore/internal/store"
)

// HealthService reports liveness and readiness of a running watch
type HealthService struct {
	version   string
	history   store.HistoryStore
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual component health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. history may be nil.
func NewHealthService(version string, history store.HistoryStore, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		history:   history,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime:   infrastructure.ReadRuntimeStats(hs.startTime).Map(),
	}
}

// ReadinessCheck is ready when the history store answers and the latest
// run, if there is one, validated.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"history":  hs.checkHistory(ctx),
			"last_run": hs.checkLastRun(ctx),
		},
	}
	for _, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}
	if status.Status != "ready" {
		hs.logger.DebugContext(ctx, "Readiness check failed", slog.Any("services", status.Services))
	}
	return status
}

func (hs *HealthService) checkHistory(ctx context.Context) ServiceHealth {
	if hs.history == nil {
		return ServiceHealth{Status: "ready", Message: "history disabled"}
	}
	if _, err := hs.history.List(ctx, store.Filter{Limit: 1}); err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkLastRun(ctx context.Context) ServiceHealth {
	run, ok, err := hs.latest(ctx)
	switch {
	case err != nil:
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	case !ok:
		return ServiceHealth{Status: "ready", Message: "no runs yet"}
	case !run.Valid:
		return ServiceHealth{Status: "not_ready", Message: "run " + run.ID + " did not validate"}
	}
	return ServiceHealth{Status: "ready", Message: "run " + run.ID + " validated"}
}

func (hs *HealthService) latest(ctx context.Context) (store.Run, bool, error) {
	if hs.history == nil {
		return store.Run{}, false, nil
	}
	runs, err := hs.history.List(ctx, store.Filter{Limit: 1})
	if err != nil || len(runs) == 0 {
		return store.Run{}, false, err
	}
	return runs[0], true, nil
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	return map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(hs.startTime).Seconds(),
		"start_time": hs.startTime.Format(time.RFC3339),
	}
}
