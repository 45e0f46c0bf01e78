package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherpy/internal/degraded"
	"github.com/kjstillabower/weatherpy/internal/lifecycle"
)

// HealthConfig holds run metadata reported by the health handler.
type HealthConfig struct {
	RunID     string
	StartTime time.Time
	// DegradedWindow and DegradedErrorPct flag a running fetch loop whose recent
	// API calls mostly fail. A zero percentage disables the check.
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for the status handlers.
type Handler struct {
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health. It reports the run phase and fetch counters.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	progress := lifecycle.Snapshot()
	result := computeHealthStatus(progress.Phase)
	if result.status == "running" && degraded.IsDegraded(h.healthConfig.DegradedWindow, h.healthConfig.DegradedErrorPct) {
		result = healthResult{status: "degraded", statusCode: http.StatusOK, reason: "weather API error rate above threshold"}
	}

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weatherpy",
		"runId":     h.healthConfig.RunID,
		"phase":     progress.Phase,
		"planned":   progress.Planned,
		"fetched":   progress.Fetched,
		"skipped":   progress.Skipped,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if !h.healthConfig.StartTime.IsZero() {
		resp["uptime"] = time.Since(h.healthConfig.StartTime).Round(time.Second).String()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus maps the run state to a status string and HTTP code.
// Shutdown takes priority over phase.
func computeHealthStatus(phase lifecycle.Phase) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{status: "shutting-down", statusCode: http.StatusServiceUnavailable, reason: "interrupted"}
	}
	switch phase {
	case lifecycle.PhaseFailed:
		return healthResult{status: "failed", statusCode: http.StatusServiceUnavailable, reason: "run failed"}
	case lifecycle.PhaseDone:
		return healthResult{status: "done", statusCode: http.StatusOK, reason: "run complete"}
	}
	return healthResult{status: "running", statusCode: http.StatusOK, reason: string(phase)}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response with code, message and the request's correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": CorrelationID(r.Context()),
		},
	})
}
