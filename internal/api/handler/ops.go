// Package handler provides HTTP handlers for the tempcast API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tempcast/tempcast/internal/api/models"
	"github.com/tempcast/tempcast/internal/api/response"
	"github.com/tempcast/tempcast/internal/provider/resilience"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig configures an OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Dependencies is checked by the readiness endpoint, keyed by subsystem name.
	Dependencies map[string]Pinger

	// Providers exposes circuit breaker state of upstream providers. Optional.
	Providers *resilience.Registry

	// PingTimeout bounds each dependency check. Defaults to 2s.
	PingTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	buildTime   string
	deps        map[string]Pinger
	providers   *resilience.Registry
	pingTimeout time.Duration
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	return &OpsHandler{
		version:     cfg.Version,
		buildTime:   cfg.BuildTime,
		deps:        cfg.Dependencies,
		providers:   cfg.Providers,
		pingTimeout: cfg.PingTimeout,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It returns 503 when any
// dependency fails its ping.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkDependencies(r.Context())

	status := models.HealthStatusOK
	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusFail
		}
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.checkDependencies(r.Context()),
		Providers:  []models.ProviderStatus{},
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}

	if h.providers != nil {
		for _, p := range h.providers.All() {
			ps := providerStatus(p)
			if ps.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkDependencies(ctx context.Context) []models.SubsystemStatus {
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.SubsystemStatus, 0, len(names))
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
		start := time.Now()
		err := h.deps[name].Ping(pctx)
		elapsed := time.Since(start)
		cancel()

		s := models.SubsystemStatus{
			Name:      name,
			Status:    models.HealthStatusOK,
			LatencyMs: elapsed.Milliseconds(),
		}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func providerStatus(p resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            p.Name,
		Status:              models.HealthStatusOK,
		Circuit:             p.CircuitState.String(),
		ConsecutiveFailures: p.Counts.ConsecutiveFailures,
	}
	switch {
	case p.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	case !p.IsHealthy():
		ps.Status = models.HealthStatusFail
	}
	if !p.LastSuccessAt.IsZero() {
		ts := models.Timestamp(p.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if !p.LastFailureAt.IsZero() {
		ts := models.Timestamp(p.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}
	return ps
}
