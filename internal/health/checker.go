package health

import (
	"context"
	"time"

	"github.com/cukesight/backend/internal/database"
	"github.com/cukesight/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe checks one dependency. A failing critical probe makes the service
// unhealthy; any other failing probe makes it degraded.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HealthChecker manages health checks for all services
type HealthChecker struct {
	probes     []Probe
	cache      *database.Cache
	healthRepo models.SystemHealthRepository
	timeout    time.Duration
	logger     *logrus.Logger
}

func NewHealthChecker(healthRepo models.SystemHealthRepository, cache *database.Cache, logger *logrus.Logger, probes ...Probe) *HealthChecker {
	return &HealthChecker{
		probes:     probes,
		cache:      cache,
		healthRepo: healthRepo,
		timeout:    5 * time.Second,
		logger:     logger,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health
type OverallHealth struct {
	Status   string                 `json:"status"`
	Services []ServiceHealth        `json:"services"`
	Uptime   string                 `json:"uptime"`
	Cache    map[string]interface{} `json:"cache,omitempty"`
}

func (h *HealthChecker) check(ctx context.Context, p Probe) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	responseTime := int(time.Since(start).Milliseconds())

	status := StatusHealthy
	errorMsg := ""
	if err != nil {
		status = StatusDegraded
		if p.Critical {
			status = StatusUnhealthy
		}
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", p.Name).Error("Health check failed")
	}

	if err := h.healthRepo.UpdateServiceHealth(p.Name, status, responseTime, errorMsg); err != nil {
		h.logger.WithError(err).WithField("service", p.Name).Warn("Failed to record health status")
	}

	return ServiceHealth{
		Name:         p.Name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().UTC().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all services
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	services := make([]ServiceHealth, 0, len(h.probes))
	for _, p := range h.probes {
		services = append(services, h.check(ctx, p))
	}

	overall := OverallHealth{
		Status:   overallStatus(services),
		Services: services,
		Uptime:   h.getUptime(),
	}
	if stats, err := h.cache.GetCacheStats(ctx); err == nil {
		overall.Cache = stats
	}
	return overall
}

func overallStatus(services []ServiceHealth) string {
	status := StatusHealthy
	for _, service := range services {
		if service.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if service.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

// CheckCached returns cached health status if available
func (h *HealthChecker) CheckCached(ctx context.Context) (*OverallHealth, error) {
	cachedHealth, err := h.cache.GetCachedSystemHealth(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]ServiceHealth, len(cachedHealth))
	for i, health := range cachedHealth {
		services[i] = ServiceHealth{
			Name:         health.ServiceName,
			Status:       health.Status,
			ResponseTime: health.ResponseTimeMs,
			Error:        health.ErrorMessage,
			LastChecked:  health.CheckedAt.Format(time.RFC3339),
		}
	}

	return &OverallHealth{
		Status:   overallStatus(services),
		Services: services,
		Uptime:   h.getUptime(),
	}, nil
}

var startTime = time.Now()

func (h *HealthChecker) getUptime() string {
	return time.Since(startTime).Round(time.Second).String()
}

// Refresh runs every check and caches the result for ttl.
func (h *HealthChecker) Refresh(ctx context.Context, ttl time.Duration) OverallHealth {
	health := h.CheckAll(ctx)

	healthModels := make([]models.SystemHealth, len(health.Services))
	for i, service := range health.Services {
		checkedAt, _ := time.Parse(time.RFC3339, service.LastChecked)
		healthModels[i] = models.SystemHealth{
			ServiceName:    service.Name,
			Status:         service.Status,
			ResponseTimeMs: service.ResponseTime,
			ErrorMessage:   service.Error,
			CheckedAt:      checkedAt,
		}
	}

	if err := h.cache.CacheSystemHealth(ctx, healthModels, ttl); err != nil {
		h.logger.WithError(err).Error("Failed to cache health status")
	}
	return health
}

// PeriodicHealthCheck runs health checks periodically
func (h *HealthChecker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.Refresh(ctx, 2*interval)
			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
