package handlers

import (
	"net/http"
	"time"

	"github.com/cukesight/backend/internal/health"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker *health.HealthChecker
	ttl     time.Duration
}

func NewHealthHandler(checker *health.HealthChecker, ttl time.Duration) *HealthHandler {
	return &HealthHandler{checker: checker, ttl: ttl}
}

// HandleHealth serves the cached status when fresh, otherwise checks now.
// An unhealthy service answers 503.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	overall, err := h.checker.CheckCached(c.Request.Context())
	if err != nil || c.Query("refresh") == "true" {
		fresh := h.checker.Refresh(c.Request.Context(), h.ttl)
		overall = &fresh
	}

	code := http.StatusOK
	if overall.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, overall)
}
