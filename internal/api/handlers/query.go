package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cukesight/backend/internal/database"
	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/repository"
	"github.com/cukesight/backend/internal/services"
	"github.com/cukesight/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const popularQueriesTTL = 5 * time.Minute

type QueryHandler struct {
	queryService *services.QueryService
	statsService *services.StatsService
	repoManager  *repository.RepositoryManager
	cache        *database.Cache
	logger       *logrus.Logger
}

func NewQueryHandler(
	queryService *services.QueryService,
	statsService *services.StatsService,
	repoManager *repository.RepositoryManager,
	cache *database.Cache,
	logger *logrus.Logger,
) *QueryHandler {
	return &QueryHandler{
		queryService: queryService,
		statsService: statsService,
		repoManager:  repoManager,
		cache:        cache,
		logger:       logger,
	}
}

// HandleQuery answers a natural-language question about test results.
func (h *QueryHandler) HandleQuery(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid query request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"query":      req.Query,
		"ip_address": c.ClientIP(),
		"request_id": c.GetString("request_id"),
	}).Info("Processing query request")

	resp, err := h.queryService.Query(c.Request.Context(), req.Query, req.Filters, services.QueryMeta{
		RequestID: c.GetString("request_id"),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		utils.FailWith(c, "Query failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Query answered", resp)
}

// HandleAnalyze explains recent failing steps.
func (h *QueryHandler) HandleAnalyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.Limit > 20 {
		req.Limit = 20
	}

	analyses, err := h.queryService.AnalyzeFailures(c.Request.Context(), req)
	if err != nil {
		utils.FailWith(c, "Failure analysis failed", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Failures analyzed", analyses)
}

// HandleStatistics returns aggregate statistics. Query parameters: days,
// environment, feature.
func (h *QueryHandler) HandleStatistics(c *gin.Context) {
	days, err := intParam(c, "days")
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid days parameter", err)
		return
	}

	stats, err := h.statsService.GetStatistics(c.Request.Context(), days, c.Query("environment"), c.Query("feature"))
	if err != nil {
		utils.FailWith(c, "Failed to compute statistics", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Statistics computed", stats)
}

// HandleScenarioCount counts scenarios. Query parameters: status, since,
// environment, feature, project.
func (h *QueryHandler) HandleScenarioCount(c *gin.Context) {
	count, err := h.statsService.CountScenarios(c.Request.Context(), services.ScenarioCountRequest{
		Status:      c.Query("status"),
		Since:       c.Query("since"),
		Environment: c.Query("environment"),
		Feature:     c.Query("feature"),
		Project:     c.Query("project"),
	})
	if err != nil {
		utils.FailWith(c, "Failed to count scenarios", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Scenarios counted", gin.H{"count": count})
}

// HandlePopularQueries returns the most asked questions.
func (h *QueryHandler) HandlePopularQueries(c *gin.Context) {
	ctx := c.Request.Context()
	if cached, err := h.cache.GetCachedPopularQueries(ctx); err == nil {
		utils.SuccessResponse(c, http.StatusOK, "Popular queries retrieved", cached)
		return
	}

	queries, err := h.repoManager.PopularQuery.GetTop(10)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get popular queries")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get popular queries", err)
		return
	}
	if err := h.cache.CachePopularQueries(ctx, queries, popularQueriesTTL); err != nil {
		h.logger.WithError(err).Warn("Failed to cache popular queries")
	}
	utils.SuccessResponse(c, http.StatusOK, "Popular queries retrieved", queries)
}

// HandleSuggestions returns popular queries containing q.
func (h *QueryHandler) HandleSuggestions(c *gin.Context) {
	query := strings.ToLower(strings.TrimSpace(c.Query("q")))
	if query == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Query parameter 'q' is required", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if limit <= 0 || limit > 10 {
		limit = 10
	}

	suggestions, err := h.repoManager.PopularQuery.GetTop(50)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get query suggestions")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get suggestions", err)
		return
	}

	filtered := make([]string, 0, limit)
	for _, s := range suggestions {
		if strings.Contains(s.QueryText, query) {
			filtered = append(filtered, s.QueryText)
			if len(filtered) == limit {
				break
			}
		}
	}
	utils.SuccessResponse(c, http.StatusOK, "Suggestions retrieved", filtered)
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
