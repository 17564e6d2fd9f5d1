package api

import (
	"context"

	"github.com/cukesight/backend/internal/api/handlers"
	"github.com/cukesight/backend/internal/app"
	"github.com/cukesight/backend/internal/middleware"
	"github.com/gin-gonic/gin"
)

// NewRouter registers every route. Background middleware state lives until
// ctx ends.
func NewRouter(ctx context.Context, a *app.App) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(a.Logger),
		middleware.SecurityHeaders(),
	)

	healthHandler := handlers.NewHealthHandler(a.Health, a.Config.Redis.HealthTTL)
	router.GET("/health", healthHandler.HandleHealth)

	reports := handlers.NewReportHandler(a.Ingest, a.Logger)
	queries := handlers.NewQueryHandler(a.Query, a.Stats, a.Repos, a.Cache, a.Logger)
	limiter := middleware.NewRateLimiter(ctx, a.Config.Server.RateLimitPerMinute, a.Config.Server.RateLimitBurst)

	v1 := router.Group("/api/v1", limiter.RateLimit())
	{
		v1.POST("/reports", middleware.BodyLimit(a.Config.Ingestion.MaxPayloadBytes), reports.HandleIngest)
		v1.POST("/builds", reports.HandleBuildInfo)
		v1.POST("/query", queries.HandleQuery)
		v1.POST("/analyze", queries.HandleAnalyze)
		v1.GET("/statistics", queries.HandleStatistics)
		v1.GET("/scenarios/count", queries.HandleScenarioCount)
		v1.GET("/queries/popular", queries.HandlePopularQueries)
		v1.GET("/queries/suggestions", queries.HandleSuggestions)
	}

	return router
}
