package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmanzanog/stock-screener/internal/infrastructure/metrics"
)

type RouteConfig struct {
	// Requests per minute per client IP; zero disables the limit.
	ScreenRateLimit  int
	RefreshRateLimit int

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

func SetupRoutes(router *gin.Engine, handler *Handler, cfg RouteConfig) {
	if cfg.Metrics != nil {
		router.Use(RequestMetrics(cfg.Metrics))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/stocks/screen", limited(cfg.ScreenRateLimit), handler.ScreenStocks)
		api.GET("/stocks/refresh/status", handler.RefreshStatus)
		api.POST("/stocks/refresh", limited(cfg.RefreshRateLimit), handler.TriggerRefresh)
		api.GET("/stocks/:symbol", handler.GetStock)
		api.GET("/sectors", handler.GetSectors)
		api.GET("/health", handler.Health)
	}

	router.GET("/", handler.Index)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	router.NoRoute(handler.NotFound)
}

func limited(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return RateLimit(perMinute)
}
