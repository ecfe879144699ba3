package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmanzanog/stock-screener/internal/application"
	"github.com/jmanzanog/stock-screener/internal/domain"
)

// ScreeningService is the read side used by the handlers.
type ScreeningService interface {
	ScreenQuery(ctx context.Context, values url.Values) (*domain.ScreenResult, error)
	Instrument(ctx context.Context, symbol string) (domain.Instrument, bool, error)
	Sectors(ctx context.Context, market domain.Market) ([]string, error)
	Freshness(ctx context.Context) (*application.Freshness, error)
}

// RefreshTrigger queues an asynchronous refresh.
type RefreshTrigger interface {
	Trigger(markets ...domain.Market) error
}

type RefreshStatusReader interface {
	Refresh(ctx context.Context) (domain.RefreshStatus, error)
}

type Handler struct {
	screening ScreeningService
	refresh   RefreshTrigger
	status    RefreshStatusReader
	markets   []domain.Market
	now       func() time.Time
}

func NewHandler(screening ScreeningService, refresh RefreshTrigger, status RefreshStatusReader, markets []domain.Market) *Handler {
	if len(markets) == 0 {
		markets = domain.Markets()
	}
	return &Handler{
		screening: screening,
		refresh:   refresh,
		status:    status,
		markets:   markets,
		now:       time.Now,
	}
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type ErrorResponse struct {
	Error      string                   `json:"error"`
	Message    string                   `json:"message"`
	StatusCode int                      `json:"statusCode"`
	Details    []application.FieldError `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{
		Error:      http.StatusText(status),
		Message:    message,
		StatusCode: status,
	})
}

// respondServiceError maps validation failures to 400 and everything else
// to 500.
func respondServiceError(c *gin.Context, err error, logMsg string, attrs ...any) {
	var verr *application.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:      "Validation Error",
			Message:    "Invalid request parameters",
			StatusCode: http.StatusBadRequest,
			Details:    verr.Errors,
		})
		return
	}

	slog.ErrorContext(c.Request.Context(), logMsg, append(attrs, "error", err)...)
	respondError(c, http.StatusInternalServerError, "An unexpected error occurred")
}

func (h *Handler) ScreenStocks(c *gin.Context) {
	result, err := h.screening.ScreenQuery(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		respondServiceError(c, err, "Failed to screen stocks", "query", c.Request.URL.RawQuery)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

func (h *Handler) GetStock(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	inst, found, err := h.screening.Instrument(c.Request.Context(), symbol)
	if err != nil {
		respondServiceError(c, err, "Failed to get stock", "symbol", symbol)
		return
	}
	if !found {
		respondError(c, http.StatusNotFound, "Stock "+symbol+" not found")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

func (h *Handler) GetSectors(c *gin.Context) {
	market, err := application.ParseMarketParam(c.Query("market"))
	if err != nil {
		respondServiceError(c, err, "Invalid market")
		return
	}

	sectors, err := h.screening.Sectors(c.Request.Context(), market)
	if err != nil {
		respondServiceError(c, err, "Failed to list sectors", "market", market)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"market":  market,
		"sectors": sectors,
		"count":   len(sectors),
	}})
}

// TriggerRefresh queues a refresh for one market, or all configured markets
// when none is given, and returns immediately.
func (h *Handler) TriggerRefresh(c *gin.Context) {
	markets := h.markets
	if raw := c.Query("market"); raw != "" {
		market, err := application.ParseMarketParam(raw)
		if err != nil {
			respondServiceError(c, err, "Invalid market")
			return
		}
		markets = []domain.Market{market}
	}

	if err := h.refresh.Trigger(markets...); err != nil {
		if errors.Is(err, application.ErrRefreshQueued) {
			respondError(c, http.StatusConflict, "A refresh is already queued")
			return
		}
		respondServiceError(c, err, "Failed to trigger refresh")
		return
	}

	lastUpdated := make(map[domain.Market]*time.Time, len(h.markets))
	if freshness, err := h.screening.Freshness(c.Request.Context()); err != nil {
		slog.WarnContext(c.Request.Context(), "Failed to read freshness after trigger", "error", err)
	} else {
		for _, m := range h.markets {
			lastUpdated[m] = freshness.ByMarket(m).LastUpdated
		}
	}

	slog.InfoContext(c.Request.Context(), "Refresh queued", "markets", markets)
	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Message: "Refresh started",
		Data: gin.H{
			"status":      "processing",
			"markets":     markets,
			"lastUpdated": lastUpdated,
		},
	})
}

func (h *Handler) RefreshStatus(c *gin.Context) {
	status, err := h.status.Refresh(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "Failed to load refresh status")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: status})
}

// Health reports store reachability and per-market counts.
func (h *Handler) Health(c *gin.Context) {
	timestamp := h.now().UTC()

	freshness, err := h.screening.Freshness(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: gin.H{
			"status":    "unhealthy",
			"timestamp": timestamp,
			"database":  gin.H{"connected": false},
		}})
		return
	}

	counts := gin.H{"total": freshness.Total}
	lastUpdated := gin.H{}
	for _, m := range h.markets {
		entry := freshness.ByMarket(m)
		counts[string(m)] = entry.Count
		lastUpdated[string(m)] = entry.LastUpdated
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"status":    "healthy",
		"timestamp": timestamp,
		"database": gin.H{
			"connected":   true,
			"stockCount":  counts,
			"lastUpdated": lastUpdated,
		},
	}})
}

func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "stock-screener",
		"version": "v1",
		"endpoints": []string{
			"GET /api/v1/stocks/screen",
			"GET /api/v1/stocks/:symbol",
			"GET /api/v1/sectors?market=JP|US",
			"POST /api/v1/stocks/refresh?market=JP|US",
			"GET /api/v1/stocks/refresh/status",
			"GET /api/v1/health",
			"GET /health",
			"GET /metrics",
		},
	})
}

func (h *Handler) NotFound(c *gin.Context) {
	respondError(c, http.StatusNotFound, "Route "+c.Request.Method+" "+c.Request.URL.Path+" not found")
}
