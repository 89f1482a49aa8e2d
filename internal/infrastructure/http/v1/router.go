// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"storeledger/internal/domain/inventorycount"
	"storeledger/internal/domain/movement"
	"storeledger/internal/domain/pricing"
	"storeledger/internal/domain/stock"
	"storeledger/internal/infrastructure/http/v1/dto"
	"storeledger/internal/infrastructure/http/v1/handlers"
	"storeledger/internal/infrastructure/http/v1/middleware"
	"storeledger/internal/infrastructure/metrics"
	"storeledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.Metrics

	Movements *movement.Service
	Counts    *inventorycount.Service
	Stock     *stock.Store

	// Health checks run by /health/ready, keyed by dependency name.
	Health map[string]handlers.Pinger

	// History serves the commit trail of a movement. Optional.
	History handlers.HistoryReader

	// Prices backs the /prices routes. Optional.
	Prices pricing.Table
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Operator())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Health)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	api := router.Group("/api/v1")

	registerMovementRoutes(api, handlers.NewMovementHandler(base, cfg.Movements, cfg.History))
	registerCountRoutes(api, handlers.NewCountHandler(base, cfg.Counts))
	registerStockRoutes(api, handlers.NewStockHandler(base, cfg.Stock))
	if cfg.Prices != nil {
		registerPriceRoutes(api, handlers.NewPriceHandler(base, cfg.Prices))
	}

	return router, nil
}

func registerMovementRoutes(rg *gin.RouterGroup, h *handlers.MovementHandler) {
	movements := rg.Group("/movements/:kind")
	movements.POST("/drafts", h.CreateDraft)
	movements.POST("/:storeId/:number/open", h.Open)
	if h.HasHistory() {
		movements.GET("/:storeId/:number/history", h.History)
	}

	rg.POST("/deliveries/:storeId/:number/receive", h.Receive)

	drafts := rg.Group("/drafts/:handle")
	drafts.GET("", h.Get)
	drafts.DELETE("", h.Discard)
	drafts.PUT("/lines/:productId", h.UpsertLine)
	drafts.DELETE("/lines/:productId", h.RemoveLine)
	drafts.POST("/commit", h.Commit)
	drafts.POST("/reopen", h.Reopen)
}

func registerCountRoutes(rg *gin.RouterGroup, h *handlers.CountHandler) {
	rg.POST("/counts", h.Start)

	counts := rg.Group("/counts/:handle")
	counts.GET("", h.Get)
	counts.PUT("/lines/:productId", h.Record)
	counts.DELETE("/lines/:productId", h.Clear)
	counts.POST("/fix", h.Fix)
	counts.POST("/unfix", h.Unfix)
}

func registerStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler) {
	rg.GET("/stores/:storeId/stock", h.List)
	rg.GET("/stores/:storeId/stock/:productId", h.Get)
}

func registerPriceRoutes(rg *gin.RouterGroup, h *handlers.PriceHandler) {
	rg.GET("/prices/:productId", h.Get)
	rg.PUT("/prices/:productId", h.Put)
}
