// Package v1 provides HTTP API version 1.
package v1

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/idempotency"
	"stockledger/internal/domain/adjustment"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds the services the API exposes.
type RouterConfig struct {
	Logger *logger.Logger

	// HealthChecks are pinged by /health/ready.
	HealthChecks map[string]handlers.Pinger

	Adjustments     *adjustment.Service
	Queries         *ledger.Queries
	Auditor         *ledger.Auditor
	Transfers       *transfer.Service
	Reconciliations *reconciliation.Engine
	AuditLog        audit.Reader

	// Idempotency enables X-Idempotency-Key replay when set.
	Idempotency idempotency.Store

	// Debug keeps gin in debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, fmt.Errorf("setup validator: %w", err)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Scope())
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	handlers.NewMovementHandler(base, cfg.Adjustments, cfg.Queries).RegisterRoutes(v1)
	handlers.NewBalanceHandler(base, cfg.Queries, cfg.Auditor).RegisterRoutes(v1)
	handlers.NewTransferHandler(base, cfg.Transfers).RegisterRoutes(v1)
	handlers.NewReconciliationHandler(base, cfg.Reconciliations).RegisterRoutes(v1)
	if cfg.AuditLog != nil {
		handlers.NewAuditHandler(base, cfg.AuditLog).RegisterRoutes(v1)
	}

	return router, nil
}
