package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/tenant-rules-admin/auth"
	"github.com/upb/tenant-rules-admin/config"
	"github.com/upb/tenant-rules-admin/internal/observability"
	"github.com/upb/tenant-rules-admin/middleware"
	"github.com/upb/tenant-rules-admin/repositories"
	"github.com/upb/tenant-rules-admin/repositories/memory"
	"github.com/upb/tenant-rules-admin/services/rules"
	"go.uber.org/zap"
)

// Dependencies holds all dependencies of the development rules backend.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Storage
	Store     *memory.Store
	Rules     repositories.RuleRepository
	TxManager repositories.TransactionManager

	// Services
	RuleService *rules.RuleService

	// Metrics is never nil; Registry is nil when metrics are disabled
	Metrics  observability.Metrics
	Registry *prometheus.Registry

	// AuthMiddleware is nil when the backend runs without authentication
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all backend dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize rule store: %w", err)
	}

	deps.RuleService = rules.NewRuleService(deps.Rules, deps.TxManager, logger)
	deps.initMetrics(cfg)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Bool("seeded", cfg.Mock.Seed),
		zap.Bool("auth", deps.AuthMiddleware != nil),
		zap.Bool("metrics", deps.Registry != nil))
	return deps, nil
}

// initStore creates the in-memory store and loads the demo rules
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	d.Store = memory.NewStore(d.Logger)
	d.Rules = d.Store
	d.TxManager = d.Store

	if !cfg.Mock.Seed {
		return nil
	}
	if err := rules.Seed(ctx, d.Store); err != nil {
		return err
	}

	d.Logger.Info("rule store seeded", zap.String("tenant_id", rules.SeedTenantID))
	return nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Registry = reg
	d.Metrics = observability.NewPrometheusMetrics(reg)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.Mock.RequireAuth {
		d.Logger.Warn("authentication disabled, every tenant is reachable")
		return
	}

	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not configured, rejecting all tokens")
		// Use reject-all validator so protected routes return 401
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}

	validator := auth.NewHMACValidator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
}

// rejectAllValidator rejects all tokens (used when no secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}
	return nil
}
