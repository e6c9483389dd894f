package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/config"
	"github.com/arbiterlabs/arbiter/internal/observability"
	"github.com/arbiterlabs/arbiter/middleware"
	"github.com/arbiterlabs/arbiter/repositories/postgres"
	"github.com/arbiterlabs/arbiter/services/ledger"
	"github.com/arbiterlabs/arbiter/services/oracle"
	"github.com/arbiterlabs/arbiter/services/providers"
	"github.com/arbiterlabs/arbiter/services/providers/gemini"
	"github.com/arbiterlabs/arbiter/services/providers/openai"
	"github.com/arbiterlabs/arbiter/services/router"
	"github.com/arbiterlabs/arbiter/services/selector"
)

// Dependencies wires every service explicitly; no singletons, so tests can
// substitute fakes at any seam.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Factory  *postgres.RepositoryFactory
	Ledger   *ledger.Service
	Registry *providers.Registry
	Oracle   oracle.Oracle
	Selector *selector.Service
	Router   *router.Service
	Janitor  *ledger.Janitor
	Metrics  *observability.Metrics
	AuthMW   *middleware.AuthMiddleware
}

// NewDependencies constructs the full dependency graph: database, schema,
// seeded catalog, provider registry, oracle, selector, and router.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := factory.DB().InitSchema(ctx); err != nil {
		factory.Close()
		return nil, err
	}

	repos := factory.NewRepositories()
	ledgerSvc := ledger.NewService(repos, logger)

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	if err := ledgerSvc.UpsertModels(ctx, catalog); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to seed model catalog: %w", err)
	}

	registry := buildRegistry(cfg, logger)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	selectorCfg := selector.Config{
		FailureRateThreshold:   cfg.Routing.FailureRateThreshold,
		FailureRateWindow:      cfg.Routing.FailureRateWindow,
		TokenBuffer:            cfg.Routing.TokenBuffer,
		FloorTokens:            cfg.Routing.FloorTokens,
		DefaultEstimatedTokens: cfg.Routing.DefaultEstimatedTokens,
	}
	routerCfg := router.Config{
		MaxFallbackAttempts:  cfg.Routing.MaxFallbackAttempts,
		FailureRateThreshold: cfg.Routing.FailureRateThreshold,
		FailureRateWindow:    cfg.Routing.FailureRateWindow,
		ProviderTimeout:      cfg.Routing.ProviderTimeout,
		Temperature:          float32(cfg.Routing.Temperature),
	}

	o := buildOracle(cfg, registry, logger)
	selectorSvc := selector.NewService(selectorCfg, ledgerSvc, registry, o, logger)
	routerSvc := router.NewService(routerCfg, ledgerSvc, selectorSvc, registry, metrics, logger)
	janitor := ledger.NewJanitor(ledgerSvc, cfg.Routing.PruneSchedule, logger)

	return &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Factory:  factory,
		Ledger:   ledgerSvc,
		Registry: registry,
		Oracle:   o,
		Selector: selectorSvc,
		Router:   routerSvc,
		Janitor:  janitor,
		Metrics:  metrics,
		AuthMW:   middleware.NewAuthMiddleware(cfg.Server.AuthSecret, logger),
	}, nil
}

// buildRegistry registers every origin that has usable credentials.
// Origins without credentials are skipped, which keeps their models out of
// candidate sets without affecting other origins.
func buildRegistry(cfg *config.Config, logger *zap.Logger) *providers.Registry {
	registry := providers.NewRegistry()

	if cfg.Providers.OpenAI.APIKey != "" {
		_ = registry.Register(openai.NewAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.OpenAI.APIKey,
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Timeout: cfg.Providers.OpenAI.Timeout,
		}))
		logger.Info("provider registered", zap.String("origin", "openai"))
	} else {
		logger.Warn("openai provider not configured, its models are excluded")
	}

	if cfg.Providers.Gemini.APIKey != "" {
		_ = registry.Register(gemini.NewAdapter(providers.ProviderConfig{
			APIKey:  cfg.Providers.Gemini.APIKey,
			BaseURL: cfg.Providers.Gemini.BaseURL,
			Timeout: cfg.Providers.Gemini.Timeout,
		}))
		logger.Info("provider registered", zap.String("origin", "gemini"))
	} else {
		logger.Warn("gemini provider not configured, its models are excluded")
	}

	return registry
}

// buildOracle wires the LLM-backed oracle through the configured arbiter
// origin. When that origin is not registered the oracle is disabled and
// every selection takes the deterministic fallback.
func buildOracle(cfg *config.Config, registry *providers.Registry, logger *zap.Logger) oracle.Oracle {
	provider, err := registry.Get(cfg.Oracle.Origin)
	if err != nil {
		logger.Warn("oracle origin not configured, using deterministic selection only",
			zap.String("origin", cfg.Oracle.Origin))
		return oracle.Disabled()
	}

	return oracle.NewClient(provider, cfg.Oracle.Model, cfg.Oracle.Timeout, logger)
}

// Close releases held resources
func (d *Dependencies) Close() {
	if d.Janitor != nil {
		d.Janitor.Stop()
	}
	if d.Factory != nil {
		_ = d.Factory.Close()
	}
}
