package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/perculacms/aicore/internal/agents"
	"github.com/perculacms/aicore/internal/config"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/store"
	"github.com/perculacms/aicore/internal/telemetry"
)

// App holds the long-lived components shared by the server and the admin CLI.
type App struct {
	// Config is the configuration New was called with.
	Config   *config.Config
	Store    store.Store
	Redis    *redis.Client
	Resolver *router.Resolver
	Adapters *router.AdapterRegistry
	Router   *router.Router
	Catalog  *agents.Catalog
	Agents   *agents.Service
	Logger   *slog.Logger
}

// Options tune what New builds. Metrics may be nil.
type Options struct {
	Metrics *telemetry.Metrics
	// SkipRedis leaves Redis unset, as the CLI does not need it.
	SkipRedis bool
}

// New opens the database and assembles the router and the agent service.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: st, Logger: logger}
	if !opts.SkipRedis {
		a.Redis = ConnectRedis(ctx, cfg.Redis, logger)
	}

	vendorOpts, err := cfg.AI.VendorOptions()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vendor options: %w", err)
	}
	defaults, err := cfg.AI.DefaultVendors()
	if err != nil {
		a.Close()
		return nil, err
	}

	routerOpts := []router.Option{
		router.WithLogger(logger),
		router.WithDefaultAgentLabel(cfg.AI.DefaultAgentLabel),
	}
	if opts.Metrics != nil {
		routerOpts = append(routerOpts, router.WithMetrics(opts.Metrics))
	}
	a.Resolver = router.NewResolver(st, logger, defaults...)
	a.Adapters = router.DefaultAdapters(vendorOpts, cfg.AI.AdapterTimeout)
	a.Router = router.New(a.Resolver, a.Adapters, router.NewLedger(st), routerOpts...)

	a.Catalog = agents.NewCatalog(cfg.Agents.Dir, logger)
	if err := a.Catalog.Reload(); err != nil {
		// the core still serves direct calls without agents
		logger.Warn("agent catalog not loaded", "dir", cfg.Agents.Dir, "error", err)
	}
	a.Agents = agents.NewService(a.Catalog, a.Router, logger)

	return a, nil
}

// ApplyConfig swaps in the vendor endpoints and the default vendor order of
// cfg. Nothing changes when cfg is invalid. Database, Redis and server
// settings apply on restart only.
func (a *App) ApplyConfig(cfg *config.Config) error {
	vendorOpts, err := cfg.AI.VendorOptions()
	if err != nil {
		return fmt.Errorf("vendor options: %w", err)
	}
	defaults, err := cfg.AI.DefaultVendors()
	if err != nil {
		return err
	}
	a.Adapters.RegisterDefaults(vendorOpts, cfg.AI.AdapterTimeout)
	a.Resolver.SetDefaults(defaults...)
	a.Logger.Info("ai routing reconfigured", "defaults", defaults, "adapter_timeout", cfg.AI.AdapterTimeout)
	return nil
}

// ConnectRedis returns a client for the first configured address, or nil
// when Redis is not configured or not reachable.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addresses[0],
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable (key cache and limits disabled)", "error", err)
		rdb.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.Addresses[0])
	return rdb
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("close store", "error", err)
	}
}
