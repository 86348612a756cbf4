// Package app wires configuration, storage and pipeline components for the
// command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"csgo-arbitrage/internal/api"
	"csgo-arbitrage/internal/catalog"
	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/database"
	"csgo-arbitrage/internal/depth"
	"csgo-arbitrage/internal/fetchlog"
	"csgo-arbitrage/internal/logger"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/normalize"
	"csgo-arbitrage/internal/pipeline"
	"csgo-arbitrage/internal/quant"
	"csgo-arbitrage/internal/ratelimit"
	"csgo-arbitrage/internal/source"
	"csgo-arbitrage/internal/store"
)

type Options struct {
	// DryRun keeps everything in memory; no database is opened.
	DryRun bool
	// Migrate runs AutoMigrate after connecting.
	Migrate bool
}

type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *gorm.DB
	Store  store.Store
	Redis  *redis.Client
}

// Open builds the logger and the store. A database failure is returned and
// should be treated as fatal by the caller.
func Open(cfg *config.Config, opts Options) (*App, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Config: cfg, Log: log}

	if opts.DryRun {
		log.Warn("dry run: using in-memory store")
		a.Store = store.NewMemory()
		return a, nil
	}

	db, err := database.Initialize(cfg.DB, log)
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := database.Migrate(db, log); err != nil {
			return nil, err
		}
	}
	a.DB = db
	a.Store = store.NewGormStore(db)
	return a, nil
}

// RedisClient connects lazily; it is shared by the limiter and the event bus.
func (a *App) RedisClient(ctx context.Context) (*redis.Client, error) {
	if a.Redis != nil {
		return a.Redis, nil
	}
	rdb, err := ratelimit.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb
	return rdb, nil
}

// Limiter returns the configured admission backend.
func (a *App) Limiter(ctx context.Context) (ratelimit.Admitter, error) {
	limits := ratelimit.LimitsFromConfig(a.Config.RateLimit)
	switch strings.ToLower(a.Config.RateLimit.Backend) {
	case "", "memory":
		return ratelimit.New(limits, ratelimit.WithCooldownMultiplier(a.Config.RateLimit.CooldownMultiplier)), nil
	case "redis":
		rdb, err := a.RedisClient(ctx)
		if err != nil {
			return nil, err
		}
		return ratelimit.NewRedisLimiter(rdb, limits, a.Config.RateLimit.CooldownMultiplier), nil
	default:
		return nil, fmt.Errorf("unknown ratelimit backend %q", a.Config.RateLimit.Backend)
	}
}

// EventBus returns the redis relay when redis.events_channel is set.
func (a *App) EventBus(ctx context.Context) (*api.RedisBus, error) {
	if a.Config.Redis.EventsChannel == "" {
		return nil, nil
	}
	rdb, err := a.RedisClient(ctx)
	if err != nil {
		return nil, err
	}
	return api.NewRedisBus(rdb, a.Config.Redis.EventsChannel, a.Log), nil
}

// SeedItems adds "NAME[:GOODS_ID]" specs to the catalog. A dry run starts
// with an empty in-memory store, so this is how it gets items to poll.
func (a *App) SeedItems(ctx context.Context, specs []string) ([]models.Item, error) {
	items, err := catalog.New(a.Store, a.Log).Seed(ctx, specs, a.Config.Steam.AppID)
	if err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	return items, nil
}

// Scheduler assembles the full collection pipeline.
func (a *App) Scheduler(ctx context.Context, publisher pipeline.Publisher, opts ...pipeline.Option) (*pipeline.Scheduler, error) {
	cfg := a.Config
	limiter, err := a.Limiter(ctx)
	if err != nil {
		return nil, err
	}
	model, err := quant.ModelByName(cfg.Evaluator.Model)
	if err != nil {
		return nil, err
	}

	rec := fetchlog.New(a.Store, a.Log)
	steam := source.NewSteamClient(cfg.Steam, limiter, cfg.RateLimit.MaxWait, rec)
	buff := source.NewBuffClient(cfg.Buff, limiter, cfg.RateLimit.MaxWait, rec)

	deps := pipeline.Deps{
		Catalog:    catalog.New(a.Store, a.Log, catalog.WithTracked(cfg.Scheduler.Items)),
		Buff:       buff,
		Steam:      steam,
		Normalizer: normalize.New(a.Store, steam.CurrencyID(), buff.Currency(), a.Log),
		Evaluator:  quant.NewEvaluator(a.Store, quant.StrategyConfigFrom(cfg.Evaluator), model, a.Log),
		Publisher:  publisher,
	}
	if cfg.Scheduler.DiscoverGoodsIDs {
		deps.Finder = buff
	}
	if cfg.Scheduler.RecordDepth {
		deps.Depth = depth.NewRecorder(a.Store, 100, a.Log)
	}

	base := []pipeline.Option{
		pipeline.WithLogger(a.Log),
		pipeline.WithRetry(pipeline.RetryFromConfig(cfg.Scheduler)),
		pipeline.WithWorkers(cfg.Scheduler.Workers),
	}
	return pipeline.New(deps, append(base, opts...)...), nil
}

// Close releases connections and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	_ = a.Log.Sync()
	return errors.Join(errs...)
}
