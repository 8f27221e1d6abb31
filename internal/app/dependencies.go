// Package app assembles the shared infrastructure both binaries hang off:
// the database pool, Redis, the task queue and the rate limiter store.
package app

import (
	"context"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-dansa/internal/config"
	"github.com/noah-isme/backend-dansa/internal/obs"
)

// Dependencies holds the infrastructure shared across modules.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	DB           *pgxpool.Pool
	Redis        *redis.Client
	Validator    *validator.Validate
	LimiterStore limiter.Store
	TaskClient   *asynq.Client
}

// Options tweaks what Build wires up.
type Options struct {
	// InstrumentRedis attaches otel tracing and metrics to the Redis client.
	InstrumentRedis bool
	// ApplicationName is reported to Postgres for connection attribution.
	ApplicationName string
}

// Build connects to Postgres and Redis and constructs the shared pieces.
// Callers own Close.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	appName := opts.ApplicationName
	if appName == "" {
		appName = "dansa-api"
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if opts.InstrumentRedis {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
		Prefix: "limiter",
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("limiter store: %w", err)
	}

	return &Dependencies{
		Config:       cfg,
		Logger:       logger,
		DB:           pool,
		Redis:        redisClient,
		Validator:    validator.New(),
		LimiterStore: limiterStore,
		TaskClient:   asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}),
	}, nil
}

// Close releases every connection Build opened.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// AuthLimiter builds the per-client limiter applied to credential endpoints.
func (d *Dependencies) AuthLimiter() *limiter.Limiter {
	rate := limiter.Rate{Period: time.Minute, Limit: int64(d.Config.AuthRateLimitPerMin)}
	return limiter.New(d.LimiterStore, rate)
}
