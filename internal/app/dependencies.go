package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Dependencies holds the infrastructure clients shared by the API and worker processes.
type Dependencies struct {
	Pool   *pgxpool.Pool
	Store  *db.Store
	Redis  *redis.Client
	Tasks  *asynq.Client
	Logger zerolog.Logger
}

// Options tunes how Open instruments the clients it creates.
type Options struct {
	// ApplicationName is reported to Postgres as application_name.
	ApplicationName string
	RedisMetrics    bool
}

// Open connects to Postgres and Redis, verifies both with a ping and opens an
// asynq client on the same Redis instance.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if opts.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}
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
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if opts.RedisMetrics {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	taskOpt, err := TaskRedisOpt(cfg)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	return &Dependencies{
		Pool:   pool,
		Store:  db.NewStore(pool),
		Redis:  redisClient,
		Tasks:  asynq.NewClient(taskOpt),
		Logger: logger,
	}, nil
}

// TaskRedisOpt derives the asynq connection options from the Redis URL.
func TaskRedisOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse task queue redis url: %w", err)
	}
	return opt, nil
}

// Close releases every client. Errors are logged, not returned.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
