package checkpoint

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentgraph/config"
)

// NewStoreFromConfig builds the checkpoint store selected by the
// configuration, connecting whatever backing client it needs. The returned
// close function releases those connections; it is non-nil even for the
// memory backend.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func(context.Context) error { return nil }

	switch cfg.Checkpoint.Backend {
	case "memory":
		return NewMemoryStore(WithMaxPerRun(cfg.Checkpoint.MaxPerRun)), noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store := NewRedisStore(client,
			WithRedisMaxPerRun(cfg.Checkpoint.MaxPerRun),
			WithRedisTTL(cfg.Checkpoint.TTL),
			WithRedisLogger(logger),
		)
		return store, func(context.Context) error { return client.Close() }, nil

	case "sql":
		if cfg.Database.Driver != "sqlite" {
			// Other drivers require importing their gorm dialector; open the
			// *gorm.DB yourself and use NewGormStore directly.
			return nil, nil, fmt.Errorf("sql backend supports the sqlite driver here, got %q", cfg.Database.Driver)
		}
		db, err := gorm.Open(sqlite.Open(cfg.Database.DSN()), &gorm.Config{
			Logger: gormlogger.Discard,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		store, err := NewGormStore(db,
			WithGormMaxPerRun(cfg.Checkpoint.MaxPerRun),
			WithGormLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return store, closeFn, nil

	case "mongo":
		client, err := mongo.Connect(mongooptions.Client().
			ApplyURI(cfg.Mongo.URI).
			SetTimeout(cfg.Mongo.Timeout))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		collection := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
		store := NewMongoStore(collection,
			WithMongoMaxPerRun(cfg.Checkpoint.MaxPerRun),
			WithMongoLogger(logger),
		)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return store, client.Disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}
