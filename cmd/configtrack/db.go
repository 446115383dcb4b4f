package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"configtrack/internal/config"
	"configtrack/internal/store"
	"configtrack/internal/store/postgres"
	redisstore "configtrack/internal/store/redis"
)

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return redisstore.New(client, cfg.Store.CommitTTL.Std(), cfg.Store.SnapshotTTL.Std()), nil
	case "postgres":
		client, err := postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close(ctx)
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
