package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/yungbote/roadmap-backend/internal/clients/redis"
	"github.com/yungbote/roadmap-backend/internal/data/mongostore"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// Clients holds optional external connections. A nil field means the
// dependency is not configured.
type Clients struct {
	Redis *goredis.Client
	Mongo *mongo.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
	}

	if cfg.NodeStore == NodeStoreMongo {
		mc, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			out.Close(ctx, log)
			return Clients{}, fmt.Errorf("init mongo: %w", err)
		}
		out.Mongo = mc
	}
	return out, nil
}

func (c Clients) Close(ctx context.Context, log *logger.Logger) {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Warn("mongo disconnect failed", "error", err)
		}
	}
}
