package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/data/mongostore"
	"github.com/yungbote/roadmap-backend/internal/data/repos"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type Repos struct {
	User  repos.UserRepo
	Nodes repos.NodeStore
	// Runner wraps node writes. Only the SQL store shares a gorm transaction.
	Runner aggregates.TxRunner
}

func wireRepos(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, clients Clients) (Repos, error) {
	log.Info("Wiring repos...", "node_store", cfg.NodeStore)
	out := Repos{User: repos.NewUserRepo(db, log)}

	switch cfg.NodeStore {
	case NodeStoreSQL:
		out.Nodes = repos.NewNodeRepo(db, log)
		out.Runner = aggregates.NewGormTxRunner(db)
	case NodeStoreMongo:
		if clients.Mongo == nil {
			return Repos{}, fmt.Errorf("mongo node store requires a mongo client")
		}
		store := mongostore.NewNodeStore(clients.Mongo.Database(cfg.Mongo.Database), log)
		if err := store.EnsureIndexes(ctx); err != nil {
			return Repos{}, fmt.Errorf("mongo indexes: %w", err)
		}
		out.Nodes = store
		out.Runner = aggregates.NewPassthroughTxRunner()
	case NodeStoreMemory:
		log.Warn("using in-memory node store; nodes are lost on restart")
		out.Nodes = repos.NewMemoryNodeStore()
		out.Runner = aggregates.NewPassthroughTxRunner()
	default:
		return Repos{}, fmt.Errorf("unknown node store %q", cfg.NodeStore)
	}
	return out, nil
}
