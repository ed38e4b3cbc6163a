package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/clients/redis"
	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/modules/progress"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/locks"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"github.com/yungbote/roadmap-backend/internal/services"
)

type Services struct {
	Metrics   *observability.Metrics
	Aggregate domainagg.TopicAggregate
	Auth      services.AuthService
	Topic     services.TopicService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")
	metrics := observability.Init(cfg.Metrics.Enabled, log)

	aggregator := progress.NewAggregator(reposet.Nodes)
	ctrl := progress.NewController(progress.ControllerDeps{
		Store:      reposet.Nodes,
		Aggregator: aggregator,
		Log:        log,
		Observer:   cascadeObserver(metrics),
	})

	var locker aggregates.RootLocker = locks.NewKeyed()
	if clients.Redis != nil {
		locker = redis.NewRootLock(clients.Redis, cfg.Redis.RootLockTTL, log)
		log.Info("using redis root lock", "ttl", cfg.Redis.RootLockTTL)
	}

	topicAgg := aggregates.NewTopicAggregate(aggregates.TopicAggregateDeps{
		Base: aggregates.BaseDeps{
			DB:     db,
			Log:    log,
			Runner: reposet.Runner,
			Hooks:  aggregates.NewObservabilityHooks(metrics),
		},
		Nodes:          reposet.Nodes,
		Aggregator:     aggregator,
		Cascade:        ctrl,
		Locker:         locker,
		MaxRetries:     cfg.aggregateRetries(),
		EagerRecompute: cfg.Mutation.EagerRecompute,
		DeleteMode:     aggregates.DeleteMode(cfg.Mutation.DeleteMode),
	})

	return Services{
		Metrics:   metrics,
		Aggregate: topicAgg,
		Auth:      services.NewAuthService(log, reposet.User, cfg.JWTSecretKey, cfg.AccessTokenTTL),
		Topic:     services.NewTopicService(log, reposet.Nodes, reposet.User, topicAgg),
	}
}

// cascadeObserver keeps a nil *Metrics from becoming a non-nil interface.
func cascadeObserver(m *observability.Metrics) progress.Observer {
	if m == nil {
		return nil
	}
	return m
}
