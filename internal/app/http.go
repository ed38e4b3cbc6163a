package app

import (
	"context"

	"gorm.io/gorm"

	httpapi "github.com/yungbote/roadmap-backend/internal/http"
	httpH "github.com/yungbote/roadmap-backend/internal/http/handlers"
	httpMW "github.com/yungbote/roadmap-backend/internal/http/middleware"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health *httpH.HealthHandler
	Auth   *httpH.AuthHandler
	Topic  *httpH.TopicHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(healthChecks(db, clients)),
		Auth:   httpH.NewAuthHandler(services.Auth),
		Topic:  httpH.NewTopicHandler(services.Topic),
	}
}

func healthChecks(db *gorm.DB, clients Clients) map[string]httpH.HealthCheck {
	checks := map[string]httpH.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		}
	}
	if clients.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error {
			return clients.Mongo.Ping(ctx, nil)
		}
	}
	return checks
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{Auth: httpMW.NewAuthMiddleware(log, services.Auth)}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, mw Middleware, services Services) *httpapi.Server {
	log.Info("Wiring router...")
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:            log,
		ServiceName:    cfg.OTel.ServiceName,
		TracingEnabled: cfg.OTel.Enabled,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        services.Metrics,
		AuthHandler:    handlers.Auth,
		AuthMiddleware: mw.Auth,
		TopicHandler:   handlers.Topic,
		HealthHandler:  handlers.Health,
	})
}
