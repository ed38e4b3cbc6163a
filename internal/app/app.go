package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/data/db"
	httpapi "github.com/yungbote/roadmap-backend/internal/http"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services

	sql          *db.SQLService
	server       *httpapi.Server
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.LogMode != logMode {
		if relog, err := logger.New(cfg.LogMode); err == nil {
			log.Sync()
			log = relog
		}
	}

	sqlSvc, err := db.NewSQLService(log, cfg.sqlConfig())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init sql: %w", err)
	}
	if err := sqlSvc.AutoMigrateAll(); err != nil {
		_ = sqlSvc.Close()
		log.Sync()
		return nil, fmt.Errorf("sql automigrate: %w", err)
	}
	theDB := sqlSvc.DB()

	ctx := context.Background()
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = sqlSvc.Close()
		log.Sync()
		return nil, err
	}

	reposet, err := wireRepos(ctx, theDB, log, cfg, clients)
	if err != nil {
		clients.Close(ctx, log)
		_ = sqlSvc.Close()
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(theDB, log, cfg, reposet, clients)
	handlerset := wireHandlers(log, theDB, clients, serviceset)
	middleware := wireMiddleware(log, serviceset)
	server := wireServer(log, cfg, handlerset, middleware, serviceset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   server.Engine,
		Cfg:      cfg,
		Clients:  clients,
		Repos:    reposet,
		Services: serviceset,
		sql:      sqlSvc,
		server:   server,
	}, nil
}

// Start launches tracing and the background metric collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: a.Cfg.OTel.ServiceName,
		Environment: a.Cfg.OTel.Environment,
		Enabled:     a.Cfg.OTel.Enabled,
		Endpoint:    a.Cfg.OTel.Endpoint,
		Headers:     observability.ParseOTLPHeaders(a.Cfg.OTel.Headers),
		Insecure:    a.Cfg.OTel.Insecure,
		SampleRatio: a.Cfg.OTel.SampleRatio,
	})

	if m := a.Services.Metrics; m != nil {
		m.StartDBCollector(ctx, a.Log, a.DB, a.Cfg.Metrics.CollectInterval)
		if a.Clients.Redis != nil {
			m.StartRedisCollector(ctx, a.Log, a.Clients.Redis, a.Cfg.Metrics.CollectInterval)
		}
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.server.Run(addr)
}

// Shutdown stops accepting requests and drains in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx := context.Background()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Clients.Close(ctx, a.Log)
	if a.sql != nil {
		if err := a.sql.Close(); err != nil {
			a.Log.Warn("sql close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
