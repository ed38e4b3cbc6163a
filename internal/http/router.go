package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/roadmap-backend/internal/http/handlers"
	httpMW "github.com/yungbote/roadmap-backend/internal/http/middleware"
	"github.com/yungbote/roadmap-backend/internal/observability"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string
	RequestTimeout time.Duration
	Metrics        *observability.Metrics

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware
	TopicHandler   *httpH.TopicHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "roadmap-backend"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.RequestTimeout(cfg.RequestTimeout))

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")

	// Health
	if cfg.HealthHandler != nil {
		api.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	// Public
	if cfg.AuthHandler != nil {
		api.POST("/auth/register", cfg.AuthHandler.Register)
		api.POST("/auth/login", cfg.AuthHandler.Login)
	}
	if cfg.TopicHandler != nil {
		api.GET("/topics/public/roadmaps", cfg.TopicHandler.ListPublicRoadmaps)
	}

	protected := api.Group("")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Auth (protected)
	if cfg.AuthHandler != nil {
		protected.GET("/auth/profile", cfg.AuthHandler.Profile)
		protected.POST("/auth/logout", cfg.AuthHandler.Logout)
	}

	// Topics
	if cfg.TopicHandler != nil {
		protected.GET("/topics/roadmaps", cfg.TopicHandler.ListRoadmaps)
		protected.GET("/topics", cfg.TopicHandler.ListTopics)
		protected.GET("/topics/:id", cfg.TopicHandler.GetTopic)
		protected.GET("/topics/:id/children", cfg.TopicHandler.GetChildren)
		protected.POST("/topics", cfg.TopicHandler.CreateTopic)
		protected.PUT("/topics/:id", cfg.TopicHandler.UpdateTopic)
		protected.DELETE("/topics/:id", cfg.TopicHandler.DeleteTopic)
	}

	return r
}
