package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		ctx := c.Request.Context()

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"route", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := ctxutil.RequestID(ctx); id != "" {
			fields = append(fields, "request_id", id)
		}
		if id := ctxutil.TraceID(ctx); id != "" {
			fields = append(fields, "trace_id", id)
		}
		if uid := ctxutil.UserID(ctx); uid != uuid.Nil {
			fields = append(fields, "user_id", uid.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
