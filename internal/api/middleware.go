package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

const requestIDHeader = "X-Request-ID"

// requestID 为每个请求分配（或沿用上游传入的）request id。
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("duration", time.Since(start)),
			logx.String("request_id", c.GetString("request_id")),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("HTTP 请求", fields...)
		case path == "/healthz" || path == "/metrics":
			log.Debug("HTTP 请求", fields...)
		default:
			log.Info("HTTP 请求", fields...)
		}
	}
}

func recovery(log logx.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("HTTP handler panic", logx.Any("panic", rec), logx.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal_error", "内部错误"))
	})
}
