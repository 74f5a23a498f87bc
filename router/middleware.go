package router

import (
	"net/http"
	"time"

	"LecturerVote/control"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	callerKey       = "uid"
	requestIDHeader = "X-Request-ID"
)

// WithLogging 记录每个请求的耗时，并为请求分配 request id
func WithLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		log.WithFields(log.Fields{
			"request_id":  requestID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      c.ClientIP(),
		}).Info("request completed")
	}
}

// RequireCaller 要求宿主论坛在 header 中注入了用户身份，相当于 ensureLoggedIn
func RequireCaller(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(header)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "login required"})
			return
		}
		setCaller(c, uid)
		c.Next()
	}
}

// OptionalCaller 有身份就带上，没有也放行
func OptionalCaller(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader(header); uid != "" {
			setCaller(c, uid)
		}
		c.Next()
	}
}

func setCaller(c *gin.Context, uid string) {
	c.Set(callerKey, uid)
	c.Request = c.Request.WithContext(control.WithCaller(c.Request.Context(), uid))
}
