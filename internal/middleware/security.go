// Package middleware holds the gin middleware chain of the HTTP API.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/medifusion-server/internal/domain"
)

// Context and header keys
const (
	CorrelationIDKey    = "correlation_id"
	CorrelationIDHeader = "X-Correlation-ID"
)

// maxTrackedClients bounds the per-client limiter cache.
const maxTrackedClients = 4096

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Header("Cache-Control", "no-store")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// CorrelationID adds a unique correlation ID to each request for audit trails
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// RequestTimeout bounds the request context. Handlers observe the deadline through
// c.Request.Context(); a zero timeout disables it.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimit applies a token bucket per client IP. A non-positive limit disables it.
func RateLimit(limit float64, burst int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	// lru.New only fails for a non-positive size
	clients, _ := lru.New[string, *rate.Limiter](maxTrackedClients)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		limiter, ok := clients.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(limit), burst)
			clients.Add(ip, limiter)
		}

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewServiceError(
				domain.ErrRateLimit,
				"Too many requests",
				"",
				c.GetString(CorrelationIDKey),
			))
			return
		}

		c.Next()
	}
}

// AuditLogger logs one structured entry per request.
func AuditLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(CorrelationIDKey),
			"method":         c.Request.Method,
			"path":           path,
			"status":         status,
			"latency":        time.Since(start).String(),
			"client_ip":      c.ClientIP(),
			"user_agent":     c.Request.UserAgent(),
			"response_size":  c.Writer.Size(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}
