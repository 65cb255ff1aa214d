package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultRateLimitClients bounds how many client IPs keep a limiter in memory. The least
// recently seen IP loses its limiter first and starts over with a full burst.
const DefaultRateLimitClients = 10000

// CustomLoggerMiddleware logs one structured line per request, tagged with its request id.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("request_id", requestid.Get(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		if status >= http.StatusInternalServerError {
			logger.Error("http request", attrs...)
			return
		}
		logger.Info("http request", attrs...)
	}
}

// RateLimitMiddleware enforces a token bucket per client IP using golang.org/x/time/rate.
//
// c.ClientIP() honours X-Forwarded-For and X-Real-IP according to the engine's trusted
// proxies. Rejected requests get 429 with a Retry-After header.
func RateLimitMiddleware(rps float64, burst, maxClients int, logger *slog.Logger) (gin.HandlerFunc, error) {
	limiters, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter store: %w", err)
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		limiter, ok := limiters.Get(clientIP)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
			// A concurrent first request from the same IP may win the race; keep its limiter.
			if prev, found, _ := limiters.PeekOrAdd(clientIP, limiter); found {
				limiter = prev
			}
		}

		if !limiter.Allow() {
			reservation := limiter.Reserve()
			retryAfter := int(reservation.Delay().Seconds())
			reservation.Cancel()
			if retryAfter < 1 {
				retryAfter = 1
			}

			logger.Debug("rate limit exceeded",
				slog.String("client_ip", clientIP),
				slog.Int("retry_after", retryAfter))

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please retry after the specified delay.",
			})
			return
		}

		c.Next()
	}, nil
}
