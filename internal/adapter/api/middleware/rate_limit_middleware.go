package middleware

import (
	"github.com/labstack/echo/v4"

	"lostpaws/internal/infrastructure/ratelimit"
	"lostpaws/pkg/errors"
	"lostpaws/pkg/logger"
	"lostpaws/pkg/response"
)

// RateLimitMiddleware throttles user-driven write paths per authenticated
// caller. Runs after Authenticate; unauthenticated routes fall back to the
// client IP.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
}

func NewRateLimitMiddleware(limiter *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

func (m *RateLimitMiddleware) Limit(action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, _ := c.Get("uid").(string)
			if caller == "" {
				caller = c.RealIP()
			}

			allowed, retryAfter := m.limiter.Allow(caller, action)
			if !allowed {
				logger.Warn("ratelimit: %s throttled on %s", caller, action)
				return response.Error(c, errors.RateLimited(retryAfter))
			}
			return next(c)
		}
	}
}
