package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-client limiter is kept.
const limiterIdleTTL = 10 * time.Minute

// NewRateLimiter allows perSecond sustained requests plus burst per client.
// Clients are keyed by the resolved actor, falling back to the client IP, so
// it must run after NewActorResolver. onReject may be nil.
func NewRateLimiter(perSecond float64, burst int, onReject func()) echo.MiddlewareFunc {
	if burst < 1 {
		burst = 1
	}
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: echomw.DefaultSkipper,
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(
			echomw.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(perSecond),
				Burst:     burst,
				ExpiresIn: limiterIdleTTL,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if id, ok := c.Get(ActorContextKey).(string); ok && id != "" {
				return id, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if onReject != nil {
				onReject()
			}
			c.Response().Header().Set("Retry-After", "1")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
