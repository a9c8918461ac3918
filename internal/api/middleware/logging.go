// Package middleware provides HTTP middleware components for the alertwatch API server.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/civicwatch/alertwatch/internal/logger"
)

// NewRequestLogger creates a request logging middleware on top of echo's
// RequestLoggerWithConfig. Server errors log at Warn, everything else at Debug.
func NewRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return NewRequestLoggerWithSkipper(log, nil)
}

// NewRequestLoggerWithSkipper creates a request logging middleware with a custom skipper.
func NewRequestLoggerWithSkipper(log logger.Logger, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skipper,
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if id, ok := c.Get(ActorContextKey).(string); ok {
				fields = append(fields, logger.String("actor_id", id))
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			if v.Status >= 500 {
				log.Warn("request", fields...)
			} else {
				log.Debug("request", fields...)
			}
			return nil
		},
	})
}
