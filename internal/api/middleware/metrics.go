package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/civicwatch/alertwatch/internal/observability/metrics"
)

// NewMetrics records request counts and latency by route template.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			m.RequestStarted()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordRequest(c.Request().Method, path, status, time.Since(start))
			if status >= 400 {
				m.RecordError(c.Request().Method, path, errorType(status))
			}
			return err
		}
	}
}

func errorType(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "validation"
	case status == http.StatusUnauthorized:
		return "auth"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "system"
	default:
		return "client"
	}
}
