package api

import (
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/civicwatch/alertwatch/internal/alerts"
	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/logger"
)

// User-facing messages.
const (
	msgDenied        = "alert not found or access denied"
	msgNotFound      = "alert not found"
	msgAlreadyVoted  = "already voted"
	msgVotingClosed  = "voting is closed for this alert"
	msgInvalidInput  = "invalid input"
	msgUnknownActor  = "unknown actor"
	msgInternalError = "internal error"
	msgUnavailable   = "request cancelled"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error         string            `json:"error"`
	Message       string            `json:"message"`
	Code          int               `json:"code"`
	Fields        map[string]string `json:"fields,omitempty"`
	CorrelationID string            `json:"correlation_id"`
}

// generateCorrelationID creates an 8 character id for matching a response to its log line.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError maps a service error to its HTTP status and writes the reply.
// Denials of mutations share one message so callers cannot test for
// existence; storage failures are logged and reported without details.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	code, message := classify(err)
	resp := &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}

	var ve *alerts.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Fields
		resp.Error = ve.Error()
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("method", ctx.Request().Method),
		logger.String("path", ctx.Path()),
		logger.Int("code", code),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
		reportError(err)
	} else {
		c.log.Debug("API request refused", fields...)
	}

	return ctx.JSON(code, resp)
}

func classify(err error) (int, string) {
	switch {
	case alerts.IsValidation(err):
		return http.StatusBadRequest, msgInvalidInput
	case errors.Is(err, alerts.ErrActorNotFound):
		return http.StatusUnauthorized, msgUnknownActor
	case errors.Is(err, alerts.ErrDuplicateVote):
		return http.StatusConflict, msgAlreadyVoted
	case errors.Is(err, alerts.ErrVotingClosed):
		return http.StatusConflict, msgVotingClosed
	case alerts.IsDenied(err):
		return http.StatusNotFound, msgDenied
	case errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusServiceUnavailable, msgUnavailable
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}

// reportError forwards err to the telemetry reporter, which skips errors already reported.
func reportError(err error) {
	reporter := errors.GetTelemetryReporter()
	if reporter == nil || !reporter.IsEnabled() {
		return
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		reporter.ReportError(ee)
	}
}
