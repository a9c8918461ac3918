package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/civicwatch/alertwatch/internal/alerts"
	mw "github.com/civicwatch/alertwatch/internal/api/middleware"
	"github.com/civicwatch/alertwatch/internal/consensus"
)

// CreateAlertRequest is the body of POST /alerts.
type CreateAlertRequest struct {
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Urgency     string   `json:"urgency"`
	Media       []string `json:"media"`
}

// UpdateAlertRequest is the body of PATCH /alerts/:id. Omitted fields are unchanged.
type UpdateAlertRequest struct {
	Reason      *string  `json:"reason"`
	Description *string  `json:"description"`
	Location    *string  `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Urgency     *string  `json:"urgency"`
}

// VoteRequest is the body of POST /alerts/:id/votes.
type VoteRequest struct {
	Confirm *bool `json:"confirm"`
}

// ViewResponse is the reply of POST /alerts/:id/views.
type ViewResponse struct {
	Incremented bool `json:"incremented"`
}

// ListResponse wraps a page of alerts.
type ListResponse struct {
	Alerts []*alerts.Alert `json:"alerts"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

const defaultPageSize = 50

func actorID(ctx echo.Context) string {
	actor, _ := mw.ActorFrom(ctx)
	return actor.ID
}

// bindBody decodes the request body, turning decode failures into validation errors.
func bindBody(ctx echo.Context, dst any) error {
	if err := ctx.Bind(dst); err != nil {
		return &alerts.ValidationError{Fields: map[string]string{"body": "malformed JSON"}}
	}
	return nil
}

// ListAlerts handles GET /api/v1/alerts?state=&author=&limit=&offset=.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	filter := alerts.ListFilter{
		State:    consensus.State(ctx.QueryParam("state")),
		AuthorID: ctx.QueryParam("author"),
		Limit:    defaultPageSize,
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := ctx.QueryParam(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.HandleError(ctx, &alerts.ValidationError{Fields: map[string]string{name: "must be an integer"}})
		}
		*dst = n
	}

	list, err := c.Service.ListAlerts(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, ListResponse{Alerts: list, Limit: filter.Limit, Offset: filter.Offset})
}

// GetAlert handles GET /api/v1/alerts/:id.
func (c *Controller) GetAlert(ctx echo.Context) error {
	alert, err := c.Service.GetAlert(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if alerts.IsDenied(err) {
			return ctx.JSON(http.StatusNotFound, &ErrorResponse{
				Error: msgNotFound, Message: msgNotFound, Code: http.StatusNotFound, CorrelationID: generateCorrelationID(),
			})
		}
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// ListVotes handles GET /api/v1/alerts/:id/votes.
func (c *Controller) ListVotes(ctx echo.Context) error {
	votes, err := c.Service.ListVotes(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, votes)
}

// CreateAlert handles POST /api/v1/alerts.
func (c *Controller) CreateAlert(ctx echo.Context) error {
	var req CreateAlertRequest
	if err := bindBody(ctx, &req); err != nil {
		return c.HandleError(ctx, err)
	}

	alert, err := c.Service.CreateAlert(ctx.Request().Context(), alerts.CreateInput{
		ActorID:     actorID(ctx),
		Reason:      req.Reason,
		Description: req.Description,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Urgency:     req.Urgency,
		Media:       req.Media,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, alert)
}

// Vote handles POST /api/v1/alerts/:id/votes.
func (c *Controller) Vote(ctx echo.Context) error {
	var req VoteRequest
	if err := bindBody(ctx, &req); err != nil {
		return c.HandleError(ctx, err)
	}
	if req.Confirm == nil {
		return c.HandleError(ctx, &alerts.ValidationError{Fields: map[string]string{"confirm": "is required"}})
	}

	alert, err := c.Service.Vote(ctx.Request().Context(), alerts.VoteInput{
		AlertID: ctx.Param("id"),
		ActorID: actorID(ctx),
		Confirm: *req.Confirm,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// Resolve handles POST /api/v1/alerts/:id/resolve.
func (c *Controller) Resolve(ctx echo.Context) error {
	alert, err := c.Service.ChangeStatus(ctx.Request().Context(), alerts.StatusInput{
		AlertID: ctx.Param("id"),
		ActorID: actorID(ctx),
		State:   consensus.StateResolved,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// UpdateAlert handles PATCH /api/v1/alerts/:id.
func (c *Controller) UpdateAlert(ctx echo.Context) error {
	var req UpdateAlertRequest
	if err := bindBody(ctx, &req); err != nil {
		return c.HandleError(ctx, err)
	}

	alert, err := c.Service.UpdateContent(ctx.Request().Context(), alerts.UpdateInput{
		AlertID:     ctx.Param("id"),
		ActorID:     actorID(ctx),
		Reason:      req.Reason,
		Description: req.Description,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Urgency:     req.Urgency,
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// DeleteAlert handles DELETE /api/v1/alerts/:id.
func (c *Controller) DeleteAlert(ctx echo.Context) error {
	deleted, err := c.Service.Delete(ctx.Request().Context(), alerts.DeleteInput{
		AlertID: ctx.Param("id"),
		ActorID: actorID(ctx),
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if !deleted {
		return c.HandleError(ctx, alerts.ErrForbidden)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// RecordView handles POST /api/v1/alerts/:id/views.
func (c *Controller) RecordView(ctx echo.Context) error {
	incremented, err := c.Service.RecordView(ctx.Request().Context(), alerts.ViewInput{
		AlertID: ctx.Param("id"),
		ActorID: actorID(ctx),
	})
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, ViewResponse{Incremented: incremented})
}
