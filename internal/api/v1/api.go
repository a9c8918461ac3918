// Package api implements the version 1 JSON API of alertwatch.
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/civicwatch/alertwatch/internal/alerts"
	mw "github.com/civicwatch/alertwatch/internal/api/middleware"
	"github.com/civicwatch/alertwatch/internal/identity"
	"github.com/civicwatch/alertwatch/internal/logger"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo    *echo.Echo
	Group   *echo.Group
	Service *alerts.Service

	identity    identity.Provider
	actorHeader string
	limiter     echo.MiddlewareFunc
	log         logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithActorHeader sets the header carrying the acting user's id.
func WithActorHeader(header string) Option {
	return func(c *Controller) { c.actorHeader = header }
}

// WithRateLimiter limits mutating requests per actor, see middleware.NewRateLimiter.
func WithRateLimiter(rl echo.MiddlewareFunc) Option {
	return func(c *Controller) { c.limiter = rl }
}

// WithLogger sets the logger; the controller logs under the "api" module.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New registers the /api/v1 routes on e.
func New(e *echo.Echo, svc *alerts.Service, provider identity.Provider, opts ...Option) *Controller {
	c := &Controller{
		Echo:        e,
		Service:     svc,
		identity:    provider,
		actorHeader: mw.DefaultActorHeader,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Discard()
	}
	c.log = c.log.Module("api")

	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	// Public reads.
	c.Group.GET("/alerts", c.ListAlerts)
	c.Group.GET("/alerts/:id", c.GetAlert)
	c.Group.GET("/alerts/:id/votes", c.ListVotes)

	// Everything else needs a known actor.
	writes := []echo.MiddlewareFunc{mw.NewActorResolver(c.identity, c.actorHeader)}
	if c.limiter != nil {
		writes = append(writes, c.limiter)
	}
	g := c.Group.Group("", writes...)
	g.POST("/alerts", c.CreateAlert)
	g.PATCH("/alerts/:id", c.UpdateAlert)
	g.DELETE("/alerts/:id", c.DeleteAlert)
	g.POST("/alerts/:id/votes", c.Vote)
	g.POST("/alerts/:id/resolve", c.Resolve)
	g.POST("/alerts/:id/views", c.RecordView)
}
