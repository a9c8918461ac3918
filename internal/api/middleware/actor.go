package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/civicwatch/alertwatch/internal/consensus"
	"github.com/civicwatch/alertwatch/internal/errors"
	"github.com/civicwatch/alertwatch/internal/identity"
)

// Context keys set by the actor middleware.
const (
	ActorContextKey = "actor_id"
	actorValueKey   = "actor"
)

// DefaultActorHeader carries the acting user's id.
const DefaultActorHeader = "X-Actor-ID"

// NewActorResolver resolves the acting user from header through provider
// and stores it in the echo context. Requests without a known actor are
// rejected with 401.
func NewActorResolver(provider identity.Provider, header string) echo.MiddlewareFunc {
	if header == "" {
		header = DefaultActorHeader
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(header))
			if id == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+header+" header")
			}

			actor, err := provider.GetActor(c.Request().Context(), id)
			if err != nil {
				if errors.Is(err, identity.ErrActorNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown actor")
				}
				return err
			}

			c.Set(ActorContextKey, actor.ID)
			c.Set(actorValueKey, actor)
			return next(c)
		}
	}
}

// ActorFrom returns the actor stored by NewActorResolver.
func ActorFrom(c echo.Context) (consensus.Actor, bool) {
	actor, ok := c.Get(actorValueKey).(consensus.Actor)
	return actor, ok
}
