package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/condopay/internal/authorization"
	obscontext "github.com/smallbiznis/condopay/internal/observability/context"
)

// The upstream gateway authenticates the caller and asserts who it is in
// these headers.
const (
	HeaderActorID       = "X-Actor-ID"
	HeaderActorRole     = "X-Actor-Role"
	HeaderCondominiumID = "X-Condominium-ID"

	contextActorKey = "actor"
)

// ActorRequired reads the actor headers and rejects requests without a
// usable identity.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := actorFromHeaders(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, actor)
		ctx := obscontext.WithActor(c.Request.Context(), string(actor.Role), actor.ID.String())
		ctx = obscontext.WithCondominiumID(ctx, actor.CondominiumID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorFromHeaders(c *gin.Context) (authorization.Actor, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderActorID)))
	if err != nil || id == 0 {
		return authorization.Actor{}, ErrUnauthorized
	}
	role, err := authorization.ParseRole(c.GetHeader(HeaderActorRole))
	if err != nil {
		return authorization.Actor{}, ErrUnauthorized
	}

	actor := authorization.Actor{ID: id, Role: role}
	if raw := strings.TrimSpace(c.GetHeader(HeaderCondominiumID)); raw != "" {
		condominiumID, err := snowflake.ParseString(raw)
		if err != nil || condominiumID == 0 {
			return authorization.Actor{}, ErrUnauthorized
		}
		actor.CondominiumID = condominiumID
	}
	return actor, nil
}

func actorFromContext(c *gin.Context) (authorization.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := value.(authorization.Actor)
	return actor, ok
}

// authorizeAction checks an action that is not scoped to a condominium.
func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorize(c, authorization.Request{Object: object, Action: action}); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeCondominiumAction checks an action on the condominium named by
// the :id path parameter.
func (s *Server) authorizeCondominiumAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		condominiumID, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorize(c, authorization.Request{
			CondominiumID: condominiumID,
			Object:        object,
			Action:        action,
		}); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(c *gin.Context, req authorization.Request) error {
	actor, ok := actorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, req)
}
