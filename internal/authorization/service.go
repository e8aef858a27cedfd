package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleCoordinator Role = "coordinator"
	RoleResident    Role = "resident"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleSuperAdmin, RoleCoordinator, RoleResident:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// Actor is the caller as asserted by the upstream gateway. CondominiumID is
// the condominium the actor belongs to; super admins may leave it empty.
type Actor struct {
	ID            snowflake.ID
	Role          Role
	CondominiumID snowflake.ID
}

func (a Actor) Subject() string {
	return "role:" + string(a.Role)
}

// Request describes one access check. ResidentID is set when the object is
// owned by a resident, so residents can be limited to their own records.
type Request struct {
	CondominiumID snowflake.ID
	ResidentID    snowflake.ID
	Object        string
	Action        string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, req Request) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
