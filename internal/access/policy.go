package access

import (
	"context"
	"fmt"

	"github.com/sygep/sygep/internal/actors"
	"github.com/sygep/sygep/internal/shared"
)

// PermissionReader abstracts the permission-table lookup for Policy.
type PermissionReader interface {
	Lookup(ctx context.Context, role actors.Role, module Module) (Permission, error)
}

// Policy decides module access for an actor. Admin bypasses the permission
// table; every other role is governed by its (role, module) entry.
type Policy struct {
	perms PermissionReader
}

// NewPolicy constructs a Policy backed by the given permission source.
func NewPolicy(perms PermissionReader) *Policy {
	return &Policy{perms: perms}
}

// CanAccess reports whether the actor may use the module in the given mode.
func (p *Policy) CanAccess(ctx context.Context, actor actors.Actor, module Module, mode Mode) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	perm, err := p.perms.Lookup(ctx, actor.Role, module)
	if err != nil {
		return false, err
	}
	return perm.Allows(mode), nil
}

// Require returns a wrapped ErrForbidden unless the actor may use the module
// in the given mode. Callers invoke it before mutating anything, so a denial
// always leaves entities untouched.
func (p *Policy) Require(ctx context.Context, actor actors.Actor, module Module, mode Mode) error {
	ok, err := p.CanAccess(ctx, actor, module, mode)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("access: %s %s denied for role %s: %w", mode, module, actor.Role, shared.ErrForbidden)
	}
	return nil
}
