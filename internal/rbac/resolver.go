package rbac

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/metrics"
)

// Store loads the permissions reachable from a user's role assignments.
// Implementations return an empty slice, not an error, for a user with no
// roles, and nothing for an account that is not active.
type Store interface {
	PermissionsForUser(ctx context.Context, userID uint64) ([]Permission, error)
	// AccountActive reports whether the user exists, is not soft-deleted and
	// has status ACTIVE.
	AccountActive(ctx context.Context, userID uint64) (bool, error)
}

// ErrInactiveAccount is returned by HasPermission when the session outlived
// its account: the user was deleted or deactivated after logging in.
var ErrInactiveAccount = errors.New("account is not active")

// Resolver answers authorization questions from the role-permission graph.
//
// With godMode set every principal receives the full catalog and every check
// passes. The flag exists to reproduce the legacy bypass and defaults to off.
type Resolver struct {
	store   Store
	godMode bool
	log     *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGodMode turns the universal bypass on or off.
func WithGodMode(on bool) Option {
	return func(r *Resolver) { r.godMode = on }
}

// WithLogger sets the logger used for denied checks and store failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{store: store, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.godMode {
		r.log.Warn("rbac god mode is ON: every authenticated user is granted every permission")
	}
	return r
}

// GodMode reports whether the bypass is active.
func (r *Resolver) GodMode() bool { return r.godMode }

// GetPermissions returns the union of the permissions of every role assigned
// to userID. A user with no roles gets the empty set.
func (r *Resolver) GetPermissions(ctx context.Context, userID uint64) (PermissionSet, error) {
	if r.godMode {
		return NewPermissionSet(Catalog()...), nil
	}
	perms, err := r.store.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load permissions for user %d: %w", userID, err)
	}
	return NewPermissionSet(perms...), nil
}

// HasPermission reports whether userID may perform action on subject. Store
// errors are returned so the caller can answer 500 instead of 403.
//
// The account is checked first, in god mode too, so a deactivated user is
// refused on the next request rather than when the token expires.
func (r *Resolver) HasPermission(ctx context.Context, userID uint64, action Action, subject Subject) (bool, error) {
	active, err := r.store.AccountActive(ctx, userID)
	if err != nil {
		r.log.Error("account lookup failed", zap.Uint64("user_id", userID), zap.Error(err))
		return false, err
	}
	if !active {
		metrics.ObserveDecision(string(subject), string(action), false)
		return false, ErrInactiveAccount
	}
	if r.godMode {
		metrics.ObserveDecision(string(subject), string(action), true)
		return true, nil
	}
	set, err := r.GetPermissions(ctx, userID)
	if err != nil {
		r.log.Error("permission lookup failed", zap.Uint64("user_id", userID), zap.Error(err))
		return false, err
	}
	ok := set.Allows(action, subject)
	metrics.ObserveDecision(string(subject), string(action), ok)
	if !ok {
		r.log.Debug("permission denied",
			zap.Uint64("user_id", userID),
			zap.String("action", string(action)),
			zap.String("subject", string(subject)))
	}
	return ok, nil
}
