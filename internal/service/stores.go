// Package service holds the business rules that sit between the HTTP
// handlers and the repositories: authentication, password reset, role and
// user management, and seeding.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/queue"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
)

// UserStore is the subset of repository.UserRepo the services use.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByResetHash(ctx context.Context, hash string) (*model.User, error)
	List(ctx context.Context, f repository.UserFilter) ([]*model.User, error)
	UpdateProfile(ctx context.Context, id uint64, email, fullName string) error
	SetStatus(ctx context.Context, id uint64, status model.UserStatus) error
	SoftDelete(ctx context.Context, id uint64) error
	SetResetToken(ctx context.Context, id uint64, hash string, exp time.Time) error
	RedeemResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (uint64, error)
}

// RoleStore is the subset of repository.RoleRepo the services use.
type RoleStore interface {
	Create(ctx context.Context, role *model.Role) error
	GetByID(ctx context.Context, id uint64) (*model.Role, error)
	GetByName(ctx context.Context, name string) (*model.Role, error)
	List(ctx context.Context) ([]*model.Role, error)
	Update(ctx context.Context, id uint64, name, description string) error
	Delete(ctx context.Context, id uint64) error
	GrantPermission(ctx context.Context, roleID, permissionID uint64) error
	RevokePermission(ctx context.Context, roleID, permissionID uint64) error
	AssignToUser(ctx context.Context, userID, roleID uint64) error
	RemoveFromUser(ctx context.Context, userID, roleID uint64) error
	RolesOfUser(ctx context.Context, userID uint64) ([]*model.Role, error)
	CreateFirstHolder(ctx context.Context, roleName string, u *model.User) (*model.Role, error)
}

// PermissionStore is the subset of repository.PermissionRepo the services
// use.
type PermissionStore interface {
	EnsureCatalog(ctx context.Context) error
	List(ctx context.Context) ([]repository.PermissionRow, error)
	Get(ctx context.Context, p rbac.Permission) (*repository.PermissionRow, error)
	OfRole(ctx context.Context, roleID uint64) ([]repository.PermissionRow, error)
}

// AuditStore appends audit entries.
type AuditStore interface {
	Append(ctx context.Context, e *model.AuditLog) error
}

// EventPublisher hands domain events to the message broker.
type EventPublisher interface {
	PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error
}

// Auditor writes audit entries on behalf of the principal in ctx. A failed
// append is logged and never fails the request that triggered it, since the
// mutation has already been committed.
type Auditor struct {
	Store AuditStore
	Log   *zap.Logger
}

func NewAuditor(store AuditStore, log *zap.Logger) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{Store: store, Log: log}
}

// Record appends one entry. A nil Auditor is a no-op.
func (a *Auditor) Record(ctx context.Context, action, entityType, entityID string, meta map[string]any) {
	if a == nil || a.Store == nil {
		return
	}
	e := &model.AuditLog{
		ActorUserID: model.ActorID(ctx),
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Metadata:    meta,
	}
	if err := a.Store.Append(ctx, e); err != nil {
		a.Log.Error("audit append failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// MapRepoError converts repository sentinels into typed application errors.
// entity names the resource in not-found messages.
func MapRepoError(err error, entity, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(entity)
	case errors.Is(err, repository.ErrConflict):
		return apperror.Conflict(entity + " already exists")
	case errors.Is(err, repository.ErrInUse):
		return apperror.Conflict(entity + " is referenced by other records")
	case errors.Is(err, repository.ErrInvalidReference):
		return apperror.Validation("referenced record does not exist", nil)
	case errors.Is(err, repository.ErrImmutable):
		return apperror.Conflict("system " + entity + " cannot be modified")
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.Internal(op, err)
}
