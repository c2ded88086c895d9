package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/utils"
)

// UserService provisions accounts and manages their status and roles.
type UserService struct {
	Users      UserStore
	Roles      RoleStore
	Resolver   *rbac.Resolver
	Audit      *Auditor
	Log        *zap.Logger
	BcryptCost int
}

func NewUserService(users UserStore, roles RoleStore, resolver *rbac.Resolver, audit *Auditor, log *zap.Logger, bcryptCost int) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{Users: users, Roles: roles, Resolver: resolver, Audit: audit, Log: log, BcryptCost: bcryptCost}
}

func (s *UserService) List(ctx context.Context, f repository.UserFilter) ([]*model.User, error) {
	users, err := s.Users.List(ctx, f)
	if err != nil {
		return nil, apperror.Internal("list users", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Get returns a user with roles loaded.
func (s *UserService) Get(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, MapRepoError(err, "user", "load user")
	}
	roles, err := s.Roles.RolesOfUser(ctx, id)
	if err != nil {
		return nil, apperror.Internal("load roles", err)
	}
	u.Roles = derefRoles(roles)
	return u, nil
}

// NewUser is the input to Create.
type NewUser struct {
	Email      string
	FullName   string
	Password   string
	ExternalID string
	RoleIDs    []uint64
}

// Create provisions an active account and assigns the given roles.
func (s *UserService) Create(ctx context.Context, in NewUser) (*model.User, error) {
	u := &model.User{
		Email:    repository.NormalizeEmail(in.Email),
		FullName: strings.TrimSpace(in.FullName),
		Status:   model.UserActive,
	}
	if ext := strings.TrimSpace(in.ExternalID); ext != "" {
		u.ExternalID = &ext
	}
	if in.Password != "" {
		hash, err := utils.HashPassword(in.Password, s.BcryptCost)
		if err != nil {
			return nil, apperror.Internal("hash password", err)
		}
		u.PasswordHash = hash
	}
	for _, rid := range in.RoleIDs {
		if _, err := s.Roles.GetByID(ctx, rid); err != nil {
			return nil, MapRepoError(err, "role", "load role")
		}
	}
	if err := s.Users.Create(ctx, u); err != nil {
		return nil, MapRepoError(err, "user", "create user")
	}
	for _, rid := range in.RoleIDs {
		if err := s.Roles.AssignToUser(ctx, u.ID, rid); err != nil {
			return nil, MapRepoError(err, "role", "assign role")
		}
	}
	s.Audit.Record(ctx, "user.create", "user", idString(u.ID), map[string]any{"email": u.Email})
	return s.Get(ctx, u.ID)
}

// UpdateProfile changes email and full name.
func (s *UserService) UpdateProfile(ctx context.Context, id uint64, email, fullName string) (*model.User, error) {
	if err := s.Users.UpdateProfile(ctx, id, email, strings.TrimSpace(fullName)); err != nil {
		return nil, MapRepoError(err, "user", "update user")
	}
	s.Audit.Record(ctx, "user.update", "user", idString(id), map[string]any{"email": repository.NormalizeEmail(email)})
	return s.Get(ctx, id)
}

// SetStatus activates or deactivates an account.
func (s *UserService) SetStatus(ctx context.Context, id uint64, status model.UserStatus) (*model.User, error) {
	if err := s.Users.SetStatus(ctx, id, status); err != nil {
		return nil, MapRepoError(err, "user", "set status")
	}
	s.Audit.Record(ctx, "user.status", "user", idString(id), map[string]any{"status": string(status)})
	return s.Get(ctx, id)
}

// Delete soft-deletes an account. Users cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	if p := model.PrincipalFrom(ctx); p != nil && p.UserID == id {
		return apperror.Validation("you cannot delete your own account", nil)
	}
	if err := s.Users.SoftDelete(ctx, id); err != nil {
		return MapRepoError(err, "user", "delete user")
	}
	s.Audit.Record(ctx, "user.delete", "user", idString(id), nil)
	return nil
}

// AssignRole gives a role to a user. Assigning a held role is a no-op.
func (s *UserService) AssignRole(ctx context.Context, userID, roleID uint64) (*model.User, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.Roles.GetByID(ctx, roleID); err != nil {
		return nil, MapRepoError(err, "role", "load role")
	}
	if err := s.Roles.AssignToUser(ctx, userID, roleID); err != nil {
		return nil, MapRepoError(err, "role", "assign role")
	}
	s.Audit.Record(ctx, "user.role_assign", "user", idString(userID), map[string]any{"role_id": roleID})
	return s.Get(ctx, userID)
}

// RemoveRole takes a role away from a user.
func (s *UserService) RemoveRole(ctx context.Context, userID, roleID uint64) (*model.User, error) {
	if err := s.Roles.RemoveFromUser(ctx, userID, roleID); err != nil {
		return nil, MapRepoError(err, "role assignment", "remove role")
	}
	s.Audit.Record(ctx, "user.role_remove", "user", idString(userID), map[string]any{"role_id": roleID})
	return s.Get(ctx, userID)
}

// Permissions returns the effective permissions of a user.
func (s *UserService) Permissions(ctx context.Context, id uint64) ([]rbac.Permission, error) {
	if _, err := s.Users.GetByID(ctx, id); err != nil {
		return nil, MapRepoError(err, "user", "load user")
	}
	set, err := s.Resolver.GetPermissions(ctx, id)
	if err != nil {
		return nil, apperror.Internal("load permissions", err)
	}
	return set.Sorted(), nil
}
