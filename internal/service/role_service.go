package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
)

// ErrSystemRole is returned for any attempt to change or delete a system
// role.
var ErrSystemRole = apperror.Conflict("system roles cannot be modified")

// RoleService manages roles and their permission grants.
type RoleService struct {
	Roles RoleStore
	Perms PermissionStore
	Audit *Auditor
	Log   *zap.Logger
}

func NewRoleService(roles RoleStore, perms PermissionStore, audit *Auditor, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{Roles: roles, Perms: perms, Audit: audit, Log: log}
}

// RoleDetail is a role with its granted permissions.
type RoleDetail struct {
	*model.Role
	Permissions []repository.PermissionRow `json:"permissions"`
}

func (s *RoleService) List(ctx context.Context) ([]*model.Role, error) {
	roles, err := s.Roles.List(ctx)
	if err != nil {
		return nil, apperror.Internal("list roles", err)
	}
	return roles, nil
}

func (s *RoleService) Get(ctx context.Context, id uint64) (*RoleDetail, error) {
	role, err := s.Roles.GetByID(ctx, id)
	if err != nil {
		return nil, MapRepoError(err, "role", "load role")
	}
	perms, err := s.Perms.OfRole(ctx, id)
	if err != nil {
		return nil, apperror.Internal("load role permissions", err)
	}
	if perms == nil {
		perms = []repository.PermissionRow{}
	}
	return &RoleDetail{Role: role, Permissions: perms}, nil
}

// Create adds a non-system role. Names are unique; of two concurrent
// requests for the same name exactly one succeeds and the other gets a
// conflict.
func (s *RoleService) Create(ctx context.Context, name, description string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Field("name", "required")
	}
	role := &model.Role{Name: name, Description: strings.TrimSpace(description)}
	if err := s.Roles.Create(ctx, role); err != nil {
		return nil, MapRepoError(err, "role", "create role")
	}
	s.Audit.Record(ctx, "role.create", "role", idString(role.ID), map[string]any{"name": role.Name})
	return role, nil
}

// Update renames a role. System roles are rejected before any write.
func (s *RoleService) Update(ctx context.Context, id uint64, name, description string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Field("name", "required")
	}
	if _, err := s.mutable(ctx, id); err != nil {
		return nil, err
	}
	if err := s.Roles.Update(ctx, id, name, strings.TrimSpace(description)); err != nil {
		return nil, s.mapErr(err, "update role")
	}
	role, err := s.Roles.GetByID(ctx, id)
	if err != nil {
		return nil, MapRepoError(err, "role", "reload role")
	}
	s.Audit.Record(ctx, "role.update", "role", idString(id), map[string]any{"name": role.Name})
	return role, nil
}

// Delete removes a non-system role and its assignments.
func (s *RoleService) Delete(ctx context.Context, id uint64) error {
	role, err := s.mutable(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Roles.Delete(ctx, id); err != nil {
		return s.mapErr(err, "delete role")
	}
	s.Audit.Record(ctx, "role.delete", "role", idString(id), map[string]any{"name": role.Name})
	return nil
}

// AssignPermission grants (action, subject) to a role.
func (s *RoleService) AssignPermission(ctx context.Context, roleID uint64, action, subject string) (*RoleDetail, error) {
	return s.changeGrant(ctx, roleID, action, subject, true)
}

// RevokePermission withdraws (action, subject) from a role.
func (s *RoleService) RevokePermission(ctx context.Context, roleID uint64, action, subject string) (*RoleDetail, error) {
	return s.changeGrant(ctx, roleID, action, subject, false)
}

func (s *RoleService) changeGrant(ctx context.Context, roleID uint64, action, subject string, grant bool) (*RoleDetail, error) {
	p, err := ParsePermission(action, subject)
	if err != nil {
		return nil, err
	}
	if _, err := s.mutable(ctx, roleID); err != nil {
		return nil, err
	}
	row, err := s.Perms.Get(ctx, p)
	if err != nil {
		return nil, MapRepoError(err, "permission", "load permission")
	}
	verb := "role.permission_revoke"
	if grant {
		verb = "role.permission_grant"
		err = s.Roles.GrantPermission(ctx, roleID, row.ID)
	} else {
		err = s.Roles.RevokePermission(ctx, roleID, row.ID)
	}
	if err != nil {
		return nil, MapRepoError(err, "role", verb)
	}
	s.Audit.Record(ctx, verb, "role", idString(roleID), map[string]any{
		"action":  string(p.Action),
		"subject": string(p.Subject),
	})
	return s.Get(ctx, roleID)
}

// mutable loads a role and rejects system roles.
func (s *RoleService) mutable(ctx context.Context, id uint64) (*model.Role, error) {
	role, err := s.Roles.GetByID(ctx, id)
	if err != nil {
		return nil, MapRepoError(err, "role", "load role")
	}
	if role.IsSystem {
		return nil, ErrSystemRole
	}
	return role, nil
}

func (s *RoleService) mapErr(err error, op string) error {
	if errors.Is(err, repository.ErrImmutable) {
		return ErrSystemRole
	}
	return MapRepoError(err, "role", op)
}

// ParsePermission validates a pair against the catalog.
func ParsePermission(action, subject string) (rbac.Permission, error) {
	fields := map[string]string{}
	a, okA := rbac.ParseAction(action)
	if !okA {
		fields["action"] = "unknown action"
	}
	sub, okS := rbac.ParseSubject(subject)
	if !okS {
		fields["subject"] = "unknown subject"
	}
	if len(fields) > 0 {
		return rbac.Permission{}, apperror.Validation("invalid permission", fields)
	}
	p := rbac.Permission{Action: a, Subject: sub}
	if !p.Valid() {
		return rbac.Permission{}, apperror.Validation("invalid permission", map[string]string{
			"action": "ALL is only valid together with subject ALL",
		})
	}
	return p, nil
}

func idString(id uint64) string { return strconv.FormatUint(id, 10) }
