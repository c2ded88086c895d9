package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/queue"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
)

// memState is an in-memory stand-in for the identity tables. Each fake
// store below is a view over it, mirroring the unique indexes of the real
// schema.
type memState struct {
	mu        sync.Mutex
	nextID    uint64
	users     map[uint64]*model.User
	roles     map[uint64]*model.Role
	perms     []repository.PermissionRow
	grants    map[uint64]map[uint64]bool // role -> permission ids
	userRoles map[uint64]map[uint64]bool // user -> role ids
	audit     []*model.AuditLog
}

func newMemState() *memState {
	return &memState{
		users:     map[uint64]*model.User{},
		roles:     map[uint64]*model.Role{},
		grants:    map[uint64]map[uint64]bool{},
		userRoles: map[uint64]map[uint64]bool{},
	}
}

func (m *memState) id() uint64 {
	m.nextID++
	return m.nextID
}

type memUsers struct{ *memState }

func (s memUsers) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = repository.NormalizeEmail(u.Email)
	for _, other := range s.users {
		if other.Email == u.Email {
			return repository.ErrConflict
		}
	}
	u.ID = s.id()
	u.CreatedAt = time.Now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memUsers) GetByResetHash(_ context.Context, hash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == hash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memUsers) List(_ context.Context, f repository.UserFilter) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.User
	for _, u := range s.users {
		if u.DeletedAt != nil && !f.IncludeDeleted {
			continue
		}
		if f.Query != "" && !strings.Contains(u.Email, f.Query) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s memUsers) live(id uint64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (s memUsers) UpdateProfile(_ context.Context, id uint64, email, fullName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.live(id)
	if err != nil {
		return err
	}
	u.Email, u.FullName = repository.NormalizeEmail(email), fullName
	return nil
}

func (s memUsers) SetStatus(_ context.Context, id uint64, status model.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.live(id)
	if err != nil {
		return err
	}
	u.Status = status
	return nil
}

func (s memUsers) SoftDelete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.live(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	u.DeletedAt, u.Status, u.ResetTokenHash, u.ResetTokenExpiresAt = &now, model.UserDeactivated, nil, nil
	return nil
}

func (s memUsers) SetResetToken(_ context.Context, id uint64, hash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.live(id)
	if err != nil {
		return err
	}
	u.ResetTokenHash, u.ResetTokenExpiresAt = &hash, &exp
	return nil
}

func (s memUsers) RedeemResetToken(_ context.Context, hash, newHash string, now time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.DeletedAt == nil && u.ResetTokenHash != nil && *u.ResetTokenHash == hash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			u.PasswordHash, u.ResetTokenHash, u.ResetTokenExpiresAt = newHash, nil, nil
			return u.ID, nil
		}
	}
	return 0, repository.ErrNotFound
}

type memRoles struct{ *memState }

func (s memRoles) Create(_ context.Context, r *model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.roles {
		if other.Name == r.Name {
			return fmt.Errorf("%w: duplicate role name", repository.ErrConflict)
		}
	}
	r.ID = s.id()
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s memRoles) GetByID(_ context.Context, id uint64) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s memRoles) GetByName(_ context.Context, name string) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memRoles) List(_ context.Context) ([]*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Role
	for _, r := range s.roles {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s memRoles) Update(_ context.Context, id uint64, name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.IsSystem {
		return repository.ErrImmutable
	}
	r.Name, r.Description = name, description
	return nil
}

func (s memRoles) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.IsSystem {
		return repository.ErrImmutable
	}
	delete(s.roles, id)
	delete(s.grants, id)
	for _, held := range s.userRoles {
		delete(held, id)
	}
	return nil
}

func (s memRoles) GrantPermission(_ context.Context, roleID, permID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[roleID] == nil {
		s.grants[roleID] = map[uint64]bool{}
	}
	s.grants[roleID][permID] = true
	return nil
}

func (s memRoles) RevokePermission(_ context.Context, roleID, permID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[roleID], permID)
	return nil
}

func (s memRoles) AssignToUser(_ context.Context, userID, roleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = map[uint64]bool{}
	}
	s.userRoles[userID][roleID] = true
	return nil
}

func (s memRoles) RemoveFromUser(_ context.Context, userID, roleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.userRoles[userID][roleID] {
		return repository.ErrNotFound
	}
	delete(s.userRoles[userID], roleID)
	return nil
}

func (s memRoles) RolesOfUser(_ context.Context, userID uint64) ([]*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Role
	for rid := range s.userRoles[userID] {
		cp := *s.roles[rid]
		out = append(out, &cp)
	}
	return out, nil
}

func (s memRoles) CreateFirstHolder(_ context.Context, roleName string, u *model.User) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var role *model.Role
	for _, r := range s.roles {
		if r.Name == roleName {
			role = r
		}
	}
	if role == nil {
		return nil, repository.ErrNotFound
	}
	for uid, held := range s.userRoles {
		if other, ok := s.users[uid]; ok && other.DeletedAt == nil && held[role.ID] {
			return nil, repository.ErrRoleHeld
		}
	}
	u.Email = repository.NormalizeEmail(u.Email)
	for _, other := range s.users {
		if other.Email == u.Email {
			return nil, repository.ErrConflict
		}
	}
	u.ID = s.id()
	u.CreatedAt = time.Now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	s.userRoles[u.ID] = map[uint64]bool{role.ID: true}
	rc := *role
	return &rc, nil
}

type memPerms struct{ *memState }

func (s memPerms) EnsureCatalog(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.perms) > 0 {
		return nil
	}
	for i, p := range rbac.Catalog() {
		s.perms = append(s.perms, repository.PermissionRow{ID: uint64(i + 1), Permission: p})
	}
	return nil
}

func (s memPerms) List(_ context.Context) ([]repository.PermissionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.PermissionRow(nil), s.perms...), nil
}

func (s memPerms) Get(_ context.Context, p rbac.Permission) (*repository.PermissionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.perms {
		if row.Permission == p {
			cp := row
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s memPerms) OfRole(_ context.Context, roleID uint64) ([]repository.PermissionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.PermissionRow
	for _, row := range s.perms {
		if s.grants[roleID][row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

// PermissionsForUser makes memPerms an rbac.Store.
func (s memPerms) PermissionsForUser(_ context.Context, userID uint64) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; !ok || !u.CanLogin() {
		return nil, nil
	}
	var out []rbac.Permission
	for rid := range s.userRoles[userID] {
		for _, row := range s.perms {
			if s.grants[rid][row.ID] {
				out = append(out, row.Permission)
			}
		}
	}
	return out, nil
}

func (s memPerms) AccountActive(_ context.Context, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return ok && u.CanLogin(), nil
}

type memAudit struct{ *memState }

func (s memAudit) Append(_ context.Context, e *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}

func (s memAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, e.Action)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.PasswordResetRequested
}

func (p *recordingPublisher) PublishPasswordReset(_ context.Context, ev queue.PasswordResetRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}
