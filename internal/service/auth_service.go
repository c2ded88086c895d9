package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/queue"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/utils"
)

// Errors surfaced by AuthService. They are shared values so callers and
// tests can match them with errors.Is.
var (
	// ErrInvalidCredentials is returned for unknown emails, wrong passwords
	// and accounts that may not log in alike, so the response never reveals
	// which one it was.
	ErrInvalidCredentials = apperror.Unauthenticated("invalid credentials")
	ErrResetTokenInvalid  = &apperror.Error{Kind: apperror.KindValidation, Message: "reset token is invalid"}
	ErrResetTokenExpired  = &apperror.Error{Kind: apperror.KindValidation, Message: "reset token has expired"}
	ErrBootstrapDone      = apperror.Conflict("an administrator already exists")
)

// AdminRole is the seeded system role holding the sentinel permission.
const AdminRole = "Admin"

// AuthService implements login, session decoding, password reset and the
// first-admin bootstrap.
type AuthService struct {
	Users     UserStore
	Roles     RoleStore
	Resolver  *rbac.Resolver
	Publisher EventPublisher
	Audit     *Auditor
	Log       *zap.Logger

	JWTSecret  string
	SessionTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	AppBaseURL string

	now func() time.Time
}

func NewAuthService(cfg config.Config, users UserStore, roles RoleStore, resolver *rbac.Resolver,
	pub EventPublisher, audit *Auditor, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		Users:      users,
		Roles:      roles,
		Resolver:   resolver,
		Publisher:  pub,
		Audit:      audit,
		Log:        log,
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
		ResetTTL:   cfg.ResetTTL,
		BcryptCost: cfg.BcryptCost,
		AppBaseURL: cfg.AppBaseURL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Session is the outcome of a successful login.
type Session struct {
	User  *model.User
	Token utils.SessionToken
}

// Login verifies credentials and issues a session token embedding the
// user's id, email and role names.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.Internal("load user", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) || !u.CanLogin() {
		return nil, ErrInvalidCredentials
	}

	roles, err := s.Roles.RolesOfUser(ctx, u.ID)
	if err != nil {
		return nil, apperror.Internal("load roles", err)
	}
	u.Roles = derefRoles(roles)

	tok, err := utils.NewSessionToken(s.JWTSecret, u.ID, u.Email, u.RoleNames(), s.SessionTTL)
	if err != nil {
		return nil, apperror.Internal("issue session", err)
	}
	s.Log.Info("user logged in", zap.Uint64("user_id", u.ID))
	return &Session{User: u, Token: tok}, nil
}

// CurrentUser decodes a session token. It returns nil for a missing,
// malformed, forged or expired token; "no session" is not an error.
func (s *AuthService) CurrentUser(raw string) *model.Principal {
	if raw == "" {
		return nil
	}
	claims, err := utils.ParseSessionToken(s.JWTSecret, raw)
	if err != nil {
		return nil
	}
	uid, err := claims.UserID()
	if err != nil {
		return nil
	}
	return &model.Principal{UserID: uid, Email: claims.Email, Roles: claims.Roles}
}

// Profile is what /auth/me returns.
type Profile struct {
	User        *model.User       `json:"user"`
	Permissions []rbac.Permission `json:"permissions"`
	GodMode     bool              `json:"god_mode,omitempty"`
}

// Me reloads the principal's account. A token that outlived its account (deleted
// or deactivated since login) is treated as no session.
func (s *AuthService) Me(ctx context.Context, p *model.Principal) (*Profile, error) {
	if p == nil {
		return nil, apperror.Unauthenticated("")
	}
	u, err := s.Users.GetByID(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Unauthenticated("")
	}
	if err != nil {
		return nil, apperror.Internal("load user", err)
	}
	if !u.CanLogin() {
		return nil, apperror.Unauthenticated("")
	}
	roles, err := s.Roles.RolesOfUser(ctx, u.ID)
	if err != nil {
		return nil, apperror.Internal("load roles", err)
	}
	u.Roles = derefRoles(roles)
	perms, err := s.Resolver.GetPermissions(ctx, u.ID)
	if err != nil {
		return nil, apperror.Internal("load permissions", err)
	}
	return &Profile{User: u, Permissions: perms.Sorted(), GodMode: s.Resolver.GodMode()}, nil
}

// RequestPasswordReset stores a fresh reset token for the account and
// publishes a mail event. It reports success whether or not the email is
// known; failures are logged only.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.Log.Error("password reset: load user", zap.Error(err))
		}
		return
	}
	if !u.CanLogin() {
		return
	}
	tok, err := utils.NewResetToken(s.ResetTTL)
	if err != nil {
		s.Log.Error("password reset: generate token", zap.Error(err))
		return
	}
	if err := s.Users.SetResetToken(ctx, u.ID, tok.Hash, tok.Exp); err != nil {
		s.Log.Error("password reset: store token", zap.Uint64("user_id", u.ID), zap.Error(err))
		return
	}
	s.Audit.Record(ctx, "user.password_reset_requested", "user", idString(u.ID), nil)

	if s.Publisher == nil {
		s.Log.Warn("password reset: no publisher configured, mail not sent", zap.Uint64("user_id", u.ID))
		return
	}
	ev := queue.PasswordResetRequested{
		UserID:      u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		ResetURL:    s.resetURL(tok.Raw),
		ExpiresAt:   tok.Exp,
		RequestedAt: s.now(),
	}
	if err := s.Publisher.PublishPasswordReset(ctx, ev); err != nil {
		s.Log.Error("password reset: publish event", zap.Uint64("user_id", u.ID), zap.Error(err))
	}
}

func (s *AuthService) resetURL(raw string) string {
	return strings.TrimRight(s.AppBaseURL, "/") + "/reset-password?token=" + url.QueryEscape(raw)
}

// ResetPassword redeems a reset token. The token is single use: a successful
// redemption clears it in the same statement that writes the new hash.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrResetTokenInvalid
	}
	hash := utils.HashToken(rawToken)

	u, err := s.Users.GetByResetHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return apperror.Internal("load reset token", err)
	}
	now := s.now()
	if u.ResetTokenExpiresAt == nil || !u.ResetTokenExpiresAt.After(now) {
		return ErrResetTokenExpired
	}

	pwHash, err := utils.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return apperror.Internal("hash password", err)
	}
	uid, err := s.Users.RedeemResetToken(ctx, hash, pwHash, now)
	if errors.Is(err, repository.ErrNotFound) {
		// lost a race with another redemption, or expired in between
		return ErrResetTokenInvalid
	}
	if err != nil {
		return apperror.Internal("redeem reset token", err)
	}
	s.Audit.Record(ctx, "user.password_reset", "user", idString(uid), nil)
	s.Log.Info("password reset completed", zap.Uint64("user_id", uid))
	return nil
}

// Bootstrap creates the first administrator. It refuses once any live user
// holds the Admin role.
func (s *AuthService) Bootstrap(ctx context.Context, email, password, fullName string) (*model.User, error) {
	hash, err := utils.HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, apperror.Internal("hash password", err)
	}
	u := &model.User{Email: email, FullName: fullName, PasswordHash: hash, Status: model.UserActive}
	admin, err := s.Roles.CreateFirstHolder(ctx, AdminRole, u)
	switch {
	case errors.Is(err, repository.ErrRoleHeld):
		return nil, ErrBootstrapDone
	case errors.Is(err, repository.ErrNotFound):
		return nil, MapRepoError(err, "role", "load admin role")
	case err != nil:
		return nil, MapRepoError(err, "user", "create admin")
	}
	u.Roles = []model.Role{*admin}
	s.Audit.Record(ctx, "user.bootstrap_admin", "user", idString(u.ID), map[string]any{"email": u.Email})
	s.Log.Info("bootstrap administrator created", zap.Uint64("user_id", u.ID))
	return u, nil
}

func derefRoles(in []*model.Role) []model.Role {
	out := make([]model.Role, 0, len(in))
	for _, r := range in {
		out = append(out, *r)
	}
	return out
}
