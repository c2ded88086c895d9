package service

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/utils"
)

type fixture struct {
	state *memState
	users memUsers
	roles memRoles
	perms memPerms
	audit memAudit
	pub   *recordingPublisher
	auth  *AuthService
	acct  *UserService
	rs    *RoleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMemState()
	f := &fixture{
		state: st,
		users: memUsers{st},
		roles: memRoles{st},
		perms: memPerms{st},
		audit: memAudit{st},
		pub:   &recordingPublisher{},
	}
	seeder := &Seeder{Roles: f.roles, Perms: f.perms}
	require.NoError(t, seeder.Run(context.Background()))

	resolver := rbac.NewResolver(f.perms)
	auditor := NewAuditor(f.audit, nil)
	f.auth = &AuthService{
		Users:      f.users,
		Roles:      f.roles,
		Resolver:   resolver,
		Publisher:  f.pub,
		Audit:      auditor,
		Log:        zap.NewNop(),
		JWTSecret:  "test-secret",
		SessionTTL: time.Hour,
		ResetTTL:   30 * time.Minute,
		BcryptCost: bcrypt.MinCost,
		AppBaseURL: "https://school.example/",
		now:        func() time.Time { return time.Now().UTC() },
	}
	f.acct = NewUserService(f.users, f.roles, resolver, auditor, nil, bcrypt.MinCost)
	f.rs = NewRoleService(f.roles, f.perms, auditor, nil)
	return f
}

func (f *fixture) addUser(t *testing.T, email, password string, status model.UserStatus) *model.User {
	t.Helper()
	hash, err := utils.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{Email: email, FullName: "Test User", PasswordHash: hash, Status: status}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func kindOf(t *testing.T, err error) apperror.Kind {
	t.Helper()
	ae, ok := apperror.As(err)
	require.True(t, ok, "expected *apperror.Error, got %v", err)
	return ae.Kind
}

func TestLogin_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ann@school.test", "correct horse", model.UserActive)
	ctx := context.Background()

	_, errUnknown := f.auth.Login(ctx, "nobody@school.test", "correct horse")
	_, errWrong := f.auth.Login(ctx, "ann@school.test", "battery staple")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_IssuesTokenWithRoles(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "ann@school.test", "correct horse", model.UserActive)
	ctx := context.Background()
	teacher, err := f.roles.GetByName(ctx, TeacherRole)
	require.NoError(t, err)
	require.NoError(t, f.roles.AssignToUser(ctx, u.ID, teacher.ID))

	sess, err := f.auth.Login(ctx, "  ANN@school.test ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.NotEmpty(t, sess.Token.Token)

	p := f.auth.CurrentUser(sess.Token.Token)
	require.NotNil(t, p)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, []string{TeacherRole}, p.Roles)
}

func TestLogin_RejectsInactiveAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "off@school.test", "pw-123456", model.UserInactive)
	gone := f.addUser(t, "gone@school.test", "pw-123456", model.UserActive)
	require.NoError(t, f.users.SoftDelete(ctx, gone.ID))

	for _, email := range []string{"off@school.test", "gone@school.test"} {
		_, err := f.auth.Login(ctx, email, "pw-123456")
		assert.ErrorIs(t, err, ErrInvalidCredentials, email)
	}
}

func TestCurrentUser_BadTokens(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.auth.CurrentUser(""))
	assert.Nil(t, f.auth.CurrentUser("not-a-jwt"))

	forged, err := utils.NewSessionToken("other-secret", 1, "x@school.test", nil, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, f.auth.CurrentUser(forged.Token))
}

func TestMe_ReloadsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.addUser(t, "ann@school.test", "pw-123456", model.UserActive)
	teacher, err := f.roles.GetByName(ctx, TeacherRole)
	require.NoError(t, err)
	require.NoError(t, f.roles.AssignToUser(ctx, u.ID, teacher.ID))

	p := &model.Principal{UserID: u.ID, Email: u.Email}
	prof, err := f.auth.Me(ctx, p)
	require.NoError(t, err)
	assert.Contains(t, prof.Permissions, rbac.Permission{Action: rbac.ActionUpdate, Subject: rbac.SubjectExamination})
	assert.NotContains(t, prof.Permissions, rbac.Permission{Action: rbac.ActionRead, Subject: rbac.SubjectFinance})

	require.NoError(t, f.users.SetStatus(ctx, u.ID, model.UserDeactivated))
	_, err = f.auth.Me(ctx, p)
	assert.Equal(t, apperror.KindAuthentication, kindOf(t, err))

	_, err = f.auth.Me(ctx, nil)
	assert.Equal(t, apperror.KindAuthentication, kindOf(t, err))
}

func TestDeactivatedSessionLosesAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addUser(t, "admin@school.test", "pw-123456", model.UserActive)
	actx := model.WithPrincipal(ctx, &model.Principal{UserID: admin.ID})
	u := f.addUser(t, "ann@school.test", "pw-123456", model.UserActive)
	teacher, err := f.roles.GetByName(ctx, TeacherRole)
	require.NoError(t, err)
	require.NoError(t, f.roles.AssignToUser(ctx, u.ID, teacher.ID))

	sess, err := f.auth.Login(ctx, "ann@school.test", "pw-123456")
	require.NoError(t, err)
	p := f.auth.CurrentUser(sess.Token.Token)
	require.NotNil(t, p)

	ok, err := f.auth.Resolver.HasPermission(ctx, p.UserID, rbac.ActionRead, rbac.SubjectStudent)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.acct.SetStatus(actx, u.ID, model.UserDeactivated)
	require.NoError(t, err)

	// the token still decodes; the account behind it no longer counts
	require.NotNil(t, f.auth.CurrentUser(sess.Token.Token))
	_, err = f.auth.Me(ctx, p)
	assert.Equal(t, apperror.KindAuthentication, kindOf(t, err))
	ok, err = f.auth.Resolver.HasPermission(ctx, p.UserID, rbac.ActionRead, rbac.SubjectStudent)
	assert.ErrorIs(t, err, rbac.ErrInactiveAccount)
	assert.False(t, ok)

	_, err = f.acct.SetStatus(actx, u.ID, model.UserActive)
	require.NoError(t, err)
	ok, err = f.auth.Resolver.HasPermission(ctx, p.UserID, rbac.ActionRead, rbac.SubjectStudent)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.acct.Delete(actx, u.ID))
	_, err = f.auth.Resolver.HasPermission(ctx, p.UserID, rbac.ActionRead, rbac.SubjectStudent)
	assert.ErrorIs(t, err, rbac.ErrInactiveAccount)
}

func resetTokenFrom(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	tok := parsed.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestRequestPasswordReset_PublishesOnlyForKnownAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.addUser(t, "ann@school.test", "pw-123456", model.UserActive)

	f.auth.RequestPasswordReset(ctx, "nobody@school.test")
	assert.Empty(t, f.pub.events)

	f.auth.RequestPasswordReset(ctx, "ann@school.test")
	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, u.ID, ev.UserID)
	assert.Contains(t, ev.ResetURL, "https://school.example/reset-password?token=")

	// only the hash is stored
	stored, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetTokenHash)
	raw := resetTokenFrom(t, ev.ResetURL)
	assert.NotEqual(t, raw, *stored.ResetTokenHash)
	assert.Equal(t, utils.HashToken(raw), *stored.ResetTokenHash)
	assert.Contains(t, f.audit.actions(), "user.password_reset_requested")
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ann@school.test", "old-password", model.UserActive)
	f.auth.RequestPasswordReset(ctx, "ann@school.test")
	require.Len(t, f.pub.events, 1)
	raw := resetTokenFrom(t, f.pub.events[0].ResetURL)

	require.NoError(t, f.auth.ResetPassword(ctx, raw, "new-password"))
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, raw, "another-one"), ErrResetTokenInvalid)

	_, err := f.auth.Login(ctx, "ann@school.test", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.auth.Login(ctx, "ann@school.test", "new-password")
	assert.NoError(t, err)
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ann@school.test", "old-password", model.UserActive)
	f.auth.RequestPasswordReset(ctx, "ann@school.test")
	require.Len(t, f.pub.events, 1)
	raw := resetTokenFrom(t, f.pub.events[0].ResetURL)

	f.auth.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, raw, "new-password"), ErrResetTokenExpired)
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, "", "new-password"), ErrResetTokenInvalid)
	assert.ErrorIs(t, f.auth.ResetPassword(ctx, "deadbeef", "new-password"), ErrResetTokenInvalid)
}

func TestResetPassword_ConcurrentRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ann@school.test", "old-password", model.UserActive)
	f.auth.RequestPasswordReset(ctx, "ann@school.test")
	require.Len(t, f.pub.events, 1)
	raw := resetTokenFrom(t, f.pub.events[0].ResetURL)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.auth.ResetPassword(ctx, raw, "new-password")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrResetTokenInvalid)
	}
	assert.Equal(t, 1, ok)
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.auth.Bootstrap(ctx, "root@school.test", "pw-123456", "Root")
	require.NoError(t, err)
	require.Len(t, admin.Roles, 1)
	assert.Equal(t, AdminRole, admin.Roles[0].Name)

	ok, err := f.auth.Resolver.HasPermission(ctx, admin.ID, rbac.ActionDelete, rbac.SubjectFinance)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.auth.Bootstrap(ctx, "second@school.test", "pw-123456", "Second")
	assert.ErrorIs(t, err, ErrBootstrapDone)
}

func TestBootstrap_AllowedAgainAfterAdminDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, err := f.auth.Bootstrap(ctx, "root@school.test", "pw-123456", "Root")
	require.NoError(t, err)
	require.NoError(t, f.users.SoftDelete(ctx, admin.ID))

	_, err = f.auth.Bootstrap(ctx, "next@school.test", "pw-123456", "Next")
	assert.NoError(t, err)
}

func TestBootstrap_ConcurrentCallsCreateOneAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.auth.Bootstrap(ctx, "root"+strconv.Itoa(i)+"@school.test", "pw-123456", "Root")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrBootstrapDone)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.state.userRoles, 1)
}

func TestRoleService_SystemRolesAreImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, err := f.roles.GetByName(ctx, AdminRole)
	require.NoError(t, err)

	_, err = f.rs.Update(ctx, admin.ID, "Superuser", "")
	assert.ErrorIs(t, err, ErrSystemRole)
	assert.ErrorIs(t, f.rs.Delete(ctx, admin.ID), ErrSystemRole)
	_, err = f.rs.RevokePermission(ctx, admin.ID, "ALL", "ALL")
	assert.ErrorIs(t, err, ErrSystemRole)

	still, err := f.roles.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, AdminRole, still.Name)
}

func TestRoleService_GrantAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	role, err := f.rs.Create(ctx, "Accountant", "money")
	require.NoError(t, err)

	d, err := f.rs.AssignPermission(ctx, role.ID, "READ", "FINANCE")
	require.NoError(t, err)
	require.Len(t, d.Permissions, 1)
	assert.Equal(t, rbac.SubjectFinance, d.Permissions[0].Subject)

	d, err = f.rs.RevokePermission(ctx, role.ID, "READ", "FINANCE")
	require.NoError(t, err)
	assert.Empty(t, d.Permissions)

	_, err = f.rs.AssignPermission(ctx, role.ID, "READ", "LIBRARY")
	assert.Equal(t, apperror.KindValidation, kindOf(t, err))
	_, err = f.rs.AssignPermission(ctx, role.ID, "ALL", "FINANCE")
	assert.Equal(t, apperror.KindValidation, kindOf(t, err))

	assert.Equal(t,
		[]string{"role.create", "role.permission_grant", "role.permission_revoke"},
		f.audit.actions())
}

func TestRoleService_ConcurrentDuplicateNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.rs.Create(ctx, "Librarian", "")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, apperror.KindConflict, kindOf(t, err))
	}
	assert.Equal(t, 1, created)
}

func TestSeeder_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeder := &Seeder{Roles: f.roles, Perms: f.perms}
	require.NoError(t, seeder.Run(ctx))

	roles, err := f.roles.List(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	admin, err := f.roles.GetByName(ctx, AdminRole)
	require.NoError(t, err)
	assert.True(t, admin.IsSystem)
	adminPerms, err := f.perms.OfRole(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, adminPerms, 1)
	assert.Equal(t, rbac.Sentinel, adminPerms[0].Permission)

	teacher, err := f.roles.GetByName(ctx, TeacherRole)
	require.NoError(t, err)
	teacherPerms, err := f.perms.OfRole(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Len(t, teacherPerms, 9)
}

func TestUserService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	actor := f.addUser(t, "admin@school.test", "pw-123456", model.UserActive)
	ctx := model.WithPrincipal(context.Background(), &model.Principal{UserID: actor.ID})
	teacher, err := f.roles.GetByName(ctx, TeacherRole)
	require.NoError(t, err)

	u, err := f.acct.Create(ctx, NewUser{
		Email:    "New.Teacher@School.test",
		FullName: " Jo ",
		Password: "pw-123456",
		RoleIDs:  []uint64{teacher.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "new.teacher@school.test", u.Email)
	assert.Equal(t, "Jo", u.FullName)
	assert.Equal(t, []string{TeacherRole}, u.RoleNames())

	_, err = f.acct.Create(ctx, NewUser{Email: "new.teacher@school.test", FullName: "Dup"})
	assert.Equal(t, apperror.KindConflict, kindOf(t, err))
	_, err = f.acct.Create(ctx, NewUser{Email: "x@school.test", FullName: "X", RoleIDs: []uint64{999}})
	assert.Equal(t, apperror.KindNotFound, kindOf(t, err))

	perms, err := f.acct.Permissions(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 9)

	u, err = f.acct.SetStatus(ctx, u.ID, model.UserDeactivated)
	require.NoError(t, err)
	assert.Equal(t, model.UserDeactivated, u.Status)

	u, err = f.acct.RemoveRole(ctx, u.ID, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, u.Roles)
	_, err = f.acct.RemoveRole(ctx, u.ID, teacher.ID)
	assert.Equal(t, apperror.KindNotFound, kindOf(t, err))

	assert.Equal(t, apperror.KindValidation, kindOf(t, f.acct.Delete(ctx, actor.ID)))
	require.NoError(t, f.acct.Delete(ctx, u.ID))
	assert.Equal(t, apperror.KindNotFound, kindOf(t, f.acct.Delete(ctx, u.ID)))

	entries := f.state.audit
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.NotNil(t, e.ActorUserID)
		assert.Equal(t, actor.ID, *e.ActorUserID)
	}
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, *model.AuditLog) error { return errors.New("disk full") }

func TestAuditor_FailureDoesNotPropagate(t *testing.T) {
	var nilAuditor *Auditor
	assert.NotPanics(t, func() { nilAuditor.Record(context.Background(), "x", "y", "1", nil) })

	a := NewAuditor(failingAudit{}, nil)
	assert.NotPanics(t, func() { a.Record(context.Background(), "x", "y", "1", nil) })
}

func TestMapRepoError(t *testing.T) {
	cases := map[error]apperror.Kind{
		repository.ErrNotFound:         apperror.KindNotFound,
		repository.ErrConflict:         apperror.KindConflict,
		repository.ErrInUse:            apperror.KindConflict,
		repository.ErrImmutable:        apperror.KindConflict,
		repository.ErrInvalidReference: apperror.KindValidation,
		errors.New("connection reset"): apperror.KindInternal,
	}
	for in, want := range cases {
		assert.Equal(t, want, kindOf(t, MapRepoError(in, "thing", "op")), in.Error())
	}
	assert.NoError(t, MapRepoError(nil, "thing", "op"))

	passthrough := apperror.Field("name", "required")
	assert.Same(t, passthrough, MapRepoError(passthrough, "thing", "op"))
}
