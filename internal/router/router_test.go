package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/handler"
	"github.com/iliyamo/school-admin/internal/middleware"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/service"
	"github.com/iliyamo/school-admin/internal/utils"
)

const testSecret = "router-test-secret"

// graph maps user ids to granted permissions.
type graph map[uint64][]rbac.Permission

func (g graph) PermissionsForUser(_ context.Context, uid uint64) ([]rbac.Permission, error) {
	return g[uid], nil
}

func (g graph) AccountActive(context.Context, uint64) (bool, error) { return true, nil }

type testServer struct {
	srv  *httptest.Server
	mock sqlmock.Sqlmock
}

// newTestServer builds the full route table over sqlmock. A nil store
// resolves permissions through the repositories, and so through the mock.
func newTestServer(t *testing.T, store rbac.Store) *testServer {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := zap.NewNop()
	cfg := config.Config{JWTSecret: testSecret, SessionTTL: time.Hour, BcryptCost: 4}
	repos := repository.NewSet(db)
	if store == nil {
		store = repos.Permissions
	}
	resolver := rbac.NewResolver(store)
	audit := service.NewAuditor(repos.Audit, log)
	auth := service.NewAuthService(cfg, repos.Users, repos.Roles, resolver, nil, audit, log)

	deps := Deps{
		Sessions:  auth,
		Checker:   resolver,
		RateLimit: config.RateLimitConfig{Enabled: false},
		Cache:     config.CacheConfig{Enabled: false},
		Log:       log,
	}
	e := New(deps)
	Register(e, deps, Handlers{
		Auth:      handler.NewAuthHandler(cfg, auth),
		Academics: handler.NewAcademicsHandler(repos, audit),
		People:    handler.NewPeopleHandler(repos, audit),
		Finance:   handler.NewFinanceHandler(repos, audit),
		Exams:     handler.NewExamHandler(repos, audit),
		Admin: handler.NewAdminHandler(
			service.NewUserService(repos.Users, repos.Roles, resolver, audit, log, 4),
			service.NewRoleService(repos.Roles, repos.Permissions, audit, log),
			repos),
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, mock: mock}
}

func (s *testServer) do(t *testing.T, method, path, body string, uid uint64) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if uid != 0 {
		tok, err := utils.NewSessionToken(testSecret, uid, "user@school.test", []string{"Accountant"}, time.Hour)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: tok.Token})
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

var invoiceCols = []string{"id", "student_id", "academic_year_id", "fee_type_id", "description", "amount",
	"amount_paid", "due_on", "status", "created_at", "updated_at"}

func TestAccountantCanReadButNotCreateInvoices(t *testing.T) {
	const accountant = 42
	s := newTestServer(t, graph{accountant: {{Action: rbac.ActionRead, Subject: rbac.SubjectFinance}}})
	now := time.Now().UTC()

	s.mock.ExpectQuery(`SELECT .* FROM invoices ORDER BY id DESC LIMIT 50 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows(invoiceCols).
			AddRow(1, 10, 3, nil, "Tuition", "500.00", "0.00", now, "UNPAID", now, now))

	resp, body := s.do(t, http.MethodGet, "/api/v1/finance/invoices", "", accountant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	resp, body = s.do(t, http.MethodPost, "/api/v1/finance/invoices",
		`{"student_id":10,"academic_year_id":3,"amount":"10.00","due_on":"2026-10-01"}`, accountant)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, map[string]any{"action": "CREATE", "subject": "FINANCE"}, body["required"])

	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestSessionOfDeactivatedAccountIs401(t *testing.T) {
	const accountant = 42
	s := newTestServer(t, nil)
	now := time.Now().UTC()
	accountQ := `SELECT COUNT\(\*\) FROM users WHERE id = \? AND deleted_at IS NULL AND status = 'ACTIVE'`

	s.mock.ExpectQuery(accountQ).WithArgs(uint64(accountant)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	s.mock.ExpectQuery(`SELECT DISTINCT p.id, p.action, p.subject FROM permissions p`).WithArgs(uint64(accountant)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "subject"}).AddRow(30, "READ", "FINANCE"))
	s.mock.ExpectQuery(`SELECT .* FROM invoices ORDER BY id DESC LIMIT 50 OFFSET 0`).
		WillReturnRows(sqlmock.NewRows(invoiceCols).
			AddRow(1, 10, 3, nil, "Tuition", "500.00", "0.00", now, "UNPAID", now, now))

	resp, _ := s.do(t, http.MethodGet, "/api/v1/finance/invoices", "", accountant)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// deactivated or soft-deleted since login: the same token no longer counts
	s.mock.ExpectQuery(accountQ).WithArgs(uint64(accountant)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	resp, body := s.do(t, http.MethodGet, "/api/v1/finance/invoices", "", accountant)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
	assert.NotContains(t, body, "required")
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestGuardedRouteWithoutSessionIs401(t *testing.T) {
	s := newTestServer(t, graph{})

	resp, body := s.do(t, http.MethodGet, "/api/v1/students", "", 0)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
	assert.Equal(t, "Unauthorized", body["message"])
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestUserWithoutRolesIsForbiddenEverywhere(t *testing.T) {
	s := newTestServer(t, graph{})
	for _, path := range []string{"/api/v1/school-profile", "/api/v1/users", "/api/v1/audit-logs", "/api/v1/exams"} {
		resp, _ := s.do(t, http.MethodGet, path, "", 7)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}
}

func TestLogoutIsIdempotentWithoutSession(t *testing.T) {
	s := newTestServer(t, graph{})
	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", "", 0)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.CookieName, cookies[0].Name)
		assert.True(t, cookies[0].MaxAge < 0)
	}
}

func TestValidationErrorNamesJSONFields(t *testing.T) {
	s := newTestServer(t, graph{})

	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"not-an-email"}`, 0)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestUnknownRouteKeepsEchoStatus(t *testing.T) {
	s := newTestServer(t, graph{})
	resp, body := s.do(t, http.MethodGet, "/api/v1/nope", "", 0)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}
