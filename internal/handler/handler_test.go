package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/middleware"
	"github.com/iliyamo/school-admin/internal/repository"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())
	return e
}

func do(e *echo.Echo, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestErrorHandler(t *testing.T) {
	e := newEcho()
	e.GET("/validation", func(echo.Context) error {
		return apperror.Validation("validation failed", map[string]string{"email": "required"})
	})
	e.GET("/internal", func(echo.Context) error {
		return apperror.Internal("load user", errors.New("dial tcp 10.0.0.5:3306: refused"))
	})
	e.GET("/plain", func(echo.Context) error { return errors.New("boom") })
	e.GET("/forbidden", func(echo.Context) error { return apperror.Forbidden("DELETE", "FINANCE") })

	rec := do(e, http.MethodGet, "/validation", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation_error", body["error"])
	assert.Equal(t, map[string]any{"email": "required"}, body["fields"])

	rec = do(e, http.MethodGet, "/internal", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Equal(t, "internal_error", decode(t, rec)["error"])

	rec = do(e, http.MethodGet, "/plain", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = do(e, http.MethodGet, "/forbidden", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, map[string]any{"action": "DELETE", "subject": "FINANCE"}, decode(t, rec)["required"])

	rec = do(e, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode(t, rec)["error"])

	rec = do(e, http.MethodPost, "/validation", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDate_UnmarshalJSON(t *testing.T) {
	var d struct {
		On Date `json:"on"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"on":"2025-09-01"}`), &d))
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), d.On.Time)

	require.NoError(t, json.Unmarshal([]byte(`{"on":"2025-09-01T10:00:00+02:00"}`), &d))
	assert.Equal(t, time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC), d.On.Time)

	require.NoError(t, json.Unmarshal([]byte(`{"on":null}`), &d))
	assert.Nil(t, d.On.Ptr())

	assert.Error(t, json.Unmarshal([]byte(`{"on":"01/09/2025"}`), &d))
}

func TestPositive(t *testing.T) {
	assert.NoError(t, positive("amount", decimal.RequireFromString("10.50")))
	assert.True(t, apperror.Is(positive("amount", decimal.Zero), apperror.KindValidation))
	assert.True(t, apperror.Is(positive("amount", decimal.RequireFromString("-1")), apperror.KindValidation))
	assert.True(t, apperror.Is(positive("amount", decimal.RequireFromString("1.005")), apperror.KindValidation))
}

func TestAuth_LogoutClearsCookie(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(config.Config{Env: "prod"}, nil)
	e.POST("/logout", h.Logout)

	rec := do(e, http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, middleware.CookieName, ck.Name)
	assert.Empty(t, ck.Value)
	assert.True(t, ck.MaxAge < 0)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
}

func TestAuth_BootstrapGate(t *testing.T) {
	body := `{"email":"root@school.test","password":"pw-123456","full_name":"Root"}`

	e := newEcho()
	e.POST("/bootstrap", NewAuthHandler(config.Config{}, nil).Bootstrap)
	rec := do(e, http.MethodPost, "/bootstrap", body, map[string]string{"X-Admin-Secret": "anything"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e = newEcho()
	e.POST("/bootstrap", NewAuthHandler(config.Config{AdminSecretKey: "s3cret"}, nil).Bootstrap)
	rec = do(e, http.MethodPost, "/bootstrap", body, map[string]string{"X-Admin-Secret": "guess"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_LoginValidation(t *testing.T) {
	e := newEcho()
	e.POST("/login", NewAuthHandler(config.Config{}, nil).Login)

	rec := do(e, http.MethodPost, "/login", `{"email":"not-an-email"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, ok := decode(t, rec)["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "must be a valid email address", fields["email"])
	assert.Equal(t, "required", fields["password"])

	rec = do(e, http.MethodPost, "/login", `{"email":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func examServer(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	e := newEcho()
	h := NewExamHandler(repository.NewSet(db), nil)
	e.PUT("/exams/:id/results", h.PutResults)
	return e, mock
}

func TestExams_PutResultsRejectsDuplicates(t *testing.T) {
	e, mock := examServer(t)
	rec := do(e, http.MethodPut, "/exams/7/results",
		`{"results":[{"student_id":1,"score":"40"},{"student_id":1,"score":"41"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExams_PutResultsScoreAboveMax(t *testing.T) {
	e, mock := examServer(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT max_score FROM exams").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"max_score"}).AddRow("50.00"))
	mock.ExpectRollback()

	rec := do(e, http.MethodPut, "/exams/7/results",
		`{"results":[{"student_id":1,"score":"40"},{"student_id":2,"score":"60"}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, ok := decode(t, rec)["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields["score"], "score out of range")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExams_BadPathID(t *testing.T) {
	e, _ := examServer(t)
	rec := do(e, http.MethodPut, "/exams/0/results", `{"results":[{"student_id":1,"score":"1"}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinance_PaymentAmountChecked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	e := newEcho()
	e.POST("/invoices/:id/payments", NewFinanceHandler(repository.NewSet(db), nil).RecordPayment)

	for _, amount := range []string{`"0"`, `"-5"`, `"10.001"`} {
		rec := do(e, http.MethodPost, "/invoices/3/payments",
			`{"amount":`+amount+`,"method":"CASH"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
	}
	rec := do(e, http.MethodPost, "/invoices/3/payments", `{"amount":"10","method":"BITCOIN"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudents_SectionProblemsAreFieldErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	e := newEcho()
	h := NewPeopleHandler(repository.NewSet(db), nil)
	e.POST("/students", h.CreateStudent)
	e.PUT("/students/:id", h.UpdateStudent)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT capacity FROM sections").WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
	mock.ExpectQuery("SELECT COUNT").WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()
	rec := do(e, http.MethodPost, "/students",
		`{"admission_no":"A-1","first_name":"Sara","last_name":"Karimi","section_id":3}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"section_id": "section is full"}, decode(t, rec)["fields"])

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT section_id, status FROM students").WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "status"}).AddRow(nil, "ENROLLED"))
	mock.ExpectQuery("SELECT capacity FROM sections").WithArgs(uint64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}))
	mock.ExpectRollback()
	rec = do(e, http.MethodPut, "/students/8",
		`{"admission_no":"A-1","first_name":"Sara","last_name":"Karimi","section_id":99}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"section_id": "section does not exist"}, decode(t, rec)["fields"])

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT section_id, status FROM students").WithArgs(uint64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "status"}))
	mock.ExpectRollback()
	rec = do(e, http.MethodPut, "/students/404",
		`{"admission_no":"A-1","first_name":"Sara","last_name":"Karimi"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}
