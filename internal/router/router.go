// Package router wires handlers and middleware into the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/handler"
	"github.com/iliyamo/school-admin/internal/metrics"
	"github.com/iliyamo/school-admin/internal/middleware"
	"github.com/iliyamo/school-admin/internal/rbac"
)

// APIPrefix is the mount point of every JSON route.
const APIPrefix = "/api/v1"

// Deps are the cross-cutting collaborators the routes need.
type Deps struct {
	Sessions  middleware.SessionDecoder
	Checker   middleware.PermissionChecker
	Redis     *redis.Client // optional
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Log       *zap.Logger
}

// Handlers groups the resource handlers.
type Handlers struct {
	Auth      *handler.AuthHandler
	Academics *handler.AcademicsHandler
	People    *handler.PeopleHandler
	Finance   *handler.FinanceHandler
	Exams     *handler.ExamHandler
	Admin     *handler.AdminHandler
	Ready     echo.HandlerFunc
}

// New builds the echo instance with the global middleware chain: panic
// recovery, metrics, request logging, then session decoding.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	e.Use(middleware.Recover(d.Log))
	e.Use(metrics.Middleware())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.Session(d.Sessions))
	return e
}

// Register mounts every route.
func Register(e *echo.Echo, d Deps, h Handlers) {
	e.GET("/healthz", handler.Health)
	if h.Ready != nil {
		e.GET("/readyz", h.Ready)
	}
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group(APIPrefix)
	registerAuth(api, d, h.Auth)

	r := &routes{d: d}
	r.academics(api, h.Academics)
	r.people(api, h.People)
	r.finance(api, h.Finance)
	r.exams(api, h.Exams)
	r.admin(api, h.Admin)
}

// registerAuth mounts the /auth endpoints. The credential-accepting ones are
// rate limited.
func registerAuth(api *echo.Group, d Deps, a *handler.AuthHandler) {
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)

	g := api.Group("/auth")
	g.POST("/login", a.Login, limit)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, middleware.RequireSession())
	g.POST("/forgot-password", a.ForgotPassword, limit)
	g.POST("/reset-password", a.ResetPassword, limit)
	g.POST("/bootstrap", a.Bootstrap, limit)
}

type routes struct{ d Deps }

func (r *routes) guard(action rbac.Action, subject rbac.Subject) echo.MiddlewareFunc {
	return middleware.RequirePermission(r.d.Checker, action, subject)
}

// read guards a GET and, for cacheable scopes, serves it from the response
// cache.
func (r *routes) read(subject rbac.Subject, scope string) []echo.MiddlewareFunc {
	mw := []echo.MiddlewareFunc{r.guard(rbac.ActionRead, subject)}
	if scope != "" {
		mw = append(mw, middleware.NewRedisCache(r.d.Cache, r.d.Redis, scope))
	}
	return mw
}

// write guards a mutation and, for cacheable scopes, purges the cache after
// it succeeds.
func (r *routes) write(action rbac.Action, subject rbac.Subject, scope string) []echo.MiddlewareFunc {
	mw := []echo.MiddlewareFunc{r.guard(action, subject)}
	if scope != "" {
		mw = append(mw, middleware.InvalidateCache(r.d.Cache, r.d.Redis, scope, r.d.Log))
	}
	return mw
}
