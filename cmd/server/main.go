package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/database"
	"github.com/iliyamo/school-admin/internal/handler"
	"github.com/iliyamo/school-admin/internal/logger"
	"github.com/iliyamo/school-admin/internal/metrics"
	"github.com/iliyamo/school-admin/internal/queue"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/router"
	"github.com/iliyamo/school-admin/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	cfg := config.Load()
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "school-admin")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.MigrateUp(ctx, db); err != nil {
		return err
	}
	repos := repository.NewSet(db)
	seeder := &service.Seeder{Roles: repos.Roles, Perms: repos.Permissions, Log: lg}
	if err := seeder.Run(ctx); err != nil {
		return err
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		lg.Warn("redis unavailable: rate limiting is per-process and response caching is off")
	} else {
		defer rdb.Close()
	}

	metrics.Init()
	resolver := rbac.NewResolver(repos.Permissions,
		rbac.WithGodMode(cfg.RBACGodMode),
		rbac.WithLogger(lg.Named("rbac")))
	if cfg.RBACGodMode && cfg.IsProduction() {
		lg.Warn("RBAC_GOD_MODE is enabled in production")
	}

	audit := service.NewAuditor(repos.Audit, lg)
	pub := queue.NewPublisher(cfg.RabbitMQURL, lg.Named("queue"))
	auth := service.NewAuthService(cfg, repos.Users, repos.Roles, resolver, pub, audit, lg.Named("auth"))
	users := service.NewUserService(repos.Users, repos.Roles, resolver, audit, lg, cfg.BcryptCost)
	roles := service.NewRoleService(repos.Roles, repos.Permissions, audit, lg)

	deps := router.Deps{
		Sessions:  auth,
		Checker:   resolver,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Log:       lg,
	}
	e := router.New(deps)
	router.Register(e, deps, router.Handlers{
		Auth:      handler.NewAuthHandler(cfg, auth),
		Academics: handler.NewAcademicsHandler(repos, audit),
		People:    handler.NewPeopleHandler(repos, audit),
		Finance:   handler.NewFinanceHandler(repos, audit),
		Exams:     handler.NewExamHandler(repos, audit),
		Admin:     handler.NewAdminHandler(users, roles, repos),
		Ready:     handler.Ready(db, rdb),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
