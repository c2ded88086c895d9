package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/school-admin/internal/config"
	"github.com/iliyamo/school-admin/internal/database"
	"github.com/iliyamo/school-admin/internal/logger"
	"github.com/iliyamo/school-admin/internal/mailer"
	"github.com/iliyamo/school-admin/internal/metrics"
	"github.com/iliyamo/school-admin/internal/queue"
	"github.com/iliyamo/school-admin/internal/rbac"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/service"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schoolctl",
		Short:         "School admin maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		MigrateCmd(),
		SeedCmd(),
		BootstrapAdminCmd(),
		MailWorkerCmd(),
	)
	return root
}

// env is what every subcommand needs: configuration, a logger and, for the
// database commands, an open pool.
type env struct {
	cfg config.Config
	log *zap.Logger
	db  *sql.DB
}

func setup(withDB bool) (*env, error) {
	cfg := config.Load()
	lg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "schoolctl")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e := &env{cfg: cfg, log: lg}
	if withDB {
		e.db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.log.Sync()
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// MigrateCmd groups the schema migration commands.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	step := func(use, short string, fn func(context.Context, *sql.DB) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := setup(true)
				if err != nil {
					return err
				}
				defer e.close()
				return fn(cmd.Context(), e.db)
			},
		}
	}
	cmd.AddCommand(
		step("up", "Apply all pending migrations", database.MigrateUp),
		step("down", "Roll back the most recent migration", database.MigrateDown),
		step("status", "Show applied and pending migrations", database.MigrateStatus),
	)
	return cmd
}

// SeedCmd installs the permission catalog and the system roles.
func SeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the permission catalog and system roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()
			repos := repository.NewSet(e.db)
			s := &service.Seeder{Roles: repos.Roles, Perms: repos.Permissions, Log: e.log}
			return s.Run(cmd.Context())
		},
	}
}

// BootstrapAdminCmd creates the first administrator from flags or from
// ADMIN_EMAIL / ADMIN_PASSWORD.
func BootstrapAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first administrator account",
		Args:  cobra.NoArgs,
		RunE:  runBootstrapAdmin,
	}
	cmd.Flags().String("email", "", "admin email (default $ADMIN_EMAIL)")
	cmd.Flags().String("password", "", "admin password (default $ADMIN_PASSWORD)")
	cmd.Flags().String("name", "Administrator", "admin full name")
	return cmd
}

func runBootstrapAdmin(cmd *cobra.Command, _ []string) error {
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.close()

	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	name, _ := cmd.Flags().GetString("name")
	if email == "" {
		email = e.cfg.AdminEmail
	}
	if password == "" {
		password = e.cfg.AdminPassword
	}
	if email == "" || len(password) < 8 {
		return fmt.Errorf("an email and a password of at least 8 characters are required")
	}

	ctx := cmd.Context()
	repos := repository.NewSet(e.db)
	seeder := &service.Seeder{Roles: repos.Roles, Perms: repos.Permissions, Log: e.log}
	if err := seeder.Run(ctx); err != nil {
		return err
	}
	resolver := rbac.NewResolver(repos.Permissions, rbac.WithLogger(e.log))
	auth := service.NewAuthService(e.cfg, repos.Users, repos.Roles, resolver, nil,
		service.NewAuditor(repos.Audit, e.log), e.log)
	u, err := auth.Bootstrap(ctx, email, password, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created administrator %s (id %d)\n", u.Email, u.ID)
	return nil
}

// MailWorkerCmd consumes password reset events and sends the emails.
func MailWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mail-worker",
		Short: "Send password reset emails from the message queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			defer e.close()
			metrics.Init()

			ctx, stop := signalContext(cmd)
			defer stop()
			c := &queue.MailConsumer{
				URL:    e.cfg.RabbitMQURL,
				Mailer: mailer.NewSMTPMailer(e.cfg.SMTP),
				Log:    e.log.Named("mail-worker"),
			}
			e.log.Info("mail worker started", zap.String("queue", queue.PasswordResetQueue))
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			e.log.Info("mail worker stopped")
			return nil
		},
	}
}
