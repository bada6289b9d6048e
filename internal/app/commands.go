package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/identity-gateway/internal/config"
	"github.com/yourusername/identity-gateway/internal/database"
	"github.com/yourusername/identity-gateway/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Init は設定を読み込み、JSON構造化ログを設定します。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger.SetupDefault(w, logger.LevelForMode(cfg.GinMode)), nil
}

// NewRootCommand は serve / worker / migrate を持つルートコマンドを返します。
// サブコマンドを省略した場合は serve として動作します。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := newServeCommand(w)

	root := &cobra.Command{
		Use:           "identity-gateway",
		Short:         "Login, registration and session gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.AddCommand(
		serve,
		newWorkerCommand(w),
		newMigrateCommand(w),
	)
	return root
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(w)
			if err != nil {
				return err
			}
			if cfg.IdentityStore == config.StorePostgres {
				if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg, log)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config, log *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	select {
	case err := <-errCh:
		application.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("identity-gateway stopped cleanly")
	return nil
}

func newWorkerCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the audit event worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(w)
			if err != nil {
				return err
			}
			return runWorker(cfg, log)
		},
	}
}

func runWorker(cfg *config.Config, log *slog.Logger) error {
	if !cfg.AuditEnabled() {
		return errors.New("AUDIT_REDIS_URL is required for the worker")
	}

	in := &infra{}
	defer in.Close()

	manager, _, err := setupAudit(cfg, log, in)
	if err != nil {
		return err
	}

	log.Info("audit worker starting")
	// シグナルを受けるまでブロックする
	return manager.RunWorkers()
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, log, down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations")
	return cmd
}

func runMigrate(cfg *config.Config, log *slog.Logger, down bool) error {
	if cfg.IdentityStore != config.StorePostgres {
		return fmt.Errorf("migrate requires IDENTITY_STORE=%s", config.StorePostgres)
	}

	if down {
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations rolled back")
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
