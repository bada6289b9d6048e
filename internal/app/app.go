// Package app は設定・インフラ・ルーターを組み立て、serve / worker / migrate の各モードを起動します。
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-gateway/internal/audit"
	"github.com/yourusername/identity-gateway/internal/config"
)

// App は HTTP サーバーとその依存リソースです。
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	infra      *infra
	router     *gin.Engine
	httpServer *http.Server
}

// New は設定に従ってインフラとルーターを初期化します。
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	gin.SetMode(cfg.GinMode)

	in, err := setupInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var publisher audit.Publisher = audit.Nop{}
	if in.Audit != nil {
		publisher = in.Audit
	}

	router, err := newRouter(cfg, routerDeps{
		Identities: in.Identities,
		Audit:      publisher,
		Activity:   in.Activity,
		Registry:   newRegistry(),
		Logger:     logger,
	})
	if err != nil {
		in.Close()
		return nil, err
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		infra:  in,
		router: router,
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// Handler はルーターを返します。
func (a *App) Handler() http.Handler {
	return a.router
}

// Run は HTTP サーバーを起動します。監査ログが有効な場合はワーカーも同じプロセスで動かします。
// Shutdown による停止ではエラーを返しません。
func (a *App) Run() error {
	if a.infra.Audit != nil {
		a.infra.Audit.StartWorkers()
	}

	a.logger.Info("API server starting",
		slog.String("addr", a.httpServer.Addr),
		slog.String("mode", a.cfg.GinMode),
		slog.String("identity_store", a.cfg.IdentityStore),
		slog.Bool("audit", a.cfg.AuditEnabled()),
	)
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は HTTP サーバーを停止し、接続を閉じます。
func (a *App) Shutdown(ctx context.Context) error {
	err := a.httpServer.Shutdown(ctx)
	if closeErr := a.infra.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close はサーバーを起動しなかった場合に接続を閉じます。
func (a *App) Close() error {
	return a.infra.Close()
}
