package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourusername/identity-gateway/internal/audit"
	"github.com/yourusername/identity-gateway/internal/config"
	"github.com/yourusername/identity-gateway/internal/gateway"
	"github.com/yourusername/identity-gateway/internal/identity"
	"github.com/yourusername/identity-gateway/internal/metrics"
	"github.com/yourusername/identity-gateway/internal/security"
)

const (
	serviceName    = "identity-gateway"
	serviceVersion = "0.1.0"

	// SESSION_SECRET 未設定時（開発時のみ）に使う署名鍵
	devSessionSecret = "identity-gateway-dev-secret-change-me"
)

// routerDeps はルーター構築に必要な依存関係です。
type routerDeps struct {
	Identities identity.Store
	Audit      audit.Publisher
	Activity   audit.Reader
	Registry   *prometheus.Registry
	Logger     *slog.Logger
}

func newRouter(cfg *config.Config, deps routerDeps) (*gin.Engine, error) {
	router := gin.New()
	// 未設定なら X-Forwarded-For を無視し、接続元アドレスをクライアントIPとする
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	// セッションストアの設定
	cookieOpts := sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	}
	secret := cfg.SessionSecret
	if secret == "" {
		deps.Logger.Warn("SESSION_SECRET is not set; using development secret")
		secret = devSessionSecret
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(cookieOpts)
	router.Use(sessions.Sessions(security.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	renderer := gateway.Renderer{}
	if cfg.TemplateGlob != "" {
		router.LoadHTMLGlob(cfg.TemplateGlob)
		renderer.HTML = true
	}

	identities := identity.NewService(deps.Identities, identity.WithLogger(deps.Logger))
	manager := security.NewManager(security.NewIdentityRealm(identities), security.Options{
		Cookie:             cookieOpts,
		RememberMeLifetime: cfg.RememberMeDuration(),
		MaxLoginAttempts:   cfg.LoginMaxAttempts,
		LoginWindow:        cfg.LoginWindow(),
	}, deps.Logger)

	gw := gateway.New(identities, identity.NewValidator(), gateway.Config{
		RememberMe: cfg.RememberMe,
		IndexPath:  cfg.IndexPath,
	}, deps.Logger)

	handler := gateway.NewHandler(gw, func(c *gin.Context) security.Context {
		return manager.Subject(c)
	}, gateway.HandlerOptions{
		Renderer:   renderer,
		Metrics:    metrics.NewCollector(deps.Registry),
		Audit:      deps.Audit,
		Activity:   deps.Activity,
		Identities: identities,
		Logger:     deps.Logger,
	})

	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))

	router.GET("/", handler.Home)
	handler.RegisterRoutes(router)
	router.GET(cfg.IndexPath, manager.RequireAuthenticated(), handler.Index)

	return router, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
		)
	}
}
