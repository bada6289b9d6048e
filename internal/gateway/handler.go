package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-gateway/internal/audit"
	"github.com/yourusername/identity-gateway/internal/identity"
	"github.com/yourusername/identity-gateway/internal/metrics"
	"github.com/yourusername/identity-gateway/internal/security"
)

const (
	recentActivityLimit = 10
	duplicateMessage    = "このユーザー名は登録できません。別のユーザー名を指定してください。"
)

// SubjectFactory はリクエストごとのセキュリティコンテキストを返します。
type SubjectFactory func(c *gin.Context) security.Context

// IdentityLookup は登録済みのユーザー名かどうかを返します。
type IdentityLookup interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// HandlerOptions は HTTP アダプターの依存関係です。nil の項目は何もしない実装になります。
type HandlerOptions struct {
	Renderer Renderer
	Metrics  metrics.Recorder
	Audit    audit.Publisher
	Activity audit.Reader
	// Identities が nil の場合、ログイン失敗の監査イベントは発行しません
	Identities IdentityLookup
	Logger     *slog.Logger
}

// Handler は Gateway を gin のルートに結び付けます。
type Handler struct {
	gateway    *Gateway
	subject    SubjectFactory
	renderer   Renderer
	metrics    metrics.Recorder
	audit      audit.Publisher
	activity   audit.Reader
	identities IdentityLookup
	logger     *slog.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(gw *Gateway, subject SubjectFactory, opts HandlerOptions) *Handler {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.Nop{}
	}
	if opts.Activity == nil {
		opts.Activity = audit.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		gateway:    gw,
		subject:    subject,
		renderer:   opts.Renderer,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		activity:   opts.Activity,
		identities: opts.Identities,
		logger:     opts.Logger,
	}
}

// RegisterRoutes は /identity 配下の6つのルートを登録します。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/identity")
	g.GET("/login", h.ShowLogin)
	g.GET("/logout", h.Logout)
	g.GET("/registration", h.ShowRegistration)
	g.POST("/register", h.Register)
	g.POST("/authenticate", h.Authenticate)
	g.GET("/unauthorized", h.Unauthorized)
}

// ShowLogin は GET /identity/login のハンドラーです。
func (h *Handler) ShowLogin(c *gin.Context) {
	h.renderer.Render(c, http.StatusOK, h.gateway.ShowLogin())
}

// ShowRegistration は GET /identity/registration のハンドラーです。
func (h *Handler) ShowRegistration(c *gin.Context) {
	h.renderer.Render(c, http.StatusOK, h.gateway.ShowRegistration())
}

// Logout は GET /identity/logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	sc := h.subject(c)
	username := sc.CurrentSession().Principal()

	out := h.gateway.Logout(c.Request.Context(), sc)
	h.metrics.RecordLogout(metrics.LogoutRequested)
	h.publish(c, audit.KindLoggedOut, username)
	h.renderer.Render(c, http.StatusOK, out)
}

// Unauthorized は GET /identity/unauthorized のハンドラーです。
func (h *Handler) Unauthorized(c *gin.Context) {
	sc := h.subject(c)
	username := sc.CurrentSession().Principal()

	out := h.gateway.Unauthorized(c.Request.Context(), sc)
	h.metrics.RecordLogout(metrics.LogoutUnauthorized)
	h.publish(c, audit.KindUnauthorized, username)
	h.renderer.Render(c, http.StatusOK, out)
}

// Register は POST /identity/register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	var req identity.RegistrationRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Debug("failed to bind registration form", slog.String("error", err.Error()))
		req = identity.RegistrationRequest{}
	}

	out, err := h.gateway.Register(c.Request.Context(), req)
	if err != nil {
		var regErr *identity.RegistrationError
		if errors.As(err, &regErr) && regErr.IsDuplicate() {
			h.metrics.RecordRegistration(metrics.RegistrationDuplicate)
			h.logger.Info("registration rejected", slog.String("username", req.Username), slog.String("error", err.Error()))
			h.renderer.Render(c, http.StatusConflict, view(ViewRegistration, ResultInvalid, Model{
				AttrRegistration:      req,
				AttrRegistrationError: duplicateMessage,
			}))
			return
		}

		h.metrics.RecordRegistration(metrics.RegistrationError)
		h.logger.Error("registration failed", slog.String("username", req.Username), slog.String("error", err.Error()))
		respondInternalError(c)
		return
	}

	switch out.Result {
	case ResultRegistered:
		h.metrics.RecordRegistration(metrics.RegistrationRegistered)
		h.publish(c, audit.KindRegistered, req.Username)
	case ResultInvalid:
		h.metrics.RecordRegistration(metrics.RegistrationInvalid)
	}
	h.renderer.Render(c, http.StatusOK, out)
}

// Authenticate は POST /identity/authenticate のハンドラーです。
func (h *Handler) Authenticate(c *gin.Context) {
	var req identity.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Debug("failed to bind login form", slog.String("error", err.Error()))
		req = identity.LoginRequest{}
	}

	out, err := h.gateway.Authenticate(c.Request.Context(), h.subject(c), req)
	if err != nil {
		h.logger.Error("login failed", slog.String("username", req.Username), slog.String("error", err.Error()))
		respondInternalError(c)
		return
	}

	switch out.Result {
	case ResultAuthenticated:
		h.metrics.RecordLogin(metrics.LoginAuthenticated)
		h.publish(c, audit.KindAuthenticated, req.Username)
	case ResultRejected:
		h.metrics.RecordLogin(metrics.LoginRejected)
		if h.known(c, req.Username) {
			h.publish(c, audit.KindRejected, req.Username)
		}
	case ResultInvalid:
		h.metrics.RecordLogin(metrics.LoginInvalid)
	}
	h.renderer.Render(c, http.StatusOK, out)
}

// Home は GET / のハンドラーです。
func (h *Handler) Home(c *gin.Context) {
	h.renderer.Render(c, http.StatusOK, view(ViewHome, ResultShown, nil))
}

// Index は GET /index のハンドラーです。
// security.Manager.RequireAuthenticated の後ろに置く必要があります。
func (h *Handler) Index(c *gin.Context) {
	principal := c.GetString(security.ContextPrincipalKey)

	events, err := h.activity.Recent(c.Request.Context(), principal, recentActivityLimit)
	if err != nil {
		h.logger.Warn("failed to load recent activity",
			slog.String("username", principal),
			slog.String("error", err.Error()),
		)
		events = nil
	}
	if events == nil {
		events = []audit.Event{}
	}

	h.renderer.Render(c, http.StatusOK, view(ViewIndex, ResultShown, Model{
		AttrPrincipal:      principal,
		AttrRecentActivity: events,
	}))
}

// known は登録済みのユーザー名の場合だけ true を返します。
// 未登録の名前でイベントを発行すると、監査ストアに任意のキーが作られてしまう。
func (h *Handler) known(c *gin.Context, username string) bool {
	if h.identities == nil {
		return false
	}
	ok, err := h.identities.Exists(c.Request.Context(), username)
	if err != nil {
		h.logger.Warn("failed to look up identity", slog.String("error", err.Error()))
		return false
	}
	return ok
}

// publish は監査イベントを発行します。失敗はレスポンスに影響しません。
func (h *Handler) publish(c *gin.Context, kind audit.Kind, username string) {
	if username == "" {
		return
	}
	event := audit.NewEvent(kind, username, c.ClientIP())
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.audit.Publish(ctx, event); err != nil {
		h.logger.Warn("failed to publish audit event",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}
