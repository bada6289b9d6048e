package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionCookieName はセッションクッキーの名前です。
	SessionCookieName = "ig_session"

	sessionKeyID         = "sid"
	sessionKeyPrincipal  = "principal"
	sessionKeyIdentityID = "identity_id"
	sessionKeyRemembered = "remembered"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
)

var (
	defaultSessionLifetime = 12 * time.Hour
	defaultIdleTimeout     = 30 * time.Minute
)

// ContextPrincipalKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextPrincipalKey = "security.principal"

// Options は Manager の設定です。
type Options struct {
	Cookie             sessions.Options // セッションクッキーの基本設定
	SessionLifetime    time.Duration    // remember me でないセッションの最大寿命
	IdleTimeout        time.Duration    // remember me でないセッションの無操作タイムアウト
	RememberMeLifetime time.Duration    // remember me セッションの寿命
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	UnauthorizedPath   string // 未認証アクセスのリダイレクト先
}

// Manager はリクエストごとのセキュリティコンテキストを生成します。
type Manager struct {
	realm    Realm
	throttle *Throttle
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager は Manager を作成します。
func NewManager(realm Realm, opts Options, logger *slog.Logger) *Manager {
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = defaultSessionLifetime
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.RememberMeLifetime <= 0 {
		opts.RememberMeLifetime = 14 * 24 * time.Hour
	}
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = 5
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = 15 * time.Minute
	}
	if opts.UnauthorizedPath == "" {
		opts.UnauthorizedPath = "/identity/unauthorized"
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		realm:    realm,
		throttle: NewThrottle(opts.MaxLoginAttempts, opts.LoginWindow),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Subject は現在のリクエストのセキュリティコンテキストを返します。
// sessions.Sessions ミドルウェアの後で呼び出す必要があります。
func (m *Manager) Subject(c *gin.Context) *SessionContext {
	return &SessionContext{
		manager:  m,
		session:  sessions.Default(c),
		clientIP: c.ClientIP(),
	}
}

// RequireAuthenticated は認証済みセッションを要求するミドルウェアを返します。
// 未認証の場合は UnauthorizedPath へリダイレクトします。
func (m *Manager) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := m.Subject(c)
		if !sc.IsAuthenticated() {
			c.Redirect(http.StatusSeeOther, m.opts.UnauthorizedPath)
			c.Abort()
			return
		}

		if err := sc.touch(); err != nil {
			m.logger.Warn("failed to refresh session activity", slog.String("error", err.Error()))
		}
		c.Set(ContextPrincipalKey, sc.CurrentSession().Principal())
		c.Next()
	}
}

func (m *Manager) cookieOptions(remember bool) sessions.Options {
	opts := m.opts.Cookie
	if remember {
		opts.MaxAge = int(m.opts.RememberMeLifetime.Seconds())
	} else {
		// ブラウザセッションのみ
		opts.MaxAge = 0
	}
	return opts
}

// SessionContext は gin-contrib/sessions のセッションに基づく Context の実装です。
type SessionContext struct {
	manager  *Manager
	session  sessions.Session
	clientIP string
}

var _ Context = (*SessionContext)(nil)

// CurrentSession は現在のセッションを返します。
func (sc *SessionContext) CurrentSession() Session {
	return sessionView{s: sc.session}
}

// Login は資格情報を照合し、成功した場合はセッションを作り直します。
func (sc *SessionContext) Login(ctx context.Context, token UsernamePasswordToken) error {
	m := sc.manager

	if retryAfter := m.throttle.Check(sc.clientIP); retryAfter > 0 {
		return &AuthenticationError{Reason: "too many failed attempts", RetryAfter: retryAfter}
	}

	principal, err := m.realm.Authenticate(ctx, token)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			remaining := m.throttle.RecordFailure(sc.clientIP)
			m.logger.Debug("login attempt rejected",
				slog.String("client_ip", sc.clientIP),
				slog.Int("remaining_attempts", remaining),
			)
		}
		return err
	}
	m.throttle.Reset(sc.clientIP)

	now := m.now()
	s := sc.session
	s.Clear()
	s.Set(sessionKeyID, uuid.NewString())
	s.Set(sessionKeyPrincipal, principal.Username)
	s.Set(sessionKeyIdentityID, principal.IdentityID)
	s.Set(sessionKeyRemembered, token.RememberMe)
	s.Set(sessionKeyIssuedAt, now.Unix())
	s.Set(sessionKeyLastActive, now.Unix())
	s.Options(m.cookieOptions(token.RememberMe))

	if err := s.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Logout はセッションの識別情報をすべて消去し、クッキーを失効させます。
func (sc *SessionContext) Logout(ctx context.Context) error {
	s := sc.session
	s.Clear()
	opts := sc.manager.opts.Cookie
	opts.MaxAge = -1
	s.Options(opts)
	if err := s.Save(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// IsAuthenticated は現在のセッションが認証済みで期限内かどうかを返します。
func (sc *SessionContext) IsAuthenticated() bool {
	view := sessionView{s: sc.session}
	if view.Principal() == "" {
		return false
	}

	m := sc.manager
	now := m.now()
	issuedAt := view.IssuedAt()
	if issuedAt.IsZero() {
		return false
	}

	if view.Remembered() {
		return now.Sub(issuedAt) <= m.opts.RememberMeLifetime
	}

	if now.Sub(issuedAt) > m.opts.SessionLifetime {
		return false
	}
	lastActive := readUnix(sc.session.Get(sessionKeyLastActive))
	if lastActive.IsZero() || now.Sub(lastActive) > m.opts.IdleTimeout {
		return false
	}
	return true
}

// touch は最終操作時刻を更新します。
// 再保存でクッキーの寿命が変わらないよう、ログイン時と同じオプションを付け直します。
func (sc *SessionContext) touch() error {
	m := sc.manager
	sc.session.Set(sessionKeyLastActive, m.now().Unix())
	sc.session.Options(m.cookieOptions(sessionView{s: sc.session}.Remembered()))
	return sc.session.Save()
}

type sessionView struct {
	s sessions.Session
}

func (v sessionView) ID() string {
	id, _ := v.s.Get(sessionKeyID).(string)
	return id
}

func (v sessionView) Principal() string {
	p, _ := v.s.Get(sessionKeyPrincipal).(string)
	return p
}

func (v sessionView) IdentityID() string {
	id, _ := v.s.Get(sessionKeyIdentityID).(string)
	return id
}

func (v sessionView) Remembered() bool {
	r, _ := v.s.Get(sessionKeyRemembered).(bool)
	return r
}

func (v sessionView) IssuedAt() time.Time {
	return readUnix(v.s.Get(sessionKeyIssuedAt))
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
