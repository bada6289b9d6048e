package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/identity-gateway/internal/audit"
	"github.com/yourusername/identity-gateway/internal/identity"
	"github.com/yourusername/identity-gateway/internal/metrics"
	"github.com/yourusername/identity-gateway/internal/security"
)

type rendered struct {
	View  string         `json:"view"`
	Model map[string]any `json:"model"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) rendered {
	t.Helper()
	var out rendered
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func postForm(router http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(router http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type stubRouter struct {
	router    *gin.Engine
	sc        *stubContext
	svc       *stubIdentityService
	metrics   *recordingMetrics
	publisher *recordingPublisher
}

func newStubRouter(t *testing.T) *stubRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &stubRouter{
		sc:        &stubContext{},
		svc:       &stubIdentityService{identity: &identity.Identity{ID: "1", Username: "bob"}},
		metrics:   &recordingMetrics{},
		publisher: &recordingPublisher{},
	}
	gw := New(s.svc, identity.NewValidator(), DefaultConfig(), nopLogger())
	h := NewHandler(gw, func(*gin.Context) security.Context { return s.sc }, HandlerOptions{
		Metrics:    s.metrics,
		Audit:      s.publisher,
		Identities: stubLookup{known: map[string]bool{"bob": true}},
		Logger:     nopLogger(),
	})

	s.router = gin.New()
	s.router.GET("/", h.Home)
	h.RegisterRoutes(s.router)
	return s
}

func TestHandlerShowRoutes(t *testing.T) {
	s := newStubRouter(t)

	for path, want := range map[string]string{
		"/":                      ViewHome,
		"/identity/login":        ViewLogin,
		"/identity/registration": ViewRegistration,
	} {
		rec := get(s.router, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, decode(t, rec).View, path)
	}
}

func TestHandlerRegister(t *testing.T) {
	form := url.Values{
		"username":          {"bob"},
		"email":             {"bob@example.com"},
		"passphrase":        {"correct horse"},
		"confirmPassphrase": {"correct horse"},
	}

	t.Run("registered", func(t *testing.T) {
		s := newStubRouter(t)

		rec := postForm(s.router, "/identity/register", form)

		require.Equal(t, http.StatusOK, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, ViewRegistered, out.View)
		assert.Contains(t, out.Model, AttrIdentity)
		assert.NotContains(t, rec.Body.String(), "correct horse")
		assert.Equal(t, []string{metrics.RegistrationRegistered}, s.metrics.registrations)
		assert.Equal(t, []audit.Kind{audit.KindRegistered}, s.publisher.kinds())
	})

	t.Run("invalid", func(t *testing.T) {
		s := newStubRouter(t)

		rec := postForm(s.router, "/identity/register", url.Values{"username": {"bob"}})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ViewRegistration, decode(t, rec).View)
		assert.Empty(t, s.svc.calls)
		assert.Equal(t, []string{metrics.RegistrationInvalid}, s.metrics.registrations)
	})

	t.Run("duplicate", func(t *testing.T) {
		s := newStubRouter(t)
		s.svc.err = identity.ErrDuplicateIdentity

		rec := postForm(s.router, "/identity/register", form)

		require.Equal(t, http.StatusConflict, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, ViewRegistration, out.View)
		assert.Equal(t, duplicateMessage, out.Model[AttrRegistrationError])
		assert.Equal(t, []string{metrics.RegistrationDuplicate}, s.metrics.registrations)
		assert.Empty(t, s.publisher.kinds())
	})

	t.Run("store failure", func(t *testing.T) {
		s := newStubRouter(t)
		s.svc.err = errors.New("connection refused")

		rec := postForm(s.router, "/identity/register", form)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.Equal(t, []string{metrics.RegistrationError}, s.metrics.registrations)
	})
}

func TestHandlerAuthenticate(t *testing.T) {
	form := url.Values{"username": {"bob"}, "passphrase": {"correct horse"}}

	t.Run("authenticated", func(t *testing.T) {
		s := newStubRouter(t)
		s.sc.grant = true

		rec := postForm(s.router, "/identity/authenticate", form)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/index", rec.Header().Get("Location"))
		assert.Equal(t, []string{metrics.LoginAuthenticated}, s.metrics.logins)
		assert.Equal(t, []audit.Kind{audit.KindAuthenticated}, s.publisher.kinds())
	})

	t.Run("rejected", func(t *testing.T) {
		s := newStubRouter(t)
		s.sc.loginErr = &security.AuthenticationError{Reason: "invalid credentials"}

		rec := postForm(s.router, "/identity/authenticate", form)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ViewLogin, decode(t, rec).View)
		assert.NotContains(t, rec.Body.String(), "invalid credentials")
		assert.NotContains(t, rec.Body.String(), "correct horse")
		assert.Equal(t, []string{metrics.LoginRejected}, s.metrics.logins)
		assert.Equal(t, []audit.Kind{audit.KindRejected}, s.publisher.kinds())
	})

	t.Run("rejected for unknown username", func(t *testing.T) {
		s := newStubRouter(t)
		s.sc.loginErr = &security.AuthenticationError{Reason: "invalid credentials"}

		for i := 0; i < 3; i++ {
			rec := postForm(s.router, "/identity/authenticate", url.Values{
				"username":   {fmt.Sprintf("nobody-%d", i)},
				"passphrase": {"guess"},
			})
			require.Equal(t, http.StatusOK, rec.Code)
		}

		assert.Equal(t, []string{metrics.LoginRejected, metrics.LoginRejected, metrics.LoginRejected}, s.metrics.logins)
		assert.Empty(t, s.publisher.kinds())
	})

	t.Run("invalid", func(t *testing.T) {
		s := newStubRouter(t)

		rec := postForm(s.router, "/identity/authenticate", url.Values{})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ViewLogin, decode(t, rec).View)
		assert.Empty(t, s.sc.tokens)
		assert.Equal(t, []string{metrics.LoginInvalid}, s.metrics.logins)
	})

	t.Run("session failure", func(t *testing.T) {
		s := newStubRouter(t)
		s.sc.loginErr = errors.New("save session: boom")

		rec := postForm(s.router, "/identity/authenticate", form)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandlerLogoutAndUnauthorized(t *testing.T) {
	s := newStubRouter(t)
	s.sc.principal = "bob"
	s.sc.authenticated = true

	rec := get(s.router, "/identity/logout")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ViewHome, decode(t, rec).View)

	// セッションが無くても同じ結果
	rec = get(s.router, "/identity/logout")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ViewHome, decode(t, rec).View)

	rec = get(s.router, "/identity/unauthorized")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ViewUnauthorized, decode(t, rec).View)

	assert.Equal(t, 3, s.sc.logoutCalls)
	assert.Equal(t, []string{metrics.LogoutRequested, metrics.LogoutRequested, metrics.LogoutUnauthorized}, s.metrics.logouts)
	// 匿名のログアウトは記録しない
	assert.Equal(t, []audit.Kind{audit.KindLoggedOut}, s.publisher.kinds())
}

func TestHandlerIndex(t *testing.T) {
	gin.SetMode(gin.TestMode)
	activity := &stubActivity{events: []audit.Event{audit.NewEvent(audit.KindAuthenticated, "bob", "10.0.0.1")}}
	h := NewHandler(New(&stubIdentityService{}, identity.NewValidator(), DefaultConfig(), nopLogger()), nil, HandlerOptions{
		Activity: activity,
		Logger:   nopLogger(),
	})

	router := gin.New()
	router.GET("/index", func(c *gin.Context) {
		c.Set(security.ContextPrincipalKey, "bob")
		c.Next()
	}, h.Index)

	rec := get(router, "/index")

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, ViewIndex, out.View)
	assert.Equal(t, "bob", out.Model[AttrPrincipal])
	assert.Len(t, out.Model[AttrRecentActivity], 1)
	assert.Equal(t, "bob", activity.asked)
}

// 実際のセッション・識別情報サービスを通した一連の流れ
func TestIdentityFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := identity.NewService(identity.NewMemoryStore(), identity.WithBcryptCost(bcrypt.MinCost), identity.WithLogger(nopLogger()))
	manager := security.NewManager(security.NewIdentityRealm(svc), security.Options{
		Cookie:             sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode},
		RememberMeLifetime: 24 * time.Hour,
	}, nopLogger())

	gw := New(svc, identity.NewValidator(), DefaultConfig(), nopLogger())
	h := NewHandler(gw, func(c *gin.Context) security.Context { return manager.Subject(c) }, HandlerOptions{Logger: nopLogger()})

	router := gin.New()
	router.Use(sessions.Sessions(security.SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	h.RegisterRoutes(router)
	router.GET("/index", manager.RequireAuthenticated(), h.Index)

	rec := get(router, "/index")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/identity/unauthorized", rec.Header().Get("Location"))

	rec = postForm(router, "/identity/register", url.Values{
		"username":          {"alice"},
		"email":             {"alice@example.com"},
		"passphrase":        {"wonderland"},
		"confirmPassphrase": {"wonderland"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ViewRegistered, decode(t, rec).View)

	rec = postForm(router, "/identity/authenticate", url.Values{"username": {"alice"}, "passphrase": {"wrong-pass"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ViewLogin, decode(t, rec).View)

	rec = postForm(router, "/identity/authenticate", url.Values{"username": {"alice"}, "passphrase": {"wonderland"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/index", rec.Header().Get("Location"))
	session := rec.Result().Cookies()
	require.NotEmpty(t, session)
	assert.Positive(t, session[0].MaxAge)

	rec = get(router, "/index", session...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode(t, rec).Model[AttrPrincipal])

	rec = get(router, "/identity/logout", session...)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)

	rec = get(router, "/index", cleared...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}
