package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yourusername/identity-gateway/internal/audit"
	"github.com/yourusername/identity-gateway/internal/identity"
	"github.com/yourusername/identity-gateway/internal/security"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSession struct {
	principal string
}

func (s stubSession) ID() string          { return "" }
func (s stubSession) Principal() string   { return s.principal }
func (s stubSession) IdentityID() string  { return "" }
func (s stubSession) Remembered() bool    { return false }
func (s stubSession) IssuedAt() time.Time { return time.Time{} }

// stubContext は呼び出しを記録するセキュリティコンテキストです。
// grant が true の場合、Login の戻り値に関わらず以後 IsAuthenticated は true になります。
type stubContext struct {
	principal     string
	authenticated bool
	grant         bool
	loginErr      error
	logoutErr     error

	tokens      []security.UsernamePasswordToken
	logoutCalls int
}

func (s *stubContext) CurrentSession() security.Session {
	return stubSession{principal: s.principal}
}

func (s *stubContext) Login(ctx context.Context, token security.UsernamePasswordToken) error {
	s.tokens = append(s.tokens, token)
	if s.grant {
		s.authenticated = true
		s.principal = token.Username
	}
	return s.loginErr
}

func (s *stubContext) Logout(ctx context.Context) error {
	s.logoutCalls++
	s.authenticated = false
	s.principal = ""
	return s.logoutErr
}

func (s *stubContext) IsAuthenticated() bool {
	return s.authenticated
}

type stubIdentityService struct {
	identity *identity.Identity
	err      error
	calls    []identity.RegistrationRequest
}

func (s *stubIdentityService) RegisterIdentity(ctx context.Context, req identity.RegistrationRequest) (*identity.Identity, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, &identity.RegistrationError{Username: req.Username, Err: s.err}
	}
	return s.identity, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) kinds() []audit.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audit.Kind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingMetrics struct {
	logins        []string
	registrations []string
	logouts       []string
}

func (m *recordingMetrics) RecordLogin(outcome string)        { m.logins = append(m.logins, outcome) }
func (m *recordingMetrics) RecordRegistration(outcome string) { m.registrations = append(m.registrations, outcome) }
func (m *recordingMetrics) RecordLogout(reason string)        { m.logouts = append(m.logouts, reason) }

type stubLookup struct {
	known map[string]bool
	err   error
}

func (l stubLookup) Exists(ctx context.Context, username string) (bool, error) {
	return l.known[username], l.err
}

type stubActivity struct {
	events []audit.Event
	err    error
	asked  string
}

func (a *stubActivity) Recent(ctx context.Context, username string, limit int) ([]audit.Event, error) {
	a.asked = username
	return a.events, a.err
}

func validRegistration() identity.RegistrationRequest {
	return identity.RegistrationRequest{
		Username:          "bob",
		Email:             "bob@example.com",
		Passphrase:        "correct horse",
		ConfirmPassphrase: "correct horse",
	}
}
