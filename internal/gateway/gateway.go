// Package gateway は識別情報まわりのリクエスト（ログイン・登録・ログアウト・未認証）を
// ビュー選択とリダイレクトに変換します。
//
// 副作用はすべてセキュリティコンテキストと識別情報サービスに委譲し、
// Gateway 自体は状態を持ちません。セキュリティコンテキストは呼び出しごとに渡されます。
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/yourusername/identity-gateway/internal/identity"
	"github.com/yourusername/identity-gateway/internal/security"
)

// IdentityService は登録を永続化するサービスです。
type IdentityService interface {
	RegisterIdentity(ctx context.Context, req identity.RegistrationRequest) (*identity.Identity, error)
}

// Validator はリクエストを検証し、フィールドエラーの集合を返します。
type Validator interface {
	Validate(req any) identity.FieldErrors
}

// AuthenticationOutcome は1回のログイン試行の結果です。
type AuthenticationOutcome struct {
	Authenticated bool
	Reason        string
}

// Config は Gateway の設定です。
type Config struct {
	RememberMe bool   // ログイン時の remember me フラグ
	IndexPath  string // 認証成功時のリダイレクト先
}

// DefaultConfig は従来の挙動（remember me 有効、/index へリダイレクト）を返します。
func DefaultConfig() Config {
	return Config{RememberMe: true, IndexPath: "/index"}
}

// Gateway は6種類のリクエストをビュー選択に変換します。
type Gateway struct {
	identities IdentityService
	validator  Validator
	cfg        Config
	logger     *slog.Logger
}

// New は Gateway を作成します。
func New(identities IdentityService, validator Validator, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.IndexPath == "" {
		cfg.IndexPath = DefaultConfig().IndexPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		identities: identities,
		validator:  validator,
		cfg:        cfg,
		logger:     logger,
	}
}

// ShowLogin はログインフォームを表示します。
func (g *Gateway) ShowLogin() Outcome {
	g.logger.Debug("show login form")
	return view(ViewLogin, ResultShown, Model{AttrLoginForm: identity.LoginRequest{}})
}

// ShowRegistration は登録フォームを表示します。
func (g *Gateway) ShowRegistration() Outcome {
	g.logger.Debug("show registration form")
	return view(ViewRegistration, ResultShown, Model{AttrRegistration: identity.RegistrationRequest{}})
}

// Logout はセッションを無条件に破棄し、ホームを表示します。
// セッションが無くても同じ結果になります。
func (g *Gateway) Logout(ctx context.Context, sc security.Context) Outcome {
	g.logout(ctx, sc, "logout")
	return view(ViewHome, ResultLoggedOut, nil)
}

// Unauthorized は中途半端なセッションを残さないよう無条件にログアウトし、
// 未認証ページを表示します。
func (g *Gateway) Unauthorized(ctx context.Context, sc security.Context) Outcome {
	g.logout(ctx, sc, "unauthorized")
	return view(ViewUnauthorized, ResultLoggedOut, nil)
}

func (g *Gateway) logout(ctx context.Context, sc security.Context, reason string) {
	if err := sc.Logout(ctx); err != nil {
		// ビューの結果は変えない
		g.logger.Warn("failed to clear session",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}

// Register は登録フォームの送信を処理します。
// 検証に失敗した場合は識別情報サービスを呼ばずにフォームを再表示します。
// サービスの失敗は *identity.RegistrationError のまま呼び出し元へ返します。
func (g *Gateway) Register(ctx context.Context, req identity.RegistrationRequest) (Outcome, error) {
	g.logger.Info("entering register")

	if errs := g.validator.Validate(req); !errs.Valid() {
		return view(ViewRegistration, ResultInvalid, Model{
			AttrRegistration: req,
			AttrErrors:       errs,
		}), nil
	}

	created, err := g.identities.RegisterIdentity(ctx, req)
	if err != nil {
		return Outcome{}, err
	}

	return view(ViewRegistered, ResultRegistered, Model{
		AttrRegistration: req,
		AttrIdentity:     created,
	}), nil
}

// Authenticate はログインフォームの送信を処理します。
//
// ログインを1回だけ試行し、その成否に関わらずセッションの認証状態を改めて問い合わせ、
// その結果でリダイレクトかフォーム再表示かを決めます。
// 認証エラーはログに残すだけで呼び出し元へは返しません。
func (g *Gateway) Authenticate(ctx context.Context, sc security.Context, req identity.LoginRequest) (Outcome, error) {
	g.logger.Info("entering authenticate")

	form := identity.LoginRequest{Username: req.Username}

	if errs := g.validator.Validate(req); !errs.Valid() {
		return view(ViewLogin, ResultInvalid, Model{
			AttrLoginForm: form,
			AttrErrors:    errs,
		}), nil
	}

	token := security.UsernamePasswordToken{
		Username:   req.Username,
		Passphrase: req.Passphrase,
		RememberMe: g.cfg.RememberMe,
	}

	attempt, err := g.attemptLogin(ctx, sc, token)
	if err != nil {
		return Outcome{}, err
	}
	if attempt.Authenticated {
		g.logger.Info("authentication succeeded", slog.String("username", req.Username))
	} else {
		g.logger.Info("authentication failed",
			slog.String("username", req.Username),
			slog.String("reason", attempt.Reason),
		)
	}

	// ログイン呼び出しの結果ではなく、セッションの状態を正とする
	if sc.IsAuthenticated() {
		return redirect(g.cfg.IndexPath, ResultAuthenticated), nil
	}

	return view(ViewLogin, ResultRejected, Model{AttrLoginForm: form}), nil
}

func (g *Gateway) attemptLogin(ctx context.Context, sc security.Context, token security.UsernamePasswordToken) (AuthenticationOutcome, error) {
	err := sc.Login(ctx, token)
	if err == nil {
		return AuthenticationOutcome{Authenticated: true}, nil
	}

	var authErr *security.AuthenticationError
	if errors.As(err, &authErr) {
		return AuthenticationOutcome{Reason: authErr.Reason}, nil
	}
	return AuthenticationOutcome{}, err
}
