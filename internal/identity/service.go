package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashVersionBcrypt は保存しているハッシュ方式です。
const HashVersionBcrypt = "bcrypt"

// Service は識別情報の登録と資格情報の照合を提供します。
type Service struct {
	store  Store
	cost   int
	logger *slog.Logger
	now    func() time.Time
}

// Option は Service の設定を変更します。
type Option func(*Service)

// WithBcryptCost は bcrypt のコストを指定します（テストでは bcrypt.MinCost を使う）。
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithLogger はロガーを指定します。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は Service を作成します。
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cost:   bcrypt.DefaultCost,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterIdentity は検証済みの登録リクエストから識別情報を作成します。
// 失敗は常に *RegistrationError で返ります。
func (s *Service) RegisterIdentity(ctx context.Context, req RegistrationRequest) (*Identity, error) {
	username := strings.TrimSpace(req.Username)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Passphrase), s.cost)
	if err != nil {
		return nil, &RegistrationError{Username: username, Err: fmt.Errorf("hash passphrase: %w", err)}
	}

	record := &Record{
		Identity: Identity{
			ID:        uuid.NewString(),
			Username:  username,
			Email:     strings.TrimSpace(req.Email),
			CreatedAt: s.now().UTC(),
		},
		PasswordHash: string(hash),
		HashVersion:  HashVersionBcrypt,
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, &RegistrationError{Username: username, Err: err}
	}

	s.logger.Info("identity registered",
		slog.String("identity_id", record.ID),
		slog.String("username", record.Username),
	)

	identity := record.Identity
	return &identity, nil
}

// Authenticate はユーザー名とパスフレーズを照合します。
// ユーザーの有無は区別せず ErrInvalidCredentials を返します。
func (s *Service) Authenticate(ctx context.Context, username, passphrase string) (*Identity, error) {
	record, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(passphrase)); err != nil {
		return nil, ErrInvalidCredentials
	}

	identity := record.Identity
	return &identity, nil
}

// Exists はユーザー名が登録済みかどうかを返します。
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	if _, err := s.store.FindByUsername(ctx, username); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find identity: %w", err)
	}
	return true, nil
}
