package security

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/identity-gateway/internal/identity"
)

// Principal は認証済みの主体です。
type Principal struct {
	IdentityID string
	Username   string
}

// Realm は資格情報を照合します。
// 資格情報が不正な場合は *AuthenticationError を返します。
type Realm interface {
	Authenticate(ctx context.Context, token UsernamePasswordToken) (*Principal, error)
}

// CredentialVerifier は identity.Service の照合部分です。
type CredentialVerifier interface {
	Authenticate(ctx context.Context, username, passphrase string) (*identity.Identity, error)
}

// IdentityRealm は識別情報サービスで資格情報を照合する Realm です。
type IdentityRealm struct {
	verifier CredentialVerifier
}

// NewIdentityRealm は IdentityRealm を作成します。
func NewIdentityRealm(verifier CredentialVerifier) *IdentityRealm {
	return &IdentityRealm{verifier: verifier}
}

// Authenticate は資格情報を照合します。
func (r *IdentityRealm) Authenticate(ctx context.Context, token UsernamePasswordToken) (*Principal, error) {
	id, err := r.verifier.Authenticate(ctx, token.Username, token.Passphrase)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, &AuthenticationError{Reason: "invalid credentials", Err: err}
		}
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return &Principal{IdentityID: id.ID, Username: id.Username}, nil
}
