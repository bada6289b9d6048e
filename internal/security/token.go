// Package security はリクエスト単位のセキュリティコンテキスト（ログイン・ログアウト・認証状態）を提供します。
//
// セッションの保存には gin-contrib/sessions、資格情報の照合には Realm を使い、
// このパッケージ自体はパスフレーズのハッシュ化やセッションストアを実装しません。
package security

import (
	"context"
	"fmt"
	"time"
)

// UsernamePasswordToken はログイン時に照合する資格情報です。
type UsernamePasswordToken struct {
	Username   string
	Passphrase string
	RememberMe bool
}

// String はパスフレーズを含めません。
func (t UsernamePasswordToken) String() string {
	return fmt.Sprintf("UsernamePasswordToken{username=%q rememberMe=%t}", t.Username, t.RememberMe)
}

// AuthenticationError は資格情報が受け入れられなかったことを表します。
// Reason はログ用であり、利用者へそのまま表示してはいけません。
type AuthenticationError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Session は現在のセッションの読み取り専用ビューです。
type Session interface {
	ID() string
	Principal() string
	IdentityID() string
	Remembered() bool
	IssuedAt() time.Time
}

// Context はリクエスト単位のセキュリティコンテキストです。
// Logout はセッションが無い場合でも失敗しません。
type Context interface {
	CurrentSession() Session
	Login(ctx context.Context, token UsernamePasswordToken) error
	Logout(ctx context.Context) error
	IsAuthenticated() bool
}
