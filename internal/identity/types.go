// Package identity は識別情報（ユーザー）の登録・検証とリクエストの入力検証を提供します。
package identity

import (
	"encoding/json"
	"time"
)

// LoginRequest はログインフォームの入力です。リクエスト中のみ存在します。
type LoginRequest struct {
	Username   string `form:"username" json:"username" validate:"required"`
	Passphrase string `form:"passphrase" json:"passphrase" validate:"required"`
}

// MarshalJSON はパスフレーズを出力しません。
func (r LoginRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Username string `json:"username"`
	}{Username: r.Username})
}

// RegistrationRequest は登録フォームの入力です。リクエスト中のみ存在します。
type RegistrationRequest struct {
	Username          string `form:"username" json:"username" validate:"required,min=3,max=64,username"`
	Email             string `form:"email" json:"email" validate:"required,email,max=254"`
	Passphrase        string `form:"passphrase" json:"passphrase" validate:"required,min=8,maxbytes=72"`
	ConfirmPassphrase string `form:"confirmPassphrase" json:"confirmPassphrase" validate:"required,eqfield=Passphrase"`
}

// MarshalJSON はパスフレーズを出力しません。
func (r RegistrationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}{Username: r.Username, Email: r.Email})
}

// Identity は登録済みの識別情報です。識別情報サービスだけが生成します。
type Identity struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record はストアに保存される識別情報とパスフレーズのハッシュです。
type Record struct {
	Identity
	PasswordHash string `json:"passwordHash"`
	HashVersion  string `json:"hashVersion"`
}
