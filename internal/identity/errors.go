package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentity は同じユーザー名が既に登録されている場合に返ります。
	ErrDuplicateIdentity = errors.New("identity already exists")
	// ErrInvalidCredentials はユーザーが存在しないかパスフレーズが一致しない場合に返ります。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotFound はストアに識別情報が無い場合に返ります。
	ErrNotFound = errors.New("identity not found")
)

// RegistrationError は登録処理の失敗を表します。
type RegistrationError struct {
	Username string
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register identity %q: %v", e.Username, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// IsDuplicate は重複登録による失敗かどうかを返します。
func (e *RegistrationError) IsDuplicate() bool {
	return errors.Is(e.Err, ErrDuplicateIdentity)
}
