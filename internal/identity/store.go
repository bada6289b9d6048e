package identity

import (
	"context"
	"strings"
)

// Store は識別情報の永続化を担います。
// Create はユーザー名が既に存在する場合 ErrDuplicateIdentity を返します。
// FindByUsername は見つからない場合 ErrNotFound を返します。
type Store interface {
	Create(ctx context.Context, record *Record) error
	FindByUsername(ctx context.Context, username string) (*Record, error)
}

// normalizeUsername はストアのキーに使うユーザー名の正規形です。
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
