package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresStore は PostgreSQL の identities テーブルを使うストアです。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore は PostgresStore を作成します。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create は識別情報を保存します。
func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, username_key, email, password_hash, hash_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.Username, normalizeUsername(record.Username), record.Email,
		record.PasswordHash, record.HashVersion, record.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateIdentity
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// FindByUsername はユーザー名で識別情報を取得します。
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*Record, error) {
	record := &Record{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, hash_version, created_at
		 FROM identities WHERE username_key = $1`,
		normalizeUsername(username),
	).Scan(&record.ID, &record.Username, &record.Email, &record.PasswordHash, &record.HashVersion, &record.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by username: %w", err)
	}
	return record, nil
}
