package identity

import (
	"context"
	"sync"
)

// MemoryStore はプロセス内メモリに識別情報を保持します（開発・テスト用）。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Create は識別情報を保存します。
func (s *MemoryStore) Create(ctx context.Context, record *Record) error {
	key := normalizeUsername(record.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; ok {
		return ErrDuplicateIdentity
	}
	s.records[key] = *record
	return nil
}

// FindByUsername はユーザー名で識別情報を取得します。
func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[normalizeUsername(username)]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}
