package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	identityKeyPrefix = "identity:"
)

// RedisStore は識別情報を Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Create は識別情報を保存します。SETNX で重複登録を防ぎます。
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, identityKey(record.Username), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateIdentity
	}
	return nil
}

// FindByUsername はユーザー名で識別情報を取得します。
func (s *RedisStore) FindByUsername(ctx context.Context, username string) (*Record, error) {
	data, err := s.rdb.Get(ctx, identityKey(username)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func identityKey(username string) string {
	return identityKeyPrefix + normalizeUsername(username)
}
