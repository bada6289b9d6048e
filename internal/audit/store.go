package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	auditKeyPrefix   = "audit:"
	defaultKeepLimit = 50
)

// Store はユーザーごとのイベントを Redis のリストに保存します。
type Store struct {
	rdb   *redis.Client
	ttl   time.Duration
	limit int64
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb:   rdb,
		ttl:   ttl,
		limit: defaultKeepLimit,
	}
}

// Append はイベントを先頭に追加し、保持件数と有効期限を更新します。
func (s *Store) Append(ctx context.Context, event Event) error {
	if event.Username == "" {
		return fmt.Errorf("event username is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := auditKey(event.Username)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, s.limit-1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Recent は新しい順にイベントを返します。
func (s *Store) Recent(ctx context.Context, username string, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	values, err := s.rdb.LRange(ctx, auditKey(username), 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	events := make([]Event, 0, len(values))
	for _, v := range values {
		var e Event
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func auditKey(username string) string {
	return auditKeyPrefix + strings.ToLower(strings.TrimSpace(username))
}
