// Package audit は識別情報のライフサイクルイベントを非同期に記録します。
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind はイベントの種別です。
type Kind string

const (
	KindRegistered    Kind = "registered"
	KindAuthenticated Kind = "authenticated"
	KindRejected      Kind = "rejected"
	KindLoggedOut     Kind = "logged_out"
	KindUnauthorized  Kind = "unauthorized"
)

// Event は1件の監査イベントです。
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Username   string    `json:"username"`
	ClientIP   string    `json:"clientIp,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewEvent はIDと発生時刻を付けたイベントを作成します。
func NewEvent(kind Kind, username, clientIP string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Username:   username,
		ClientIP:   clientIP,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher はイベントを発行します。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Reader はユーザーごとの直近イベントを読み出します。
type Reader interface {
	Recent(ctx context.Context, username string, limit int) ([]Event, error)
}

// Nop は監査ログが無効な場合の Publisher/Reader です。
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]Event, error) { return nil, nil }
