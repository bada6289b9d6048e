package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttlePruneThreshold = 4096

// Throttle はキー（クライアントIP）ごとのログイン失敗をトークンバケットで数えます。
// maxAttempts 回失敗するとバケットが空になり、window/maxAttempts ごとに1回分回復します。
type Throttle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*rate.Limiter
	now     func() time.Time
}

// NewThrottle は Throttle を作成します。
func NewThrottle(maxAttempts int, window time.Duration) *Throttle {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Throttle{
		limit:   rate.Every(window / time.Duration(maxAttempts)),
		burst:   maxAttempts,
		entries: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

// Check はロック中であれば解除までの時間を返します。ロックされていなければ0です。
func (t *Throttle) Check(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	lim, ok := t.entries[key]
	if !ok {
		return 0
	}
	tokens := lim.TokensAt(t.now())
	if tokens >= 1 {
		return 0
	}
	wait := time.Duration((1 - tokens) / float64(t.limit) * float64(time.Second))
	if wait <= 0 {
		return 0
	}
	return wait
}

// RecordFailure は失敗を記録し、残りの試行回数を返します。
func (t *Throttle) RecordFailure(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	lim, ok := t.entries[key]
	if !ok {
		if len(t.entries) >= throttlePruneThreshold {
			t.pruneLocked(now)
		}
		lim = rate.NewLimiter(t.limit, t.burst)
		t.entries[key] = lim
	}
	lim.AllowN(now, 1)

	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset はキーの失敗記録を消去します。
func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// 完全に回復したエントリを削除する
func (t *Throttle) pruneLocked(now time.Time) {
	for key, lim := range t.entries {
		if lim.TokensAt(now) >= float64(t.burst) {
			delete(t.entries, key)
		}
	}
}
