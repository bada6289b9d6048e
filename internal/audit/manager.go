package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	taskTypeAudit = "identity:audit"
	queueAudit    = "audit"
)

type appender interface {
	Append(ctx context.Context, event Event) error
}

// Manager はイベントの投入とワーカーによる保存を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  appender
	logger *slog.Logger
}

var _ Publisher = (*Manager)(nil)

// NewManager は Manager を初期化します。
func NewManager(redisURL string, store *Store, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueAudit: 1,
			},
		},
	)

	manager := &Manager{
		client: asynq.NewClient(opt),
		server: server,
		mux:    asynq.NewServeMux(),
		store:  store,
		logger: logger,
	}
	manager.mux.HandleFunc(taskTypeAudit, manager.handleAuditTask)
	return manager, nil
}

// Publish はイベントをキューに投入します。
func (m *Manager) Publish(ctx context.Context, event Event) error {
	task, err := newAuditTask(event)
	if err != nil {
		return err
	}
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue audit event: %w", err)
	}
	return nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", slog.String("error", err.Error()))
		}
	}()
}

// RunWorkers はシグナルを受けるまでワーカーを実行します（worker コマンド用）。
func (m *Manager) RunWorkers() error {
	return m.server.Run(m.mux)
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

func newAuditTask(event Event) (*asynq.Task, error) {
	if event.Username == "" {
		return nil, fmt.Errorf("event username is required")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeAudit, body, asynq.Queue(queueAudit)), nil
}

func (m *Manager) handleAuditTask(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("decode audit event: %v: %w", err, asynq.SkipRetry)
	}
	if err := m.store.Append(ctx, event); err != nil {
		return err
	}
	m.logger.Debug("audit event recorded",
		slog.String("kind", string(event.Kind)),
		slog.String("username", event.Username),
	)
	return nil
}
