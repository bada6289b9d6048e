package app

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/identity-gateway/internal/audit"
	"github.com/yourusername/identity-gateway/internal/config"
	"github.com/yourusername/identity-gateway/internal/database"
	"github.com/yourusername/identity-gateway/internal/identity"
)

// infra は外部リソースへの接続と、それを閉じる関数を保持します。
type infra struct {
	Identities identity.Store
	Audit      *audit.Manager
	Activity   audit.Reader

	closers []func() error
}

func (i *infra) addCloser(fn func() error) {
	i.closers = append(i.closers, fn)
}

// Close は開いた順と逆順に接続を閉じます。
func (i *infra) Close() error {
	var firstErr error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	i.closers = nil
	return firstErr
}

func setupInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*infra, error) {
	in := &infra{Activity: audit.Nop{}}

	store, err := setupIdentityStore(ctx, cfg, in)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.Identities = store

	if cfg.AuditEnabled() {
		manager, reader, err := setupAudit(cfg, logger, in)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.Audit = manager
		in.Activity = reader
	}

	return in, nil
}

func setupIdentityStore(ctx context.Context, cfg *config.Config, in *infra) (identity.Store, error) {
	switch cfg.IdentityStore {
	case config.StorePostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		in.addCloser(db.Close)
		return identity.NewPostgresStore(db), nil

	case config.StoreRedis:
		rdb, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		in.addCloser(rdb.Close)
		return identity.NewRedisStore(rdb), nil

	default:
		return identity.NewMemoryStore(), nil
	}
}

func setupAudit(cfg *config.Config, logger *slog.Logger, in *infra) (*audit.Manager, audit.Reader, error) {
	opt, err := redis.ParseURL(cfg.AuditRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse audit redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	in.addCloser(rdb.Close)

	store := audit.NewStore(rdb, cfg.AuditRetention())
	manager, err := audit.NewManager(cfg.AuditRedisURL, store, logger)
	if err != nil {
		return nil, nil, err
	}
	in.addCloser(manager.Shutdown)
	return manager, store, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
