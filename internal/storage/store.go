package storage

import (
	"context"
	"errors"
	"strings"

	logx "tgmon/pkg/logx"
)

// Store is the persistence API consumed by the CLI and the monitor manager.
type Store interface {
	AddAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, name string) (Account, error)
	ListAccounts(ctx context.Context, enabledOnly bool) ([]Account, error)
	SetAccountEnabled(ctx context.Context, name string, enabled bool) error
	RemoveAccount(ctx context.Context, name string) error

	AddWatch(ctx context.Context, w Watch) (int64, error)
	ListWatches(ctx context.Context, accountName string, enabledOnly bool) ([]Watch, error)
	SetWatchEnabled(ctx context.Context, id int64, enabled bool) error
	RemoveWatch(ctx context.Context, id int64) error
	// UpdateWatchResolved persists a resolved (chat id, title) delta.
	UpdateWatchResolved(ctx context.Context, id int64, chatID int64, title string) error

	SetAggregator(ctx context.Context, a Aggregator) error
	GetAggregator(ctx context.Context) (Aggregator, error)
	UpdateAggregatorResolved(ctx context.Context, chatID int64, title string) error

	Close() error
}

// Open initializes the sqlite store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
