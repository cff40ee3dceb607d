// Package cli implements the tgmon command tree: the long-running monitor
// daemon plus management commands for accounts, watches, and the aggregator.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tgmon/internal/config"
	"tgmon/internal/storage"
	logx "tgmon/pkg/logx"
)

const defaultConfigPath = "./config.yaml"

func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return defaultConfigPath
	}
	return path
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// openStore loads the config and opens the sqlite repository behind it.
// Management commands run quiet; the daemon opens its own store with a
// real logger.
func openStore(cmd *cobra.Command) (storage.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	bt, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, nil, err
	}
	st, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: bt}, logx.Nop())
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}
