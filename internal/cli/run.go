package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"tgmon/internal/chat"
	"tgmon/internal/config"
	"tgmon/internal/eventbus"
	"tgmon/internal/monitor"
	"tgmon/internal/storage"
	"tgmon/internal/transport/telegram"
	logx "tgmon/pkg/logx"
)

const shutdownGrace = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon",
	Long:  "Run the monitor fleet until interrupted. The config file is watched; on change the fleet is rebuilt with the new settings.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Tokens referenced via --token-env often live in a .env next to
		// the binary; absence is not an error.
		_ = godotenv.Load()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mgr := config.NewManager(configPath(cmd))
		cfg, err := mgr.Load()
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath(cmd), err)
		}
		if err := validateConfig(ctx, cfg); err != nil {
			return err
		}

		svc, log := logx.New(logConfig(cfg))
		defer svc.Close()
		mgr.SetLogger(log.With(logx.String("component", "config")))
		mgr.SetValidator(validateConfig)

		bt, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return err
		}
		st, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: bt}, log)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer st.Close()

		bus := eventbus.New()

		buildFleet := func(cfg *config.Config) (*monitor.Manager, error) {
			fc, err := fleetConfig(cfg)
			if err != nil {
				return nil, err
			}
			return monitor.NewManager(st, clientFactory(cfg, log), fc, bus, log), nil
		}

		fleet, err := buildFleet(cfg)
		if err != nil {
			return err
		}
		if err := fleet.Start(ctx); err != nil {
			return fmt.Errorf("start monitors: %w", err)
		}

		updates := mgr.Subscribe(1)
		defer mgr.Unsubscribe(updates)
		go func() {
			if err := mgr.Watch(ctx); err != nil {
				log.Warn("config watch terminated", logx.Err(err))
			}
		}()

		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
		log.Info("tgmon running", logx.String("config", configPath(cmd)))

		for {
			select {
			case <-ctx.Done():
				_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
				sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				fleet.Stop(sctx)
				cancel()
				return nil

			case next := <-updates:
				if next == nil {
					continue
				}
				log.Info("config changed; rebuilding monitor fleet")
				_, _ = daemon.SdNotify(false, daemon.SdNotifyReloading)

				if next.Storage.Path != cfg.Storage.Path {
					log.Warn("storage.path changed; a full restart is required for it to take effect")
				}
				cfg = next
				svc.Apply(logConfig(next))

				sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				fleet.Stop(sctx)
				cancel()

				nf, err := buildFleet(next)
				if err == nil {
					err = nf.Start(ctx)
				}
				if err != nil {
					// The old fleet is gone; a half-running daemon is worse
					// than letting the service manager restart us.
					return fmt.Errorf("restart monitors: %w", err)
				}
				fleet = nf
				_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
			}
		}
	},
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func fleetConfig(cfg *config.Config) (monitor.FleetConfig, error) {
	minDelay, err := config.ParseDurationField("monitor.send_min_delay", cfg.Monitor.SendMinDelay)
	if err != nil {
		return monitor.FleetConfig{}, err
	}
	maxDelay, err := config.ParseDurationField("monitor.send_max_delay", cfg.Monitor.SendMaxDelay)
	if err != nil {
		return monitor.FleetConfig{}, err
	}
	fc := monitor.FleetConfig{
		SendMinDelay:      minDelay,
		SendMaxDelay:      maxDelay,
		ReplyLookupPerSec: cfg.Monitor.ReplyLookupPerSec,
	}
	if cfg.Heartbeat != nil && cfg.Heartbeat.Enabled {
		fc.HeartbeatSchedule = cfg.Heartbeat.Schedule
		if fc.HeartbeatSchedule == "" {
			fc.HeartbeatSchedule = "0 * * * *"
		}
	}
	return fc, nil
}

func clientFactory(cfg *config.Config, log logx.Logger) monitor.ClientFactory {
	pollTimeout, _ := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	cacheSize := cfg.Telegram.MessageCache
	return func(a storage.Account) (chat.Client, error) {
		cl, err := telegram.New(telegram.Options{
			Token:       a.Token,
			PollTimeout: pollTimeout,
			CacheSize:   cacheSize,
			Log:         log.With(logx.String("account", a.Name)),
		})
		if err != nil {
			return nil, err
		}
		return cl, nil
	}
}

// validateConfig rejects configs the daemon could not run with. Also used
// as the hot-reload gate so a bad edit never tears the fleet down.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := fleetConfig(cfg); err != nil {
		return err
	}
	if cfg.Heartbeat != nil && cfg.Heartbeat.Enabled && cfg.Heartbeat.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Heartbeat.Schedule); err != nil {
			return fmt.Errorf("heartbeat.schedule: %w", err)
		}
	}
	if cfg.Monitor.ReplyLookupPerSec < 0 {
		return errors.New("monitor.reply_lookup_per_sec must be >= 0")
	}
	return nil
}

// RunCmd returns the run command.
func RunCmd() *cobra.Command {
	return runCmd
}
