package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"tgmon/internal/chat"
	"tgmon/internal/eventbus"
	"tgmon/internal/storage"
	logx "tgmon/pkg/logx"
	"tgmon/pkg/ratelimit"
)

// ClientFactory builds a transport client for one account.
type ClientFactory func(account storage.Account) (chat.Client, error)

// FleetConfig tunes the monitor fleet.
type FleetConfig struct {
	SendMinDelay      time.Duration // default 200ms
	SendMaxDelay      time.Duration // default 300ms
	ReplyLookupPerSec int           // default 5
	HeartbeatSchedule string        // cron spec; "" disables the heartbeat
}

func (c FleetConfig) withDefaults() FleetConfig {
	if c.SendMinDelay <= 0 {
		c.SendMinDelay = 200 * time.Millisecond
	}
	if c.SendMaxDelay <= 0 {
		c.SendMaxDelay = 300 * time.Millisecond
	}
	if c.SendMaxDelay < c.SendMinDelay {
		c.SendMaxDelay = c.SendMinDelay
	}
	if c.ReplyLookupPerSec <= 0 {
		c.ReplyLookupPerSec = 5
	}
	return c
}

// FleetStatus is a point-in-time counter snapshot for the heartbeat.
type FleetStatus struct {
	Monitors  int
	Running   int
	Forwarded uint64
	Failed    uint64
	Skipped   uint64
}

// Manager builds and supervises one Monitor per enabled account. The
// aggregator account's client and one send limiter are shared across the
// fleet so the minimum send spacing holds globally.
type Manager struct {
	store     storage.Store
	newClient ClientFactory
	cfg       FleetConfig
	bus       eventbus.Bus
	log       logx.Logger

	forwarded atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64

	mu       sync.Mutex
	started  bool
	monitors []*Monitor
	shared   chat.Client
	cron     *cron.Cron
	unsubBus func()
	busDone  chan struct{}
}

func NewManager(store storage.Store, newClient ClientFactory, cfg FleetConfig, bus eventbus.Bus, log logx.Logger) *Manager {
	if bus == nil {
		bus = eventbus.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		store:     store,
		newClient: newClient,
		cfg:       cfg.withDefaults(),
		bus:       bus,
		log:       log,
	}
}

// Start loads the aggregator and all enabled accounts with enabled watches,
// connects the shared aggregator client, and starts one Monitor per
// account. Individual monitor start failures are logged; Start fails only
// when the aggregator is unusable or zero monitors come up. Resolved
// identity deltas of successfully started monitors are persisted before
// Start returns.
func (f *Manager) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("monitor: fleet already started")
	}
	f.started = true
	f.mu.Unlock()

	agg, err := f.store.GetAggregator(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return errors.New("monitor: aggregator is not configured")
	}
	if err != nil {
		return fmt.Errorf("monitor: load aggregator: %w", err)
	}

	aggAccount, err := f.store.GetAccount(ctx, agg.AccountName)
	if err != nil {
		return fmt.Errorf("monitor: load aggregator account %q: %w", agg.AccountName, err)
	}

	shared, err := f.newClient(aggAccount)
	if err != nil {
		return fmt.Errorf("monitor: build aggregator client: %w", err)
	}
	if err := shared.Connect(ctx); err != nil {
		return fmt.Errorf("monitor: connect aggregator client: %w", err)
	}
	ok, err := shared.Authorized(ctx)
	if err != nil {
		_ = shared.Disconnect(ctx)
		return fmt.Errorf("monitor: aggregator authorization check: %w", err)
	}
	if !ok {
		_ = shared.Disconnect(ctx)
		return fmt.Errorf("aggregator account %q: %w", agg.AccountName, ErrUnauthorized)
	}

	limiter, err := ratelimit.New(f.cfg.SendMinDelay, f.cfg.SendMaxDelay)
	if err != nil {
		_ = shared.Disconnect(ctx)
		return fmt.Errorf("monitor: send limiter: %w", err)
	}

	accounts, err := f.store.ListAccounts(ctx, true)
	if err != nil {
		_ = shared.Disconnect(ctx)
		return fmt.Errorf("monitor: list accounts: %w", err)
	}

	var monitors []*Monitor
	for _, account := range accounts {
		watches, err := f.store.ListWatches(ctx, account.Name, true)
		if err != nil {
			_ = shared.Disconnect(ctx)
			return fmt.Errorf("monitor: list watches for %q: %w", account.Name, err)
		}
		if len(watches) == 0 {
			f.log.Debug("account has no enabled watches; skipping", logx.String("account", account.Name))
			continue
		}

		opts := Options{
			Account:           account,
			Aggregator:        agg,
			Watches:           watches,
			AggClient:         shared,
			Limiter:           limiter,
			ReplyLookupPerSec: f.cfg.ReplyLookupPerSec,
			Bus:               f.bus,
			Log:               f.log,
		}
		if account.Name != agg.AccountName {
			cl, err := f.newClient(account)
			if err != nil {
				f.log.Error("client build failed; skipping account",
					logx.String("account", account.Name), logx.Err(err))
				continue
			}
			opts.Client = cl
		}

		m, err := New(opts)
		if err != nil {
			f.log.Error("monitor construction failed; skipping account",
				logx.String("account", account.Name), logx.Err(err))
			continue
		}
		monitors = append(monitors, m)
	}

	// Start monitors concurrently; one slow or broken account must not
	// delay or fail the others.
	var wg sync.WaitGroup
	startErrs := make([]error, len(monitors))
	for i, m := range monitors {
		wg.Add(1)
		go func(i int, m *Monitor) {
			defer wg.Done()
			startErrs[i] = m.Start(ctx)
		}(i, m)
	}
	wg.Wait()

	var running []*Monitor
	for i, m := range monitors {
		if startErrs[i] != nil {
			f.log.Error("monitor start failed",
				logx.String("account", m.AccountName()), logx.Err(startErrs[i]))
			m.Stop(ctx)
			continue
		}
		running = append(running, m)
	}

	if len(running) == 0 {
		_ = shared.Disconnect(ctx)
		f.mu.Lock()
		f.started = false
		f.mu.Unlock()
		return errors.New("monitor: no monitors started")
	}

	f.persistDeltas(ctx, running)
	f.watchBus()

	f.mu.Lock()
	f.monitors = running
	f.shared = shared
	f.mu.Unlock()

	f.startHeartbeat()

	f.log.Info("monitor fleet started", logx.Int("monitors", len(running)))
	return nil
}

// Stop shuts the fleet down: every monitor, then the shared client.
// Safe to call after a failed Start.
func (f *Manager) Stop(ctx context.Context) {
	f.mu.Lock()
	monitors := f.monitors
	shared := f.shared
	cr := f.cron
	unsub := f.unsubBus
	busDone := f.busDone
	f.monitors = nil
	f.shared = nil
	f.cron = nil
	f.unsubBus = nil
	f.busDone = nil
	f.started = false
	f.mu.Unlock()

	if cr != nil {
		cr.Stop()
	}

	var wg sync.WaitGroup
	for _, m := range monitors {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			m.Stop(ctx)
		}(m)
	}
	wg.Wait()

	if shared != nil {
		if err := shared.Disconnect(ctx); err != nil {
			f.log.Warn("shared client disconnect failed", logx.Err(err))
		}
	}
	if unsub != nil {
		unsub()
	}
	if busDone != nil {
		<-busDone
	}

	f.log.Info("monitor fleet stopped")
}

// Status returns a counter snapshot.
func (f *Manager) Status() FleetStatus {
	f.mu.Lock()
	monitors := f.monitors
	f.mu.Unlock()

	st := FleetStatus{
		Monitors:  len(monitors),
		Forwarded: f.forwarded.Load(),
		Failed:    f.failed.Load(),
		Skipped:   f.skipped.Load(),
	}
	for _, m := range monitors {
		if m.State() == StateRunning {
			st.Running++
		}
	}
	return st
}

func (f *Manager) persistDeltas(ctx context.Context, monitors []*Monitor) {
	aggPersisted := false
	for _, m := range monitors {
		for id, r := range m.ResolvedWatchDeltas() {
			if err := f.store.UpdateWatchResolved(ctx, id, r.ChatID, r.Title); err != nil {
				f.log.Warn("persist watch resolution failed",
					logx.Int64("watch_id", id), logx.Err(err))
			}
		}
		if r, ok := m.ResolvedAggregatorDelta(); ok && !aggPersisted {
			if err := f.store.UpdateAggregatorResolved(ctx, r.ChatID, r.Title); err != nil {
				f.log.Warn("persist aggregator resolution failed", logx.Err(err))
			} else {
				aggPersisted = true
			}
		}
	}
}

// watchBus feeds the status counters from fleet events.
func (f *Manager) watchBus() {
	ch, unsub := f.bus.Subscribe(64)
	done := make(chan struct{})

	f.mu.Lock()
	f.unsubBus = unsub
	f.busDone = done
	f.mu.Unlock()

	go func() {
		defer close(done)
		for e := range ch {
			switch e.Type {
			case eventbus.Forwarded:
				f.forwarded.Add(1)
			case eventbus.ForwardFailed:
				f.failed.Add(1)
			case eventbus.WatchSkipped:
				f.skipped.Add(1)
			}
		}
	}()
}

func (f *Manager) startHeartbeat() {
	if f.cfg.HeartbeatSchedule == "" {
		return
	}
	cr := cron.New()
	_, err := cr.AddFunc(f.cfg.HeartbeatSchedule, func() {
		st := f.Status()
		f.log.Info("heartbeat",
			logx.Int("monitors", st.Monitors),
			logx.Int("running", st.Running),
			logx.Any("forwarded", st.Forwarded),
			logx.Any("failed", st.Failed),
			logx.Any("skipped", st.Skipped))
	})
	if err != nil {
		f.log.Warn("invalid heartbeat schedule; heartbeat disabled",
			logx.String("schedule", f.cfg.HeartbeatSchedule), logx.Err(err))
		return
	}
	cr.Start()

	f.mu.Lock()
	f.cron = cr
	f.mu.Unlock()
}
