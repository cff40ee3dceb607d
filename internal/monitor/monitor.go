// Package monitor implements the mention-monitoring pipeline: one Monitor
// per account subscribes to its watched chats, classifies inbound messages,
// and forwards mention/reply notifications to the aggregator chat through a
// shared, rate-limited outbound connection.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tgmon/internal/chat"
	"tgmon/internal/eventbus"
	"tgmon/internal/storage"
	logx "tgmon/pkg/logx"
	"tgmon/pkg/ratelimit"
)

type State int

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrNoWatches aborts startup when not a single watch resolved.
	ErrNoWatches = errors.New("monitor: no resolvable watches")
	// ErrUnauthorized aborts startup when an owned connection is not signed in.
	ErrUnauthorized = errors.New("monitor: account not authorized")
)

// ResolvedIdentity is the stable identity of a resolved conversation,
// reported to the caller only when it differs from the stored value.
type ResolvedIdentity struct {
	ChatID int64
	Title  string
}

// Options configures one Monitor.
//
// Connection sharing is a constructor-time decision: when the account is the
// aggregator's routing account the Monitor reuses AggClient and never
// connects or disconnects it; otherwise Client is the account's own
// connection and the Monitor manages its lifecycle.
type Options struct {
	Account    storage.Account
	Aggregator storage.Aggregator
	Watches    []storage.Watch

	Client    chat.Client // account's own connection; ignored when shared
	AggClient chat.Client // outbound connection to the aggregator (required)

	// Limiter serializes sends on AggClient. Monitors sharing AggClient must
	// share this instance.
	Limiter *ratelimit.Limiter

	ReplyLookupPerSec int
	Bus               eventbus.Bus
	Log               logx.Logger
}

// Monitor supervises one account's subscription lifecycle. It is not
// restartable: a stopped Monitor is discarded and a new one constructed.
type Monitor struct {
	account    storage.Account
	aggregator storage.Aggregator
	watches    []storage.Watch

	client     chat.Client
	aggClient  chat.Client
	ownsClient bool

	limiter      *ratelimit.Limiter
	lookupPerSec int
	bus          eventbus.Bus
	log          logx.Logger

	mu        sync.Mutex
	state     State
	connected bool
	sub       chat.Subscription
	det       *detector
	me        chat.User
	aggChatID int64
	peers     map[int64]chat.Peer // resolved watch peers by chat id

	resolvedWatches map[int64]ResolvedIdentity
	resolvedAgg     *ResolvedIdentity
}

func New(opts Options) (*Monitor, error) {
	if opts.AggClient == nil {
		return nil, errors.New("monitor: aggregator client is required")
	}
	if opts.Limiter == nil {
		return nil, errors.New("monitor: send limiter is required")
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.New()
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}

	m := &Monitor{
		account:         opts.Account,
		aggregator:      opts.Aggregator,
		watches:         opts.Watches,
		aggClient:       opts.AggClient,
		limiter:         opts.Limiter,
		lookupPerSec:    opts.ReplyLookupPerSec,
		bus:             opts.Bus,
		log:             opts.Log.With(logx.String("account", opts.Account.Name)),
		state:           StateCreated,
		peers:           map[int64]chat.Peer{},
		resolvedWatches: map[int64]ResolvedIdentity{},
	}

	if opts.Account.Name == opts.Aggregator.AccountName {
		m.client = opts.AggClient
		m.ownsClient = false
	} else {
		if opts.Client == nil {
			return nil, errors.New("monitor: account client is required for non-aggregator accounts")
		}
		m.client = opts.Client
		m.ownsClient = true
	}
	return m, nil
}

// OwnsConnection reports whether the Monitor manages its own connection
// (false when it shares the aggregator's).
func (m *Monitor) OwnsConnection() bool { return m.ownsClient }

func (m *Monitor) AccountName() string { return m.account.Name }

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start connects (when owned), resolves the aggregator and every watch, and
// subscribes to inbound events. It fails without entering Running when the
// owned connection is unauthorized or when zero watches resolve; individual
// watch failures are logged and skipped.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateCreated {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("monitor: cannot start from state %s", state)
	}
	m.state = StateStarting
	m.mu.Unlock()

	if m.ownsClient {
		if err := m.client.Connect(ctx); err != nil {
			return fmt.Errorf("monitor: connect account %q: %w", m.account.Name, err)
		}
		m.mu.Lock()
		m.connected = true
		m.mu.Unlock()

		ok, err := m.client.Authorized(ctx)
		if err != nil {
			return fmt.Errorf("monitor: authorization check for %q: %w", m.account.Name, err)
		}
		if !ok {
			return fmt.Errorf("account %q: %w", m.account.Name, ErrUnauthorized)
		}
	}

	me, err := m.client.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("monitor: current user for %q: %w", m.account.Name, err)
	}

	if err := m.resolveAggregator(ctx); err != nil {
		return err
	}
	chatIDs, err := m.resolveWatches(ctx)
	if err != nil {
		return err
	}

	sub, err := m.client.Subscribe(chatIDs, m.onMessage)
	if err != nil {
		return fmt.Errorf("monitor: subscribe for %q: %w", m.account.Name, err)
	}

	m.mu.Lock()
	m.me = me
	m.det = newDetector(me, m.client, m.lookupPerSec, m.log)
	m.sub = sub
	m.state = StateRunning
	m.mu.Unlock()

	m.bus.Publish(eventbus.Event{Type: eventbus.MonitorStarted, Account: m.account.Name})
	m.log.Info("monitor started",
		logx.Int("watches", len(chatIDs)),
		logx.Bool("owns_connection", m.ownsClient))
	return nil
}

// Stop tears the Monitor down: unsubscribe (best effort) strictly before
// disconnecting an owned connection. It is safe to call in any state,
// including after a failed Start, and never returns an error to propagate.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateStopped || m.state == StateStopping {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	sub := m.sub
	m.sub = nil
	connected := m.connected
	m.connected = false
	m.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if m.ownsClient && connected {
		if err := m.client.Disconnect(ctx); err != nil {
			m.log.Warn("disconnect failed", logx.Err(err))
		}
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()

	m.bus.Publish(eventbus.Event{Type: eventbus.MonitorStopped, Account: m.account.Name})
	m.log.Info("monitor stopped")
}

// ResolvedWatchDeltas returns watch-id -> identity for every watch whose
// resolved identity differs from the stored one. Valid after Start returns.
func (m *Monitor) ResolvedWatchDeltas() map[int64]ResolvedIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]ResolvedIdentity, len(m.resolvedWatches))
	for id, r := range m.resolvedWatches {
		out[id] = r
	}
	return out
}

// ResolvedAggregatorDelta returns the aggregator identity when resolution
// produced a value different from the stored one.
func (m *Monitor) ResolvedAggregatorDelta() (ResolvedIdentity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolvedAgg == nil {
		return ResolvedIdentity{}, false
	}
	return *m.resolvedAgg, true
}

// onMessage is the subscription handler. Invocations are serial per
// subscription; any per-event failure is contained here.
func (m *Monitor) onMessage(ctx context.Context, msg *chat.Message) {
	m.mu.Lock()
	running := m.state == StateRunning
	det := m.det
	m.mu.Unlock()
	if !running || det == nil {
		return
	}

	kind := det.Classify(ctx, msg)
	if kind == KindNone {
		return
	}

	if err := m.forward(ctx, msg, kind); err != nil {
		m.log.Error("forward failed",
			logx.Err(err),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("message_id", msg.ID))
		m.bus.Publish(eventbus.Event{
			Type:    eventbus.ForwardFailed,
			Account: m.account.Name,
			ChatID:  msg.ChatID,
			Detail:  err.Error(),
		})
	}
}

func (m *Monitor) forward(ctx context.Context, msg *chat.Message, kind Kind) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	peer := m.peers[msg.ChatID]
	me := m.me
	aggChatID := m.aggChatID
	m.mu.Unlock()

	html := formatMention(kind, m.displayName(me), me.ID, peer, msg)
	if err := m.aggClient.SendHTML(ctx, aggChatID, html, chat.SendOptions{DisablePreview: true}); err != nil {
		return err
	}

	m.log.Info("notification forwarded",
		logx.String("kind", kind.String()),
		logx.String("chat", chatName(peer)),
		logx.String("sender", senderName(msg.Sender)))
	m.bus.Publish(eventbus.Event{
		Type:    eventbus.Forwarded,
		Account: m.account.Name,
		ChatID:  msg.ChatID,
		Detail:  kind.String(),
	})
	return nil
}

// displayName picks the account's human name for the notification header.
func (m *Monitor) displayName(me chat.User) string {
	parts := make([]string, 0, 2)
	if me.FirstName != "" {
		parts = append(parts, me.FirstName)
	}
	if me.LastName != "" {
		parts = append(parts, me.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if me.Username != "" {
		return me.Username
	}
	return m.account.Name
}
