package monitor

import (
	"context"
	"fmt"

	"tgmon/internal/eventbus"
	logx "tgmon/pkg/logx"
)

// Conversation resolution runs exactly once per Monitor run: the aggregator
// through the shared outbound connection, each watch through the account's
// own connection. Deltas against the stored identities are collected for
// the caller to persist.

func (m *Monitor) resolveAggregator(ctx context.Context) error {
	peer, err := m.aggClient.Resolve(ctx, m.aggregator.ChatRef)
	if err != nil {
		return fmt.Errorf("monitor: resolve aggregator %q: %w", m.aggregator.ChatRef, err)
	}
	title := chatName(peer)

	m.mu.Lock()
	m.aggChatID = peer.ID
	if !identityMatches(m.aggregator.ChatID, m.aggregator.ChatTitle, peer.ID, title) {
		m.resolvedAgg = &ResolvedIdentity{ChatID: peer.ID, Title: title}
	}
	m.mu.Unlock()

	m.log.Debug("aggregator resolved",
		logx.Int64("chat_id", peer.ID), logx.String("title", title))
	return nil
}

// resolveWatches resolves every configured watch, skipping failures, and
// returns the set of chat ids to subscribe to. Zero successes fail the run.
func (m *Monitor) resolveWatches(ctx context.Context) ([]int64, error) {
	chatIDs := make([]int64, 0, len(m.watches))
	for _, w := range m.watches {
		peer, err := m.client.Resolve(ctx, w.ChatRef)
		if err != nil {
			m.log.Warn("watch resolution failed; skipping",
				logx.String("chat_ref", w.ChatRef), logx.Err(err))
			m.bus.Publish(eventbus.Event{
				Type:    eventbus.WatchSkipped,
				Account: m.account.Name,
				Detail:  w.ChatRef,
			})
			continue
		}
		title := chatName(peer)

		m.mu.Lock()
		m.peers[peer.ID] = peer
		if !identityMatches(w.ChatID, w.ChatTitle, peer.ID, title) {
			m.resolvedWatches[w.ID] = ResolvedIdentity{ChatID: peer.ID, Title: title}
		}
		m.mu.Unlock()

		chatIDs = append(chatIDs, peer.ID)
		m.log.Info("watching chat",
			logx.String("title", title), logx.Int64("chat_id", peer.ID))
	}

	if len(chatIDs) == 0 {
		return nil, fmt.Errorf("account %q: %w", m.account.Name, ErrNoWatches)
	}
	return chatIDs, nil
}

func identityMatches(storedID *int64, storedTitle *string, id int64, title string) bool {
	return storedID != nil && *storedID == id && storedTitle != nil && *storedTitle == title
}
