package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "tgmon/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "tgmon.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAccountRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AddAccount(ctx, Account{Name: "main", Token: "ref:main", Enabled: true}); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := st.AddAccount(ctx, Account{Name: "alt", Token: "ref:alt", Enabled: false}); err != nil {
		t.Fatalf("AddAccount alt: %v", err)
	}

	a, err := st.GetAccount(ctx, "main")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if a.Token != "ref:main" || !a.Enabled {
		t.Fatalf("unexpected account: %+v", a)
	}

	all, err := st.ListAccounts(ctx, false)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(all))
	}

	enabled, err := st.ListAccounts(ctx, true)
	if err != nil {
		t.Fatalf("ListAccounts enabled: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "main" {
		t.Fatalf("unexpected enabled accounts: %+v", enabled)
	}

	if err := st.SetAccountEnabled(ctx, "alt", true); err != nil {
		t.Fatalf("SetAccountEnabled: %v", err)
	}
	if err := st.SetAccountEnabled(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.RemoveAccount(ctx, "alt"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if _, err := st.GetAccount(ctx, "alt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestWatchResolvedDelta(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AddAccount(ctx, Account{Name: "main", Token: "ref", Enabled: true}); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	id, err := st.AddWatch(ctx, Watch{AccountName: "main", ChatRef: "@gophers", Enabled: true})
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if _, err := st.AddWatch(ctx, Watch{AccountName: "main", ChatRef: "@gophers", Enabled: true}); err == nil {
		t.Fatal("expected unique violation for duplicate (account, chat_ref)")
	}

	ws, err := st.ListWatches(ctx, "main", true)
	if err != nil {
		t.Fatalf("ListWatches: %v", err)
	}
	if len(ws) != 1 || ws[0].ChatID != nil || ws[0].ChatTitle != nil {
		t.Fatalf("unexpected watches: %+v", ws)
	}

	if err := st.UpdateWatchResolved(ctx, id, -100123, "Gophers"); err != nil {
		t.Fatalf("UpdateWatchResolved: %v", err)
	}
	ws, err = st.ListWatches(ctx, "main", false)
	if err != nil {
		t.Fatalf("ListWatches: %v", err)
	}
	if ws[0].ChatID == nil || *ws[0].ChatID != -100123 {
		t.Fatalf("chat_id not persisted: %+v", ws[0])
	}
	if ws[0].ChatTitle == nil || *ws[0].ChatTitle != "Gophers" {
		t.Fatalf("chat_title not persisted: %+v", ws[0])
	}

	if err := st.SetWatchEnabled(ctx, id, false); err != nil {
		t.Fatalf("SetWatchEnabled: %v", err)
	}
	ws, _ = st.ListWatches(ctx, "main", true)
	if len(ws) != 0 {
		t.Fatalf("disabled watch should be filtered, got %+v", ws)
	}

	if err := st.RemoveWatch(ctx, id); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
	if err := st.RemoveWatch(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAggregatorSingleton(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.GetAggregator(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before set, got %v", err)
	}

	if err := st.AddAccount(ctx, Account{Name: "main", Token: "ref", Enabled: true}); err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if err := st.SetAggregator(ctx, Aggregator{ChatRef: "@inbox", AccountName: "main"}); err != nil {
		t.Fatalf("SetAggregator: %v", err)
	}
	if err := st.UpdateAggregatorResolved(ctx, -100555, "Inbox"); err != nil {
		t.Fatalf("UpdateAggregatorResolved: %v", err)
	}

	a, err := st.GetAggregator(ctx)
	if err != nil {
		t.Fatalf("GetAggregator: %v", err)
	}
	if a.ChatID == nil || *a.ChatID != -100555 {
		t.Fatalf("resolved id missing: %+v", a)
	}

	// Re-pointing the aggregator clears the stale resolved identity.
	if err := st.SetAggregator(ctx, Aggregator{ChatRef: "@other", AccountName: "main"}); err != nil {
		t.Fatalf("SetAggregator repoint: %v", err)
	}
	a, err = st.GetAggregator(ctx)
	if err != nil {
		t.Fatalf("GetAggregator: %v", err)
	}
	if a.ChatRef != "@other" || a.ChatID != nil || a.ChatTitle != nil {
		t.Fatalf("expected cleared resolution after repoint: %+v", a)
	}
}
