package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the sqlite repository.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Account is one monitored user account. Token is a credential reference
// for the transport session; it is never logged.
type Account struct {
	Name    string
	Token   string
	Enabled bool
}

// Watch is one watched conversation belonging to exactly one account.
// ChatID/ChatTitle are nil until a monitor run resolves the reference.
type Watch struct {
	ID          int64
	AccountName string
	ChatRef     string
	ChatID      *int64
	ChatTitle   *string
	Enabled     bool
}

// Aggregator is the singleton outbound configuration: every notification is
// sent to ChatRef through AccountName's connection.
type Aggregator struct {
	ChatRef     string
	AccountName string
	ChatID      *int64
	ChatTitle   *string
}
