// Package chat defines the capability surface tgmon consumes from a remote
// messaging transport. The monitoring core depends only on this package;
// concrete adapters live under internal/transport.
package chat

import (
	"context"
	"errors"
)

// ErrNotFound reports that a referenced chat, user, or message does not
// exist or is not visible to the client.
var ErrNotFound = errors.New("chat: not found")

// ErrUnauthorized reports that the session behind a client is not signed in.
var ErrUnauthorized = errors.New("chat: unauthorized")

// Handler processes one inbound message event. Invocations are serial per
// subscription; blocking inside a handler delays only that subscription.
type Handler func(ctx context.Context, msg *Message)

// Subscription is a cancellable handle returned by Subscribe.
type Subscription interface {
	// Cancel detaches the handler. Safe to call more than once; no handler
	// invocation starts after Cancel returns.
	Cancel()
}

// SendOptions controls outbound message rendering.
type SendOptions struct {
	DisablePreview bool
}

// Client is one account's connection to the remote transport.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// Authorized reports whether the session is signed in.
	Authorized(ctx context.Context) (bool, error)

	// Resolve maps a chat reference (handle or numeric id string) to a peer.
	Resolve(ctx context.Context, ref string) (Peer, error)

	// CurrentUser returns the identity behind this session.
	CurrentUser(ctx context.Context) (User, error)

	// SendHTML sends already-rendered HTML to a chat.
	SendHTML(ctx context.Context, chatID int64, html string, opts SendOptions) error

	// FetchMessage retrieves a message by id, returning ErrNotFound when the
	// transport cannot produce it.
	FetchMessage(ctx context.Context, chatID int64, messageID int) (*Message, error)

	// Subscribe registers a handler for new messages in the given chats.
	Subscribe(chatIDs []int64, h Handler) (Subscription, error)
}
