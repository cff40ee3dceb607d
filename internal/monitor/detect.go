package monitor

import (
	"context"
	"strings"

	"golang.org/x/time/rate"

	"tgmon/internal/chat"
	logx "tgmon/pkg/logx"
)

// Kind classifies an inbound message's relevance to the monitored account.
type Kind int

const (
	KindNone Kind = iota
	KindMention
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindMention:
		return "mention"
	case KindReply:
		return "reply"
	default:
		return "none"
	}
}

// messageFetcher is the one client capability the detector needs.
type messageFetcher interface {
	FetchMessage(ctx context.Context, chatID int64, messageID int) (*chat.Message, error)
}

// detector decides whether a message mentions the current user or replies
// to one of their messages. It is stateless apart from the lookup guard.
type detector struct {
	userID   int64
	username string // lowercased, no leading @; "" when the account has no handle

	fetcher messageFetcher
	// guard caps replied-to lookups so a flood of replies in a watched chat
	// cannot hammer the transport. A rejected lookup counts as "no reply".
	guard *rate.Limiter
	log   logx.Logger
}

func newDetector(me chat.User, fetcher messageFetcher, lookupPerSec int, log logx.Logger) *detector {
	var guard *rate.Limiter
	if lookupPerSec > 0 {
		guard = rate.NewLimiter(rate.Limit(lookupPerSec), lookupPerSec)
	}
	return &detector{
		userID:   me.ID,
		username: strings.ToLower(me.Username),
		fetcher:  fetcher,
		guard:    guard,
		log:      log,
	}
}

// Classify returns KindMention for a direct @handle or user-id mention,
// KindReply when the message replies to one of the current user's messages,
// and KindNone otherwise. Reply-lookup failures are never surfaced; they
// degrade to KindNone.
func (d *detector) Classify(ctx context.Context, msg *chat.Message) Kind {
	if msg == nil {
		return KindNone
	}

	for _, e := range msg.Entities {
		switch e.Kind {
		case chat.EntityMention:
			handle := sliceUTF16(msg.Text, e.Offset, e.Length)
			handle = strings.ToLower(strings.TrimPrefix(handle, "@"))
			if d.username != "" && handle == d.username {
				return KindMention
			}
		case chat.EntityMentionName:
			if e.UserID != 0 && e.UserID == d.userID {
				return KindMention
			}
		}
	}

	if msg.IsReply() && d.fetcher != nil {
		if d.guard != nil && !d.guard.Allow() {
			d.log.Debug("reply lookup suppressed by rate guard",
				logx.Int64("chat_id", msg.ChatID), logx.Int("message_id", msg.ReplyToID))
			return KindNone
		}
		replied, err := d.fetcher.FetchMessage(ctx, msg.ChatID, msg.ReplyToID)
		if err == nil && replied != nil && replied.SenderID == d.userID {
			return KindReply
		}
	}

	return KindNone
}
