package chat

// PeerKind distinguishes the three chat shapes the formatter cares about.
// Plain groups have no addressable t.me link; channels (and supergroups,
// which Telegram models as channels) do.
type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerGroup   PeerKind = "group"
	PeerChannel PeerKind = "channel"
)

// Peer is the resolved identity of a conversation or user.
//
// This is deliberately a capability-flag model: links are built from
// Kind + Username + ID, never from a retained remote chat object.
type Peer struct {
	ID       int64
	Kind     PeerKind
	Title    string
	Username string
}

// User is the account identity behind a client session.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// EntityKind tags a rich-text entity.
type EntityKind string

const (
	// EntityMention is a textual "@handle" span.
	EntityMention EntityKind = "mention"
	// EntityMentionName references a user by numeric id (no handle needed).
	EntityMentionName EntityKind = "mention_name"
	EntityTextURL     EntityKind = "text_url"
	EntityBold        EntityKind = "bold"
	EntityItalic      EntityKind = "italic"
	EntityCode        EntityKind = "code"
	EntityBlockquote  EntityKind = "blockquote"
)

// Entity is a rich-text span. Offset and Length are measured in UTF-16 code
// units, matching the wire convention of the remote transport. Anything that
// prepends text ahead of the body must shift offsets by the prepended
// length in the same unit system.
type Entity struct {
	Kind   EntityKind
	Offset int
	Length int
	UserID int64  // EntityMentionName only
	URL    string // EntityTextURL only
}

// Message is one inbound message event.
type Message struct {
	ID        int
	ChatID    int64
	SenderID  int64
	Sender    *User
	Text      string
	Entities  []Entity
	ReplyToID int // 0 when not a reply
	Media     *Media
}

// IsReply reports whether the message replies to another message.
func (m *Message) IsReply() bool { return m != nil && m.ReplyToID != 0 }
