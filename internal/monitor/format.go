package monitor

import (
	"regexp"
	"strconv"
	"strings"

	"tgmon/internal/chat"
)

// Notification formatting. Everything in this file is a pure function of
// its inputs; network context (resolved peers, current user) is passed in.

const (
	iconMention = "\U0001F514" // bell
	iconReply   = "↩️"
)

// utf16Len returns the length of s in UTF-16 code units, the unit system
// the remote transport uses for entity offsets. Astral-plane runes (emoji,
// some CJK) count as two units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n++
		if r > 0xFFFF {
			n++
		}
	}
	return n
}

// sliceUTF16 extracts the substring addressed by a UTF-16 (offset, length)
// span. Out-of-range spans are clamped.
func sliceUTF16(s string, offset, length int) string {
	if offset < 0 || length <= 0 {
		return ""
	}
	var b strings.Builder
	pos := 0
	for _, r := range s {
		units := 1
		if r > 0xFFFF {
			units = 2
		}
		if pos >= offset+length {
			break
		}
		if pos >= offset {
			b.WriteRune(r)
		}
		pos += units
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeHTML escapes the three markup-significant characters. Quotes are
// left alone; the transport's HTML mode only treats &, < and > specially.
func escapeHTML(s string) string { return htmlEscaper.Replace(s) }

// inlineMentionRe matches the one markdown construct recognized in message
// bodies: [display text](tg://user?id=NUMBER).
var inlineMentionRe = regexp.MustCompile(`\[([^\]]+)\]\((tg://user\?id=\d+)\)`)

// renderInlineLinks escapes body text while converting recognized mention
// links into anchors. Text inside a recognized span is escaped exactly once
// and the relative order of text and anchors is preserved.
func renderInlineLinks(text string) string {
	matches := inlineMentionRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return escapeHTML(text)
	}

	var b strings.Builder
	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > pos {
			b.WriteString(escapeHTML(text[pos:start]))
		}
		label := text[m[2]:m[3]]
		url := text[m[4]:m[5]]
		b.WriteString(`<a href="`)
		b.WriteString(url)
		b.WriteString(`">`)
		b.WriteString(escapeHTML(label))
		b.WriteString(`</a>`)
		pos = end
	}
	if pos < len(text) {
		b.WriteString(escapeHTML(text[pos:]))
	}
	return b.String()
}

// shiftEntities returns a copy of entities with every offset moved forward
// by offsetUnits UTF-16 code units, for use after a header is prepended
// ahead of the original body.
func shiftEntities(entities []chat.Entity, offsetUnits int) []chat.Entity {
	if len(entities) == 0 {
		return nil
	}
	shifted := make([]chat.Entity, len(entities))
	for i, e := range entities {
		e.Offset += offsetUnits
		shifted[i] = e
	}
	return shifted
}

// senderName derives a display name for a message sender.
func senderName(u *chat.User) string {
	if u == nil {
		return "Unknown"
	}
	parts := make([]string, 0, 2)
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}

// chatName derives a display name for a conversation.
func chatName(p chat.Peer) string {
	if p.Title != "" {
		return p.Title
	}
	return "Unknown"
}

// bareChannelID strips the supergroup marker prefix some transports put on
// channel ids (-100XXXXXXXXXX) so the id can be used in t.me/c/ links.
func bareChannelID(id int64) int64 {
	if id >= 0 {
		return id
	}
	s := strconv.FormatInt(-id, 10)
	if strings.HasPrefix(s, "100") && len(s) > 3 {
		if v, err := strconv.ParseInt(s[3:], 10, 64); err == nil {
			return v
		}
	}
	return -id
}

// messageLink builds a deep link to a message. Public channels link via
// handle, private channels via the c/ form; plain groups have no
// addressable link.
func messageLink(p chat.Peer, messageID int) string {
	if p.Kind != chat.PeerChannel {
		return ""
	}
	if p.Username != "" {
		return "https://t.me/" + p.Username + "/" + strconv.Itoa(messageID)
	}
	return "https://t.me/c/" + strconv.FormatInt(bareChannelID(p.ID), 10) + "/" + strconv.Itoa(messageID)
}

// chatLink builds a deep link to a conversation, or "" when the chat is not
// addressable.
func chatLink(p chat.Peer) string {
	if p.Kind != chat.PeerChannel {
		return ""
	}
	if p.Username != "" {
		return "https://t.me/" + p.Username
	}
	return "https://t.me/c/" + strconv.FormatInt(bareChannelID(p.ID), 10)
}

var mediaLabels = map[chat.MediaKind]string{
	chat.MediaPhoto:     "[Photo]",
	chat.MediaVideo:     "[Video]",
	chat.MediaVideoNote: "[Video message]",
	chat.MediaVoice:     "[Voice message]",
	chat.MediaAudio:     "[Audio]",
	chat.MediaSticker:   "[Sticker]",
	chat.MediaDocument:  "[Document]",
	chat.MediaGeneric:   "[Media]",
}

const emptyMessageLabel = "[Empty message]"

func mediaLabel(k chat.MediaKind) string {
	if label, ok := mediaLabels[k]; ok {
		return label
	}
	return "[Media]"
}

func anchor(url, escapedText string) string {
	return `<a href="` + url + `">` + escapedText + `</a>`
}

func userAnchor(userID int64, escapedText string) string {
	return anchor("tg://user?id="+strconv.FormatInt(userID, 10), escapedText)
}

// formatMention renders the aggregator notification:
//
//	<icon> <account> | <chat> (<"message" link>)
//	From: <sender>
//	<blockquote>content</blockquote>
//
// account/chat/sender become anchors when a profile id or chat link is
// available. Content is the rendered body text, a media label, or the
// empty-message label.
func formatMention(kind Kind, accountName string, accountID int64, peer chat.Peer, msg *chat.Message) string {
	icon := iconMention
	if kind == KindReply {
		icon = iconReply
	}

	accountPart := escapeHTML(orUnknown(accountName))
	if accountID != 0 {
		accountPart = userAnchor(accountID, accountPart)
	}

	chatPart := escapeHTML(chatName(peer))
	if link := chatLink(peer); link != "" {
		chatPart = anchor(link, chatPart)
	}

	linkPart := ""
	if link := messageLink(peer, msg.ID); link != "" {
		linkPart = " (" + anchor(link, "message") + ")"
	}

	senderPart := escapeHTML(senderName(msg.Sender))
	if msg.Sender != nil && msg.Sender.ID != 0 {
		senderPart = userAnchor(msg.Sender.ID, senderPart)
	}

	var content string
	switch {
	case msg.Text != "":
		content = renderInlineLinks(msg.Text)
	case msg.Media != nil:
		content = mediaLabel(msg.Media.Kind())
	default:
		content = emptyMessageLabel
	}

	var b strings.Builder
	b.WriteString(icon)
	b.WriteString(" ")
	b.WriteString(accountPart)
	b.WriteString(" | ")
	b.WriteString(chatPart)
	b.WriteString(linkPart)
	b.WriteString("\nFrom: ")
	b.WriteString(senderPart)
	b.WriteString("\n<blockquote>")
	b.WriteString(content)
	b.WriteString("</blockquote>")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
