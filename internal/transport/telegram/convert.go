package telegram

import (
	tele "gopkg.in/telebot.v4"

	"tgmon/internal/chat"
)

func convertPeer(c *tele.Chat) chat.Peer {
	if c == nil {
		return chat.Peer{}
	}
	p := chat.Peer{ID: c.ID, Title: c.Title, Username: c.Username}
	switch c.Type {
	case tele.ChatPrivate:
		p.Kind = chat.PeerUser
		p.Title = privateTitle(c)
	case tele.ChatGroup:
		p.Kind = chat.PeerGroup
	default:
		// Supergroups are channels as far as t.me links are concerned.
		p.Kind = chat.PeerChannel
	}
	return p
}

func privateTitle(c *tele.Chat) string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.Username
	}
}

func convertUser(u *tele.User) *chat.User {
	if u == nil {
		return nil
	}
	return &chat.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func convertEntities(src tele.Entities) []chat.Entity {
	if len(src) == 0 {
		return nil
	}
	out := make([]chat.Entity, 0, len(src))
	for _, e := range src {
		ent := chat.Entity{Offset: e.Offset, Length: e.Length}
		switch e.Type {
		case tele.EntityMention:
			ent.Kind = chat.EntityMention
		case tele.EntityTMention:
			ent.Kind = chat.EntityMentionName
			if e.User != nil {
				ent.UserID = e.User.ID
			}
		case tele.EntityTextLink:
			ent.Kind = chat.EntityTextURL
			ent.URL = e.URL
		case tele.EntityBold:
			ent.Kind = chat.EntityBold
		case tele.EntityItalic:
			ent.Kind = chat.EntityItalic
		case tele.EntityCode:
			ent.Kind = chat.EntityCode
		case "blockquote":
			ent.Kind = chat.EntityBlockquote
		default:
			continue
		}
		out = append(out, ent)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func convertMedia(m *tele.Message) *chat.Media {
	switch {
	case m.Photo != nil:
		return &chat.Media{Photo: true}
	case m.Sticker != nil:
		return &chat.Media{Sticker: true}
	case m.VideoNote != nil:
		return &chat.Media{Video: true, Round: true}
	case m.Video != nil:
		return &chat.Media{Video: true}
	case m.Voice != nil:
		return &chat.Media{Audio: true, Voice: true}
	case m.Audio != nil:
		return &chat.Media{Audio: true}
	case m.Animation != nil:
		return &chat.Media{Filename: m.Animation.FileName}
	case m.Document != nil:
		return &chat.Media{Filename: m.Document.FileName}
	default:
		return nil
	}
}

func convertMessage(m *tele.Message) *chat.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	text := m.Text
	entities := m.Entities
	if text == "" && m.Caption != "" {
		text = m.Caption
		entities = m.CaptionEntities
	}

	out := &chat.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		Sender:   convertUser(m.Sender),
		Text:     text,
		Entities: convertEntities(entities),
		Media:    convertMedia(m),
	}
	if m.Sender != nil {
		out.SenderID = m.Sender.ID
	}
	if m.ReplyTo != nil {
		out.ReplyToID = m.ReplyTo.ID
	}
	return out
}
