package chat

// MediaKind is a closed classification of message attachments.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaVideoNote MediaKind = "video_note"
	MediaVoice     MediaKind = "voice"
	MediaAudio     MediaKind = "audio"
	MediaSticker   MediaKind = "sticker"
	MediaDocument  MediaKind = "document"
	MediaGeneric   MediaKind = "media"
)

// Media describes a message attachment with the attribute flags needed for
// classification. Adapters populate whichever flags the transport reports;
// Kind() applies a fixed precedence so classification never depends on
// attribute iteration order.
type Media struct {
	Photo    bool
	Sticker  bool
	Video    bool
	Round    bool // round "video note" flavor of Video
	Audio    bool
	Voice    bool // voice-note flavor of Audio
	Filename string
}

// Kind classifies the attachment.
//
// Precedence: sticker > round-video > video > voice > audio >
// named-document > generic. Photo is its own branch (photos carry no
// document attributes).
func (m *Media) Kind() MediaKind {
	if m == nil {
		return MediaNone
	}
	switch {
	case m.Photo:
		return MediaPhoto
	case m.Sticker:
		return MediaSticker
	case m.Video && m.Round:
		return MediaVideoNote
	case m.Video:
		return MediaVideo
	case m.Voice:
		return MediaVoice
	case m.Audio:
		return MediaAudio
	case m.Filename != "":
		return MediaDocument
	default:
		return MediaGeneric
	}
}
