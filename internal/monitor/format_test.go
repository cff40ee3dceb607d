package monitor

import (
	"strings"
	"testing"
	"unicode/utf16"

	"tgmon/internal/chat"
)

func TestUTF16Len(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"привет", 6},
		{"🔔", 2}, // astral plane: two code units
		{"a🔔b", 4},
		{"• Alice\n\n", 9},
	}
	for _, tt := range tests {
		if got := utf16Len(tt.in); got != tt.want {
			t.Fatalf("utf16Len(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// Shifting by a header's UTF-16 length must keep every entity pointing at
// the same substring of header+body that it pointed at in body alone, even
// when the header or body contains astral-plane characters.
func TestShiftEntitiesPreservesSpans(t *testing.T) {
	t.Parallel()
	header := "🔔 Alice | Gophers\n"
	body := "hey 😀 @bob look"
	// Span over "@bob": offset in UTF-16 units. "hey " = 4, emoji = 2, " " = 1.
	ent := chat.Entity{Kind: chat.EntityMention, Offset: 7, Length: 4}

	if got := sliceUTF16(body, ent.Offset, ent.Length); got != "@bob" {
		t.Fatalf("precondition: span addresses %q, want %q", got, "@bob")
	}

	shifted := shiftEntities([]chat.Entity{ent}, utf16Len(header))
	if len(shifted) != 1 {
		t.Fatalf("expected 1 shifted entity, got %d", len(shifted))
	}
	combined := header + body
	if got := sliceUTF16(combined, shifted[0].Offset, shifted[0].Length); got != "@bob" {
		t.Fatalf("shifted span addresses %q, want %q", got, "@bob")
	}
	// Original slice must be untouched.
	if ent.Offset != 7 {
		t.Fatalf("input entity mutated: offset %d", ent.Offset)
	}
}

func TestShiftEntitiesEmpty(t *testing.T) {
	t.Parallel()
	if got := shiftEntities(nil, 10); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSliceUTF16MatchesEncodeSlice(t *testing.T) {
	t.Parallel()
	s := "x😀y€z🔔"
	units := utf16.Encode([]rune(s))
	for off := 0; off < len(units); off++ {
		for l := 1; off+l <= len(units); l++ {
			want := string(utf16.Decode(units[off : off+l]))
			if got := sliceUTF16(s, off, l); got != want {
				t.Fatalf("sliceUTF16(%q, %d, %d) = %q, want %q", s, off, l, got, want)
			}
		}
	}
}

func TestEscapeHTML(t *testing.T) {
	t.Parallel()
	if got := escapeHTML(`a < b & c > "d"`); got != `a &lt; b &amp; c &gt; "d"` {
		t.Fatalf("escapeHTML = %q", got)
	}
}

func TestRenderInlineLinksPlainTextIsJustEscaping(t *testing.T) {
	t.Parallel()
	in := "no links <here> & there [not](https://example.com) either"
	if got, want := renderInlineLinks(in), escapeHTML(in); got != want {
		t.Fatalf("renderInlineLinks = %q, want %q", got, want)
	}
}

func TestRenderInlineLinksRoundTrip(t *testing.T) {
	t.Parallel()
	got := renderInlineLinks("see [Alice](tg://user?id=42) now")
	want := `see <a href="tg://user?id=42">Alice</a> now`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderInlineLinksEscapesInsideLabelOnce(t *testing.T) {
	t.Parallel()
	got := renderInlineLinks("<b> [A&B](tg://user?id=7) <i>")
	want := `&lt;b&gt; <a href="tg://user?id=7">A&amp;B</a> &lt;i&gt;`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if strings.Contains(got, "&amp;amp;") {
		t.Fatal("label was double-escaped")
	}
}

func TestRenderInlineLinksMultiplePreserveOrder(t *testing.T) {
	t.Parallel()
	got := renderInlineLinks("[A](tg://user?id=1) mid [B](tg://user?id=2)")
	want := `<a href="tg://user?id=1">A</a> mid <a href="tg://user?id=2">B</a>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMediaKindPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		media *chat.Media
		want  chat.MediaKind
	}{
		{"nil", nil, chat.MediaNone},
		{"photo", &chat.Media{Photo: true}, chat.MediaPhoto},
		{"sticker wins over filename", &chat.Media{Sticker: true, Filename: "s.webp"}, chat.MediaSticker},
		{"round video is a video note", &chat.Media{Video: true, Round: true}, chat.MediaVideoNote},
		{"video without round flag", &chat.Media{Video: true}, chat.MediaVideo},
		{"voice wins over audio", &chat.Media{Audio: true, Voice: true}, chat.MediaVoice},
		{"audio", &chat.Media{Audio: true}, chat.MediaAudio},
		{"named document", &chat.Media{Filename: "report.pdf"}, chat.MediaDocument},
		{"generic", &chat.Media{}, chat.MediaGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.media.Kind(); got != tt.want {
				t.Fatalf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinksByPeerKind(t *testing.T) {
	t.Parallel()
	pub := chat.Peer{ID: -1001234, Kind: chat.PeerChannel, Title: "Gophers", Username: "gophers"}
	priv := chat.Peer{ID: -1009876543, Kind: chat.PeerChannel, Title: "Private"}
	group := chat.Peer{ID: -555, Kind: chat.PeerGroup, Title: "Old Group"}

	if got := messageLink(pub, 7); got != "https://t.me/gophers/7" {
		t.Fatalf("public message link = %q", got)
	}
	if got := chatLink(pub); got != "https://t.me/gophers" {
		t.Fatalf("public chat link = %q", got)
	}
	if got := messageLink(priv, 7); got != "https://t.me/c/9876543/7" {
		t.Fatalf("private message link = %q", got)
	}
	if got := chatLink(priv); got != "https://t.me/c/9876543" {
		t.Fatalf("private chat link = %q", got)
	}
	// Plain groups have no addressable link.
	if got := messageLink(group, 7); got != "" {
		t.Fatalf("group message link = %q, want none", got)
	}
	if got := chatLink(group); got != "" {
		t.Fatalf("group chat link = %q, want none", got)
	}
}

func TestSenderAndChatNames(t *testing.T) {
	t.Parallel()
	if got := senderName(nil); got != "Unknown" {
		t.Fatalf("nil sender = %q", got)
	}
	if got := senderName(&chat.User{FirstName: "Ada", LastName: "Lovelace"}); got != "Ada Lovelace" {
		t.Fatalf("full name = %q", got)
	}
	if got := senderName(&chat.User{Username: "ada"}); got != "ada" {
		t.Fatalf("username fallback = %q", got)
	}
	if got := senderName(&chat.User{}); got != "Unknown" {
		t.Fatalf("empty user = %q", got)
	}
	if got := chatName(chat.Peer{}); got != "Unknown" {
		t.Fatalf("untitled chat = %q", got)
	}
}

func TestFormatMentionLayout(t *testing.T) {
	t.Parallel()
	peer := chat.Peer{ID: -1001234, Kind: chat.PeerChannel, Title: "Gophers", Username: "gophers"}
	msg := &chat.Message{
		ID:     42,
		ChatID: peer.ID,
		Sender: &chat.User{ID: 99, FirstName: "Bob"},
		Text:   "ping <you> & co",
	}

	got := formatMention(KindMention, "Alice", 7, peer, msg)
	want := "🔔 " + `<a href="tg://user?id=7">Alice</a> | <a href="https://t.me/gophers">Gophers</a> (<a href="https://t.me/gophers/42">message</a>)` +
		"\nFrom: " + `<a href="tg://user?id=99">Bob</a>` +
		"\n<blockquote>ping &lt;you&gt; &amp; co</blockquote>"
	if got != want {
		t.Fatalf("formatMention mention:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatMentionReplyIconAndMediaFallback(t *testing.T) {
	t.Parallel()
	peer := chat.Peer{ID: -555, Kind: chat.PeerGroup, Title: "Old Group"}
	msg := &chat.Message{
		ID:     1,
		ChatID: peer.ID,
		Sender: &chat.User{ID: 3, Username: "carol"},
		Media:  &chat.Media{Video: true, Round: true},
	}

	got := formatMention(KindReply, "Alice", 0, peer, msg)
	if !strings.HasPrefix(got, iconReply+" ") {
		t.Fatalf("expected reply icon prefix, got %q", got)
	}
	if strings.Contains(got, iconMention) {
		t.Fatal("mention icon must not appear on replies")
	}
	// Account id unknown: plain text, no anchor.
	if strings.Contains(got, `tg://user?id=0`) {
		t.Fatal("zero account id must not become an anchor")
	}
	if !strings.Contains(got, "<blockquote>[Video message]</blockquote>") {
		t.Fatalf("expected media label content, got %q", got)
	}
	if strings.Contains(got, "t.me") {
		t.Fatal("plain group must not produce links")
	}
}

func TestFormatMentionEmptyMessage(t *testing.T) {
	t.Parallel()
	peer := chat.Peer{ID: -555, Kind: chat.PeerGroup, Title: "G"}
	msg := &chat.Message{ID: 1, ChatID: peer.ID}
	got := formatMention(KindMention, "A", 0, peer, msg)
	if !strings.Contains(got, "<blockquote>[Empty message]</blockquote>") {
		t.Fatalf("expected empty-message label, got %q", got)
	}
	if !strings.Contains(got, "From: Unknown") {
		t.Fatalf("expected Unknown sender, got %q", got)
	}
}
