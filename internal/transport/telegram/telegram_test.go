package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgmon/internal/chat"
)

func TestConvertPeerKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   *tele.Chat
		want chat.Peer
	}{
		{
			"supergroup is a channel",
			&tele.Chat{ID: -1001, Type: tele.ChatSuperGroup, Title: "Gophers", Username: "gophers"},
			chat.Peer{ID: -1001, Kind: chat.PeerChannel, Title: "Gophers", Username: "gophers"},
		},
		{
			"channel",
			&tele.Chat{ID: -1002, Type: tele.ChatChannel, Title: "News"},
			chat.Peer{ID: -1002, Kind: chat.PeerChannel, Title: "News"},
		},
		{
			"plain group",
			&tele.Chat{ID: -55, Type: tele.ChatGroup, Title: "Old"},
			chat.Peer{ID: -55, Kind: chat.PeerGroup, Title: "Old"},
		},
		{
			"private chat titled by name",
			&tele.Chat{ID: 7, Type: tele.ChatPrivate, FirstName: "Ada", LastName: "Lovelace", Username: "ada"},
			chat.Peer{ID: 7, Kind: chat.PeerUser, Title: "Ada Lovelace", Username: "ada"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertPeer(tt.in); got != tt.want {
				t.Fatalf("convertPeer = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConvertEntities(t *testing.T) {
	t.Parallel()
	src := tele.Entities{
		{Type: tele.EntityMention, Offset: 0, Length: 6},
		{Type: tele.EntityTMention, Offset: 7, Length: 3, User: &tele.User{ID: 42}},
		{Type: tele.EntityTextLink, Offset: 11, Length: 4, URL: "https://example.com"},
		{Type: tele.EntityHashtag, Offset: 16, Length: 5}, // unmapped: dropped
		{Type: tele.EntityBold, Offset: 22, Length: 2},
	}
	got := convertEntities(src)
	want := []chat.Entity{
		{Kind: chat.EntityMention, Offset: 0, Length: 6},
		{Kind: chat.EntityMentionName, Offset: 7, Length: 3, UserID: 42},
		{Kind: chat.EntityTextURL, Offset: 11, Length: 4, URL: "https://example.com"},
		{Kind: chat.EntityBold, Offset: 22, Length: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entities, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entity %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if convertEntities(nil) != nil {
		t.Fatal("nil entities must convert to nil")
	}
}

func TestConvertMediaClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  *tele.Message
		want chat.MediaKind
	}{
		{"photo", &tele.Message{Photo: &tele.Photo{}}, chat.MediaPhoto},
		{"sticker", &tele.Message{Sticker: &tele.Sticker{}}, chat.MediaSticker},
		{"video note", &tele.Message{VideoNote: &tele.VideoNote{}}, chat.MediaVideoNote},
		{"video", &tele.Message{Video: &tele.Video{}}, chat.MediaVideo},
		{"voice", &tele.Message{Voice: &tele.Voice{}}, chat.MediaVoice},
		{"audio", &tele.Message{Audio: &tele.Audio{}}, chat.MediaAudio},
		{"named document", &tele.Message{Document: &tele.Document{FileName: "a.pdf"}}, chat.MediaDocument},
		{"unnamed document", &tele.Message{Document: &tele.Document{}}, chat.MediaGeneric},
		{"no media", &tele.Message{}, chat.MediaNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertMedia(tt.msg).Kind(); got != tt.want {
				t.Fatalf("Kind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertMessageCaptionFallback(t *testing.T) {
	t.Parallel()
	m := &tele.Message{
		ID:              9,
		Chat:            &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:          &tele.User{ID: 5, Username: "bob"},
		Caption:         "look @alice",
		CaptionEntities: tele.Entities{{Type: tele.EntityMention, Offset: 5, Length: 6}},
		Photo:           &tele.Photo{},
		ReplyTo:         &tele.Message{ID: 4, Chat: &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}},
	}
	got := convertMessage(m)
	if got.Text != "look @alice" {
		t.Fatalf("caption not promoted to text: %q", got.Text)
	}
	if len(got.Entities) != 1 || got.Entities[0].Kind != chat.EntityMention {
		t.Fatalf("caption entities not promoted: %+v", got.Entities)
	}
	if got.SenderID != 5 || got.Sender == nil || got.Sender.Username != "bob" {
		t.Fatalf("sender not converted: %+v", got)
	}
	if got.ReplyToID != 4 {
		t.Fatalf("ReplyToID = %d, want 4", got.ReplyToID)
	}
	if got.Media.Kind() != chat.MediaPhoto {
		t.Fatalf("media kind = %q, want photo", got.Media.Kind())
	}
}

func TestMessageCacheEvictsOldest(t *testing.T) {
	t.Parallel()
	c := newMessageCache(3)
	for i := 1; i <= 4; i++ {
		c.Put(&chat.Message{ID: i, ChatID: -100})
	}

	if _, ok := c.Get(-100, 1); ok {
		t.Fatal("oldest entry must have been evicted")
	}
	for i := 2; i <= 4; i++ {
		if _, ok := c.Get(-100, i); !ok {
			t.Fatalf("message %d missing", i)
		}
	}
	if got := c.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
}

func TestMessageCacheUpdateInPlace(t *testing.T) {
	t.Parallel()
	c := newMessageCache(2)
	c.Put(&chat.Message{ID: 1, ChatID: -100, Text: "old"})
	c.Put(&chat.Message{ID: 1, ChatID: -100, Text: "new"})
	c.Put(&chat.Message{ID: 2, ChatID: -100})

	got, ok := c.Get(-100, 1)
	if !ok || got.Text != "new" {
		t.Fatalf("expected updated entry, got %+v ok=%v", got, ok)
	}
	if got := c.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
}

func TestFanoutRoutesByChat(t *testing.T) {
	t.Parallel()
	f := newFanout()

	var mu sync.Mutex
	got := map[string][]int{}
	collect := func(name string) chat.Handler {
		return func(_ context.Context, msg *chat.Message) {
			mu.Lock()
			got[name] = append(got[name], msg.ID)
			mu.Unlock()
		}
	}

	a := f.add([]int64{-1}, collect("a"))
	b := f.add([]int64{-1, -2}, collect("b"))
	defer a.Cancel()
	defer b.Cancel()

	f.dispatch(&chat.Message{ID: 1, ChatID: -1})
	f.dispatch(&chat.Message{ID: 2, ChatID: -2})
	f.dispatch(&chat.Message{ID: 3, ChatID: -3}) // nobody listens

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["a"]) == 1 && len(got["b"]) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if got["a"][0] != 1 {
		t.Fatalf("sub a received %v", got["a"])
	}
	if got["b"][0] != 1 || got["b"][1] != 2 {
		t.Fatalf("sub b received %v, want [1 2]", got["b"])
	}
}

func TestFanoutHandlerOrderIsSerial(t *testing.T) {
	t.Parallel()
	f := newFanout()

	var mu sync.Mutex
	var order []int
	inFlight := 0
	s := f.add([]int64{-1}, func(_ context.Context, msg *chat.Message) {
		mu.Lock()
		inFlight++
		if inFlight > 1 {
			mu.Unlock()
			t.Error("handler invoked concurrently")
			return
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		order = append(order, msg.ID)
		inFlight--
		mu.Unlock()
	})
	defer s.Cancel()

	for i := 1; i <= 10; i++ {
		f.dispatch(&chat.Message{ID: i, ChatID: -1})
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 10
	})

	mu.Lock()
	defer mu.Unlock()
	for i, id := range order {
		if id != i+1 {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestFanoutCancelStopsDelivery(t *testing.T) {
	t.Parallel()
	f := newFanout()

	var mu sync.Mutex
	count := 0
	s := f.add([]int64{-1}, func(_ context.Context, _ *chat.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	f.dispatch(&chat.Message{ID: 1, ChatID: -1})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	s.Cancel()
	s.Cancel() // idempotent

	f.dispatch(&chat.Message{ID: 2, ChatID: -1})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("count = %d after cancel, want 1", count)
	}
}

func TestFanoutFullQueueDropsAndCounts(t *testing.T) {
	t.Parallel()
	f := newFanout()

	release := make(chan struct{})
	s := f.add([]int64{-1}, func(_ context.Context, _ *chat.Message) {
		<-release
	})
	defer s.Cancel()

	// One message occupies the handler, subQueueSize fill the queue, the
	// rest must be dropped.
	for i := 0; i < subQueueSize+5; i++ {
		f.dispatch(&chat.Message{ID: i, ChatID: -1})
	}
	waitFor(t, func() bool { return f.droppedAndReset() >= 1 })
	close(release)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewValidatesToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{Token: "  "}); err == nil {
		t.Fatal("expected error for empty token")
	}
	c, err := New(Options{Token: "123:abc"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Everything but Connect must refuse to run before a session exists.
	if _, err := c.Authorized(context.Background()); err == nil {
		t.Fatal("Authorized before Connect must error")
	}
	if _, err := c.CurrentUser(context.Background()); err == nil {
		t.Fatal("CurrentUser before Connect must error")
	}
	if _, err := c.Subscribe([]int64{-1}, func(context.Context, *chat.Message) {}); err == nil {
		t.Fatal("Subscribe before Connect must error")
	}
	if err := c.SendHTML(context.Background(), -1, "x", chat.SendOptions{}); err == nil {
		t.Fatal("SendHTML before Connect must error")
	}
}

func TestFetchMessageMissIsNotFound(t *testing.T) {
	t.Parallel()
	c, err := New(Options{Token: "123:abc", CacheSize: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.FetchMessage(context.Background(), -1, 1); err != chat.ErrNotFound {
		t.Fatalf("FetchMessage miss = %v, want ErrNotFound", err)
	}

	c.cache.Put(&chat.Message{ID: 1, ChatID: -1, SenderID: 7})
	got, err := c.FetchMessage(context.Background(), -1, 1)
	if err != nil || got.SenderID != 7 {
		t.Fatalf("FetchMessage hit = %+v, %v", got, err)
	}
}

// Race-friendly dispatch while subscriptions churn.
func TestFanoutConcurrentDispatchAndCancel(t *testing.T) {
	t.Parallel()
	f := newFanout()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := f.add([]int64{int64(-1 - i)}, func(context.Context, *chat.Message) {})
			f.dispatch(&chat.Message{ID: i, ChatID: int64(-1 - i)})
			s.Cancel()
		}(i)
	}
	for i := 0; i < 50; i++ {
		f.dispatch(&chat.Message{ID: i, ChatID: int64(-1 - i%4)})
	}
	wg.Wait()
}
