package telegram

import (
	"context"
	"sync"
	"sync/atomic"

	"tgmon/internal/chat"
)

// fanout routes inbound messages to subscriptions. Each subscription owns a
// buffered queue drained by one pump goroutine, so handler invocations are
// serial and in order per subscription while a slow handler never stalls
// the poll loop or the other subscriptions.
type fanout struct {
	mu      sync.Mutex
	subs    []*subscription
	dropped atomic.Uint64
}

const subQueueSize = 128

type subscription struct {
	f       *fanout
	chatIDs map[int64]struct{}
	handler chat.Handler
	queue   chan *chat.Message
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newFanout() *fanout { return &fanout{} }

func (f *fanout) add(chatIDs []int64, h chat.Handler) *subscription {
	set := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		set[id] = struct{}{}
	}
	s := &subscription{
		f:       f,
		chatIDs: set,
		handler: h,
		queue:   make(chan *chat.Message, subQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.pump()

	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s
}

// dispatch queues msg on every subscription scoped to its chat. A full
// queue drops the message for that subscription; drops are counted and
// surfaced by the client's summary ticker.
func (f *fanout) dispatch(msg *chat.Message) {
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()

	for _, s := range subs {
		if _, ok := s.chatIDs[msg.ChatID]; !ok {
			continue
		}
		select {
		case s.queue <- msg:
		default:
			f.dropped.Add(1)
		}
	}
}

func (f *fanout) remove(s *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.subs {
		if cur == s {
			f.subs[i] = f.subs[len(f.subs)-1]
			f.subs = f.subs[:len(f.subs)-1]
			return
		}
	}
}

// closeAll cancels every live subscription. Used on Disconnect.
func (f *fanout) closeAll() {
	f.mu.Lock()
	subs := append([]*subscription(nil), f.subs...)
	f.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

func (f *fanout) droppedAndReset() uint64 { return f.dropped.Swap(0) }

func (s *subscription) pump() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case msg := <-s.queue:
			s.handler(context.Background(), msg)
		}
	}
}

// Cancel detaches the subscription and waits for the pump to park, so no
// new handler invocation starts after it returns.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.f.remove(s)
		close(s.quit)
		<-s.done
	})
}
