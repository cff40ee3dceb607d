package telegram

import (
	"sync"

	"tgmon/internal/chat"
)

type cacheKey struct {
	chatID    int64
	messageID int
}

// messageCache is a bounded map of recently seen messages. The Bot API has
// no call to fetch an arbitrary message, so reply lookups are served from
// here; a miss means the replied-to message scrolled out of the window.
type messageCache struct {
	mu    sync.Mutex
	slots []cacheKey // ring of occupied keys, oldest overwritten first
	next  int
	items map[cacheKey]*chat.Message
}

func newMessageCache(size int) *messageCache {
	if size <= 0 {
		size = 2048
	}
	return &messageCache{
		slots: make([]cacheKey, size),
		items: make(map[cacheKey]*chat.Message, size),
	}
}

func (c *messageCache) Put(msg *chat.Message) {
	if msg == nil {
		return
	}
	key := cacheKey{chatID: msg.ChatID, messageID: msg.ID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		c.items[key] = msg
		return
	}
	if old := c.slots[c.next]; old != (cacheKey{}) {
		delete(c.items, old)
	}
	c.slots[c.next] = key
	c.next = (c.next + 1) % len(c.slots)
	c.items[key] = msg
}

func (c *messageCache) Get(chatID int64, messageID int) (*chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.items[cacheKey{chatID: chatID, messageID: messageID}]
	return msg, ok
}

func (c *messageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
