// Package telegram adapts the Telegram Bot API (via telebot) to the
// chat.Client surface the monitoring core consumes.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"tgmon/internal/chat"
	logx "tgmon/pkg/logx"
)

// Options configures one bot connection.
type Options struct {
	Token string
	// PollTimeout is the long-poll timeout. Default 10s.
	PollTimeout time.Duration
	// CacheSize bounds the recent-message cache serving reply lookups.
	// Default 2048.
	CacheSize int
	Log       logx.Logger
}

// Client is one bot account's connection. It implements chat.Client.
type Client struct {
	opts  Options
	log   logx.Logger
	cache *messageCache
	subs  *fanout

	mu         sync.Mutex
	bot        *tele.Bot
	me         chat.User
	connected  bool
	authorized bool
	runCancel  context.CancelFunc
	runWG      sync.WaitGroup
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	return &Client{
		opts:  opts,
		log:   opts.Log,
		cache: newMessageCache(opts.CacheSize),
		subs:  newFanout(),
	}, nil
}

// Connect builds the bot session and starts the long poller. A rejected
// token is not a connect failure: the session comes up unauthorized and the
// caller decides through Authorized.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	bot, err := tele.NewBot(tele.Settings{
		Token:  c.opts.Token,
		Poller: &tele.LongPoller{Timeout: c.opts.PollTimeout},
	})
	if err != nil {
		var terr *tele.Error
		if errors.As(err, &terr) && terr.Code == 401 {
			c.mu.Lock()
			c.connected = true
			c.authorized = false
			c.mu.Unlock()
			c.log.Warn("token rejected; session is unauthorized")
			return nil
		}
		return fmt.Errorf("telegram: connect: %w", err)
	}

	bot.Handle(tele.OnText, func(tc tele.Context) error {
		c.handleInbound(tc.Message())
		return nil
	})
	bot.Handle(tele.OnMedia, func(tc tele.Context) error {
		c.handleInbound(tc.Message())
		return nil
	})

	rctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.bot = bot
	c.me = chat.User{
		ID:        bot.Me.ID,
		Username:  bot.Me.Username,
		FirstName: bot.Me.FirstName,
		LastName:  bot.Me.LastName,
	}
	c.connected = true
	c.authorized = true
	c.runCancel = cancel
	c.runWG.Add(2)
	c.mu.Unlock()

	// Periodic summary for dropped messages instead of per-event log spam.
	go func() {
		defer c.runWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := c.subs.droppedAndReset(); n > 0 {
					c.log.Warn("inbound messages dropped (queue full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := c.subs.droppedAndReset(); n > 0 {
					c.log.Warn("inbound messages dropped (queue full)", logx.Any("count", n))
				}
			}
		}
	}()

	go func() {
		defer c.runWG.Done()
		go func() {
			<-rctx.Done()
			bot.Stop()
		}()
		c.log.Info("polling started", logx.String("bot", bot.Me.Username))
		bot.Start() // blocks until Stop
	}()

	return nil
}

// Disconnect stops the poller and cancels every live subscription. The
// long-poll loop gets a short grace window so shutdown stays snappy.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.runCancel
	c.runCancel = nil
	wasConnected := c.connected
	c.connected = false
	c.authorized = false
	c.bot = nil
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}

	c.subs.closeAll()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		c.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		c.log.Warn("poller stop grace elapsed; continuing shutdown")
		return nil
	}
}

func (c *Client) Authorized(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false, errors.New("telegram: not connected")
	}
	return c.authorized, nil
}

func (c *Client) CurrentUser(ctx context.Context) (chat.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot == nil {
		return chat.User{}, errors.New("telegram: not connected")
	}
	return c.me, nil
}

// Resolve accepts an @handle or a numeric chat id.
func (c *Client) Resolve(ctx context.Context, ref string) (chat.Peer, error) {
	bot, err := c.session()
	if err != nil {
		return chat.Peer{}, err
	}

	ref = strings.TrimSpace(ref)
	var tc *tele.Chat
	if id, numErr := strconv.ParseInt(ref, 10, 64); numErr == nil {
		tc, err = bot.ChatByID(id)
	} else {
		handle := ref
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		tc, err = bot.ChatByUsername(handle)
	}
	if err != nil {
		if errors.Is(err, tele.ErrChatNotFound) {
			return chat.Peer{}, fmt.Errorf("telegram: resolve %q: %w", ref, chat.ErrNotFound)
		}
		return chat.Peer{}, fmt.Errorf("telegram: resolve %q: %w", ref, err)
	}
	return convertPeer(tc), nil
}

func (c *Client) SendHTML(ctx context.Context, chatID int64, html string, opts chat.SendOptions) error {
	bot, err := c.session()
	if err != nil {
		return err
	}
	_, err = bot.Send(&tele.Chat{ID: chatID}, html, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: opts.DisablePreview,
	})
	if err != nil {
		return fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return nil
}

// FetchMessage serves reply lookups from the recent-message cache. The Bot
// API cannot fetch arbitrary messages, so a cache miss is ErrNotFound.
func (c *Client) FetchMessage(ctx context.Context, chatID int64, messageID int) (*chat.Message, error) {
	if msg, ok := c.cache.Get(chatID, messageID); ok {
		return msg, nil
	}
	return nil, chat.ErrNotFound
}

func (c *Client) Subscribe(chatIDs []int64, h chat.Handler) (chat.Subscription, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, errors.New("telegram: not connected")
	}
	return c.subs.add(chatIDs, h), nil
}

func (c *Client) session() (*tele.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot == nil {
		return nil, errors.New("telegram: not connected")
	}
	return c.bot, nil
}

// handleInbound converts one update, feeds the reply cache, and fans the
// message out. The replied-to message rides along on the update, so caching
// it here is what makes most reply lookups hit.
func (c *Client) handleInbound(m *tele.Message) {
	msg := convertMessage(m)
	if msg == nil {
		return
	}
	if m.ReplyTo != nil {
		c.cache.Put(convertMessage(m.ReplyTo))
	}
	c.cache.Put(msg)
	c.subs.dispatch(msg)
}
