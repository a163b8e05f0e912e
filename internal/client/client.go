// Package client is the conversation core: it owns the transcript, the
// session id, persistence and scroll-follow state, and runs submit cycles
// against a transport. It renders nothing itself.
package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/streamchat/internal/client/persist"
	"github.com/zhouzirui/streamchat/internal/client/scroll"
	"github.com/zhouzirui/streamchat/internal/client/session"
	"github.com/zhouzirui/streamchat/internal/client/store"
	"github.com/zhouzirui/streamchat/internal/client/transport"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// Options configures a Client.
type Options struct {
	KV        persist.KV
	Transport transport.Transport
	// Viewport is driven by the scroll-follow controller; nil is allowed.
	Viewport scroll.Viewport
	// ScrollThreshold <= 0 selects scroll.DefaultThreshold.
	ScrollThreshold int
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// View is what a front end renders.
type View struct {
	Messages    []chat.Message
	UnreadCount int
	NearBottom  bool
	Busy        bool
}

// Client ties the components together.
type Client struct {
	store     *store.Store
	adapter   *persist.Adapter
	session   *session.Manager
	scroll    *scroll.Controller
	engine    *Engine
	transport transport.Transport
	logger    zerolog.Logger

	subsMu  sync.Mutex
	subs    map[int]func(View)
	nextSub int
}

// New loads the stored conversation, or seeds the greeting, and resolves the
// session id.
func New(opts Options) (*Client, error) {
	if opts.KV == nil {
		return nil, errors.New("client: KV is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("client: Transport is required")
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	adapter := persist.NewAdapter(opts.KV, logger)
	c := &Client{
		store:     store.New(),
		adapter:   adapter,
		session:   session.NewManager(adapter, logger),
		scroll:    scroll.NewController(opts.Viewport, opts.ScrollThreshold),
		transport: opts.Transport,
		logger:    logger.With().Str("component", "client").Logger(),
		subs:      make(map[int]func(View)),
	}
	c.engine = NewEngine(c.store, c.session, opts.Transport, c.changed, logger)

	seeded := false
	if snap, ok := adapter.Load(); ok {
		if err := c.store.Reset(snap.Messages); err != nil {
			c.logger.Warn().Err(err).Msg("stored conversation rejected, starting fresh")
		} else {
			seeded = true
		}
	}
	if !seeded {
		if err := c.store.Reset([]chat.Message{chat.NewGreeting()}); err != nil {
			return nil, errors.Wrap(err, "seed greeting")
		}
	}

	sessionID := c.session.GetOrCreate()
	c.save()
	c.logger.Debug().Str("session_id", sessionID).Int("messages", c.store.Len()).Msg("client ready")
	return c, nil
}

// Submit runs one submit cycle and blocks until it ends. See Engine.Submit.
func (c *Client) Submit(ctx context.Context, text string) bool {
	return c.engine.Submit(ctx, text)
}

// Exchange runs one submit cycle and reports how it ended. See Engine.Exchange.
func (c *Client) Exchange(ctx context.Context, text string) Outcome {
	return c.engine.Exchange(ctx, text)
}

// Clear starts a new session with only the greeting. The backend history of
// the previous session is dropped best-effort when the transport supports it.
func (c *Client) Clear(ctx context.Context) {
	previous := c.session.GetOrCreate()
	next := c.session.Reset()

	if err := c.store.Reset([]chat.Message{chat.NewGreeting()}); err != nil {
		c.logger.Error().Err(err).Msg("reset conversation failed")
	}
	c.changed()
	c.logger.Info().Str("previous", previous).Str("session_id", next).Msg("conversation cleared")

	if clearer, ok := c.transport.(transport.HistoryClearer); ok {
		if err := clearer.ClearHistory(ctx, previous); err != nil {
			c.logger.Warn().Err(err).Str("session_id", previous).Msg("clear backend history failed")
		}
	}
}

// JumpToEnd scrolls to the newest message and clears the unread badge.
func (c *Client) JumpToEnd() {
	c.scroll.JumpToEnd()
	c.notify()
}

// Scrolled reports a viewport scroll.
func (c *Client) Scrolled(pos scroll.Position) {
	c.scroll.Scrolled(pos)
	c.notify()
}

// Subscribe registers fn to receive a View after every change. fn runs on
// the goroutine that made the change and must not block.
func (c *Client) Subscribe(fn func(View)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

// View returns the current state.
func (c *Client) View() View {
	st := c.scroll.State()
	return View{
		Messages:    c.store.Snapshot(),
		UnreadCount: st.UnreadCount,
		NearBottom:  st.NearBottom,
		Busy:        c.engine.State() != StateIdle,
	}
}

// SessionID returns the current session id.
func (c *Client) SessionID() string {
	return c.session.GetOrCreate()
}

// changed is the exit action of every mutation batch.
func (c *Client) changed() {
	c.save()
	c.scroll.ContentChanged()
	c.notify()
}

func (c *Client) save() {
	c.adapter.Save(chat.Snapshot{
		SessionID: c.session.GetOrCreate(),
		Messages:  c.store.Snapshot(),
	})
}

func (c *Client) notify() {
	c.subsMu.Lock()
	fns := make([]func(View), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subsMu.Unlock()

	if len(fns) == 0 {
		return
	}
	view := c.View()
	for _, fn := range fns {
		fn(view)
	}
}
