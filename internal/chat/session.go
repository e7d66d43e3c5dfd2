// Package chat keeps the support console's view of conversations in step
// with the backend: history, live messages, unread counts and rooms.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/johndosdos/deskchat/internal/api"
	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/broker"
	"github.com/johndosdos/deskchat/internal/metrics"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/johndosdos/deskchat/internal/notify"
	ratelimiter "github.com/johndosdos/deskchat/internal/rate_limiter"
	"github.com/johndosdos/deskchat/internal/websocket"
)

var (
	ErrEmptyMessage   = errors.New("internal/chat: message is empty")
	ErrNoConversation = errors.New("internal/chat: no conversation selected")
	ErrUnknownClient  = errors.New("internal/chat: client is not on the roster")
	ErrRateLimited    = errors.New("internal/chat: sending too fast")
	ErrClosed         = errors.New("internal/chat: session closed")
)

// Backend is the REST surface the session reads from and writes to.
type Backend interface {
	FetchMessages(ctx context.Context, key model.ConversationKey) ([]model.Message, error)
	SendMessage(ctx context.Context, req api.SendRequest) (model.Message, error)
	FetchRoster(ctx context.Context, id auth.Identity) ([]model.Client, error)
}

// Transport is the realtime connection.
type Transport interface {
	Emitter
	Events() <-chan websocket.Event
	Close() error
}

type Options struct {
	Identity   auth.Identity
	Backend    Backend
	Transport  Transport
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Audio      *notify.AudioGate
	Desktop    *notify.Desktop
	Toaster    *notify.Toaster
	Limiter    *ratelimiter.ConversationLimiter
	Broker     *broker.Broker[*View]
	DateLayout string
	Location   *time.Location
	Now        func() time.Time
}

// Conversation is the selected client as seen by the signed-in user.
type Conversation struct {
	Client model.Client
	Key    model.ConversationKey
}

// Session owns all conversation state. Every mutation happens on the
// goroutine running Run; other goroutines go through commands.
type Session struct {
	identity  auth.Identity
	backend   Backend
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audio     *notify.AudioGate
	desktop   *notify.Desktop
	toaster   *notify.Toaster
	limiter   *ratelimiter.ConversationLimiter
	broker    *broker.Broker[*View]
	now       func() time.Time

	store  *Store
	unread *UnreadTracker
	rooms  *RoomManager
	roster *Roster

	active        *Conversation
	activeSub     *Subscription
	gen           uint64
	loading       bool
	historyErr    error
	rosterLoading bool
	rosterLoaded  bool
	rosterErr     error
	connected     bool
	everConnected bool
	showOriginal  map[string]bool
	closed        bool

	commands chan command
	results  chan func(context.Context)
	view     atomic.Pointer[View]
	done     chan struct{}
}

type command struct {
	fn    func(ctx context.Context) error
	errCh chan error
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		identity:     opts.Identity,
		backend:      opts.Backend,
		transport:    opts.Transport,
		logger:       logger.With(slog.String("user_id", opts.Identity.UserID), slog.String("role", string(opts.Identity.Role))),
		metrics:      opts.Metrics,
		audio:        opts.Audio,
		desktop:      opts.Desktop,
		toaster:      opts.Toaster,
		limiter:      opts.Limiter,
		broker:       opts.Broker,
		now:          now,
		unread:       NewUnreadTracker(),
		roster:       NewRoster(),
		showOriginal: make(map[string]bool),
		commands:     make(chan command),
		results:      make(chan func(context.Context), 64),
		done:         make(chan struct{}),
	}
	s.store = NewStore(opts.DateLayout, opts.Location, s.logger)
	s.store.now = now
	s.rooms = NewRoomManager(opts.Transport, opts.Identity.UserID, s.logger)
	s.publish()
	return s
}

// Run processes events, command and fetch results until ctx ends or the
// session logs out.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.requestRoster(ctx, false)
	s.publish()

	events := s.transport.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)

		case cmd := <-s.commands:
			cmd.errCh <- cmd.fn(ctx)

		case apply := <-s.results:
			apply(ctx)

		case <-ctx.Done():
			return ctx.Err()
		}

		s.publish()
		if s.closed {
			return nil
		}
	}
}

// do runs fn on the session goroutine and waits for its result.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, errCh: make(chan error, 1)}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-cmd.errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands a finished background result back to the session goroutine.
func (s *Session) post(ctx context.Context, apply func(context.Context)) {
	select {
	case s.results <- apply:
	case <-ctx.Done():
	case <-s.done:
	}
}

// Select focuses the conversation with clientID.
func (s *Session) Select(ctx context.Context, clientID string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.selectClient(ctx, clientID)
	})
}

// Send posts text to the active conversation. It returns once the
// optimistic copy is in the store; delivery completes in the background.
func (s *Session) Send(ctx context.Context, text string) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.send(ctx, text)
	})
}

// ToggleOriginal flips between a client message's translation and its
// original text.
func (s *Session) ToggleOriginal(ctx context.Context, messageID string) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.toggleOriginal(messageID)
		return nil
	})
}

// toggleOriginal only applies to messages that carry a translation.
func (s *Session) toggleOriginal(messageID string) {
	m, ok := s.store.Find(messageID)
	if !ok || !m.HasTranslation() {
		return
	}
	s.showOriginal[messageID] = !s.showOriginal[messageID]
}

// Logout leaves every room and closes the connection. Run returns after.
func (s *Session) Logout(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.rooms.Teardown(ctx)
		s.closed = true
		s.logger.Info("logged out")
		return s.transport.Close()
	})
}

// UnlockAudio records a user interaction. Safe from any goroutine.
func (s *Session) UnlockAudio() {
	s.audio.Unlock()
}

// View returns the latest snapshot. Safe from any goroutine.
func (s *Session) View() *View {
	return s.view.Load()
}

func (s *Session) selectClient(ctx context.Context, clientID string) error {
	c, ok := s.roster.Get(clientID)
	if !ok {
		return ErrUnknownClient
	}

	conv := s.conversationFor(c)
	s.gen++
	s.active = &conv
	s.historyErr = nil
	s.store.ReplaceAll(nil)
	clear(s.showOriginal)
	s.unread.Reset(c.ID)

	s.activeSub.Release()
	s.activeSub = s.rooms.Acquire(ctx, c.ID)

	s.logger.Debug("conversation selected", slog.String("client_id", c.ID), slog.Uint64("generation", s.gen))
	s.requestHistory(ctx, false)
	return nil
}

func (s *Session) conversationFor(c model.Client) Conversation {
	key := model.ConversationKey{ClientID: c.ID, AgentID: c.AgentID()}
	if s.identity.Role == auth.RoleAgent {
		key.AgentID = s.identity.UserID
	}
	return Conversation{Client: c, Key: key}
}

// belongsToActive reports whether m is part of the focused conversation.
// Agents see their own replies and everything the client wrote.
func (s *Session) belongsToActive(m model.Message) bool {
	if s.active == nil || m.ClientID != s.active.Key.ClientID {
		return false
	}
	if s.identity.Role != auth.RoleAgent {
		return true
	}
	return m.AgentID == s.identity.UserID || m.FromClient()
}

// requestHistory fetches the active conversation in the background. A
// silent fetch leaves the loading flag alone.
func (s *Session) requestHistory(ctx context.Context, silent bool) {
	if s.active == nil {
		return
	}
	gen, key, requestedAt := s.gen, s.active.Key, s.now()
	if !silent {
		s.loading = true
	}

	go func() {
		msgs, err := s.backend.FetchMessages(ctx, key)
		s.post(ctx, func(ctx context.Context) {
			s.applyHistory(gen, key, silent, requestedAt, msgs, err)
		})
	}()
}

// applyHistory replaces the store with the fetched snapshot. Entries
// stamped at or after requestedAt arrived while the fetch was in flight
// and may be missing from it, so they are merged back in.
func (s *Session) applyHistory(gen uint64, key model.ConversationKey, silent bool, requestedAt time.Time, msgs []model.Message, err error) {
	if s.active == nil || gen != s.gen || key != s.active.Key {
		s.metrics.Stale()
		s.logger.Debug("discarding stale history",
			slog.String("client_id", key.ClientID),
			slog.Uint64("generation", gen))
		return
	}

	if !silent {
		s.loading = false
	}
	if err != nil {
		s.historyErr = err
		s.logger.Error("failed to fetch messages",
			slog.String("client_id", key.ClientID),
			slog.String("error", err.Error()))
		if !silent {
			s.toast("Failed to load messages")
		}
		return
	}

	s.historyErr = nil
	live := s.store.Messages()
	s.store.ReplaceAll(msgs)
	for _, m := range live {
		if !m.Timestamp.Before(requestedAt) {
			s.metrics.Append(s.store.Append(m).String())
		}
	}
}

func (s *Session) requestRoster(ctx context.Context, silent bool) {
	if !silent {
		s.rosterLoading = true
	}

	go func() {
		clients, err := s.backend.FetchRoster(ctx, s.identity)
		s.post(ctx, func(ctx context.Context) {
			s.applyRoster(ctx, silent, clients, err)
		})
	}()
}

func (s *Session) applyRoster(ctx context.Context, silent bool, clients []model.Client, err error) {
	if !silent {
		s.rosterLoading = false
	}
	if err != nil {
		s.rosterErr = err
		s.logger.Error("failed to fetch clients", slog.String("error", err.Error()))
		if !silent {
			s.toast("Failed to load clients")
		}
		return
	}

	s.rosterErr = nil
	s.roster.Replace(clients)
	s.rooms.Sync(ctx, s.roster.IDs())

	if s.active != nil {
		if c, ok := s.roster.Get(s.active.Client.ID); ok {
			s.active.Client = c
		}
	}

	first := !s.rosterLoaded
	s.rosterLoaded = true
	if first && s.active == nil && s.identity.Role == auth.RoleAgent {
		if c, ok := s.roster.MostRecent(); ok {
			if err := s.selectClient(ctx, c.ID); err != nil {
				s.logger.Warn("auto-select failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Session) toast(msg string) {
	if s.toaster != nil {
		s.toaster.Error(msg)
	}
}
