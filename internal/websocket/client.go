// Package websocket keeps the console's realtime connection to the
// backend alive and turns its frames into named events.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/johndosdos/deskchat/internal/model"
)

var ErrNotConnected = errors.New("internal/websocket: not connected")

const (
	eventsChanSize = 256
	writeTimeout   = 10 * time.Second
	readLimit      = 1 << 20

	// jitterDivisor bounds reconnect jitter to [0, backoff/jitterDivisor).
	jitterDivisor = 2
)

// Event is a named realtime event. Data holds the raw JSON payload, nil
// for connect and disconnect.
type Event struct {
	Name string
	Data []byte
}

type Options struct {
	URL          string
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
	DialTimeout  time.Duration
}

func (o *Options) setDefaults() {
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = time.Second
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 20 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 20 * time.Second
	}
}

// Socket is a reconnecting client connection. Reconnects retry forever;
// only Close ends the connection for good.
type Socket struct {
	opts   Options
	logger *slog.Logger
	events chan Event

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
}

func NewSocket(opts Options, logger *slog.Logger) *Socket {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		opts:   opts,
		logger: logger.With(slog.String("component", "socket")),
		events: make(chan Event, eventsChanSize),
		done:   make(chan struct{}),
	}
}

// Events delivers connect, disconnect and every decoded server event in
// arrival order.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// Connected reports whether a connection is currently up.
func (s *Socket) Connected() bool {
	return s.current() != nil
}

func (s *Socket) current() *websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Socket) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Run dials and redials until ctx is cancelled or Close is called.
func (s *Socket) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	backoff := s.opts.ReconnectMin
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			backoff = s.opts.ReconnectMin
			err = s.serve(ctx, conn)
		}

		if s.closed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		jitter := time.Duration(rand.Int64N(int64(backoff)/jitterDivisor + 1)) //nolint:gosec // reconnect jitter only
		s.logger.Warn("connection lost, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff+jitter))

		timer := time.NewTimer(backoff + jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			if s.closed() {
				return nil
			}
			return ctx.Err()
		case <-s.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff = min(backoff*2, s.opts.ReconnectMax)
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	conn, resp, err := websocket.Dial(dialCtx, s.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			s.logger.Error("socket handshake rejected, token may have expired")
		}
		return nil, fmt.Errorf("internal/websocket: failed to dial %s: %w", s.opts.URL, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// serve runs one connection until it drops.
func (s *Socket) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.setConn(conn)
	s.logger.Info("connected", slog.String("url", s.opts.URL))
	s.deliver(ctx, Event{Name: model.EventConnect})

	go s.keepalive(connCtx, conn)
	err := s.readLoop(connCtx, conn)

	s.setConn(nil)
	conn.CloseNow() //nolint:errcheck
	s.deliver(ctx, Event{Name: model.EventDisconnect})
	return err
}

func (s *Socket) deliver(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	case <-s.done:
	}
}

// Emit sends a named event. It fails fast with ErrNotConnected while the
// connection is down; callers re-issue what matters on the next connect.
func (s *Socket) Emit(ctx context.Context, event string, data any) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}

	p, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, p); err != nil {
		return fmt.Errorf("internal/websocket: failed to emit %s: %w", event, err)
	}
	return nil
}

func (s *Socket) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close ends the connection for good. Only logout calls it.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		if conn := s.current(); conn != nil {
			err = conn.Close(websocket.StatusNormalClosure, "logout")
		}

		s.mu.RLock()
		cancel := s.cancel
		s.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
	})
	return err
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
