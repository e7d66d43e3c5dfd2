// Package testutil holds fakes for the backend and the realtime socket.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/johndosdos/deskchat/internal/api"
	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/johndosdos/deskchat/internal/websocket"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// DiscardLogger keeps test output quiet.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// FakeBackend serves canned history and roster data. A gate registered
// for a client holds its history fetch until the gate is closed.
type FakeBackend struct {
	mu sync.Mutex

	History  map[string][]model.Message
	Clients  []model.Client
	FetchErr error
	SendErr  error
	// Reply builds the send response; by default the request is echoed
	// back under the id "srv-<n>".
	Reply func(req api.SendRequest, n int) model.Message

	gates       map[string]chan struct{}
	sendGate    chan struct{}
	fetches     []model.ConversationKey
	sent        []api.SendRequest
	rosterCalls int
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		History: make(map[string][]model.Message),
		gates:   make(map[string]chan struct{}),
	}
}

// Hold blocks history fetches for clientID until the returned func runs.
func (f *FakeBackend) Hold(clientID string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[clientID] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// HoldSends blocks every send until the returned func runs.
func (f *FakeBackend) HoldSends() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.sendGate = ch
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *FakeBackend) SetHistory(clientID string, msgs []model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.History[clientID] = msgs
}

func (f *FakeBackend) FetchMessages(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, key)
	gate := f.gates[key.ClientID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	out := make([]model.Message, len(f.History[key.ClientID]))
	copy(out, f.History[key.ClientID])
	return out, nil
}

func (f *FakeBackend) SendMessage(ctx context.Context, req api.SendRequest) (model.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	n := len(f.sent)
	gate := f.sendGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return model.Message{}, f.SendErr
	}
	if f.Reply != nil {
		return f.Reply(req, n), nil
	}
	return model.Message{
		ID:        "srv-" + strconv.Itoa(n),
		ClientID:  req.ClientID,
		AgentID:   req.AgentID,
		Sender:    req.Sender,
		Text:      req.Text,
		Timestamp: req.Timestamp,
	}, nil
}

func (f *FakeBackend) FetchRoster(ctx context.Context, id auth.Identity) ([]model.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosterCalls++
	out := make([]model.Client, len(f.Clients))
	copy(out, f.Clients)
	return out, nil
}

func (f *FakeBackend) Fetches() []model.ConversationKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ConversationKey(nil), f.fetches...)
}

func (f *FakeBackend) Sent() []api.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.SendRequest(nil), f.sent...)
}

func (f *FakeBackend) RosterCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rosterCalls
}

// Emitted is one recorded outbound event.
type Emitted struct {
	Event string
	Data  any
}

// FakeTransport records emits and lets tests inject server events.
type FakeTransport struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	emitted   []Emitted
	events    chan websocket.Event
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{events: make(chan websocket.Event, 64)}
}

func (t *FakeTransport) SetConnected(up bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = up
}

func (t *FakeTransport) Emit(ctx context.Context, event string, data any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return websocket.ErrNotConnected
	}
	t.emitted = append(t.emitted, Emitted{Event: event, Data: data})
	return nil
}

func (t *FakeTransport) Events() <-chan websocket.Event {
	return t.events
}

// Push queues a server event.
func (t *FakeTransport) Push(name string, data []byte) {
	t.events <- websocket.Event{Name: name, Data: data}
}

func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	return nil
}

func (t *FakeTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *FakeTransport) Emitted() []Emitted {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Emitted(nil), t.emitted...)
}

// Rooms lists the room requests sent for event, in order.
func (t *FakeTransport) Rooms(event string) []model.RoomRequest {
	var out []model.RoomRequest
	for _, e := range t.Emitted() {
		if e.Event != event {
			continue
		}
		if req, ok := e.Data.(model.RoomRequest); ok {
			out = append(out, req)
		}
	}
	return out
}

func (t *FakeTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emitted = nil
}
