package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/johndosdos/deskchat/internal/api"
	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/config"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/johndosdos/deskchat/internal/notify"
	ratelimiter "github.com/johndosdos/deskchat/internal/rate_limiter"
	"github.com/johndosdos/deskchat/internal/testutil"
	"github.com/johndosdos/deskchat/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSound struct {
	mu    sync.Mutex
	plays int
}

func (s *testSound) Prime() error { return nil }

func (s *testSound) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return nil
}

func (s *testSound) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

type harness struct {
	s       *Session
	backend *testutil.FakeBackend
	tr      *testutil.FakeTransport
	sound   *testSound
	toaster *notify.Toaster
	desktop *bytes.Buffer
}

var (
	clientA = model.Client{ID: "a", FirstName: "Ana", LastMessageTime: base.Add(-2 * time.Hour)}
	clientB = model.Client{ID: "b", FirstName: "Bo", LastMessageTime: base.Add(-time.Hour)}
)

func newHarness(t *testing.T, role auth.Role, sendRate int, clients ...model.Client) *harness {
	t.Helper()

	logger := testutil.DiscardLogger()
	backend := testutil.NewFakeBackend()
	backend.Clients = clients

	sound := &testSound{}
	audio := notify.NewAudioGate(sound, logger)
	audio.Unlock()

	limiter := ratelimiter.NewConversationLimiter(sendRate, time.Minute, ratelimiter.CleanupOpts{})
	t.Cleanup(limiter.Cancel)

	h := &harness{
		backend: backend,
		tr:      testutil.NewFakeTransport(),
		sound:   sound,
		toaster: notify.NewToaster(10, logger),
		desktop: &bytes.Buffer{},
	}
	h.s = NewSession(Options{
		Identity:   auth.Identity{UserID: "me", Role: role},
		Backend:    backend,
		Transport:  h.tr,
		Logger:     logger,
		Audio:      audio,
		Desktop:    notify.NewDesktop(notify.PermissionGranted, h.desktop, logger),
		Toaster:    h.toaster,
		Limiter:    limiter,
		DateLayout: config.LayoutLong,
		Location:   time.UTC,
		Now:        func() time.Time { return base },
	})
	return h
}

// pump applies the next background result on the test goroutine, the
// way Run would.
func (h *harness) pump(t *testing.T) {
	t.Helper()
	select {
	case apply := <-h.s.results:
		apply(context.Background())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a background result")
	}
}

func (h *harness) loadRoster(t *testing.T) {
	t.Helper()
	h.s.requestRoster(context.Background(), false)
	h.pump(t)
}

func (h *harness) selectClient(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.s.selectClient(context.Background(), id))
	h.pump(t)
}

func (h *harness) event(name string, data []byte) {
	h.s.handleEvent(context.Background(), websocket.Event{Name: name, Data: data})
}

func (h *harness) toasts() []string {
	var out []string
	for _, ts := range h.toaster.Recent(time.Hour) {
		out = append(out, ts.Message)
	}
	return out
}

func payload(t *testing.T, m model.Message) []byte {
	t.Helper()
	p, err := json.Marshal(m)
	require.NoError(t, err)
	return p
}

func clientMsg(id, clientID string, at time.Time, text string) model.Message {
	return model.Message{ID: id, ClientID: clientID, Sender: model.SenderClient, Text: text, Timestamp: at}
}

func TestStaleHistoryIsDiscarded(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	h.backend.SetHistory("a", []model.Message{clientMsg("ma", "a", base, "from a")})
	h.backend.SetHistory("b", []model.Message{clientMsg("mb", "b", base, "from b")})

	release := h.backend.Hold("a")
	ctx := context.Background()
	require.NoError(t, h.s.selectClient(ctx, "a"))
	require.NoError(t, h.s.selectClient(ctx, "b"))

	h.pump(t)
	assert.Equal(t, []string{"mb"}, ids(h.s.store.Messages()))

	release()
	h.pump(t)
	assert.Equal(t, []string{"mb"}, ids(h.s.store.Messages()), "a's late answer must not overwrite b")
	assert.False(t, h.s.snapshot().Active.Loading)
	assert.Equal(t, "b", h.s.snapshot().Active.Client.ID)
}

func TestLiveMessagesSurviveHistoryInFlight(t *testing.T) {
	older := clientMsg("old", "a", base.Add(-time.Minute), "earlier")
	live := clientMsg("live", "a", base.Add(time.Second), "just now")

	tests := []struct {
		name     string
		snapshot []model.Message
	}{
		{"snapshot predates live message", []model.Message{older}},
		{"snapshot already has it", []model.Message{older, live}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, auth.RoleAdmin, 30, clientA)
			h.loadRoster(t)
			h.backend.SetHistory("a", tt.snapshot)

			release := h.backend.Hold("a")
			require.NoError(t, h.s.selectClient(context.Background(), "a"))
			h.event(model.EventNewMessage, payload(t, live))
			assert.Equal(t, []string{"live"}, ids(h.s.store.Messages()))

			release()
			h.pump(t)
			assert.Equal(t, []string{"old", "live"}, ids(h.s.store.Messages()))
		})
	}
}

func TestSelectResetsState(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	h.backend.SetHistory("a", []model.Message{{ID: "ma", ClientID: "a", Sender: model.SenderClient, Text: "hola", TranslatedText: "hello", SourceLanguage: "es", Timestamp: base}})

	h.event(model.EventNewMessage, payload(t, clientMsg("x", "a", base, "ping")))
	require.Equal(t, 1, h.s.unread.Count("a"))

	h.selectClient(t, "a")
	h.s.toggleOriginal("ma")
	assert.True(t, h.s.snapshot().Active.ShowOriginal["ma"])
	assert.Equal(t, 0, h.s.unread.Count("a"))
	assert.False(t, h.s.unread.IsNew("a"))

	require.NoError(t, h.s.selectClient(context.Background(), "b"))
	v := h.s.snapshot()
	assert.True(t, v.Active.Loading)
	assert.Empty(t, v.Active.Groups)
	assert.Empty(t, v.Active.ShowOriginal)
	h.pump(t)
	assert.False(t, h.s.snapshot().Active.Loading)

	assert.ErrorIs(t, h.s.selectClient(context.Background(), "zzz"), ErrUnknownClient)
}

func TestToggleOriginalNeedsTranslation(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.backend.SetHistory("a", []model.Message{clientMsg("plain", "a", base, "hello")})
	h.selectClient(t, "a")

	h.s.toggleOriginal("plain")
	h.s.toggleOriginal("missing")
	assert.Empty(t, h.s.showOriginal)
}

func TestSendThenEchoThenResponse(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.selectClient(t, "a")

	release := h.backend.HoldSends()
	require.NoError(t, h.s.send(context.Background(), "  hello  "))

	msgs := h.s.store.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Provisional())
	assert.Equal(t, "hello", msgs[0].Text)

	echo := model.Message{ID: "srv-1", ClientID: "a", AgentID: "me", Sender: model.SenderAgent, Text: "hello", Timestamp: base.Add(120 * time.Millisecond)}
	h.event(model.EventNewMessage, payload(t, echo))
	assert.Equal(t, []string{"srv-1"}, ids(h.s.store.Messages()))

	release()
	h.pump(t)
	assert.Equal(t, []string{"srv-1"}, ids(h.s.store.Messages()))
	assert.Equal(t, 0, h.sound.count(), "own messages are silent")

	sent := h.backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a", sent[0].ClientID)
	assert.Equal(t, "me", sent[0].AgentID)
	assert.Equal(t, model.SenderAgent, sent[0].Sender)
}

func TestSendThenResponseThenEcho(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.selectClient(t, "a")

	require.NoError(t, h.s.send(context.Background(), "hello"))
	h.pump(t)
	assert.Equal(t, []string{"srv-1"}, ids(h.s.store.Messages()))

	h.event(model.EventNewMessage, payload(t, model.Message{ID: "srv-1", ClientID: "a", Sender: model.SenderAgent, Text: "hello", Timestamp: base}))
	assert.Equal(t, []string{"srv-1"}, ids(h.s.store.Messages()))
}

func TestSendResponseWithoutID(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.selectClient(t, "a")
	h.backend.Reply = func(req api.SendRequest, n int) model.Message { return model.Message{} }

	require.NoError(t, h.s.send(context.Background(), "hello"))
	h.pump(t)

	msgs := h.s.store.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Provisional())
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestSendFailureKeepsProvisional(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.selectClient(t, "a")
	h.backend.SendErr = errors.New("backend down")

	require.NoError(t, h.s.send(context.Background(), "hello"))
	h.pump(t)

	msgs := h.s.store.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Provisional())
	assert.Contains(t, h.toasts(), "Failed to send message")
}

func TestSendAfterSwitchingAway(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	h.selectClient(t, "a")
	h.backend.SetHistory("b", []model.Message{clientMsg("mb", "b", base, "from b")})

	release := h.backend.HoldSends()
	require.NoError(t, h.s.send(context.Background(), "for a"))
	h.selectClient(t, "b")

	release()
	h.pump(t)
	assert.Equal(t, []string{"mb"}, ids(h.s.store.Messages()))
}

func TestSendRejections(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 1, clientA)
	h.loadRoster(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.s.send(ctx, "hello"), ErrNoConversation)

	h.selectClient(t, "a")
	assert.ErrorIs(t, h.s.send(ctx, "   "), ErrEmptyMessage)
	assert.Zero(t, h.s.store.Len())

	require.NoError(t, h.s.send(ctx, "first"))
	assert.ErrorIs(t, h.s.send(ctx, "second"), ErrRateLimited)
	assert.Equal(t, 1, h.s.store.Len())
	assert.Contains(t, h.toasts(), "You are sending messages too quickly")
	h.pump(t)
	assert.Len(t, h.backend.Sent(), 1)
}

func TestIncomingRouting(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	h.selectClient(t, "a")

	// Background conversation: counted, sound once.
	h.event(model.EventNewMessage, payload(t, clientMsg("b1", "b", base.Add(time.Minute), "need help")))
	assert.Equal(t, 1, h.s.unread.Count("b"))
	assert.Zero(t, h.s.store.Len())
	assert.Equal(t, 1, h.sound.count())
	c, _ := h.s.roster.Get("b")
	assert.Equal(t, "need help", c.LastMessage)

	// Active conversation: stored, sound once, no unread.
	h.event(model.EventNewMessage, payload(t, clientMsg("a1", "a", base.Add(time.Minute), "hello?")))
	assert.Equal(t, []string{"a1"}, ids(h.s.store.Messages()))
	assert.Equal(t, 0, h.s.unread.Count("a"))
	assert.Equal(t, 2, h.sound.count())

	// Redelivery is absorbed.
	h.event(model.EventNewMessage, payload(t, clientMsg("a1", "a", base.Add(time.Minute), "hello?")))
	assert.Equal(t, 1, h.s.store.Len())
	assert.Equal(t, 2, h.sound.count())

	// Staff messages never sound.
	h.event(model.EventNewMessage, payload(t, model.Message{ID: "a2", ClientID: "a", AgentID: "other", Sender: model.SenderAgent, Text: "on it", Timestamp: base.Add(2 * time.Minute)}))
	assert.Equal(t, 2, h.s.store.Len())
	assert.Equal(t, 2, h.sound.count())

	h.selectClient(t, "b")
	assert.Equal(t, 0, h.s.unread.Count("b"))
	assert.False(t, h.s.unread.IsNew("b"))
}

func TestAgentSeesOnlyOwnThread(t *testing.T) {
	h := newHarness(t, auth.RoleAgent, 30, clientA)
	h.loadRoster(t)
	h.pump(t) // auto-selected history

	require.NotNil(t, h.s.active)
	assert.Equal(t, model.ConversationKey{ClientID: "a", AgentID: "me"}, h.s.active.Key)

	h.event(model.EventNewMessage, payload(t, model.Message{ID: "x1", ClientID: "a", AgentID: "other", Sender: model.SenderAgent, Text: "not mine", Timestamp: base}))
	assert.Zero(t, h.s.store.Len())
	assert.Zero(t, h.s.unread.Count("a"))

	h.event(model.EventNewMessage, payload(t, model.Message{ID: "x2", ClientID: "a", AgentID: "other", Sender: model.SenderClient, Text: "hi", Timestamp: base.Add(time.Second)}))
	h.event(model.EventNewMessage, payload(t, model.Message{ID: "x3", ClientID: "a", AgentID: "me", Sender: model.SenderAgent, Text: "hello", Timestamp: base.Add(2 * time.Second)}))
	assert.Equal(t, []string{"x2", "x3"}, ids(h.s.store.Messages()))
}

func TestAgentAutoSelectsMostRecent(t *testing.T) {
	h := newHarness(t, auth.RoleAgent, 30, clientA, clientB)
	h.loadRoster(t)
	h.pump(t)

	require.NotNil(t, h.s.active)
	assert.Equal(t, "b", h.s.active.Client.ID)

	// Later roster loads keep the user's choice.
	require.NoError(t, h.s.selectClient(context.Background(), "a"))
	h.pump(t)
	h.loadRoster(t)
	assert.Equal(t, "a", h.s.active.Client.ID)
}

func TestAdminDoesNotAutoSelect(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	assert.Nil(t, h.s.active)
}

func TestPartialAndMalformedMessages(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.selectClient(t, "a")

	h.event(model.EventNewMessage, []byte(`{"clientId":"a","sender":"client","text":"no id"}`))
	msgs := h.s.store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, base, msgs[0].Timestamp)
	assert.True(t, msgs[0].Provisional())

	h.event(model.EventNewMessage, []byte(`{"clientId":`))
	h.event(model.EventNewMessage, []byte(`{"clientId":"a","sender":"client"}`))
	assert.Equal(t, 1, h.s.store.Len())
	assert.Equal(t, 1, h.sound.count())
}

func TestReconnectResyncs(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	assert.Empty(t, h.tr.Emitted(), "joins wait for a connection")

	h.tr.SetConnected(true)
	h.event(model.EventConnect, nil)
	assert.Equal(t, []model.RoomRequest{
		{UserID: "me"},
		{UserID: "me", RoomID: "a"},
		{UserID: "me", RoomID: "b"},
	}, h.tr.Rooms(model.EventJoinRoom))

	h.selectClient(t, "a")
	fetchesBefore := len(h.backend.Fetches())
	rosterBefore := h.backend.RosterCalls()

	h.tr.SetConnected(false)
	h.event(model.EventDisconnect, nil)
	assert.False(t, h.s.snapshot().Connected)

	// Missed while offline.
	h.backend.SetHistory("a", []model.Message{clientMsg("missed", "a", base, "are you there?")})

	h.tr.SetConnected(true)
	h.tr.Reset()
	h.event(model.EventConnect, nil)

	assert.Len(t, h.tr.Rooms(model.EventJoinRoom), 3)
	assert.False(t, h.s.snapshot().Active.Loading, "resync is silent")

	h.pump(t)
	h.pump(t)
	assert.Equal(t, fetchesBefore+1, len(h.backend.Fetches()))
	assert.Equal(t, rosterBefore+1, h.backend.RosterCalls())
	assert.Equal(t, []string{"missed"}, ids(h.s.store.Messages()))
	assert.True(t, h.s.snapshot().Connected)
}

func TestClientUpdateJoinsNewClients(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.tr.SetConnected(true)
	h.event(model.EventConnect, nil)
	h.loadRoster(t)

	h.backend.Clients = append(h.backend.Clients, clientB)
	h.tr.Reset()
	h.event(model.EventClientUpdate, []byte(`{}`))
	h.pump(t)

	assert.Equal(t, []model.RoomRequest{{UserID: "me", RoomID: "b"}}, h.tr.Rooms(model.EventJoinRoom))
	assert.Equal(t, 2, h.s.roster.Len())
}

func TestNewClientNotification(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	h.selectClient(t, "a")
	rosterBefore := h.backend.RosterCalls()

	h.event(model.EventNewClientNotification, []byte(`{"clientId":"b","message":"hola"}`))
	assert.Equal(t, 1, h.sound.count())
	assert.Contains(t, h.desktop.String(), "hola")
	assert.Equal(t, 1, h.s.unread.Count("b"))
	assert.True(t, h.s.unread.IsNew("b"))

	h.pump(t)
	assert.Equal(t, rosterBefore+1, h.backend.RosterCalls())

	h.event(model.EventNewClientNotification, []byte(`{"message":"no client"}`))
	assert.Equal(t, 1, h.sound.count())
}

func TestMessageNotification(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)
	h.selectClient(t, "a")
	before := len(h.backend.Fetches())

	h.event(model.EventMessageNotification, []byte(`{"clientId":"b"}`))
	assert.Equal(t, before, len(h.backend.Fetches()))
	assert.Zero(t, h.sound.count())

	h.backend.SetHistory("a", []model.Message{clientMsg("n1", "a", base, "ping")})
	h.event(model.EventMessageNotification, []byte(`{"clientId":"a"}`))
	h.pump(t)
	assert.Equal(t, before+1, len(h.backend.Fetches()))
	assert.Equal(t, []string{"n1"}, ids(h.s.store.Messages()))
	assert.Equal(t, 1, h.sound.count())
}

func TestHistoryFailureToasts(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA)
	h.loadRoster(t)
	h.backend.FetchErr = errors.New("timeout")

	h.selectClient(t, "a")
	v := h.s.snapshot()
	assert.False(t, v.Active.Loading)
	assert.Equal(t, "timeout", v.Active.Error)
	assert.Contains(t, h.toasts(), "Failed to load messages")
}

func TestSoundWaitsForInteraction(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.loadRoster(t)

	sound := &testSound{}
	h.s.audio = notify.NewAudioGate(sound, testutil.DiscardLogger())

	h.event(model.EventNewMessage, payload(t, clientMsg("b1", "b", base, "hi")))
	assert.Zero(t, sound.count())

	h.s.UnlockAudio()
	h.event(model.EventNewMessage, payload(t, clientMsg("b2", "b", base.Add(time.Minute), "hi again")))
	assert.Equal(t, 1, sound.count())
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t, auth.RoleAdmin, 30, clientA, clientB)
	h.backend.SetHistory("a", []model.Message{clientMsg("a0", "a", base.Add(-time.Minute), "hi")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.s.Run(ctx) }()

	h.tr.SetConnected(true)
	h.tr.Push(model.EventConnect, nil)

	require.Eventually(t, func() bool {
		v := h.s.View()
		return v.Connected && len(v.Roster) > 0 && len(v.Roster[0].Entries) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.s.Select(ctx, "a"))
	require.Eventually(t, func() bool {
		v := h.s.View()
		return v.Active != nil && !v.Active.Loading && len(v.Active.Groups) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.s.Send(ctx, "hello"))
	require.Eventually(t, func() bool {
		msgs := h.s.View().Active.Groups[0].Messages
		return len(msgs) == 2 && msgs[1].ID == "srv-1"
	}, 2*time.Second, 10*time.Millisecond)

	h.tr.Push(model.EventNewMessage, payload(t, clientMsg("b1", "b", base, "help")))
	require.Eventually(t, func() bool { return h.s.View().UnreadTotal == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.s.Logout(ctx))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after logout")
	}

	assert.True(t, h.tr.Closed())
	emitted := h.tr.Emitted()
	require.NotEmpty(t, emitted)
	assert.Equal(t, model.EventLeaveAllRooms, emitted[len(emitted)-1].Event)
	assert.ErrorIs(t, h.s.Select(context.Background(), "b"), ErrClosed)
}
