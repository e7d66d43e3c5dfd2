package chat

import (
	"context"
	"log/slog"
	"slices"

	"github.com/johndosdos/deskchat/internal/model"
)

// Emitter sends a named realtime event.
type Emitter interface {
	Emit(ctx context.Context, event string, data any) error
}

// Subscription is a counted claim on a room. The room stays joined, and
// is re-joined after reconnects, while at least one claim is held.
type Subscription struct {
	RoomID string
	m      *RoomManager
	done   bool
}

// Release drops the claim. Releasing twice is a no-op.
func (s *Subscription) Release() {
	if s == nil || s.done {
		return
	}
	s.done = true
	s.m.release(s.RoomID)
}

// RoomManager tracks which rooms the session wants and which joins went
// out on the current connection. The user's personal room is always
// wanted. Leaves are only sent at teardown.
type RoomManager struct {
	emitter Emitter
	userID  string
	logger  *slog.Logger

	refs   map[string]int
	joined map[string]bool
	roster map[string]*Subscription
}

func NewRoomManager(emitter Emitter, userID string, logger *slog.Logger) *RoomManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &RoomManager{
		emitter: emitter,
		userID:  userID,
		logger:  logger,
		refs:    make(map[string]int),
		joined:  make(map[string]bool),
		roster:  make(map[string]*Subscription),
	}
	m.refs[userID] = 1
	return m
}

// Acquire claims roomID, joining it if this connection has not yet.
func (m *RoomManager) Acquire(ctx context.Context, roomID string) *Subscription {
	m.refs[roomID]++
	m.join(ctx, roomID)
	return &Subscription{RoomID: roomID, m: m}
}

func (m *RoomManager) release(roomID string) {
	if m.refs[roomID] <= 1 {
		delete(m.refs, roomID)
		return
	}
	m.refs[roomID]--
}

// Sync holds one claim per roster member so background conversations
// keep delivering. Members no longer listed lose their roster claim.
func (m *RoomManager) Sync(ctx context.Context, roomIDs []string) {
	keep := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		if id == "" {
			continue
		}
		keep[id] = true
		if _, ok := m.roster[id]; !ok {
			m.roster[id] = m.Acquire(ctx, id)
		}
	}
	for id, sub := range m.roster {
		if !keep[id] {
			sub.Release()
			delete(m.roster, id)
		}
	}
}

func (m *RoomManager) join(ctx context.Context, roomID string) {
	if m.joined[roomID] {
		return
	}

	req := model.RoomRequest{UserID: m.userID, RoomID: roomID}
	if roomID == m.userID {
		req.RoomID = ""
	}
	if err := m.emitter.Emit(ctx, model.EventJoinRoom, req); err != nil {
		// Retried on the next connect.
		m.logger.Debug("join deferred",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()))
		return
	}
	m.joined[roomID] = true
}

// Reconnected re-issues a join for every wanted room.
func (m *RoomManager) Reconnected(ctx context.Context) {
	clear(m.joined)
	for _, id := range m.Rooms() {
		m.join(ctx, id)
	}
}

// Disconnected forgets which joins went out.
func (m *RoomManager) Disconnected() {
	clear(m.joined)
}

// Joined reports whether a join for roomID went out on this connection.
func (m *RoomManager) Joined(roomID string) bool {
	return m.joined[roomID]
}

// Rooms lists wanted rooms in a stable order, personal room first.
func (m *RoomManager) Rooms() []string {
	rooms := make([]string, 0, len(m.refs))
	for id := range m.refs {
		if id != m.userID {
			rooms = append(rooms, id)
		}
	}
	slices.Sort(rooms)
	return append([]string{m.userID}, rooms...)
}

// Teardown leaves every room, then the personal room, then asks the
// server to drop anything left over.
func (m *RoomManager) Teardown(ctx context.Context) {
	for _, id := range m.Rooms()[1:] {
		m.emit(ctx, model.EventLeaveRoom, model.RoomRequest{UserID: m.userID, RoomID: id})
	}
	m.emit(ctx, model.EventLeaveRoom, model.RoomRequest{UserID: m.userID})
	m.emit(ctx, model.EventLeaveAllRooms, model.RoomRequest{UserID: m.userID})

	clear(m.refs)
	clear(m.joined)
	clear(m.roster)
}

func (m *RoomManager) emit(ctx context.Context, event string, req model.RoomRequest) {
	if err := m.emitter.Emit(ctx, event, req); err != nil {
		m.logger.Debug("room event not sent",
			slog.String("event", event),
			slog.String("room_id", req.RoomID),
			slog.String("error", err.Error()))
	}
}
