package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/johndosdos/deskchat/internal/model"
	"github.com/johndosdos/deskchat/internal/websocket"
)

func (s *Session) handleEvent(ctx context.Context, ev websocket.Event) {
	s.metrics.Event(ev.Name)

	switch ev.Name {
	case model.EventConnect:
		s.onConnect(ctx)
	case model.EventDisconnect:
		s.onDisconnect()
	case model.EventNewMessage:
		s.onNewMessage(ev.Data)
	case model.EventClientUpdate:
		s.requestRoster(ctx, true)
	case model.EventNewClientNotification:
		s.onNewClientNotification(ctx, ev.Data)
	case model.EventMessageNotification:
		s.onMessageNotification(ctx, ev.Data)
	default:
		s.logger.Debug("ignoring event", slog.String("event", ev.Name))
	}
}

// onNewMessage routes a live message: into the store when it belongs to
// the focused conversation, onto the unread counter otherwise.
func (s *Session) onNewMessage(data []byte) {
	payload, err := model.DecodeMessagePayload(data)
	if err != nil {
		s.metrics.Malformed()
		s.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
		return
	}

	m := payload.Normalize(s.now())
	if m.Text == "" || m.ClientID == "" {
		s.metrics.Malformed()
		s.logger.Warn("dropping incomplete message",
			slog.String("message_id", m.ID),
			slog.String("kind", payload.Kind.String()))
		return
	}

	s.roster.Touch(m)

	if s.belongsToActive(m) {
		res := s.store.Append(m)
		s.metrics.Append(res.String())
		if res == Duplicate || res == Rejected {
			return
		}
	} else if m.FromClient() {
		s.unread.Increment(m.ClientID)
	}

	if m.FromClient() {
		s.playSound()
	}
}

func (s *Session) onNewClientNotification(ctx context.Context, data []byte) {
	var n model.ClientNotification
	if err := json.Unmarshal(data, &n); err != nil || n.ClientID == "" {
		s.metrics.Malformed()
		s.logger.Warn("dropping malformed client notification")
		return
	}

	s.playSound()

	title := "New Client Message"
	if c, ok := s.roster.Get(n.ClientID); ok {
		title = "New message from " + c.Name()
	}
	s.desktop.Notify(title, Preview(n.Message))

	if s.active == nil || s.active.Key.ClientID != n.ClientID {
		s.unread.Increment(n.ClientID)
	}
	s.requestRoster(ctx, true)
}

func (s *Session) onMessageNotification(ctx context.Context, data []byte) {
	var n model.MessageNotification
	if err := json.Unmarshal(data, &n); err != nil {
		s.metrics.Malformed()
		return
	}
	if s.active == nil || s.active.Key.ClientID != n.ClientID {
		return
	}
	s.requestHistory(ctx, true)
	s.playSound()
}

func (s *Session) playSound() {
	if s.audio.Play() {
		s.metrics.Sound()
	}
}
