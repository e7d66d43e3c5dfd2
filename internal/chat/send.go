package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/johndosdos/deskchat/internal/api"
	"github.com/johndosdos/deskchat/internal/model"
)

// send shows text in the thread immediately under a provisional id and
// posts it in the background. The confirmed copy replaces the
// provisional one through the store's reconciliation, whether it comes
// back as the POST response or as a realtime echo first.
func (s *Session) send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if s.active == nil {
		return ErrNoConversation
	}

	conv := *s.active
	if !s.limiter.Allow(conv.Key.String()) {
		s.toast("You are sending messages too quickly")
		return ErrRateLimited
	}

	now := s.now()
	m := model.Message{
		ID:        NewProvisionalID(now),
		ClientID:  conv.Key.ClientID,
		AgentID:   s.senderAgentID(conv),
		Sender:    model.SenderAgent,
		Text:      text,
		Timestamp: now,
	}
	s.store.Append(m)
	s.roster.Touch(m)

	req := api.SendRequest{
		ClientID:  m.ClientID,
		AgentID:   m.AgentID,
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: now,
	}
	gen := s.gen

	go func() {
		confirmed, err := s.backend.SendMessage(ctx, req)
		s.post(ctx, func(context.Context) {
			s.applySent(gen, conv.Key, m, confirmed, err)
		})
	}()
	return nil
}

func (s *Session) senderAgentID(conv Conversation) string {
	if conv.Key.AgentID != "" {
		return conv.Key.AgentID
	}
	return s.identity.UserID
}

// applySent folds the backend's copy into the store. A failed send
// leaves the provisional message visible.
func (s *Session) applySent(gen uint64, key model.ConversationKey, provisional, confirmed model.Message, err error) {
	if err != nil {
		s.metrics.SendFailure()
		s.logger.Error("failed to send message",
			slog.String("client_id", key.ClientID),
			slog.String("message_id", provisional.ID),
			slog.String("error", err.Error()))
		s.toast("Failed to send message")
		return
	}

	if s.active == nil || gen != s.gen || key != s.active.Key {
		return
	}

	if confirmed.Text == "" {
		confirmed.Text = provisional.Text
	}
	if confirmed.Timestamp.IsZero() {
		confirmed.Timestamp = provisional.Timestamp
	}
	if confirmed.ID == "" {
		confirmed.ID = NewConfirmedID(confirmed.Timestamp)
	}
	if confirmed.ClientID == "" {
		confirmed.ClientID = provisional.ClientID
	}
	if confirmed.Sender == "" {
		confirmed.Sender = provisional.Sender
	}

	res := s.store.Append(confirmed)
	s.metrics.Append(res.String())
}
