package chat

import (
	"log/slog"
	"slices"
	"time"

	"github.com/johndosdos/deskchat/internal/model"
)

// AppendResult says what Append did with a message.
type AppendResult int

const (
	Appended AppendResult = iota
	// Superseded means a confirmed message replaced its provisional twin.
	Superseded
	Duplicate
	Rejected
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Superseded:
		return "superseded"
	case Duplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// Store holds the active conversation's messages in timestamp order.
// It is owned by the session loop and is not safe for concurrent use.
type Store struct {
	messages []model.Message
	version  uint64

	layout string
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger

	memo groupMemo
}

func NewStore(layout string, loc *time.Location, logger *slog.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		layout: layout,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// ReplaceAll discards the current contents and loads msgs, folding
// duplicates the same way Append does.
func (s *Store) ReplaceAll(msgs []model.Message) {
	s.messages = make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		s.insert(m)
	}
	s.sort()
	s.version++
}

// Append adds one message. A message without text is rejected. A
// message without a timestamp is stamped with the current time, and one
// without an id gets a provisional id.
func (s *Store) Append(m model.Message) AppendResult {
	res := s.insert(m)
	if res == Appended || res == Superseded {
		s.sort()
		s.version++
	}
	return res
}

func (s *Store) insert(m model.Message) AppendResult {
	if m.Text == "" {
		s.logger.Warn("rejecting message without text",
			slog.String("message_id", m.ID),
			slog.String("client_id", m.ClientID))
		return Rejected
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}
	if m.ID == "" {
		m.ID = NewProvisionalID(m.Timestamp)
	}

	i := findCollision(s.messages, m)
	if i < 0 {
		s.messages = append(s.messages, m)
		return Appended
	}

	if s.messages[i].Provisional() && !m.Provisional() {
		s.messages[i] = m
		return Superseded
	}
	return Duplicate
}

func (s *Store) sort() {
	slices.SortStableFunc(s.messages, func(a, b model.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// Messages returns a copy of the stored messages.
func (s *Store) Messages() []model.Message {
	return slices.Clone(s.messages)
}

func (s *Store) Len() int {
	return len(s.messages)
}

// Version changes whenever the contents do.
func (s *Store) Version() uint64 {
	return s.version
}

// Find returns the message with the given id.
func (s *Store) Find(id string) (model.Message, bool) {
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}
