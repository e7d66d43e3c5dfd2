package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Realtime event names.
const (
	EventConnect               = "connect"
	EventDisconnect            = "disconnect"
	EventNewMessage            = "newMessage"
	EventClientUpdate          = "clientUpdate"
	EventNewClientNotification = "newClientNotification"
	EventMessageNotification   = "messageNotification"
	EventJoinRoom              = "joinRoom"
	EventLeaveRoom             = "leaveRoom"
	EventLeaveAllRooms         = "leaveAllRooms"
)

var ErrMalformedPayload = errors.New("internal/model: malformed payload")

// PayloadKind tells whether an inbound message carries everything the
// store needs or must be completed locally.
type PayloadKind int

const (
	PayloadFull PayloadKind = iota
	PayloadPartial
)

func (k PayloadKind) String() string {
	if k == PayloadPartial {
		return "partial"
	}
	return "full"
}

// MessagePayload is a message as it arrived on the wire.
type MessagePayload struct {
	Kind    PayloadKind
	Message Message
}

// DecodeMessagePayload parses a newMessage payload. A payload missing its
// id or timestamp is reported as partial.
func DecodeMessagePayload(data []byte) (MessagePayload, error) {
	var m Message
	if err := m.UnmarshalJSON(data); err != nil {
		return MessagePayload{}, err
	}

	kind := PayloadFull
	if m.ID == "" || m.Timestamp.IsZero() {
		kind = PayloadPartial
	}
	return MessagePayload{Kind: kind, Message: m}, nil
}

// Normalize completes a partial payload. A missing timestamp becomes the
// arrival time. A missing id is left empty for the store to mint.
func (p MessagePayload) Normalize(arrival time.Time) Message {
	m := p.Message
	if m.Timestamp.IsZero() {
		m.Timestamp = arrival
	}
	return m
}

// UnmarshalJSON accepts the loose shapes the backend produces: ids under
// "_id" or "id", timestamps as RFC 3339 strings or epoch milliseconds.
func (m *Message) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrMalformedPayload
	}
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return fmt.Errorf("%w: message is not an object", ErrMalformedPayload)
	}

	id := r.Get("_id")
	if !id.Exists() {
		id = r.Get("id")
	}

	ts, err := parseTimestamp(r.Get("timestamp"))
	if err != nil {
		return err
	}

	*m = Message{
		ID:             id.String(),
		ClientID:       r.Get("clientId").String(),
		AgentID:        r.Get("agentId").String(),
		Sender:         Sender(r.Get("sender").String()),
		Text:           r.Get("text").String(),
		TranslatedText: r.Get("translatedText").String(),
		SourceLanguage: r.Get("sourceLanguage").String(),
		Timestamp:      ts,
		IsVoiceMessage: r.Get("isVoiceMessage").Bool(),
	}
	return nil
}

func parseTimestamp(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedPayload, s, err)
		}
		return t, nil
	case gjson.Number:
		return time.UnixMilli(v.Int()), nil
	default:
		return time.Time{}, nil
	}
}

// ClientNotification announces a client message aimed at the recipient's
// personal room.
type ClientNotification struct {
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

// MessageNotification is a lightweight hint that a conversation changed.
type MessageNotification struct {
	ClientID string `json:"clientId"`
}
