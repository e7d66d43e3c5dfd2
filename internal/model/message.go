// Package model defines data structure.
package model

import (
	"strings"
	"time"
)

// Sender identifies which side of a conversation authored a message.
type Sender string

const (
	SenderClient Sender = "client"
	SenderAgent  Sender = "agent"
)

// ProvisionalPrefix marks ids minted locally before the backend has
// acknowledged a message.
const ProvisionalPrefix = "temp-"

// ConfirmedPrefix marks ids minted locally for a message the backend
// acknowledged without echoing an id.
const ConfirmedPrefix = "server-"

// Message holds information about a single chat message.
type Message struct {
	ID             string    `json:"_id"`
	ClientID       string    `json:"clientId"`
	AgentID        string    `json:"agentId,omitempty"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	TranslatedText string    `json:"translatedText,omitempty"`
	SourceLanguage string    `json:"sourceLanguage,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	IsVoiceMessage bool      `json:"isVoiceMessage,omitempty"`
}

// Provisional reports whether the message is an optimistic local entry
// awaiting server confirmation.
func (m Message) Provisional() bool {
	return strings.HasPrefix(m.ID, ProvisionalPrefix)
}

// FromClient reports whether the end customer wrote the message.
func (m Message) FromClient() bool {
	return m.Sender == SenderClient
}

// HasTranslation is true when the backend attached a translation that
// differs from the original text.
func (m Message) HasTranslation() bool {
	return m.TranslatedText != "" && m.SourceLanguage != "" && m.TranslatedText != m.Original()
}

// Original is the text as written. For a voice message that is the
// transcript, empty when there is none.
func (m Message) Original() string {
	if m.IsVoiceMessage {
		return ParseVoice(m.Text, "").Transcript
	}
	return m.Text
}

// ConversationKey identifies a conversation. AgentID is empty when the
// conversation is viewed from the admin overview.
type ConversationKey struct {
	ClientID string
	AgentID  string
}

func (k ConversationKey) IsZero() bool {
	return k.ClientID == ""
}

func (k ConversationKey) String() string {
	if k.AgentID == "" {
		return k.ClientID
	}
	return k.ClientID + "/" + k.AgentID
}
