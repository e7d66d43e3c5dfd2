package view

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/chat"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/johndosdos/deskchat/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

var at = time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)

func TestChatInputComponent(t *testing.T) {
	html := render(t, ChatInput())

	assert.Contains(t, html, "<form")
	assert.Contains(t, html, `hx-post="/send"`)
	assert.Contains(t, html, `name="content"`)
	assert.Contains(t, html, `type="submit"`)
	assert.Contains(t, html, "Send")
}

func TestSenderBubbleComponent(t *testing.T) {
	m := model.Message{ID: "temp-1-abc", Sender: model.SenderAgent, Text: "Hola <b>amigo</b>", TranslatedText: "Hello", SourceLanguage: "es", Timestamp: at}

	html := render(t, SenderBubble(m, ""))
	assert.Contains(t, html, `class="bubble sender pending"`)
	assert.Contains(t, html, "Hola amigo")
	assert.NotContains(t, html, "<b>")
	assert.NotContains(t, html, "Hello")
	assert.Contains(t, html, "3:04 PM")
}

func TestReceiverBubbleComponent(t *testing.T) {
	m := model.Message{ID: "m1", Sender: model.SenderClient, Text: "hola", TranslatedText: "hello", SourceLanguage: "es", Timestamp: at}

	t.Run("translated", func(t *testing.T) {
		html := render(t, ReceiverBubble(m, false, ""))
		assert.Contains(t, html, "hello")
		assert.Contains(t, html, `hx-post="/original/m1"`)
		assert.Contains(t, html, "Show original")
		assert.Contains(t, html, "ES")
	})

	t.Run("original", func(t *testing.T) {
		html := render(t, ReceiverBubble(m, true, ""))
		assert.Contains(t, html, "hola")
		assert.Contains(t, html, "Show translation")
	})

	t.Run("untranslated has no toggle", func(t *testing.T) {
		plain := model.Message{ID: "m2", Sender: model.SenderClient, Text: "hi", Timestamp: at}
		html := render(t, ReceiverBubble(plain, false, ""))
		assert.NotContains(t, html, "toggle-original")
	})

	t.Run("script is stripped", func(t *testing.T) {
		evil := model.Message{ID: "m3", Sender: model.SenderClient, Text: `<script>alert(1)</script>hi`, Timestamp: at}
		html := render(t, ReceiverBubble(evil, false, ""))
		assert.NotContains(t, html, "<script>")
	})
}

func TestVoiceBubble(t *testing.T) {
	m := model.Message{
		ID:             "v1",
		Sender:         model.SenderClient,
		IsVoiceMessage: true,
		Text:           `<audio controls onplay="steal()"><source src="/uploads/v1.webm" type="audio/webm"></audio><div class="transcript">my order is late</div>`,
		Timestamp:      at,
	}

	html := render(t, ReceiverBubble(m, false, "https://api.example.com"))
	assert.Contains(t, html, "<audio")
	assert.Contains(t, html, `src="https://api.example.com/uploads/v1.webm"`)
	assert.Contains(t, html, "my order is late")
	assert.NotContains(t, html, "onplay")
	assert.NotContains(t, html, "toggle-original")
}

func TestTranslatedVoiceBubble(t *testing.T) {
	m := model.Message{
		ID:             "v2",
		Sender:         model.SenderClient,
		IsVoiceMessage: true,
		Text:           `<audio controls src="/uploads/v2.webm"></audio><div class="transcript">hola amigo</div>`,
		TranslatedText: "hello friend",
		SourceLanguage: "es",
		Timestamp:      at,
	}

	tests := []struct {
		name         string
		showOriginal bool
		want         string
		notWant      string
		label        string
	}{
		{"translation", false, "hello friend", "hola amigo", "Show original"},
		{"original", true, "hola amigo", "hello friend", "Show translation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := render(t, ReceiverBubble(m, tt.showOriginal, "https://api.example.com"))
			assert.Contains(t, html, "<audio")
			assert.Contains(t, html, tt.want)
			assert.NotContains(t, html, tt.notWant)
			assert.Contains(t, html, `class="toggle-original"`)
			assert.Contains(t, html, tt.label)
		})
	}
}

func TestThreadComponent(t *testing.T) {
	t.Run("no selection", func(t *testing.T) {
		html := render(t, Thread(&chat.View{}, ""))
		assert.Contains(t, html, "Select a client")
	})

	t.Run("loading", func(t *testing.T) {
		v := &chat.View{Active: &chat.ActiveView{Client: model.Client{ID: "c1", FirstName: "Ana"}, Loading: true}}
		html := render(t, Thread(v, ""))
		assert.Contains(t, html, "spinner")
		assert.Contains(t, html, "Ana")
	})

	t.Run("groups", func(t *testing.T) {
		v := &chat.View{Active: &chat.ActiveView{
			Client: model.Client{ID: "c1", FirstName: "Ana"},
			Groups: []chat.DateGroup{
				{Label: "Yesterday", Messages: []model.Message{{ID: "m1", Sender: model.SenderClient, Text: "hi", Timestamp: at}}},
				{Label: "Today", Messages: []model.Message{{ID: "m2", Sender: model.SenderAgent, Text: "hello", Timestamp: at}}},
			},
		}}
		html := render(t, Thread(v, ""))
		assert.Contains(t, html, `sse-swap="thread"`)
		assert.Contains(t, html, "Yesterday")
		assert.Contains(t, html, "Today")
		assert.Contains(t, html, `id="msg-m1"`)
		assert.Contains(t, html, `class="bubble sender"`)
	})
}

func TestSidebarComponent(t *testing.T) {
	v := &chat.View{
		Identity:  auth.Identity{UserID: "a1", Role: auth.RoleAdmin},
		Connected: false,
		Roster: []chat.RosterSection{{
			Title: "Unassigned",
			Entries: []chat.RosterEntry{
				{Client: model.Client{ID: "c1", FirstName: "Ana", LastMessage: "need help"}, Unread: 2, New: true},
				{Client: model.Client{ID: "c2", FirstName: "<Bo>"}, Selected: true},
			},
		}},
	}

	html := render(t, Sidebar(v))
	assert.Contains(t, html, "Reconnecting")
	assert.Contains(t, html, "Unassigned")
	assert.Contains(t, html, `hx-post="/select/c1"`)
	assert.Contains(t, html, `<span class="badge">2</span>`)
	assert.Contains(t, html, `class="client new"`)
	assert.Contains(t, html, `class="client selected"`)
	assert.Contains(t, html, "need help")
	assert.Contains(t, html, "New message")
	assert.Contains(t, html, "&lt;Bo&gt;")
}

func TestPageComponent(t *testing.T) {
	html := render(t, Page(&chat.View{Connected: true}, ""))
	assert.Contains(t, html, `sse-connect="/events"`)
	assert.Contains(t, html, "Connected")
	assert.Contains(t, html, `name="content"`)
}

func TestToastsComponent(t *testing.T) {
	html := render(t, Toasts([]notify.Toast{{Message: "Failed to send message"}}))
	assert.Contains(t, html, "Failed to send message")
	assert.Contains(t, html, `class="toast"`)
}
