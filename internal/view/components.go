// Package view renders the console's HTML with templ components.
package view

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/johndosdos/deskchat/internal/chat"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/johndosdos/deskchat/internal/notify"
)

// Layout for bubble timestamps.
const timeLayout = "3:04 PM"

// htmlWriter remembers the first write error so components can emit
// markup without checking each write.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (hw *htmlWriter) raw(s string) {
	if hw.err != nil {
		return
	}
	_, hw.err = io.WriteString(hw.w, s)
}

func (hw *htmlWriter) rawf(format string, args ...any) {
	if hw.err != nil {
		return
	}
	_, hw.err = fmt.Fprintf(hw.w, format, args...)
}

func (hw *htmlWriter) text(s string) {
	hw.raw(templ.EscapeString(s))
}

func (hw *htmlWriter) render(ctx context.Context, c templ.Component) {
	if hw.err != nil {
		return
	}
	hw.err = c.Render(ctx, hw.w)
}

func component(fn func(ctx context.Context, hw *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		hw := &htmlWriter{w: w}
		fn(ctx, hw)
		return hw.err
	})
}

func attr(s string) string {
	return templ.EscapeString(s)
}

// Page is the whole console.
func Page(v *chat.View, baseURL string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Support Console</title>`)
		hw.raw(`<script src="https://unpkg.com/htmx.org@2.0.4"></script>`)
		hw.raw(`<script src="https://unpkg.com/htmx-ext-sse@2.2.2/sse.js"></script>`)
		hw.raw(`<style>.bubble .text{white-space:pre-wrap}</style>`)
		hw.raw(`</head><body hx-ext="sse" sse-connect="/events">`)
		hw.raw(`<button class="enable-notifications" hx-post="/notifications" hx-vals='{"allow":"true"}' hx-swap="delete">Enable notifications</button>`)
		hw.raw(`<div class="console">`)
		hw.render(ctx, Sidebar(v))
		hw.render(ctx, ChatWindow(v, baseURL))
		hw.raw(`</div></body></html>`)
	})
}

// Sidebar lists the roster. It is swapped whole on every "roster" event.
func Sidebar(v *chat.View) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<aside id="sidebar" sse-swap="roster" hx-swap="outerHTML">`)
		hw.render(ctx, ConnectionStatus(v.Connected))

		switch {
		case v.RosterLoading:
			hw.raw(`<p class="loading">Loading clients...</p>`)
		case v.RosterError != "":
			hw.render(ctx, ErrorMsg("Could not load clients"))
		}

		for _, sec := range v.Roster {
			hw.raw(`<section class="roster-section"><h3>`)
			hw.text(sec.Title)
			hw.raw(`</h3><ul>`)
			if len(sec.Entries) == 0 {
				hw.raw(`<li class="empty">No clients</li>`)
			}
			for _, e := range sec.Entries {
				hw.render(ctx, RosterItem(e))
			}
			hw.raw(`</ul></section>`)
		}
		hw.raw(`</aside>`)
	})
}

func RosterItem(e chat.RosterEntry) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		class := "client"
		if e.Selected {
			class += " selected"
		}
		if e.New {
			class += " new"
		}
		hw.rawf(`<li class="%s" hx-post="/select/%s" hx-swap="none">`, class, attr(e.Client.ID))
		hw.raw(`<span class="name">`)
		hw.text(e.Client.Name())
		hw.raw(`</span>`)
		if e.Unread > 0 {
			hw.rawf(`<span class="badge">%d</span>`, e.Unread)
		}
		if e.Activity != "" {
			hw.raw(`<span class="activity">`)
			hw.text(e.Activity)
			hw.raw(`</span>`)
		}
		hw.raw(`<p class="preview">`)
		hw.text(chat.Preview(e.Client.LastMessage))
		hw.raw(`</p></li>`)
	})
}

func ConnectionStatus(up bool) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		if up {
			hw.raw(`<div class="status online">Connected</div>`)
			return
		}
		hw.raw(`<div class="status offline">Reconnecting...</div>`)
	})
}

// ChatWindow is the focused conversation with its input.
func ChatWindow(v *chat.View, baseURL string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<main class="chat-window">`)
		hw.render(ctx, Thread(v, baseURL))
		hw.render(ctx, ChatInput())
		hw.render(ctx, Toasts(nil))
		hw.raw(`</main>`)
	})
}

// Thread is swapped whole on every "thread" event.
func Thread(v *chat.View, baseURL string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<section id="thread" sse-swap="thread" hx-swap="outerHTML">`)
		defer hw.raw(`</section>`)

		a := v.Active
		if a == nil {
			hw.raw(`<p class="placeholder">Select a client to start chatting</p>`)
			return
		}

		hw.raw(`<header><h2>`)
		hw.text(a.Client.Name())
		hw.raw(`</h2>`)
		if a.Client.Language != "" {
			hw.raw(`<span class="language">`)
			hw.text(a.Client.Language)
			hw.raw(`</span>`)
		}
		hw.raw(`</header>`)

		if a.Loading {
			hw.raw(`<div class="spinner" aria-busy="true"></div>`)
			return
		}
		if a.Error != "" {
			hw.render(ctx, ErrorMsg("Could not load messages"))
		}
		if len(a.Groups) == 0 {
			hw.raw(`<p class="placeholder">No messages yet</p>`)
			return
		}

		for _, g := range a.Groups {
			hw.render(ctx, DateSeparator(g.Label))
			for _, m := range g.Messages {
				if m.Sender == model.SenderAgent {
					hw.render(ctx, SenderBubble(m, baseURL))
				} else {
					hw.render(ctx, ReceiverBubble(m, a.ShowOriginal[m.ID], baseURL))
				}
			}
		}
	})
}

func DateSeparator(label string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<div class="date-separator"><span>`)
		hw.text(label)
		hw.raw(`</span></div>`)
	})
}

// SenderBubble is a message written by staff. It always shows the
// original text.
func SenderBubble(m model.Message, baseURL string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		class := "bubble sender"
		if m.Provisional() {
			class += " pending"
		}
		hw.rawf(`<div class="%s" id="msg-%s">`, class, attr(m.ID))
		hw.render(ctx, messageBody(m, false, baseURL))
		hw.render(ctx, timestamp(m))
		hw.raw(`</div>`)
	})
}

// ReceiverBubble is a client message, translated unless showOriginal.
func ReceiverBubble(m model.Message, showOriginal bool, baseURL string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.rawf(`<div class="bubble receiver" id="msg-%s">`, attr(m.ID))
		hw.render(ctx, messageBody(m, showOriginal, baseURL))
		if m.HasTranslation() {
			label := "Show original"
			if showOriginal {
				label = "Show translation"
			}
			hw.rawf(`<button class="toggle-original" hx-post="/original/%s" hx-swap="none">`, attr(m.ID))
			hw.text(label)
			hw.raw(`</button>`)
			if !showOriginal {
				hw.raw(`<span class="source-language">`)
				hw.text(strings.ToUpper(m.SourceLanguage))
				hw.raw(`</span>`)
			}
		}
		hw.render(ctx, timestamp(m))
		hw.raw(`</div>`)
	})
}

func messageBody(m model.Message, showOriginal bool, baseURL string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		text := model.DisplayText(m, showOriginal)
		if m.IsVoiceMessage {
			v := model.ParseVoice(m.Text, baseURL)
			hw.raw(`<div class="voice">`)
			hw.raw(voicePolicy.Sanitize(v.HTML))
			hw.raw(`</div>`)
			if text == "" {
				return
			}
		}
		hw.raw(`<p class="text">`)
		hw.raw(textPolicy.Sanitize(text))
		hw.raw(`</p>`)
	})
}

func timestamp(m model.Message) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.rawf(`<time datetime="%s">`, attr(m.Timestamp.Format("2006-01-02T15:04:05Z07:00")))
		hw.text(m.Timestamp.Format(timeLayout))
		hw.raw(`</time>`)
	})
}

// ChatInput posts the message and is replaced by a fresh, empty copy.
func ChatInput() templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<form id="chat-input" hx-post="/send" hx-swap="outerHTML" hx-disabled-elt="find button">`)
		hw.raw(`<input type="text" name="content" autocomplete="off" placeholder="Type a message..." autofocus>`)
		hw.raw(`<button type="submit">Send</button>`)
		hw.raw(`</form>`)
	})
}

func ErrorMsg(msg string) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<div class="error" role="alert">`)
		hw.text(msg)
		hw.raw(`</div>`)
	})
}

// Toasts lists recent error toasts.
func Toasts(toasts []notify.Toast) templ.Component {
	return component(func(ctx context.Context, hw *htmlWriter) {
		hw.raw(`<div id="toasts" sse-swap="toasts">`)
		for i, t := range toasts {
			hw.rawf(`<div class="toast" data-index="%s">`, strconv.Itoa(i))
			hw.text(t.Message)
			hw.raw(`</div>`)
		}
		hw.raw(`</div>`)
	})
}
