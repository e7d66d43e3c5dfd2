package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/johndosdos/deskchat/internal/chat"
	"github.com/johndosdos/deskchat/internal/notify"
	"github.com/johndosdos/deskchat/internal/view"
)

func ServeSelect(c Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := chi.URLParam(r, "clientID")

		err := c.Select(r.Context(), clientID)
		switch {
		case errors.Is(err, chat.ErrUnknownClient):
			writeError(w, r, http.StatusNotFound, "Unknown client")
		case err != nil:
			slog.ErrorContext(r.Context(), "failed to select client", "client_id", clientID, "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "Console is not running")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// ServeSend answers with a fresh input so the field clears as soon as the
// message is queued.
func ServeSend(c Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid form")
			return
		}

		err := c.Send(r.Context(), r.PostFormValue("content"))
		switch {
		case err == nil, errors.Is(err, chat.ErrEmptyMessage):
			render(w, r, http.StatusOK, view.ChatInput())
		case errors.Is(err, chat.ErrNoConversation):
			writeError(w, r, http.StatusConflict, "Select a client first")
		case errors.Is(err, chat.ErrRateLimited):
			slog.WarnContext(r.Context(), "send rate limit exceeded")
			writeError(w, r, http.StatusTooManyRequests, "Too many messages. Try again later.")
		default:
			slog.ErrorContext(r.Context(), "failed to send", "error", err)
			writeError(w, r, http.StatusServiceUnavailable, "Console is not running")
		}
	}
}

func ServeToggleOriginal(c Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.ToggleOriginal(r.Context(), chi.URLParam(r, "messageID")); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "Console is not running")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if r.Header.Get("HX-Request") == "true" {
		render(w, r, status, view.ErrorMsg(msg))
		return
	}
	http.Error(w, msg, status)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.ErrorContext(r.Context(), "failed to render component", "error", err)
	}
}

// ServeNotificationPermission answers the desktop notification prompt.
func ServeNotificationPermission(d *notify.Desktop) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid form")
			return
		}
		perm := d.Grant(r.PostFormValue("allow") == "true")
		slog.InfoContext(r.Context(), "desktop notifications", "permission", perm)
		w.WriteHeader(http.StatusNoContent)
	}
}
