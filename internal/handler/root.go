// Package handler serves the local console: the page, its live updates
// and the actions it posts back.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/johndosdos/deskchat/internal/chat"
	"github.com/johndosdos/deskchat/internal/view"
)

// Console is the session surface the handlers drive.
type Console interface {
	View() *chat.View
	Select(ctx context.Context, clientID string) error
	Send(ctx context.Context, text string) error
	ToggleOriginal(ctx context.Context, messageID string) error
}

func ServeRoot(c Console, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := view.Page(c.View(), baseURL).Render(r.Context(), w); err != nil {
			slog.ErrorContext(r.Context(), "failed to render page", "error", err)
		}
	}
}
