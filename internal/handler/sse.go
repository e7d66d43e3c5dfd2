package handler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/johndosdos/deskchat/internal/chat"
	"github.com/johndosdos/deskchat/internal/notify"
	"github.com/johndosdos/deskchat/internal/view"
)

// Feed hands out a stream of session snapshots that ends with ctx.
type Feed interface {
	Subscribe(ctx context.Context) <-chan *chat.View
}

const (
	keepaliveInterval = 10 * time.Second
	toastMaxAge       = 10 * time.Second
)

// StreamSSE pushes re-rendered fragments for every snapshot: the roster,
// the thread and the toast area, each as its own named event.
func StreamSSE(feed Feed, toaster *notify.Toaster, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Accel-Buffering", "no")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			slog.Error("failed to flush event stream", "error", err)
			return
		}

		ctx := r.Context()
		views := feed.Subscribe(ctx)

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case v, ok := <-views:
				if !ok {
					return
				}
				if v == nil {
					continue
				}
				if err := writeView(ctx, w, v, toaster, baseURL); err != nil {
					slog.Error("failed to write view", "error", err)
					return
				}
				if err := rc.Flush(); err != nil {
					slog.Warn("could not flush buffer to writer", "error", err)
				}

			case <-ticker.C:
				fmt.Fprint(w, ": \n\n") //nolint:errcheck
				if err := rc.Flush(); err != nil {
					slog.Warn("could not flush buffer to writer", "error", err)
				}

			case <-ctx.Done():
				slog.Debug("event stream closed", "reason", ctx.Err())
				return
			}
		}
	}
}

func writeView(ctx context.Context, w http.ResponseWriter, v *chat.View, toaster *notify.Toaster, baseURL string) error {
	if err := writeEvent(ctx, w, "roster", view.Sidebar(v)); err != nil {
		return err
	}
	if err := writeEvent(ctx, w, "thread", view.Thread(v, baseURL)); err != nil {
		return err
	}
	return writeEvent(ctx, w, "toasts", view.Toasts(toaster.Recent(toastMaxAge)))
}

func writeEvent(ctx context.Context, w http.ResponseWriter, name string, c templ.Component) error {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	// One data line per rendered line; the client joins them with "\n".
	if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
		return err
	}
	for line := range bytes.Lines(buf.Bytes()) {
		line = bytes.TrimSuffix(bytes.TrimSuffix(line, []byte("\n")), []byte("\r"))
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
