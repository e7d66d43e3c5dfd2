package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Toast is a short-lived error banner.
type Toast struct {
	Message string
	At      time.Time
}

// Toaster keeps the most recent toasts for the console to display.
type Toaster struct {
	mu     sync.Mutex
	toasts []Toast
	limit  int
	logger *slog.Logger
}

func NewToaster(limit int, logger *slog.Logger) *Toaster {
	if limit <= 0 {
		limit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Toaster{limit: limit, logger: logger}
}

func (t *Toaster) Error(msg string) {
	t.logger.Warn("toast", slog.String("message", msg))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.toasts = append(t.toasts, Toast{Message: msg, At: time.Now()})
	if len(t.toasts) > t.limit {
		t.toasts = t.toasts[len(t.toasts)-t.limit:]
	}
}

// Recent returns toasts newer than maxAge, oldest first.
func (t *Toaster) Recent(maxAge time.Duration) []Toast {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var out []Toast
	for _, ts := range t.toasts {
		if ts.At.After(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}
