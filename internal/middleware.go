package internal

import (
	"log/slog"
	"net/http"
)

// Unlocker is told about the first user gesture so audio may start.
type Unlocker interface {
	UnlockAudio()
}

// Interaction treats every non-GET request as a user gesture. Reads and
// the event stream never count.
func Interaction(next http.Handler, u Unlocker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
			slog.Debug("user interaction", "method", r.Method, "path", r.URL.Path)
			u.UnlockAudio()
		}
		next.ServeHTTP(w, r)
	}
}
