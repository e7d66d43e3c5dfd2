package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/johndosdos/deskchat/internal"
	"github.com/johndosdos/deskchat/internal/metrics"
	"github.com/johndosdos/deskchat/internal/notify"
)

// Deps is everything the console routes need.
type Deps struct {
	Console  Console
	Feed     Feed
	Unlocker internal.Unlocker
	Toaster  *notify.Toaster
	Desktop  *notify.Desktop
	Metrics  *metrics.Metrics
	BaseURL  string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return internal.Interaction(next, d.Unlocker)
	})

	r.Get("/", ServeRoot(d.Console, d.BaseURL))
	r.Get("/events", StreamSSE(d.Feed, d.Toaster, d.BaseURL))

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(15 * time.Second))
		r.Post("/select/{clientID}", ServeSelect(d.Console))
		r.Post("/send", ServeSend(d.Console))
		r.Post("/original/{messageID}", ServeToggleOriginal(d.Console))
		if d.Desktop != nil {
			r.Post("/notifications", ServeNotificationPermission(d.Desktop))
		}
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	return r
}
