package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingUnlocker struct{ n int }

func (c *countingUnlocker) UnlockAudio() { c.n++ }

func TestInteraction(t *testing.T) {
	tests := []struct {
		name   string
		method string
		want   int
	}{
		{"get is not a gesture", http.MethodGet, 0},
		{"head is not a gesture", http.MethodHead, 0},
		{"post unlocks", http.MethodPost, 1},
		{"delete unlocks", http.MethodDelete, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &countingUnlocker{}
			served := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				served = true
				w.WriteHeader(http.StatusNoContent)
			})

			rec := httptest.NewRecorder()
			Interaction(next, u).ServeHTTP(rec, httptest.NewRequest(tt.method, "/send", nil))

			assert.True(t, served)
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.want, u.n)
		})
	}
}

func TestInteractionWithoutUnlocker(t *testing.T) {
	rec := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	Interaction(next, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
