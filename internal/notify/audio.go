// Package notify raises the console's audible, desktop and toast alerts.
package notify

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sound plays the incoming-message cue. Prime is a silent play used to
// confirm playback is allowed.
type Sound interface {
	Prime() error
	Play() error
}

// AudioGate suppresses playback until the user has interacted with the
// console once. Failures are logged and otherwise ignored.
type AudioGate struct {
	sound    Sound
	logger   *slog.Logger
	unlocked atomic.Bool
}

func NewAudioGate(sound Sound, logger *slog.Logger) *AudioGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioGate{sound: sound, logger: logger}
}

// Unlock primes playback. It is safe to call on every interaction.
func (g *AudioGate) Unlock() {
	if g == nil || g.unlocked.Load() || g.sound == nil {
		return
	}
	if err := g.sound.Prime(); err != nil {
		g.logger.Debug("audio still locked", slog.String("error", err.Error()))
		return
	}
	if g.unlocked.CompareAndSwap(false, true) {
		g.logger.Info("audio unlocked")
	}
}

func (g *AudioGate) Unlocked() bool {
	return g != nil && g.unlocked.Load()
}

// Play sounds the cue if unlocked and reports whether it tried.
func (g *AudioGate) Play() bool {
	if !g.Unlocked() {
		return false
	}
	if err := g.sound.Play(); err != nil {
		g.logger.Debug("sound playback failed", slog.String("error", err.Error()))
	}
	return true
}

// Bell rings the terminal bell.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

func (b *Bell) Prime() error {
	return nil
}

func (b *Bell) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\a")
	return err
}

// Mute satisfies Sound without making noise.
type Mute struct{}

func (Mute) Prime() error { return nil }
func (Mute) Play() error  { return nil }
