package notify

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSound struct {
	primeErr error
	playErr  error
	plays    int
}

func (s *countingSound) Prime() error { return s.primeErr }
func (s *countingSound) Play() error {
	s.plays++
	return s.playErr
}

func TestAudioGate(t *testing.T) {
	t.Run("locked until unlocked", func(t *testing.T) {
		s := &countingSound{}
		g := NewAudioGate(s, nil)

		assert.False(t, g.Play())
		assert.Equal(t, 0, s.plays)

		g.Unlock()
		assert.True(t, g.Unlocked())
		assert.True(t, g.Play())
		assert.Equal(t, 1, s.plays)
	})

	t.Run("prime failure keeps it locked", func(t *testing.T) {
		s := &countingSound{primeErr: errors.New("autoplay blocked")}
		g := NewAudioGate(s, nil)

		g.Unlock()
		assert.False(t, g.Unlocked())
		assert.False(t, g.Play())
	})

	t.Run("playback errors are swallowed", func(t *testing.T) {
		s := &countingSound{playErr: errors.New("device busy")}
		g := NewAudioGate(s, nil)
		g.Unlock()

		assert.True(t, g.Play())
		assert.Equal(t, 1, s.plays)
	})

	t.Run("nil gate", func(t *testing.T) {
		var g *AudioGate
		g.Unlock()
		assert.False(t, g.Play())
	})
}

func TestBell(t *testing.T) {
	var buf bytes.Buffer
	b := NewBell(&buf)
	assert.NoError(t, b.Prime())
	assert.NoError(t, b.Play())
	assert.Equal(t, "\a", buf.String())
}

func TestDesktop(t *testing.T) {
	tests := []struct {
		name       string
		permission Permission
		wantShown  bool
	}{
		{"granted", PermissionGranted, true},
		{"denied", PermissionDenied, false},
		{"default", PermissionDefault, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			d := NewDesktop(tt.permission, &buf, nil)

			assert.Equal(t, tt.wantShown, d.Notify("New Client Message", "Ana: hola"))
			if tt.wantShown {
				assert.Equal(t, "[New Client Message] Ana: hola\n", buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestDesktopGrant(t *testing.T) {
	d := NewDesktop(PermissionDefault, nil, nil)
	assert.Equal(t, PermissionDenied, d.Grant(false))
	assert.Equal(t, PermissionDenied, d.Grant(true))

	d = NewDesktop(ParsePermission("GRANTED"), nil, nil)
	assert.Equal(t, PermissionGranted, d.Permission())
	assert.Equal(t, PermissionDefault, ParsePermission("ask"))
}

func TestToaster(t *testing.T) {
	ts := NewToaster(2, nil)
	ts.Error("one")
	ts.Error("two")
	ts.Error("three")

	recent := ts.Recent(time.Minute)
	if assert.Len(t, recent, 2) {
		assert.Equal(t, "two", recent[0].Message)
		assert.Equal(t, "three", recent[1].Message)
	}
	assert.Empty(t, ts.Recent(-time.Minute))
}
