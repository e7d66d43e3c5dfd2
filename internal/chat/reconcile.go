package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johndosdos/deskchat/internal/model"
)

// collisionWindow is how far apart two same-sender messages may be and
// still count as one message. The backend rewrites the client timestamp
// on store, so an echo never matches exactly.
const collisionWindow = 500 * time.Millisecond

// collides reports whether a and b are the same logical message: same id,
// or same sender with timestamps in the same rounded second or within
// collisionWindow of each other. Two distinct messages sent by the same
// side in the same second fold into one; the backend gives no better key.
func collides(a, b model.Message) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.Sender != b.Sender {
		return false
	}
	if a.Timestamp.Round(time.Second).Equal(b.Timestamp.Round(time.Second)) {
		return true
	}
	d := a.Timestamp.Sub(b.Timestamp)
	return d <= collisionWindow && d >= -collisionWindow
}

// findCollision returns the index of the first message m collides with,
// preferring an exact id match, or -1.
func findCollision(msgs []model.Message, m model.Message) int {
	for i := range msgs {
		if msgs[i].ID == m.ID {
			return i
		}
	}
	for i := range msgs {
		if collides(msgs[i], m) {
			return i
		}
	}
	return -1
}

// NewProvisionalID mints "temp-<unix ms>-<9 random chars>".
func NewProvisionalID(t time.Time) string {
	return fmt.Sprintf("%s%d-%s", model.ProvisionalPrefix, t.UnixMilli(), randomSuffix())
}

// NewConfirmedID mints an id for an acknowledged message the backend
// returned without one.
func NewConfirmedID(t time.Time) string {
	return fmt.Sprintf("%s%d-%s", model.ConfirmedPrefix, t.UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
