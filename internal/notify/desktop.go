package notify

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

func ParsePermission(s string) Permission {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// Desktop shows OS-level notifications. Nothing is shown unless
// permission was granted.
type Desktop struct {
	mu         sync.Mutex
	permission Permission
	w          io.Writer
	logger     *slog.Logger
}

func NewDesktop(permission Permission, w io.Writer, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{permission: permission, w: w, logger: logger}
}

func (d *Desktop) Permission() Permission {
	if d == nil {
		return PermissionDenied
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission
}

// Grant answers a pending permission prompt. A denial is final.
func (d *Desktop) Grant(ok bool) Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.permission != PermissionDefault {
		return d.permission
	}
	if ok {
		d.permission = PermissionGranted
	} else {
		d.permission = PermissionDenied
	}
	return d.permission
}

// Notify reports whether a notification was shown.
func (d *Desktop) Notify(title, body string) bool {
	if d.Permission() != PermissionGranted || d.w == nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := fmt.Fprintf(d.w, "[%s] %s\n", title, body); err != nil {
		d.logger.Debug("desktop notification failed", slog.String("error", err.Error()))
		return false
	}
	return true
}
