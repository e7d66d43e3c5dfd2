package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

// readLoop decodes frames until the connection fails.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, p, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}

		// The backend only speaks text frames.
		if msgType != websocket.MessageText {
			continue
		}

		ev, ok := decodeFrame(p)
		if !ok {
			s.logger.Warn("dropping malformed frame", slog.Int("bytes", len(p)))
			continue
		}
		s.deliver(ctx, ev)
	}
}

// decodeFrame accepts {"event": name, "data": payload} objects and
// [name, payload] arrays.
func decodeFrame(p []byte) (Event, bool) {
	if !gjson.ValidBytes(p) {
		return Event{}, false
	}

	var name, data gjson.Result
	doc := gjson.ParseBytes(p)
	switch {
	case doc.IsObject():
		name, data = doc.Get("event"), doc.Get("data")
	case doc.IsArray():
		name, data = doc.Get("0"), doc.Get("1")
	default:
		return Event{}, false
	}

	if name.Type != gjson.String || name.Str == "" {
		return Event{}, false
	}

	ev := Event{Name: name.Str}
	if data.Exists() {
		ev.Data = []byte(data.Raw)
	}
	return ev, true
}

func encodeFrame(event string, data any) ([]byte, error) {
	frame := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data}

	p, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("internal/websocket: failed to encode %s: %w", event, err)
	}
	return p, nil
}

// keepalive pings on an interval and drops the connection when the
// server stops answering, which hands control back to Run's backoff.
func (s *Socket) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.opts.PingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("ping failed", slog.String("error", err.Error()))
			conn.Close(websocket.StatusGoingAway, "ping timeout") //nolint:errcheck
			return
		}
	}
}
