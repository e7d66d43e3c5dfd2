package chat

import (
	"context"
	"log/slog"
)

// onConnect restores everything a dropped connection may have cost:
// room membership, then the active history and the roster, both fetched
// silently so the screen does not flash.
func (s *Session) onConnect(ctx context.Context) {
	s.connected = true
	s.metrics.SetConnected(true)
	if s.everConnected {
		s.metrics.Reconnect()
	}

	s.rooms.Reconnected(ctx)

	if s.everConnected {
		s.logger.Info("reconnected, resyncing", slog.Int("rooms", len(s.rooms.Rooms())))
		s.requestHistory(ctx, true)
		s.requestRoster(ctx, true)
	}
	s.everConnected = true
}

func (s *Session) onDisconnect() {
	s.connected = false
	s.metrics.SetConnected(false)
	s.rooms.Disconnected()
	s.logger.Warn("realtime connection lost")
}
