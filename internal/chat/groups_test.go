package chat

import (
	"testing"
	"time"

	"github.com/johndosdos/deskchat/internal/config"
	"github.com/johndosdos/deskchat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayLabel(t *testing.T) {
	today := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		day    time.Time
		layout string
		want   string
	}{
		{"today early", time.Date(2024, 3, 10, 0, 0, 1, 0, time.UTC), config.LayoutLong, "Today"},
		{"today late", time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC), config.LayoutLong, "Today"},
		{"yesterday", time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC), config.LayoutLong, "Yesterday"},
		{"older long", time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC), config.LayoutLong, "March 8, 2024"},
		{"older numeric", time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC), config.LayoutNumeric, "3/8/2024"},
		{"across year", time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC), config.LayoutLong, "December 31, 2023"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DayLabel(tt.day, today, tt.layout))
		})
	}
}

func TestDayLabelUsesCalendarDays(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	today := time.Date(2024, 3, 10, 1, 0, 0, 0, loc)
	// 23 hours earlier but still the previous calendar day.
	lateYesterday := time.Date(2024, 3, 9, 2, 0, 0, 0, loc)
	assert.Equal(t, "Yesterday", DayLabel(lateYesterday, today, config.LayoutLong))
	assert.Equal(t, "March 8, 2024", DayLabel(time.Date(2024, 3, 8, 23, 0, 0, 0, loc), today, config.LayoutLong))
}

func TestGroups(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	s := newTestStore(now)

	s.ReplaceAll([]model.Message{
		msg("a", model.SenderClient, time.Date(2024, 3, 8, 10, 0, 0, 0, time.UTC), "a"),
		msg("b", model.SenderAgent, time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), "b"),
		msg("c", model.SenderClient, time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC), "c"),
		msg("d", model.SenderAgent, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), "d"),
	})

	groups := s.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, "March 8, 2024", groups[0].Label)
	assert.Equal(t, "Yesterday", groups[1].Label)
	assert.Equal(t, []string{"b", "c"}, ids(groups[1].Messages))
	assert.Equal(t, "Today", groups[2].Label)

	total := 0
	for _, g := range groups {
		total += len(g.Messages)
	}
	assert.Equal(t, s.Len(), total)
}

func TestGroupsMemo(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	s := newTestStore(now)
	s.Append(msg("a", model.SenderClient, now.Add(-time.Hour), "a"))

	first := s.Groups()
	second := s.Groups()
	assert.Same(t, &first[0], &second[0], "unchanged store reuses the cached groups")

	s.Append(msg("b", model.SenderClient, now.Add(-30*time.Minute), "b"))
	assert.Len(t, s.Groups()[0].Messages, 2)

	// Crossing midnight relabels without any store change.
	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	assert.Equal(t, "Yesterday", s.Groups()[0].Label)
}
