package chat

import (
	"time"

	"github.com/johndosdos/deskchat/internal/model"
)

// DateGroup is a run of messages sharing a calendar day.
type DateGroup struct {
	Label    string
	Day      time.Time
	Messages []model.Message
}

type groupMemo struct {
	valid   bool
	version uint64
	today   time.Time
	groups  []DateGroup
}

// Groups partitions the store by local calendar day, oldest first. The
// result is cached until the contents or the current day change.
func (s *Store) Groups() []DateGroup {
	today := startOfDay(s.now(), s.loc)
	if s.memo.valid && s.memo.version == s.version && s.memo.today.Equal(today) {
		return s.memo.groups
	}

	var groups []DateGroup
	for _, m := range s.messages {
		day := startOfDay(m.Timestamp, s.loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{
			Label:    DayLabel(day, today, s.layout),
			Day:      day,
			Messages: []model.Message{m},
		})
	}

	s.memo = groupMemo{valid: true, version: s.version, today: today, groups: groups}
	return groups
}

// DayLabel names day relative to today: "Today", "Yesterday", or the
// date in layout. Both arguments are compared as calendar days in day's
// location.
func DayLabel(day, today time.Time, layout string) string {
	day = startOfDay(day, day.Location())
	today = startOfDay(today, day.Location())

	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format(layout)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
