package chat

import (
	"maps"
	"time"

	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/model"
)

// View is an immutable snapshot of the session for rendering.
type View struct {
	Identity      auth.Identity
	Connected     bool
	RosterLoading bool
	RosterError   string
	Roster        []RosterSection
	Active        *ActiveView
	UnreadTotal   int
	Now           time.Time
}

type RosterSection struct {
	Title   string
	Entries []RosterEntry
}

type RosterEntry struct {
	Client   model.Client
	Unread   int
	New      bool
	Selected bool
	Activity string
}

type ActiveView struct {
	Client       model.Client
	Key          model.ConversationKey
	Loading      bool
	Error        string
	Groups       []DateGroup
	ShowOriginal map[string]bool
}

// publish snapshots the session and hands it to subscribers.
func (s *Session) publish() {
	v := s.snapshot()
	s.view.Store(v)
	s.metrics.SetUnread(v.UnreadTotal)
	s.broker.Publish(v)
}

func (s *Session) snapshot() *View {
	now := s.now()
	v := &View{
		Identity:      s.identity,
		Connected:     s.connected,
		RosterLoading: s.rosterLoading,
		UnreadTotal:   s.unread.Total(),
		Now:           now,
	}
	if s.rosterErr != nil {
		v.RosterError = s.rosterErr.Error()
	}

	activeID := ""
	if s.active != nil {
		activeID = s.active.Key.ClientID
		av := &ActiveView{
			Client:       s.active.Client,
			Key:          s.active.Key,
			Loading:      s.loading,
			Groups:       s.store.Groups(),
			ShowOriginal: maps.Clone(s.showOriginal),
		}
		if s.historyErr != nil {
			av.Error = s.historyErr.Error()
		}
		v.Active = av
	}

	entry := func(c model.Client) RosterEntry {
		return RosterEntry{
			Client:   c,
			Unread:   s.unread.Count(c.ID),
			New:      s.unread.IsNew(c.ID),
			Selected: c.ID == activeID,
			Activity: ActivityLabel(c.LastMessageTime, now),
		}
	}

	if s.identity.Overview() {
		for _, g := range s.roster.ByAgent() {
			sec := RosterSection{Title: g.Name}
			for _, c := range g.Clients {
				sec.Entries = append(sec.Entries, entry(c))
			}
			v.Roster = append(v.Roster, sec)
		}
	} else {
		sec := RosterSection{Title: "My Clients"}
		for _, c := range s.roster.Sorted() {
			sec.Entries = append(sec.Entries, entry(c))
		}
		v.Roster = append(v.Roster, sec)
	}
	return v
}
