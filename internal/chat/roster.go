package chat

import (
	"cmp"
	"slices"
	"time"

	"github.com/johndosdos/deskchat/internal/model"
)

const (
	previewLimit    = 30
	unassignedLabel = "Unassigned"
)

// Roster is the list of clients visible to the signed-in user.
type Roster struct {
	clients []model.Client
	index   map[string]int
}

func NewRoster() *Roster {
	return &Roster{index: make(map[string]int)}
}

// Replace swaps in a freshly fetched list.
func (r *Roster) Replace(clients []model.Client) {
	r.clients = slices.Clone(clients)
	r.index = make(map[string]int, len(clients))
	for i, c := range r.clients {
		r.index[c.ID] = i
	}
}

func (r *Roster) Get(id string) (model.Client, bool) {
	i, ok := r.index[id]
	if !ok {
		return model.Client{}, false
	}
	return r.clients[i], true
}

func (r *Roster) IDs() []string {
	ids := make([]string, len(r.clients))
	for i, c := range r.clients {
		ids[i] = c.ID
	}
	return ids
}

func (r *Roster) Len() int {
	return len(r.clients)
}

// Touch records m as the latest message of its client.
func (r *Roster) Touch(m model.Message) {
	i, ok := r.index[m.ClientID]
	if !ok {
		return
	}
	text := model.DisplayText(m, false)
	if m.IsVoiceMessage && text == "" {
		text = "Voice message"
	}
	r.clients[i].LastMessage = Preview(text)
	if m.Timestamp.After(r.clients[i].LastMessageTime) {
		r.clients[i].LastMessageTime = m.Timestamp
	}
}

// MostRecent is the client with the latest activity.
func (r *Roster) MostRecent() (model.Client, bool) {
	sorted := r.Sorted()
	if len(sorted) == 0 {
		return model.Client{}, false
	}
	return sorted[0], true
}

// Sorted returns the clients by most recent activity first.
func (r *Roster) Sorted() []model.Client {
	sorted := slices.Clone(r.clients)
	slices.SortStableFunc(sorted, func(a, b model.Client) int {
		return b.LastMessageTime.Compare(a.LastMessageTime)
	})
	return sorted
}

// AgentGroup is a roster section for the admin overview.
type AgentGroup struct {
	AgentID string
	Name    string
	Clients []model.Client
}

// ByAgent groups clients under their assigned agent, unassigned last.
func (r *Roster) ByAgent() []AgentGroup {
	var groups []AgentGroup
	pos := make(map[string]int)
	for _, c := range r.Sorted() {
		id := c.AgentID()
		i, ok := pos[id]
		if !ok {
			name := unassignedLabel
			if c.AssignedAgent != nil {
				name = cmp.Or(c.AssignedAgent.Username, c.AssignedAgent.ID)
			}
			i = len(groups)
			pos[id] = i
			groups = append(groups, AgentGroup{AgentID: id, Name: name})
		}
		groups[i].Clients = append(groups[i].Clients, c)
	}

	slices.SortStableFunc(groups, func(a, b AgentGroup) int {
		if (a.AgentID == "") != (b.AgentID == "") {
			if a.AgentID == "" {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return groups
}

// Preview shortens text for the roster line.
func Preview(text string) string {
	if text == "" {
		return "New message"
	}
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}

// ActivityLabel is the short timestamp shown next to a roster entry.
func ActivityLabel(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if DayLabel(t, now, "") == "Today" {
		return t.Format("3:04 PM")
	}
	return t.Format("Jan 2")
}
