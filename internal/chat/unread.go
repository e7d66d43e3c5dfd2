package chat

// UnreadTracker counts messages that arrived for conversations other than
// the focused one. Keys are client ids: each roster entry maps to exactly
// one conversation for the signed-in user.
//
// Redelivered events may over-count; the count is a hint, not a ledger.
type UnreadTracker struct {
	counts map[string]int
	fresh  map[string]struct{}
}

func NewUnreadTracker() *UnreadTracker {
	return &UnreadTracker{
		counts: make(map[string]int),
		fresh:  make(map[string]struct{}),
	}
}

// Increment bumps the count for key and marks it newly arrived.
func (u *UnreadTracker) Increment(key string) {
	u.counts[key]++
	u.fresh[key] = struct{}{}
}

// MarkNew flags key without touching its count.
func (u *UnreadTracker) MarkNew(key string) {
	u.fresh[key] = struct{}{}
}

// Reset clears key when its conversation gains focus.
func (u *UnreadTracker) Reset(key string) {
	delete(u.counts, key)
	delete(u.fresh, key)
}

func (u *UnreadTracker) Count(key string) int {
	return u.counts[key]
}

func (u *UnreadTracker) IsNew(key string) bool {
	_, ok := u.fresh[key]
	return ok
}

func (u *UnreadTracker) Total() int {
	n := 0
	for _, c := range u.counts {
		n += c
	}
	return n
}
