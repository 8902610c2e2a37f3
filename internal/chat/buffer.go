package chat

// Entry is one conversation turn as held in memory: role plus content,
// no identity. Two entries are the same message when both fields match.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Buffer is the ordered in-memory conversation for one browser session's
// active chat. It is the transient side of reconciliation: entries drain
// into the store and stored history hydrates back in. Serializes to JSON
// for the redis-backed session state.
type Buffer struct {
	Entries []Entry `json:"entries"`
}

func (b *Buffer) Append(role, content string) {
	b.Entries = append(b.Entries, Entry{Role: role, Content: content})
}

// Contains reports duplicate-by-value membership: position is ignored.
func (b *Buffer) Contains(role, content string) bool {
	for _, e := range b.Entries {
		if e.Role == role && e.Content == content {
			return true
		}
	}
	return false
}

func (b *Buffer) Reset() {
	b.Entries = nil
}

func (b *Buffer) Len() int {
	return len(b.Entries)
}

// Snapshot returns a copy so callers can iterate while the buffer mutates.
func (b *Buffer) Snapshot() []Entry {
	return append([]Entry(nil), b.Entries...)
}
