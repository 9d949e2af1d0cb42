package store

import (
	"sort"
	"time"
)

// MessageType tags the content shape of a message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeFile     MessageType = "file"
	MessageTypeCode     MessageType = "code"
	MessageTypeSystem   MessageType = "system"
	MessageTypeInviteV2 MessageType = "inviteV2"
)

// Sender is the author snapshot denormalized into the message at send time.
type Sender struct {
	ID       string
	Username string
	Avatar   string
	Tag      string
}

// Message is one entry in a linkman's conversation. Before the hub has
// acknowledged a send, ID holds a client-assigned placeholder and Loading
// is true.
type Message struct {
	ID         string
	Type       MessageType
	Content    string
	From       Sender
	CreateTime time.Time
	Loading    bool
	Deleted    bool
	Failed     bool
}

// MessagePatch is a partial update applied by UpdateMessage. Nil fields are
// left untouched. A non-empty ID different from the target's means rekey.
type MessagePatch struct {
	ID         string
	Content    *string
	Loading    *bool
	Failed     *bool
	CreateTime *time.Time
}

// messageList holds a linkman's messages ordered by creation time, ties
// broken by insertion order. Lookup is by message id.
type messageList struct {
	order []string
	byID  map[string]*Message
}

func newMessageList() *messageList {
	return &messageList{byID: make(map[string]*Message)}
}

// Len returns the number of held messages.
func (l *messageList) Len() int { return len(l.order) }

// Get returns the message for id, or nil.
func (l *messageList) Get(id string) *Message {
	return l.byID[id]
}

// Has reports whether id is held.
func (l *messageList) Has(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// Append inserts a new message at its creation-time position. Appending an
// already-held id is a no-op returning false.
func (l *messageList) Append(m Message) bool {
	if l.Has(m.ID) {
		return false
	}
	stored := m
	l.byID[m.ID] = &stored
	l.insert(m.ID)
	return true
}

// insert places an already-held id at its creation-time position.
func (l *messageList) insert(id string) {
	stored := l.byID[id]

	// Common case: creation times arrive monotonically, append at the end.
	if n := len(l.order); n == 0 || !stored.CreateTime.Before(l.byID[l.order[n-1]].CreateTime) {
		l.order = append(l.order, id)
		return
	}
	idx := sort.Search(len(l.order), func(i int) bool {
		return l.byID[l.order[i]].CreateTime.After(stored.CreateTime)
	})
	l.order = append(l.order, "")
	copy(l.order[idx+1:], l.order[idx:])
	l.order[idx] = id
}

// reposition moves an entry back to its creation-time position after its
// time changed.
func (l *messageList) reposition(id string) {
	if !l.Has(id) {
		return
	}
	for i, held := range l.order {
		if held == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.insert(id)
}

// MergeOlder union-merges history entries. Already-held ids win on
// collision; only unseen entries are inserted. Returns how many were added.
func (l *messageList) MergeOlder(msgs []Message) int {
	added := 0
	for _, m := range msgs {
		if l.Append(m) {
			added++
		}
	}
	return added
}

// Rekey moves the entry held under oldID to newID, keeping its position.
// Returns false when oldID is unknown or newID is already held.
func (l *messageList) Rekey(oldID, newID string) bool {
	m, ok := l.byID[oldID]
	if !ok || l.Has(newID) {
		return false
	}
	m.ID = newID
	delete(l.byID, oldID)
	l.byID[newID] = m
	for i, id := range l.order {
		if id == oldID {
			l.order[i] = newID
			break
		}
	}
	return true
}

// Delete removes the entry for id. Returns false when unknown.
func (l *messageList) Delete(id string) bool {
	if !l.Has(id) {
		return false
	}
	delete(l.byID, id)
	for i, held := range l.order {
		if held == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// TrimOldest drops entries from the front until at most keep remain.
func (l *messageList) TrimOldest(keep int) {
	if keep < 0 || len(l.order) <= keep {
		return
	}
	drop := l.order[:len(l.order)-keep]
	for _, id := range drop {
		delete(l.byID, id)
	}
	l.order = append([]string(nil), l.order[len(l.order)-keep:]...)
}

// All returns the held messages in order. The returned slice is a copy;
// entries are value snapshots safe for renderers.
func (l *messageList) All() []Message {
	out := make([]Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// Newest returns the most recent message, or nil when empty.
func (l *messageList) Newest() *Message {
	if len(l.order) == 0 {
		return nil
	}
	return l.byID[l.order[len(l.order)-1]]
}
