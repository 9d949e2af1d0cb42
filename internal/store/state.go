package store

import "time"

// maxFocusedHeld bounds the in-memory message window trimmed on focus.
// This is a display-cache trim, not a deletion of server truth.
const maxFocusedHeld = 50

// User is the authenticated identity of the session, absent for guests
// until the hub provisions one.
type User struct {
	ID       string
	Username string
	Avatar   string
	Tag      string
	IsAdmin  bool
}

// State is the normalized client view: the single source of truth the rest
// of the engine renders from. All mutation goes through the transition
// methods below; they are total over well-formed input and perform no side
// effects. Unknown references return false so callers can log and move on.
type State struct {
	User      *User
	Connected bool
	FocusID   string

	linkmans map[string]*Linkman
	roster   []string
}

// NewState returns the anonymous, guest-capable default.
func NewState() *State {
	return &State{linkmans: make(map[string]*Linkman)}
}

// Reset tears the state down to the default. Used on logout.
func (s *State) Reset() {
	s.User = nil
	s.FocusID = ""
	s.linkmans = make(map[string]*Linkman)
	s.roster = nil
}

// SetConnected flips the connectivity flag. Linkman state is retained
// across reconnects.
func (s *State) SetConnected(connected bool) {
	s.Connected = connected
}

// Linkman returns the linkman for id, or nil.
func (s *State) Linkman(id string) *Linkman {
	return s.linkmans[id]
}

// Linkmans returns the roster in insertion order.
func (s *State) Linkmans() []*Linkman {
	out := make([]*Linkman, 0, len(s.roster))
	for _, id := range s.roster {
		out = append(out, s.linkmans[id])
	}
	return out
}

// Focused returns the currently focused linkman, or nil.
func (s *State) Focused() *Linkman {
	if s.FocusID == "" {
		return nil
	}
	return s.linkmans[s.FocusID]
}

// AddLinkman inserts a new linkman. Exactly one linkman exists per id:
// adding a known id is a no-op returning nil.
func (s *State) AddLinkman(id string, typ LinkmanType, name string) *Linkman {
	if _, ok := s.linkmans[id]; ok {
		return nil
	}
	l := newLinkman(id, typ, name)
	l.CreateTime = time.Now()
	s.linkmans[id] = l
	s.roster = append(s.roster, id)
	return l
}

// RemoveLinkman drops a linkman and its messages. Clears focus when it was
// the focused one.
func (s *State) RemoveLinkman(id string) bool {
	if _, ok := s.linkmans[id]; !ok {
		return false
	}
	delete(s.linkmans, id)
	for i, held := range s.roster {
		if held == id {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			break
		}
	}
	if s.FocusID == id {
		s.FocusID = ""
	}
	return true
}

// RenameLinkman updates the display name.
func (s *State) RenameLinkman(id, name string) bool {
	l, ok := s.linkmans[id]
	if !ok {
		return false
	}
	l.Name = name
	return true
}

// SetSenderTag rewrites the tag on every held message snapshot authored by
// userID. Snapshots are denormalized, so a tag change walks them.
func (s *State) SetSenderTag(userID, tag string) {
	for _, l := range s.linkmans {
		for _, id := range l.messages.order {
			if m := l.messages.byID[id]; m.From.ID == userID {
				m.From.Tag = tag
			}
		}
	}
}

// SetFocus moves focus to a known linkman, clears its unread counter, and
// trims its held messages to the most recent maxFocusedHeld. Unknown ids
// leave state untouched.
func (s *State) SetFocus(id string) bool {
	if id == "" {
		s.FocusID = ""
		return true
	}
	l, ok := s.linkmans[id]
	if !ok {
		return false
	}
	s.FocusID = id
	l.Unread = 0
	l.messages.TrimOldest(maxFocusedHeld)
	return true
}

// AddLinkmanMessage appends a message and bumps unread unless the linkman
// is focused or the message is self-authored. Duplicate message ids are
// no-ops.
func (s *State) AddLinkmanMessage(linkmanID string, m Message) bool {
	l, ok := s.linkmans[linkmanID]
	if !ok || !l.AcceptsMessages() {
		return false
	}
	if !l.messages.Append(m) {
		return false
	}
	selfAuthored := s.User != nil && m.From.ID == s.User.ID
	if s.FocusID != linkmanID && !selfAuthored {
		l.Unread++
	}
	return true
}

// AddLinkmanHistoryMessages union-merges fetched history. Held entries are
// never overwritten: arriving history is logically older and loses on key
// collision. Returns how many entries were new.
func (s *State) AddLinkmanHistoryMessages(linkmanID string, msgs []Message) int {
	l, ok := s.linkmans[linkmanID]
	if !ok {
		return 0
	}
	return l.messages.MergeOlder(msgs)
}

// DeleteMessage removes an entry when hard, otherwise replaces it in place
// with a tombstone. Content-bearing fields are cleared by the rendering
// layer, not here.
func (s *State) DeleteMessage(linkmanID, messageID string, hard bool) bool {
	l, ok := s.linkmans[linkmanID]
	if !ok {
		return false
	}
	if hard {
		return l.messages.Delete(messageID)
	}
	m := l.messages.Get(messageID)
	if m == nil {
		return false
	}
	m.Deleted = true
	return true
}

// UpdateMessage patches the entry held under messageID. A patch carrying a
// different id is a rekey: the placeholder entry is removed and the same
// logical message is inserted under the server-assigned id, atomically.
// When the server id is already held (the hub pushed the persisted message
// before the acknowledgement arrived) the pushed entry wins: the placeholder
// is dropped and the patch lands on the held entry, so the two namespaces
// never coexist.
func (s *State) UpdateMessage(linkmanID, messageID string, patch MessagePatch) bool {
	l, ok := s.linkmans[linkmanID]
	if !ok {
		return false
	}
	m := l.messages.Get(messageID)
	if m == nil {
		return false
	}
	if patch.ID != "" && patch.ID != messageID {
		if !l.messages.Rekey(messageID, patch.ID) {
			held := l.messages.Get(patch.ID)
			if held == nil {
				return false
			}
			l.messages.Delete(messageID)
			m = held
		}
	}
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Loading != nil {
		m.Loading = *patch.Loading
	}
	if patch.Failed != nil {
		m.Failed = *patch.Failed
	}
	if patch.CreateTime != nil && !m.CreateTime.Equal(*patch.CreateTime) {
		m.CreateTime = *patch.CreateTime
		l.messages.reposition(m.ID)
	}
	return true
}

// SetTypingStatus adds or removes a typing user for a linkman. An empty
// resulting set is stored as nil, not as an empty map.
func (s *State) SetTypingStatus(linkmanID, userID, username string, isTyping bool) bool {
	l, ok := s.linkmans[linkmanID]
	if !ok {
		return false
	}
	if isTyping {
		if l.TypingUsers == nil {
			l.TypingUsers = make(map[string]string)
		}
		l.TypingUsers[userID] = username
		return true
	}
	if l.TypingUsers == nil {
		return true
	}
	delete(l.TypingUsers, userID)
	if len(l.TypingUsers) == 0 {
		l.TypingUsers = nil
	}
	return true
}

// RosterEntry seeds one linkman during bootstrap.
type RosterEntry struct {
	ID         string
	Type       LinkmanType
	Name       string
	Avatar     string
	Creator    string
	CreateTime time.Time
}

// Populate replaces the linkman set from a bootstrap roster plus the
// batched last-messages response, as one atomic transition. Unread counts
// come from the hub; messages for linkmans already held are union-merged so
// a reconnect converges instead of duplicating.
func (s *State) Populate(user User, roster []RosterEntry, histories map[string]HistorySeed) {
	s.User = &user

	known := make(map[string]struct{}, len(roster))
	for _, entry := range roster {
		known[entry.ID] = struct{}{}
		l := s.linkmans[entry.ID]
		if l == nil {
			l = newLinkman(entry.ID, entry.Type, entry.Name)
			s.linkmans[entry.ID] = l
			s.roster = append(s.roster, entry.ID)
		}
		l.Type = entry.Type
		l.Name = entry.Name
		l.Avatar = entry.Avatar
		l.Creator = entry.Creator
		if !entry.CreateTime.IsZero() {
			l.CreateTime = entry.CreateTime
		}
	}

	// Drop linkmans the hub no longer reports, except temporaries which
	// exist only client-side.
	for id, l := range s.linkmans {
		if _, ok := known[id]; !ok && l.Type != LinkmanTemporary {
			s.RemoveLinkman(id)
		}
	}

	for id, seed := range histories {
		l, ok := s.linkmans[id]
		if !ok {
			continue
		}
		l.messages.MergeOlder(seed.Messages)
		if s.FocusID == id {
			l.Unread = 0
		} else {
			l.Unread = seed.Unread
		}
	}
}

// HistorySeed is one linkman's slice of the batched bootstrap response.
type HistorySeed struct {
	Messages []Message
	Unread   int
}
