package store

import "time"

// LinkmanType tags the conversation endpoint variant.
type LinkmanType string

const (
	// LinkmanFriend is an established direct-message contact.
	LinkmanFriend LinkmanType = "friend"
	// LinkmanTemporary is an ephemeral DM opened by an inbound message
	// from a stranger.
	LinkmanTemporary LinkmanType = "temporary"
	// LinkmanGroup is a many-to-many conversation.
	LinkmanGroup LinkmanType = "group"
	// LinkmanChannel is a broadcast surface: many subscribers, the creator
	// is the single publisher.
	LinkmanChannel LinkmanType = "channel"
	// LinkmanCommunity is a container referencing groups and channels; it
	// is not itself a message surface.
	LinkmanCommunity LinkmanType = "community"
)

// Linkman is one conversation endpoint as held by the client.
type Linkman struct {
	ID         string
	Type       LinkmanType
	Name       string
	Avatar     string
	CreateTime time.Time
	Unread     int

	// Creator is set for groups and channels; for channels it is the only
	// identity allowed to publish.
	Creator string

	// Members lists linked group/channel ids for communities, and the
	// last-known online roster for groups.
	Members []string

	// TypingUsers maps userId to display name. Nil when nobody is typing;
	// never an empty map, so renderers can check len without allocation.
	TypingUsers map[string]string

	messages *messageList
}

func newLinkman(id string, typ LinkmanType, name string) *Linkman {
	return &Linkman{
		ID:       id,
		Type:     typ,
		Name:     name,
		messages: newMessageList(),
	}
}

// AcceptsMessages reports whether this linkman variant is a message
// surface. Communities are containers only.
func (l *Linkman) AcceptsMessages() bool {
	return l.Type != LinkmanCommunity
}

// CanPost reports whether userID may publish to this linkman. Channels are
// creator-only; every other surface is open to its participants.
func (l *Linkman) CanPost(userID string) bool {
	switch l.Type {
	case LinkmanChannel:
		return userID == l.Creator
	case LinkmanCommunity:
		return false
	default:
		return true
	}
}

// Messages returns the held messages in display order.
func (l *Linkman) Messages() []Message {
	return l.messages.All()
}

// MessageCount returns how many messages are held locally.
func (l *Linkman) MessageCount() int {
	return l.messages.Len()
}

// Message returns the held message for id, or nil.
func (l *Linkman) Message(id string) *Message {
	return l.messages.Get(id)
}

// NewestMessage returns the most recent held message, or nil.
func (l *Linkman) NewestMessage() *Message {
	return l.messages.Newest()
}
