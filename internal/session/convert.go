package session

import (
	"time"

	"github.com/asima2006/fiora-sync/internal/proto"
	"github.com/asima2006/fiora-sync/internal/store"
)

// MessageFromWire converts a wire message into the store form.
func MessageFromWire(m proto.Message) store.Message {
	return store.Message{
		ID:         m.ID,
		Type:       store.MessageType(m.Type),
		Content:    m.Content,
		From:       store.Sender(m.From),
		CreateTime: time.UnixMilli(m.CreateTime),
		Deleted:    m.Deleted,
	}
}

// MessagesFromWire converts a wire message slice.
func MessagesFromWire(msgs []proto.Message) []store.Message {
	out := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageFromWire(m))
	}
	return out
}

// RosterFromWire flattens a session payload's friends, groups and channels
// into bootstrap roster entries.
func RosterFromWire(u proto.User) []store.RosterEntry {
	out := make([]store.RosterEntry, 0, len(u.Friends)+len(u.Groups)+len(u.Channels))
	appendBriefs := func(briefs []proto.LinkmanBrief, fallback store.LinkmanType) {
		for _, b := range briefs {
			typ := store.LinkmanType(b.Type)
			if b.Type == "" {
				typ = fallback
			}
			out = append(out, store.RosterEntry{
				ID:         b.ID,
				Type:       typ,
				Name:       b.Name,
				Avatar:     b.Avatar,
				Creator:    b.Creator,
				CreateTime: time.UnixMilli(b.CreateTime),
			})
		}
	}
	appendBriefs(u.Friends, store.LinkmanFriend)
	appendBriefs(u.Groups, store.LinkmanGroup)
	appendBriefs(u.Channels, store.LinkmanChannel)
	return out
}
