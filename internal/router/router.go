// Package router demultiplexes hub-pushed events into conversation store
// transitions. Handlers commit state first; notifications, receipts and
// cache writes run strictly after the commit and never block it.
package router

import (
	"context"
	"encoding/json"
	"html"
	"time"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/cache"
	"github.com/asima2006/fiora-sync/internal/notify"
	"github.com/asima2006/fiora-sync/internal/observability"
	"github.com/asima2006/fiora-sync/internal/presence"
	"github.com/asima2006/fiora-sync/internal/proto"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
)

const effectTimeout = 5 * time.Second

// Router routes inbound protocol events to handlers.
type Router struct {
	session  *session.Session
	receipts *presence.Receipts
	emitter  session.Emitter
	notifier notify.Notifier
	toggles  notify.Toggles
	history  cache.History
	backfill func(linkmanID string)
	log      *zerolog.Logger
}

// Config carries the router's collaborators.
type Config struct {
	Session  *session.Session
	Receipts *presence.Receipts
	Emitter  session.Emitter
	Notifier notify.Notifier
	Toggles  notify.Toggles
	History  cache.History
	// Backfill asynchronously fetches recent history for a linkman that
	// was just created from an inbound stranger message.
	Backfill func(linkmanID string)
}

// New builds a router. Nil optional collaborators degrade to no-ops.
func New(cfg Config, logger *zerolog.Logger) *Router {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.History == nil {
		cfg.History = cache.Nop{}
	}
	if cfg.Backfill == nil {
		cfg.Backfill = func(string) {}
	}
	return &Router{
		session:  cfg.Session,
		receipts: cfg.Receipts,
		emitter:  cfg.Emitter,
		notifier: cfg.Notifier,
		toggles:  cfg.Toggles,
		history:  cfg.History,
		backfill: cfg.Backfill,
		log:      logger,
	}
}

// Handle dispatches one hub-pushed event. Unknown events are logged and
// dropped; malformed payloads never corrupt the store.
func (r *Router) Handle(event string, data json.RawMessage) {
	switch event {
	case proto.PushMessage:
		var push proto.MessagePush
		if !r.decode(event, data, &push) {
			return
		}
		r.handleMessage(push)
	case proto.PushTyping:
		var push proto.TypingPush
		if !r.decode(event, data, &push) {
			return
		}
		r.handleTyping(push)
	case proto.PushReadReceipt:
		var push proto.ReceiptPush
		if !r.decode(event, data, &push) {
			return
		}
		r.receipts.Apply(push.MessageID, push.UserID, presence.StatusRead)
	case proto.PushDeliveryReceipt:
		var push proto.ReceiptPush
		if !r.decode(event, data, &push) {
			return
		}
		if !r.receipts.Apply(push.MessageID, push.UserID, presence.StatusDelivered) {
			r.log.Debug().Str("message_id", push.MessageID).Msg("stale delivery receipt ignored")
		}
	case proto.PushChangeGroupName:
		var push proto.ChangeGroupNamePush
		if !r.decode(event, data, &push) {
			return
		}
		r.handleRename(push)
	case proto.PushDeleteGroup:
		var push proto.DeleteGroupPush
		if !r.decode(event, data, &push) {
			return
		}
		r.handleDeleteGroup(push)
	case proto.PushDeleteMessage:
		var push proto.DeleteMessagePush
		if !r.decode(event, data, &push) {
			return
		}
		r.handleDeleteMessage(push)
	case proto.PushChangeTag:
		var push proto.ChangeTagPush
		if !r.decode(event, data, &push) {
			return
		}
		r.session.Apply(func(st *store.State) {
			st.SetSenderTag(push.UserID, push.Tag)
		})
	default:
		r.log.Debug().Str("event", event).Msg("unhandled push event")
	}
}

func (r *Router) decode(event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		r.log.Warn().Err(err).Str("event", event).Msg("malformed push payload")
		return false
	}
	return true
}

// handleMessage applies the message-received algorithm: idempotent content
// formatting, temporary-linkman creation for strangers, unread accounting,
// then post-commit effects.
func (r *Router) handleMessage(push proto.MessagePush) {
	msg := session.MessageFromWire(push.Message)
	msg.Content = formatContent(msg.Type, msg.Content)

	self := ""
	if user, ok := r.session.CurrentUser(); ok {
		self = user.ID
	}

	var (
		applied bool
		created bool
		focused bool
	)
	r.session.Apply(func(st *store.State) {
		linkman := st.Linkman(push.LinkmanID)
		if linkman == nil {
			if self != "" && msg.From.ID == self {
				// A self-authored message for an unknown linkman is a
				// duplication race from another device; drop it.
				return
			}
			linkman = st.AddLinkman(push.LinkmanID, store.LinkmanTemporary, msg.From.Username)
			if linkman == nil {
				return
			}
			linkman.Avatar = msg.From.Avatar
			created = true
		}
		applied = st.AddLinkmanMessage(push.LinkmanID, msg)
		focused = st.FocusID == push.LinkmanID
	})

	if !applied {
		r.log.Debug().
			Str("linkman_id", push.LinkmanID).
			Str("message_id", msg.ID).
			Msg("inbound message dropped")
		return
	}

	observability.MessagesReceived.WithLabelValues(r.linkmanType(push.LinkmanID)).Inc()
	if created {
		go r.backfill(push.LinkmanID)
	}
	r.postCommit(push.LinkmanID, msg, focused)
}

// postCommit runs side effects for a committed inbound message: receipt
// acknowledgement, local cache write and gated notifications. All are
// best-effort and never retried.
func (r *Router) postCommit(linkmanID string, msg store.Message, focused bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()

		if err := r.history.SaveMessages(ctx, linkmanID, []store.Message{msg}); err != nil {
			r.log.Debug().Err(err).Msg("cache write skipped")
		}

		if r.emitter != nil {
			event := proto.EventSendDeliveryReceipt
			if focused && r.session.Foreground() {
				event = proto.EventSendReadReceipt
			}
			if _, err := r.emitter.Emit(ctx, event, proto.ReceiptRequest{
				MessageID: msg.ID,
				LinkmanID: linkmanID,
			}); err != nil {
				r.log.Debug().Err(err).Msg("receipt skipped")
			}
		}

		if r.session.Foreground() {
			return
		}
		if r.toggles.Notification {
			r.notifier.Notify(msg.From.Username, msg.Content)
		}
		if r.toggles.Sound {
			r.notifier.PlaySound()
		}
		if r.toggles.Voice && msg.Type == store.MessageTypeText {
			r.notifier.Speak(msg.Content)
		}
	}()
}

func (r *Router) handleTyping(push proto.TypingPush) {
	ok := false
	r.session.Apply(func(st *store.State) {
		ok = st.SetTypingStatus(push.LinkmanID, push.UserID, push.Username, push.IsTyping)
	})
	if !ok {
		r.log.Debug().Str("linkman_id", push.LinkmanID).Msg("typing for unknown linkman ignored")
	}
}

func (r *Router) handleRename(push proto.ChangeGroupNamePush) {
	ok := false
	r.session.Apply(func(st *store.State) {
		ok = st.RenameLinkman(push.GroupID, push.Name)
	})
	if !ok {
		r.log.Debug().Str("group_id", push.GroupID).Msg("rename for unknown linkman ignored")
	}
}

func (r *Router) handleDeleteGroup(push proto.DeleteGroupPush) {
	ok := false
	r.session.Apply(func(st *store.State) {
		ok = st.RemoveLinkman(push.GroupID)
	})
	if !ok {
		r.log.Debug().Str("group_id", push.GroupID).Msg("delete for unknown linkman ignored")
	}
}

func (r *Router) handleDeleteMessage(push proto.DeleteMessagePush) {
	ok := false
	r.session.Apply(func(st *store.State) {
		ok = st.DeleteMessage(push.LinkmanID, push.MessageID, push.Hard)
	})
	if !ok {
		r.log.Debug().
			Str("linkman_id", push.LinkmanID).
			Str("message_id", push.MessageID).
			Msg("delete for unknown message ignored")
		return
	}
	if push.Hard {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
			defer cancel()
			if err := r.history.DeleteMessage(ctx, push.LinkmanID, push.MessageID); err != nil {
				r.log.Debug().Err(err).Msg("cache delete skipped")
			}
		}()
	}
}

func (r *Router) linkmanType(linkmanID string) string {
	typ := "unknown"
	r.session.View(func(st *store.State) {
		if l := st.Linkman(linkmanID); l != nil {
			typ = string(l.Type)
		}
	})
	return typ
}

// formatContent recomputes a message's derived display form. Unescaping
// before escaping makes the pass idempotent: applying it twice yields the
// same string.
func formatContent(typ store.MessageType, content string) string {
	switch typ {
	case store.MessageTypeText, store.MessageTypeSystem:
		return html.EscapeString(html.UnescapeString(content))
	default:
		return content
	}
}
