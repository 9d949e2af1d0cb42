// Package outbound implements the send pipeline: optimistic local echo,
// transmit, and reconciliation of the hub's authoritative response.
//
// Per-message state machine: Composing -> Optimistic(loading) ->
// Persisted | Failed. Both terminal; there is no retry-from-Failed, the
// user re-invokes send.
package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/cache"
	"github.com/asima2006/fiora-sync/internal/channel"
	"github.com/asima2006/fiora-sync/internal/notify"
	"github.com/asima2006/fiora-sync/internal/observability"
	"github.com/asima2006/fiora-sync/internal/proto"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
)

var (
	// ErrNoIdentity is returned before the session has a provisioned user.
	ErrNoIdentity = errors.New("no session identity")
	// ErrUnknownLinkman is returned for a send to a linkman not in the store.
	ErrUnknownLinkman = errors.New("unknown linkman")
	// ErrCannotPost is returned when the linkman variant rejects this
	// sender, e.g. a channel where only the creator publishes.
	ErrCannotPost = errors.New("cannot post to this linkman")
)

// Uploader pushes a media blob to the external object store and returns
// its durable URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data io.Reader) (string, error)
}

// Pipeline turns send intents into optimistic messages and reconciles them
// against hub acknowledgements.
type Pipeline struct {
	session  *session.Session
	emitter  session.Emitter
	uploader Uploader
	notifier notify.Notifier
	history  cache.History
	onSent   func(linkmanID string)
	log      *zerolog.Logger

	now func() time.Time
}

// Config carries the pipeline's collaborators. Uploader may be nil when
// media sends are not used; OnSent (typing-stop hook) and History may be nil.
type Config struct {
	Session  *session.Session
	Emitter  session.Emitter
	Uploader Uploader
	Notifier notify.Notifier
	History  cache.History
	OnSent   func(linkmanID string)
}

// New builds a pipeline.
func New(cfg Config, logger *zerolog.Logger) *Pipeline {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.History == nil {
		cfg.History = cache.Nop{}
	}
	if cfg.OnSent == nil {
		cfg.OnSent = func(string) {}
	}
	return &Pipeline{
		session:  cfg.Session,
		emitter:  cfg.Emitter,
		uploader: cfg.Uploader,
		notifier: cfg.Notifier,
		history:  cfg.History,
		onSent:   cfg.OnSent,
		log:      logger,
		now:      time.Now,
	}
}

// Send transmits one message. The sender sees it instantly as an
// optimistic entry; on acknowledgement the placeholder is rekeyed to the
// server id, on failure it is rolled back. Returns the final message id.
func (p *Pipeline) Send(ctx context.Context, linkmanID string, typ store.MessageType, content string) (string, error) {
	typ, content = recognizeInvite(typ, content)

	placeholderID, err := p.insertOptimistic(linkmanID, typ, content)
	if err != nil {
		return "", err
	}
	return p.transmit(ctx, linkmanID, placeholderID, typ, content, false)
}

// SendMedia runs the two-phase media variant: the optimistic message shows
// the local blob reference immediately, the upload happens asynchronously,
// and the transmit follows with the durable URL substituted in. Returns
// the placeholder id.
func (p *Pipeline) SendMedia(ctx context.Context, linkmanID string, typ store.MessageType, localRef string, data io.Reader) (string, error) {
	if p.uploader == nil {
		return "", fmt.Errorf("no uploader configured")
	}
	placeholderID, err := p.insertOptimistic(linkmanID, typ, localRef)
	if err != nil {
		return "", err
	}
	go p.completeMedia(ctx, linkmanID, placeholderID, typ, localRef, data)
	return placeholderID, nil
}

// insertOptimistic places the loading placeholder into the store before
// any network round-trip.
func (p *Pipeline) insertOptimistic(linkmanID string, typ store.MessageType, content string) (string, error) {
	user, ok := p.session.CurrentUser()
	if !ok {
		return "", ErrNoIdentity
	}

	// Placeholder ids embed an underscore, which no hub-assigned id
	// contains, so the two namespaces cannot collide.
	placeholderID := linkmanID + "_" + strconv.FormatInt(p.now().UnixNano(), 10)

	insertErr := ErrUnknownLinkman
	p.session.Apply(func(st *store.State) {
		l := st.Linkman(linkmanID)
		if l == nil {
			return
		}
		if !l.CanPost(user.ID) {
			insertErr = ErrCannotPost
			return
		}
		st.AddLinkmanMessage(linkmanID, store.Message{
			ID:      placeholderID,
			Type:    typ,
			Content: content,
			From: store.Sender{
				ID:       user.ID,
				Username: user.Username,
				Avatar:   user.Avatar,
				Tag:      user.Tag,
			},
			CreateTime: p.now(),
			Loading:    true,
		})
		insertErr = nil
	})
	if insertErr != nil {
		return "", insertErr
	}
	return placeholderID, nil
}

// transmit performs the network step and reconciles the outcome. keepOnFail
// marks the message failed in place instead of rolling it back; used after
// a media upload already succeeded so the authored content survives.
func (p *Pipeline) transmit(ctx context.Context, linkmanID, placeholderID string, typ store.MessageType, content string, keepOnFail bool) (string, error) {
	start := p.now()
	raw, err := p.emitter.Emit(ctx, proto.EventSendMessage, proto.SendMessageRequest{
		To:      linkmanID,
		Type:    string(typ),
		Content: content,
	})
	observability.SendDuration.Observe(p.now().Sub(start).Seconds())
	if err != nil {
		p.fail(linkmanID, placeholderID, keepOnFail, err)
		return "", err
	}

	var persisted proto.Message
	if err := json.Unmarshal(raw, &persisted); err != nil || persisted.ID == "" {
		err = fmt.Errorf("decode sendMessage ack: %w", err)
		p.fail(linkmanID, placeholderID, keepOnFail, err)
		return "", err
	}

	loading := false
	serverTime := time.UnixMilli(persisted.CreateTime)
	p.session.Apply(func(st *store.State) {
		st.UpdateMessage(linkmanID, placeholderID, store.MessagePatch{
			ID:         persisted.ID,
			Content:    &persisted.Content,
			Loading:    &loading,
			CreateTime: &serverTime,
		})
	})
	observability.Sends.WithLabelValues("persisted").Inc()
	p.onSent(linkmanID)

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m := session.MessageFromWire(persisted)
		if err := p.history.SaveMessages(cacheCtx, linkmanID, []store.Message{m}); err != nil {
			p.log.Debug().Err(err).Msg("cache write skipped")
		}
	}()
	return persisted.ID, nil
}

// fail finalizes a send in the Failed state: rollback by default, mark in
// place when the preview is still meaningful. The failure is surfaced to
// the sender only.
func (p *Pipeline) fail(linkmanID, placeholderID string, keep bool, cause error) {
	p.session.Apply(func(st *store.State) {
		if keep {
			loading := false
			failed := true
			st.UpdateMessage(linkmanID, placeholderID, store.MessagePatch{
				Loading: &loading,
				Failed:  &failed,
			})
			return
		}
		st.DeleteMessage(linkmanID, placeholderID, true)
	})

	result := "failed"
	if errors.Is(cause, channel.ErrSealed) {
		result = "sealed"
	}
	observability.Sends.WithLabelValues(result).Inc()
	p.log.Warn().Err(cause).Str("linkman_id", linkmanID).Msg("send failed")
	p.notifier.Toast("message could not be sent: " + cause.Error())
}

// completeMedia finishes the two-phase media send after the optimistic
// insert: upload, then transmit with the durable URL.
func (p *Pipeline) completeMedia(ctx context.Context, linkmanID, placeholderID string, typ store.MessageType, localRef string, data io.Reader) {
	url, err := p.uploader.Upload(ctx, localRef, data)
	if err != nil {
		// The local preview remains meaningful; keep the message, marked.
		p.fail(linkmanID, placeholderID, true, fmt.Errorf("upload %s: %w", localRef, err))
		return
	}
	if _, err := p.transmit(ctx, linkmanID, placeholderID, typ, url, true); err != nil {
		p.log.Warn().Err(err).Str("linkman_id", linkmanID).Msg("media persist failed after upload")
	}
}
