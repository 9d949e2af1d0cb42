package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/asima2006/fiora-sync/internal/log"
	"github.com/asima2006/fiora-sync/internal/notify"
	"github.com/asima2006/fiora-sync/internal/proto"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
)

// scriptedEmitter answers sendMessage calls from a function so tests can
// fail, succeed or inspect mid-flight state.
type scriptedEmitter struct {
	requests []proto.SendMessageRequest
	respond  func(req proto.SendMessageRequest) (proto.Message, error)
}

func (e *scriptedEmitter) Emit(_ context.Context, event string, payload any) (json.RawMessage, error) {
	if event != proto.EventSendMessage {
		return nil, fmt.Errorf("unexpected event %s", event)
	}
	req := payload.(proto.SendMessageRequest)
	e.requests = append(e.requests, req)
	ack, err := e.respond(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ack)
}

type toastNotifier struct {
	notify.Nop
	toasts chan string
}

func (n *toastNotifier) Toast(text string) { n.toasts <- text }

func newSessionForSend(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(log.Nop())
	s.Apply(func(st *store.State) {
		st.User = &store.User{ID: "u-self", Username: "self", Avatar: "me.png"}
		st.AddLinkman("lk1", store.LinkmanFriend, "alice")
		ch := st.AddLinkman("ch1", store.LinkmanChannel, "announcements")
		ch.Creator = "u-owner"
	})
	return s
}

func ackOf(req proto.SendMessageRequest, id string, unixMilli int64) proto.Message {
	return proto.Message{
		ID:         id,
		Type:       req.Type,
		Content:    req.Content,
		From:       proto.Sender{ID: "u-self", Username: "self"},
		CreateTime: unixMilli,
	}
}

func TestSendPersistsAndRekeys(t *testing.T) {
	s := newSessionForSend(t)
	sawOptimistic := false
	emitter := &scriptedEmitter{}
	emitter.respond = func(req proto.SendMessageRequest) (proto.Message, error) {
		// The local echo must already be visible while the call is in flight.
		s.View(func(st *store.State) {
			for _, m := range st.Linkman("lk1").Messages() {
				if m.Loading && strings.Contains(m.ID, "_") {
					sawOptimistic = true
				}
			}
		})
		return ackOf(req, "srv-1", 1700000000000), nil
	}
	sentTo := make(chan string, 1)
	p := New(Config{
		Session: s,
		Emitter: emitter,
		OnSent:  func(id string) { sentTo <- id },
	}, log.Nop())

	id, err := p.Send(context.Background(), "lk1", store.MessageTypeText, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "srv-1" {
		t.Fatalf("final id = %q", id)
	}
	if !sawOptimistic {
		t.Fatalf("no optimistic echo visible during transmit")
	}
	if got := <-sentTo; got != "lk1" {
		t.Fatalf("onSent called with %q", got)
	}

	s.View(func(st *store.State) {
		l := st.Linkman("lk1")
		if l.MessageCount() != 1 {
			t.Fatalf("held %d messages", l.MessageCount())
		}
		m := l.Message("srv-1")
		if m == nil {
			t.Fatalf("server id missing after rekey")
		}
		if m.Loading || m.Failed {
			t.Fatalf("message state loading=%v failed=%v", m.Loading, m.Failed)
		}
		if !m.CreateTime.Equal(time.UnixMilli(1700000000000)) {
			t.Fatalf("create time = %v, want server time", m.CreateTime)
		}
		// Unread must not have moved for the sender's own message.
		if l.Unread != 0 {
			t.Fatalf("unread = %d after own send", l.Unread)
		}
	})
}

func TestSendPushArrivesBeforeAck(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{}
	emitter.respond = func(req proto.SendMessageRequest) (proto.Message, error) {
		// The hub pushes the persisted message over the read loop before
		// answering the call; the store already holds the server id when
		// the acknowledgement lands.
		s.Apply(func(st *store.State) {
			st.AddLinkmanMessage("lk1", store.Message{
				ID:         "srv-1",
				Type:       store.MessageTypeText,
				Content:    req.Content,
				From:       store.Sender{ID: "u-self", Username: "self"},
				CreateTime: time.UnixMilli(1700000000000),
			})
		})
		return ackOf(req, "srv-1", 1700000000000), nil
	}
	p := New(Config{Session: s, Emitter: emitter}, log.Nop())

	id, err := p.Send(context.Background(), "lk1", store.MessageTypeText, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "srv-1" {
		t.Fatalf("final id = %q", id)
	}

	s.View(func(st *store.State) {
		l := st.Linkman("lk1")
		if l.MessageCount() != 1 {
			t.Fatalf("held %d entries, want the server entry only", l.MessageCount())
		}
		m := l.Message("srv-1")
		if m == nil {
			t.Fatalf("server entry missing")
		}
		if m.Loading {
			t.Fatalf("message left loading after ack")
		}
	})
}

func TestSendFailureRollsBack(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{respond: func(proto.SendMessageRequest) (proto.Message, error) {
		return proto.Message{}, errors.New("hub unreachable")
	}}
	notifier := &toastNotifier{toasts: make(chan string, 1)}
	p := New(Config{Session: s, Emitter: emitter, Notifier: notifier}, log.Nop())

	if _, err := p.Send(context.Background(), "lk1", store.MessageTypeText, "hello"); err == nil {
		t.Fatalf("Send succeeded against failing hub")
	}

	s.View(func(st *store.State) {
		if got := st.Linkman("lk1").MessageCount(); got != 0 {
			t.Fatalf("placeholder survived rollback: %d messages", got)
		}
	})
	select {
	case text := <-notifier.toasts:
		if !strings.Contains(text, "hub unreachable") {
			t.Fatalf("toast = %q", text)
		}
	case <-time.After(time.Second):
		t.Fatalf("no toast for failed send")
	}
}

func TestSendMalformedAckRollsBack(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{respond: func(req proto.SendMessageRequest) (proto.Message, error) {
		return proto.Message{}, nil // ack without an id
	}}
	p := New(Config{Session: s, Emitter: emitter}, log.Nop())

	if _, err := p.Send(context.Background(), "lk1", store.MessageTypeText, "hello"); err == nil {
		t.Fatalf("Send accepted an ack without a message id")
	}
	s.View(func(st *store.State) {
		if got := st.Linkman("lk1").MessageCount(); got != 0 {
			t.Fatalf("placeholder survived: %d messages", got)
		}
	})
}

func TestSendGuards(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{respond: func(req proto.SendMessageRequest) (proto.Message, error) {
		return ackOf(req, "srv-1", 1), nil
	}}
	p := New(Config{Session: s, Emitter: emitter}, log.Nop())

	if _, err := p.Send(context.Background(), "nope", store.MessageTypeText, "x"); !errors.Is(err, ErrUnknownLinkman) {
		t.Fatalf("unknown linkman: %v", err)
	}
	if _, err := p.Send(context.Background(), "ch1", store.MessageTypeText, "x"); !errors.Is(err, ErrCannotPost) {
		t.Fatalf("channel non-creator: %v", err)
	}
	if len(emitter.requests) != 0 {
		t.Fatalf("guarded sends reached the hub: %d requests", len(emitter.requests))
	}

	anon := session.New(log.Nop())
	p = New(Config{Session: anon, Emitter: emitter}, log.Nop())
	if _, err := p.Send(context.Background(), "lk1", store.MessageTypeText, "x"); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("no identity: %v", err)
	}
}

func TestSendRecognizesInviteLink(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{respond: func(req proto.SendMessageRequest) (proto.Message, error) {
		return ackOf(req, "srv-1", 1), nil
	}}
	p := New(Config{Session: s, Emitter: emitter}, log.Nop())

	if _, err := p.Send(context.Background(), "lk1", store.MessageTypeText, "  https://hub.example.com/invite/group/abc123  "); err != nil {
		t.Fatalf("Send: %v", err)
	}

	req := emitter.requests[0]
	if req.Type != string(store.MessageTypeInviteV2) {
		t.Fatalf("wire type = %q, want inviteV2", req.Type)
	}
	var invite InviteContent
	if err := json.Unmarshal([]byte(req.Content), &invite); err != nil || invite.Group != "abc123" {
		t.Fatalf("invite content = %q (%v)", req.Content, err)
	}
}

func TestRecognizeInvite(t *testing.T) {
	cases := []struct {
		content string
		rewrite bool
	}{
		{"https://hub.example.com/invite/group/g1X", true},
		{"http://hub/invite/group/0aB", true},
		{"join here https://hub/invite/group/g1", false}, // surrounding text
		{"https://hub/invite/group/g1?x=1", false},       // trailing junk
		{"plain text", false},
	}
	for _, tc := range cases {
		typ, _ := recognizeInvite(store.MessageTypeText, tc.content)
		if got := typ == store.MessageTypeInviteV2; got != tc.rewrite {
			t.Fatalf("recognizeInvite(%q) rewrite=%v, want %v", tc.content, got, tc.rewrite)
		}
	}
	if typ, content := recognizeInvite(store.MessageTypeCode, "https://hub/invite/group/g1"); typ != store.MessageTypeCode || content != "https://hub/invite/group/g1" {
		t.Fatalf("non-text content rewritten")
	}
}

type scriptedUploader struct {
	url string
	err error
}

func (u scriptedUploader) Upload(_ context.Context, _ string, _ io.Reader) (string, error) {
	return u.url, u.err
}

func TestSendMediaUploadsThenTransmits(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{respond: func(req proto.SendMessageRequest) (proto.Message, error) {
		return ackOf(req, "srv-img", 1700000000000), nil
	}}
	done := make(chan string, 1)
	p := New(Config{
		Session:  s,
		Emitter:  emitter,
		Uploader: scriptedUploader{url: "https://cdn.example.com/img.png"},
		OnSent:   func(id string) { done <- id },
	}, log.Nop())

	placeholder, err := p.SendMedia(context.Background(), "lk1", store.MessageTypeImage, "local://img.png", strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if !strings.Contains(placeholder, "_") {
		t.Fatalf("placeholder id %q lacks client marker", placeholder)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("media send never completed")
	}
	s.View(func(st *store.State) {
		m := st.Linkman("lk1").Message("srv-img")
		if m == nil {
			t.Fatalf("media message not rekeyed")
		}
		if m.Content != "https://cdn.example.com/img.png" {
			t.Fatalf("content = %q, want durable URL", m.Content)
		}
	})
	if emitter.requests[0].Content != "https://cdn.example.com/img.png" {
		t.Fatalf("wire content = %q", emitter.requests[0].Content)
	}
}

func TestSendMediaUploadFailureKeepsMarkedMessage(t *testing.T) {
	s := newSessionForSend(t)
	emitter := &scriptedEmitter{respond: func(req proto.SendMessageRequest) (proto.Message, error) {
		t.Errorf("transmit attempted after failed upload")
		return proto.Message{}, errors.New("unreachable")
	}}
	notifier := &toastNotifier{toasts: make(chan string, 1)}
	p := New(Config{
		Session:  s,
		Emitter:  emitter,
		Uploader: scriptedUploader{err: errors.New("object store down")},
		Notifier: notifier,
	}, log.Nop())

	placeholder, err := p.SendMedia(context.Background(), "lk1", store.MessageTypeImage, "local://img.png", strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("SendMedia: %v", err)
	}

	select {
	case <-notifier.toasts:
	case <-time.After(2 * time.Second):
		t.Fatalf("no failure toast")
	}
	s.View(func(st *store.State) {
		m := st.Linkman("lk1").Message(placeholder)
		if m == nil {
			t.Fatalf("failed media message rolled back, want kept")
		}
		if !m.Failed || m.Loading {
			t.Fatalf("state failed=%v loading=%v", m.Failed, m.Loading)
		}
		if m.Content != "local://img.png" {
			t.Fatalf("content = %q, want local preview", m.Content)
		}
	})
}
