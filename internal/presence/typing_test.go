package presence

import (
	"context"
	"testing"
	"time"

	"github.com/asima2006/fiora-sync/internal/log"
	"github.com/asima2006/fiora-sync/internal/proto"
)

type typingSignal struct {
	to     string
	typing bool
}

func collectTyping(ch chan typingSignal) func(context.Context, string, any) error {
	return func(_ context.Context, event string, payload any) error {
		req := payload.(proto.TypingRequest)
		if event == proto.EventSendTypingIndicator {
			ch <- typingSignal{to: req.To, typing: req.IsTyping}
		}
		return nil
	}
}

func waitTyping(t *testing.T, ch chan typingSignal) typingSignal {
	t.Helper()
	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatalf("no typing signal")
		return typingSignal{}
	}
}

func TestTypingStartThenIdleStop(t *testing.T) {
	ch := make(chan typingSignal, 4)
	te := NewTypingEmitter(collectTyping(ch), 50*time.Millisecond, log.Nop())

	te.Keystroke("lk1")
	if got := waitTyping(t, ch); !got.typing || got.to != "lk1" {
		t.Fatalf("first signal = %+v, want start", got)
	}

	// Idle window elapses with no further keystrokes.
	if got := waitTyping(t, ch); got.typing {
		t.Fatalf("second signal = %+v, want stop", got)
	}
}

func TestTypingKeystrokesExtendWindow(t *testing.T) {
	ch := make(chan typingSignal, 8)
	te := NewTypingEmitter(collectTyping(ch), 80*time.Millisecond, log.Nop())

	te.Keystroke("lk1")
	waitTyping(t, ch)
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		te.Keystroke("lk1")
	}
	// No stop while keystrokes keep the window open.
	select {
	case got := <-ch:
		t.Fatalf("premature signal %+v", got)
	case <-time.After(40 * time.Millisecond):
	}
	if got := waitTyping(t, ch); got.typing {
		t.Fatalf("expected idle stop, got %+v", got)
	}
}

func TestTypingSentStopsImmediately(t *testing.T) {
	ch := make(chan typingSignal, 4)
	te := NewTypingEmitter(collectTyping(ch), time.Hour, log.Nop())

	te.Keystroke("lk1")
	waitTyping(t, ch)
	te.Sent("lk1")
	if got := waitTyping(t, ch); got.typing {
		t.Fatalf("expected stop after send, got %+v", got)
	}

	// Sent without an active window is silent.
	te.Sent("lk1")
	select {
	case got := <-ch:
		t.Fatalf("unexpected signal %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingConversationsIndependent(t *testing.T) {
	ch := make(chan typingSignal, 4)
	te := NewTypingEmitter(collectTyping(ch), time.Hour, log.Nop())

	te.Keystroke("lk1")
	first := waitTyping(t, ch)
	te.Keystroke("lk2")
	second := waitTyping(t, ch)
	if first.to == second.to {
		t.Fatalf("signals not per conversation: %+v %+v", first, second)
	}

	te.Sent("lk1")
	if got := waitTyping(t, ch); got.to != "lk1" || got.typing {
		t.Fatalf("stop signal = %+v, want lk1 stop", got)
	}
}
