package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asima2006/fiora-sync/internal/log"
	"github.com/asima2006/fiora-sync/internal/proto"
)

func TestEmitNotConnected(t *testing.T) {
	c := NewWS(DefaultConfig(), log.Nop())
	if _, err := c.Emit(context.Background(), proto.EventSendMessage, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit on fresh channel: %v", err)
	}
}

func TestEmitAfterDisconnect(t *testing.T) {
	c := NewWS(DefaultConfig(), log.Nop())
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := c.Emit(context.Background(), proto.EventSendMessage, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Emit after close: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect after close: %v", err)
	}
	// Disconnect is idempotent.
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

func TestSealShortCircuitsEmits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SealCooldown = 40 * time.Millisecond
	c := NewWS(cfg, log.Nop())

	c.seal()
	if _, err := c.Emit(context.Background(), proto.EventSendMessage, nil); !errors.Is(err, ErrSealed) {
		t.Fatalf("Emit while sealed: %v", err)
	}
	if remaining := c.SealedFor(); remaining <= 0 || remaining > cfg.SealCooldown {
		t.Fatalf("SealedFor = %v", remaining)
	}

	time.Sleep(cfg.SealCooldown + 20*time.Millisecond)
	if remaining := c.SealedFor(); remaining != 0 {
		t.Fatalf("SealedFor after cooldown = %v", remaining)
	}
	// The seal lifts by itself; only connectivity blocks now.
	if _, err := c.Emit(context.Background(), proto.EventSendMessage, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Emit after cooldown: %v", err)
	}
}

func TestDeliverAckMatchesPending(t *testing.T) {
	c := NewWS(DefaultConfig(), log.Nop())
	ack := make(chan proto.Frame, 1)
	c.mu.Lock()
	c.pending[7] = ack
	c.mu.Unlock()

	c.deliverAck(proto.Frame{Seq: 7, Event: "ack"})
	select {
	case frame := <-ack:
		if frame.Seq != 7 {
			t.Fatalf("delivered seq %d", frame.Seq)
		}
	default:
		t.Fatalf("ack not delivered")
	}

	// Unknown sequence numbers are dropped silently.
	c.deliverAck(proto.Frame{Seq: 99})
	c.mu.Lock()
	left := len(c.pending)
	c.mu.Unlock()
	if left != 0 {
		t.Fatalf("%d pending entries left", left)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateClosed:       "closed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestAckErrorText(t *testing.T) {
	err := &AckError{Event: proto.EventSendMessage, Text: proto.MutedSentinel}
	if !proto.IsMuted(err.Text) {
		t.Fatalf("mute sentinel not recognized")
	}
	if err.Error() == "" {
		t.Fatalf("empty error text")
	}
}
