package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/proto"
)

// DefaultTypingIdle is the inactivity window after which a typing start is
// followed by an explicit stop.
const DefaultTypingIdle = 3 * time.Second

type emitFunc func(ctx context.Context, event string, payload any) error

// TypingEmitter debounces the local user's raw input into start/stop
// signals. Start fires on the first qualifying keystroke after idle; stop
// fires on send or after the idle window. The receiving side has no
// independent expiry: it trusts these explicit transitions, so an abrupt
// disconnect can leave a stale indicator remotely. That gap is accepted.
type TypingEmitter struct {
	emit emitFunc
	idle time.Duration
	log  *zerolog.Logger

	mu     sync.Mutex
	active map[string]*time.Timer // linkmanID -> idle timer
}

// NewTypingEmitter builds an emitter over the given emit function. idle <= 0
// uses DefaultTypingIdle.
func NewTypingEmitter(emit func(ctx context.Context, event string, payload any) error, idle time.Duration, logger *zerolog.Logger) *TypingEmitter {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingEmitter{
		emit:   emit,
		idle:   idle,
		log:    logger,
		active: make(map[string]*time.Timer),
	}
}

// Keystroke records one qualifying keystroke in a conversation. The first
// after idle emits a typing start; each one pushes the stop timer out.
func (t *TypingEmitter) Keystroke(linkmanID string) {
	t.mu.Lock()
	timer, running := t.active[linkmanID]
	if running {
		timer.Reset(t.idle)
		t.mu.Unlock()
		return
	}
	t.active[linkmanID] = time.AfterFunc(t.idle, func() { t.stop(linkmanID) })
	t.mu.Unlock()

	t.signal(linkmanID, true)
}

// Sent records that the user sent the message; the stop signal fires
// immediately instead of waiting out the idle window.
func (t *TypingEmitter) Sent(linkmanID string) {
	t.mu.Lock()
	timer, running := t.active[linkmanID]
	if running {
		timer.Stop()
	}
	t.mu.Unlock()
	if running {
		t.stop(linkmanID)
	}
}

func (t *TypingEmitter) stop(linkmanID string) {
	t.mu.Lock()
	if _, running := t.active[linkmanID]; !running {
		t.mu.Unlock()
		return
	}
	delete(t.active, linkmanID)
	t.mu.Unlock()

	t.signal(linkmanID, false)
}

func (t *TypingEmitter) signal(linkmanID string, isTyping bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.emit(ctx, proto.EventSendTypingIndicator, proto.TypingRequest{To: linkmanID, IsTyping: isTyping})
	if err != nil {
		// Advisory only; the remote indicator self-corrects on the next
		// explicit transition.
		t.log.Debug().Err(err).Str("linkman_id", linkmanID).Bool("typing", isTyping).Msg("typing signal dropped")
	}
}
