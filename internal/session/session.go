package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/store"
)

// Session owns the process-wide client state: identity, connectivity, focus
// and the full conversation store. It survives reconnects (only the
// connectivity flag flips) and is torn down to the guest-capable default on
// logout.
//
// All store transitions go through Apply, which serializes them: no two
// transitions interleave, matching the event-driven single-threaded model.
type Session struct {
	mu         sync.Mutex
	state      *store.State
	foreground bool

	log *zerolog.Logger
}

// New returns a session holding the default anonymous state.
func New(logger *zerolog.Logger) *Session {
	return &Session{
		state:      store.NewState(),
		foreground: true,
		log:        logger,
	}
}

// Apply runs one transition against the state. Transitions queued behind a
// running one wait; they are applied in acquisition order.
func (s *Session) Apply(fn func(*store.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// View runs a read-only function against the state under the same lock.
// The callback must not retain references to mutable internals.
func (s *Session) View(fn func(*store.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// CurrentUser returns the authenticated identity, or false for guests that
// have not yet been provisioned.
func (s *Session) CurrentUser() (store.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return store.User{}, false
	}
	return *s.state.User, true
}

// FocusID returns the currently focused linkman id, or empty.
func (s *Session) FocusID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FocusID
}

// Connected reports hub connectivity.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Connected
}

// SetForeground records whether the host window is foregrounded. Periodic
// reconciliation and notification side effects consult this.
func (s *Session) SetForeground(fg bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreground = fg
}

// Foreground reports the host window state.
func (s *Session) Foreground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground
}

// Logout resets the state to the anonymous default.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Reset()
	s.log.Info().Msg("session reset to guest default")
}
