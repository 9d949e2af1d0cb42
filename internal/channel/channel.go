// Package channel provides the persistent, auto-reconnecting bidirectional
// transport between the client and the hub.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// PushHandler receives hub-pushed events. Handlers are invoked inline from
// the read loop, so pushes for one linkman are observed in hub order.
type PushHandler func(event string, data json.RawMessage)

// Channel is the transport contract the engine builds on.
type Channel interface {
	// Connect dials the hub and starts the reconnect supervisor. The
	// first successful dial returns; later drops reconnect with backoff.
	Connect(ctx context.Context) error

	// Disconnect stops the supervisor and closes the connection.
	Disconnect() error

	// Emit sends a named event and waits for the hub acknowledgement.
	Emit(ctx context.Context, event string, payload any) (json.RawMessage, error)

	// OnConnect registers a handler fired on every (re)connect.
	OnConnect(fn func())

	// OnDisconnect registers a handler fired on every drop.
	OnDisconnect(fn func())

	// OnPush registers the handler for hub-pushed events.
	OnPush(fn PushHandler)
}

var (
	// ErrNotConnected is returned by Emit while the transport is down.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("channel closed")
	// ErrSealed is returned while outbound emits are short-circuited
	// during the mute/ban cooldown window.
	ErrSealed = errors.New("sends are sealed during mute cooldown")
)

// AckError carries the hub-reported error text from an acknowledgement.
type AckError struct {
	Event string
	Text  string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Event, e.Text)
}
