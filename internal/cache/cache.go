// Package cache persists received messages locally so the debug API and
// warm starts can serve history without a round-trip. It is a best-effort
// mirror, never the source of truth: the conversation store is.
package cache

import (
	"context"

	"github.com/asima2006/fiora-sync/internal/store"
)

// History is the repository interface the engine writes through.
type History interface {
	// SaveMessages upserts messages for a linkman.
	SaveMessages(ctx context.Context, linkmanID string, msgs []store.Message) error

	// LoadRecent returns up to limit newest messages for a linkman,
	// oldest first.
	LoadRecent(ctx context.Context, linkmanID string, limit int) ([]store.Message, error)

	// DeleteMessage removes one cached message.
	DeleteMessage(ctx context.Context, linkmanID, messageID string) error

	// Close releases the underlying resources.
	Close() error
}

// Nop discards writes and serves nothing. Used when the cache is disabled.
type Nop struct{}

func (Nop) SaveMessages(context.Context, string, []store.Message) error { return nil }
func (Nop) LoadRecent(context.Context, string, int) ([]store.Message, error) {
	return nil, nil
}
func (Nop) DeleteMessage(context.Context, string, string) error { return nil }
func (Nop) Close() error                                        { return nil }
