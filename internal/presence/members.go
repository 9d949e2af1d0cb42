package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/proto"
)

// DefaultMembersPoll is how often the online roster of the focused group is
// refreshed.
const DefaultMembersPoll = 60 * time.Second

// ChannelEmitter is the slice of the channel the members cache needs.
type ChannelEmitter interface {
	Emit(ctx context.Context, event string, payload any) (json.RawMessage, error)
}

type cachedMembers struct {
	token   string
	members []proto.OnlineMember
}

// MembersCache caches group online rosters keyed by a server-issued cache
// token. Requests carry the last-known token; when the hub's current token
// matches it answers with just the token and the cached list is reused.
// The staleness window this trades for payload size is deliberate; do not
// strengthen it without revisiting the polling interval.
type MembersCache struct {
	emitter ChannelEmitter
	log     *zerolog.Logger

	mu     sync.Mutex
	groups map[string]cachedMembers
}

// NewMembersCache builds an empty cache.
func NewMembersCache(emitter ChannelEmitter, logger *zerolog.Logger) *MembersCache {
	return &MembersCache{
		emitter: emitter,
		log:     logger,
		groups:  make(map[string]cachedMembers),
	}
}

// Fetch returns the online members of a group, reusing the cached list
// when the hub reports the token unchanged.
func (c *MembersCache) Fetch(ctx context.Context, groupID string) ([]proto.OnlineMember, error) {
	c.mu.Lock()
	held := c.groups[groupID]
	c.mu.Unlock()

	raw, err := c.emitter.Emit(ctx, proto.EventGetGroupOnlineMembersV2, proto.OnlineMembersRequest{
		GroupID: groupID,
		Cache:   held.token,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch online members: %w", err)
	}
	var resp proto.OnlineMembersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode online members: %w", err)
	}

	if resp.Members == nil && resp.Cache == held.token && held.token != "" {
		return held.members, nil
	}

	c.mu.Lock()
	c.groups[groupID] = cachedMembers{token: resp.Cache, members: resp.Members}
	c.mu.Unlock()
	return resp.Members, nil
}

// Cached returns the last-known roster without touching the network.
func (c *MembersCache) Cached(groupID string) []proto.OnlineMember {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups[groupID].members
}

// Forget drops a group's cached roster, e.g. when the group is deleted.
func (c *MembersCache) Forget(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, groupID)
}

// Poll refreshes the roster reported by focused() every interval until the
// context ends. focused must return an empty id when no group or channel
// conversation is focused; those ticks are skipped.
func (c *MembersCache) Poll(ctx context.Context, interval time.Duration, focused func() string) {
	if interval <= 0 {
		interval = DefaultMembersPoll
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			groupID := focused()
			if groupID == "" {
				continue
			}
			if _, err := c.Fetch(ctx, groupID); err != nil {
				c.log.Debug().Err(err).Str("group_id", groupID).Msg("online members poll failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
