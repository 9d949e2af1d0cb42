// Package reconcile keeps locally-held history converged with the hub:
// focus-triggered backfills and a periodic read-position push.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/cache"
	"github.com/asima2006/fiora-sync/internal/observability"
	"github.com/asima2006/fiora-sync/internal/proto"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
)

const (
	// DefaultThreshold is the held-message count under which a focus
	// change triggers a history fetch.
	DefaultThreshold = 15
	// DefaultInterval is the read-position push cadence while the window
	// is foregrounded.
	DefaultInterval = 30 * time.Second
)

// Reconciler merges missing history into the store and reports the read
// position upstream. All merges are union merges: racing with inbound
// messages converges to the same set regardless of arrival order.
type Reconciler struct {
	session   *session.Session
	emitter   session.Emitter
	history   cache.History
	threshold int
	interval  time.Duration
	log       *zerolog.Logger

	mu       sync.Mutex
	reported map[string]string // linkmanID -> last newest id pushed upstream
}

// New builds a reconciler. threshold <= 0 and interval <= 0 take defaults;
// history may be nil.
func New(s *session.Session, e session.Emitter, history cache.History, threshold int, interval time.Duration, logger *zerolog.Logger) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if history == nil {
		history = cache.Nop{}
	}
	return &Reconciler{
		session:   s,
		emitter:   e,
		history:   history,
		threshold: threshold,
		interval:  interval,
		log:       logger,
		reported:  make(map[string]string),
	}
}

// OnFocus tops up a thin conversation after a focus change: local cache
// first, then older history from the hub using the held count as cursor.
func (r *Reconciler) OnFocus(ctx context.Context, linkmanID string) {
	held := r.heldCount(linkmanID)
	if held < 0 || held >= r.threshold {
		return
	}

	if cached, err := r.history.LoadRecent(ctx, linkmanID, r.threshold); err == nil && len(cached) > 0 {
		r.merge(linkmanID, cached, "focus")
		held = r.heldCount(linkmanID)
	}

	if err := r.fetch(ctx, linkmanID, held, "focus"); err != nil {
		r.log.Debug().Err(err).Str("linkman_id", linkmanID).Msg("focus history fetch failed")
	}
}

// Backfill fetches recent history for a linkman that was just seeded from
// a single inbound message (stranger DM).
func (r *Reconciler) Backfill(linkmanID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.fetch(ctx, linkmanID, r.heldCount(linkmanID), "backfill"); err != nil {
		r.log.Debug().Err(err).Str("linkman_id", linkmanID).Msg("backfill failed")
	}
}

// Run pushes the read position every interval while foregrounded, until
// the context ends. A tick whose focus moved away before firing is a
// no-op; the call itself is idempotent on the hub.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !r.session.Foreground() {
				continue
			}
			r.pushReadPosition(ctx, r.session.FocusID())
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) pushReadPosition(ctx context.Context, linkmanID string) {
	if linkmanID == "" {
		return
	}
	newest := ""
	r.session.View(func(st *store.State) {
		if linkmanID != st.FocusID {
			// Focus moved between capture and fire.
			linkmanID = ""
			return
		}
		if l := st.Linkman(linkmanID); l != nil {
			if m := l.NewestMessage(); m != nil {
				newest = m.ID
			}
		}
	})
	if linkmanID == "" || newest == "" {
		return
	}

	r.mu.Lock()
	unchanged := r.reported[linkmanID] == newest
	r.mu.Unlock()
	if unchanged {
		return
	}

	_, err := r.emitter.Emit(ctx, proto.EventUpdateHistory, proto.UpdateHistoryRequest{
		LinkmanID: linkmanID,
		MessageID: newest,
	})
	if err != nil {
		r.log.Debug().Err(err).Str("linkman_id", linkmanID).Msg("read position push failed")
		return
	}
	r.mu.Lock()
	r.reported[linkmanID] = newest
	r.mu.Unlock()
}

// fetch requests messages older than the held count and union-merges them.
func (r *Reconciler) fetch(ctx context.Context, linkmanID string, held int, source string) error {
	if held < 0 {
		return fmt.Errorf("unknown linkman %s", linkmanID)
	}
	raw, err := r.emitter.Emit(ctx, proto.EventGetLinkmanHistoryMessages, proto.HistoryRequest{
		LinkmanID:  linkmanID,
		ExistCount: held,
	})
	if err != nil {
		return err
	}
	var msgs []proto.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	r.merge(linkmanID, session.MessagesFromWire(msgs), source)
	return nil
}

func (r *Reconciler) merge(linkmanID string, msgs []store.Message, source string) {
	added := 0
	r.session.Apply(func(st *store.State) {
		added = st.AddLinkmanHistoryMessages(linkmanID, msgs)
	})
	if added > 0 {
		observability.HistoryMerged.WithLabelValues(source).Add(float64(added))
	}
}

func (r *Reconciler) heldCount(linkmanID string) int {
	held := -1
	r.session.View(func(st *store.State) {
		if l := st.Linkman(linkmanID); l != nil {
			held = l.MessageCount()
		}
	})
	return held
}
