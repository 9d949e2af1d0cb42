package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/asima2006/fiora-sync/internal/store"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func cachedMsg(id string, offsetMillis int64) store.Message {
	return store.Message{
		ID:         id,
		Type:       store.MessageTypeText,
		Content:    "m-" + id,
		From:       store.Sender{ID: "u-alice", Username: "alice"},
		CreateTime: time.UnixMilli(1700000000000 + offsetMillis),
	}
}

func TestSaveAndLoadRecent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	msgs := []store.Message{cachedMsg("a", 0), cachedMsg("b", 1000), cachedMsg("c", 2000)}
	if err := c.SaveMessages(ctx, "lk1", msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := c.LoadRecent(ctx, "lk1", 2)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d, want 2", len(got))
	}
	// Newest two, oldest first.
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("loaded [%s %s], want [b c]", got[0].ID, got[1].ID)
	}
	if got[0].Content != "m-b" || got[0].From.Username != "alice" {
		t.Fatalf("row fields lost: %+v", got[0])
	}
	if !got[1].CreateTime.Equal(time.UnixMilli(1700000002000)) {
		t.Fatalf("create time = %v", got[1].CreateTime)
	}
}

func TestSaveSkipsInFlightMessages(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	loading := cachedMsg("pending", 0)
	loading.Loading = true
	failed := cachedMsg("broken", 1000)
	failed.Failed = true
	if err := c.SaveMessages(ctx, "lk1", []store.Message{loading, failed, cachedMsg("ok", 2000)}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := c.LoadRecent(ctx, "lk1", 10)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("loaded %+v, want only the acknowledged message", got)
	}
}

func TestSaveUpsertsTombstone(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	m := cachedMsg("a", 0)
	if err := c.SaveMessages(ctx, "lk1", []store.Message{m}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	m.Deleted = true
	if err := c.SaveMessages(ctx, "lk1", []store.Message{m}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := c.LoadRecent(ctx, "lk1", 10)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(got) != 1 || !got[0].Deleted {
		t.Fatalf("tombstone not persisted: %+v", got)
	}
}

func TestDeleteMessage(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SaveMessages(ctx, "lk1", []store.Message{cachedMsg("a", 0), cachedMsg("b", 1000)}); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	if err := c.DeleteMessage(ctx, "lk1", "a"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	got, err := c.LoadRecent(ctx, "lk1", 10)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("loaded %+v after delete", got)
	}

	// Deleting an absent row is not an error.
	if err := c.DeleteMessage(ctx, "lk1", "zzz"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestLinkmansIsolated(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.SaveMessages(ctx, "lk1", []store.Message{cachedMsg("a", 0)})
	c.SaveMessages(ctx, "lk2", []store.Message{cachedMsg("a", 0), cachedMsg("b", 1000)})

	got, err := c.LoadRecent(ctx, "lk1", 10)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("lk1 sees %d messages", len(got))
	}
}
