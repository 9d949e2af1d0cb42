package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asima2006/fiora-sync/internal/channel"
	"github.com/asima2006/fiora-sync/internal/log"
	"github.com/asima2006/fiora-sync/internal/presence"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
)

type fakeTransport struct {
	state  channel.State
	sealed time.Duration
}

func (f fakeTransport) State() channel.State     { return f.state }
func (f fakeTransport) SealedFor() time.Duration { return f.sealed }

func newDebugServer(t *testing.T) (*stdhttp.Server, *session.Session, *presence.Receipts) {
	t.Helper()
	s := session.New(log.Nop())
	s.Apply(func(st *store.State) {
		st.User = &store.User{ID: "u-self", Username: "self"}
		st.SetConnected(true)
		st.AddLinkman("lk1", store.LinkmanFriend, "alice")
		st.AddLinkman("g1", store.LinkmanGroup, "general")
		st.AddLinkmanMessage("lk1", store.Message{
			ID: "m1", Type: store.MessageTypeText, Content: "hello",
			From:       store.Sender{ID: "u-alice", Username: "alice"},
			CreateTime: time.UnixMilli(1700000000000),
		})
		st.SetTypingStatus("g1", "u-bob", "bob", true)
	})
	receipts := presence.NewReceipts()
	srv := NewServer("127.0.0.1:0", s, fakeTransport{state: channel.StateConnected, sealed: 30 * time.Second}, receipts, log.Nop())
	return srv, s, receipts
}

func doGET(t *testing.T, srv *stdhttp.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(stdhttp.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newDebugServer(t)
	rec := doGET(t, srv, "/healthz")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatus(t *testing.T) {
	srv, _, _ := newDebugServer(t)
	rec := doGET(t, srv, "/status")
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Connected)
	assert.Equal(t, "connected", resp.Transport)
	assert.Equal(t, 30, resp.SealedForS)
	assert.Equal(t, "u-self", resp.UserID)
	assert.Equal(t, 2, resp.Linkmans)
	assert.Equal(t, 1, resp.Unread)
}

func TestLinkmans(t *testing.T) {
	srv, _, _ := newDebugServer(t)
	rec := doGET(t, srv, "/linkmans")
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	var resp []linkmanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "lk1", resp[0].ID)
	assert.Equal(t, 1, resp[0].Unread)
	assert.Equal(t, 1, resp[0].Messages)
	assert.Equal(t, map[string]string{"u-bob": "bob"}, resp[1].Typing)
}

func TestMessages(t *testing.T) {
	srv, _, receipts := newDebugServer(t)
	receipts.Apply("m1", "u-self", presence.StatusRead)

	rec := doGET(t, srv, "/linkmans/lk1/messages")
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	var resp []messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "m1", resp[0].ID)
	assert.Equal(t, "hello", resp[0].Content)
	assert.Equal(t, 1, resp[0].Delivered)
	assert.Equal(t, 1, resp[0].Read)
}

func TestMessagesTombstoneCleared(t *testing.T) {
	srv, s, _ := newDebugServer(t)
	s.Apply(func(st *store.State) {
		st.DeleteMessage("lk1", "m1", false)
	})

	rec := doGET(t, srv, "/linkmans/lk1/messages")
	require.Equal(t, stdhttp.StatusOK, rec.Code)

	var resp []messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.True(t, resp[0].Deleted)
	assert.Empty(t, resp[0].Content)
}

func TestMessagesUnknownLinkman(t *testing.T) {
	srv, _, _ := newDebugServer(t)
	rec := doGET(t, srv, "/linkmans/nope/messages")
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}
