package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/presence"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
)

type handlers struct {
	session   *session.Session
	transport TransportStatus
	receipts  *presence.Receipts
	log       *zerolog.Logger
}

type statusResponse struct {
	Connected  bool   `json:"connected"`
	Transport  string `json:"transport"`
	SealedForS int    `json:"sealedForSeconds,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Username   string `json:"username,omitempty"`
	FocusID    string `json:"focusId,omitempty"`
	Linkmans   int    `json:"linkmans"`
	Unread     int    `json:"unread"`
}

type linkmanResponse struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Unread   int               `json:"unread"`
	Messages int               `json:"messages"`
	Typing   map[string]string `json:"typing,omitempty"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	FromID     string    `json:"fromId"`
	FromName   string    `json:"fromName"`
	CreateTime time.Time `json:"createTime"`
	Loading    bool      `json:"loading,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	Delivered  int       `json:"delivered,omitempty"`
	Read       int       `json:"read,omitempty"`
}

func (h *handlers) health(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

func (h *handlers) status(c *gin.Context) {
	resp := statusResponse{
		Transport:  h.transport.State().String(),
		SealedForS: int(h.transport.SealedFor().Seconds()),
	}
	h.session.View(func(st *store.State) {
		resp.Connected = st.Connected
		resp.FocusID = st.FocusID
		if st.User != nil {
			resp.UserID = st.User.ID
			resp.Username = st.User.Username
		}
		for _, l := range st.Linkmans() {
			resp.Linkmans++
			resp.Unread += l.Unread
		}
	})
	c.JSON(stdhttp.StatusOK, resp)
}

func (h *handlers) linkmans(c *gin.Context) {
	var out []linkmanResponse
	h.session.View(func(st *store.State) {
		for _, l := range st.Linkmans() {
			entry := linkmanResponse{
				ID:       l.ID,
				Type:     string(l.Type),
				Name:     l.Name,
				Unread:   l.Unread,
				Messages: l.MessageCount(),
			}
			if len(l.TypingUsers) > 0 {
				entry.Typing = make(map[string]string, len(l.TypingUsers))
				for id, name := range l.TypingUsers {
					entry.Typing[id] = name
				}
			}
			out = append(out, entry)
		}
	})
	c.JSON(stdhttp.StatusOK, out)
}

func (h *handlers) messages(c *gin.Context) {
	id := c.Param("id")
	var out []messageResponse
	found := false
	h.session.View(func(st *store.State) {
		l := st.Linkman(id)
		if l == nil {
			return
		}
		found = true
		for _, m := range l.Messages() {
			entry := messageResponse{
				ID:         m.ID,
				Type:       string(m.Type),
				Content:    m.Content,
				FromID:     m.From.ID,
				FromName:   m.From.Username,
				CreateTime: m.CreateTime,
				Loading:    m.Loading,
				Deleted:    m.Deleted,
				Failed:     m.Failed,
			}
			if m.Deleted {
				// Tombstone: content is cleared at the rendering edge.
				entry.Content = ""
			}
			entry.Delivered, entry.Read = h.receipts.Counts(m.ID)
			out = append(out, entry)
		}
	})
	if !found {
		c.JSON(stdhttp.StatusNotFound, gin.H{"error": "unknown linkman"})
		return
	}
	c.JSON(stdhttp.StatusOK, out)
}
