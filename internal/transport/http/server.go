// Package http serves the local read-only debug surface: session status,
// linkman listings and Prometheus metrics.
package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/channel"
	"github.com/asima2006/fiora-sync/internal/presence"
	"github.com/asima2006/fiora-sync/internal/session"
)

// TransportStatus exposes the channel state to the status endpoint.
type TransportStatus interface {
	State() channel.State
	SealedFor() time.Duration
}

// NewServer builds the debug HTTP server.
func NewServer(addr string, s *session.Session, transport TransportStatus, receipts *presence.Receipts, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := &handlers{session: s, transport: transport, receipts: receipts, log: logger}

	engine.GET("/healthz", h.health)
	engine.GET("/status", h.status)
	engine.GET("/linkmans", h.linkmans)
	engine.GET("/linkmans/:id/messages", h.messages)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &stdhttp.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
