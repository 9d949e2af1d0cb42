// Package app wires the synchronization engine together: transport,
// session, router, pipeline, presence, reconciler and the debug surface.
package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/cache"
	cachesqlite "github.com/asima2006/fiora-sync/internal/cache/sqlite"
	"github.com/asima2006/fiora-sync/internal/channel"
	"github.com/asima2006/fiora-sync/internal/config"
	"github.com/asima2006/fiora-sync/internal/notify"
	"github.com/asima2006/fiora-sync/internal/observability"
	"github.com/asima2006/fiora-sync/internal/outbound"
	"github.com/asima2006/fiora-sync/internal/presence"
	"github.com/asima2006/fiora-sync/internal/reconcile"
	"github.com/asima2006/fiora-sync/internal/router"
	"github.com/asima2006/fiora-sync/internal/session"
	"github.com/asima2006/fiora-sync/internal/store"
	transporthttp "github.com/asima2006/fiora-sync/internal/transport/http"
	"github.com/asima2006/fiora-sync/internal/utils"
)

// App owns the engine's components and their lifecycle.
type App struct {
	cfg     config.Config
	log     *zerolog.Logger
	session *session.Session
	ws      *channel.WS
	history cache.History

	receipts     *presence.Receipts
	typing       *presence.TypingEmitter
	members      *presence.MembersCache
	reconciler   *reconcile.Reconciler
	pipeline     *outbound.Pipeline
	bootstrapper *session.Bootstrapper
	server       *stdhttp.Server

	reconnected atomic.Bool
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger, notifier notify.Notifier, uploader outbound.Uploader) (*App, error) {
	if notifier == nil {
		notifier = notify.Log{Logger: logger}
	}

	var history cache.History = cache.Nop{}
	if cfg.CachePath != "" {
		c, err := cachesqlite.New(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		history = c
		logger.Info().Str("cache_path", cfg.CachePath).Msg("local cache initialized")
	}

	sess := session.New(logger)
	ws := channel.NewWS(channel.Config{
		URL:              cfg.HubURL,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		BackoffMin:       cfg.BackoffMin,
		BackoffMax:       cfg.BackoffMax,
		SealCooldown:     cfg.SealCooldown,
		EmitRate:         channel.DefaultConfig().EmitRate,
		EmitBurst:        channel.DefaultConfig().EmitBurst,
	}, logger)

	receipts := presence.NewReceipts()
	members := presence.NewMembersCache(ws, logger)
	typing := presence.NewTypingEmitter(func(ctx context.Context, event string, payload any) error {
		_, err := ws.Emit(ctx, event, payload)
		return err
	}, cfg.TypingIdle, logger)

	reconciler := reconcile.New(sess, ws, history, cfg.HistoryThreshold, cfg.ReadPositionInterval, logger)

	rt := router.New(router.Config{
		Session:  sess,
		Receipts: receipts,
		Emitter:  ws,
		Notifier: notifier,
		Toggles: notify.Toggles{
			Notification: cfg.NotifyDesktop,
			Sound:        cfg.NotifySound,
			Voice:        cfg.NotifyVoice,
		},
		History:  history,
		Backfill: reconciler.Backfill,
	}, logger)

	pipeline := outbound.New(outbound.Config{
		Session:  sess,
		Emitter:  ws,
		Uploader: uploader,
		Notifier: notifier,
		History:  history,
		OnSent:   typing.Sent,
	}, logger)

	a := &App{
		cfg:        cfg,
		log:        logger,
		session:    sess,
		ws:         ws,
		history:    history,
		receipts:   receipts,
		typing:     typing,
		members:    members,
		reconciler: reconciler,
		pipeline:   pipeline,
	}

	a.bootstrapper = session.NewBootstrapper(sess, ws, a.loadToken, a.saveToken, utils.NewDeviceID(), logger)

	ws.OnConnect(a.handleConnect)
	ws.OnDisconnect(func() {
		sess.Apply(func(st *store.State) { st.SetConnected(false) })
	})
	ws.OnPush(rt.Handle)

	if cfg.DebugAddr != "" {
		a.server = transporthttp.NewServer(cfg.DebugAddr, sess, ws, receipts, logger)
	}
	return a, nil
}

// Run connects to the hub and blocks until context cancellation or a fatal
// error from the debug server.
func (a *App) Run(ctx context.Context) error {
	if err := a.ws.Connect(ctx); err != nil {
		// The supervisor is not running yet; a first-dial failure is fatal
		// so the operator sees a wrong hub URL immediately.
		a.cleanup()
		return err
	}

	go a.reconciler.Run(ctx)
	go a.members.Poll(ctx, a.cfg.MembersPollInterval, a.focusedGroup)

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
		a.log.Info().Str("addr", a.cfg.DebugAddr).Msg("debug server listening")
	}

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("debug server shutdown")
			}
		}
		a.cleanup()
		return nil
	}
}

// handleConnect runs on every (re)connect. Connect handlers fire from
// per-connection goroutines, so the reconnect flag is atomic.
func (a *App) handleConnect() {
	if a.reconnected.Swap(true) {
		observability.Reconnects.Inc()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.bootstrapper.Run(ctx); err != nil {
		a.log.Error().Err(err).Msg("bootstrap failed")
	}
}

// Session exposes the session for embedding hosts.
func (a *App) Session() *session.Session { return a.session }

// Pipeline exposes the outbound pipeline for embedding hosts.
func (a *App) Pipeline() *outbound.Pipeline { return a.pipeline }

// Members exposes the online-member cache for embedding hosts.
func (a *App) Members() *presence.MembersCache { return a.members }

// Login authenticates with credentials, replacing any guest identity and
// persisting the refreshed token.
func (a *App) Login(ctx context.Context, username, password string) error {
	return a.bootstrapper.Login(ctx, username, password)
}

// Register creates an account on the hub and signs the session into it.
func (a *App) Register(ctx context.Context, username, password string) error {
	return a.bootstrapper.Register(ctx, username, password)
}

// Focus moves the focused conversation and triggers the focus-time
// history reconciliation.
func (a *App) Focus(ctx context.Context, linkmanID string) bool {
	ok := false
	a.session.Apply(func(st *store.State) { ok = st.SetFocus(linkmanID) })
	if !ok {
		a.log.Warn().Str("linkman_id", linkmanID).Msg("focus on unknown linkman ignored")
		return false
	}
	a.reconciler.OnFocus(ctx, linkmanID)
	return true
}

// Keystroke feeds the typing debouncer for the focused conversation.
func (a *App) Keystroke(linkmanID string) { a.typing.Keystroke(linkmanID) }

// SetForeground records the host window state.
func (a *App) SetForeground(fg bool) { a.session.SetForeground(fg) }

// focusedGroup returns the focused linkman id when it is a group or
// channel, otherwise empty; drives the online-member poll.
func (a *App) focusedGroup() string {
	id := ""
	a.session.View(func(st *store.State) {
		if l := st.Focused(); l != nil && (l.Type == store.LinkmanGroup || l.Type == store.LinkmanChannel) {
			id = l.ID
		}
	})
	return id
}

func (a *App) loadToken() string {
	data, err := os.ReadFile(a.cfg.TokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (a *App) saveToken(token string) {
	if err := os.WriteFile(a.cfg.TokenPath, []byte(token), 0o600); err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.TokenPath).Msg("failed to persist token")
	}
}

func (a *App) cleanup() {
	if err := a.ws.Disconnect(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close channel")
	}
	if err := a.history.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close cache")
	} else {
		a.log.Info().Msg("cache closed")
	}
}
