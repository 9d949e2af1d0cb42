package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/asima2006/fiora-sync/internal/proto"
)

// Config controls how the websocket channel connects and behaves.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	SealCooldown     time.Duration
	EmitRate         rate.Limit
	EmitBurst        int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		BackoffMin:       500 * time.Millisecond,
		BackoffMax:       30 * time.Second,
		SealCooldown:     time.Minute,
		EmitRate:         rate.Limit(20),
		EmitBurst:        40,
	}
}

// WS is the websocket implementation of Channel. A supervisor goroutine
// owns the connection lifecycle: it redials with jittered exponential
// backoff after every drop and fires the connect handlers on each
// successful dial, so the session bootstrapper re-runs in full every time.
type WS struct {
	cfg     Config
	log     *zerolog.Logger
	limiter *rate.Limiter

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	seq         uint64
	pending     map[uint64]chan proto.Frame
	sealedUntil time.Time
	cancel      context.CancelFunc

	writeMu sync.Mutex

	onConnect    []func()
	onDisconnect []func()
	onPush       PushHandler
}

// NewWS builds a websocket channel. Handlers must be registered before
// Connect.
func NewWS(cfg Config, logger *zerolog.Logger) *WS {
	c := &WS{
		cfg:     cfg,
		log:     logger,
		pending: make(map[uint64]chan proto.Frame),
	}
	if cfg.EmitRate > 0 {
		c.limiter = rate.NewLimiter(cfg.EmitRate, cfg.EmitBurst)
	}
	return c
}

// OnConnect registers a handler fired on every (re)connect.
func (c *WS) OnConnect(fn func()) { c.onConnect = append(c.onConnect, fn) }

// OnDisconnect registers a handler fired on every drop.
func (c *WS) OnDisconnect(fn func()) { c.onDisconnect = append(c.onDisconnect, fn) }

// OnPush registers the handler for hub-pushed events.
func (c *WS) OnPush(fn PushHandler) { c.onPush = fn }

// State returns the current transport state.
func (c *WS) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SealedFor returns how long outbound emits remain short-circuited, zero
// when unsealed.
func (c *WS) SealedFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remaining := time.Until(c.sealedUntil); remaining > 0 {
		return remaining
	}
	return 0
}

// Connect dials the hub. The first dial is synchronous; on success the
// supervisor takes over reconnection.
func (c *WS) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnected, StateConnecting, StateReconnecting:
		c.mu.Unlock()
		return fmt.Errorf("connect: already active")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("dial hub: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.supervise(runCtx, conn)
	return nil
}

// Disconnect stops the supervisor and closes the connection.
func (c *WS) Disconnect() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

// Emit sends one named event and waits for the acknowledgement. While the
// channel is sealed after a mute rejection, Emit fails locally without
// touching the network.
func (c *WS) Emit(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if time.Now().Before(c.sealedUntil) {
		c.mu.Unlock()
		return nil, ErrSealed
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	c.seq++
	seq := c.seq
	ack := make(chan proto.Frame, 1)
	c.pending[seq] = ack
	c.mu.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.dropPending(seq)
			return nil, err
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.dropPending(seq)
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if err := c.write(ctx, conn, proto.Frame{Seq: seq, Event: event, Data: data}); err != nil {
		c.dropPending(seq)
		return nil, fmt.Errorf("write %s: %w", event, err)
	}

	select {
	case resp, ok := <-ack:
		if !ok {
			return nil, ErrNotConnected
		}
		if resp.Error != "" {
			if proto.IsMuted(resp.Error) {
				c.seal()
			}
			return nil, &AckError{Event: event, Text: resp.Error}
		}
		return resp.Data, nil
	case <-ctx.Done():
		c.dropPending(seq)
		return nil, ctx.Err()
	}
}

func (c *WS) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	return conn, err
}

func (c *WS) supervise(ctx context.Context, conn *websocket.Conn) {
	backoff := c.cfg.BackoffMin
	for {
		c.runSession(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		for {
			c.mu.Lock()
			if c.state == StateClosed {
				c.mu.Unlock()
				return
			}
			c.state = StateReconnecting
			c.mu.Unlock()

			delay := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
			c.log.Info().Dur("delay", delay).Msg("reconnecting to hub")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}

			next, err := c.dial(ctx)
			if err == nil {
				conn = next
				backoff = c.cfg.BackoffMin
				break
			}
			c.log.Warn().Err(err).Msg("redial failed")
			backoff *= 2
			if backoff > c.cfg.BackoffMax {
				backoff = c.cfg.BackoffMax
			}
		}
	}
}

// runSession serves one live connection until its read loop exits.
func (c *WS) runSession(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	handlers := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	// Connect handlers bootstrap over this same channel; they must not
	// block the read loop that delivers their acknowledgements.
	go func() {
		for _, fn := range handlers {
			fn()
		}
	}()

	err := c.readLoop(ctx, conn)
	if err != nil && ctx.Err() == nil {
		c.log.Warn().Err(err).Msg("connection dropped")
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.state == StateConnected {
			c.state = StateDisconnected
		}
	}
	for seq, ack := range c.pending {
		close(ack)
		delete(c.pending, seq)
	}
	disconnects := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()

	_ = conn.Close(websocket.StatusGoingAway, "session ended")
	for _, fn := range disconnects {
		fn()
	}
}

func (c *WS) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		if frame.Seq != 0 {
			c.deliverAck(frame)
			continue
		}
		if frame.Event != "" && c.onPush != nil {
			// Inline dispatch preserves per-linkman push ordering.
			c.onPush(frame.Event, frame.Data)
		}
	}
}

func (c *WS) deliverAck(frame proto.Frame) {
	c.mu.Lock()
	ack, ok := c.pending[frame.Seq]
	if ok {
		delete(c.pending, frame.Seq)
	}
	c.mu.Unlock()
	if ok {
		ack <- frame
	}
}

func (c *WS) dropPending(seq uint64) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

func (c *WS) write(ctx context.Context, conn *websocket.Conn, frame proto.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}
	return wsjson.Write(ctx, conn, frame)
}

// seal short-circuits outbound emits for the configured cooldown. Entered
// when the hub acknowledges with the mute sentinel.
func (c *WS) seal() {
	c.mu.Lock()
	c.sealedUntil = time.Now().Add(c.cfg.SealCooldown)
	c.mu.Unlock()
	c.log.Warn().Dur("cooldown", c.cfg.SealCooldown).Msg("muted by hub, sealing outbound sends")
}
