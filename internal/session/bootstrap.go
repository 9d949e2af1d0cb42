package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/asima2006/fiora-sync/internal/auth"
	"github.com/asima2006/fiora-sync/internal/proto"
	"github.com/asima2006/fiora-sync/internal/store"
)

// Emitter is the slice of the channel the bootstrapper needs.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) (json.RawMessage, error)
}

// Bootstrapper resumes or provisions a session on every connect. It runs in
// full each time: after a reconnect no missed event is assumed recoverable
// without a resync.
type Bootstrapper struct {
	session   *Session
	emitter   Emitter
	token     func() string
	saveToken func(string)
	deviceID  string
	log       *zerolog.Logger
}

// NewBootstrapper wires a bootstrapper. token supplies the stored resume
// token (may return empty); saveToken persists a refreshed one (may be nil).
func NewBootstrapper(s *Session, e Emitter, token func() string, saveToken func(string), deviceID string, logger *zerolog.Logger) *Bootstrapper {
	if token == nil {
		token = func() string { return "" }
	}
	return &Bootstrapper{session: s, emitter: e, token: token, saveToken: saveToken, deviceID: deviceID, log: logger}
}

// Run performs the full bootstrap: token resume with guest fallback, one
// batched last-messages fetch for the whole roster, then a single atomic
// store populate. A failed resume is not fatal; it degrades to guest mode.
func (b *Bootstrapper) Run(ctx context.Context) error {
	user, resumed, err := b.authenticate(ctx)
	if err != nil {
		return err
	}
	via := "token"
	if !resumed {
		via = "guest"
		b.log.Info().Str("username", user.Username).Msg("continuing as guest")
	}
	return b.establish(ctx, user, via)
}

// Login authenticates with credentials and replaces the current identity,
// guest or otherwise. The refreshed token is persisted so later connects
// resume this account.
func (b *Bootstrapper) Login(ctx context.Context, username, password string) error {
	raw, err := b.emitter.Emit(ctx, proto.EventLogin, proto.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	user, err := decodeUser(raw)
	if err != nil {
		return err
	}
	return b.establish(ctx, user, "login")
}

// Register creates an account on the hub and starts the session with it.
func (b *Bootstrapper) Register(ctx context.Context, username, password string) error {
	raw, err := b.emitter.Emit(ctx, proto.EventRegister, proto.RegisterRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	user, err := decodeUser(raw)
	if err != nil {
		return err
	}
	return b.establish(ctx, user, "register")
}

// establish finishes session setup for an authenticated user: token
// persistence, the batched last-messages fetch, one atomic populate.
func (b *Bootstrapper) establish(ctx context.Context, user *proto.User, via string) error {
	if user.Token != "" && b.saveToken != nil {
		b.saveToken(user.Token)
	}

	roster := RosterFromWire(*user)
	histories, err := b.fetchLastMessages(ctx, roster)
	if err != nil {
		return err
	}

	b.session.Apply(func(st *store.State) {
		st.Populate(store.User{
			ID:       user.ID,
			Username: user.Username,
			Avatar:   user.Avatar,
			Tag:      user.Tag,
			IsAdmin:  user.IsAdmin,
		}, roster, histories)
		st.SetConnected(true)
	})

	b.log.Info().
		Str("user_id", user.ID).
		Int("linkmans", len(roster)).
		Str("via", via).
		Msg("session established")
	return nil
}

// authenticate attempts a token resume and falls back to guest
// provisioning. Only a failed guest call is an error.
func (b *Bootstrapper) authenticate(ctx context.Context) (*proto.User, bool, error) {
	token := b.token()
	if err := auth.Usable(token); err == nil {
		raw, err := b.emitter.Emit(ctx, proto.EventLoginByToken, proto.LoginByTokenRequest{Token: token})
		if err == nil {
			user, decodeErr := decodeUser(raw)
			if decodeErr == nil {
				return user, true, nil
			}
			err = decodeErr
		}
		b.log.Warn().Err(err).Msg("token resume failed, falling back to guest")
	} else if token != "" {
		b.log.Debug().Err(err).Msg("stored token unusable, skipping resume")
	}

	raw, err := b.emitter.Emit(ctx, proto.EventGuest, proto.GuestRequest{DeviceID: b.deviceID})
	if err != nil {
		return nil, false, fmt.Errorf("guest provisioning: %w", err)
	}
	user, err := decodeUser(raw)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// fetchLastMessages issues the single batched call for the roster's newest
// messages and unread counts.
func (b *Bootstrapper) fetchLastMessages(ctx context.Context, roster []store.RosterEntry) (map[string]store.HistorySeed, error) {
	if len(roster) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(roster))
	for _, entry := range roster {
		if entry.Type != store.LinkmanCommunity {
			ids = append(ids, entry.ID)
		}
	}

	raw, err := b.emitter.Emit(ctx, proto.EventGetLinkmansLastMessagesV2, proto.LastMessagesRequest{Linkmans: ids})
	if err != nil {
		return nil, fmt.Errorf("batched last messages: %w", err)
	}
	var resp proto.LastMessagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode last messages: %w", err)
	}

	histories := make(map[string]store.HistorySeed, len(resp))
	for id, entry := range resp {
		histories[id] = store.HistorySeed{
			Messages: MessagesFromWire(entry.Messages),
			Unread:   entry.Unread,
		}
	}
	return histories, nil
}

func decodeUser(raw json.RawMessage) (*proto.User, error) {
	var user proto.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("session payload missing user id")
	}
	return &user, nil
}
