package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned when the backend rejects username/password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAuthUnavailable is returned when the backend cannot be reached or answers garbage.
	ErrAuthUnavailable = errors.New("authentication backend unavailable")
)

// AuthOptions are the collaborators shared by every AuthService.
type AuthOptions struct {
	Lifetime time.Duration
	Clock    Clock
	Notifier LogoutNotifier
	Logger   *zap.Logger
}

func (o AuthOptions) withDefaults() AuthOptions {
	if o.Lifetime <= 0 {
		o.Lifetime = DefaultSessionLifetime
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Notifier == nil {
		o.Notifier = NopLogoutNotifier{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// AuthService owns the session state of one browsing context. It is the only writer of its
// SessionStore.
type AuthService struct {
	store  SessionStore
	remote RemoteAuth
	opts   AuthOptions
}

func NewAuthService(store SessionStore, remote RemoteAuth, opts AuthOptions) *AuthService {
	return &AuthService{store: store, remote: remote, opts: opts.withDefaults()}
}

// Login authenticates against the backend and, on success, replaces the stored session.
// On failure the store is left untouched.
func (a *AuthService) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return ErrInvalidCredentials
	}

	token, err := a.remote.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			a.opts.Logger.Info("login rejected", zap.String("username", username))
		} else {
			a.opts.Logger.Warn("login failed", zap.String("username", username), zap.Error(err))
		}
		return err
	}

	record := SessionRecord{
		Token:     token,
		Username:  username,
		ExpiresAt: a.opts.Clock.Now().Add(a.opts.Lifetime),
	}
	if err := a.store.Write(record); err != nil {
		a.opts.Logger.Error("persist session failed", zap.String("username", username), zap.Error(err))
		return fmt.Errorf("persist session: %w", err)
	}
	a.opts.Logger.Info("login succeeded", zap.String("username", username), zap.Time("expires_at", record.ExpiresAt))
	return nil
}

// Logout clears the local session unconditionally. Remote invalidation is handed to the
// notifier and never affects the outcome.
func (a *AuthService) Logout() {
	record, had := a.store.Read()
	if err := a.store.Clear(); err != nil {
		a.opts.Logger.Warn("clear session failed", zap.Error(err))
	}
	if had {
		a.opts.Notifier.NotifyLogout(record)
		a.opts.Logger.Info("logged out", zap.String("username", record.Username))
	}
}

// IsAuthenticated checks the local record only. An expired record is logged out as a side effect.
func (a *AuthService) IsAuthenticated() bool {
	record, ok := a.store.Read()
	if !ok {
		return false
	}
	if record.Expired(a.opts.Clock.Now()) {
		a.opts.Logger.Info("session expired", zap.String("username", record.Username), zap.Time("expires_at", record.ExpiresAt))
		a.Logout()
		return false
	}
	return true
}

// Current returns a snapshot of the session when authenticated.
func (a *AuthService) Current() (SessionRecord, bool) {
	if !a.IsAuthenticated() {
		return SessionRecord{}, false
	}
	return a.store.Read()
}

// Revalidate asks the backend whether the stored token is still accepted. A rejected token
// logs out; a transport error leaves the session alone and is returned.
func (a *AuthService) Revalidate(ctx context.Context) (bool, error) {
	record, ok := a.Current()
	if !ok {
		return false, ErrNoSession
	}
	valid, err := a.remote.Validate(ctx, record.Token)
	if err != nil {
		a.opts.Logger.Warn("revalidate failed", zap.String("username", record.Username), zap.Error(err))
		return false, err
	}
	if !valid {
		a.opts.Logger.Info("token rejected by backend", zap.String("username", record.Username))
		a.Logout()
	}
	return valid, nil
}
