package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/database"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"go.uber.org/zap"
)

const authKey = "auth"

var (
	errMissingStore = errors.New("session: store is required")
	errMissingToken = errors.New("session: token is required")
)

// AuthData is the persisted login state.
type AuthData struct {
	Token     string        `json:"token"`
	User      users.Profile `json:"user"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// Config describes the dependencies of a Session.
type Config struct {
	Store  *Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Session holds the bearer token and profile of the signed-in operator.
type Session struct {
	mu     sync.RWMutex
	store  *Store
	clock  func() time.Time
	logger *zap.Logger
	auth   *AuthData
}

// New restores the session persisted in the store, if any.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	session := &Session{store: cfg.Store, clock: clock, logger: logger}

	var stored AuthData
	found, err := cfg.Store.Get(ctx, authKey, &stored)
	if err != nil {
		return nil, err
	}
	if found && strings.TrimSpace(stored.Token) != "" {
		session.auth = &stored
	}
	return session, nil
}

// Open connects to the SQLite file at path and restores the session stored there.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Session, error) {
	db, err := database.Connect(path)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	return New(ctx, Config{Store: store, Logger: logger})
}

// Save persists a freshly issued token. A non-positive expiresIn stores a token without expiry.
func (s *Session) Save(ctx context.Context, token string, expiresIn int64, user users.Profile) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return errMissingToken
	}
	auth := AuthData{Token: trimmed, User: user}
	if expiresIn > 0 {
		auth.ExpiresAt = s.clock().UTC().Add(time.Duration(expiresIn) * time.Second)
	}
	if err := s.store.Set(ctx, authKey, auth); err != nil {
		return err
	}

	s.mu.Lock()
	s.auth = &auth
	s.mu.Unlock()
	s.logger.Debug("session saved", zap.String("user_id", user.ID))
	return nil
}

// IsAuthenticated reports whether a token is present and has not expired.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.auth == nil || s.auth.Token == "" {
		return false
	}
	return s.auth.ExpiresAt.IsZero() || s.clock().Before(s.auth.ExpiresAt)
}

// Token returns the bearer token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.auth == nil {
		return ""
	}
	return s.auth.Token
}

// CurrentUser returns the profile stored with the token.
func (s *Session) CurrentUser() (users.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.auth == nil {
		return users.Profile{}, false
	}
	return s.auth.User, true
}

// SetUser refreshes the stored profile without touching the token.
func (s *Session) SetUser(ctx context.Context, user users.Profile) error {
	s.mu.Lock()
	if s.auth == nil {
		s.mu.Unlock()
		return errMissingToken
	}
	updated := *s.auth
	updated.User = user
	s.auth = &updated
	s.mu.Unlock()
	return s.store.Set(ctx, authKey, updated)
}

// Invalidate forgets the token and profile. Removal failures are logged; the in-memory state is cleared regardless.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.auth = nil
	s.mu.Unlock()
	if err := s.store.Remove(context.Background(), authKey); err != nil {
		s.logger.Warn("failed to remove stored session", zap.Error(err))
	}
}

// Logout ends the session; purge additionally clears every stored dashboard key.
func (s *Session) Logout(ctx context.Context, purge bool) error {
	s.mu.Lock()
	s.auth = nil
	s.mu.Unlock()
	if purge {
		return s.store.ClearAll(ctx)
	}
	return s.store.Remove(ctx, authKey)
}

// Close releases the backing store.
func (s *Session) Close() error {
	return s.store.Close()
}
