package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetdesk/fleetdesk-client/internal/kvstore"
)

// ErrEmptyToken is returned by SetSession when the token is empty.
var ErrEmptyToken = errors.New("session: token cannot be empty")

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store holds the current session and persists it through a kvstore.Store.
type Store struct {
	kv     kvstore.Store
	logger Logger

	mu    sync.RWMutex
	token string
	user  *User
}

// New creates an empty store over kv. Call Restore to load persisted state.
func New(kv kvstore.Store) *Store {
	return &Store{
		kv:     kv,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Restore loads the persisted session into memory, replacing whatever is
// held. It never fails; see the package documentation for recovery rules.
func (s *Store) Restore(ctx context.Context) {
	token, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		s.logger.Warn("reading stored token failed, treating as absent", "error", err)
		token, ok = "", false
	}
	if !ok {
		token = ""
	}

	user := s.restoreUser(ctx)

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()

	if token != "" {
		s.logger.Info("session restored", "user", usernameOf(user))
	}
}

// restoreUser reads and decodes the stored profile. A profile that does not
// decode is removed from storage.
func (s *Store) restoreUser(ctx context.Context) *User {
	raw, ok, err := s.kv.Get(ctx, KeyUser)
	if err != nil {
		s.logger.Warn("reading stored user failed, treating as absent", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn("stored user profile is corrupt, discarding", "error", err)
		if err := s.kv.Remove(ctx, KeyUser); err != nil {
			s.logger.Error("removing corrupt user profile failed", "error", err)
		}
		return nil
	}
	return &user
}

// SetSession replaces the session in memory and in storage.
//
// Memory is replaced before storage is written, so a persistence error
// leaves the in-memory session updated; the error is returned so the
// caller can report that the session will not survive a restart.
func (s *Store) SetSession(ctx context.Context, token string, user User) error {
	if token == "" {
		return ErrEmptyToken
	}

	u := user
	s.mu.Lock()
	s.token = token
	s.user = &u
	s.mu.Unlock()

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}
	if err := s.kv.Set(ctx, KeyUser, string(raw)); err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}

	s.logger.Info("session established", "user", user.Username)
	return nil
}

// ClearSession removes the session from memory and storage. Memory is
// always cleared; storage errors are joined and returned. Clearing an
// empty session is a no-op.
func (s *Store) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	had := s.token != "" || s.user != nil
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	errToken := s.kv.Remove(ctx, KeyToken)
	errUser := s.kv.Remove(ctx, KeyUser)

	if had {
		s.logger.Info("session cleared")
	}
	if err := errors.Join(errToken, errUser); err != nil {
		return fmt.Errorf("clearing stored session: %w", err)
	}
	return nil
}

// Token returns the current token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the current profile. ok is false when there is no
// token or no profile.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// IsAuthenticated reports whether a token is held.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Snapshot returns token and user read under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Token: s.token}
	if s.token != "" && s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// TokenExpiry reads the exp claim of the current token without verifying
// its signature. The client never holds the signing key; the server stays
// the authority and this is used only for display and logging.
func (s *Store) TokenExpiry() Expiry {
	return ParseExpiry(s.Token())
}

// ParseExpiry extracts the exp claim from an unverified JWT.
func ParseExpiry(token string) Expiry {
	if token == "" {
		return Expiry{}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Expiry{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Expiry{}
	}
	return Expiry{At: exp.Time, Known: true}
}

func usernameOf(u *User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
