package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fleetdesk/fleetdesk-client/internal/kvstore"
)

var errStorage = errors.New("disk full")

// faultyKV wraps a Memory store and fails selected operations.
type faultyKV struct {
	*kvstore.Memory
	failGet    bool
	failSet    bool
	failRemove bool
}

func (f *faultyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errStorage
	}
	return f.Memory.Get(ctx, key)
}

func (f *faultyKV) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errStorage
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *faultyKV) Remove(ctx context.Context, key string) error {
	if f.failRemove {
		return errStorage
	}
	return f.Memory.Remove(ctx, key)
}

func testUser() User {
	return User{
		ID:        7,
		Username:  "alice",
		Email:     "alice@example.com",
		Role:      "admin",
		IsActive:  true,
		CreatedAt: "2026-01-02T03:04:05",
	}
}

func TestSetSession_RestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	if err := New(kv).SetSession(ctx, "tok-1", testUser()); err != nil {
		t.Fatalf("SetSession() error = %v", err)
	}

	fresh := New(kv)
	fresh.Restore(ctx)

	if got := fresh.Token(); got != "tok-1" {
		t.Errorf("Token() = %q, want %q", got, "tok-1")
	}
	user, ok := fresh.User()
	if !ok {
		t.Fatal("User() reported absent after Restore")
	}
	if user != testUser() {
		t.Errorf("User() = %+v, want %+v", user, testUser())
	}
	if !fresh.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after Restore")
	}
}

func TestRestore_CorruptUserKeepsToken(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	_ = kv.Set(ctx, KeyToken, "tok-1")
	_ = kv.Set(ctx, KeyUser, "{not json")

	s := New(kv)
	s.Restore(ctx)

	if got := s.Token(); got != "tok-1" {
		t.Errorf("Token() = %q, want token kept", got)
	}
	if _, ok := s.User(); ok {
		t.Error("User() should be absent for a corrupt profile")
	}
	if _, ok, _ := kv.Get(ctx, KeyUser); ok {
		t.Error("corrupt profile should be removed from storage")
	}
}

func TestRestore_Empty(t *testing.T) {
	s := New(kvstore.NewMemory())
	s.Restore(context.Background())

	if s.IsAuthenticated() {
		t.Error("IsAuthenticated() = true with empty storage")
	}
	if snap := s.Snapshot(); snap.Authenticated() || snap.User != nil {
		t.Errorf("Snapshot() = %+v, want empty", snap)
	}
}

func TestRestore_StorageErrorTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	kv := &faultyKV{Memory: kvstore.NewMemory()}
	_ = kv.Memory.Set(ctx, KeyToken, "tok-1")
	kv.failGet = true

	s := New(kv)
	s.Restore(ctx)

	if s.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after failed read")
	}
}

func TestUser_AbsentWithoutToken(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	_ = kv.Set(ctx, KeyUser, `{"id":1,"username":"bob"}`)

	s := New(kv)
	s.Restore(ctx)

	if _, ok := s.User(); ok {
		t.Error("User() should be absent when no token is stored")
	}
	if snap := s.Snapshot(); snap.User != nil {
		t.Error("Snapshot().User should be nil when no token is stored")
	}
}

func TestSetSession_EmptyToken(t *testing.T) {
	s := New(kvstore.NewMemory())
	if err := s.SetSession(context.Background(), "", testUser()); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("SetSession(\"\") error = %v, want ErrEmptyToken", err)
	}
}

func TestSetSession_PersistFailureStillUpdatesMemory(t *testing.T) {
	kv := &faultyKV{Memory: kvstore.NewMemory(), failSet: true}
	s := New(kv)

	err := s.SetSession(context.Background(), "tok-1", testUser())
	if !errors.Is(err, errStorage) {
		t.Fatalf("SetSession() error = %v, want wrapped storage error", err)
	}
	if s.Token() != "tok-1" {
		t.Error("in-memory token should be replaced even when persistence fails")
	}
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s := New(kv)

	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession() on empty store error = %v", err)
	}

	if err := s.SetSession(ctx, "tok-1", testUser()); err != nil {
		t.Fatalf("SetSession() error = %v", err)
	}
	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}

	if s.IsAuthenticated() {
		t.Error("IsAuthenticated() = true after ClearSession")
	}
	if kv.Len() != 0 {
		t.Errorf("storage holds %d keys after ClearSession, want 0", kv.Len())
	}

	fresh := New(kv)
	fresh.Restore(ctx)
	if fresh.IsAuthenticated() {
		t.Error("cleared session came back after Restore")
	}
}

func TestClearSession_StorageErrorStillClearsMemory(t *testing.T) {
	ctx := context.Background()
	kv := &faultyKV{Memory: kvstore.NewMemory()}
	s := New(kv)
	_ = s.SetSession(ctx, "tok-1", testUser())

	kv.failRemove = true
	if err := s.ClearSession(ctx); !errors.Is(err, errStorage) {
		t.Errorf("ClearSession() error = %v, want wrapped storage error", err)
	}
	if s.IsAuthenticated() {
		t.Error("memory should be cleared even when storage fails")
	}
}

func TestUser_ReturnsCopy(t *testing.T) {
	s := New(kvstore.NewMemory())
	_ = s.SetSession(context.Background(), "tok-1", testUser())

	u, _ := s.User()
	u.Username = "mallory"

	again, _ := s.User()
	if again.Username != "alice" {
		t.Error("mutating the returned user changed the store")
	}
}

func TestParseExpiry(t *testing.T) {
	exp := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	}).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
	}).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	tests := []struct {
		name      string
		token     string
		wantKnown bool
	}{
		{"jwt with exp", signed, true},
		{"jwt without exp", noExp, false},
		{"opaque token", "not-a-jwt", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExpiry(tt.token)
			if got.Known != tt.wantKnown {
				t.Fatalf("Known = %v, want %v", got.Known, tt.wantKnown)
			}
			if tt.wantKnown && !got.At.Equal(exp) {
				t.Errorf("At = %v, want %v", got.At, exp)
			}
		})
	}

	if !ParseExpiry(signed).Expired(exp.Add(time.Second)) {
		t.Error("Expired() = false after exp")
	}
	if ParseExpiry(signed).Expired(exp.Add(-time.Second)) {
		t.Error("Expired() = true before exp")
	}
}
