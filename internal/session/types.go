package session

import "time"

// Storage keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// User is the signed-in user's profile as returned by /auth/me.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == "admin"
}

// Snapshot is a consistent copy of the session at one instant.
type Snapshot struct {
	Token string
	User  *User
}

// Authenticated reports whether the snapshot carries a token.
func (s Snapshot) Authenticated() bool {
	return s.Token != ""
}

// Expiry is the best-effort expiry of a session token.
type Expiry struct {
	// At is the exp claim; zero when the token has none.
	At time.Time
	// Known is false when the token is not a JWT or carries no exp claim.
	Known bool
}

// Expired reports whether the expiry is known and in the past relative to now.
func (e Expiry) Expired(now time.Time) bool {
	return e.Known && !now.Before(e.At)
}
