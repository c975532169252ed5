// Package session owns the authenticated session of the FleetDesk client.
//
// A session is a bearer token plus the signed-in user's profile. Both are
// held in memory for fast reads and mirrored to a kvstore.Store under the
// keys "token" and "user" so a restart resumes the same session.
//
// The user profile is only meaningful while a token is present: User()
// reports absent when the token is empty, even if a profile is stored.
//
// # Recovery
//
// Restore never fails. A stored profile that does not decode is removed
// from storage and treated as absent while the token is kept; storage read
// errors are logged and treated as absent state.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package session
