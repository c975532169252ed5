// Package fleetapi is the HTTP client for the fleet server.
//
// Authentication endpoints live at the server root (/auth/...); device
// endpoints live under the API prefix (default /api). Every device call
// carries the session's bearer token.
//
// # Session coupling
//
// A 401 from an authenticated device call means the server no longer
// accepts the session. The client then clears the session and runs the
// OnUnauthorized hook (the console uses it to disconnect the realtime
// channel and send the user to the login view) before returning
// ErrUnauthorized. A 401 from Login means bad credentials and leaves the
// session untouched.
package fleetapi
