// Package realtime manages the client's push channel to the fleet server.
//
// A Manager holds at most one WebSocket connection. It connects only while
// the session holds a token, forwards device_update messages to a
// Notifier (the listener registry), and reconnects after a fixed delay
// when the connection drops.
//
// # State machine
//
//	Closed --Connect--> Connecting --dial ok--> Open
//	Connecting --dial error--> Closed (reconnect scheduled)
//	Open --server close / network error--> Closed (reconnect scheduled)
//	Open --Disconnect--> Closing --> Closed (no reconnect)
//
// The reconnect delay is fixed (5s by default), not exponential. When the
// timer fires the manager connects only if a token is still present.
//
// # Endpoint
//
// The endpoint is the configured base URL with its scheme mapped
// http->ws and https->wss and its path replaced by the channel path
// (default "/ws"). The handshake carries "Authorization: Bearer <token>".
//
// # Concurrency
//
// Messages are read and delivered on one goroutine per connection, so
// listeners see them in receive order. No lock is held while listeners
// run; they may call Disconnect.
package realtime
