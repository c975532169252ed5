// Package console serves the local FleetDesk console over HTTP.
//
// The console is the router collaborator of the session engine: every view
// is looked up in the access route table and entered only when
// access.Check allows it. Denied views answer 303 See Other with the
// redirect target, so a signed-out user lands on /login and a signed-in
// user who opens /login lands on /devices.
//
// Views render JSON built from the device cache and the session store.
// Mutations (occupy, release, update, scan) go to the fleet server and are
// followed by a cache refresh. The /events websocket re-broadcasts the
// realtime events the client receives, plus every new stats snapshot, to
// local subscribers.
//
// Lifecycle:
//
//	srv, err := console.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package console
