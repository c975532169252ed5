// Package device holds the client's local view of the device fleet.
//
// The Cache keeps an ordered collection of device records and the latest
// fleet statistics. It is filled wholesale from HTTP fetches (ReplaceAll)
// and patched in place from realtime events (MergeOne). The Syncer is the
// listener that connects the realtime channel to the cache.
//
// # Records
//
// A record is the device object exactly as the server sends it, keyed by
// JSON field name. Identity is the "device_id" field; every other field may
// be replaced by a merge. Known fields include device_type, name, model,
// status, group_name, tags, connection_info, last_seen, occupied_by,
// occupied_at and user.
//
// # Invariants
//
//   - At most one record per device_id.
//   - MergeOne never changes the collection length; only ReplaceAll does.
//   - Readers receive deep copies, so they never race with later merges.
package device
