package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when a device ID is not in the cache.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrNoSource is returned by Refresh when the Syncer has no data source.
	ErrNoSource = errors.New("device: no data source configured")
)
