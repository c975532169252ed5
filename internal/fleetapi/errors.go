package fleetapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for fleet API calls.
var (
	// ErrUnauthorized is returned when the server rejects the session.
	ErrUnauthorized = errors.New("fleetapi: session rejected")

	// ErrInvalidCredentials is returned by Login on a 401.
	ErrInvalidCredentials = errors.New("fleetapi: invalid username or password")

	// ErrNotFound is returned for a 404.
	ErrNotFound = errors.New("fleetapi: not found")

	// ErrInvalidDeviceID is returned when a device ID is empty.
	ErrInvalidDeviceID = errors.New("fleetapi: device id cannot be empty")
)

// StatusError is a non-2xx response. Detail is the server's "detail"
// message when it sent one.
type StatusError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("fleetapi: %s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("fleetapi: %s %s: HTTP %d", e.Method, e.Path, e.Status)
}
