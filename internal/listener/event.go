// Package listener fans realtime events out to registered observers.
//
// Listeners run synchronously, in subscription order, on the goroutine
// that calls Notify. A listener that returns an error or panics is logged
// and skipped; later listeners still receive the event.
package listener

// TypeDeviceUpdate is the only event type the realtime channel forwards.
const TypeDeviceUpdate = "device_update"

// Event is a decoded inbound message. It is passed to listeners as-is.
type Event map[string]any

// Type returns the "type" field, or "" when missing or not a string.
func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}

// DeviceID returns the "device_id" field, or "" when missing or not a string.
func (e Event) DeviceID() string {
	s, _ := e["device_id"].(string)
	return s
}

// Listener observes events.
type Listener interface {
	HandleEvent(ev Event) error
}

// Func adapts a function to the Listener interface.
type Func func(ev Event) error

// HandleEvent calls f(ev).
func (f Func) HandleEvent(ev Event) error {
	return f(ev)
}
