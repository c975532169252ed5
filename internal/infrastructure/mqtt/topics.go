package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "fleetdesk"

// Topics builds relay topic names under a common prefix.
//
//	topics := mqtt.NewTopics("fleetdesk")
//	topic, err := topics.DeviceUpdate("dev-001") // "fleetdesk/device/dev-001/update"
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the normalised prefix.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// DeviceUpdate returns the topic for a single device's update events.
// Device IDs come from the fleet server; one that cannot stand as a single
// topic level is rejected with ErrInvalidTopicLevel.
//
// Example: fleetdesk/device/dev-001/update
func (t Topics) DeviceUpdate(deviceID string) (string, error) {
	if err := ValidateTopicLevel(deviceID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/device/%s/update", t.Prefix(), deviceID), nil
}

// FleetUpdate returns the topic for update events that name no device.
//
// Example: fleetdesk/device/update
func (t Topics) FleetUpdate() string {
	return t.Prefix() + "/device/update"
}

// AllDeviceUpdates returns a wildcard matching every per-device update topic.
//
// Example: fleetdesk/device/+/update
func (t Topics) AllDeviceUpdates() string {
	return t.Prefix() + "/device/+/update"
}

// ClientStatus returns the retained online/offline topic for a relay client.
//
// Example: fleetdesk/client/fleetdesk-client/status
func (t Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/client/%s/status", t.Prefix(), clientID)
}

// ValidateTopicLevel checks that level can be used as one topic level:
// non-empty, with no separator, wildcard or NUL.
func ValidateTopicLevel(level string) error {
	if level == "" || strings.ContainsAny(level, "/+#\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTopicLevel, level)
	}
	return nil
}
