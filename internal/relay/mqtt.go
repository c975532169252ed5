package relay

import (
	"fmt"
	"sync"

	"github.com/fleetdesk/fleetdesk-client/internal/listener"
)

// Logger defines the logging interface used by relays.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher is the part of the MQTT client the relay needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// TopicBuilder names relay topics. mqtt.Topics satisfies it.
type TopicBuilder interface {
	DeviceUpdate(deviceID string) (string, error)
	FleetUpdate() string
}

// MQTTPublisher republishes device_update events on the broker.
type MQTTPublisher struct {
	pub    Publisher
	topics TopicBuilder

	mu        sync.Mutex
	published uint64
	skipped   uint64

	logger Logger
}

// NewMQTTPublisher creates a relay publishing through pub under topics.
func NewMQTTPublisher(pub Publisher, topics TopicBuilder) *MQTTPublisher {
	return &MQTTPublisher{
		pub:    pub,
		topics: topics,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the relay.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// HandleEvent implements listener.Listener.
//
// Events are published unretained: they describe a change, not a state.
// While the broker is unreachable events are dropped; the cache stays the
// source of truth and nothing is queued.
func (p *MQTTPublisher) HandleEvent(ev listener.Event) error {
	if ev.Type() != listener.TypeDeviceUpdate {
		return nil
	}

	if !p.pub.IsConnected() {
		p.count(false)
		p.logger.Debug("mqtt relay offline, dropping event", "device_id", ev.DeviceID())
		return nil
	}

	topic := p.topics.FleetUpdate()
	if id := ev.DeviceID(); id != "" {
		var err error
		if topic, err = p.topics.DeviceUpdate(id); err != nil {
			p.count(false)
			return fmt.Errorf("relaying device %q: %w", id, err)
		}
	}

	if err := p.pub.PublishJSON(topic, map[string]any(ev), false); err != nil {
		p.count(false)
		return fmt.Errorf("relaying to %s: %w", topic, err)
	}
	p.count(true)
	return nil
}

func (p *MQTTPublisher) count(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.published++
	} else {
		p.skipped++
	}
}

// Counts returns how many events were published and how many were dropped.
func (p *MQTTPublisher) Counts() (published, skipped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.skipped
}
