package device

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetdesk/fleetdesk-client/internal/listener"
)

// defaultRefreshTimeout bounds a refresh triggered by an event.
const defaultRefreshTimeout = 10 * time.Second

// Source fetches the authoritative collection and statistics.
type Source interface {
	FetchDevices(ctx context.Context) ([]Record, error)
	FetchStats(ctx context.Context) (Stats, error)
}

// envelopeKeys are event fields that describe the message, not the device.
var envelopeKeys = map[string]bool{
	"type":      true,
	"timestamp": true,
}

// Syncer keeps a Cache consistent with realtime events.
//
// A device_update naming a device_id is merged into that record. One that
// names no device signals that something changed server-side, so the whole
// collection and the stats are re-fetched from the Source.
type Syncer struct {
	cache          *Cache
	source         Source
	refreshTimeout time.Duration
	logger         Logger
}

// NewSyncer creates a Syncer. source may be nil, in which case events
// without a device_id are ignored.
func NewSyncer(cache *Cache, source Source) *Syncer {
	return &Syncer{
		cache:          cache,
		source:         source,
		refreshTimeout: defaultRefreshTimeout,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the syncer.
func (s *Syncer) SetLogger(logger Logger) {
	s.logger = logger
}

// HandleEvent applies ev to the cache.
func (s *Syncer) HandleEvent(ev listener.Event) error {
	if ev.Type() != listener.TypeDeviceUpdate {
		return nil
	}

	id := ev.DeviceID()
	if id == "" {
		if s.source == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()
		return s.Refresh(ctx)
	}

	patch := make(map[string]any, len(ev))
	for k, v := range ev {
		if envelopeKeys[k] {
			continue
		}
		patch[k] = v
	}

	if !s.cache.MergeOne(id, patch) {
		s.logger.Debug("device update for unknown device ignored", "device_id", id)
	}
	return nil
}

// Refresh re-fetches the collection and stats and replaces the cache
// contents. On any fetch error the cache is left untouched.
func (s *Syncer) Refresh(ctx context.Context) error {
	if s.source == nil {
		return ErrNoSource
	}

	records, err := s.source.FetchDevices(ctx)
	if err != nil {
		return fmt.Errorf("refreshing devices: %w", err)
	}
	stats, err := s.source.FetchStats(ctx)
	if err != nil {
		return fmt.Errorf("refreshing stats: %w", err)
	}

	s.cache.ReplaceAll(records, &stats)
	s.logger.Info("device cache refreshed", "count", s.cache.Len())
	return nil
}
