package device

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetdesk/fleetdesk-client/internal/listener"
)

// mockSource is a hand-written Source.
type mockSource struct {
	devices    []Record
	stats      Stats
	devicesErr error
	statsErr   error
	calls      int
}

func (m *mockSource) FetchDevices(context.Context) ([]Record, error) {
	m.calls++
	return m.devices, m.devicesErr
}

func (m *mockSource) FetchStats(context.Context) (Stats, error) {
	return m.stats, m.statsErr
}

func TestSyncer_DeviceUpdateScenario(t *testing.T) {
	c := NewCache()
	c.ReplaceAll([]Record{rec("d1", StatusOnline), rec("d2", StatusOnline)}, nil)
	s := NewSyncer(c, nil)

	reg := listener.NewRegistry()
	reg.Subscribe(s)
	reg.Notify(listener.Event{
		"type":      listener.TypeDeviceUpdate,
		"timestamp": "2026-10-19T10:00:00Z",
		"device_id": "d1",
		"status":    StatusOccupied,
	})

	d1, _ := c.Get("d1")
	if d1.Status() != StatusOccupied {
		t.Errorf("d1 status = %q, want occupied", d1.Status())
	}
	if _, has := d1["timestamp"]; has {
		t.Error("envelope field timestamp should not be merged")
	}
	if _, has := d1["type"]; has {
		t.Error("envelope field type should not be merged")
	}
	d2, _ := c.Get("d2")
	if d2.Status() != StatusOnline {
		t.Errorf("d2 status = %q, want unchanged", d2.Status())
	}
}

func TestSyncer_BroadcastWithoutIDRefreshes(t *testing.T) {
	c := NewCache()
	c.ReplaceAll([]Record{rec("d1", StatusOnline)}, nil)
	src := &mockSource{
		devices: []Record{rec("d1", StatusOffline), rec("d2", StatusOnline)},
		stats:   Stats{Total: 2, Online: 1, Offline: 1},
	}
	s := NewSyncer(c, src)

	err := s.HandleEvent(listener.Event{"type": listener.TypeDeviceUpdate, "timestamp": "2026-10-19T10:00:00Z"})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if src.calls != 1 {
		t.Errorf("FetchDevices calls = %d, want 1", src.calls)
	}
	if c.Len() != 2 || c.Stats().Total != 2 {
		t.Errorf("cache after refresh: len=%d stats=%+v", c.Len(), c.Stats())
	}
}

func TestSyncer_IgnoresOtherTypes(t *testing.T) {
	src := &mockSource{}
	s := NewSyncer(NewCache(), src)

	if err := s.HandleEvent(listener.Event{"type": "heartbeat"}); err != nil {
		t.Errorf("HandleEvent() error = %v", err)
	}
	if src.calls != 0 {
		t.Error("non device_update events should not trigger a refresh")
	}
}

func TestSyncer_RefreshErrorsLeaveCache(t *testing.T) {
	errFetch := errors.New("network down")

	tests := []struct {
		name string
		src  *mockSource
	}{
		{"devices error", &mockSource{devicesErr: errFetch}},
		{"stats error", &mockSource{devices: []Record{rec("x", StatusOnline)}, statsErr: errFetch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			c.ReplaceAll([]Record{rec("d1", StatusOnline)}, nil)

			err := NewSyncer(c, tt.src).Refresh(context.Background())
			if !errors.Is(err, errFetch) {
				t.Fatalf("Refresh() error = %v, want wrapped fetch error", err)
			}
			if _, err := c.Get("d1"); err != nil {
				t.Error("cache should be untouched after a failed refresh")
			}
		})
	}
}

func TestSyncer_NoSource(t *testing.T) {
	s := NewSyncer(NewCache(), nil)

	if err := s.Refresh(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("Refresh() error = %v, want ErrNoSource", err)
	}
	if err := s.HandleEvent(listener.Event{"type": listener.TypeDeviceUpdate}); err != nil {
		t.Errorf("HandleEvent() without source error = %v, want nil", err)
	}
}
