package relay

import (
	"github.com/fleetdesk/fleetdesk-client/internal/device"
)

// Measurement names written by StatsExporter.
const (
	MeasurementFleetStats = "fleet_stats"
	MeasurementTypeCount  = "fleet_type_count"
)

// PointWriter is the part of the InfluxDB client the exporter needs.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// StatsExporter writes statistics snapshots as time-series points.
type StatsExporter struct {
	w    PointWriter
	tags map[string]string
}

// NewStatsExporter creates an exporter. origin identifies the fleet server
// the numbers came from and is written as the "origin" tag.
func NewStatsExporter(w PointWriter, origin string) *StatsExporter {
	tags := map[string]string{}
	if origin != "" {
		tags["origin"] = origin
	}
	return &StatsExporter{w: w, tags: tags}
}

// Export writes one snapshot. Pass it to device.Cache.OnStatsReplaced.
//
// Writes are batched by the client and never block.
func (e *StatsExporter) Export(stats device.Stats) {
	e.w.WritePoint(MeasurementFleetStats, e.tagsWith(nil), map[string]any{
		"total_devices":    stats.Total,
		"online_devices":   stats.Online,
		"occupied_devices": stats.Occupied,
		"offline_devices":  stats.Offline,
	})

	for deviceType, n := range stats.ByType {
		e.w.WritePoint(MeasurementTypeCount, e.tagsWith(map[string]string{"device_type": deviceType}), map[string]any{
			"count": n,
		})
	}
}

// tagsWith returns a fresh tag map; the client keeps references to it.
func (e *StatsExporter) tagsWith(extra map[string]string) map[string]string {
	tags := make(map[string]string, len(e.tags)+len(extra))
	for k, v := range e.tags {
		tags[k] = v
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}
