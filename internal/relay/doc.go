// Package relay forwards what the client learns from the fleet server to
// site infrastructure.
//
// Two relays exist:
//
//   - MQTTPublisher is a listener.Listener. It republishes every
//     device_update event on the MQTT broker so other site tools can react
//     without holding their own session. Per-device events go to
//     {prefix}/device/{device_id}/update; broadcasts that name no device go
//     to {prefix}/device/update.
//   - StatsExporter is hooked to device.Cache.OnStatsReplaced and writes each
//     statistics snapshot to InfluxDB as a fleet_stats point plus one
//     fleet_type_count point per device type.
//
// Both are optional. The composition root wires them only when the matching
// config section is enabled, and neither can block or fail event delivery.
package relay
