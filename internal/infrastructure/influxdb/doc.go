// Package influxdb provides InfluxDB connectivity for the FleetDesk client.
//
// It wraps the official influxdb-client-go v2 library. When enabled, the
// client records a point each time fleet statistics are replaced, so an
// operator can chart fleet availability over time.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("fleet_stats", tags, fields)
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
