// Package mqtt provides a publish-only MQTT connection for the FleetDesk client.
//
// When enabled, device update events received on the realtime channel are
// republished to the broker so that dashboards and scripts on the
// operator's network can follow the fleet without holding a session.
//
// # Topics
//
//	{prefix}/device/{device_id}/update   per-device updates
//	{prefix}/device/update               updates that name no device
//	{prefix}/client/{client_id}/status   retained online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic, err := client.Topics().DeviceUpdate("dev-001")
//	err = client.PublishJSON(topic, event, false)
package mqtt
