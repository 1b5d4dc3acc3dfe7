// Package mqtt publishes the device model onto an MQTT broker and accepts
// write commands from it.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained entity state and device availability topics
//   - Momentary event topics (key presses, impulses, device errors)
//   - A command topic for writing parameter values
//   - Last Will and Testament (LWT) for offline detection
//
// # Topic layout
//
// All topics live under the configured prefix (default "hmcore"):
//
//	{prefix}/status                                  service status, retained
//	{prefix}/entity/{unique_id}/state                entity state, retained
//	{prefix}/device/{address}/availability           online/offline, retained
//	{prefix}/event/{type}/{channel_address}/{param}  momentary events
//	{prefix}/command/{channel_address}/{param}       inbound writes
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against the broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	pub := mqtt.NewStatePublisher(client, mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}, byte(cfg.MQTT.QoS))
//	pub.PublishState(record, value)
package mqtt
