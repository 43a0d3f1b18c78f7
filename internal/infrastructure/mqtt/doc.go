// Package mqtt provides MQTT client connectivity for the console.
//
// This package manages:
//   - Connection to the broker with connect retry and auto-reconnect
//   - Blocking and fire-and-forget publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - A retained console presence record with a matching Last Will
//   - Connection health monitoring
//
// # Connectivity
//
// Start returns once the first connection succeeds or the connect timeout
// passes; either way paho keeps retrying. Callers follow the connection
// through SetOnConnect, SetOnDisconnect and SetOnReconnecting.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) for any broker outside the host
//   - Supply credentials through BIOCONSOLE_MQTT_USERNAME/PASSWORD
//   - Payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, "bio/v1/console/"+id)
//	_ = client.Subscribe("bio/v1/#", 1, func(topic string, payload []byte) error {
//	    session.Deliver(topic, payload)
//	    return nil
//	})
//	if err := client.Start(ctx); err != nil {
//	    logger.Warn("broker not reachable yet", "error", err)
//	}
//	defer client.Close()
package mqtt
