package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/bioconsole/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves it unset.
	defaultConnectTimeout = 30 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the config leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// defaultReconnectInterval is used when the config leaves it unset.
	defaultReconnectInterval = time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Presence states published on the console presence topic.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// buildClientOptions creates paho MQTT options from config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID, credentials, keepalive and clean session
//   - Connect retry and auto-reconnect with a capped backoff
//   - In-order message delivery to handlers
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(cfg.Session.CleanSession)
	opts.SetKeepAlive(secondsOr(cfg.Session.KeepAlive, defaultKeepAlive))
	opts.SetConnectTimeout(secondsOr(cfg.Session.ConnectTimeout, defaultConnectTimeout))

	// Retry the first connection as well as later ones, so the console can
	// start before the broker is reachable.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(secondsOr(cfg.Reconnect.InitialDelay, defaultReconnectInterval))
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	// Handlers see messages one at a time, in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will, retained, if the console disappears
// without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string, qos byte) {
	payload := buildPresencePayload(clientID, presenceOffline, "unexpected_disconnect")
	opts.SetWill(topic, string(payload), qos, true)
}

// presence is the JSON record published on the presence topic.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildPresencePayload(clientID, status, reason string) []byte {
	// Marshalling a struct of strings cannot fail.
	payload, _ := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}
