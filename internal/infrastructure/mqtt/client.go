package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/bioconsole/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the console.
//
// It provides connection management, message publishing, subscription
// handling, and automatic reconnection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are automatically restored on reconnection.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// presenceTopic receives the retained online/offline status of this
	// console and doubles as the Last Will topic. Empty disables presence.
	presenceTopic string

	// subscriptions tracks subscriptions for (re-)subscription on connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect      func()
	onDisconnect   func(err error)
	onReconnecting func()
	callbackMu     sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	closeOnce sync.Once
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the paho router goroutine in arrival order and should
// return quickly. A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// New prepares a client without connecting. An empty client ID is replaced
// with a generated "bioconsole-xxxxxxxx" identifier.
//
// presenceTopic, when non-empty, is published retained with an online
// record on every connect and configured as the Last Will topic.
func New(cfg config.MQTTConfig, presenceTopic string) *Client {
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = NewClientID()
	}

	opts := buildClientOptions(cfg)
	if presenceTopic != "" {
		configureLWT(opts, presenceTopic, cfg.Broker.ClientID, byte(cfg.QoS))
	}

	c := &Client{
		cfg:           cfg,
		options:       opts,
		presenceTopic: presenceTopic,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// Start begins connecting to the broker and waits until the first
// connection succeeds, the connect timeout passes, or ctx is done.
//
// On timeout it returns ErrConnectionFailed, but paho keeps retrying in the
// background and OnConnect fires once the broker becomes reachable.
func (c *Client) Start(ctx context.Context) error {
	timeout := c.connectTimeout()
	token := c.client.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: no connection after %v, retrying in background", ErrConnectionFailed, timeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have executed
	// yet; mark connected here so IsConnected is true once Start returns.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// NewClientID returns a fresh "bioconsole-xxxxxxxx" client identifier.
func NewClientID() string {
	return "bioconsole-" + uuid.NewString()[:8]
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}

func (c *Client) connectTimeout() time.Duration {
	if c.cfg.Session.ConnectTimeout > 0 {
		return time.Duration(c.cfg.Session.ConnectTimeout) * time.Second
	}
	return defaultConnectTimeout
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishPresence(presenceOnline, "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleReconnecting is called before every automatic reconnect attempt.
func (c *Client) handleReconnecting() {
	c.callbackMu.RLock()
	callback := c.onReconnecting
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// restoreSubscriptions subscribes to all tracked topics. With a clean
// session the broker forgets them on every disconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go c.watchToken(token, "MQTT resubscribe failed", "topic", sub.topic)
	}
}

// publishPresence publishes this console's retained presence record.
func (c *Client) publishPresence(status, reason string) pahomqtt.Token {
	if c.presenceTopic == "" {
		return nil
	}
	payload := buildPresencePayload(c.cfg.Broker.ClientID, status, reason)
	return c.client.Publish(c.presenceTopic, byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker. It is safe to call
// more than once; only the first call has any effect.
//
// It performs:
//  1. Publishes a graceful offline presence record (distinct from the LWT)
//  2. Waits for pending publish operations
//  3. Disconnects from the broker
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		if c.IsConnected() {
			if token := c.publishPresence(presenceOffline, "graceful_shutdown"); token != nil {
				token.WaitTimeout(defaultPublishTimeout)
			}
		}

		c.client.Disconnect(defaultDisconnectQuiesce)

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()
	})

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnReconnecting sets a callback invoked before each reconnect attempt.
func (c *Client) SetOnReconnecting(callback func()) {
	c.callbackMu.Lock()
	c.onReconnecting = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// watchToken waits for an asynchronous paho operation and logs a failure.
func (c *Client) watchToken(token pahomqtt.Token, msg string, args ...any) {
	if !token.WaitTimeout(defaultPublishTimeout) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn(msg, append(args, "error", ErrTimeout)...)
		}
		return
	}
	if err := token.Error(); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn(msg, append(args, "error", err)...)
		}
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
