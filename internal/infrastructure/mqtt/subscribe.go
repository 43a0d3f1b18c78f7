package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages matching filter.
//
// Filters may use MQTT wildcards:
//   - + (single-level): "bio/v1/set/+" matches every setpoint topic
//   - # (multi-level): "bio/v1/#" matches everything under the root
//
// The subscription is tracked and (re-)applied on every connect, so it may
// be registered before Start. When the client is already connected the
// broker subscription is made immediately and its result returned; a
// failed subscription stays tracked and is retried on the next connect.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	c.subMu.Lock()
	c.subscriptions[filter] = subscription{
		topic:   filter,
		qos:     qos,
		handler: handler,
	}
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Subscribe(filter, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}
