package mqtt

import (
	"fmt"
)

// validateSubscribe checks topic, QoS and handler.
func validateSubscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return nil
}

// Subscribe registers a handler on a live session and waits for the broker
// acknowledgement. The subscription is restored after reconnects.
//
// Returns:
//   - error: ErrNotConnected when the session is down, or wrapped ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscribe(topic, qos, handler); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.track(topic, qos, handler)

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.untrack(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.untrack(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// SubscribePersistent records a subscription that is applied on every
// connect acknowledgement, including the first. If the session is already
// up it is also applied immediately without waiting for the broker.
//
// This is the form to use before Start, or from code that must not block.
func (c *Client) SubscribePersistent(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscribe(topic, qos, handler); err != nil {
		return err
	}

	c.track(topic, qos, handler)

	if c.IsConnected() {
		token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
		go c.logTokenError(token, "MQTT subscribe failed", topic)
	}
	return nil
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.untrack(topic)

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

func (c *Client) track(topic string, qos byte, handler MessageHandler) {
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()
}

func (c *Client) untrack(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription is tracked for the exact topic.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
