package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// validatePublish checks topic, QoS and payload size.
func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// Publish sends a message and waits for the broker acknowledgement.
//
// Do not call Publish from a message handler: handlers run in order on
// paho's delivery goroutine and waiting there stalls delivery. Use
// PublishAsync instead.
//
// Returns:
//   - error: ErrNotConnected, ErrInvalidTopic, ErrInvalidQoS or wrapped ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAsync hands a message to paho and returns without waiting for the
// acknowledgement. Delivery failures are logged, not returned. Successive
// calls from one goroutine are sent in call order.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, false, payload)
	go c.logTokenError(token, "MQTT publish failed", topic)
	return nil
}

// QoS returns the session's default QoS.
func (c *Client) QoS() byte {
	return c.opts.QoS
}
