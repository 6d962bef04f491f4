package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps a paho session to a single appliance broker.
//
// It tracks connection state, restores subscriptions after every
// (re)connect and recovers panics raised by message handlers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	opts   Options

	// subscriptions are re-applied on every connect acknowledgement.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's delivery goroutine and should not block.
// A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// NewClient creates a client for a single broker without connecting.
//
// Register callbacks and persistent subscriptions, then call Start. paho
// keeps retrying in the background until the broker accepts the session.
func NewClient(opts Options) *Client {
	return newClient(opts)
}

// Start begins connecting in the background and returns immediately.
// SetOnConnect observes the acknowledgement.
func (c *Client) Start() {
	c.client.Connect()
}

func newClient(opts Options) *Client {
	c := &Client{
		opts:          opts,
		subscriptions: make(map[string]subscription),
	}
	c.client = pahomqtt.NewClient(c.pahoOptions())
	return c
}

// pahoOptions builds paho options with this client's lifecycle hooks attached.
func (c *Client) pahoOptions() *pahomqtt.ClientOptions {
	po := buildClientOptions(c.opts)
	po.SetConnectRetry(true)
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	return po
}

// handleConnect is called on every connect acknowledgement.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()

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

// restoreSubscriptions re-subscribes to all tracked topics after a connect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go c.logTokenError(token, "MQTT resubscribe failed", sub.topic)
	}
}

// Close disconnects from the broker. Closing a nil or never-connected
// client is not an error.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports ErrNotConnected when the session is down.
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

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Broker returns the broker URL this client targets.
func (c *Client) Broker() string {
	return c.opts.brokerURL()
}

// SetOnConnect sets a callback invoked on initial connect and every reconnect,
// after subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// logTokenError waits for an async token and logs its error, if any.
func (c *Client) logTokenError(token pahomqtt.Token, msg, topic string) {
	if !token.WaitTimeout(defaultPublishTimeout) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn(msg, "topic", topic, "error", ErrTimeout)
		}
		return
	}
	if err := token.Error(); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn(msg, "topic", topic, "error", err)
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
