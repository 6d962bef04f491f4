package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when Options.ConnectTimeout is zero.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds synchronous publish/subscribe acknowledgements.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used when Options.KeepAlive is zero.
	defaultKeepAlive = 60 * time.Second

	// defaultPort is the plain MQTT port appliances listen on.
	defaultPort = 1883

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options describes one broker session.
type Options struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string

	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	MaxReconnect   time.Duration
}

// String omits the password.
func (o Options) String() string {
	return fmt.Sprintf("Options{Broker:%s ClientID:%s Username:%s Password:[REDACTED]}",
		o.brokerURL(), o.ClientID, o.Username)
}

// OptionsFor builds session options for an appliance endpoint using the
// shared session policy. address is "host" or "host:port"; the policy's
// default port applies when none is given.
func OptionsFor(cfg config.MQTTConfig, address, clientID, username, password string) (Options, error) {
	host, port, err := splitAddress(address, cfg.DefaultPort)
	if err != nil {
		return Options{}, err
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return Options{}, ErrInvalidQoS
	}

	return Options{
		Host:           host,
		Port:           port,
		TLS:            cfg.TLS,
		ClientID:       clientID,
		Username:       username,
		Password:       password,
		QoS:            byte(cfg.QoS),
		KeepAlive:      time.Duration(cfg.KeepAlive) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		RetryInterval:  time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		MaxReconnect:   time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
	}, nil
}

// splitAddress parses "host" or "host:port".
func splitAddress(address string, fallbackPort int) (string, int, error) {
	if address == "" {
		return "", 0, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}
	if fallbackPort == 0 {
		fallbackPort = defaultPort
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		// No port component.
		return address, fallbackPort, nil //nolint:nilerr // a bare host is valid
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, address)
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, address)
	}
	return host, port, nil
}

func (o Options) brokerURL() string {
	scheme := "tcp"
	if o.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(o.Host, strconv.Itoa(o.Port)))
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return o.ConnectTimeout
}

// buildClientOptions creates paho options from session options.
//
// This configures:
//   - Broker URL (tcp:// or ssl://)
//   - Client ID and credentials
//   - Clean session and auto-reconnect with capped backoff
//   - TLS configuration (if enabled)
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.brokerURL())
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	// Appliance brokers do not keep sessions.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	if o.RetryInterval > 0 {
		opts.SetConnectRetryInterval(o.RetryInterval)
	}
	if o.MaxReconnect > 0 {
		opts.SetMaxReconnectInterval(o.MaxReconnect)
	}

	opts.SetConnectTimeout(o.connectTimeout())

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Inbound messages for one appliance are handled one at a time.
	opts.SetOrderMatters(true)

	if o.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}
