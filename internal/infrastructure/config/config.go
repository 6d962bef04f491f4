package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the airlink bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig      `yaml:"bridge"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Correlation CorrelationConfig `yaml:"correlation"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
	Appliances  []ApplianceConfig `yaml:"appliances"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	HealthInterval int    `yaml:"health_interval"` // seconds
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig is the session policy shared by every appliance connection.
// Each appliance runs its own broker, so the endpoint and credentials live
// on ApplianceConfig rather than here.
type MQTTConfig struct {
	DefaultPort    int                 `yaml:"default_port"`
	TLS            bool                `yaml:"tls"`
	ClientIDPrefix string              `yaml:"client_id_prefix"`
	QoS            int                 `yaml:"qos"`
	KeepAlive      int                 `yaml:"keep_alive"`      // seconds
	ConnectTimeout int                 `yaml:"connect_timeout"` // seconds
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// CorrelationConfig tunes the request/response correlation engine.
type CorrelationConfig struct {
	// FreshnessWindow is the maximum age (seconds) of cached state served
	// without a refresh round-trip.
	FreshnessWindow int `yaml:"freshness_window"`

	// ResponseTimeout bounds how long a waiter may wait for a correlating
	// message, in milliseconds. 0 disables the bound.
	ResponseTimeout int `yaml:"response_timeout"`

	// HighWaterMark is the pending waiter count above which a repeat refresh
	// request is published.
	HighWaterMark int `yaml:"high_water_mark"`

	// OscillationDelay defers an oscillation-on command (milliseconds) while
	// the fan is off.
	OscillationDelay int `yaml:"oscillation_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the API.
type JWTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
}

// Credential modes for ApplianceConfig.CredentialMode.
const (
	CredentialAuto   = "auto"
	CredentialHashed = "hashed"
	CredentialPlain  = "plain"
)

// ApplianceConfig describes one appliance. Serial number and credential are
// checked when the appliance is registered, not here: a bad descriptor only
// excludes that appliance.
type ApplianceConfig struct {
	DisplayName       string         `yaml:"display_name"`
	Address           string         `yaml:"address"`
	SerialNumber      string         `yaml:"serial_number"`
	Credential        string         `yaml:"credential"`
	CredentialMode    string         `yaml:"credential_mode"`
	NightModeInverted bool           `yaml:"night_mode_inverted"`
	Controls          ControlsConfig `yaml:"controls"`
}

// String redacts the credential.
func (a ApplianceConfig) String() string {
	return fmt.Sprintf("ApplianceConfig{DisplayName:%s Address:%s SerialNumber:%s Credential:[REDACTED]}",
		a.DisplayName, a.Address, a.SerialNumber)
}

// MarshalJSON redacts the credential.
func (a ApplianceConfig) MarshalJSON() ([]byte, error) {
	type redacted struct {
		DisplayName       string         `json:"display_name"`
		Address           string         `json:"address"`
		SerialNumber      string         `json:"serial_number"`
		Credential        string         `json:"credential"`
		CredentialMode    string         `json:"credential_mode"`
		NightModeInverted bool           `json:"night_mode_inverted"`
		Controls          ControlsConfig `json:"controls"`
	}
	return json.Marshal(redacted{
		DisplayName:       a.DisplayName,
		Address:           a.Address,
		SerialNumber:      a.SerialNumber,
		Credential:        "[REDACTED]",
		CredentialMode:    a.CredentialMode,
		NightModeInverted: a.NightModeInverted,
		Controls:          a.Controls,
	})
}

// ControlsConfig toggles auxiliary controls exposed for an appliance.
// A nil pointer means "use the default" (shown).
type ControlsConfig struct {
	Auto         *bool `yaml:"auto" json:"auto,omitempty"`
	Rotation     *bool `yaml:"rotation" json:"rotation,omitempty"`
	NightMode    *bool `yaml:"night_mode" json:"night_mode,omitempty"`
	JetFocus     *bool `yaml:"jet_focus" json:"jet_focus,omitempty"`
	Filter       *bool `yaml:"filter" json:"filter,omitempty"`
	HeaterCooler *bool `yaml:"heater_cooler" json:"heater_cooler,omitempty"`
	AirQuality   *bool `yaml:"air_quality" json:"air_quality,omitempty"`
}

// Shown reports whether a toggle is enabled, defaulting to true.
func Shown(toggle *bool) bool {
	return toggle == nil || *toggle
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AIRLINK_SECTION_KEY
// For example: AIRLINK_DATABASE_PATH, AIRLINK_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "airlink-01",
			Name:           "Airlink Bridge",
			HealthInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/airlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			DefaultPort:    1883,
			ClientIDPrefix: "airlink",
			QoS:            1,
			KeepAlive:      60,
			ConnectTimeout: 10,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Correlation: CorrelationConfig{
			FreshnessWindow:  60,
			ResponseTimeout:  10000,
			HighWaterMark:    10,
			OscillationDelay: 500,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AIRLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("AIRLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AIRLINK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("AIRLINK_CORRELATION_RESPONSE_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Correlation.ResponseTimeout = ms
		}
	}

	if v := os.Getenv("AIRLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("AIRLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("AIRLINK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("AIRLINK_JWT_CLIENT_SECRET"); v != "" {
		cfg.Security.JWT.ClientSecret = v
	}
}

// Validate checks the configuration for errors. Appliance serial numbers and
// credentials are deliberately not validated here.
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validateCorrelation()...)

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when jwt is enabled (set AIRLINK_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	errs = append(errs, c.validateAppliances()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateMQTT() []string {
	var errs []string
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.DefaultPort < 1 || c.MQTT.DefaultPort > 65535 {
		errs = append(errs, "mqtt.default_port must be between 1 and 65535")
	}
	if c.MQTT.ConnectTimeout < 1 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	return errs
}

func (c *Config) validateCorrelation() []string {
	var errs []string
	if c.Correlation.FreshnessWindow < 0 {
		errs = append(errs, "correlation.freshness_window must not be negative")
	}
	if c.Correlation.ResponseTimeout < 0 {
		errs = append(errs, "correlation.response_timeout must not be negative (0 disables it)")
	}
	if c.Correlation.HighWaterMark < 1 {
		errs = append(errs, "correlation.high_water_mark must be at least 1")
	}
	if c.Correlation.OscillationDelay < 0 {
		errs = append(errs, "correlation.oscillation_delay must not be negative")
	}
	return errs
}

func (c *Config) validateAppliances() []string {
	var errs []string
	seen := make(map[string]int)
	for i, a := range c.Appliances {
		prefix := fmt.Sprintf("appliances[%d]", i)
		if a.DisplayName == "" {
			errs = append(errs, prefix+".display_name is required")
		}
		if a.Address == "" {
			errs = append(errs, prefix+".address is required")
		}
		switch a.CredentialMode {
		case "", CredentialAuto, CredentialHashed, CredentialPlain:
		default:
			errs = append(errs, fmt.Sprintf("%s.credential_mode %q must be auto, hashed or plain", prefix, a.CredentialMode))
		}
		if a.SerialNumber != "" {
			if prev, dup := seen[a.SerialNumber]; dup {
				errs = append(errs, fmt.Sprintf("%s.serial_number duplicates appliances[%d]", prefix, prev))
			}
			seen[a.SerialNumber] = i
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetFreshnessWindow returns the cache freshness window.
func (c *Config) GetFreshnessWindow() time.Duration {
	return time.Duration(c.Correlation.FreshnessWindow) * time.Second
}

// GetResponseTimeout returns the correlation timeout; zero means unbounded.
func (c *Config) GetResponseTimeout() time.Duration {
	return time.Duration(c.Correlation.ResponseTimeout) * time.Millisecond
}

// GetOscillationDelay returns the deferral applied to oscillation-on while the fan is off.
func (c *Config) GetOscillationDelay() time.Duration {
	return time.Duration(c.Correlation.OscillationDelay) * time.Millisecond
}

// GetHealthInterval returns the health reporting interval.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}
