// Package config defines gistd's static configuration: the timer and
// sizing knobs §6 names by default value, plus the ambient
// logging/telemetry/metrics sections every gistd process carries
// regardless of which NSLPs it loads.
//
// Configuration sources (see Load): the defaults below, overlaid by an
// optional YAML file and, for keys that file sets, GISTD_* environment
// variables. No CLI flag is bound to a configuration key, and without a
// file the defaults apply unchanged.
package config

import "time"

// Config is gistd's top-level configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`

	GIST GISTConfig `mapstructure:"gist" yaml:"gist"`
	API  APIConfig  `mapstructure:"api" yaml:"api"`

	NATFW NATFWConfig `mapstructure:"natfw" yaml:"natfw"`
	QoS   QoSConfig   `mapstructure:"qos" yaml:"qos"`
}

// APIConfig controls the §6 "UDS API surface" external-daemon boundary.
type APIConfig struct {
	UDSPath string `mapstructure:"uds_path" yaml:"uds_path"`
}

// GISTConfig holds the NTLP-layer timer/sizing knobs (§6 "Configuration
// knobs").
type GISTConfig struct {
	// ListenAddr is the local address gistd binds its Q-mode socket and
	// C-mode listeners to.
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// QModePort is the UDP port Q-mode Queries/Data are encapsulated on.
	// Default: 270.
	QModePort int `mapstructure:"qmode_port" validate:"required,gt=0,lt=65536" yaml:"qmode_port"`

	// IPv4Only disables advertising/accepting IPv6 addresses in NLI.
	IPv4Only bool `mapstructure:"ipv4_only" yaml:"ipv4_only"`

	// RefreshInterval is how often an Established Q-entry re-issues its
	// Query. Default: 30s.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"required,gt=0" yaml:"refresh_interval"`

	// RSValidityMultiplier sets RS-validity = RefreshInterval *
	// RSValidityMultiplier. Default: 3.
	RSValidityMultiplier int `mapstructure:"rs_validity_multiplier" validate:"required,gt=0" yaml:"rs_validity_multiplier"`

	// NoResponseTimeout is T-NoResponse's initial value. Default: 3s.
	NoResponseTimeout time.Duration `mapstructure:"no_response_timeout" validate:"required,gt=0" yaml:"no_response_timeout"`

	// NoResponseBackoffFactor multiplies NoResponseTimeout on each
	// retry. Default: 2.
	NoResponseBackoffFactor int `mapstructure:"no_response_backoff_factor" validate:"required,gt=0" yaml:"no_response_backoff_factor"`

	// NoResponseCeiling caps the backed-off T-NoResponse. Default: 30s.
	NoResponseCeiling time.Duration `mapstructure:"no_response_ceiling" validate:"required,gt=0" yaml:"no_response_ceiling"`

	// NoResponseMaxAttempts bounds retransmission before
	// UnableToEstablishRoutingState. Default: 5.
	NoResponseMaxAttempts int `mapstructure:"no_response_max_attempts" validate:"required,gt=0" yaml:"no_response_max_attempts"`

	// MAHoldTime is how long an idle (refcount==0) MA survives before
	// being torn down. Default: 30s.
	MAHoldTime time.Duration `mapstructure:"ma_hold_time" validate:"required,gt=0" yaml:"ma_hold_time"`

	// SecretRotationMultiplier sets the secret-manager rotation interval
	// = MAHoldTime * SecretRotationMultiplier. Default: 2.
	SecretRotationMultiplier int `mapstructure:"secret_rotation_multiplier" validate:"required,gt=0" yaml:"secret_rotation_multiplier"`

	// SecretGenerationCount is how many rolling HMAC keys the secret
	// manager keeps live at once. Default: 2 (the §4.4 floor).
	SecretGenerationCount int `mapstructure:"secret_generation_count" validate:"required,gte=2" yaml:"secret_generation_count"`

	// MaxOutgoingQueueDepth bounds each MA's outgoing queue; low-priority
	// Data is dropped under backpressure, handshake/refresh PDUs never
	// are (§5 "bounded per-MA outgoing queues").
	MaxOutgoingQueueDepth int `mapstructure:"max_outgoing_queue_depth" validate:"required,gt=0" yaml:"max_outgoing_queue_depth"`
}

// NATFWConfig configures the NAT/Firewall NSLP (supplemented feature).
type NATFWConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"required_if=Enabled true" yaml:"session_ttl"`
}

// QoSConfig configures the QoS NSLP (supplemented feature), including
// the GTP-U tunnel install hook grounded on the teacher's N3 tunnel
// setup.
type QoSConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	GTPInterface  string `mapstructure:"gtp_interface" validate:"required_if=Enabled true" yaml:"gtp_interface"`
	GTPListenAddr string `mapstructure:"gtp_listen_addr" validate:"required_if=Enabled true" yaml:"gtp_listen_addr"`
}

// LoggingConfig controls logrus output (ambient stack).
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// TelemetryConfig controls the OpenTelemetry tracer provider (ambient
// stack; no OTLP exporter is wired, see DESIGN.md).
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true" yaml:"addr"`
}

// Default returns gistd's configuration with every §6 default applied.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{Enabled: false, ServiceName: "gistd"},
		Metrics:   MetricsConfig{Enabled: true, Addr: ":9090"},
		GIST: GISTConfig{
			ListenAddr:               "0.0.0.0",
			QModePort:                270,
			IPv4Only:                 false,
			RefreshInterval:          30 * time.Second,
			RSValidityMultiplier:     3,
			NoResponseTimeout:        3 * time.Second,
			NoResponseBackoffFactor:  2,
			NoResponseCeiling:        30 * time.Second,
			NoResponseMaxAttempts:    5,
			MAHoldTime:               30 * time.Second,
			SecretRotationMultiplier: 2,
			SecretGenerationCount:    2,
			MaxOutgoingQueueDepth:    256,
		},
		API:   APIConfig{UDSPath: "/var/run/gistd/api.sock"},
		NATFW: NATFWConfig{Enabled: true, SessionTTL: 5 * time.Minute},
		QoS:   QoSConfig{Enabled: false},
	}
}

// RSValidity derives the RS-validity duration from RefreshInterval and
// its multiplier (§4.3 "RS validity 3x refresh").
func (c GISTConfig) RSValidity() time.Duration {
	return c.RefreshInterval * time.Duration(c.RSValidityMultiplier)
}

// SecretRotationInterval derives the secret-manager rotation interval
// (§4.4 "default 2x MA-hold-time").
func (c GISTConfig) SecretRotationInterval() time.Duration {
	return c.MAHoldTime * time.Duration(c.SecretRotationMultiplier)
}
