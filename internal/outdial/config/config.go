// Package config loads the outdial widget configuration.
//
// Values are layered: built-in defaults, then the YAML file, then OUTDIAL_*
// environment variables. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sebas/outdial/internal/outdial/endpoint"
	"github.com/sebas/outdial/internal/outdial/widget"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OUTDIAL_"

// Config holds the outdial server configuration.
type Config struct {
	// HTTP server settings
	Port     int    `yaml:"port"`
	BindAddr string `yaml:"bind"`

	// gRPC health server port, 0 disables it
	GRPCPort int `yaml:"grpc_port"`

	LogLevel string `yaml:"log_level"`

	Widget       WidgetConfig   `yaml:"widget"`
	Validation   EndpointConfig `yaml:"validation"`
	Notification EndpointConfig `yaml:"notification"`
	SIP          SIPConfig      `yaml:"sip"`
}

// WidgetConfig holds agent identity and sequencer behaviour.
type WidgetConfig struct {
	AgentID          string        `yaml:"agent_id"`
	EntryPointID     string        `yaml:"entry_point_id"`
	OriginNumber     string        `yaml:"origin_number"`
	FailurePolicy    string        `yaml:"failure_policy"`
	GateOnActiveCall bool          `yaml:"gate_on_active_call"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	LogCapacity      int           `yaml:"log_capacity"`
	DarkMode         bool          `yaml:"dark_mode"`
}

// EndpointConfig describes one external HTTP endpoint. An empty URL
// disables the step that uses it.
type EndpointConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`

	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// SIPConfig describes the SIP dialer. An empty Proxy disables dialing.
type SIPConfig struct {
	Proxy     string `yaml:"proxy"`
	Domain    string `yaml:"domain"`
	Transport string `yaml:"transport"`
	LocalHost string `yaml:"local_host"`
	LocalPort int    `yaml:"local_port"`
	MediaPort int    `yaml:"media_port"`
	UserAgent string `yaml:"user_agent"`

	// Codecs lists the RTP payload types offered, in preference order.
	Codecs []string `yaml:"codecs"`
}

// Equal reports whether s and o describe the same dialer.
func (s SIPConfig) Equal(o SIPConfig) bool {
	return s.Proxy == o.Proxy &&
		s.Domain == o.Domain &&
		s.Transport == o.Transport &&
		s.LocalHost == o.LocalHost &&
		s.LocalPort == o.LocalPort &&
		s.MediaPort == o.MediaPort &&
		s.UserAgent == o.UserAgent &&
		slices.Equal(s.Codecs, o.Codecs)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:     3000,
		BindAddr: "0.0.0.0",
		GRPCPort: 9091,
		LogLevel: "info",
		Widget: WidgetConfig{
			FailurePolicy: string(widget.FailClosed),
			DialTimeout:   widget.DefaultDialTimeout,
			LogCapacity:   200,
		},
		Validation: EndpointConfig{
			Timeout:          widget.DefaultValidateTimeout,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Notification: EndpointConfig{
			Timeout:          widget.DefaultNotifyTimeout,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		SIP: SIPConfig{
			Transport: "udp",
			LocalHost: "127.0.0.1",
			LocalPort: 5070,
			MediaPort: 40000,
			UserAgent: "outdial",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse YAML %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from OUTDIAL_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	num("PORT", &c.Port)
	str("BIND", &c.BindAddr)
	num("GRPC_PORT", &c.GRPCPort)
	str("LOGLEVEL", &c.LogLevel)

	str("AGENT_ID", &c.Widget.AgentID)
	str("ENTRY_POINT_ID", &c.Widget.EntryPointID)
	str("ORIGIN_NUMBER", &c.Widget.OriginNumber)
	str("FAILURE_POLICY", &c.Widget.FailurePolicy)
	boolean("GATE_ON_ACTIVE_CALL", &c.Widget.GateOnActiveCall)
	duration("DIAL_TIMEOUT", &c.Widget.DialTimeout)
	num("LOG_CAPACITY", &c.Widget.LogCapacity)
	boolean("DARK_MODE", &c.Widget.DarkMode)

	str("VALIDATION_URL", &c.Validation.URL)
	str("VALIDATION_TOKEN", &c.Validation.Token)
	duration("VALIDATION_TIMEOUT", &c.Validation.Timeout)
	str("NOTIFICATION_URL", &c.Notification.URL)
	str("NOTIFICATION_TOKEN", &c.Notification.Token)
	duration("NOTIFICATION_TIMEOUT", &c.Notification.Timeout)

	str("SIP_PROXY", &c.SIP.Proxy)
	str("SIP_DOMAIN", &c.SIP.Domain)
	str("SIP_TRANSPORT", &c.SIP.Transport)
	str("SIP_LOCAL_HOST", &c.SIP.LocalHost)
	num("SIP_LOCAL_PORT", &c.SIP.LocalPort)
	num("SIP_MEDIA_PORT", &c.SIP.MediaPort)
	str("SIP_USER_AGENT", &c.SIP.UserAgent)
	if v, ok := lookup(EnvPrefix + "SIP_CODECS"); ok && v != "" {
		c.SIP.Codecs = nil
		for _, pt := range strings.Split(v, ",") {
			if pt = strings.TrimSpace(pt); pt != "" {
				c.SIP.Codecs = append(c.SIP.Codecs, pt)
			}
		}
	}

	return errors.Join(errs...)
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid grpc port %d", c.GRPCPort))
	}
	if _, err := widget.ParseFailurePolicy(c.Widget.FailurePolicy); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.SIP.Transport) {
	case "udp", "tcp", "":
	default:
		errs = append(errs, fmt.Errorf("unsupported sip transport %q", c.SIP.Transport))
	}
	for _, pt := range c.SIP.Codecs {
		if n, err := strconv.Atoi(pt); err != nil || n < 0 || n > 127 {
			errs = append(errs, fmt.Errorf("invalid sip codec payload type %q", pt))
		}
	}
	return errors.Join(errs...)
}

// WidgetOptions converts the widget section to widget.Options.
func (c *Config) WidgetOptions() widget.Options {
	policy, _ := widget.ParseFailurePolicy(c.Widget.FailurePolicy)
	return widget.Options{
		AgentID:          c.Widget.AgentID,
		EntryPointID:     c.Widget.EntryPointID,
		OriginNumber:     c.Widget.OriginNumber,
		FailurePolicy:    policy,
		GateOnActiveCall: c.Widget.GateOnActiveCall,
		ValidateTimeout:  c.Validation.Timeout,
		DialTimeout:      c.Widget.DialTimeout,
		NotifyTimeout:    c.Notification.Timeout,
	}
}

// ClientConfig returns the endpoint client config for e under name.
func (e EndpointConfig) ClientConfig(name string) endpoint.Config {
	return endpoint.Config{
		Name:    name,
		URL:     e.URL,
		Token:   e.Token,
		Timeout: e.Timeout,
		Breaker: endpoint.BreakerConfig{
			FailureThreshold: e.BreakerThreshold,
			ResetTimeout:     e.BreakerReset,
		},
	}
}
