package core_config

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when a value is missing or zero.
const (
	DefaultServerIP     = "0.0.0.0"
	DefaultServerPort   = 18080
	DefaultControlIP    = "127.0.0.1"
	DefaultControlPort  = 8000
	DefaultReadTimeout  = 5
	DefaultWriteTimeout = 10
	DefaultIdleTimeout  = 120
	DefaultLogLevel     = "info"
)

// SourceConfig holds the raw configuration
type SourceConfig struct {
	ServerIP            string            `yaml:"serverIp" mapstructure:"serverIp"`
	ServerPort          int               `yaml:"serverPort" mapstructure:"serverPort"`
	Headers             map[string]string `yaml:"headers,omitempty" mapstructure:"headers"`
	ControlIP           string            `yaml:"controlIp" mapstructure:"controlIp"`
	ControlPort         int               `yaml:"controlPort" mapstructure:"controlPort"`
	AutoInit            bool              `yaml:"autoInit" mapstructure:"autoInit"`
	ShutdownGracePeriod int               `yaml:"shutdownGracePeriod" mapstructure:"shutdownGracePeriod"`
	ReadTimeout         int               `yaml:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout        int               `yaml:"writeTimeout" mapstructure:"writeTimeout"`
	IdleTimeout         int               `yaml:"idleTimeout" mapstructure:"idleTimeout"`
	MetricsEnabled      bool              `yaml:"metricsEnabled" mapstructure:"metricsEnabled"`
	SetRequestID        bool              `yaml:"setRequestId" mapstructure:"setRequestId"`
	LogLevel            string            `yaml:"logLevel" mapstructure:"logLevel"`
}

// TranslatedConfig holds the validated configuration
type TranslatedConfig struct {
	ServerIP            string
	ServerPort          int
	Headers             map[string]string
	ControlIP           string
	ControlPort         int
	AutoInit            bool
	ShutdownGracePeriod time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	MetricsEnabled      bool
	SetRequestID        bool
	LogLevel            zapcore.Level
}

// ControlAddr is the listen address of the control API.
func (c *TranslatedConfig) ControlAddr() string {
	return net.JoinHostPort(c.ControlIP, strconv.Itoa(c.ControlPort))
}

// NewTranslatedConfiguration validates s and fills in defaults.
func (s *SourceConfig) NewTranslatedConfiguration() (*TranslatedConfig, error) {
	if s.ServerPort < 0 || s.ServerPort > 65535 {
		return nil, fmt.Errorf("server port %d out of range", s.ServerPort)
	}
	if s.ControlPort < 0 || s.ControlPort > 65535 {
		return nil, fmt.Errorf("control port %d out of range", s.ControlPort)
	}
	if s.ShutdownGracePeriod < 0 {
		return nil, fmt.Errorf("shutdown grace period must not be negative, got %d", s.ShutdownGracePeriod)
	}
	for name, v := range map[string]int{"read": s.ReadTimeout, "write": s.WriteTimeout, "idle": s.IdleTimeout} {
		if v < 0 {
			return nil, fmt.Errorf("%s timeout must not be negative, got %d", name, v)
		}
	}

	logLevel := s.LogLevel
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}
	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	c := &TranslatedConfig{
		ServerIP:            stringOrDefault(s.ServerIP, DefaultServerIP),
		ServerPort:          s.ServerPort,
		Headers:             s.Headers,
		ControlIP:           stringOrDefault(s.ControlIP, DefaultControlIP),
		ControlPort:         s.ControlPort,
		AutoInit:            s.AutoInit,
		ShutdownGracePeriod: time.Duration(s.ShutdownGracePeriod) * time.Second,
		ReadTimeout:         seconds(s.ReadTimeout, DefaultReadTimeout),
		WriteTimeout:        seconds(s.WriteTimeout, DefaultWriteTimeout),
		IdleTimeout:         seconds(s.IdleTimeout, DefaultIdleTimeout),
		MetricsEnabled:      s.MetricsEnabled,
		SetRequestID:        s.SetRequestID,
		LogLevel:            level,
	}
	if c.ControlPort == 0 {
		c.ControlPort = DefaultControlPort
	}

	if c.ControlPort == c.ServerPort && sameHost(c.ControlIP, c.ServerIP) {
		return nil, fmt.Errorf("control port %d collides with server port", c.ControlPort)
	}

	return c, nil
}

// PrintConfig writes the configuration as YAML to w.
func (s *SourceConfig) PrintConfig(w io.Writer) {
	fmt.Fprintln(w, "YAML configuration:")
	yamlString, _ := yaml.Marshal(s)
	fmt.Fprintf(w, "%s\n", string(yamlString))
}

func stringOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func seconds(v, def int) time.Duration {
	if v == 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func sameHost(a, b string) bool {
	if a == b {
		return true
	}
	ipA, ipB := net.ParseIP(a), net.ParseIP(b)
	return (ipA != nil && ipA.IsUnspecified()) || (ipB != nil && ipB.IsUnspecified())
}
