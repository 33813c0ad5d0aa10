package server

import (
	"fmt"
	"time"

	"github.com/kbukum/liveview/security"
	"github.com/kbukum/liveview/validation"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string        `yaml:"host" mapstructure:"host" json:"host"`
	Port         int           `yaml:"port" mapstructure:"port" json:"port" validate:"gte=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout" validate:"gte=0"`
	// MaxBodyBytes caps request bodies; control requests are tiny.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes" json:"max_body_bytes" validate:"gte=0"`
	// ControlRate limits PUT requests per second across all clients.
	ControlRate float64 `yaml:"control_rate" mapstructure:"control_rate" json:"control_rate" validate:"gte=0"`
	// MaxStreams bounds concurrent event streams.
	MaxStreams int `yaml:"max_streams" mapstructure:"max_streams" json:"max_streams" validate:"gte=0"`
	// TLS serves HTTPS (and HTTP/2 over TLS) when a certificate is set.
	TLS security.TLSConfig `yaml:"tls" mapstructure:"tls" json:"tls"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.ControlRate == 0 {
		c.ControlRate = 50
	}
	if c.MaxStreams == 0 {
		c.MaxStreams = 64
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	return validation.Validate(c)
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
