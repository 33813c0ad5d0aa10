package redis

import (
	"time"

	"github.com/kbukum/liveview/validation"
)

// Config holds the Redis connection settings.
type Config struct {
	// Enabled turns the client on; a disabled config skips validation.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	Addr     string `yaml:"addr" mapstructure:"addr" json:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
	DB       int    `yaml:"db" mapstructure:"db" json:"db" validate:"gte=0,lte=15"`

	PoolSize     int `yaml:"pool_size" mapstructure:"pool_size" json:"pool_size" validate:"gte=0"`
	MinIdleConns int `yaml:"min_idle_conns" mapstructure:"min_idle_conns" json:"min_idle_conns" validate:"gte=0"`
	MaxRetries   int `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries" validate:"gte=0"`

	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" json:"dial_timeout" validate:"gte=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" validate:"gte=0"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

// Validate checks the settings when the client is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.Validate(c)
}
