package main

import (
	"fmt"

	"github.com/kbukum/liveview/config"
	"github.com/kbukum/liveview/feed"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/redis"
	"github.com/kbukum/liveview/relay"
	"github.com/kbukum/liveview/server"
	"github.com/kbukum/liveview/trades"
	"github.com/kbukum/liveview/validation"
	"github.com/kbukum/liveview/view"
)

const serviceName = "tradeviewer"

// Config is the tradeviewer configuration, loaded from
// cmd/tradeviewer/config.yml, .env and TRADEVIEWER_* variables.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	View          view.Config          `yaml:"view" mapstructure:"view"`
	Feed          feed.Config          `yaml:"feed" mapstructure:"feed"`
	Market        trades.MarketConfig  `yaml:"market" mapstructure:"market"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Viewer        ViewerConfig         `yaml:"viewer" mapstructure:"viewer"`
	Redis         redis.Config         `yaml:"redis" mapstructure:"redis"`
	Relay         relay.Config         `yaml:"relay" mapstructure:"relay"`
}

// ViewerConfig holds the initial state of the shared trade view.
type ViewerConfig struct {
	// AutoPause pauses the view while a page change is applied.
	AutoPause bool `yaml:"auto_pause" mapstructure:"auto_pause"`
	// Sort is the initial sort option name.
	Sort string `yaml:"sort" mapstructure:"sort" validate:"required"`
	// StreamPrefix namespaces event stream client ids on the hub.
	StreamPrefix string `yaml:"stream_prefix" mapstructure:"stream_prefix" validate:"required"`
}

// loaderDefaults are registered with the loader so booleans defaulting to
// true survive an absent key.
var loaderDefaults = map[string]any{
	"viewer.auto_pause": true,
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.View.ApplyDefaults()
	c.Feed.ApplyDefaults()
	c.Market.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Relay.ApplyDefaults()
	if c.Viewer.Sort == "" {
		c.Viewer.Sort = trades.SortOptions[0].Name
	}
	if c.Viewer.StreamPrefix == "" {
		c.Viewer.StreamPrefix = "trades"
	}
}

func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	sections := []struct {
		name     string
		validate func() error
	}{
		{"view", c.View.Validate},
		{"feed", c.Feed.Validate},
		{"market", c.Market.Validate},
		{"server", c.Server.Validate},
		{"observability", func() error { return validation.Validate(&c.Observability) }},
		{"viewer", func() error { return validation.Validate(&c.Viewer) }},
		{"redis", c.Redis.Validate},
		{"relay", c.Relay.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if c.Relay.Mode != relay.ModeLocal && !c.Redis.Enabled {
		return fmt.Errorf("relay: mode %s needs redis.enabled", c.Relay.Mode)
	}
	if _, ok := trades.LookupSort(c.Viewer.Sort); !ok {
		return fmt.Errorf("viewer: unknown sort %q, want one of %v", c.Viewer.Sort, trades.SortNames())
	}
	return nil
}
