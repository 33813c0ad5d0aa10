package relay

import "github.com/kbukum/liveview/validation"

// Modes of a replicated service.
const (
	ModeLocal     = "local"
	ModePublish   = "publish"
	ModeSubscribe = "subscribe"
)

// Config selects the role of this process.
type Config struct {
	// Mode is local (no relay), publish or subscribe.
	Mode    string `yaml:"mode" mapstructure:"mode" json:"mode" validate:"oneof=local publish subscribe"`
	Channel string `yaml:"channel" mapstructure:"channel" json:"channel" validate:"required"`
	// Queue bounds batches waiting to be published.
	Queue int `yaml:"queue" mapstructure:"queue" json:"queue" validate:"gte=0"`
}

func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Channel == "" {
		c.Channel = "liveview"
	}
	if c.Queue == 0 {
		c.Queue = 1024
	}
}

func (c *Config) Validate() error {
	return validation.Validate(c)
}

// syncChannel carries snapshot requests for channel.
func syncChannel(channel string) string { return channel + ":sync" }
