package feed

import (
	"time"

	"github.com/kbukum/liveview/validation"
)

// Config holds the timings of the control feeds.
type Config struct {
	SearchDebounce time.Duration `yaml:"search_debounce" mapstructure:"search_debounce" validate:"min=0"`
	PageSample     time.Duration `yaml:"page_sample" mapstructure:"page_sample" validate:"min=0"`
	// Buffer is the capacity of the input channels fed by callers.
	Buffer int `yaml:"buffer" mapstructure:"buffer" validate:"min=0,max=4096"`
}

// ApplyDefaults fills zero values with the viewer's timings.
func (c *Config) ApplyDefaults() {
	if c.SearchDebounce == 0 {
		c.SearchDebounce = 250 * time.Millisecond
	}
	if c.PageSample == 0 {
		c.PageSample = 100 * time.Millisecond
	}
	if c.Buffer == 0 {
		c.Buffer = 16
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
