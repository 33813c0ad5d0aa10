package view

import (
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/transform"
	"github.com/kbukum/liveview/validation"
)

// Config holds the tunables of a View, loadable through config.LoadConfig.
type Config struct {
	Workers            int  `yaml:"workers" mapstructure:"workers" validate:"min=1,max=256"`
	PageSize           int  `yaml:"page_size" mapstructure:"page_size" validate:"min=1,max=1000"`
	StrictInvariants   bool `yaml:"strict_invariants" mapstructure:"strict_invariants"`
	QueueWarnThreshold int  `yaml:"queue_warn_threshold" mapstructure:"queue_warn_threshold" validate:"min=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Workers == 0 {
		c.Workers = transform.DefaultWorkers
	}
	if c.PageSize == 0 {
		c.PageSize = paging.DefaultRequest.Size
	}
	if c.QueueWarnThreshold == 0 {
		c.QueueWarnThreshold = 1024
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
