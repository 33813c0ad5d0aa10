package bootstrap

import (
	"github.com/kbukum/liveview/config"
)

// Config is the constraint on application config types. Embedding
// config.ServiceConfig with `mapstructure:",squash"` satisfies it; the
// embedding type may override ApplyDefaults and Validate to cover its own
// sections.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
