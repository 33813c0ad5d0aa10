package observability

import "time"

// Config selects the OTLP/HTTP exporters for a service binary. Exporters are
// only created when Enabled is set; otherwise the global no-op providers stay.
type Config struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" json:"endpoint"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure" json:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" json:"sample_rate" validate:"gte=0,lte=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`
}

// ApplyDefaults fills unset fields with development defaults.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Tracer derives the tracer settings for a service.
func (c Config) Tracer(service, version, environment string) TracerConfig {
	return TracerConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SampleRate:     c.SampleRate,
	}
}

// Meter derives the meter settings for a service.
func (c Config) Meter(service, version, environment string) MeterConfig {
	return MeterConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		Interval:       c.Interval,
	}
}
