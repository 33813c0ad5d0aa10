// Package config loads service configuration with Viper.
//
// Values come from registered defaults, a config.yml found next to the
// binary's cmd directory, an optional .env file and the process environment,
// in that order of precedence. Nested keys map to environment variables by
// replacing dots with underscores:
//
//	var cfg Config
//	err := config.LoadConfig("tradeviewer", &cfg,
//	    config.WithEnvPrefix("LIVEVIEW"),
//	    config.WithDefaults(map[string]any{"view.workers": 5}))
//
// LIVEVIEW_VIEW_WORKERS=8 then overrides view.workers.
package config
