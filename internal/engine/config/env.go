package config

import "github.com/kelseyhightower/envconfig"

// parseEnv overlays values from LICENSE_* environment variables, e.g.
// LICENSE_DATABASE_DSN or LICENSE_OPERATION_TIMEOUT=10s. Unset variables
// leave the current value alone. Malformed values panic.
func parseEnv(config *Config) {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		panic(err)
	}
}
