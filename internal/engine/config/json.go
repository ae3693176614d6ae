package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/slotkeeper/internal/flagx"
	"github.com/dmitrijs2005/slotkeeper/internal/timex"
)

// JsonConfig is the DTO read from the JSON config file. Duration fields use
// timex.Duration so both "30s" and integer nanoseconds are accepted. Absent
// fields keep the value already in Config.
type JsonConfig struct {
	DatabaseDSN      string          `json:"database_dsn"`
	AppID            int64           `json:"app_id"`
	Email            string          `json:"email"`
	HardwareID       string          `json:"hardware_id"`
	Bind             *bool           `json:"bind"`
	Release          *bool           `json:"release"`
	Diagnose         *bool           `json:"diagnose"`
	Pool             *bool           `json:"pool"`
	EnforceQuota     *bool           `json:"enforce_quota"`
	OperationTimeout *timex.Duration `json:"operation_timeout"`
	MaxOpenConns     int             `json:"max_open_conns"`
	MaxIdleConns     int             `json:"max_idle_conns"`
	ConnMaxLifetime  *timex.Duration `json:"conn_max_lifetime"`
	DiagnosticLimit  int             `json:"diagnostic_limit"`
	DeniedSinceDays  int             `json:"denied_since_days"`
	RetryAttempts    *uint64         `json:"retry_attempts"`
	RetryBase        *timex.Duration `json:"retry_base"`
	LogLevel         string          `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag. Without the flag nothing is loaded. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.Email, c.Email)
	setString(&config.HardwareID, c.HardwareID)
	setString(&config.LogLevel, c.LogLevel)

	if c.AppID != 0 {
		config.AppID = c.AppID
	}
	if c.MaxOpenConns != 0 {
		config.MaxOpenConns = c.MaxOpenConns
	}
	if c.MaxIdleConns != 0 {
		config.MaxIdleConns = c.MaxIdleConns
	}
	if c.DiagnosticLimit != 0 {
		config.DiagnosticLimit = c.DiagnosticLimit
	}
	if c.DeniedSinceDays != 0 {
		config.DeniedSinceDays = c.DeniedSinceDays
	}
	if c.RetryAttempts != nil {
		config.RetryAttempts = *c.RetryAttempts
	}

	setBool(&config.Bind, c.Bind)
	setBool(&config.Release, c.Release)
	setBool(&config.Diagnose, c.Diagnose)
	setBool(&config.Pool, c.Pool)
	setBool(&config.EnforceQuota, c.EnforceQuota)

	if c.OperationTimeout != nil {
		config.OperationTimeout = c.OperationTimeout.Duration
	}
	if c.ConnMaxLifetime != nil {
		config.ConnMaxLifetime = c.ConnMaxLifetime.Duration
	}
	if c.RetryBase != nil {
		config.RetryBase = c.RetryBase.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
