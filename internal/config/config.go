package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Channel  ChannelConfig  `mapstructure:"channel" validate:"required"`
	Dispatch DispatchConfig `mapstructure:"dispatch" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
}

// AuthConfig contains the settings used to verify operator bearer tokens.
// Tokens are issued by the authentication collaborator; this service only verifies them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	Issuer    string `mapstructure:"issuer"`
}

// ChannelConfig configures the connection to the external automation bridge.
type ChannelConfig struct {
	BridgeURL              string `mapstructure:"bridge_url" validate:"required,url"`
	InitTimeoutSeconds     int    `mapstructure:"init_timeout_seconds" validate:"gte=1"`
	TeardownTimeoutSeconds int    `mapstructure:"teardown_timeout_seconds" validate:"gte=1"`
	SendDelayMillis        int    `mapstructure:"send_delay_millis" validate:"gte=0"`
	DefaultCountryCode     string `mapstructure:"default_country_code" validate:"required,numeric,max=4"`
}

// InitTimeout returns the bound on how long a connect attempt may take to reach ready.
func (c ChannelConfig) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSeconds) * time.Second
}

// TeardownTimeout returns the bound on best-effort client teardown.
func (c ChannelConfig) TeardownTimeout() time.Duration {
	return time.Duration(c.TeardownTimeoutSeconds) * time.Second
}

// SendDelay returns the pause inserted between consecutive sends.
func (c ChannelConfig) SendDelay() time.Duration {
	return time.Duration(c.SendDelayMillis) * time.Millisecond
}

// DispatchConfig contains settings for eligibility computation and message rendering.
type DispatchConfig struct {
	// Timezone is the IANA zone used to decide "today" and the current wall-clock time.
	Timezone string `mapstructure:"timezone" validate:"required,timezone"`
	// TemplatesPath optionally points at a YAML message catalog overriding the embedded one.
	TemplatesPath  string `mapstructure:"templates_path"`
	PlanTTLMinutes int    `mapstructure:"plan_ttl_minutes" validate:"gte=1"`
}

// Location resolves the configured timezone. Validation guarantees it loads.
func (d DispatchConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PlanTTL returns how long a previewed plan stays runnable.
func (d DispatchConfig) PlanTTL() time.Duration {
	return time.Duration(d.PlanTTLMinutes) * time.Minute
}
