// Package config provides configuration management for the turfpilot engine.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Provider  ProviderConfig  `mapstructure:"provider" validate:"required"`
	GPI       GPIConfig       `mapstructure:"gpi" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"metrics" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// ProviderConfig represents the odds/calibration provider endpoints
type ProviderConfig struct {
	BaseURL                string  `mapstructure:"base_url" validate:"required,url"`
	StreamURL              string  `mapstructure:"stream_url" validate:"omitempty,url"`
	APIKey                 string  `mapstructure:"api_key"`
	TimeoutSeconds         int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RetryAttempts          int     `mapstructure:"retry_attempts" validate:"gte=0"`
	RateLimitPerSecond     float64 `mapstructure:"rate_limit_per_second" validate:"required,gt=0"`
	CalibrationTTLSeconds  int     `mapstructure:"calibration_ttl_seconds" validate:"required,gt=0"`
	StreamReconnectSeconds int     `mapstructure:"stream_reconnect_seconds" validate:"required,gt=0"`
}

// GPIConfig carries every betting-discipline threshold. All fields are
// explicit and overridable per deployment; nothing defaults silently at a
// use site.
type GPIConfig struct {
	Budget                   float64 `mapstructure:"budget" validate:"required,gt=0"`
	KellyFraction            float64 `mapstructure:"kelly_fraction" validate:"required,gt=0,lte=1"`
	ExposureCapFraction      float64 `mapstructure:"exposure_cap_fraction" validate:"required,gt=0,lte=1"`
	OverroundCeiling         float64 `mapstructure:"overround_ceiling" validate:"required,gt=1"`
	OverroundCeilingHandicap float64 `mapstructure:"overround_ceiling_handicap" validate:"required,gt=1"`
	HandicapStartersMin      int     `mapstructure:"handicap_starters_min" validate:"required,gt=0"`
	EVMinSP                  float64 `mapstructure:"ev_min_sp" validate:"gte=0"`
	ROIMinSP                 float64 `mapstructure:"roi_min_sp" validate:"gte=0"`
	SPMaxProbability         float64 `mapstructure:"sp_max_probability" validate:"required,gt=0,lte=1"`
	EVMinCombo               float64 `mapstructure:"ev_min_combo" validate:"gte=0"`
	ROIMinCombo              float64 `mapstructure:"roi_min_combo" validate:"gte=0"`
	MinComboPayout           float64 `mapstructure:"min_combo_payout" validate:"gte=0"`
	EVMinGlobal              float64 `mapstructure:"ev_min_global" validate:"gte=0"`
	MinStakeIncrement        float64 `mapstructure:"min_stake_increment" validate:"required,gt=0"`
	MaxTicketsPerRace        int     `mapstructure:"max_tickets_per_race" validate:"required,gt=0,lte=2"`
	FreshnessMaxAgeSeconds   int     `mapstructure:"freshness_max_age_seconds" validate:"required,gt=0"`
	MonteCarloIterations     int     `mapstructure:"monte_carlo_iterations" validate:"required,gt=0"`
	MonteCarloSeed           int64   `mapstructure:"monte_carlo_seed" validate:"required"`
}

// FreshnessMaxAge returns the freshness window as a duration
func (g *GPIConfig) FreshnessMaxAge() time.Duration {
	return time.Duration(g.FreshnessMaxAgeSeconds) * time.Second
}

// SchedulerConfig represents checkpoint scheduling configuration
type SchedulerConfig struct {
	DayPlanCron     string `mapstructure:"day_plan_cron" validate:"required"`
	ResultSweepCron string `mapstructure:"result_sweep_cron" validate:"required"`
	H30LeadMinutes  int    `mapstructure:"h30_lead_minutes" validate:"required,gt=0"`
	H5LeadMinutes   int    `mapstructure:"h5_lead_minutes" validate:"required,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
