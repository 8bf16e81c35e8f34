// Package config provides configuration management for the turfpilot engine.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/turfpilot/internal/models"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	v.RegisterValidation("environment", validateEnvironment)
	v.RegisterValidation("loglevel", validateLogLevel)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration. Any failure is a fatal
// ErrConfigInvalid: the pipeline must never run with substituted defaults.
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	err := cv.validator.Struct(cfg)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("%w: %v", models.ErrConfigInvalid, err)
	}

	if err := validateCrossField(cfg); err != nil {
		return err
	}

	return nil
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	gpi := &cfg.GPI

	if gpi.MinStakeIncrement > gpi.Budget {
		return fmt.Errorf("%w: min_stake_increment %.2f exceeds budget %.2f",
			models.ErrConfigInvalid, gpi.MinStakeIncrement, gpi.Budget)
	}

	// The handicap ceiling is the stricter of the two by construction
	if gpi.OverroundCeilingHandicap > gpi.OverroundCeiling {
		return fmt.Errorf("%w: overround_ceiling_handicap %.2f must not exceed overround_ceiling %.2f",
			models.ErrConfigInvalid, gpi.OverroundCeilingHandicap, gpi.OverroundCeiling)
	}

	if gpi.EVMinCombo < gpi.EVMinSP {
		return fmt.Errorf("%w: ev_min_combo %.2f below ev_min_sp %.2f",
			models.ErrConfigInvalid, gpi.EVMinCombo, gpi.EVMinSP)
	}

	if gpi.ROIMinCombo < gpi.ROIMinSP {
		return fmt.Errorf("%w: roi_min_combo %.2f below roi_min_sp %.2f",
			models.ErrConfigInvalid, gpi.ROIMinCombo, gpi.ROIMinSP)
	}

	if cfg.Scheduler.H5LeadMinutes >= cfg.Scheduler.H30LeadMinutes {
		return fmt.Errorf("%w: h5_lead_minutes %d must be closer to the start than h30_lead_minutes %d",
			models.ErrConfigInvalid, cfg.Scheduler.H5LeadMinutes, cfg.Scheduler.H30LeadMinutes)
	}

	if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("%w: production environment requires SSL mode 'require' or 'verify-full'",
			models.ErrConfigInvalid)
	}

	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("%w: max_idle_connections cannot exceed max_connections",
			models.ErrConfigInvalid)
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg string
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			errMsg += fmt.Sprintf("- Field '%s' is required\n", field)
		case "url":
			errMsg += fmt.Sprintf("- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			errMsg += fmt.Sprintf("- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			errMsg += fmt.Sprintf("- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "oneof":
			errMsg += fmt.Sprintf("- Field '%s' has invalid value '%v'\n", field, value)
		default:
			errMsg += fmt.Sprintf("- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("%w:\n%s", models.ErrConfigInvalid, errMsg)
}
