package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers veilgate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("go_duration", validateGoDuration); err != nil {
		return fmt.Errorf("failed to register go_duration validator: %w", err)
	}
	return nil
}

// validateGoDuration validates a string parseable by time.ParseDuration,
// used for proxy.connection_timeout and api_key_protection.storage.ttl.
func validateGoDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.ParseDuration(value)
	return err == nil
}

// Validate validates Config using struct tags and cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}

	return nil
}

// validateDurations checks the duration-string fields struct tags can't
// reach without a registered custom tag on every call site.
func (c *Config) validateDurations() error {
	if c.Proxy.ConnectionTimeout != "" {
		if _, err := time.ParseDuration(c.Proxy.ConnectionTimeout); err != nil {
			return fmt.Errorf("proxy.connection_timeout: %w", err)
		}
	}
	if c.APIKeyProtection.Storage.TTL != "" {
		if _, err := time.ParseDuration(c.APIKeyProtection.Storage.TTL); err != nil {
			return fmt.Errorf("api_key_protection.storage.ttl: %w", err)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "go_duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. \"30s\", \"1h\")", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
