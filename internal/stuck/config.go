// Package stuck derives stuck conditions from repository session state
// and owns the lifecycle of the resulting alerts.
package stuck

import (
	"fmt"

	"github.com/hochfrequenz/claude-session-monitor/internal/domain"
)

// Config tunes stuck detection. All thresholds are scaled by the
// sensitivity multiplier before evaluation.
type Config struct {
	Enabled                      bool               `toml:"enabled" json:"enabled"`
	SensitivityLevel             domain.Sensitivity `toml:"sensitivity_level" json:"sensitivityLevel"`
	NoOutputThresholdSeconds     int                `toml:"no_output_threshold_seconds" json:"noOutputThresholdSeconds"`
	WaitingInputThresholdSeconds int                `toml:"waiting_input_threshold_seconds" json:"waitingInputThresholdSeconds"`
	RepeatedFailureCount         int                `toml:"repeated_failure_count" json:"repeatedFailureCount"`
	EnableToastNotifications     bool               `toml:"enable_toast_notifications" json:"enableToastNotifications"`
	EnableSoundAlerts            bool               `toml:"enable_sound_alerts" json:"enableSoundAlerts"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                      true,
		SensitivityLevel:             domain.SensitivityMedium,
		NoOutputThresholdSeconds:     120,
		WaitingInputThresholdSeconds: 60,
		RepeatedFailureCount:         3,
		EnableToastNotifications:     true,
		EnableSoundAlerts:            false,
	}
}

// ValidationError reports a rejected configuration update. The prior
// configuration stays active when validation fails.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid detection config: %s %s", e.Field, e.Reason)
}

// Validate checks the config before it is applied.
func (c Config) Validate() error {
	switch c.SensitivityLevel {
	case domain.SensitivityLow, domain.SensitivityMedium, domain.SensitivityHigh:
	default:
		return &ValidationError{Field: "sensitivity_level", Reason: fmt.Sprintf("must be low, medium or high, got %q", c.SensitivityLevel)}
	}
	if c.NoOutputThresholdSeconds <= 0 {
		return &ValidationError{Field: "no_output_threshold_seconds", Reason: "must be positive"}
	}
	if c.WaitingInputThresholdSeconds <= 0 {
		return &ValidationError{Field: "waiting_input_threshold_seconds", Reason: "must be positive"}
	}
	if c.RepeatedFailureCount <= 0 {
		return &ValidationError{Field: "repeated_failure_count", Reason: "must be positive"}
	}
	return nil
}
