// Package fake implements an in-memory ARNL system: a lockable robot whose sensor-interpretation
// tasks are driven by a clock, a localizer and a set of lasers.
package fake

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/navbridge/arnl"
	"go.viam.com/navbridge/utils"
)

// Config describes the simulated robot.
type Config struct {
	// SensorInterpPeriodMs is how often the sensor-interpretation tasks run. Zero means tasks only
	// run when RunSensorInterp is called.
	SensorInterpPeriodMs int            `json:"sensor_interp_period_ms,omitempty"`
	InitialPose          arnl.Pose      `json:"initial_pose"`
	Home                 arnl.Pose      `json:"home"`
	MotorsEnabled        bool           `json:"motors_enabled,omitempty"`
	EStopPressed         bool           `json:"estop_pressed,omitempty"`
	LocalizeDelayMs      int            `json:"localize_delay_ms,omitempty"`
	LocalizeFails        bool           `json:"localize_fails,omitempty"`
	Variance             *arnl.Variance `json:"variance,omitempty"`
	Lasers               []string       `json:"lasers,omitempty"`
}

// Validate ensures all parts of the config are valid. Every returned error wraps
// arnl.ErrSetupFailed.
func (cfg *Config) Validate(path string) error {
	if cfg.SensorInterpPeriodMs < 0 {
		return setupError(path, "sensor_interp_period_ms", "must not be negative")
	}
	if cfg.LocalizeDelayMs < 0 {
		return setupError(path, "localize_delay_ms", "must not be negative")
	}
	if !cfg.InitialPose.IsFinite() {
		return setupError(path, "initial_pose", "must be finite")
	}
	if !cfg.Home.IsFinite() {
		return setupError(path, "home", "must be finite")
	}
	if cfg.Variance != nil && (cfg.Variance.XX < 0 || cfg.Variance.YY < 0 || cfg.Variance.ThTh < 0) {
		return setupError(path, "variance", "diagonal terms must not be negative")
	}
	seen := make(map[string]struct{}, len(cfg.Lasers))
	for _, name := range cfg.Lasers {
		if name == "" {
			return setupError(path, "lasers", "names must not be empty")
		}
		if _, ok := seen[name]; ok {
			return setupError(path, "lasers", "duplicate laser "+name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ConfigFromAttributes builds a validated Config from an attribute map.
func ConfigFromAttributes(attributes map[string]interface{}) (Config, error) {
	var cfg Config
	if err := utils.DecodeAttributes(attributes, &cfg); err != nil {
		return Config{}, errors.Wrap(arnl.ErrSetupFailed, err.Error())
	}
	if err := cfg.Validate("sim"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) sensorInterpPeriod() time.Duration {
	return time.Duration(cfg.SensorInterpPeriodMs) * time.Millisecond
}

func (cfg *Config) localizeDelay() time.Duration {
	return time.Duration(cfg.LocalizeDelayMs) * time.Millisecond
}

func setupError(path, field, reason string) error {
	if path != "" {
		field = path + "." + field
	}
	return errors.Wrapf(arnl.ErrSetupFailed, "%s %s", field, reason)
}
