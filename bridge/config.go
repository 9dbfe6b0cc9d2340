package bridge

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"go.viam.com/navbridge/referenceframe"
	"go.viam.com/navbridge/utils"
)

// Topic and service names, relative to the node's namespace.
const (
	PoseTopic        = "amcl_pose"
	MotorsStateTopic = "motors_state"
	InitialPoseTopic = "initialpose"

	EnableMotorsService       = "enable_motors"
	DisableMotorsService      = "disable_motors"
	GlobalLocalizationService = "global_localization"
)

const (
	poseQueueSize        = 30
	motorsStateQueueSize = 5
	initialPoseQueueSize = 1

	// DefaultTaskName is the name the publication cycle is registered under with the SDK.
	DefaultTaskName = "ROSPublishingTask"
	// DefaultTaskPriority is the sensor-interpretation priority of the publication cycle.
	DefaultTaskPriority = 100
)

// Config describes a bridge Node.
type Config struct {
	// FrameID names the frame published poses are expressed in.
	FrameID string `json:"frame_id"`
	// TFPrefix is prepended to FrameID, for running several robots side by side.
	TFPrefix     string `json:"tf_prefix,omitempty"`
	TaskName     string `json:"task_name"`
	TaskPriority int    `json:"task_priority"`
	// StrictCommands makes command services fail when the command did not take effect (e-stop
	// pressed, localization failed) instead of only logging a warning.
	StrictCommands bool `json:"strict_commands,omitempty"`
}

// DefaultConfig returns the configuration the node runs with when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		FrameID:      referenceframe.Map,
		TaskName:     DefaultTaskName,
		TaskPriority: DefaultTaskPriority,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if err := referenceframe.ValidateFrameName(cfg.FrameID); err != nil {
		return errors.Wrapf(err, "%s.frame_id", path)
	}
	if strings.IndexFunc(cfg.TFPrefix, unicode.IsSpace) >= 0 {
		return errors.Errorf("%s.tf_prefix %q must not contain whitespace", path, cfg.TFPrefix)
	}
	if strings.TrimSpace(cfg.TaskName) == "" {
		return errors.Errorf("%s.task_name must not be empty", path)
	}
	return nil
}

// ResolvedFrameID returns FrameID with the tf prefix applied.
func (cfg *Config) ResolvedFrameID() string {
	return referenceframe.ResolveFrameID(cfg.TFPrefix, cfg.FrameID)
}

// ConfigFromAttributes builds a validated Config from an attribute map, starting from
// DefaultConfig.
func ConfigFromAttributes(attributes map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	if err := utils.DecodeAttributes(attributes, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "bridge config")
	}
	if err := cfg.Validate("bridge"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
