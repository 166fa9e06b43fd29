package unitmodel

import (
	"os"

	"gopkg.in/yaml.v3"
)

// UnitSettings is a unit's runtime transport/tuning configuration — never
// mapping definitions, which only ever arrive through UpdateAllMappings /
// UpdateSingleMapping. Loaded from YAML, not hardcoded.
type UnitSettings struct {
	MIDIDeviceID    string `yaml:"midi_device_id"`
	OSCListenAddr   string `yaml:"osc_listen_addr"`
	OSCSendAddr     string `yaml:"osc_send_addr"`

	PollIntervalMillis     int `yaml:"poll_interval_millis"`
	HighResPollIntervalMillis int `yaml:"high_res_poll_interval_millis"`

	ControlGloballyEnabled  bool `yaml:"control_globally_enabled"`
	FeedbackGloballyEnabled bool `yaml:"feedback_globally_enabled"`
}

// DefaultUnitSettings returns sane defaults for a freshly created unit.
func DefaultUnitSettings() UnitSettings {
	return UnitSettings{
		PollIntervalMillis:        100,
		HighResPollIntervalMillis: 20,
		ControlGloballyEnabled:    true,
		FeedbackGloballyEnabled:   true,
	}
}

// LoadUnitSettings reads and parses a unit settings file.
func LoadUnitSettings(path string) (UnitSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return UnitSettings{}, err
	}
	settings := DefaultUnitSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return UnitSettings{}, err
	}
	return settings, nil
}

// SaveUnitSettings writes settings to path as YAML.
func SaveUnitSettings(path string, settings UnitSettings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ParameterUpdate sets one slot of a unit's shared parameter array, consumed
// by ActivationParameter conditions.
type ParameterUpdate struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}
