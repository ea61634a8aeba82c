package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// CatalogEntry is one voice command the robot mode can map utterances onto.
type CatalogEntry struct {
	// Name is the command identifier shown to the model and logged.
	Name string `yaml:"name"`

	// Keywords are spoken phrases that should trigger the command.
	Keywords []string `yaml:"keywords"`

	// Action is the device action emitted when the command matches.
	Action types.Action `yaml:"action"`

	// Servo is the target servo index for SERVO_SET and STOP.
	Servo int `yaml:"servo"`

	// Angle is the absolute target angle for SERVO_SET. Relative commands
	// (e.g., "more to the left") leave it at zero and set Delta instead.
	Angle int `yaml:"angle"`

	// Delta is a relative angle adjustment applied to the current position.
	Delta int `yaml:"delta"`
}

// catalogFile is the top-level shape of commands.yaml.
type catalogFile struct {
	Commands []CatalogEntry `yaml:"commands"`
}

// LoadCatalog reads the voice command catalog from the YAML file at path.
// A missing file yields [DefaultCatalog].
func LoadCatalog(path string) ([]CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return nil, fmt.Errorf("config: open catalog %q: %w", path, err)
	}
	defer f.Close()

	entries, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse catalog %q: %w", path, err)
	}
	return entries, nil
}

// LoadCatalogFromReader decodes and validates a command catalog from r.
func LoadCatalogFromReader(r io.Reader) ([]CatalogEntry, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("config: decode catalog yaml: %w", err)
	}

	var errs []error
	seen := make(map[string]int, len(file.Commands))
	for i, e := range file.Commands {
		prefix := fmt.Sprintf("commands[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of commands[%d]", prefix, e.Name, prev))
		} else {
			seen[e.Name] = i
		}
		if len(e.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("%s.keywords must not be empty", prefix))
		}
		switch e.Action {
		case types.ActionServoSet, types.ActionStop, types.ActionSwitchMode, types.ActionWiggle:
		default:
			errs = append(errs, fmt.Errorf("%s.action %q is invalid; valid values: SERVO_SET, STOP, SWITCH_MODE, WIGGLE", prefix, e.Action))
		}
		if e.Action == types.ActionServoSet && e.Delta == 0 {
			if e.Angle < types.MinAngle || e.Angle > types.MaxAngle {
				errs = append(errs, fmt.Errorf("%s.angle %d is out of range [%d, %d]", prefix, e.Angle, types.MinAngle, types.MaxAngle))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return file.Commands, nil
}

// DefaultCatalog returns the built-in command set of the single-servo
// reference device.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Name: "center", Keywords: []string{"가운데", "중앙", "센터"}, Action: types.ActionServoSet, Angle: 90},
		{Name: "left", Keywords: []string{"왼쪽", "좌측"}, Action: types.ActionServoSet, Angle: 180},
		{Name: "right", Keywords: []string{"오른쪽", "우측"}, Action: types.ActionServoSet, Angle: 0},
		{Name: "more_left", Keywords: []string{"더 왼쪽", "조금 왼쪽"}, Action: types.ActionServoSet, Delta: 30},
		{Name: "more_right", Keywords: []string{"더 오른쪽", "조금 오른쪽"}, Action: types.ActionServoSet, Delta: -30},
		{Name: "stop", Keywords: []string{"멈춰", "정지", "그만"}, Action: types.ActionStop},
		{Name: "wiggle", Keywords: []string{"흔들어", "인사"}, Action: types.ActionWiggle},
		{Name: "agent_mode", Keywords: []string{"대화 모드", "에이전트 모드"}, Action: types.ActionSwitchMode},
	}
}
