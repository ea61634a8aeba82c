// Package types defines the shared types used across all ccoli packages.
//
// These types form the lingua franca between the wire layer, the mode
// dispatcher, the adapters, and the providers. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting
// data structures live here to avoid circular imports.
package types

import (
	"encoding/json"
	"fmt"
)

// Role values for LLM conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// Mode is the behavioral mode of a device session. The dispatcher routes
// every recognized utterance through exactly one mode.
type Mode string

const (
	// ModeRobot maps utterances to servo commands via the robot adapter.
	ModeRobot Mode = "robot"

	// ModeAgent maps utterances to conversational replies with synthesized audio.
	ModeAgent Mode = "agent"
)

// ParseMode converts s into a [Mode]. Unknown values return an error so that
// config typos fail loudly instead of silently selecting a default.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRobot, ModeAgent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want \"robot\" or \"agent\")", s)
	}
}

// Intent is a conversational intent tag extracted from an agent reply.
type Intent string

const (
	IntentNone      Intent = "none"
	IntentSleep     Intent = "sleep"
	IntentModeRobot Intent = "mode_robot"
	IntentModeAgent Intent = "mode_agent"
)

// ParseIntent maps s onto the closed intent set. Unknown or empty values map
// to [IntentNone]; intents never fail.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentSleep, IntentModeRobot, IntentModeAgent:
		return Intent(s)
	default:
		return IntentNone
	}
}

// Action enumerates the closed set of device command actions carried in CMD
// packets. Unknown actions never reach the wire.
type Action string

const (
	// ActionNoop reports that an utterance produced no device action.
	ActionNoop Action = "NOOP"

	// ActionWiggle triggers the device's attention animation.
	ActionWiggle Action = "WIGGLE"

	// ActionStop halts the named servo where it stands.
	ActionStop Action = "STOP"

	// ActionServoSet moves a servo to an absolute angle.
	ActionServoSet Action = "SERVO_SET"

	// ActionSwitchMode requests a mode change. Consumed by the dispatcher;
	// never forwarded to the device.
	ActionSwitchMode Action = "SWITCH_MODE"

	// ActionEmotion carries an LED/servo emotion expression.
	ActionEmotion Action = "EMOTION"
)

// MinAngle and MaxAngle bound the servo's mechanical range in degrees.
const (
	MinAngle = 0
	MaxAngle = 180
)

// ClampAngle forces angle into the servo's [MinAngle, MaxAngle] range.
func ClampAngle(angle int) int {
	if angle < MinAngle {
		return MinAngle
	}
	if angle > MaxAngle {
		return MaxAngle
	}
	return angle
}

// RGBColor is an LED color in 8-bit channels.
type RGBColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// LEDState describes an LED animation: a named pattern, its speed multiplier,
// and the base color.
type LEDState struct {
	Pattern string   `json:"pattern"`
	Speed   float64  `json:"speed"`
	Color   RGBColor `json:"color"`
}

// EmotionPayload is the body of an EMOTION command. The emotion and servo
// action names are produced by the emotion subsystem from its closed enums;
// at this level they are already wire strings.
type EmotionPayload struct {
	Emotion     string   `json:"emotion"`
	LED         LEDState `json:"led"`
	ServoAction string   `json:"servo_action"`
}

// Command is a tagged device command. Only the fields relevant to Action are
// encoded; see [Command.MarshalJSON] for the per-action wire shapes.
//
// Commands are values: adapters construct them, the dispatcher may rewrite
// SID and angle, and the wire layer serializes them exactly once.
type Command struct {
	Action Action

	// SID identifies the utterance this command answers (NOOP, WIGGLE, SERVO_SET).
	SID uint64

	// Servo is the servo index (STOP, SERVO_SET). The reference device has one
	// servo at index 0.
	Servo int

	// Angle is the absolute target angle for SERVO_SET. Callers must clamp via
	// [ClampAngle] before emission.
	Angle int

	// Mode is the target mode for SWITCH_MODE.
	Mode Mode

	// Meaningful reports whether the utterance mapped to a real action;
	// Recognized reports whether any text was transcribed at all (NOOP, SERVO_SET).
	Meaningful bool
	Recognized bool

	// Emotion is the EMOTION payload. Nil for every other action.
	Emotion *EmotionPayload
}

// MarshalJSON encodes the command in the device's wire shape. Each action has
// a fixed field set; booleans are always present for the actions that carry
// them (the device distinguishes "meaningful": false from an absent field).
func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Action {
	case ActionNoop:
		return json.Marshal(struct {
			Action     Action `json:"action"`
			SID        uint64 `json:"sid"`
			Meaningful bool   `json:"meaningful"`
			Recognized bool   `json:"recognized"`
		}{c.Action, c.SID, c.Meaningful, c.Recognized})
	case ActionWiggle:
		return json.Marshal(struct {
			Action Action `json:"action"`
			SID    uint64 `json:"sid"`
		}{c.Action, c.SID})
	case ActionStop:
		return json.Marshal(struct {
			Action Action `json:"action"`
			Servo  int    `json:"servo"`
		}{c.Action, c.Servo})
	case ActionServoSet:
		return json.Marshal(struct {
			Action     Action `json:"action"`
			Servo      int    `json:"servo"`
			Angle      int    `json:"angle"`
			SID        uint64 `json:"sid"`
			Meaningful bool   `json:"meaningful"`
			Recognized bool   `json:"recognized"`
		}{c.Action, c.Servo, c.Angle, c.SID, c.Meaningful, c.Recognized})
	case ActionSwitchMode:
		return json.Marshal(struct {
			Action Action `json:"action"`
			Mode   Mode   `json:"mode"`
		}{c.Action, c.Mode})
	case ActionEmotion:
		if c.Emotion == nil {
			return nil, fmt.Errorf("EMOTION command without payload")
		}
		return json.Marshal(struct {
			Action      Action   `json:"action"`
			Emotion     string   `json:"emotion"`
			LED         LEDState `json:"led"`
			ServoAction string   `json:"servo_action"`
		}{c.Action, c.Emotion.Emotion, c.Emotion.LED, c.Emotion.ServoAction})
	default:
		return nil, fmt.Errorf("unknown command action %q", c.Action)
	}
}
