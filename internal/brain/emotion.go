package brain

import (
	"strings"
	"sync"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// EmotionState is the assistant's current affect. The set is closed; every
// state maps to a fixed LED animation and servo gesture on the device.
type EmotionState string

const (
	EmotionHappy   EmotionState = "happy"
	EmotionSad     EmotionState = "sad"
	EmotionExcited EmotionState = "excited"
	EmotionSleepy  EmotionState = "sleepy"
	EmotionAngry   EmotionState = "angry"
	EmotionNeutral EmotionState = "neutral"
)

// emotionHistoryLen bounds how many observations influence the current
// state; decayFactor discounts each step into the past.
const (
	emotionHistoryLen = 10
	decayFactor       = 0.8
)

// emotionKeywords score an utterance toward each state. Matching is plain
// substring containment over the raw Korean text.
var emotionKeywords = map[EmotionState][]string{
	EmotionHappy:   {"좋아", "고마워", "감사", "행복", "최고", "좋네", "웃", "재밌"},
	EmotionSad:     {"슬퍼", "슬프", "우울", "힘들", "외로", "눈물", "속상"},
	EmotionExcited: {"신나", "대박", "우와", "짱", "놀라", "멋지", "멋져"},
	EmotionSleepy:  {"졸려", "피곤", "잘게", "잘자", "자야", "하품"},
	EmotionAngry:   {"화나", "짜증", "싫어", "그만해", "답답", "열받"},
}

// emotionLED maps each state to its LED animation.
var emotionLED = map[EmotionState]types.LEDState{
	EmotionHappy:   {Pattern: "pulse", Speed: 1.2, Color: types.RGBColor{R: 255, G: 200, B: 0}},
	EmotionSad:     {Pattern: "breath", Speed: 0.6, Color: types.RGBColor{R: 30, G: 60, B: 255}},
	EmotionExcited: {Pattern: "blink", Speed: 1.8, Color: types.RGBColor{R: 255, G: 64, B: 160}},
	EmotionSleepy:  {Pattern: "breath", Speed: 0.4, Color: types.RGBColor{R: 120, G: 60, B: 200}},
	EmotionAngry:   {Pattern: "blink", Speed: 1.5, Color: types.RGBColor{R: 255, G: 32, B: 16}},
	EmotionNeutral: {Pattern: "steady", Speed: 1.0, Color: types.RGBColor{R: 255, G: 255, B: 255}},
}

// emotionServo maps each state to the device gesture played with it.
var emotionServo = map[EmotionState]string{
	EmotionHappy:   "bounce",
	EmotionSad:     "droop",
	EmotionExcited: "wiggle",
	EmotionSleepy:  "nod",
	EmotionAngry:   "shake",
	EmotionNeutral: "none",
}

// Emotion tracks the assistant's affect over recent turns. Each observed
// utterance is scored against the keyword tables; the current state is the
// decayed sum over the last observations, so a single outlier does not flip
// the mood and an unattended mood drifts back to neutral.
type Emotion struct {
	mu      sync.Mutex
	history []EmotionState // most recent last
}

// NewEmotion returns a neutral engine.
func NewEmotion() *Emotion {
	return &Emotion{}
}

// Observe scores one utterance and records the dominant state.
func (e *Emotion) Observe(text string) {
	best := EmotionNeutral
	bestScore := 0
	for state, words := range emotionKeywords {
		score := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && state < best) {
			best, bestScore = state, score
		}
	}

	e.mu.Lock()
	e.history = append(e.history, best)
	if len(e.history) > emotionHistoryLen {
		e.history = e.history[len(e.history)-emotionHistoryLen:]
	}
	e.mu.Unlock()
}

// Current returns the decay-weighted dominant state of the recent history.
func (e *Emotion) Current() EmotionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	scores := make(map[EmotionState]float64, len(emotionKeywords))
	weight := 1.0
	for i := len(e.history) - 1; i >= 0; i-- {
		if s := e.history[i]; s != EmotionNeutral {
			scores[s] += weight
		}
		weight *= decayFactor
	}

	best := EmotionNeutral
	bestScore := 0.5 // anything weaker than half an observation is neutral
	for state, score := range scores {
		if score > bestScore || (score == bestScore && state < best) {
			best, bestScore = state, score
		}
	}
	return best
}

// Command renders the current state as a device EMOTION command. Neutral
// yields nil; the device keeps its idle animation.
func (e *Emotion) Command() *types.Command {
	state := e.Current()
	if state == EmotionNeutral {
		return nil
	}
	return &types.Command{
		Action: types.ActionEmotion,
		Emotion: &types.EmotionPayload{
			Emotion:     string(state),
			LED:         emotionLED[state],
			ServoAction: emotionServo[state],
		},
	}
}
