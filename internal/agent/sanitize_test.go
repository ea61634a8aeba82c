package agent

import (
	"testing"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

func TestExtractIntent(t *testing.T) {
	s := newSanitizer("아이")

	tests := []struct {
		name       string
		reply      string
		wantText   string
		wantIntent types.Intent
	}{
		{"no tag", "안녕!", "안녕!", types.IntentNone},
		{"sleep tag", "잘 자요. [INTENT:sleep]", "잘 자요. ", types.IntentSleep},
		{"mode tag", "[INTENT:mode_robot] 알겠어요.", " 알겠어요.", types.IntentModeRobot},
		{"unknown tag stripped", "네. [INTENT:dance]", "네. ", types.IntentNone},
		{"multiple tags, first wins", "응. [INTENT:sleep][INTENT:mode_agent]", "응. ", types.IntentSleep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, intent := s.extractIntent(tt.reply)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if intent != tt.wantIntent {
				t.Errorf("intent = %s, want %s", intent, tt.wantIntent)
			}
		})
	}
}

func TestCleanSelfIntro(t *testing.T) {
	s := newSanitizer("아이")

	tests := []struct {
		in   string
		want string
	}{
		{"안녕하세요! 저는 아이예요. 오늘 날씨 좋네요.", "오늘 날씨 좋네요."},
		{"제 이름은 아이입니다. 반가워요.", "반가워요."},
		{"아이예요! 무슨 일이에요?", "무슨 일이에요?"},
		{"오늘은 비가 와요.", "오늘은 비가 와요."},
	}
	for _, tt := range tests {
		if got := s.clean(tt.in); got != tt.want {
			t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanEmojiAndWhitespace(t *testing.T) {
	s := newSanitizer("아이")

	tests := []struct {
		in   string
		want string
	}{
		{"좋아요! 😊👍", "좋아요!"},
		{"해  를   봐요 ☀️", "해 를 봐요"},
		{"줄\n바꿈\t정리", "줄 바꿈 정리"},
		{"🎉🎉🎉", ""},
	}
	for _, tt := range tests {
		if got := s.clean(tt.in); got != tt.want {
			t.Errorf("clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
