package session

import (
	"testing"

	"pgregory.net/rapid"
)

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "왼쪽으로 돌아", "왼쪽으로 돌아"},
		{"empty", "", ""},
		{"whitespace only", "  \t ", ""},
		{"comma run", "네,,,,,알겠어요", "네,알겠어요"},
		{"fullwidth comma run", "네，，，，알겠어요", "네,알겠어요"},
		{"doubled period", "알겠어요..", "알겠어요."},
		{"mixed doubled punctuation", "정말?!.,", "정말?"},
		{"whitespace collapse", "오늘   날씨 \n 어때", "오늘 날씨 어때"},
		{"trailing comma stripped", "좋아요,", "좋아요"},
		{"trailing comma and space", "좋아요 , ", "좋아요"},
		{"hallucinated punctuation", "네., 네., 네., 네.,", ""},
		{"short punctuation kept", "네?!", "네?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanTranscript(tt.in); got != tt.want {
				t.Errorf("CleanTranscript(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanTranscriptIdempotent(t *testing.T) {
	alphabet := []rune("가나다 ,，。.!?…~네아이")
	rapid.Check(t, func(t *rapid.T) {
		runes := rapid.SliceOfN(rapid.SampledFrom(alphabet), 0, 60).Draw(t, "runes")
		once := CleanTranscript(string(runes))
		if twice := CleanTranscript(once); twice != once {
			t.Fatalf("not idempotent:\n once %q\ntwice %q", once, twice)
		}
	})
}
