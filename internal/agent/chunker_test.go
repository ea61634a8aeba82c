package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"

	"github.com/jwhan-dev/ccoli/pkg/audio"
)

func TestSplitForSpeechShortText(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"spaces only", "   "},
		{"short", "안녕하세요."},
		{"exactly at limit", strings.Repeat("가", singleChunkMax)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitForSpeech(tt.in, 3)
			want := strings.TrimSpace(tt.in)
			if want == "" {
				if parts != nil {
					t.Errorf("parts = %q, want nil", parts)
				}
				return
			}
			if len(parts) != 1 || parts[0] != want {
				t.Errorf("parts = %q, want [%q]", parts, want)
			}
		})
	}
}

func TestSplitForSpeechPrefersPunctuation(t *testing.T) {
	// 60 runes, ideal cut at 30, a period a few runes to the right of it.
	left := strings.Repeat("가", 32) + "."
	right := strings.Repeat("나", 27)
	parts := splitForSpeech(left+right, 3)

	if len(parts) != 2 {
		t.Fatalf("got %d parts %q, want 2", len(parts), parts)
	}
	if !strings.HasSuffix(parts[0], ".") {
		t.Errorf("first part %q does not end at the punctuation cut", parts[0])
	}
	if strings.Contains(parts[1], ".") {
		t.Errorf("second part %q contains the cut punctuation", parts[1])
	}
}

func TestSplitForSpeechFallsBackToWhitespace(t *testing.T) {
	left := strings.Repeat("가", 30)
	right := strings.Repeat("나", 29)
	parts := splitForSpeech(left+" "+right, 3)

	if len(parts) != 2 {
		t.Fatalf("got %d parts %q, want 2", len(parts), parts)
	}
	if parts[0] != left || parts[1] != right {
		t.Errorf("parts = %q, want cut at the space", parts)
	}
}

func TestSplitForSpeechThreeWay(t *testing.T) {
	text := strings.Repeat("가", 40) + ". " + strings.Repeat("나", 40) + ". " + strings.Repeat("다", 40)
	parts := splitForSpeech(text, 3)
	if len(parts) != 3 {
		t.Fatalf("got %d parts %q, want 3", len(parts), parts)
	}
}

func TestSplitForSpeechRespectsMaxChunks(t *testing.T) {
	text := strings.Repeat("가나다 ", 60)
	if parts := splitForSpeech(text, 1); len(parts) != 1 {
		t.Errorf("maxChunks=1: got %d parts", len(parts))
	}
	if parts := splitForSpeech(text, 2); len(parts) > 2 {
		t.Errorf("maxChunks=2: got %d parts", len(parts))
	}
}

func TestSplitForSpeechMergesFragments(t *testing.T) {
	// The trailing fragment after the last period is shorter than mergeMin
	// and must fold into its neighbor.
	text := strings.Repeat("가", 50) + ". " + strings.Repeat("나", 40) + ". 네"
	for _, p := range splitForSpeech(text, 3) {
		if utf8.RuneCountInString(p) < mergeMin {
			t.Errorf("fragment %q shorter than %d runes survived", p, mergeMin)
		}
	}
}

func TestSplitForSpeechProperties(t *testing.T) {
	alphabet := []rune("가나다라마바사 .?!,안녕하세요")
	rapid.Check(t, func(t *rapid.T) {
		runes := rapid.SliceOfN(rapid.SampledFrom(alphabet), 1, 300).Draw(t, "runes")
		text := string(runes)
		maxChunks := rapid.IntRange(1, 3).Draw(t, "maxChunks")

		parts := splitForSpeech(text, maxChunks)

		if strings.TrimSpace(text) == "" {
			if parts != nil {
				t.Fatalf("blank input produced parts %q", parts)
			}
			return
		}
		if len(parts) == 0 || len(parts) > maxChunks {
			t.Fatalf("got %d parts for maxChunks=%d", len(parts), maxChunks)
		}

		strip := func(s string) string {
			return strings.Join(strings.Fields(s), "")
		}
		if got, want := strip(strings.Join(parts, "")), strip(text); got != want {
			t.Fatalf("content changed:\n got %q\nwant %q", got, want)
		}

		if len(parts) > 1 {
			for _, p := range parts {
				if utf8.RuneCountInString(p) < mergeMin {
					t.Fatalf("fragment %q below merge minimum in %q", p, parts)
				}
			}
		}
	})
}

func TestPostProcessPositionalPads(t *testing.T) {
	// 200 ms of tone surrounded by 500 ms of silence on each side. The trim
	// pad determines how much silence survives.
	silence := make([]float32, audio.SampleRate/2)
	tone := make([]float32, audio.SampleRate/5)
	for i := range tone {
		if i%2 == 0 {
			tone[i] = 0.3
		} else {
			tone[i] = -0.3
		}
	}
	signal := append(append(append([]float32(nil), silence...), tone...), silence...)

	single := postProcess(signal, 0, 1)
	first := postProcess(signal, 0, 3)
	middle := postProcess(signal, 1, 3)
	last := postProcess(signal, 2, 3)

	// An unsplit reply keeps the most silence; within a split reply the
	// outer edges keep more than the interior.
	if !(len(single) > len(first) && len(first) > len(middle)) {
		t.Errorf("pad ordering violated: single=%d first=%d middle=%d",
			len(single), len(first), len(middle))
	}
	if len(first) != len(last) {
		t.Errorf("edge pads differ: first=%d last=%d", len(first), len(last))
	}
	for _, s := range single {
		if s > chunkPeak || s < -chunkPeak {
			t.Fatalf("sample %v exceeds peak ceiling", s)
		}
	}
}
