package session

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Transcription sanitation bounds. Whisper on borderline audio tends to emit
// long runs of commas and repeated punctuation; a transcript that is mostly
// punctuation is hallucinated noise, not speech.
const (
	punctRatioMinLen = 8
	punctRatioMax    = 0.35
)

var (
	commaRunRe    = regexp.MustCompile(`[,，]{3,}`)
	doubledRe     = regexp.MustCompile(`([,，。.!?])[,，。.!?]+`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
	trailingComma = regexp.MustCompile(`[,，\s]+$`)
)

// punctRunes are the characters counted toward the hallucination ratio.
const punctRunes = ",，。.!?…~"

// CleanTranscript normalizes a raw transcription for dispatch. It returns ""
// when the text is empty after cleaning or looks hallucinated. The function
// is idempotent: CleanTranscript(CleanTranscript(s)) == CleanTranscript(s).
func CleanTranscript(s string) string {
	s = commaRunRe.ReplaceAllString(s, ",")
	s = doubledRe.ReplaceAllString(s, "$1")
	s = strings.TrimSpace(spaceRunRe.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}

	if n := utf8.RuneCountInString(s); n >= punctRatioMinLen {
		punct := 0
		for _, r := range s {
			if strings.ContainsRune(punctRunes, r) {
				punct++
			}
		}
		if float64(punct)/float64(n) > punctRatioMax {
			return ""
		}
	}

	return trailingComma.ReplaceAllString(s, "")
}
