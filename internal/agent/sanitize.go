package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// intentRe matches the trailing intent tag the persona prompt asks for.
var intentRe = regexp.MustCompile(`\[INTENT:(\w+)\]`)

// wsRe collapses any whitespace run to a single space.
var wsRe = regexp.MustCompile(`\s+`)

// sanitizer strips model artifacts from replies before synthesis: the
// assistant re-introducing itself every turn, emoji the TTS voice would read
// out loud, and stray whitespace.
type sanitizer struct {
	selfIntro []*regexp.Regexp
}

func newSanitizer(name string) *sanitizer {
	q := regexp.QuoteMeta(name)
	patterns := []string{
		fmt.Sprintf(`(안녕하세요[!.,~\s]*)?(저는|전|제 이름은)\s*%s\s*(입니다|이에요|예요|라고 해요|라고 합니다)[!.,~\s]*`, q),
		fmt.Sprintf(`%s\s*(입니다|이에요|예요)[!.,~\s]*`, q),
	}
	s := &sanitizer{}
	for _, p := range patterns {
		s.selfIntro = append(s.selfIntro, regexp.MustCompile(p))
	}
	return s
}

// extractIntent pulls the first intent tag out of the reply and returns the
// reply with every tag removed. Unknown tags map to IntentNone.
func (s *sanitizer) extractIntent(reply string) (string, types.Intent) {
	intent := types.IntentNone
	if m := intentRe.FindStringSubmatch(reply); m != nil {
		intent = types.ParseIntent(m[1])
	}
	return intentRe.ReplaceAllString(reply, ""), intent
}

// clean normalizes a reply for speech. May return "" when nothing survives;
// the caller substitutes the canned fallback.
func (s *sanitizer) clean(reply string) string {
	for _, re := range s.selfIntro {
		reply = re.ReplaceAllString(reply, "")
	}
	reply = stripEmoji(reply)
	reply = wsRe.ReplaceAllString(reply, " ")
	return strings.TrimSpace(reply)
}

// stripEmoji drops emoji and their joiner/variation codepoints. The covered
// block runs from regional indicators through the symbols-extended plane,
// plus the common misc-symbol ranges below it.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x1F1E6 && r <= 0x1FAFF:
		case r >= 0x2600 && r <= 0x27BF:
		case r == 0x200D, r == 0xFE0E, r == 0xFE0F:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
