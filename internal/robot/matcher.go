package robot

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/jwhan-dev/ccoli/internal/config"
)

const (
	// fuzzyThreshold is the Jaro-Winkler score a non-phonetic candidate must
	// reach; phoneticThreshold applies when the candidate already overlaps
	// phonetically.
	fuzzyThreshold    = 0.85
	phoneticThreshold = 0.70
)

// Matcher maps an utterance onto a catalog entry without a model call.
//
// Matching proceeds in three stages:
//
//  1. Verbatim containment: a keyword appearing inside the utterance wins
//     outright; longer keywords win over shorter ones.
//  2. Phonetic candidates: Double Metaphone codes of the utterance tokens are
//     compared with each keyword's codes. Hangul yields no codes, so this
//     stage fires mainly for romanized command words the transcriber
//     sometimes produces.
//  3. Jaro-Winkler ranking: candidates are ranked by string similarity, with
//     a lower acceptance bar for phonetic candidates than for pure-fuzzy
//     ones.
//
// The Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	entries []config.CatalogEntry
}

// NewMatcher builds a matcher over the given catalog.
func NewMatcher(entries []config.CatalogEntry) *Matcher {
	return &Matcher{entries: entries}
}

// Match returns the best catalog entry for the utterance and its score.
// matched is false when nothing clears the thresholds.
func (m *Matcher) Match(utterance string) (entry config.CatalogEntry, score float64, matched bool) {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return config.CatalogEntry{}, 0, false
	}

	// Stage 1: verbatim containment, longest keyword first.
	bestLen := 0
	for _, e := range m.entries {
		for _, kw := range e.Keywords {
			k := strings.ToLower(strings.TrimSpace(kw))
			if k != "" && strings.Contains(text, k) && len(k) > bestLen {
				entry, bestLen, matched = e, len(k), true
			}
		}
	}
	if matched {
		return entry, 1, true
	}

	// Stages 2 and 3: phonetic candidates ranked by Jaro-Winkler.
	tokens := strings.Fields(text)
	inputCodes := codesForTokens(tokens)

	var best struct {
		entry    config.CatalogEntry
		score    float64
		phonetic bool
		found    bool
	}
	for _, e := range m.entries {
		for _, kw := range e.Keywords {
			k := strings.ToLower(strings.TrimSpace(kw))
			if k == "" {
				continue
			}
			kwTokens := strings.Fields(k)
			phonetic := codesOverlap(inputCodes, codesForTokens(kwTokens))
			jw := bestJWScore(tokens, kwTokens, text, k)

			if phonetic {
				if jw >= phoneticThreshold && (!best.phonetic || jw > best.score) {
					best.entry, best.score, best.phonetic, best.found = e, jw, true, true
				}
			} else if !best.phonetic {
				if jw >= fuzzyThreshold && jw > best.score {
					best.entry, best.score, best.found = e, jw, true
				}
			}
		}
	}
	if best.found {
		return best.entry, best.score, true
	}
	return config.CatalogEntry{}, 0, false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded; Hangul tokens produce none.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// utterance and a keyword using full strings, space-stripped strings, and the
// best pairwise token score.
func bestJWScore(inputTokens, kwTokens []string, inputFull, kwFull string) float64 {
	score := matchr.JaroWinkler(inputFull, kwFull, false)

	if len(inputTokens) > 1 || len(kwTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(kwTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, kt := range kwTokens {
			if s := matchr.JaroWinkler(it, kt, false); s > score {
				score = s
			}
		}
	}
	return score
}
