package agent

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jwhan-dev/ccoli/pkg/audio"
)

// Replies are synthesized in up to three pieces so playback can start before
// the whole reply is rendered. Short replies are not worth the extra
// synthesis round-trips.
const (
	singleChunkMax = 44 // runes; at or below, never split
	twoChunkMax    = 92 // runes; at or below, split in two, else three

	// splitBefore/splitAfter bound the search window around the ideal cut
	// point. Punctuation inside the window wins over whitespace.
	splitBefore = 10
	splitAfter  = 12

	// mergeMin folds fragments shorter than this into their left neighbor.
	mergeMin = 6
)

// splitPunct are the cut characters preferred inside a split window.
const splitPunct = ".?!,;:。！？"

// Per-chunk post-processing parameters. An unsplit reply keeps a generous
// silence pad; in a multi-chunk reply the outer edges keep a moderate pad and
// interior boundaries sit close together so the cross-fade does not bridge
// silence.
const (
	trimTopDB   = 35.0
	padSingleMS = 140
	padEdgeMS   = 80
	padMiddleMS = 40

	chunkTargetDBFS = -18.0
	chunkMaxGainDB  = 18.0
	chunkPeak       = 0.90

	fadeDur      = 8 * time.Millisecond
	crossFadeDur = 12 * time.Millisecond
)

// splitForSpeech cuts text into at most maxChunks speakable pieces. Cuts
// prefer punctuation, then whitespace, inside a window around the even split
// point; pieces below mergeMin runes are merged back into their neighbor.
func splitForSpeech(text string, maxChunks int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	target := 1
	switch {
	case maxChunks <= 1 || n <= singleChunkMax:
	case n <= twoChunkMax:
		target = 2
	default:
		target = 3
	}
	if target > maxChunks {
		target = maxChunks
	}
	if target == 1 {
		return []string{text}
	}

	parts := make([]string, 0, target)
	rest := runes
	for remaining := target; remaining > 1 && len(rest) > 0; remaining-- {
		ideal := len(rest) / remaining
		cut := findCut(rest, ideal)
		parts = append(parts, strings.TrimSpace(string(rest[:cut])))
		rest = rest[cut:]
	}
	parts = append(parts, strings.TrimSpace(string(rest)))

	return mergeShort(parts)
}

// findCut picks a cut index near ideal: the rightmost punctuation in the
// window wins, then the rightmost whitespace, then ideal itself.
func findCut(runes []rune, ideal int) int {
	lo := ideal - splitBefore
	if lo < 1 {
		lo = 1
	}
	hi := ideal + splitAfter
	if hi > len(runes)-1 {
		hi = len(runes) - 1
	}
	if lo > hi {
		return clampCut(ideal, len(runes))
	}

	for i := hi; i >= lo; i-- {
		if strings.ContainsRune(splitPunct, runes[i]) {
			return i + 1 // keep the punctuation with the left piece
		}
	}
	for i := hi; i >= lo; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return clampCut(ideal, len(runes))
}

func clampCut(cut, n int) int {
	if cut < 1 {
		return 1
	}
	if cut >= n {
		return n - 1
	}
	return cut
}

// mergeShort folds pieces below mergeMin runes into the previous piece (the
// first piece merges forward instead). Empty pieces are dropped.
func mergeShort(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len(out) > 0 && utf8.RuneCountInString(p) < mergeMin {
			out[len(out)-1] = strings.TrimSpace(out[len(out)-1] + " " + p)
			continue
		}
		out = append(out, p)
	}
	if len(out) >= 2 && utf8.RuneCountInString(out[0]) < mergeMin {
		out[1] = strings.TrimSpace(out[0] + " " + out[1])
		out = out[1:]
	}
	return out
}

// postProcess normalizes one synthesized chunk: DC removal, positional
// silence trim, loudness normalization, peak limiting, and edge fades so the
// later cross-fade has clean boundaries.
func postProcess(samples []float32, index, total int) []float32 {
	pad := padMiddleMS
	switch {
	case total == 1:
		pad = padSingleMS
	case index == 0 || index == total-1:
		pad = padEdgeMS
	}

	out := audio.RemoveDC(samples)
	out = audio.TrimEnergy(out, trimTopDB, pad)
	out = audio.NormalizeToDBFS(out, chunkTargetDBFS, chunkMaxGainDB)
	out = audio.PeakLimit(out, chunkPeak)
	return audio.FadeEdges(out, audio.SamplesFor(fadeDur))
}
