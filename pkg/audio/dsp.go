// Package audio implements the DSP pipeline shared by the inbound (STT) and
// outbound (TTS) audio paths: quality metrics, energy-based trimming, dBFS
// normalization, edge fades, boundary cross-fades, and PCM16LE conversion.
//
// All processing operates on mono float32 samples in [-1, 1] at [SampleRate].
// Functions that modify samples do so in place and return the same slice so
// that pipeline stages compose without reallocating; [TrimEnergy] returns a
// subslice of its input.
package audio

import "math"

// rmsEpsilon keeps the log argument non-zero for silent buffers. A fully
// silent buffer measures 20·log10(ε) = -240 dBFS.
const rmsEpsilon = 1e-12

// frameLen is the analysis window for energy trimming: 20 ms non-overlapping
// frames at [SampleRate].
const frameLen = SampleRate / 50

// Quality holds the three signal metrics used to gate utterances.
type Quality struct {
	// Peak is the maximum absolute sample value.
	Peak float64

	// RMSDB is the RMS level in dBFS.
	RMSDB float64

	// ClipRatio is the percentage of samples at or beyond ±0.999.
	ClipRatio float64
}

// Measure computes the [Quality] metrics of x. An empty buffer measures as
// deep silence (-240 dBFS) with zero peak.
func Measure(x []float32) Quality {
	var q Quality
	if len(x) == 0 {
		q.RMSDB = 20 * math.Log10(rmsEpsilon)
		return q
	}

	var sumSq float64
	var clipped int
	for _, v := range x {
		f := float64(v)
		a := math.Abs(f)
		if a > q.Peak {
			q.Peak = a
		}
		if a >= 0.999 {
			clipped++
		}
		sumSq += f * f
	}
	rms := math.Sqrt(sumSq / float64(len(x)))
	q.RMSDB = 20 * math.Log10(rms+rmsEpsilon)
	q.ClipRatio = float64(clipped) / float64(len(x)) * 100
	return q
}

// TrimEnergy strips leading and trailing low-energy audio. The signal is cut
// into 20 ms non-overlapping frames (a partial tail frame counts); frames
// whose RMS reaches maxFrameRMS·10^(-topDB/20) are considered active. The
// returned subslice covers the first through last active frame, widened by
// padMS on each side and clamped to the buffer. If no frame is active the
// input is returned unchanged.
func TrimEnergy(x []float32, topDB float64, padMS int) []float32 {
	if len(x) == 0 {
		return x
	}

	frames := (len(x) + frameLen - 1) / frameLen
	rms := make([]float64, frames)
	var maxRMS float64
	for i := range frames {
		start := i * frameLen
		end := min(start+frameLen, len(x))
		var sumSq float64
		for _, v := range x[start:end] {
			sumSq += float64(v) * float64(v)
		}
		rms[i] = math.Sqrt(sumSq / float64(end-start))
		if rms[i] > maxRMS {
			maxRMS = rms[i]
		}
	}

	threshold := maxRMS * math.Pow(10, -topDB/20)
	first, last := -1, -1
	for i, r := range rms {
		if r >= threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return x
	}

	pad := padMS * SampleRate / 1000
	start := max(first*frameLen-pad, 0)
	end := min((last+1)*frameLen+pad, len(x))
	return x[start:end]
}

// NormalizeToDBFS scales x toward targetDBFS. The applied gain is bounded to
// [-6 dB, maxGainDB] so that one noisy measurement cannot blow up or crush a
// buffer, and the result is hard-clipped to [-1, 1]. Modifies x in place and
// returns it.
func NormalizeToDBFS(x []float32, targetDBFS, maxGainDB float64) []float32 {
	if len(x) == 0 {
		return x
	}
	gainDB := targetDBFS - Measure(x).RMSDB
	if gainDB < -6 {
		gainDB = -6
	} else if gainDB > maxGainDB {
		gainDB = maxGainDB
	}
	gain := math.Pow(10, gainDB/20)

	for i, v := range x {
		f := float64(v) * gain
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		x[i] = float32(f)
	}
	return x
}

// PeakLimit rescales x so that its peak does not exceed ceiling. Buffers
// already under the ceiling are untouched. Modifies x in place and returns it.
func PeakLimit(x []float32, ceiling float64) []float32 {
	peak := Measure(x).Peak
	if peak <= ceiling || peak == 0 {
		return x
	}
	scale := float32(ceiling / peak)
	for i := range x {
		x[i] *= scale
	}
	return x
}

// RemoveDC subtracts the mean sample value, centering the waveform on zero.
// Synthesis output sometimes carries a small DC offset that turns into a pop
// at chunk boundaries. Modifies x in place and returns it.
func RemoveDC(x []float32) []float32 {
	if len(x) == 0 {
		return x
	}
	var sum float64
	for _, v := range x {
		sum += float64(v)
	}
	mean := float32(sum / float64(len(x)))
	for i := range x {
		x[i] -= mean
	}
	return x
}

// FadeEdges applies a linear fade-in over the first fadeSamples samples and a
// linear fade-out over the last fadeSamples. The fade length is clamped to
// half the buffer so the two ramps never overlap. Modifies x in place and
// returns it.
func FadeEdges(x []float32, fadeSamples int) []float32 {
	n := fadeSamples
	if n*2 > len(x) {
		n = len(x) / 2
	}
	if n <= 0 {
		return x
	}
	for i := range n {
		g := rampUp(i, n)
		x[i] *= g
		x[len(x)-1-i] *= g
	}
	return x
}

// CrossFade joins a and b with complementary linear ramps over their
// overlapping region. The overlap is clamped to the shorter operand; the
// result has exactly len(a)+len(b)-overlap samples (for the clamped overlap).
// Neither input is modified.
func CrossFade(a, b []float32, overlap int) []float32 {
	o := overlap
	if o > len(a) {
		o = len(a)
	}
	if o > len(b) {
		o = len(b)
	}
	if o <= 0 {
		out := make([]float32, 0, len(a)+len(b))
		return append(append(out, a...), b...)
	}

	out := make([]float32, len(a)+len(b)-o)
	copy(out, a[:len(a)-o])
	for i := range o {
		up := rampUp(i, o)
		out[len(a)-o+i] = a[len(a)-o+i]*(1-up) + b[i]*up
	}
	copy(out[len(a):], b[o:])
	return out
}

// CrossFadeAll merges consecutive chunks with [CrossFade] at each boundary.
// With k chunks all at least overlap long the result has Σ len(cᵢ) − (k−1)·overlap
// samples. Empty chunks are skipped.
func CrossFadeAll(chunks [][]float32, overlap int) []float32 {
	var out []float32
	for _, c := range chunks {
		if len(c) == 0 {
			continue
		}
		if out == nil {
			out = append([]float32(nil), c...)
			continue
		}
		out = CrossFade(out, c, overlap)
	}
	return out
}

// rampUp returns the i-th of n linearly spaced gains from 0 to 1 inclusive.
func rampUp(i, n int) float32 {
	if n <= 1 {
		return 0
	}
	return float32(i) / float32(n-1)
}
