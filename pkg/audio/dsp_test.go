package audio_test

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/jwhan-dev/ccoli/pkg/audio"
)

// constant returns n samples all set to v.
func constant(n int, v float32) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestMeasure(t *testing.T) {
	q := audio.Measure(constant(1600, 0.5))
	if math.Abs(q.Peak-0.5) > 1e-6 {
		t.Errorf("peak: got %v, want 0.5", q.Peak)
	}
	// RMS of a constant 0.5 signal is 0.5 → 20·log10(0.5) ≈ -6.02 dBFS.
	if math.Abs(q.RMSDB-(-6.0206)) > 0.01 {
		t.Errorf("rms_db: got %v, want ≈ -6.02", q.RMSDB)
	}
	if q.ClipRatio != 0 {
		t.Errorf("clip_ratio: got %v, want 0", q.ClipRatio)
	}
}

func TestMeasure_ClipRatio(t *testing.T) {
	x := []float32{1.0, 0, 0, 0}
	q := audio.Measure(x)
	if q.ClipRatio != 25 {
		t.Errorf("clip_ratio: got %v, want 25", q.ClipRatio)
	}
}

func TestMeasure_Empty(t *testing.T) {
	q := audio.Measure(nil)
	if q.RMSDB > -200 {
		t.Errorf("empty buffer should measure as deep silence, got %v dBFS", q.RMSDB)
	}
	if q.Peak != 0 {
		t.Errorf("peak of empty buffer: got %v, want 0", q.Peak)
	}
}

func TestTrimEnergy(t *testing.T) {
	// 100 ms silence, 200 ms tone, 100 ms silence (frame = 320 samples).
	x := make([]float32, 0, 6400)
	x = append(x, constant(1600, 0)...)
	x = append(x, constant(3200, 0.5)...)
	x = append(x, constant(1600, 0)...)

	got := audio.TrimEnergy(x, 35, 0)
	if len(got) != 3200 {
		t.Fatalf("trimmed length: got %d, want 3200", len(got))
	}
	if got[0] != 0.5 || got[len(got)-1] != 0.5 {
		t.Errorf("trim did not isolate the tone: first %v, last %v", got[0], got[len(got)-1])
	}
}

func TestTrimEnergy_Pad(t *testing.T) {
	x := make([]float32, 0, 6400)
	x = append(x, constant(1600, 0)...)
	x = append(x, constant(3200, 0.5)...)
	x = append(x, constant(1600, 0)...)

	// 20 ms pad = 320 samples on each side.
	got := audio.TrimEnergy(x, 35, 20)
	if len(got) != 3840 {
		t.Fatalf("padded trim length: got %d, want 3840", len(got))
	}
}

func TestTrimEnergy_AllSilence(t *testing.T) {
	x := constant(3200, 0)
	got := audio.TrimEnergy(x, 35, 140)
	if len(got) != len(x) {
		t.Errorf("silent input should pass through unchanged: got %d, want %d", len(got), len(x))
	}
}

func TestTrimEnergy_PadClampedToBounds(t *testing.T) {
	x := constant(640, 0.5)
	got := audio.TrimEnergy(x, 35, 1000)
	if len(got) != len(x) {
		t.Errorf("pad past the buffer must clamp: got %d, want %d", len(got), len(x))
	}
}

func TestNormalizeToDBFS(t *testing.T) {
	// Constant 0.1 is -20 dBFS; -2 dB of gain reaches the -22 target.
	x := audio.NormalizeToDBFS(constant(1600, 0.1), -22, 20)
	want := math.Pow(10, -22.0/20)
	if math.Abs(float64(x[0])-want) > 1e-3 {
		t.Errorf("normalized sample: got %v, want ≈ %v", x[0], want)
	}
}

func TestNormalizeToDBFS_GainCap(t *testing.T) {
	// -60 dBFS input wants +42 dB to reach -18; the cap allows only +18.
	x := audio.NormalizeToDBFS(constant(1600, 0.001), -18, 18)
	want := 0.001 * math.Pow(10, 18.0/20)
	if math.Abs(float64(x[0])-want) > 1e-4 {
		t.Errorf("gain-capped sample: got %v, want ≈ %v", x[0], want)
	}
}

func TestNormalizeToDBFS_AttenuationFloor(t *testing.T) {
	// Constant 0.9 is ≈ -0.9 dBFS; the -22 target wants -21 dB but the
	// floor allows at most -6 dB.
	x := audio.NormalizeToDBFS(constant(1600, 0.9), -22, 18)
	want := 0.9 * math.Pow(10, -6.0/20)
	if math.Abs(float64(x[0])-want) > 1e-3 {
		t.Errorf("attenuation-floored sample: got %v, want ≈ %v", x[0], want)
	}
}

func TestNormalizeToDBFS_HardClip(t *testing.T) {
	x := []float32{1, 0, 0, 0}
	audio.NormalizeToDBFS(x, 0, 18)
	for i, v := range x {
		if v > 1 || v < -1 {
			t.Errorf("sample %d escaped [-1,1]: %v", i, v)
		}
	}
}

func TestPeakLimit(t *testing.T) {
	x := audio.PeakLimit([]float32{0.95, -0.5}, 0.90)
	if math.Abs(float64(x[0])-0.90) > 1e-6 {
		t.Errorf("limited peak: got %v, want 0.90", x[0])
	}

	y := audio.PeakLimit([]float32{0.8, -0.5}, 0.90)
	if y[0] != 0.8 {
		t.Errorf("under-ceiling buffer must be untouched: got %v", y[0])
	}
}

func TestRemoveDC(t *testing.T) {
	x := audio.RemoveDC([]float32{1, 0, 1, 0})
	want := []float32{0.5, -0.5, 0.5, -0.5}
	for i := range want {
		if math.Abs(float64(x[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, x[i], want[i])
		}
	}
}

func TestFadeEdges(t *testing.T) {
	x := audio.FadeEdges(constant(10, 1), 3)
	// Fade-in: 0, 0.5, 1 … fade-out mirrored.
	checks := map[int]float32{0: 0, 1: 0.5, 2: 1, 7: 1, 8: 0.5, 9: 0}
	for i, want := range checks {
		if math.Abs(float64(x[i]-want)) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, x[i], want)
		}
	}
}

func TestFadeEdges_ShortBuffer(t *testing.T) {
	// Fades longer than half the buffer are clamped so the ramps never cross.
	x := audio.FadeEdges(constant(4, 1), 10)
	if x[0] != 0 || x[3] != 0 {
		t.Errorf("edges should be fully faded: got %v … %v", x[0], x[3])
	}
}

func TestCrossFade(t *testing.T) {
	a := constant(6, 1)
	b := constant(6, 0)
	out := audio.CrossFade(a, b, 2)
	if len(out) != 10 {
		t.Fatalf("length: got %d, want 10", len(out))
	}
	// Complementary ramps: the first overlap sample is pure a, the last pure b.
	if out[4] != 1 {
		t.Errorf("overlap start: got %v, want 1", out[4])
	}
	if out[5] != 0 {
		t.Errorf("overlap end: got %v, want 0", out[5])
	}
}

func TestCrossFade_ConstantSignal(t *testing.T) {
	// Complementary ramps must sum to unity: two unit signals merge to a
	// unit signal with no dip at the seam.
	out := audio.CrossFade(constant(8, 1), constant(8, 1), 4)
	for i, v := range out {
		if math.Abs(float64(v)-1) > 1e-6 {
			t.Fatalf("sample %d dipped to %v", i, v)
		}
	}
}

func TestCrossFade_ZeroOverlap(t *testing.T) {
	out := audio.CrossFade(constant(3, 1), constant(4, 0), 0)
	if len(out) != 7 {
		t.Errorf("zero-overlap merge should concatenate: got %d samples, want 7", len(out))
	}
}

func TestCrossFadeAll_Length(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		overlap := rapid.IntRange(0, 64).Draw(t, "overlap")
		k := rapid.IntRange(1, 6).Draw(t, "chunks")

		chunks := make([][]float32, k)
		total := 0
		for i := range chunks {
			n := rapid.IntRange(overlap, 400).Draw(t, "len")
			chunks[i] = constant(n, 0.25)
			total += n
		}

		out := audio.CrossFadeAll(chunks, overlap)
		want := total - (k-1)*overlap
		if len(out) != want {
			t.Fatalf("merged length: got %d, want %d (k=%d overlap=%d)", len(out), want, k, overlap)
		}
	})
}
