package audio

import (
	"math"
	"time"
)

// SampleRate is the fixed pipeline sample rate in Hz. Every audio buffer in
// the system — device capture, STT input, TTS output — is mono PCM at this
// rate; the device firmware and the wire format both assume it.
const SampleRate = 16000

// BytesPerSample is the width of one PCM16LE sample.
const BytesPerSample = 2

// PCM16ToFloat32 decodes little-endian int16 PCM into float32 samples in
// [-1, 1). A trailing odd byte is dropped.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToPCM16 encodes float32 samples as little-endian int16 PCM.
// Samples are scaled by 32767, rounded, and clamped to the int16 range.
func Float32ToPCM16(x []float32) []byte {
	out := make([]byte, len(x)*BytesPerSample)
	for i, v := range x {
		s := int(math.Round(float64(v) * 32767))
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Duration returns the playback time of n samples at [SampleRate].
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// PCMDuration returns the playback time of a PCM16LE byte buffer.
func PCMDuration(bytes int) time.Duration {
	return Duration(bytes / BytesPerSample)
}

// SamplesFor returns the number of samples covering d at [SampleRate].
func SamplesFor(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}
