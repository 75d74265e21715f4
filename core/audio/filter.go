package audio

import (
	"math"
)

func truncate16(v float64) int16 {
	v = math.Trunc(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// LowPass applies a single-pole RC low-pass filter at cutoffHz.
func (b *Buffer) LowPass(cutoffHz float64) *Buffer {
	out := make([]int16, len(b.Samples))
	if len(out) == 0 || b.SampleRate <= 0 {
		return b.withSamples(out)
	}
	rc := 1 / (cutoffHz * 2 * math.Pi)
	dt := 1 / float64(b.SampleRate)
	alpha := dt / (rc + dt)

	last := float64(b.Samples[0])
	out[0] = b.Samples[0]
	for i := 1; i < len(b.Samples); i++ {
		last += alpha * (float64(b.Samples[i]) - last)
		out[i] = truncate16(last)
	}
	return b.withSamples(out)
}

// HighPass applies a single-pole RC high-pass filter at cutoffHz.
func (b *Buffer) HighPass(cutoffHz float64) *Buffer {
	out := make([]int16, len(b.Samples))
	if len(out) == 0 || b.SampleRate <= 0 {
		return b.withSamples(out)
	}
	rc := 1 / (cutoffHz * 2 * math.Pi)
	dt := 1 / float64(b.SampleRate)
	alpha := rc / (rc + dt)

	last := float64(b.Samples[0])
	out[0] = b.Samples[0]
	for i := 1; i < len(b.Samples); i++ {
		last = alpha * (last + float64(b.Samples[i]) - float64(b.Samples[i-1]))
		out[i] = truncate16(last)
	}
	return b.withSamples(out)
}

// ChangeSpeed plays the buffer ratio times faster by linear-interpolation
// resampling at the same sample rate; pitch moves with speed.
func (b *Buffer) ChangeSpeed(ratio float64) *Buffer {
	if ratio <= 0 || len(b.Samples) == 0 {
		return b.withSamples([]int16{})
	}
	n := int(float64(len(b.Samples)) / ratio)
	out := make([]int16, n)
	last := len(b.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = b.Samples[last]
			continue
		}
		frac := pos - float64(idx)
		v := float64(b.Samples[idx])*(1-frac) + float64(b.Samples[idx+1])*frac
		out[i] = truncate16(math.Round(v))
	}
	return b.withSamples(out)
}
