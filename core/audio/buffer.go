package audio

import (
	"encoding/binary"
	"math"
)

// Buffer is decoded mono signed 16-bit PCM. Operations return new buffers
// and never modify the receiver.
type Buffer struct {
	SampleRate int
	Samples    []int16
}

// NewBuffer wraps samples without copying.
func NewBuffer(sampleRate int, samples []int16) *Buffer {
	return &Buffer{SampleRate: sampleRate, Samples: samples}
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	return len(b.Samples)
}

// DurationMs returns the buffer length in milliseconds, rounded down.
func (b *Buffer) DurationMs() int64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return int64(len(b.Samples)) * 1000 / int64(b.SampleRate)
}

// frameAt converts a millisecond offset to a sample index clamped to [0, Len].
func (b *Buffer) frameAt(ms int64) int {
	if ms <= 0 || b.SampleRate <= 0 {
		return 0
	}
	if ms > b.DurationMs()+1 {
		return len(b.Samples)
	}
	idx := ms * int64(b.SampleRate) / 1000
	if idx > int64(len(b.Samples)) {
		return len(b.Samples)
	}
	return int(idx)
}

func (b *Buffer) withSamples(samples []int16) *Buffer {
	return &Buffer{SampleRate: b.SampleRate, Samples: samples}
}

// Slice returns [startMs, endMs). Bounds are clamped to the buffer and an
// inverted range yields an empty buffer.
func (b *Buffer) Slice(startMs, endMs int64) *Buffer {
	start, end := b.frameAt(startMs), b.frameAt(endMs)
	if start >= end {
		return b.withSamples([]int16{})
	}
	out := make([]int16, end-start)
	copy(out, b.Samples[start:end])
	return b.withSamples(out)
}

// DBToFactor converts a decibel gain into a linear amplitude factor.
func DBToFactor(db float64) float64 {
	return math.Pow(10, db/20)
}

// clamp16 floors v and saturates it to the int16 range.
func clamp16(v float64) int16 {
	v = math.Floor(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Gain scales every sample by db decibels, saturating at full scale.
func (b *Buffer) Gain(db float64) *Buffer {
	factor := DBToFactor(db)
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = clamp16(float64(s) * factor)
	}
	return b.withSamples(out)
}

// Overlay mixes other into b starting at positionMs. The result keeps b's
// length; the part of other that runs past the end is dropped.
func (b *Buffer) Overlay(other *Buffer, positionMs int64) *Buffer {
	out := make([]int16, len(b.Samples))
	copy(out, b.Samples)
	pos := b.frameAt(positionMs)
	for i := pos; i < len(out) && i-pos < len(other.Samples); i++ {
		out[i] = clamp16(float64(out[i]) + float64(other.Samples[i-pos]))
	}
	return b.withSamples(out)
}

// Reverse returns the buffer played backwards.
func (b *Buffer) Reverse() *Buffer {
	n := len(b.Samples)
	out := make([]int16, n)
	for i, s := range b.Samples {
		out[n-1-i] = s
	}
	return b.withSamples(out)
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() int {
	peak := 0
	for _, s := range b.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// SamplesToBytes encodes samples as little-endian s16le.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples decodes little-endian s16le. A trailing odd byte is ignored.
func BytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}
