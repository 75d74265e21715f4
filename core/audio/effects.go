package audio

import (
	"openhowl/model"
)

// Fixed effect constants.
const (
	MinVolumeDB = -60.0

	EchoDelayMs    = 150
	EchoRepeats    = 5
	EchoDecayDB    = -10.0
	ReverseBoostDB = 5.0

	LowpassCutoffHz  = 300.0
	HighpassCutoffHz = 3000.0

	SpeedupRatio  = 1.5
	SlowdownRatio = 0.7

	DistortBoostDB = 50.0
	DistortTrimDB  = -10.0
)

// Params selects the playback window, volume and effects for one render.
type Params struct {
	TrimStartMs int64
	TrimEndMs   int64 // <= 0 plays to the end
	Volume      int   // percent, clamped into [0,100]
	Effects     model.Effects
}

// ParamsFor extracts render parameters from a catalog record.
func ParamsFor(s *model.Sound) Params {
	return Params{
		TrimStartMs: s.TrimStart,
		TrimEndMs:   s.TrimEnd,
		Volume:      s.Volume,
		Effects:     s.Effects,
	}
}

// VolumeToDB maps a volume percentage linearly onto [-60 dB, 0 dB].
func VolumeToDB(pct int) float64 {
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return float64(pct)/100*60 - 60
}

// Apply runs the effect chain on buf. The stage order is fixed:
// trim, volume, echo, reverse, lowpass, highpass, speed, distort.
// Stages whose flag is off are skipped; buf itself is left untouched.
func Apply(buf *Buffer, p Params) *Buffer {
	endMs := p.TrimEndMs
	if endMs <= 0 {
		endMs = buf.DurationMs() + 1
	}
	out := buf.Slice(p.TrimStartMs, endMs)

	out = out.Gain(VolumeToDB(p.Volume))

	fx := p.Effects
	if fx.Echo {
		out = echo(out)
	}
	if fx.Reverse {
		out = out.Reverse().Gain(ReverseBoostDB)
	}
	if fx.Lowpass {
		out = out.LowPass(LowpassCutoffHz)
	}
	if fx.Highpass {
		out = out.HighPass(HighpassCutoffHz)
	}
	switch {
	case fx.Speedup:
		out = out.ChangeSpeed(SpeedupRatio)
	case fx.Slowdown:
		out = out.ChangeSpeed(SlowdownRatio)
	}
	if fx.Distort {
		out = distort(out)
	}
	return out
}

// echo compounds EchoRepeats passes: each pass lays the current signal,
// delayed by EchoDelayMs, over an attenuated copy of itself.
func echo(b *Buffer) *Buffer {
	for i := 0; i < EchoRepeats; i++ {
		b = b.Gain(EchoDecayDB).Overlay(b, EchoDelayMs)
	}
	return b
}

// distort clips the signal by stacking two +50 dB boosts, then trims back.
func distort(b *Buffer) *Buffer {
	boosted := b.Gain(DistortBoostDB)
	blownOut := boosted.Gain(DistortBoostDB)
	return boosted.Overlay(blownOut, 0).Gain(DistortTrimDB)
}
