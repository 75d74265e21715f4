package model

import (
	"encoding/json"
	"fmt"
)

// Effect names one stage of the effect chain.
type Effect string

const (
	EffectEcho     Effect = "echo"
	EffectReverse  Effect = "reverse"
	EffectLowpass  Effect = "lowpass"
	EffectHighpass Effect = "highpass"
	EffectSpeedup  Effect = "speedup"
	EffectSlowdown Effect = "slowdown"
	EffectDistort  Effect = "distort"
)

// KnownEffects lists every effect in pipeline order.
var KnownEffects = []Effect{
	EffectEcho,
	EffectReverse,
	EffectLowpass,
	EffectHighpass,
	EffectSpeedup,
	EffectSlowdown,
	EffectDistort,
}

// Effects is the set of enabled toggles on a sound. On the wire it is a map
// of flag name to bool; unknown names are dropped and missing ones are false.
type Effects struct {
	Echo     bool
	Reverse  bool
	Lowpass  bool
	Highpass bool
	Speedup  bool
	Slowdown bool
	Distort  bool
}

func (e *Effects) flag(name Effect) *bool {
	switch name {
	case EffectEcho:
		return &e.Echo
	case EffectReverse:
		return &e.Reverse
	case EffectLowpass:
		return &e.Lowpass
	case EffectHighpass:
		return &e.Highpass
	case EffectSpeedup:
		return &e.Speedup
	case EffectSlowdown:
		return &e.Slowdown
	case EffectDistort:
		return &e.Distort
	}
	return nil
}

// Has reports whether the named effect is enabled.
func (e Effects) Has(name Effect) bool {
	if p := e.flag(name); p != nil {
		return *p
	}
	return false
}

// Set toggles a known effect. It returns false for unknown names.
func (e *Effects) Set(name Effect, on bool) bool {
	p := e.flag(name)
	if p == nil {
		return false
	}
	*p = on
	return true
}

// Enabled returns the enabled effects in pipeline order.
func (e Effects) Enabled() []Effect {
	var out []Effect
	for _, name := range KnownEffects {
		if e.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// MarshalJSON always writes every known flag.
func (e Effects) MarshalJSON() ([]byte, error) {
	m := make(map[Effect]bool, len(KnownEffects))
	for _, name := range KnownEffects {
		m[name] = e.Has(name)
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts a flag map. Unknown keys such as the retired "reverb"
// are ignored. A JSON null leaves every flag false.
func (e *Effects) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = Effects{}
	for k, raw := range m {
		p := e.flag(Effect(k))
		if p == nil {
			continue
		}
		if err := json.Unmarshal(raw, p); err != nil {
			return fmt.Errorf("effect %q: %w", k, err)
		}
	}
	return nil
}
