package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestEffectsUnmarshalIgnoresUnknownKeys(t *testing.T) {
	var e Effects
	raw := `{"echo": true, "reverb": true, "distort": true, "wobble": "yes"}`
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Effects{Echo: true, Distort: true}
	if e != want {
		t.Errorf("got %+v, want %+v", e, want)
	}
}

func TestEffectsUnmarshalRejectsBadKnownValue(t *testing.T) {
	var e Effects
	if err := json.Unmarshal([]byte(`{"echo": "loud"}`), &e); err == nil {
		t.Fatal("expected error for non-boolean echo flag")
	}
}

func TestEffectsMarshalWritesAllFlags(t *testing.T) {
	data, err := json.Marshal(Effects{Reverse: true})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if len(m) != len(KnownEffects) {
		t.Fatalf("got %d flags, want %d", len(m), len(KnownEffects))
	}
	if !m["reverse"] || m["echo"] {
		t.Errorf("unexpected flags %v", m)
	}
}

func TestEffectsEnabledOrder(t *testing.T) {
	e := Effects{Distort: true, Echo: true, Highpass: true}
	got := e.Enabled()
	want := []Effect{EffectEcho, EffectHighpass, EffectDistort}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Enabled() = %v, want %v", got, want)
	}
	if e.Set("reverb", true) {
		t.Error("Set should refuse unknown effects")
	}
}

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   Sound
		want Sound
	}{
		{
			name: "trim end follows length",
			in:   Sound{Name: "  horn ", Length: 10000, Volume: 70},
			want: Sound{Name: "horn", Length: 10000, Volume: 70, TrimEnd: 10000},
		},
		{
			name: "blank name and out of range volume",
			in:   Sound{Name: " ", Length: 500, Volume: 140, TrimStart: -5, TrimEnd: 300},
			want: Sound{Name: DefaultName, Length: 500, Volume: 100, TrimEnd: 300},
		},
		{
			name: "negative volume",
			in:   Sound{Name: "x", Volume: -1},
			want: Sound{Name: "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.ApplyDefaults()
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
