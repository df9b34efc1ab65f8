package engine

import (
	"math"
	"testing"
)

func TestReleaseSeconds(t *testing.T) {
	tests := []struct {
		name      string
		timecents *int
		want      float64
	}{
		{"absent generator defaults", nil, 0.2},
		{"zero timecents is one second", intp(0), 1.0},
		{"1200 timecents is two seconds", intp(1200), 2.0},
		{"-1200 timecents is half a second", intp(-1200), 0.5},
		{"clamped below", intp(-100000), 0.01},
		{"clamped above", intp(100000), 10},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := ReleaseSeconds(test.timecents)
			if math.Abs(got-test.want) > 1e-9 {
				t.Errorf("ReleaseSeconds = %v, want %v", got, test.want)
			}
		})
	}
}

func TestOtherEnvelopeStages(t *testing.T) {
	if got := AttackSeconds(nil); got != 0.001 {
		t.Errorf("AttackSeconds(nil) = %v, want 0.001", got)
	}
	if got := AttackSeconds(intp(100000)); got != 5 {
		t.Errorf("AttackSeconds clamp = %v, want 5", got)
	}
	if got := HoldSeconds(nil); got != 0 {
		t.Errorf("HoldSeconds(nil) = %v, want 0", got)
	}
	if got := HoldSeconds(intp(0)); got != 1 {
		t.Errorf("HoldSeconds(0) = %v, want 1", got)
	}
	if got := DecaySeconds(nil); got != 0.001 {
		t.Errorf("DecaySeconds(nil) = %v, want 0.001", got)
	}
	if got := DecaySeconds(intp(100000)); got != 10 {
		t.Errorf("DecaySeconds clamp = %v, want 10", got)
	}
}
