package engine

import (
	"math"
	"testing"

	"github.com/hvirtane/sfplay"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name       string
		note       int
		sample     sfplay.Sample
		zone       sfplay.Zone
		outputRate int
		want       float64
	}{
		{
			name:       "identity",
			note:       60,
			sample:     sfplay.Sample{SampleRate: 44100, OriginalPitch: 60},
			outputRate: 44100,
			want:       1.0,
		},
		{
			name:       "octave up doubles",
			note:       72,
			sample:     sfplay.Sample{SampleRate: 44100, OriginalPitch: 60},
			outputRate: 44100,
			want:       2.0,
		},
		{
			name:       "octave down halves",
			note:       48,
			sample:     sfplay.Sample{SampleRate: 44100, OriginalPitch: 60},
			outputRate: 44100,
			want:       0.5,
		},
		{
			name:       "sample correction cents",
			note:       60,
			sample:     sfplay.Sample{SampleRate: 44100, OriginalPitch: 60, PitchCorrection: 100},
			outputRate: 44100,
			want:       math.Exp2(1.0 / 12),
		},
		{
			name:       "zone fine tune cents",
			note:       60,
			sample:     sfplay.Sample{SampleRate: 44100, OriginalPitch: 60},
			zone:       sfplay.Zone{Generators: sfplay.Generators{FineTune: intp(-100)}},
			outputRate: 44100,
			want:       math.Exp2(-1.0 / 12),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Rate(test.note, &test.sample, &test.zone, test.outputRate)
			if math.Abs(got-test.want) > 1e-9 {
				t.Errorf("Rate = %v, want %v", got, test.want)
			}
		})
	}
}

// A sample authored at 48kHz played on a 44.1kHz device must advance its
// cursor faster than realtime, not slower: the ratio is source over output.
func TestRateResamplingDirection(t *testing.T) {
	sample := sfplay.Sample{SampleRate: 48000, OriginalPitch: 60}
	got := Rate(60, &sample, &sfplay.Zone{}, 44100)
	want := 48000.0 / 44100.0 // ~1.08844
	if math.Abs(got-want) > 1e-4 {
		t.Errorf("Rate = %v, want %v", got, want)
	}
	if got <= 1 {
		t.Errorf("Rate = %v; a 48k sample on a 44.1k device must play faster than 1", got)
	}
}

func intp(v int) *int { return &v }
