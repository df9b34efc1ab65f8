package engine

import (
	"math"

	"github.com/hvirtane/sfplay"
)

// Rate returns the playback rate for playing sample at targetNote through
// zone on a device running at outputRate. The tuning is the semitone
// distance from the sample's original pitch plus the per-sample and per-zone
// cent corrections; the sample-rate ratio is source over output, so a sample
// authored at a higher rate than the device plays back faster than 1 to keep
// its pitch when resampled on output-rate timing.
func Rate(targetNote int, sample *sfplay.Sample, zone *sfplay.Zone, outputRate int) float64 {
	cents := (targetNote-sample.OriginalPitch)*100 + sample.PitchCorrection + zone.FineTuneCents()
	rate := math.Exp2(float64(cents) / 1200)
	return rate * float64(sample.SampleRate) / float64(outputRate)
}
