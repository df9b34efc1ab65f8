package engine

import (
	"errors"
	"fmt"

	"github.com/hvirtane/sfplay"
)

var (
	// ErrMissingPair means the matched zones contain no left-pan/right-pan
	// generator pair, so a stereo voice cannot be built from them.
	ErrMissingPair = errors.New("zones contain no stereo pan pair")

	// ErrMissingSample means a matched zone carries no usable sample
	// reference.
	ErrMissingSample = errors.New("matched zone carries no sample")
)

// realizeStereo builds a stereo voice from the zones matching a note and
// velocity: the first left-panned zone feeds the left channel and the first
// right-panned zone the right one. Both buffers are pulled through the
// cache, the playback rate is computed once from the left zone and sample
// (the pair must share pitch) and both channels start on the same cursor at
// the same frame so the pair stays sample accurate. Looping is disabled for
// all sources: playback is one-shot decay to silence.
func (e *Engine) realizeStereo(note, velocity int, zones []sfplay.Zone, frame int64) (*Voice, error) {
	var leftZone, rightZone *sfplay.Zone
	for i := range zones {
		switch {
		case zones[i].PanValue() < 0 && leftZone == nil:
			leftZone = &zones[i]
		case zones[i].PanValue() > 0 && rightZone == nil:
			rightZone = &zones[i]
		}
	}
	if leftZone == nil || rightZone == nil {
		return nil, ErrMissingPair
	}
	leftSample := e.bank.SampleForZone(leftZone)
	rightSample := e.bank.SampleForZone(rightZone)
	if leftSample == nil || rightSample == nil {
		return nil, ErrMissingSample
	}
	left, err := e.cache.Get(*leftZone.SampleID)
	if err != nil {
		return nil, fmt.Errorf("left channel: %w", err)
	}
	right, err := e.cache.Get(*rightZone.SampleID)
	if err != nil {
		return nil, fmt.Errorf("right channel: %w", err)
	}
	v := &Voice{
		Note:             note,
		Velocity:         velocity,
		left:             left,
		right:            right,
		rate:             Rate(note, leftSample, leftZone, e.cfg.SampleRate),
		startFrame:       frame,
		stopFrame:        -1,
		gain:             velocityGain(velocity),
		state:            StateSustaining,
		releaseTimecents: leftZone.Release,
	}
	return v, nil
}

// realizeMono is the fallback for zones lacking a genuine stereo pair: the
// first zone with a sample plays centered through a single cursor, with the
// same velocity curve.
func (e *Engine) realizeMono(note, velocity int, zones []sfplay.Zone, frame int64) (*Voice, error) {
	for i := range zones {
		sample := e.bank.SampleForZone(&zones[i])
		if sample == nil {
			continue
		}
		data, err := e.cache.Get(*zones[i].SampleID)
		if err != nil {
			return nil, err
		}
		return &Voice{
			Note:             note,
			Velocity:         velocity,
			left:             data,
			rate:             Rate(note, sample, &zones[i], e.cfg.SampleRate),
			startFrame:       frame,
			stopFrame:        -1,
			gain:             velocityGain(velocity),
			state:            StateSustaining,
			releaseTimecents: zones[i].Release,
		}, nil
	}
	return nil, ErrMissingSample
}

// velocityGain maps MIDI velocity to gain with a squared curve, which is
// perceptually closer to linear loudness than raw velocity.
func velocityGain(velocity int) float32 {
	normalized := float32(velocity) / 127
	return normalized * normalized
}
