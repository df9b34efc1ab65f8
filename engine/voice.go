package engine

import "math"

// State is the lifecycle state of a voice. A voice is created directly in
// Sustaining (velocity shaping stands in for a distinct attack segment),
// moves to Releasing exactly once, and ends in Stopped when its cursor runs
// out, its scheduled stop passes, or it is stolen.
type State int

const (
	StateAttacking State = iota
	StateSustaining
	StateReleasing
	StateStopped
)

// Stealing priority tuning. The relative ordering matters (releasing voices
// go first, then quiet ones, then old ones); the exact constants are
// empirical and safe to tune.
var (
	stealReleasingPenalty   = 1000.0
	stealAgePointsPerSecond = 10.0
)

type (
	// Voice is one sounding instance of a note: up to two playback channels
	// (a stereo pair, or one for the mono fallback) sharing a single sample
	// cursor, plus a gain automation segment evaluated on the engine's
	// sample clock. Both channels advancing from the same cursor at the
	// same rate is what makes the stereo pair sample accurate.
	Voice struct {
		Note     int
		Velocity int

		left  []float32 // decoded PCM routed to the left output channel
		right []float32 // nil for a mono voice; mono plays left on both channels

		pos  float64
		rate float64

		startFrame int64
		stopFrame  int64 // scheduled stop on the engine clock, -1 = none

		gain      float32   // current gain when no ramp is active
		ramp      *gainRamp // pending automation, replaces gain while set
		state     State
		releasing bool // set exactly once; a second release is a no-op

		releaseTimecents *int // from the voice's first zone
	}

	gainRamp struct {
		from, to    float32
		start, end  int64
		exponential bool
	}
)

func (r *gainRamp) value(frame int64) float32 {
	if frame <= r.start || r.end <= r.start {
		return r.from
	}
	if frame >= r.end {
		return r.to
	}
	t := float64(frame-r.start) / float64(r.end-r.start)
	if r.exponential {
		return r.from * float32(math.Pow(float64(r.to/r.from), t))
	}
	return r.from + (r.to-r.from)*float32(t)
}

// gainAt evaluates the voice's gain at the given frame, including any
// pending automation.
func (v *Voice) gainAt(frame int64) float32 {
	if v.ramp != nil {
		return v.ramp.value(frame)
	}
	return v.gain
}

// setRamp cancels any pending automation and replaces it with a new segment
// starting at frame.
func (v *Voice) setRamp(frame int64, from, to float32, frames int64, exponential bool) {
	v.ramp = &gainRamp{from: from, to: to, start: frame, end: frame + frames, exponential: exponential}
}

// renderFrame returns the voice's stereo contribution at the given frame and
// advances the cursor. done is true once the voice has gone silent for good;
// the caller reaps it after the render pass.
func (v *Voice) renderFrame(frame int64) (l, r float32, done bool) {
	if v.state == StateStopped {
		return 0, 0, true
	}
	if v.stopFrame >= 0 && frame >= v.stopFrame {
		v.state = StateStopped
		return 0, 0, true
	}
	idx := int(v.pos)
	if idx+1 >= len(v.left) || (v.right != nil && idx+1 >= len(v.right)) {
		v.state = StateStopped
		return 0, 0, true
	}
	frac := float32(v.pos - float64(idx))
	g := v.gainAt(frame)
	l = (v.left[idx] + (v.left[idx+1]-v.left[idx])*frac) * g
	if v.right != nil {
		r = (v.right[idx] + (v.right[idx+1]-v.right[idx])*frac) * g
	} else {
		r = l
	}
	v.pos += v.rate
	return l, r, false
}

// stealPriority scores the voice for stealing; the single voice with the
// lowest score across the registry is stolen. Releasing voices go
// preferentially, then low velocity, then age.
func (v *Voice) stealPriority(frame int64, sampleRate int) float64 {
	priority := float64(v.Velocity)
	priority -= stealAgePointsPerSecond * float64(frame-v.startFrame) / float64(sampleRate)
	if v.releasing {
		priority -= stealReleasingPenalty
	}
	return priority
}

// stop halts the voice immediately and drops its buffer references so the
// cache remains the only owner of the decoded data. Stopping an already
// stopped voice is benign.
func (v *Voice) stop() {
	v.state = StateStopped
	v.left = nil
	v.right = nil
	v.ramp = nil
}
