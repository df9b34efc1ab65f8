package engine

import "math"

// SoundFont envelope times are in timecents: seconds = 2^(timecents/1200).
// All conversions clamp the result so that a malformed bank can neither
// produce a zero-length click nor a runaway tail.

const defaultReleaseSeconds = 0.2

// ReleaseSeconds converts a release-time generator to seconds. A nil
// timecents means the zone carried no release generator and gets the 0.2s
// default. The result is clamped to [0.01s, 10s].
func ReleaseSeconds(timecents *int) float64 {
	if timecents == nil {
		return defaultReleaseSeconds
	}
	return clampSeconds(timecentsToSeconds(*timecents), 0.01, 10)
}

// AttackSeconds converts an attack-time generator, clamped to [0.001s, 5s].
func AttackSeconds(timecents *int) float64 {
	if timecents == nil {
		return 0.001
	}
	return clampSeconds(timecentsToSeconds(*timecents), 0.001, 5)
}

// HoldSeconds converts a hold-time generator, clamped to [0s, 5s].
func HoldSeconds(timecents *int) float64 {
	if timecents == nil {
		return 0
	}
	return clampSeconds(timecentsToSeconds(*timecents), 0, 5)
}

// DecaySeconds converts a decay-time generator, clamped to [0.001s, 10s].
func DecaySeconds(timecents *int) float64 {
	if timecents == nil {
		return 0.001
	}
	return clampSeconds(timecentsToSeconds(*timecents), 0.001, 10)
}

func timecentsToSeconds(timecents int) float64 {
	return math.Exp2(float64(timecents) / 1200)
}

func clampSeconds(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
