// Package envelope provides the attack/release amplitude follower shared by
// the dynamics processors and the reverb duck and gate paths.
package envelope

import (
	"fmt"
	"math"
)

const (
	defaultAttackMs  = 5.0
	defaultReleaseMs = 50.0

	minTimeMs = 0.01
	maxTimeMs = 5000.0

	minSampleRate = 8000.0
	maxSampleRate = 384000.0
)

// Follower tracks the rectified amplitude of a signal with asymmetric
// one-pole smoothing: a fast coefficient while the level rises and a slower
// one while it falls.
type Follower struct {
	sampleRate float64

	attackMs  float64
	releaseMs float64

	attackCoeff  float64
	releaseCoeff float64

	env float64
}

// NewFollower creates an envelope follower with default time constants.
func NewFollower(sampleRate float64) (*Follower, error) {
	if sampleRate < minSampleRate || sampleRate > maxSampleRate {
		return nil, fmt.Errorf("envelope sample rate must be in [%g, %g]: %f",
			minSampleRate, maxSampleRate, sampleRate)
	}

	f := &Follower{
		sampleRate: sampleRate,
		attackMs:   defaultAttackMs,
		releaseMs:  defaultReleaseMs,
	}
	f.updateCoefficients()

	return f, nil
}

// SetAttack sets the attack time in milliseconds.
func (f *Follower) SetAttack(attackMs float64) error {
	if math.IsNaN(attackMs) || attackMs < minTimeMs || attackMs > maxTimeMs {
		return fmt.Errorf("envelope attack must be in [%g, %g] ms: %f",
			minTimeMs, maxTimeMs, attackMs)
	}

	f.attackMs = attackMs
	f.updateCoefficients()

	return nil
}

// SetRelease sets the release time in milliseconds.
func (f *Follower) SetRelease(releaseMs float64) error {
	if math.IsNaN(releaseMs) || releaseMs < minTimeMs || releaseMs > maxTimeMs {
		return fmt.Errorf("envelope release must be in [%g, %g] ms: %f",
			minTimeMs, maxTimeMs, releaseMs)
	}

	f.releaseMs = releaseMs
	f.updateCoefficients()

	return nil
}

// Attack returns the attack time in milliseconds.
func (f *Follower) Attack() float64 {
	return f.attackMs
}

// Release returns the release time in milliseconds.
func (f *Follower) Release() float64 {
	return f.releaseMs
}

// Value returns the current envelope level.
func (f *Follower) Value() float64 {
	return f.env
}

// Process advances the follower by one sample and returns the new envelope
// level. The input is rectified internally.
func (f *Follower) Process(sample float64) float64 {
	detector := math.Abs(sample)

	if detector > f.env {
		f.env += (detector - f.env) * f.attackCoeff
	} else {
		f.env = detector + (f.env-detector)*f.releaseCoeff
	}

	return f.env
}

// Reset clears the envelope state.
func (f *Follower) Reset() {
	f.env = 0
}

func (f *Follower) updateCoefficients() {
	f.attackCoeff = 1.0 - math.Exp(-math.Ln2/(f.attackMs*0.001*f.sampleRate))
	f.releaseCoeff = math.Exp(-math.Ln2 / (f.releaseMs * 0.001 * f.sampleRate))
}
