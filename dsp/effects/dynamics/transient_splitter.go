package dynamics

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	defaultTransientSensitivity = 0.5
	defaultTransientHoldMs      = 10.0
	defaultTransientDecayMs     = 50.0
	defaultTransientSmoothingMs = 5.0

	minTransientHoldMs      = 0.0
	maxTransientHoldMs      = 1000.0
	minTransientDecayMs     = 1.0
	maxTransientDecayMs     = 1000.0
	minTransientSmoothingMs = 0.1
	maxTransientSmoothingMs = 50.0
	minTransientGainDB      = -60.0
	maxTransientGainDB      = 12.0

	// Fixed detector time constants. The fast envelope rides the waveform,
	// the slow envelope tracks the program level; their ratio spikes on
	// attacks and settles back toward 1 during sustains.
	transientFastAttackMs  = 0.2
	transientFastReleaseMs = 5.0
	transientSlowAttackMs  = 20.0
	transientSlowReleaseMs = 100.0

	// transientGateFloor snaps a decaying gate to zero once inaudible.
	transientGateFloor = 0.001

	// transientGateSnap is the hard-separation decision point in gate mode.
	transientGateSnap = 0.5

	// transientEnvFloor guards the fast/slow ratio against division by zero.
	transientEnvFloor = 1e-10
)

// TransientSplitterMetrics holds metering information for visualization and
// analysis, refreshed once per processed block.
type TransientSplitterMetrics struct {
	// TransientRMS is the RMS level of the transient path.
	TransientRMS float64
	// SustainRMS is the RMS level of the sustain path.
	SustainRMS float64
	// MaxActivity is the highest smoothed gate value seen since last reset.
	MaxActivity float64
}

// TransientSplitter separates a signal into transient and sustain components
// using the ratio of a fast and a slow envelope follower.
//
// When the fast envelope outruns the slow one by more than a
// sensitivity-derived threshold, an internal gate opens, holds for a
// configurable time, then decays. The smoothed gate routes the input to the
// transient path and its complement to the sustain path, so the two always
// sum back to the (gain-weighted) input. Typical uses are tightening drum
// bleed on stage mics or pulling stick attack out of an ambient mix.
//
// The splitter is mono; instantiate one per channel for stereo material.
// The per-field setters must not run concurrently with processing;
// cross-thread control goes through SetParams.
type TransientSplitter struct {
	sensitivity     float64
	holdMs          float64
	decayMs         float64
	smoothingMs     float64
	gateMode        bool
	invert          bool
	balance         float64
	transientGainDB float64
	sustainGainDB   float64
	sampleRate      float64

	bypassed param.Bool

	// Whole-struct snapshots published by SetParams and picked up on the
	// processing path before the next sample.
	pendingParams param.Cell[TransientSplitterParams]
	lastApplied   *TransientSplitterParams

	threshold        float64
	transientGainLin float64
	sustainGainLin   float64

	fastAttackCoeff  float64
	fastReleaseCoeff float64
	slowAttackCoeff  float64
	slowReleaseCoeff float64
	decayCoeff       float64
	smoothingCoeff   float64
	holdSamples      int

	fastEnv       float64
	slowEnv       float64
	gate          float64
	smoothedGate  float64
	holdRemaining int

	metrics TransientSplitterMetrics
}

// NewTransientSplitter creates a transient splitter with neutral defaults.
//
// Default parameters:
//   - Sensitivity: 0.5
//   - Hold: 10 ms
//   - Decay: 50 ms
//   - Smoothing: 5 ms
//   - Gate mode: off (proportional blend)
//   - Invert: off
//   - Balance: 0
//   - Transient/sustain gain: 0 dB
func NewTransientSplitter(sampleRate float64) (*TransientSplitter, error) {
	if err := validateSampleRate(sampleRate); err != nil {
		return nil, fmt.Errorf("transient splitter %w", err)
	}

	s := &TransientSplitter{
		sensitivity:      defaultTransientSensitivity,
		holdMs:           defaultTransientHoldMs,
		decayMs:          defaultTransientDecayMs,
		smoothingMs:      defaultTransientSmoothingMs,
		transientGainLin: 1.0,
		sustainGainLin:   1.0,
		sampleRate:       sampleRate,
	}

	s.updateThreshold()
	s.updateCoefficients()

	return s, nil
}

// SetSensitivity sets detection sensitivity in [0, 1]. Higher values fire
// the detector on smaller envelope jumps; internally the detection threshold
// is 1 + (1-sensitivity)*4.
func (s *TransientSplitter) SetSensitivity(sensitivity float64) error {
	if sensitivity < 0 || sensitivity > 1 || !isFinite(sensitivity) {
		return fmt.Errorf("transient splitter sensitivity must be in [0, 1]: %f", sensitivity)
	}

	s.sensitivity = sensitivity
	s.updateThreshold()

	return nil
}

// SetHold sets how long the gate stays fully open after a detection, in
// milliseconds.
func (s *TransientSplitter) SetHold(ms float64) error {
	if ms < minTransientHoldMs || ms > maxTransientHoldMs || !isFinite(ms) {
		return fmt.Errorf("transient splitter hold must be in [%g, %g]: %f",
			minTransientHoldMs, maxTransientHoldMs, ms)
	}

	s.holdMs = ms
	s.updateCoefficients()

	return nil
}

// SetDecay sets how quickly the gate falls after the hold expires, in
// milliseconds.
func (s *TransientSplitter) SetDecay(ms float64) error {
	if ms < minTransientDecayMs || ms > maxTransientDecayMs || !isFinite(ms) {
		return fmt.Errorf("transient splitter decay must be in [%g, %g]: %f",
			minTransientDecayMs, maxTransientDecayMs, ms)
	}

	s.decayMs = ms
	s.updateCoefficients()

	return nil
}

// SetSmoothing sets the one-pole smoothing time applied to the gate before
// it routes audio, in milliseconds. Range: [0.1, 50].
func (s *TransientSplitter) SetSmoothing(ms float64) error {
	if ms < minTransientSmoothingMs || ms > maxTransientSmoothingMs || !isFinite(ms) {
		return fmt.Errorf("transient splitter smoothing must be in [%g, %g]: %f",
			minTransientSmoothingMs, maxTransientSmoothingMs, ms)
	}

	s.smoothingMs = ms
	s.updateCoefficients()

	return nil
}

// SetGateMode toggles hard separation. When enabled the gate snaps to 0 or 1
// around 0.5 instead of blending proportionally.
func (s *TransientSplitter) SetGateMode(enabled bool) {
	s.gateMode = enabled
}

// SetInvert swaps the transient and sustain routing.
func (s *TransientSplitter) SetInvert(invert bool) {
	s.invert = invert
}

// SetBalance tilts the output mix between the two paths. Range: [-1, 1].
// Negative values scale the sustain path by 1+balance, positive values scale
// the transient path by 1-balance; 0 leaves both untouched.
func (s *TransientSplitter) SetBalance(balance float64) error {
	if balance < -1 || balance > 1 || !isFinite(balance) {
		return fmt.Errorf("transient splitter balance must be in [-1, 1]: %f", balance)
	}

	s.balance = balance

	return nil
}

// SetTransientGain sets the transient path output gain in dB.
// Range: [-60, +12].
func (s *TransientSplitter) SetTransientGain(dB float64) error {
	if dB < minTransientGainDB || dB > maxTransientGainDB || !isFinite(dB) {
		return fmt.Errorf("transient splitter transient gain must be in [%g, %g]: %f",
			minTransientGainDB, maxTransientGainDB, dB)
	}

	s.transientGainDB = dB
	s.transientGainLin = mathPower10(dB / 20.0)

	return nil
}

// SetSustainGain sets the sustain path output gain in dB.
// Range: [-60, +12].
func (s *TransientSplitter) SetSustainGain(dB float64) error {
	if dB < minTransientGainDB || dB > maxTransientGainDB || !isFinite(dB) {
		return fmt.Errorf("transient splitter sustain gain must be in [%g, %g]: %f",
			minTransientGainDB, maxTransientGainDB, dB)
	}

	s.sustainGainDB = dB
	s.sustainGainLin = mathPower10(dB / 20.0)

	return nil
}

// SetSampleRate updates the sample rate and all derived coefficients.
func (s *TransientSplitter) SetSampleRate(sampleRate float64) error {
	if err := validateSampleRate(sampleRate); err != nil {
		return fmt.Errorf("transient splitter %w", err)
	}

	s.sampleRate = sampleRate
	s.updateCoefficients()

	return nil
}

// Sensitivity returns detection sensitivity in [0, 1].
func (s *TransientSplitter) Sensitivity() float64 { return s.sensitivity }

// Hold returns the gate hold time in milliseconds.
func (s *TransientSplitter) Hold() float64 { return s.holdMs }

// Decay returns the gate decay time in milliseconds.
func (s *TransientSplitter) Decay() float64 { return s.decayMs }

// Smoothing returns the gate smoothing time in milliseconds.
func (s *TransientSplitter) Smoothing() float64 { return s.smoothingMs }

// GateMode reports whether hard separation is enabled.
func (s *TransientSplitter) GateMode() bool { return s.gateMode }

// Invert reports whether the paths are swapped.
func (s *TransientSplitter) Invert() bool { return s.invert }

// Balance returns the output balance in [-1, 1].
func (s *TransientSplitter) Balance() float64 { return s.balance }

// TransientGain returns the transient path gain in dB.
func (s *TransientSplitter) TransientGain() float64 { return s.transientGainDB }

// SustainGain returns the sustain path gain in dB.
func (s *TransientSplitter) SustainGain() float64 { return s.sustainGainDB }

// SampleRate returns the sample rate in Hz.
func (s *TransientSplitter) SampleRate() float64 { return s.sampleRate }

// ProcessSample splits one sample into its transient and sustain components.
func (s *TransientSplitter) ProcessSample(input float64) (transient, sustain float64) {
	if s.bypassed.Load() {
		return 0, input
	}

	if snap := s.pendingParams.Ref(); snap != nil && snap != s.lastApplied {
		s.applySnapshot(snap)
	}

	x := math.Abs(input)

	if x > s.fastEnv {
		s.fastEnv = x + s.fastAttackCoeff*(s.fastEnv-x)
	} else {
		s.fastEnv = x + s.fastReleaseCoeff*(s.fastEnv-x)
	}

	if x > s.slowEnv {
		s.slowEnv = x + s.slowAttackCoeff*(s.slowEnv-x)
	} else {
		s.slowEnv = x + s.slowReleaseCoeff*(s.slowEnv-x)
	}

	ratio := s.fastEnv / math.Max(s.slowEnv, transientEnvFloor)

	switch {
	case ratio > s.threshold:
		s.gate = 1.0
		s.holdRemaining = s.holdSamples
	case s.holdRemaining > 0:
		s.holdRemaining--
	default:
		s.gate *= s.decayCoeff
		if s.gate < transientGateFloor {
			s.gate = 0
		}
	}

	g := s.gate
	if s.gateMode {
		if g >= transientGateSnap {
			g = 1.0
		} else {
			g = 0.0
		}
	}

	s.smoothedGate += s.smoothingCoeff * (g - s.smoothedGate)
	g = s.smoothedGate

	if g > s.metrics.MaxActivity {
		s.metrics.MaxActivity = g
	}

	if s.invert {
		g = 1.0 - g
	}

	balT, balS := 1.0, 1.0
	if s.balance < 0 {
		balS = 1.0 + s.balance
	} else if s.balance > 0 {
		balT = 1.0 - s.balance
	}

	transient = input * g * s.transientGainLin * balT
	sustain = input * (1.0 - g) * s.sustainGainLin * balS

	return transient, sustain
}

// ProcessInPlace splits each sample and writes the sum of both paths back,
// which reduces to shaping when the path gains or balance differ.
func (s *TransientSplitter) ProcessInPlace(buf []float64) {
	if s.bypassed.Load() {
		return
	}

	var tSum, sSum float64

	for i := range buf {
		t, sus := s.ProcessSample(buf[i])
		buf[i] = t + sus
		tSum += t * t
		sSum += sus * sus
	}

	s.updateBlockMetrics(tSum, sSum, len(buf))
}

// ProcessSplit splits the input block onto two separate output buses. The
// outputs must be at least as long as the input; the input is not modified.
func (s *TransientSplitter) ProcessSplit(input, transient, sustain []float64) {
	var tSum, sSum float64

	for i := range input {
		t, sus := s.ProcessSample(input[i])
		transient[i] = t
		sustain[i] = sus
		tSum += t * t
		sSum += sus * sus
	}

	s.updateBlockMetrics(tSum, sSum, len(input))
}

// SetBypassed enables or disables processing. A bypassed splitter routes the
// whole input to the sustain path untouched and advances no internal state.
// Safe from any goroutine.
func (s *TransientSplitter) SetBypassed(bypassed bool) {
	s.bypassed.Store(bypassed)
}

// Bypassed reports whether the splitter is bypassed.
func (s *TransientSplitter) Bypassed() bool { return s.bypassed.Load() }

// Reset clears detector, gate, and metering state.
func (s *TransientSplitter) Reset() {
	s.fastEnv = 0
	s.slowEnv = 0
	s.gate = 0
	s.smoothedGate = 0
	s.holdRemaining = 0
	s.metrics = TransientSplitterMetrics{}
}

// GetMetrics returns current metering values.
func (s *TransientSplitter) GetMetrics() TransientSplitterMetrics {
	return s.metrics
}

// ResetMetrics clears metering state.
func (s *TransientSplitter) ResetMetrics() {
	s.metrics = TransientSplitterMetrics{}
}

func (s *TransientSplitter) updateThreshold() {
	s.threshold = 1.0 + (1.0-s.sensitivity)*4.0
}

func (s *TransientSplitter) updateCoefficients() {
	s.fastAttackCoeff = envelopeCoeff(transientFastAttackMs, s.sampleRate)
	s.fastReleaseCoeff = envelopeCoeff(transientFastReleaseMs, s.sampleRate)
	s.slowAttackCoeff = envelopeCoeff(transientSlowAttackMs, s.sampleRate)
	s.slowReleaseCoeff = envelopeCoeff(transientSlowReleaseMs, s.sampleRate)
	s.decayCoeff = envelopeCoeff(s.decayMs, s.sampleRate)
	s.smoothingCoeff = timeMsToCoeff(s.smoothingMs, s.sampleRate)
	s.holdSamples = int(s.holdMs * 0.001 * s.sampleRate)
}

func (s *TransientSplitter) updateBlockMetrics(tSum, sSum float64, n int) {
	if n == 0 {
		return
	}

	s.metrics.TransientRMS = mathSqrt(tSum / float64(n))
	s.metrics.SustainRMS = mathSqrt(sSum / float64(n))
}

// envelopeCoeff returns the per-sample retention factor for a one-pole
// follower with the given time constant: values near 1 track slowly.
func envelopeCoeff(ms, sampleRate float64) float64 {
	return math.Exp(-1.0 / (sampleRate * ms * 0.001))
}

// timeMsToCoeff returns the per-sample step factor for a one-pole smoother,
// clamped to [0, 1].
func timeMsToCoeff(ms, sampleRate float64) float64 {
	seconds := ms / 1000.0
	if seconds <= 0 {
		return 1
	}

	coeff := 1.0 - math.Exp(-1.0/(seconds*sampleRate))
	if coeff < 0 {
		return 0
	}

	if coeff > 1 {
		return 1
	}

	return coeff
}
