package dynamics

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	// Default compressor parameters, tuned for a live vocal channel.
	defaultCompressorThresholdDB = -18.0
	defaultCompressorRatio       = 3.0
	defaultCompressorKneeDB      = 6.0
	defaultCompressorAttackMs    = 8.0
	defaultCompressorReleaseMs   = 120.0
	defaultCompressorMakeupDB    = 0.0
	defaultCompressorMix         = 1.0
	defaultCompressorRMSWindowMs = 30.0

	// Parameter validation ranges
	minCompressorRatio     = 1.0
	maxCompressorRatio     = 100.0
	minCompressorAttackMs  = 0.1
	maxCompressorAttackMs  = 1000.0
	minCompressorReleaseMs = 1.0
	maxCompressorReleaseMs = 5000.0
	minCompressorKneeDB    = 0.0
	maxCompressorKneeDB    = 24.0

	// log2Of10Div20 is the conversion factor for dB to log2: log2(10) / 20.
	log2Of10Div20 = 0.166096404744
)

// Character-specific detector and color constants. Each character is a pure
// strategy over the shared core: it scales the envelope time constants,
// optionally stretches the release with programme level, scales the depth of
// gain reduction, and adds its own saturation stage.
const (
	optoAttackScale     = 3.0
	optoReleaseScale    = 2.0
	optoReleaseEnvScale = 3.0

	fetAttackScale  = 0.5
	fetReleaseScale = 0.8
	fetDrive        = 2.0

	vintageAttackScale    = 2.0
	vintageReleaseScale   = 1.5
	vintageReductionScale = 0.85

	peakAttackScale = 0.1
)

// Character selects the tonal behavior of the compressor.
type Character int

const (
	// CharacterClean is a transparent RMS-detected compressor with no
	// added coloration.
	CharacterClean Character = iota
	// CharacterOpto models an optical element: slow attack, programme-
	// dependent release and a gentle saturation stage.
	CharacterOpto
	// CharacterFET models a FET design: very fast attack with odd-harmonic
	// coloration.
	CharacterFET
	// CharacterVintage models an aged VCA: relaxed timing, slightly reduced
	// gain reduction depth and even-harmonic warmth.
	CharacterVintage
	// CharacterPeak is an instant-grab peak compressor for catching
	// transients, with no coloration.
	CharacterPeak
)

// String returns a human-readable character name.
func (ch Character) String() string {
	switch ch {
	case CharacterClean:
		return "clean"
	case CharacterOpto:
		return "opto"
	case CharacterFET:
		return "fet"
	case CharacterVintage:
		return "vintage"
	case CharacterPeak:
		return "peak"
	default:
		return "unknown"
	}
}

// CompressorMetrics holds metering information for visualization and analysis.
type CompressorMetrics struct {
	InputPeak     float64 // Maximum input level since last reset
	OutputPeak    float64 // Maximum output level since last reset
	GainReduction float64 // Minimum gain (maximum reduction) since last reset
}

// Compressor implements a soft-knee feedforward compressor with selectable
// character voicings.
//
// The gain computer runs in the log2 domain with quadratic knee smoothing,
// shared with the other level-dependent processors in this package. The
// [Character] setting selects detector behavior and an optional saturation
// stage; all characters share the same gain curve, so threshold and ratio
// mean the same thing in every voicing.
//
// A parallel Mix control blends the dry input with the compressed signal for
// New-York-style compression. Bypass is checked before any stateful work, so
// a bypassed compressor is an exact passthrough.
//
// The compressor is mono — for stereo processing, instantiate two compressors
// or implement stereo-linking externally. The per-field setters must not run
// concurrently with processing; cross-thread control goes through SetParams,
// which publishes a whole snapshot for the processing path to pick up.
type Compressor struct {
	// User-configurable parameters. Attack, release and ratio are stored as
	// set by the caller; the character mapping pushes derived values into
	// the core.
	thresholdDB float64
	ratio       float64
	kneeDB      float64
	attackMs    float64
	releaseMs   float64
	character   Character
	mix         float64
	bypassed    param.Bool

	// Whole-struct snapshots published by SetParams and picked up on the
	// processing path before the next sample.
	pendingParams param.Cell[CompressorParams]
	lastApplied   *CompressorParams

	sampleRate float64

	core *dynamicsCore

	// Optional metering
	metrics CompressorMetrics
}

// NewCompressor creates a compressor with live-vocal defaults.
//
// Sample rate must be positive and finite.
//
// Default parameters:
//   - Threshold: -18 dB
//   - Ratio: 3:1
//   - Knee: 6 dB
//   - Attack: 8 ms
//   - Release: 120 ms
//   - Character: clean (RMS detector)
//   - Mix: 1.0 (fully wet)
//   - Auto makeup gain: enabled
func NewCompressor(sampleRate float64) (*Compressor, error) {
	if err := validateSampleRate(sampleRate); err != nil {
		return nil, fmt.Errorf("compressor %w", err)
	}

	c := &Compressor{
		thresholdDB: defaultCompressorThresholdDB,
		ratio:       defaultCompressorRatio,
		kneeDB:      defaultCompressorKneeDB,
		attackMs:    defaultCompressorAttackMs,
		releaseMs:   defaultCompressorReleaseMs,
		character:   CharacterClean,
		mix:         defaultCompressorMix,
		sampleRate:  sampleRate,
		metrics:     CompressorMetrics{GainReduction: 1.0},
	}

	core, err := newDynamicsCore(dynamicsCoreConfig{
		sampleRate:   sampleRate,
		detectorMode: DetectorModeRMS,
		thresholdDB:  c.thresholdDB,
		ratio:        c.ratio,
		kneeDB:       c.kneeDB,
		attackMs:     c.attackMs,
		releaseMs:    c.releaseMs,
		rmsWindowMs:  defaultCompressorRMSWindowMs,
		autoMakeup:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("compressor core init: %w", err)
	}

	c.core = core
	c.applyCharacterTiming()

	return c, nil
}

// SetThreshold sets compression threshold in dB.
// Typical range: -60 to 0 dB. Signals above this level will be compressed.
func (c *Compressor) SetThreshold(dB float64) error {
	if err := c.core.SetThreshold(dB); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	c.thresholdDB = dB

	return nil
}

// SetRatio sets compression ratio.
// Range: 1.0 to 100.0
//   - 1.0 = no compression
//   - 3.0-4.0 = musical compression
//   - 100.0 ≈ limiting
func (c *Compressor) SetRatio(ratio float64) error {
	if ratio < minCompressorRatio || ratio > maxCompressorRatio || !isFinite(ratio) {
		return fmt.Errorf("compressor ratio must be in [%f, %f]: %f",
			minCompressorRatio, maxCompressorRatio, ratio)
	}

	c.ratio = ratio
	c.applyCharacterTiming()

	return nil
}

// SetKnee sets soft-knee width in dB.
// Range: 0.0 to 24.0 dB
//   - 0 dB = hard knee (abrupt transition)
//   - 6-12 dB = typical for musical compression (smooth transition)
func (c *Compressor) SetKnee(kneeDB float64) error {
	if err := c.core.SetKnee(kneeDB); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	c.kneeDB = kneeDB

	return nil
}

// SetAttack sets attack time in milliseconds.
// Range: 0.1 to 1000 ms. The character scaling is applied on top, so an FET
// compressor reacts faster than a clean one at the same setting.
func (c *Compressor) SetAttack(ms float64) error {
	if ms < minCompressorAttackMs || ms > maxCompressorAttackMs || !isFinite(ms) {
		return fmt.Errorf("compressor attack must be in [%f, %f]: %f",
			minCompressorAttackMs, maxCompressorAttackMs, ms)
	}

	c.attackMs = ms
	c.applyCharacterTiming()

	return nil
}

// SetRelease sets release time in milliseconds.
// Range: 1 to 5000 ms. Slower release = smoother gain recovery.
func (c *Compressor) SetRelease(ms float64) error {
	if ms < minCompressorReleaseMs || ms > maxCompressorReleaseMs || !isFinite(ms) {
		return fmt.Errorf("compressor release must be in [%f, %f]: %f",
			minCompressorReleaseMs, maxCompressorReleaseMs, ms)
	}

	c.releaseMs = ms
	c.applyCharacterTiming()

	return nil
}

// SetCharacter selects the compressor voicing. Switching character also
// selects the matching detector mode (RMS for clean, peak otherwise); the
// detector can still be overridden afterwards with SetDetectorMode.
func (c *Compressor) SetCharacter(ch Character) error {
	if ch < CharacterClean || ch > CharacterPeak {
		return fmt.Errorf("compressor character invalid: %d", ch)
	}

	c.character = ch

	mode := DetectorModePeak
	if ch == CharacterClean {
		mode = DetectorModeRMS
	}

	_ = c.core.SetDetectorMode(mode)
	c.applyCharacterTiming()

	return nil
}

// SetMix sets the parallel compression blend in [0, 1].
// 0 = dry only, 1 = compressed only.
func (c *Compressor) SetMix(mix float64) error {
	if mix < 0 || mix > 1 || !isFinite(mix) {
		return fmt.Errorf("compressor mix must be in [0, 1]: %f", mix)
	}

	c.mix = mix

	return nil
}

// SetBypassed enables or disables processing. A bypassed compressor passes
// input through untouched and advances no internal state. Safe from any
// goroutine.
func (c *Compressor) SetBypassed(bypassed bool) {
	c.bypassed.Store(bypassed)
}

// SetMakeupGain sets manual makeup gain in dB and disables auto makeup.
func (c *Compressor) SetMakeupGain(dB float64) error {
	if err := c.core.SetManualMakeupGain(dB); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	return nil
}

// SetAutoMakeup enables or disables automatic makeup gain calculation.
// When enabled, makeup gain compensates for gain reduction at threshold.
func (c *Compressor) SetAutoMakeup(enable bool) error {
	return c.core.SetAutoMakeup(enable)
}

// SetDetectorMode overrides the detector algorithm chosen by the character.
func (c *Compressor) SetDetectorMode(mode DetectorMode) error {
	if err := c.core.SetDetectorMode(mode); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	return nil
}

// SetRMSWindow sets the RMS detector window in milliseconds.
// Range: 1 to 1000 ms. Only effective in RMS detector mode.
func (c *Compressor) SetRMSWindow(ms float64) error {
	if err := c.core.SetRMSWindow(ms); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	return nil
}

// SetSidechainLowCut sets a detector-only low-cut in Hz (0 disables).
// Useful to stop bass energy from pumping the compressor.
func (c *Compressor) SetSidechainLowCut(hz float64) error {
	if err := c.core.SetSidechainLowCut(hz); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	return nil
}

// SetSidechainHighCut sets a detector-only high-cut in Hz (0 disables).
func (c *Compressor) SetSidechainHighCut(hz float64) error {
	if err := c.core.SetSidechainHighCut(hz); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	return nil
}

// SetSampleRate updates sample rate and recalculates all time constants.
func (c *Compressor) SetSampleRate(sampleRate float64) error {
	if err := c.core.SetSampleRate(sampleRate); err != nil {
		return fmt.Errorf("compressor %w", err)
	}

	c.sampleRate = sampleRate

	return nil
}

// Threshold returns the current threshold in dB.
func (c *Compressor) Threshold() float64 { return c.thresholdDB }

// Ratio returns the compression ratio as set by the caller. The vintage
// character applies its reduced-depth mapping internally.
func (c *Compressor) Ratio() float64 { return c.ratio }

// Knee returns the current knee width in dB.
func (c *Compressor) Knee() float64 { return c.kneeDB }

// Attack returns the attack time in milliseconds as set by the caller.
func (c *Compressor) Attack() float64 { return c.attackMs }

// Release returns the release time in milliseconds as set by the caller.
func (c *Compressor) Release() float64 { return c.releaseMs }

// Character returns the current compressor voicing.
func (c *Compressor) Character() Character { return c.character }

// Mix returns the parallel compression blend.
func (c *Compressor) Mix() float64 { return c.mix }

// Bypassed reports whether the compressor is bypassed.
func (c *Compressor) Bypassed() bool { return c.bypassed.Load() }

// MakeupGain returns the current makeup gain in dB.
func (c *Compressor) MakeupGain() float64 { return c.core.MakeupGainDB() }

// AutoMakeup returns whether automatic makeup gain is enabled.
func (c *Compressor) AutoMakeup() bool { return c.core.AutoMakeup() }

// DetectorMode returns the active detector algorithm.
func (c *Compressor) DetectorMode() DetectorMode { return c.core.DetectorMode() }

// RMSWindow returns the RMS detector window in milliseconds.
func (c *Compressor) RMSWindow() float64 { return c.core.RMSWindowMs() }

// SidechainLowCut returns the detector low-cut frequency in Hz.
func (c *Compressor) SidechainLowCut() float64 { return c.core.SidechainLowCutHz() }

// SidechainHighCut returns the detector high-cut frequency in Hz.
func (c *Compressor) SidechainHighCut() float64 { return c.core.SidechainHighCutHz() }

// SampleRate returns the current sample rate in Hz.
func (c *Compressor) SampleRate() float64 { return c.sampleRate }

// ProcessSample processes one sample through the compressor.
func (c *Compressor) ProcessSample(input float64) float64 {
	return c.ProcessSampleSidechain(input, input)
}

// ProcessSampleSidechain processes one sample with an external detector key.
// The sidechain drives gain reduction while the input carries the audio.
func (c *Compressor) ProcessSampleSidechain(input, sidechain float64) float64 {
	if c.bypassed.Load() {
		return input
	}

	if snap := c.pendingParams.Ref(); snap != nil && snap != c.lastApplied {
		c.applySnapshot(snap)
	}

	out, gain := c.core.ProcessSample(input, sidechain)
	out = c.applyColor(out)

	if c.mix < 1.0 {
		out = input*(1.0-c.mix) + out*c.mix
	}

	c.updateMetrics(math.Abs(input), math.Abs(out), gain)

	return out
}

// ProcessInPlace applies compression to buf in place.
func (c *Compressor) ProcessInPlace(buf []float64) {
	if c.bypassed.Load() {
		return
	}

	for i := range buf {
		buf[i] = c.ProcessSampleSidechain(buf[i], buf[i])
	}
}

// CalculateOutputLevel computes the steady-state output level for a given
// input magnitude. This allows visualizing the compression curve.
func (c *Compressor) CalculateOutputLevel(inputMagnitude float64) float64 {
	inputMagnitude = math.Abs(inputMagnitude)
	gain := c.core.GainForLevel(inputMagnitude)
	out := c.applyColor(inputMagnitude * gain * c.core.makeupGainLin)

	if c.mix < 1.0 {
		out = inputMagnitude*(1.0-c.mix) + out*c.mix
	}

	return out
}

// Envelope returns the current detector envelope level.
func (c *Compressor) Envelope() float64 { return c.core.Envelope() }

// Reset clears detector state and metrics.
func (c *Compressor) Reset() {
	c.core.Reset()
	c.metrics = CompressorMetrics{
		GainReduction: 1.0, // Initialize to no reduction
	}
}

// GetMetrics returns current metering values.
func (c *Compressor) GetMetrics() CompressorMetrics {
	return c.metrics
}

// ResetMetrics clears metering state.
func (c *Compressor) ResetMetrics() {
	c.metrics = CompressorMetrics{
		GainReduction: 1.0, // Initialize to no reduction
	}
}

// applyCharacterTiming pushes character-scaled detector times, release
// behavior and effective ratio into the core. Scaled values are clamped to
// the core's legal ranges, so the pushes cannot fail.
func (c *Compressor) applyCharacterTiming() {
	attackScale := 1.0
	releaseScale := 1.0
	envScale := 1.0
	effectiveRatio := c.ratio

	switch c.character {
	case CharacterOpto:
		attackScale = optoAttackScale
		releaseScale = optoReleaseScale
		envScale = optoReleaseEnvScale
	case CharacterFET:
		attackScale = fetAttackScale
		releaseScale = fetReleaseScale
	case CharacterVintage:
		attackScale = vintageAttackScale
		releaseScale = vintageReleaseScale
		// Scaling the depth of gain reduction is equivalent to compressing
		// with a softer ratio: factor' = s*(1 - 1/r) maps to r' = 1/(1-factor').
		factor := vintageReductionScale * (1.0 - 1.0/c.ratio)
		effectiveRatio = 1.0 / (1.0 - factor)
	case CharacterPeak:
		attackScale = peakAttackScale
	case CharacterClean:
	}

	_ = c.core.SetAttack(clampMs(c.attackMs*attackScale, minCompressorAttackMs, maxCompressorAttackMs))
	_ = c.core.SetRelease(clampMs(c.releaseMs*releaseScale, minCompressorReleaseMs, maxCompressorReleaseMs))
	_ = c.core.SetReleaseEnvScale(envScale)
	_ = c.core.SetRatio(effectiveRatio)
}

// applyColor runs the character's saturation stage.
func (c *Compressor) applyColor(x float64) float64 {
	switch c.character {
	case CharacterOpto:
		return math.Tanh(x)
	case CharacterFET:
		return math.Tanh(x*fetDrive) / fetDrive
	case CharacterVintage:
		return x + 0.1*x*x - 0.05*x*x*x
	default:
		return x
	}
}

// updateMetrics tracks peak levels and gain reduction.
func (c *Compressor) updateMetrics(inputLevel, outputLevel, gain float64) {
	if inputLevel > c.metrics.InputPeak {
		c.metrics.InputPeak = inputLevel
	}

	if outputLevel > c.metrics.OutputPeak {
		c.metrics.OutputPeak = outputLevel
	}

	if c.metrics.GainReduction == 1.0 || gain < c.metrics.GainReduction {
		c.metrics.GainReduction = gain
	}
}

func clampMs(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
