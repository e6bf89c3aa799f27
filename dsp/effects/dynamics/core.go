package dynamics

import (
	"fmt"
	"math"
)

const (
	minDynamicsRMSTimeMs = 1.0
	maxDynamicsRMSTimeMs = 1000.0
	minSidechainCutoffHz = 1.0

	// minReleaseEnvScale..maxReleaseEnvScale bound the program-dependent
	// release stretch. 1 keeps the release fixed; larger values slow the
	// release as the detector envelope rises.
	minReleaseEnvScale = 1.0
	maxReleaseEnvScale = 8.0
)

// DetectorMode controls the detector algorithm.
type DetectorMode int

const (
	// DetectorModePeak uses an absolute-value peak follower.
	DetectorModePeak DetectorMode = iota
	// DetectorModeRMS uses a moving RMS detector with ring-buffer state.
	DetectorModeRMS
)

type dynamicsCoreConfig struct {
	sampleRate         float64
	detectorMode       DetectorMode
	thresholdDB        float64
	ratio              float64
	kneeDB             float64
	attackMs           float64
	releaseMs          float64
	releaseEnvScale    float64
	rmsWindowMs        float64
	autoMakeup         bool
	manualMakeupGainDB float64
	sidechainLowCutHz  float64
	sidechainHighCutHz float64
}

// dynamicsCore is the shared feedforward detector + gain computer used by the
// level-dependent processors in this package. It owns the envelope follower
// (peak or moving-RMS), the log2-domain soft-knee gain curve, optional
// detector-only sidechain prefilters, and makeup gain.
type dynamicsCore struct {
	cfg dynamicsCoreConfig

	// Detector/envelope state
	envelope         float64
	attackCoeff      float64
	releaseCoeff     float64
	releaseCoeffSlow float64

	// RMS detector state (ring buffer of squared control signal)
	rmsWindowSamples int
	rmsSquares       []float64
	rmsIndex         int
	rmsFilled        int
	rmsSum           float64

	// Gain computer cached values
	thresholdLog2    float64
	kneeWidthLog2    float64
	invKneeWidthLog2 float64
	makeupGainDB     float64
	makeupGainLin    float64

	// Optional sidechain detector-only prefilter
	hp onePoleHighPass
	lp onePoleLowPass
}

func newDynamicsCore(cfg dynamicsCoreConfig) (*dynamicsCore, error) {
	if cfg.releaseEnvScale == 0 {
		cfg.releaseEnvScale = 1.0
	}

	c := &dynamicsCore{cfg: cfg}

	err := c.recalculate()
	if err != nil {
		return nil, err
	}

	c.Reset()

	return c, nil
}

func (c *dynamicsCore) SetSampleRate(sampleRate float64) error {
	err := validateSampleRate(sampleRate)
	if err != nil {
		return err
	}

	c.cfg.sampleRate = sampleRate

	return c.recalculate()
}

func (c *dynamicsCore) SetDetectorMode(mode DetectorMode) error {
	if mode != DetectorModePeak && mode != DetectorModeRMS {
		return fmt.Errorf("invalid detector mode: %d", mode)
	}

	c.cfg.detectorMode = mode

	return nil
}

func (c *dynamicsCore) SetThreshold(dB float64) error {
	if !isFinite(dB) {
		return fmt.Errorf("threshold must be finite: %f", dB)
	}

	c.cfg.thresholdDB = dB

	return c.recalculateGainComputer()
}

func (c *dynamicsCore) SetRatio(ratio float64) error {
	if ratio < minCompressorRatio || ratio > maxCompressorRatio || !isFinite(ratio) {
		return fmt.Errorf("ratio must be in [%f, %f]: %f", minCompressorRatio, maxCompressorRatio, ratio)
	}

	c.cfg.ratio = ratio

	return c.recalculateGainComputer()
}

func (c *dynamicsCore) SetKnee(kneeDB float64) error {
	if kneeDB < minCompressorKneeDB || kneeDB > maxCompressorKneeDB || !isFinite(kneeDB) {
		return fmt.Errorf("knee must be in [%f, %f]: %f", minCompressorKneeDB, maxCompressorKneeDB, kneeDB)
	}

	c.cfg.kneeDB = kneeDB

	return c.recalculateGainComputer()
}

func (c *dynamicsCore) SetAttack(ms float64) error {
	if ms < minCompressorAttackMs || ms > maxCompressorAttackMs || !isFinite(ms) {
		return fmt.Errorf("attack must be in [%f, %f]: %f", minCompressorAttackMs, maxCompressorAttackMs, ms)
	}

	c.cfg.attackMs = ms

	return c.recalculateDetectorCoefficients()
}

func (c *dynamicsCore) SetRelease(ms float64) error {
	if ms < minCompressorReleaseMs || ms > maxCompressorReleaseMs || !isFinite(ms) {
		return fmt.Errorf("release must be in [%f, %f]: %f", minCompressorReleaseMs, maxCompressorReleaseMs, ms)
	}

	c.cfg.releaseMs = ms

	return c.recalculateDetectorCoefficients()
}

// SetReleaseEnvScale sets how strongly the release stretches with the
// detector envelope. At 1 the release time is fixed; at N the effective
// release time glides toward N times the configured value as the envelope
// approaches full scale.
func (c *dynamicsCore) SetReleaseEnvScale(scale float64) error {
	if scale < minReleaseEnvScale || scale > maxReleaseEnvScale || !isFinite(scale) {
		return fmt.Errorf("release envelope scale must be in [%f, %f]: %f", minReleaseEnvScale, maxReleaseEnvScale, scale)
	}

	c.cfg.releaseEnvScale = scale

	return c.recalculateDetectorCoefficients()
}

func (c *dynamicsCore) SetRMSWindow(ms float64) error {
	if ms < minDynamicsRMSTimeMs || ms > maxDynamicsRMSTimeMs || !isFinite(ms) {
		return fmt.Errorf("rms window must be in [%f, %f]: %f", minDynamicsRMSTimeMs, maxDynamicsRMSTimeMs, ms)
	}

	c.cfg.rmsWindowMs = ms

	return c.recalculateRMSBuffer()
}

func (c *dynamicsCore) SetAutoMakeup(auto bool) error {
	c.cfg.autoMakeup = auto
	return c.recalculateGainComputer()
}

func (c *dynamicsCore) SetManualMakeupGain(dB float64) error {
	if !isFinite(dB) {
		return fmt.Errorf("manual makeup gain must be finite: %f", dB)
	}

	c.cfg.manualMakeupGainDB = dB
	c.cfg.autoMakeup = false

	return c.recalculateGainComputer()
}

func (c *dynamicsCore) SetSidechainLowCut(hz float64) error {
	if hz < 0 || !isFinite(hz) {
		return fmt.Errorf("sidechain low-cut must be non-negative and finite: %f", hz)
	}

	prev := c.cfg.sidechainLowCutHz

	c.cfg.sidechainLowCutHz = hz

	err := c.recalculatePrefilter()
	if err != nil {
		c.cfg.sidechainLowCutHz = prev
		_ = c.recalculatePrefilter()

		return err
	}

	return nil
}

func (c *dynamicsCore) SetSidechainHighCut(hz float64) error {
	if hz < 0 || !isFinite(hz) {
		return fmt.Errorf("sidechain high-cut must be non-negative and finite: %f", hz)
	}

	prev := c.cfg.sidechainHighCutHz

	c.cfg.sidechainHighCutHz = hz

	err := c.recalculatePrefilter()
	if err != nil {
		c.cfg.sidechainHighCutHz = prev
		_ = c.recalculatePrefilter()

		return err
	}

	return nil
}

func (c *dynamicsCore) DetectorMode() DetectorMode  { return c.cfg.detectorMode }
func (c *dynamicsCore) RMSWindowMs() float64        { return c.cfg.rmsWindowMs }
func (c *dynamicsCore) ReleaseEnvScale() float64    { return c.cfg.releaseEnvScale }
func (c *dynamicsCore) SidechainLowCutHz() float64  { return c.cfg.sidechainLowCutHz }
func (c *dynamicsCore) SidechainHighCutHz() float64 { return c.cfg.sidechainHighCutHz }
func (c *dynamicsCore) MakeupGainDB() float64       { return c.makeupGainDB }
func (c *dynamicsCore) AutoMakeup() bool            { return c.cfg.autoMakeup }

func (c *dynamicsCore) manualMakeupGainDB() float64 { return c.cfg.manualMakeupGainDB }

func (c *dynamicsCore) AttackCoeff() float64  { return c.attackCoeff }
func (c *dynamicsCore) ReleaseCoeff() float64 { return c.releaseCoeff }
func (c *dynamicsCore) Envelope() float64     { return c.envelope }

// ProcessSample runs one sample through detector, gain computer and makeup.
// The sidechain argument drives detection; pass the input itself when no
// external key is in use.
func (c *dynamicsCore) ProcessSample(input float64, sidechain float64) (output float64, gain float64) {
	source := math.Abs(c.applyPrefilter(sidechain))
	level := c.detectorLevel(source)
	gain = c.GainForLevel(level)

	return input * gain * c.makeupGainLin, gain
}

// GainForLevel evaluates the static soft-knee gain curve for a detector level.
func (c *dynamicsCore) GainForLevel(level float64) float64 {
	if level <= 0 {
		return 1.0
	}

	levelLog2 := mathLog2(level)
	overshoot := levelLog2 - c.thresholdLog2

	compressionFactor := 1.0 - 1.0/c.cfg.ratio

	if c.cfg.kneeDB <= 0 {
		if overshoot <= 0 {
			return 1.0
		}

		return mathPower2(-overshoot * compressionFactor)
	}

	halfWidth := c.kneeWidthLog2 * 0.5

	var effectiveOvershoot float64

	if overshoot < -halfWidth {
		return 1.0
	}

	if overshoot > halfWidth {
		effectiveOvershoot = overshoot
	} else {
		scratch := overshoot + halfWidth
		effectiveOvershoot = scratch * scratch * 0.5 * c.invKneeWidthLog2
	}

	return mathPower2(-effectiveOvershoot * compressionFactor)
}

func (c *dynamicsCore) detectorLevel(source float64) float64 {
	if c.cfg.detectorMode == DetectorModeRMS {
		source = c.updateRMS(source)
	}

	if source > c.envelope {
		c.envelope += (source - c.envelope) * c.attackCoeff
	} else {
		releaseCoeff := c.releaseCoeff
		if c.cfg.releaseEnvScale > 1.0 {
			// Program-dependent release: blend toward the slow coefficient
			// as the envelope rises, so loud passages recover more gently.
			blend := c.envelope
			if blend > 1 {
				blend = 1
			}

			releaseCoeff += (c.releaseCoeffSlow - releaseCoeff) * blend
		}

		c.envelope = source + (c.envelope-source)*releaseCoeff
	}

	return c.envelope
}

func (c *dynamicsCore) updateRMS(source float64) float64 {
	if len(c.rmsSquares) == 0 {
		return source
	}

	square := source * source

	if c.rmsFilled == len(c.rmsSquares) {
		c.rmsSum -= c.rmsSquares[c.rmsIndex]
	} else {
		c.rmsFilled++
	}

	c.rmsSquares[c.rmsIndex] = square
	c.rmsSum += square

	c.rmsIndex++
	if c.rmsIndex >= len(c.rmsSquares) {
		c.rmsIndex = 0
	}

	mean := c.rmsSum / float64(len(c.rmsSquares))
	if mean <= 0 {
		return 0
	}

	return mathSqrt(mean)
}

func (c *dynamicsCore) applyPrefilter(x float64) float64 {
	if c.lp.enabled {
		x = c.lp.Process(x)
	}

	if c.hp.enabled {
		x = c.hp.Process(x)
	}

	return x
}

func (c *dynamicsCore) recalculate() error {
	err := validateSampleRate(c.cfg.sampleRate)
	if err != nil {
		return err
	}

	err = c.SetDetectorMode(c.cfg.detectorMode)
	if err != nil {
		return err
	}

	err = c.SetThreshold(c.cfg.thresholdDB)
	if err != nil {
		return err
	}

	err = c.SetRatio(c.cfg.ratio)
	if err != nil {
		return err
	}

	err = c.SetKnee(c.cfg.kneeDB)
	if err != nil {
		return err
	}

	err = c.SetAttack(c.cfg.attackMs)
	if err != nil {
		return err
	}

	err = c.SetRelease(c.cfg.releaseMs)
	if err != nil {
		return err
	}

	err = c.SetReleaseEnvScale(c.cfg.releaseEnvScale)
	if err != nil {
		return err
	}

	err = c.SetRMSWindow(c.cfg.rmsWindowMs)
	if err != nil {
		return err
	}

	if c.cfg.autoMakeup {
		err = c.SetAutoMakeup(true)
	} else {
		err = c.SetManualMakeupGain(c.cfg.manualMakeupGainDB)
	}

	if err != nil {
		return err
	}

	err = c.SetSidechainLowCut(c.cfg.sidechainLowCutHz)
	if err != nil {
		return err
	}

	return c.SetSidechainHighCut(c.cfg.sidechainHighCutHz)
}

func (c *dynamicsCore) recalculateDetectorCoefficients() error {
	err := validateSampleRate(c.cfg.sampleRate)
	if err != nil {
		return err
	}

	c.attackCoeff = 1.0 - math.Exp(-math.Ln2/(c.cfg.attackMs*0.001*c.cfg.sampleRate))
	c.releaseCoeff = math.Exp(-math.Ln2 / (c.cfg.releaseMs * 0.001 * c.cfg.sampleRate))
	c.releaseCoeffSlow = math.Exp(-math.Ln2 / (c.cfg.releaseMs * c.cfg.releaseEnvScale * 0.001 * c.cfg.sampleRate))

	return nil
}

func (c *dynamicsCore) recalculateRMSBuffer() error {
	err := validateSampleRate(c.cfg.sampleRate)
	if err != nil {
		return err
	}

	samples := max(int(math.Round(c.cfg.rmsWindowMs*0.001*c.cfg.sampleRate)), 1)

	if len(c.rmsSquares) != samples {
		c.rmsSquares = make([]float64, samples)
		c.rmsIndex = 0
		c.rmsFilled = 0
		c.rmsSum = 0
	}

	c.rmsWindowSamples = samples

	return nil
}

func (c *dynamicsCore) recalculateGainComputer() error {
	c.thresholdLog2 = c.cfg.thresholdDB * log2Of10Div20

	c.kneeWidthLog2 = c.cfg.kneeDB * log2Of10Div20
	if c.cfg.kneeDB > 0 {
		c.invKneeWidthLog2 = 1.0 / c.kneeWidthLog2
	} else {
		c.invKneeWidthLog2 = 0
	}

	if c.cfg.autoMakeup {
		reductionDB := c.cfg.thresholdDB * (1.0 - 1.0/c.cfg.ratio)
		c.makeupGainDB = -reductionDB
	} else {
		c.makeupGainDB = c.cfg.manualMakeupGainDB
	}

	c.makeupGainLin = mathPower10(c.makeupGainDB / 20.0)

	return nil
}

func (c *dynamicsCore) recalculatePrefilter() error {
	err := validateSampleRate(c.cfg.sampleRate)
	if err != nil {
		return err
	}

	nyquist := c.cfg.sampleRate * 0.5
	if c.cfg.sidechainLowCutHz > 0 {
		if c.cfg.sidechainLowCutHz < minSidechainCutoffHz || c.cfg.sidechainLowCutHz >= nyquist {
			return fmt.Errorf("sidechain low-cut must be in [%f, nyquist): %f", minSidechainCutoffHz, c.cfg.sidechainLowCutHz)
		}
	}

	if c.cfg.sidechainHighCutHz > 0 {
		if c.cfg.sidechainHighCutHz < minSidechainCutoffHz || c.cfg.sidechainHighCutHz >= nyquist {
			return fmt.Errorf("sidechain high-cut must be in [%f, nyquist): %f", minSidechainCutoffHz, c.cfg.sidechainHighCutHz)
		}
	}

	if c.cfg.sidechainLowCutHz > 0 && c.cfg.sidechainHighCutHz > 0 &&
		c.cfg.sidechainLowCutHz >= c.cfg.sidechainHighCutHz {
		return fmt.Errorf("sidechain low-cut must be below high-cut: low=%f high=%f", c.cfg.sidechainLowCutHz, c.cfg.sidechainHighCutHz)
	}

	c.hp.Configure(c.cfg.sidechainLowCutHz, c.cfg.sampleRate)
	c.lp.Configure(c.cfg.sidechainHighCutHz, c.cfg.sampleRate)

	return nil
}

func (c *dynamicsCore) Reset() {
	c.envelope = 0
	c.rmsIndex = 0
	c.rmsFilled = 0

	c.rmsSum = 0
	for i := range c.rmsSquares {
		c.rmsSquares[i] = 0
	}

	c.hp.Reset()
	c.lp.Reset()
}

func validateSampleRate(sampleRate float64) error {
	if sampleRate <= 0 || !isFinite(sampleRate) {
		return fmt.Errorf("sample rate must be positive and finite: %f", sampleRate)
	}

	return nil
}

func isFinite(v float64) bool {
	return !(math.IsNaN(v) || math.IsInf(v, 0))
}

type onePoleLowPass struct {
	enabled bool
	alpha   float64
	state   float64
}

func (f *onePoleLowPass) Configure(cutoffHz, sampleRate float64) {
	if cutoffHz <= 0 {
		f.enabled = false
		f.alpha = 0
		f.state = 0

		return
	}

	f.enabled = true
	f.alpha = 1.0 - math.Exp(-2.0*math.Pi*cutoffHz/sampleRate)
}

func (f *onePoleLowPass) Process(x float64) float64 {
	if !f.enabled {
		return x
	}

	f.state += f.alpha * (x - f.state)

	return f.state
}

func (f *onePoleLowPass) Reset() {
	f.state = 0
}

type onePoleHighPass struct {
	enabled bool
	lp      onePoleLowPass
}

func (f *onePoleHighPass) Configure(cutoffHz, sampleRate float64) {
	if cutoffHz <= 0 {
		f.enabled = false
		f.lp.enabled = false
		f.lp.alpha = 0
		f.lp.state = 0

		return
	}

	f.enabled = true
	f.lp.Configure(cutoffHz, sampleRate)
}

func (f *onePoleHighPass) Process(x float64) float64 {
	if !f.enabled {
		return x
	}

	return x - f.lp.Process(x)
}

func (f *onePoleHighPass) Reset() {
	f.lp.Reset()
}
