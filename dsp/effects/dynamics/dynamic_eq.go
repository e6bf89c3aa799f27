package dynamics

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/filter/design"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	defaultDynamicEQThresholdDB = -30.0
	defaultDynamicEQRatio       = 4.0
	defaultDynamicEQAttackMs    = 10.0
	defaultDynamicEQReleaseMs   = 150.0
	defaultDynamicEQShape       = 0.5
	defaultDynamicEQFreqHz      = 1000.0
	defaultDynamicEQFreq2Hz     = 4000.0
	defaultDynamicEQQ           = 2.0

	minDynamicEQRatio     = 1.0
	maxDynamicEQRatio     = 100.0
	minDynamicEQAttackMs  = 0.1
	maxDynamicEQAttackMs  = 1000.0
	minDynamicEQReleaseMs = 1.0
	maxDynamicEQReleaseMs = 5000.0
	minDynamicEQFreqHz    = 20.0
	maxDynamicEQFreqHz    = 20000.0
	minDynamicEQQ         = 0.1
	maxDynamicEQQ         = 10.0

	// dynamicEQBands is the number of duckable bands.
	dynamicEQBands = 2

	// sidechainAvgBlocks is the length of the moving average over per-block
	// sidechain RMS values. Averaging a few blocks stops a single hot block
	// from slamming the reduction target.
	sidechainAvgBlocks = 4

	// midDepthScale and sideDepthScale distribute the computed attenuation
	// across the mid and side components. Ducking the sides harder than the
	// center keeps the program's lead content present while still clearing
	// room for the key signal.
	midDepthScale  = 0.7
	sideDepthScale = 1.5

	// sidechainDBFloor keeps the level conversion finite on silence.
	sidechainDBFloor = 1e-6
)

// DynamicEQMetrics holds metering information for visualization and analysis.
type DynamicEQMetrics struct {
	// SidechainLevelDB is the most recent averaged sidechain level.
	SidechainLevelDB float64
	// GainReductionDB is the most recent reduction target in dB (positive
	// numbers mean attenuation).
	GainReductionDB float64
	// MaxGainReductionDB is the deepest reduction since last reset.
	MaxGainReductionDB float64
}

type dynamicEQBand struct {
	enabled bool
	freqHz  float64
	q       float64

	mid  *biquad.Section
	side *biquad.Section
	norm float64
}

// DynamicEQ ducks frequency bands of a stereo program signal in response to
// the level of a separate key (sidechain) signal.
//
// The detector measures the sidechain RMS once per block, smooths it over a
// short moving average, and converts to dB. Level above the threshold maps
// to a reduction amount through a tanh-smoothed knee. The reduction is
// applied to parametric bands of the program signal in the mid/side domain:
// the side component is ducked harder than the mid, which carves space for
// the key signal without hollowing out the program's center image.
//
// The intended use is backing-track ducking keyed from a vocal bus: when the
// vocalist sings, the band around the voice's presence region dips in the
// backing mix and recovers when the phrase ends.
//
// The per-field setters must not run concurrently with processing;
// cross-thread control goes through SetParams.
type DynamicEQ struct {
	thresholdDB float64
	ratio       float64
	attackMs    float64
	releaseMs   float64
	shape       float64
	bypassed    param.Bool

	// Whole-struct snapshots published by SetParams and picked up at the
	// start of the next block.
	pendingParams param.Cell[DynamicEQParams]
	lastApplied   *DynamicEQParams

	sampleRate float64

	bands [dynamicEQBands]dynamicEQBand

	// Sidechain analysis state.
	scRecent [sidechainAvgBlocks]float64
	scIndex  int

	// Per-sample smoothed gains and their block-rate targets.
	gainMid    float64
	gainSide   float64
	targetMid  float64
	targetSide float64

	attackCoeff  float64
	releaseCoeff float64

	metrics DynamicEQMetrics
}

// NewDynamicEQ creates a dynamic EQ with backing-duck defaults.
//
// Default parameters:
//   - Threshold: -30 dB
//   - Ratio: 4:1
//   - Attack: 10 ms
//   - Release: 150 ms
//   - Shape: 0.5
//   - Band 1: 1000 Hz, Q 2, enabled
//   - Band 2: 4000 Hz, Q 2, disabled
func NewDynamicEQ(sampleRate float64) (*DynamicEQ, error) {
	if err := validateSampleRate(sampleRate); err != nil {
		return nil, fmt.Errorf("dynamic eq %w", err)
	}

	eq := &DynamicEQ{
		thresholdDB: defaultDynamicEQThresholdDB,
		ratio:       defaultDynamicEQRatio,
		attackMs:    defaultDynamicEQAttackMs,
		releaseMs:   defaultDynamicEQReleaseMs,
		shape:       defaultDynamicEQShape,
		sampleRate:  sampleRate,
		gainMid:     1.0,
		gainSide:    1.0,
		targetMid:   1.0,
		targetSide:  1.0,
	}

	eq.bands[0] = dynamicEQBand{enabled: true, freqHz: defaultDynamicEQFreqHz, q: defaultDynamicEQQ}
	eq.bands[1] = dynamicEQBand{enabled: false, freqHz: defaultDynamicEQFreq2Hz, q: defaultDynamicEQQ}

	eq.rebuildBands()
	eq.updateTimeConstants()

	return eq, nil
}

// SetThreshold sets the sidechain level in dB above which ducking engages.
func (eq *DynamicEQ) SetThreshold(dB float64) error {
	if !isFinite(dB) {
		return fmt.Errorf("dynamic eq threshold must be finite: %f", dB)
	}

	eq.thresholdDB = dB

	return nil
}

// SetRatio sets how much reduction is applied per dB of overshoot.
// Range: [1, 100]. 1 = no ducking.
func (eq *DynamicEQ) SetRatio(ratio float64) error {
	if ratio < minDynamicEQRatio || ratio > maxDynamicEQRatio || !isFinite(ratio) {
		return fmt.Errorf("dynamic eq ratio must be in [%g, %g]: %f",
			minDynamicEQRatio, maxDynamicEQRatio, ratio)
	}

	eq.ratio = ratio

	return nil
}

// SetAttack sets how quickly the duck deepens, in milliseconds.
func (eq *DynamicEQ) SetAttack(ms float64) error {
	if ms < minDynamicEQAttackMs || ms > maxDynamicEQAttackMs || !isFinite(ms) {
		return fmt.Errorf("dynamic eq attack must be in [%g, %g]: %f",
			minDynamicEQAttackMs, maxDynamicEQAttackMs, ms)
	}

	eq.attackMs = ms
	eq.updateTimeConstants()

	return nil
}

// SetRelease sets how quickly the duck recovers, in milliseconds.
func (eq *DynamicEQ) SetRelease(ms float64) error {
	if ms < minDynamicEQReleaseMs || ms > maxDynamicEQReleaseMs || !isFinite(ms) {
		return fmt.Errorf("dynamic eq release must be in [%g, %g]: %f",
			minDynamicEQReleaseMs, maxDynamicEQReleaseMs, ms)
	}

	eq.releaseMs = ms
	eq.updateTimeConstants()

	return nil
}

// SetShape scales the overall duck depth. Range: [0, 1], mapped internally
// to a [0.3, 1.0] multiplier on the computed reduction, so even shape 0
// keeps a gentle duck.
func (eq *DynamicEQ) SetShape(shape float64) error {
	if shape < 0 || shape > 1 || !isFinite(shape) {
		return fmt.Errorf("dynamic eq shape must be in [0, 1]: %f", shape)
	}

	eq.shape = shape

	return nil
}

// SetBandFrequency sets the center frequency of a band in Hz.
func (eq *DynamicEQ) SetBandFrequency(band int, hz float64) error {
	if band < 0 || band >= dynamicEQBands {
		return fmt.Errorf("dynamic eq band must be in [0, %d): %d", dynamicEQBands, band)
	}

	if hz < minDynamicEQFreqHz || hz > maxDynamicEQFreqHz || !isFinite(hz) {
		return fmt.Errorf("dynamic eq frequency must be in [%g, %g]: %f",
			minDynamicEQFreqHz, maxDynamicEQFreqHz, hz)
	}

	if hz >= eq.sampleRate/2 {
		return fmt.Errorf("dynamic eq frequency must be < Nyquist (%g): %f",
			eq.sampleRate/2, hz)
	}

	eq.bands[band].freqHz = hz
	eq.rebuildBands()

	return nil
}

// SetBandQ sets the bandwidth of a band. Range: [0.1, 10].
func (eq *DynamicEQ) SetBandQ(band int, q float64) error {
	if band < 0 || band >= dynamicEQBands {
		return fmt.Errorf("dynamic eq band must be in [0, %d): %d", dynamicEQBands, band)
	}

	if q < minDynamicEQQ || q > maxDynamicEQQ || !isFinite(q) {
		return fmt.Errorf("dynamic eq Q must be in [%g, %g]: %f",
			minDynamicEQQ, maxDynamicEQQ, q)
	}

	eq.bands[band].q = q
	eq.rebuildBands()

	return nil
}

// SetBandEnabled enables or disables a band.
func (eq *DynamicEQ) SetBandEnabled(band int, enabled bool) error {
	if band < 0 || band >= dynamicEQBands {
		return fmt.Errorf("dynamic eq band must be in [0, %d): %d", dynamicEQBands, band)
	}

	eq.bands[band].enabled = enabled

	return nil
}

// SetBypassed enables or disables processing. A bypassed dynamic EQ leaves
// the program untouched and advances no internal state.
func (eq *DynamicEQ) SetBypassed(bypassed bool) {
	eq.bypassed.Store(bypassed)
}

// SetSampleRate updates the sample rate and rebuilds filters and coefficients.
func (eq *DynamicEQ) SetSampleRate(sampleRate float64) error {
	if err := validateSampleRate(sampleRate); err != nil {
		return fmt.Errorf("dynamic eq %w", err)
	}

	for i := range eq.bands {
		if eq.bands[i].freqHz >= sampleRate/2 {
			return fmt.Errorf("dynamic eq band %d frequency %g Hz exceeds Nyquist for sample rate %g Hz",
				i, eq.bands[i].freqHz, sampleRate)
		}
	}

	eq.sampleRate = sampleRate
	eq.rebuildBands()
	eq.updateTimeConstants()

	return nil
}

// Threshold returns the ducking threshold in dB.
func (eq *DynamicEQ) Threshold() float64 { return eq.thresholdDB }

// Ratio returns the ducking ratio.
func (eq *DynamicEQ) Ratio() float64 { return eq.ratio }

// Attack returns the attack time in milliseconds.
func (eq *DynamicEQ) Attack() float64 { return eq.attackMs }

// Release returns the release time in milliseconds.
func (eq *DynamicEQ) Release() float64 { return eq.releaseMs }

// Shape returns the duck depth control in [0, 1].
func (eq *DynamicEQ) Shape() float64 { return eq.shape }

// BandFrequency returns the center frequency of a band in Hz.
func (eq *DynamicEQ) BandFrequency(band int) float64 {
	if band < 0 || band >= dynamicEQBands {
		return 0
	}

	return eq.bands[band].freqHz
}

// BandQ returns the bandwidth of a band.
func (eq *DynamicEQ) BandQ(band int) float64 {
	if band < 0 || band >= dynamicEQBands {
		return 0
	}

	return eq.bands[band].q
}

// BandEnabled reports whether a band is active.
func (eq *DynamicEQ) BandEnabled(band int) bool {
	if band < 0 || band >= dynamicEQBands {
		return false
	}

	return eq.bands[band].enabled
}

// Bypassed reports whether the dynamic EQ is bypassed.
func (eq *DynamicEQ) Bypassed() bool { return eq.bypassed.Load() }

// SampleRate returns the current sample rate in Hz.
func (eq *DynamicEQ) SampleRate() float64 { return eq.sampleRate }

// ProcessBlock ducks the stereo program in left/right according to the level
// of the sidechain block. The program buffers are modified in place; the
// sidechain is read-only and may have a different length than the program
// block (its whole content contributes to one RMS measurement).
func (eq *DynamicEQ) ProcessBlock(left, right, sidechain []float64) {
	if eq.bypassed.Load() {
		return
	}

	if snap := eq.pendingParams.Ref(); snap != nil && snap != eq.lastApplied {
		eq.applySnapshot(snap)
	}

	grDB := eq.analyzeSidechain(sidechain)

	// Attenuation split across mid/side at block rate; the per-sample
	// smoother carries the targets between blocks.
	eq.targetMid = mathPower10(-grDB * midDepthScale / 20.0)
	eq.targetSide = mathPower10(-grDB * sideDepthScale / 20.0)

	n := min(len(left), len(right))

	for i := range n {
		eq.gainMid = eq.smoothGain(eq.gainMid, eq.targetMid)
		eq.gainSide = eq.smoothGain(eq.gainSide, eq.targetSide)

		mid := 0.5 * (left[i] + right[i])
		side := 0.5 * (left[i] - right[i])

		for b := range eq.bands {
			band := &eq.bands[b]
			if !band.enabled {
				continue
			}

			// Filters run even at unity gain so engaging the duck never
			// hits cold filter state.
			bm := band.mid.ProcessSample(mid) * band.norm
			bs := band.side.ProcessSample(side) * band.norm

			mid += bm * (eq.gainMid - 1)
			side += bs * (eq.gainSide - 1)
		}

		left[i] = mid + side
		right[i] = mid - side
	}
}

// Reset clears all filter, smoothing, and analysis state.
func (eq *DynamicEQ) Reset() {
	for i := range eq.bands {
		if eq.bands[i].mid != nil {
			eq.bands[i].mid.Reset()
		}

		if eq.bands[i].side != nil {
			eq.bands[i].side.Reset()
		}
	}

	for i := range eq.scRecent {
		eq.scRecent[i] = 0
	}

	eq.scIndex = 0
	eq.gainMid = 1.0
	eq.gainSide = 1.0
	eq.targetMid = 1.0
	eq.targetSide = 1.0
	eq.metrics = DynamicEQMetrics{}
}

// GetMetrics returns current metering values.
func (eq *DynamicEQ) GetMetrics() DynamicEQMetrics {
	return eq.metrics
}

// ResetMetrics clears metering state.
func (eq *DynamicEQ) ResetMetrics() {
	eq.metrics = DynamicEQMetrics{}
}

// analyzeSidechain folds one block of the key signal into the moving
// average and returns the shaped reduction amount in dB.
func (eq *DynamicEQ) analyzeSidechain(sidechain []float64) float64 {
	var rms float64

	if len(sidechain) > 0 {
		var sum float64
		for _, s := range sidechain {
			sum += s * s
		}

		rms = mathSqrt(sum / float64(len(sidechain)))
	}

	eq.scRecent[eq.scIndex] = rms
	eq.scIndex++

	if eq.scIndex >= sidechainAvgBlocks {
		eq.scIndex = 0
	}

	var avg float64
	for _, v := range eq.scRecent {
		avg += v
	}

	avg /= sidechainAvgBlocks

	levelDB := 20.0 * math.Log10(avg+sidechainDBFloor)

	var grDB float64

	over := levelDB - eq.thresholdDB
	if over > 0 {
		// tanh knee: reduction fades in smoothly just above threshold and
		// approaches the full ratio-determined slope for large overshoots.
		grDB = over * (1.0 - 1.0/eq.ratio) * (math.Tanh(over/3.0) + 1.0) * 0.5
	}

	grDB *= 0.3 + 0.7*eq.shape

	eq.metrics.SidechainLevelDB = levelDB
	eq.metrics.GainReductionDB = grDB

	if grDB > eq.metrics.MaxGainReductionDB {
		eq.metrics.MaxGainReductionDB = grDB
	}

	return grDB
}

func (eq *DynamicEQ) smoothGain(gain, target float64) float64 {
	coeff := eq.releaseCoeff
	if target < gain {
		// Reduction deepening: move at attack speed.
		coeff = eq.attackCoeff
	}

	return gain + coeff*(target-gain)
}

func (eq *DynamicEQ) rebuildBands() {
	for i := range eq.bands {
		band := &eq.bands[i]
		coeffs := design.Bandpass(band.freqHz, band.q, eq.sampleRate)
		band.mid = biquad.NewSection(coeffs)
		band.side = biquad.NewSection(coeffs)
		// Constant-skirt bandpass peaks at Q; normalise the extracted band
		// to unity before recombination.
		band.norm = 1.0 / band.q
	}
}

func (eq *DynamicEQ) updateTimeConstants() {
	eq.attackCoeff = 1.0 - math.Exp(-1.0/(eq.attackMs*0.001*eq.sampleRate))
	eq.releaseCoeff = 1.0 - math.Exp(-1.0/(eq.releaseMs*0.001*eq.sampleRate))
}
