package reverb

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/conv"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/envelope"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/filter/design"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	convMinBlockOrder = 7
	convMaxBlockOrder = 13

	// Convolution spreads impulse energy over the tail, so its peak wet
	// level sits well below the algorithmic models at the same setting.
	// The makeup gain matches perceived loudness across reverb types.
	convWetMakeup = 3.5

	maxConvWetGain = 10.0

	minConvLowCutHz  = 20.0
	maxConvLowCutHz  = 1000.0
	minConvHighCutHz = 1000.0
	maxConvHighCutHz = 20000.0

	// Below this speed the gate is off outright, not merely slow.
	gateSpeedFloor = 0.01
	// A closing gate snaps to silence once it falls this far.
	gateSnapFloor = 1e-4

	minGateThresholdDb     = -80.0
	maxGateThresholdDb     = 0.0
	defaultGateThresholdDb = -50.0

	gateDetectorAttackMs  = 0.5
	gateDetectorReleaseMs = 10.0
)

// ConvolutionParams is the full configuration of the convolution reverb,
// exchanged as one snapshot.
type ConvolutionParams struct {
	WetGain   float64 // 0 to 10, wet level ahead of the loudness makeup
	LowCutHz  float64 // 20 to 1000, wet high-pass corner
	HighCutHz float64 // 1000 to 20000, wet low-pass corner

	// IRPath selects the impulse response WAV. Empty keeps the embedded
	// default. An unreadable path also falls back to the default; IRName
	// reports which impulse is live.
	IRPath string

	// Duck attenuates the wet level while the source is hot.
	DuckDepth     float64
	DuckAttackMs  float64
	DuckReleaseMs float64

	// GateSpeed below gateSpeedFloor disables the gate. Above it, higher
	// values close the wet path faster once the input falls under
	// GateThresholdDb.
	GateSpeed       float64
	GateThresholdDb float64
}

// DefaultConvolutionParams returns the embedded impulse, half wet, with duck
// and gate off.
func DefaultConvolutionParams() ConvolutionParams {
	return ConvolutionParams{
		WetGain:         0.5,
		LowCutHz:        minConvLowCutHz,
		HighCutHz:       maxConvHighCutHz,
		IRPath:          "",
		DuckDepth:       0,
		DuckAttackMs:    defaultDuckAttackMs,
		DuckReleaseMs:   defaultDuckReleaseMs,
		GateSpeed:       0,
		GateThresholdDb: defaultGateThresholdDb,
	}
}

// sanitized clamps every field into its legal range, replacing non-finite
// values with defaults.
func (p ConvolutionParams) sanitized() ConvolutionParams {
	p.WetGain = clampFinite(p.WetGain, 0, maxConvWetGain, 0.5)
	p.LowCutHz = clampFinite(p.LowCutHz, minConvLowCutHz, maxConvLowCutHz, minConvLowCutHz)
	p.HighCutHz = clampFinite(p.HighCutHz, minConvHighCutHz, maxConvHighCutHz, maxConvHighCutHz)
	p.DuckDepth = clampFinite(p.DuckDepth, 0, 1, 0)
	p.DuckAttackMs = clampFinite(p.DuckAttackMs, minDuckTimeMs, maxDuckTimeMs, defaultDuckAttackMs)
	p.DuckReleaseMs = clampFinite(p.DuckReleaseMs, minDuckTimeMs, maxDuckTimeMs, defaultDuckReleaseMs)
	p.GateSpeed = clampFinite(p.GateSpeed, 0, 1, 0)
	p.GateThresholdDb = clampFinite(p.GateThresholdDb, minGateThresholdDb, maxGateThresholdDb, defaultGateThresholdDb)
	return p
}

// irEngineSet pairs the per-channel convolution engines for one impulse
// response. The whole set swaps atomically when a new impulse loads, so the
// audio thread never sees a half-replaced pair.
type irEngineSet struct {
	left    *conv.PartitionedConvolution
	right   *conv.PartitionedConvolution
	name    string
	path    string
	latency int
}

// Convolution reverberates stereo audio against an impulse response using
// non-uniformly partitioned convolution, with the same duck contract as the
// algorithmic reverb plus a wet-path noise gate.
//
// Impulse loading and engine construction happen on the control thread in
// Prepare and SetParams; the audio thread only ever swaps to a finished
// engine set.
type Convolution struct {
	params   param.Cell[ConvolutionParams]
	bypassed param.Bool
	lastSnap *ConvolutionParams

	engines param.Cell[irEngineSet]

	wetL []float64
	wetR []float64

	wetHP [2]*biquad.Section
	wetLP [2]*biquad.Section

	duck    *envelope.Follower
	gateDet *envelope.Follower

	gateOn         bool
	gateGain       float64
	gateOpenCoeff  float64
	gateCloseCoeff float64
	gateThreshold  float64

	sampleRate float64
	prepared   bool
}

// NewConvolution creates a convolution reverb with DefaultConvolutionParams.
// Prepare must be called before processing.
func NewConvolution() *Convolution {
	c := &Convolution{}
	c.params.Store(DefaultConvolutionParams())
	return c
}

// Prepare sizes the processor for the given sample rate and block length and
// loads the configured impulse response (embedded default when no path is
// set).
func (c *Convolution) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("convolution reverb sample rate must be positive and finite: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("convolution reverb max block must be > 0: %d", maxBlock)
	}

	duck, err := envelope.NewFollower(sampleRate)
	if err != nil {
		return fmt.Errorf("convolution reverb duck: %w", err)
	}
	gateDet, err := envelope.NewFollower(sampleRate)
	if err != nil {
		return fmt.Errorf("convolution reverb gate: %w", err)
	}
	if err := gateDet.SetAttack(gateDetectorAttackMs); err != nil {
		return err
	}
	if err := gateDet.SetRelease(gateDetectorReleaseMs); err != nil {
		return err
	}

	c.sampleRate = sampleRate
	c.wetL = make([]float64, maxBlock)
	c.wetR = make([]float64, maxBlock)
	for ch := range c.wetHP {
		c.wetHP[ch] = biquad.NewSection(biquad.Coefficients{})
		c.wetLP[ch] = biquad.NewSection(biquad.Coefficients{})
	}
	c.duck = duck
	c.gateDet = gateDet
	c.gateGain = 1
	c.gateOpenCoeff = 1 - math.Exp(-1/(0.001*sampleRate))

	p := c.params.Load()
	if err := c.loadEngines(p.IRPath); err != nil {
		return err
	}

	c.lastSnap = nil
	c.prepared = true
	c.applySnapshot(c.params.Ref())
	return nil
}

// loadEngines resolves the impulse for path (default on empty or failure)
// and publishes a fresh engine set. Called on the control thread only.
func (c *Convolution) loadEngines(path string) error {
	irL, irR, name := resolveImpulse(path, c.sampleRate)

	left, err := conv.NewPartitionedConvolution(irL, convMinBlockOrder, convMaxBlockOrder)
	if err != nil {
		return fmt.Errorf("convolution reverb engine: %w", err)
	}
	right, err := conv.NewPartitionedConvolution(irR, convMinBlockOrder, convMaxBlockOrder)
	if err != nil {
		return fmt.Errorf("convolution reverb engine: %w", err)
	}

	c.engines.Store(irEngineSet{
		left:    left,
		right:   right,
		name:    name,
		path:    path,
		latency: left.Latency(),
	})
	return nil
}

// SetParams stores a sanitized snapshot and reloads the impulse response if
// its path changed. Reloading happens on the caller's goroutine, never the
// audio thread, so audio keeps running on the previous impulse until the new
// engines are ready.
func (c *Convolution) SetParams(p ConvolutionParams) {
	sp := p.sanitized()
	c.params.Store(sp)
	if !c.prepared {
		return
	}
	if cur := c.engines.Ref(); cur != nil && cur.path == sp.IRPath {
		return
	}
	// A broken path still resolves to the default impulse, so the only
	// errors here are internal and leave the previous engines live.
	_ = c.loadEngines(sp.IRPath)
}

// Params returns the last stored snapshot.
func (c *Convolution) Params() ConvolutionParams {
	return c.params.Load()
}

// SetBypassed toggles the processor.
func (c *Convolution) SetBypassed(bypassed bool) {
	c.bypassed.Store(bypassed)
}

// Bypassed reports whether the processor is bypassed.
func (c *Convolution) Bypassed() bool {
	return c.bypassed.Load()
}

// IRName reports which impulse response is live: "Default (Internal)", the
// file's base name, or "File Not Found (Default)" after a failed load.
func (c *Convolution) IRName() string {
	if set := c.engines.Ref(); set != nil {
		return set.name
	}
	return irNameInternal
}

// Latency returns the convolution latency in samples (one minimum
// partition).
func (c *Convolution) Latency() int {
	if set := c.engines.Ref(); set != nil {
		return set.latency
	}
	return 0
}

// Reset clears convolution, filter, and follower state. Parameters and the
// loaded impulse persist.
func (c *Convolution) Reset() {
	if !c.prepared {
		return
	}
	if set := c.engines.Ref(); set != nil {
		set.left.Reset()
		set.right.Reset()
	}
	for ch := range c.wetHP {
		c.wetHP[ch].Reset()
		c.wetLP[ch].Reset()
	}
	c.duck.Reset()
	c.gateDet.Reset()
	c.gateGain = 1
}

// applySnapshot recomputes filter coefficients, duck times, and gate
// coefficients from a parameter snapshot.
func (c *Convolution) applySnapshot(p *ConvolutionParams) {
	if p == nil {
		return
	}

	hp := design.Highpass(p.LowCutHz, wetFilterQ, c.sampleRate)
	lp := design.Lowpass(p.HighCutHz, wetFilterQ, c.sampleRate)
	for ch := range c.wetHP {
		c.wetHP[ch].Coefficients = hp
		c.wetLP[ch].Coefficients = lp
	}

	_ = c.duck.SetAttack(p.DuckAttackMs)
	_ = c.duck.SetRelease(p.DuckReleaseMs)

	c.gateOn = p.GateSpeed >= gateSpeedFloor
	if c.gateOn {
		releaseSec := 0.5*(1-p.GateSpeed) + 0.02
		c.gateCloseCoeff = math.Exp(-1 / (releaseSec * c.sampleRate))
		c.gateThreshold = core.DBToLinear(p.GateThresholdDb)
	} else {
		c.gateGain = 1
	}

	c.lastSnap = p
}

// ProcessBlock reverberates left and right in place: the dry signal passes
// at unity and the filtered, gained wet signal adds on top. Does nothing
// until Prepare succeeds.
func (c *Convolution) ProcessBlock(left, right []float64) {
	if !c.prepared || c.bypassed.Load() {
		return
	}

	snap := c.params.Ref()
	if snap != c.lastSnap {
		c.applySnapshot(snap)
	}
	p := snap

	set := c.engines.Ref()
	if set == nil {
		return
	}

	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	if n == 0 {
		return
	}

	if n > len(c.wetL) {
		// Rare slow path: the host delivered more than it promised.
		c.wetL = make([]float64, n)
		c.wetR = make([]float64, n)
	}
	wetL := c.wetL[:n]
	wetR := c.wetR[:n]

	if err := set.left.ProcessBlock(left[:n], wetL); err != nil {
		return
	}
	if err := set.right.ProcessBlock(right[:n], wetR); err != nil {
		return
	}

	for i := range n {
		mono := 0.5 * (left[i] + right[i])

		env := c.duck.Process(mono)
		duckGain := 1.0
		if p.DuckDepth > 0 {
			duckGain = 1 - p.DuckDepth*math.Min(1, env*duckSensitivity)
		}

		gateGain := 1.0
		if c.gateOn {
			det := c.gateDet.Process(mono)
			if det >= c.gateThreshold {
				c.gateGain += c.gateOpenCoeff * (1 - c.gateGain)
			} else {
				c.gateGain *= c.gateCloseCoeff
				if c.gateGain < gateSnapFloor {
					c.gateGain = 0
				}
			}
			gateGain = c.gateGain
		}

		wl := c.wetHP[0].ProcessSample(wetL[i])
		wr := c.wetHP[1].ProcessSample(wetR[i])
		wl = c.wetLP[0].ProcessSample(wl)
		wr = c.wetLP[1].ProcessSample(wr)

		g := p.WetGain * convWetMakeup * duckGain * gateGain
		left[i] += wl * g
		right[i] += wr * g
	}
}
