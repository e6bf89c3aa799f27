package reverb

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/delay"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/envelope"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/filter/biquad"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/filter/design"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

// Model selects the room shape of the algorithmic reverb.
type Model int

const (
	// ModelHall is a single wide bank with slow tap modulation.
	ModelHall Model = iota
	// ModelRoom cascades three five-line banks with feedback softening.
	ModelRoom
	// ModelSpace cascades three four-line banks behind a vibrato pre-delay.
	ModelSpace
)

// String returns the model name.
func (m Model) String() string {
	switch m {
	case ModelHall:
		return "hall"
	case ModelRoom:
		return "room"
	case ModelSpace:
		return "space"
	default:
		return "unknown"
	}
}

const (
	minDecaySeconds     = 0.1
	maxDecaySeconds     = 30.0
	defaultDecaySeconds = 1.8

	maxPreDelayMs     = 250.0
	defaultPreDelayMs = 10.0

	minCutHz = 20.0
	maxCutHz = 20000.0

	maxWetLevel = 2.0

	wetFilterQ = 0.707

	defaultDuckAttackMs  = 5.0
	defaultDuckReleaseMs = 200.0
	minDuckTimeMs        = 0.1
	maxDuckTimeMs        = 2000.0

	// An envelope at -12 dBFS fully engages the duck.
	duckSensitivity = 4.0
)

// AlgorithmicParams is the full configuration of the algorithmic reverb,
// exchanged as one snapshot.
type AlgorithmicParams struct {
	Model        Model
	DecaySeconds float64 // 0.1 to 30, 60 dB tail decay time
	Size         float64 // 0 to 1, scales every delay line
	Damp         float64 // 0 to 1, high-frequency loss per recirculation
	Detune       float64 // 0 to 1, tap/vibrato/softening motion
	PreDelayMs   float64 // 0 to 250, gap ahead of the banks
	LowCutHz     float64 // wet high-pass corner
	HighCutHz    float64 // wet low-pass corner
	Wet          float64 // 0 to 2, wet level
	Dry          float64 // 0 to 2, dry level

	// Duck attenuates the wet level while the source is hot so the tail
	// swells back in the gaps.
	DuckDepth     float64 // 0 disables, 1 fully mutes wet at hot input
	DuckAttackMs  float64
	DuckReleaseMs float64
}

// DefaultAlgorithmicParams returns a medium hall with ducking off.
func DefaultAlgorithmicParams() AlgorithmicParams {
	return AlgorithmicParams{
		Model:         ModelHall,
		DecaySeconds:  defaultDecaySeconds,
		Size:          0.5,
		Damp:          0.3,
		Detune:        0.5,
		PreDelayMs:    defaultPreDelayMs,
		LowCutHz:      minCutHz,
		HighCutHz:     maxCutHz,
		Wet:           0.2,
		Dry:           1.0,
		DuckDepth:     0,
		DuckAttackMs:  defaultDuckAttackMs,
		DuckReleaseMs: defaultDuckReleaseMs,
	}
}

// sanitized clamps every field into its legal range and replaces non-finite
// values with defaults, so a snapshot loaded on the audio thread never needs
// further validation.
func (p AlgorithmicParams) sanitized() AlgorithmicParams {
	if p.Model != ModelHall && p.Model != ModelRoom && p.Model != ModelSpace {
		p.Model = ModelHall
	}
	p.DecaySeconds = clampFinite(p.DecaySeconds, minDecaySeconds, maxDecaySeconds, defaultDecaySeconds)
	p.Size = clampFinite(p.Size, 0, 1, 0.5)
	p.Damp = clampFinite(p.Damp, 0, 1, 0.3)
	p.Detune = clampFinite(p.Detune, 0, 1, 0.5)
	p.PreDelayMs = clampFinite(p.PreDelayMs, 0, maxPreDelayMs, defaultPreDelayMs)
	p.LowCutHz = clampFinite(p.LowCutHz, minCutHz, maxCutHz, minCutHz)
	p.HighCutHz = clampFinite(p.HighCutHz, minCutHz, maxCutHz, maxCutHz)
	p.Wet = clampFinite(p.Wet, 0, maxWetLevel, 0.2)
	p.Dry = clampFinite(p.Dry, 0, maxWetLevel, 1.0)
	p.DuckDepth = clampFinite(p.DuckDepth, 0, 1, 0)
	p.DuckAttackMs = clampFinite(p.DuckAttackMs, minDuckTimeMs, maxDuckTimeMs, defaultDuckAttackMs)
	p.DuckReleaseMs = clampFinite(p.DuckReleaseMs, minDuckTimeMs, maxDuckTimeMs, defaultDuckReleaseMs)
	return p
}

func clampFinite(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return core.Clamp(v, lo, hi)
}

// Algorithmic is a stereo feedback-delay-network reverb with selectable room
// models. All three models are allocated at Prepare so switching on the
// audio thread costs nothing; only the active model processes.
//
// The wet path runs input high-pass, pre-delay, the active model, and an
// output low-pass, then mixes against the dry signal. A duck follower on
// the dry input pulls the wet level down while the source plays.
type Algorithmic struct {
	params   param.Cell[AlgorithmicParams]
	bypassed param.Bool
	lastSnap *AlgorithmicParams

	hall  *hallModel
	room  *roomModel
	space *spaceModel
	model Model

	pre        [2]*delay.Line
	preSamples float64

	wetHP [2]*biquad.Section
	wetLP [2]*biquad.Section

	duck  *envelope.Follower
	noise [2]fpNoise

	sampleRate float64
	prepared   bool
}

// NewAlgorithmic creates an algorithmic reverb with DefaultAlgorithmicParams.
// Prepare must be called before processing.
func NewAlgorithmic() *Algorithmic {
	r := &Algorithmic{}
	r.params.Store(DefaultAlgorithmicParams())
	return r
}

// Prepare builds all three models, the pre-delay lines, the wet filters, and
// the duck follower for the given sample rate.
func (r *Algorithmic) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("reverb sample rate must be positive and finite: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("reverb max block must be > 0: %d", maxBlock)
	}

	hall, err := newHallModel(sampleRate)
	if err != nil {
		return err
	}
	room, err := newRoomModel(sampleRate)
	if err != nil {
		return err
	}
	space, err := newSpaceModel(sampleRate)
	if err != nil {
		return err
	}

	preLen := int(maxPreDelayMs*0.001*sampleRate) + 8
	for ch := range r.pre {
		line, err := delay.New(preLen)
		if err != nil {
			return fmt.Errorf("reverb pre-delay: %w", err)
		}
		r.pre[ch] = line
		r.wetHP[ch] = biquad.NewSection(biquad.Coefficients{})
		r.wetLP[ch] = biquad.NewSection(biquad.Coefficients{})
	}

	duck, err := envelope.NewFollower(sampleRate)
	if err != nil {
		return fmt.Errorf("reverb duck: %w", err)
	}

	r.hall = hall
	r.room = room
	r.space = space
	r.duck = duck
	r.noise[0].state = noiseSeedLeft
	r.noise[1].state = noiseSeedRight
	r.sampleRate = sampleRate
	r.lastSnap = nil
	r.prepared = true
	r.applySnapshot(r.params.Ref())
	return nil
}

// SetParams stores a sanitized snapshot for the next block. Safe from any
// goroutine.
func (r *Algorithmic) SetParams(p AlgorithmicParams) {
	r.params.Store(p.sanitized())
}

// Params returns the last stored snapshot.
func (r *Algorithmic) Params() AlgorithmicParams {
	return r.params.Load()
}

// SetBypassed toggles the processor. Bypassed processing costs one atomic
// load.
func (r *Algorithmic) SetBypassed(bypassed bool) {
	r.bypassed.Store(bypassed)
}

// Bypassed reports whether the processor is bypassed.
func (r *Algorithmic) Bypassed() bool {
	return r.bypassed.Load()
}

// Latency returns 0: the delay network starts sounding immediately and the
// pre-delay is part of the effect, not a processing delay.
func (r *Algorithmic) Latency() int {
	return 0
}

// Reset clears all model, filter, and follower state. Parameters persist.
func (r *Algorithmic) Reset() {
	if !r.prepared {
		return
	}
	r.hall.reset()
	r.room.reset()
	r.space.reset()
	for ch := range r.pre {
		r.pre[ch].Reset()
		r.wetHP[ch].Reset()
		r.wetLP[ch].Reset()
	}
	r.duck.Reset()
	r.noise[0].state = noiseSeedLeft
	r.noise[1].state = noiseSeedRight
}

// roomShape is the per-model core behind Algorithmic. All three shapes are
// kept warm so switching never allocates.
type roomShape interface {
	configure(AlgorithmicParams)
	processSample(inL, inR float64) (outL, outR float64)
	reset()
}

// activeModel returns the shape selected by the last applied snapshot.
func (r *Algorithmic) activeModel() roomShape {
	switch r.model {
	case ModelRoom:
		return r.room
	case ModelSpace:
		return r.space
	default:
		return r.hall
	}
}

// applySnapshot recomputes the state derived from a parameter snapshot:
// filter coefficients, pre-delay offset, duck times, and the active model's
// taps and gains. A model change resets the incoming model so no stale tail
// from an earlier visit leaks through.
func (r *Algorithmic) applySnapshot(p *AlgorithmicParams) {
	if p == nil {
		return
	}
	if p.Model != r.model {
		r.model = p.Model
		r.activeModel().reset()
	}
	r.activeModel().configure(*p)

	hp := design.Highpass(p.LowCutHz, wetFilterQ, r.sampleRate)
	lp := design.Lowpass(p.HighCutHz, wetFilterQ, r.sampleRate)
	for ch := range r.wetHP {
		r.wetHP[ch].Coefficients = hp
		r.wetLP[ch].Coefficients = lp
	}

	r.preSamples = p.PreDelayMs * 0.001 * r.sampleRate

	// Sanitized values always sit inside the follower's legal range.
	_ = r.duck.SetAttack(p.DuckAttackMs)
	_ = r.duck.SetRelease(p.DuckReleaseMs)

	r.lastSnap = p
}

// ProcessBlock reverberates left and right in place. Does nothing until
// Prepare succeeds.
func (r *Algorithmic) ProcessBlock(left, right []float64) {
	if !r.prepared || r.bypassed.Load() {
		return
	}

	snap := r.params.Ref()
	if snap != r.lastSnap {
		r.applySnapshot(snap)
	}
	p := snap

	n := len(left)
	if len(right) < n {
		n = len(right)
	}

	model := r.activeModel()
	for i := range n {
		env := r.duck.Process(0.5 * (left[i] + right[i]))
		duckGain := 1.0
		if p.DuckDepth > 0 {
			duckGain = 1 - p.DuckDepth*math.Min(1, env*duckSensitivity)
		}

		inL := flushToNoise(left[i], &r.noise[0])
		inR := flushToNoise(right[i], &r.noise[1])
		dryL, dryR := inL, inR

		wetL := r.wetHP[0].ProcessSample(inL)
		wetR := r.wetHP[1].ProcessSample(inR)

		// The lines stay fed even at zero pre-delay so raising it
		// mid-stream replays real history instead of a gap.
		r.pre[0].Write(wetL)
		r.pre[1].Write(wetR)
		if r.preSamples >= 1 {
			wetL = r.pre[0].ReadFractional(r.preSamples + 1)
			wetR = r.pre[1].ReadFractional(r.preSamples + 1)
		}

		wetL, wetR = model.processSample(wetL, wetR)

		wetL = r.wetLP[0].ProcessSample(wetL)
		wetR = r.wetLP[1].ProcessSample(wetR)

		gain := p.Wet * duckGain
		outL := dryL*p.Dry + wetL*gain
		outR := dryR*p.Dry + wetR*gain

		left[i] = ditherTail(outL, &r.noise[0])
		right[i] = ditherTail(outR, &r.noise[1])
	}
}
