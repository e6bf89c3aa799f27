package harmonizer

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/delay"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/effects/pitch"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	// NumVoices is the fixed harmony voice count.
	NumVoices = 4

	maxVoiceDelayMs   = 200.0
	maxVoiceSemitones = 24.0
	minVoiceGainDb    = -60.0
	maxVoiceGainDb    = 0.0
	minWetDb          = -60.0
	maxWetDb          = 12.0
	minGlideMs        = 0.0
	maxGlideMs        = 2000.0

	defaultGlideMs = 50.0
)

// Voice configures one harmony voice.
type Voice struct {
	Enabled          bool
	Semitones        float64 // -24 to +24
	FormantSemitones float64 // -24 to +24, 0 preserves formants
	Pan              float64 // -1 (left) to +1 (right)
	GainDb           float64 // -60 to 0
	DelayMs          float64 // 0 to 200
}

// Params is the full harmonizer configuration, exchanged as one snapshot.
type Params struct {
	Enabled bool
	WetDb   float64
	GlideMs float64
	Engine  pitch.Engine
	Voices  [NumVoices]Voice
}

// DefaultParams returns the stock four-voice stack: minor third and fifth
// panned slightly apart, a major third below further left, and an octave up
// in the center. All voices start disabled.
func DefaultParams() Params {
	return Params{
		Enabled: true,
		WetDb:   0,
		GlideMs: defaultGlideMs,
		Engine:  pitch.EngineSpectral,
		Voices: [NumVoices]Voice{
			{Semitones: 3, Pan: -0.3},
			{Semitones: 7, Pan: 0.3},
			{Semitones: -4, Pan: -0.6},
			{Semitones: 12, Pan: 0},
		},
	}
}

// sanitized clamps every field into its legal range and replaces non-finite
// values with safe defaults, so a snapshot loaded on the audio thread never
// needs further validation.
func (p Params) sanitized() Params {
	p.WetDb = clampFinite(p.WetDb, minWetDb, maxWetDb, 0)
	p.GlideMs = clampFinite(p.GlideMs, minGlideMs, maxGlideMs, defaultGlideMs)
	if p.Engine != pitch.EngineSpectral && p.Engine != pitch.EnginePhasor {
		p.Engine = pitch.EngineSpectral
	}
	for v := range p.Voices {
		voice := &p.Voices[v]
		voice.Semitones = clampFinite(voice.Semitones, -maxVoiceSemitones, maxVoiceSemitones, 0)
		voice.FormantSemitones = clampFinite(voice.FormantSemitones, -maxVoiceSemitones, maxVoiceSemitones, 0)
		voice.Pan = clampFinite(voice.Pan, -1, 1, 0)
		voice.GainDb = clampFinite(voice.GainDb, minVoiceGainDb, maxVoiceGainDb, 0)
		voice.DelayMs = clampFinite(voice.DelayMs, 0, maxVoiceDelayMs, 0)
	}
	return p
}

func clampFinite(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return core.Clamp(v, lo, hi)
}

// Harmonizer layers up to four pitch-shifted copies of a mono source onto a
// stereo bus. Each voice delays the dry input through its own line, shifts
// pitch and formant through its own shifter, and pans into the shared wet
// bus with a constant-power law. The wet bus is added on top of the dry
// signal, never replacing it.
//
// Voice pitch targets glide with a common time constant so enabling or
// retuning a voice sweeps instead of stepping. Disabled voices stop
// processing entirely but keep gliding toward zero, so re-enabling ramps up
// from unison.
type Harmonizer struct {
	params   param.Cell[Params]
	bypassed param.Bool

	shifters [NumVoices]*pitch.Shifter
	delays   [NumVoices]*delay.Line

	glidePitch   [NumVoices]float64
	glideFormant [NumVoices]float64

	wetL []float64
	wetR []float64

	sampleRate float64
	prepared   bool
}

// New creates a harmonizer with DefaultParams. Prepare must be called before
// processing.
func New() *Harmonizer {
	h := &Harmonizer{}
	h.params.Store(DefaultParams())
	return h
}

// Prepare allocates the per-voice shifters, delay lines, and the wet bus for
// the given sample rate and maximum block size.
func (h *Harmonizer) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("harmonizer sample rate must be positive and finite: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("harmonizer max block must be > 0: %d", maxBlock)
	}

	engine := h.params.Load().Engine
	lineSize := int(maxVoiceDelayMs*0.001*sampleRate) + 4

	for v := range NumVoices {
		shifter := pitch.NewShifter(engine)
		if err := shifter.Prepare(sampleRate, maxBlock); err != nil {
			return fmt.Errorf("harmonizer voice %d: %w", v, err)
		}
		line, err := delay.New(lineSize)
		if err != nil {
			return fmt.Errorf("harmonizer voice %d delay: %w", v, err)
		}
		h.shifters[v] = shifter
		h.delays[v] = line
		h.glidePitch[v] = 0
		h.glideFormant[v] = 0
	}

	h.sampleRate = sampleRate
	h.wetL = make([]float64, maxBlock)
	h.wetR = make([]float64, maxBlock)
	h.prepared = true
	return nil
}

// SetParams stores a sanitized snapshot for the next block. Safe from any
// goroutine.
func (h *Harmonizer) SetParams(p Params) {
	h.params.Store(p.sanitized())
}

// Params returns the last stored snapshot.
func (h *Harmonizer) Params() Params {
	return h.params.Load()
}

// SetBypassed toggles the processor. Bypassed processing costs one atomic
// load.
func (h *Harmonizer) SetBypassed(bypassed bool) {
	h.bypassed.Store(bypassed)
}

// Bypassed reports whether the processor is bypassed.
func (h *Harmonizer) Bypassed() bool {
	return h.bypassed.Load()
}

// Latency returns the wet-path latency in samples for the configured engine.
func (h *Harmonizer) Latency() int {
	if !h.prepared {
		return 0
	}
	return h.shifters[0].Latency()
}

// Reset clears all voice state. Parameters persist.
func (h *Harmonizer) Reset() {
	if !h.prepared {
		return
	}
	for v := range NumVoices {
		h.shifters[v].Reset()
		h.delays[v].Reset()
		h.glidePitch[v] = 0
		h.glideFormant[v] = 0
	}
}

// ProcessBlock reads the dry mono input and adds the stereo harmony bus
// onto left and right. The dry signal itself is never modified; callers
// route it to the outputs separately. Does nothing until Prepare succeeds.
func (h *Harmonizer) ProcessBlock(dry, left, right []float64) {
	if !h.prepared || h.bypassed.Load() {
		return
	}

	p := h.params.Load()
	if !p.Enabled {
		return
	}

	n := len(dry)
	if len(left) < n {
		n = len(left)
	}
	if len(right) < n {
		n = len(right)
	}
	if n == 0 {
		return
	}

	if n > len(h.wetL) {
		// Rare slow path: the host delivered more than it promised.
		h.wetL = make([]float64, n)
		h.wetR = make([]float64, n)
	}
	wetL := h.wetL[:n]
	wetR := h.wetR[:n]
	for i := range wetL {
		wetL[i] = 0
		wetR[i] = 0
	}

	// Glide every voice toward its target once per block. Disabled voices
	// aim at unison so a later re-enable ramps in.
	glideCoeff := 1 - math.Exp(-1/(p.GlideMs*0.001*h.sampleRate/float64(n)))
	for v := range NumVoices {
		targetPitch, targetFormant := 0.0, 0.0
		if p.Voices[v].Enabled {
			targetPitch = p.Voices[v].Semitones
			targetFormant = p.Voices[v].FormantSemitones
		}
		h.glidePitch[v] += (targetPitch - h.glidePitch[v]) * glideCoeff
		h.glideFormant[v] += (targetFormant - h.glideFormant[v]) * glideCoeff
	}

	for v := range NumVoices {
		voice := p.Voices[v]
		if !voice.Enabled {
			continue
		}

		shifter := h.shifters[v]
		if shifter.Engine() != p.Engine {
			shifter.SetEngine(p.Engine)
		}
		shifter.SetPitchSemitones(h.glidePitch[v])
		shifter.SetFormantSemitones(h.glideFormant[v])

		gain := core.DBToLinear(voice.GainDb)
		leftGain := gain * math.Sqrt(0.5*(1-voice.Pan))
		rightGain := gain * math.Sqrt(0.5*(1+voice.Pan))

		delaySamples := int(voice.DelayMs * 0.001 * h.sampleRate)
		line := h.delays[v]

		for i := range n {
			line.Write(dry[i])
			delayed := line.Read(delaySamples + 1)
			shifted := shifter.ProcessSample(delayed)
			wetL[i] += shifted * leftGain
			wetR[i] += shifted * rightGain
		}
	}

	wetGain := core.DBToLinear(p.WetDb)
	for i := range n {
		left[i] += wetL[i] * wetGain
		right[i] += wetR[i] * wetGain
	}
}
