package pitch

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	minPitchRatio = 0.25
	maxPitchRatio = 4.0

	// Target smoothing runs once per engine hop: move 30% of the way to
	// the target, snapping once within a thousandth of a semitone.
	targetSmoothCoeff = 0.3
	targetSnapEps     = 0.001

	// Formant shifts this small mean "preserve the original formants".
	formantNeutralEps = 0.05

	shifterRingBlocks = 8
)

// Engine selects the shifting strategy.
type Engine int

const (
	// EngineSpectral is the phase-vocoder strategy with independent
	// formant control. Adds roughly a frame of latency.
	EngineSpectral Engine = iota
	// EnginePhasor is the dual-tap delay-line strategy. No added latency
	// and much cheaper, but audible grain flutter on large shifts and no
	// formant control.
	EnginePhasor
)

// String returns the engine name.
func (e Engine) String() string {
	switch e {
	case EngineSpectral:
		return "spectral"
	case EnginePhasor:
		return "phasor"
	default:
		return "unknown"
	}
}

// Shifter is a streaming mono pitch and formant shifter.
//
// It bridges hosts that deliver samples one at a time (or in blocks of any
// size) to engines that work at their own granularity: input accumulates
// until the active engine can run, every sample the engine produces lands
// in an output ring, and the host drains one output sample per input
// sample. The ring starts empty, so the first samples out are zeros; after
// that fill the latency is fixed and independent of host block size.
// Nothing allocates after Prepare.
//
// Targets may be set from any goroutine. The running values glide toward
// the targets once per engine hop, so retuning a live voice sweeps instead
// of stepping.
type Shifter struct {
	engine Engine

	targetPitch   param.Float
	targetFormant param.Float

	currentPitch   float64
	currentFormant float64

	spectral *spectralEngine
	phasor   *phasorEngine

	ring     []float64
	ringHead int
	ringLen  int

	smoothCountdown int

	sampleRate float64
	prepared   bool
}

// NewShifter creates a shifter using the given engine strategy. The shifter
// passes audio through unchanged until Prepare is called.
func NewShifter(engine Engine) *Shifter {
	return &Shifter{engine: engine}
}

// Prepare allocates both engine strategies for the given sample rate and
// maximum host block size. Must be called before processing and again on
// any sample-rate or block-size change.
func (s *Shifter) Prepare(sampleRate float64, maxBlock int) error {
	if !isFinitePositive(sampleRate) {
		return fmt.Errorf("pitch shifter sample rate must be positive and finite: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("pitch shifter max block must be > 0: %d", maxBlock)
	}

	spectral, err := newSpectralEngine(sampleRate)
	if err != nil {
		return fmt.Errorf("pitch shifter: spectral engine: %w", err)
	}
	phasor, err := newPhasorEngine()
	if err != nil {
		return fmt.Errorf("pitch shifter: phasor engine: %w", err)
	}

	ringSize := shifterRingBlocks * maxBlock
	if ringSize < shifterRingBlocks*spectralHop {
		ringSize = shifterRingBlocks * spectralHop
	}

	s.sampleRate = sampleRate
	s.spectral = spectral
	s.phasor = phasor
	s.ring = make([]float64, ringSize)
	s.ringHead = 0
	s.ringLen = 0
	s.currentPitch = s.targetPitch.Load()
	s.currentFormant = s.targetFormant.Load()
	s.smoothCountdown = spectralHop
	s.applyCurrent()
	s.prepared = true
	return nil
}

// Engine returns the active engine strategy.
func (s *Shifter) Engine() Engine { return s.engine }

// SetEngine switches the shifting strategy. Both engines are allocated at
// Prepare, so switching is allocation-free; the engines are reset to avoid
// replaying stale buffer content.
func (s *Shifter) SetEngine(engine Engine) {
	if engine == s.engine {
		return
	}
	s.engine = engine
	if s.prepared {
		s.resetTransport()
	}
}

// PitchSemitones returns the target pitch shift in semitones.
func (s *Shifter) PitchSemitones() float64 { return s.targetPitch.Load() }

// FormantSemitones returns the target formant shift in semitones.
func (s *Shifter) FormantSemitones() float64 { return s.targetFormant.Load() }

// SetPitchSemitones sets the target pitch shift. The realized ratio
// 2^(semitones/12) is clamped to [0.25, 4]. Safe from any goroutine.
func (s *Shifter) SetPitchSemitones(semitones float64) {
	if math.IsNaN(semitones) {
		return
	}
	s.targetPitch.Store(semitones)
}

// SetFormantSemitones sets the target formant shift. Magnitudes at or below
// 0.05 semitones mean "preserve original formants". Safe from any goroutine.
func (s *Shifter) SetFormantSemitones(semitones float64) {
	if math.IsNaN(semitones) {
		return
	}
	s.targetFormant.Store(semitones)
}

// Latency returns the fixed processing latency of the active engine in
// samples. The phasor engine reads and writes in the same sample; the
// spectral engine is delayed by its analysis frame.
func (s *Shifter) Latency() int {
	if s.engine == EnginePhasor {
		return 0
	}
	return spectralFrameSize
}

// Reset clears all signal state. Targets and the engine selection persist.
func (s *Shifter) Reset() {
	if !s.prepared {
		return
	}
	s.resetTransport()
	s.currentPitch = s.targetPitch.Load()
	s.currentFormant = s.targetFormant.Load()
	s.applyCurrent()
}

func (s *Shifter) resetTransport() {
	s.spectral.reset()
	s.phasor.reset()
	s.ringHead = 0
	s.ringLen = 0
	s.smoothCountdown = spectralHop
	for i := range s.ring {
		s.ring[i] = 0
	}
}

// ProcessSample shifts one sample. Before Prepare it passes input through.
// Non-finite input is treated as silence so it cannot poison engine state.
func (s *Shifter) ProcessSample(input float64) float64 {
	if !s.prepared {
		return input
	}

	input = scrubNonFinite(input)

	s.smoothCountdown--
	if s.smoothCountdown <= 0 {
		s.smoothCountdown = spectralHop
		s.smoothTargets()
	}

	if s.engine == EnginePhasor {
		return scrubNonFinite(s.phasor.processSample(input))
	}

	if s.spectral.push(input) {
		s.spectral.runFrame()
		for _, v := range s.spectral.hopOut {
			s.ringPush(v)
		}
	}

	return scrubNonFinite(s.ringPop())
}

// ProcessBlock shifts input into output. The slices must have equal length
// and may alias.
func (s *Shifter) ProcessBlock(input, output []float64) {
	n := len(input)
	if len(output) < n {
		n = len(output)
	}
	for i := 0; i < n; i++ {
		output[i] = s.ProcessSample(input[i])
	}
}

// smoothTargets glides the running pitch and formant values toward their
// targets and pushes the derived ratios into both engines.
func (s *Shifter) smoothTargets() {
	tp := s.targetPitch.Load()
	if math.Abs(s.currentPitch-tp) > targetSnapEps {
		s.currentPitch += (tp - s.currentPitch) * targetSmoothCoeff
	} else {
		s.currentPitch = tp
	}

	tf := s.targetFormant.Load()
	if math.Abs(s.currentFormant-tf) > targetSnapEps {
		s.currentFormant += (tf - s.currentFormant) * targetSmoothCoeff
	} else {
		s.currentFormant = tf
	}

	s.applyCurrent()
}

func (s *Shifter) applyCurrent() {
	ratio := clampRatio(math.Exp2(s.currentPitch / 12))
	s.spectral.pitchRatio = ratio
	s.phasor.setTargetRatio(ratio)

	if math.Abs(s.currentFormant) <= formantNeutralEps {
		s.spectral.preserveFormants = true
		s.spectral.formantRatio = 1
	} else {
		s.spectral.preserveFormants = false
		s.spectral.formantRatio = clampRatio(math.Exp2(s.currentFormant / 12))
	}
}

func (s *Shifter) ringPush(v float64) {
	if s.ringLen == len(s.ring) {
		// Full ring means the host stopped draining; drop the oldest.
		s.ringHead++
		if s.ringHead >= len(s.ring) {
			s.ringHead = 0
		}
		s.ringLen--
	}
	pos := s.ringHead + s.ringLen
	if pos >= len(s.ring) {
		pos -= len(s.ring)
	}
	s.ring[pos] = v
	s.ringLen++
}

func (s *Shifter) ringPop() float64 {
	if s.ringLen == 0 {
		return 0
	}
	v := s.ring[s.ringHead]
	s.ringHead++
	if s.ringHead >= len(s.ring) {
		s.ringHead = 0
	}
	s.ringLen--
	return v
}

func clampRatio(ratio float64) float64 {
	if ratio < minPitchRatio {
		return minPitchRatio
	}
	if ratio > maxPitchRatio {
		return maxPitchRatio
	}
	return ratio
}

func scrubNonFinite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
