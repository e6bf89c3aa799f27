package pitch

import (
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/window"
)

const (
	spectralFrameSize = 1024
	spectralHop       = 256

	spectralNormFloor = 1e-12
	identityRatioEps  = 1e-6
)

// spectralEngine is the streaming phase-vocoder strategy. It maintains a
// rolling analysis window; once per hop it separates the frame into a
// cepstral spectral envelope and a residual, shifts the residual bins by the
// pitch ratio, resamples the envelope by the formant ratio (or keeps it in
// place to preserve formants), accumulates per-bin phase, and overlap-adds
// the inverse transform with window-squared normalization. Each run yields
// exactly one hop of output in hopOut.
type spectralEngine struct {
	sampleRate       float64
	pitchRatio       float64
	formantRatio     float64
	preserveFormants bool

	plan *algofft.Plan[complex128]

	windowCoeffs   []float64
	omega          []float64
	prevPhase      []float64
	sumPhase       []float64
	cepstralCutoff int

	inBuf  []float64
	inFill int

	analysisSpectrum  []complex128
	synthesisSpectrum []complex128
	cepstrum          []complex128
	timeFrame         []complex128

	magnitudes  []float64
	instFreqs   []float64
	envelope    []float64
	residual    []float64
	shiftedMag  []float64
	shiftedFreq []float64
	targetEnv   []float64

	outAcc  []float64
	normAcc []float64
	hopOut  []float64
}

func newSpectralEngine(sampleRate float64) (*spectralEngine, error) {
	plan, err := algofft.NewPlan64(spectralFrameSize)
	if err != nil {
		return nil, err
	}

	bins := spectralFrameSize/2 + 1

	e := &spectralEngine{
		sampleRate:        sampleRate,
		pitchRatio:        1,
		formantRatio:      1,
		preserveFormants:  true,
		plan:              plan,
		windowCoeffs:      window.Generate(window.TypeHann, spectralFrameSize, window.WithPeriodic()),
		omega:             make([]float64, bins),
		prevPhase:         make([]float64, bins),
		sumPhase:          make([]float64, bins),
		inBuf:             make([]float64, spectralFrameSize),
		analysisSpectrum:  make([]complex128, spectralFrameSize),
		synthesisSpectrum: make([]complex128, spectralFrameSize),
		cepstrum:          make([]complex128, spectralFrameSize),
		timeFrame:         make([]complex128, spectralFrameSize),
		magnitudes:        make([]float64, bins),
		instFreqs:         make([]float64, bins),
		envelope:          make([]float64, bins),
		residual:          make([]float64, bins),
		shiftedMag:        make([]float64, bins),
		shiftedFreq:       make([]float64, bins),
		targetEnv:         make([]float64, bins),
		outAcc:            make([]float64, spectralFrameSize),
		normAcc:           make([]float64, spectralFrameSize),
		hopOut:            make([]float64, spectralHop),
	}

	for k := range bins {
		e.omega[k] = 2 * math.Pi * float64(k) / float64(spectralFrameSize)
	}

	// Low-quefrency lifter cutoff: roughly one bin per millisecond of
	// sample rate separates vocal-tract envelope from harmonic structure.
	e.cepstralCutoff = int(sampleRate / 1000)
	if e.cepstralCutoff < 2 {
		e.cepstralCutoff = 2
	}
	if e.cepstralCutoff > spectralFrameSize/4 {
		e.cepstralCutoff = spectralFrameSize / 4
	}

	return e, nil
}

func (e *spectralEngine) reset() {
	for i := range e.inBuf {
		e.inBuf[i] = 0
	}
	for i := range e.outAcc {
		e.outAcc[i] = 0
		e.normAcc[i] = 0
	}
	e.inFill = 0
	e.resetPhases()
}

func (e *spectralEngine) resetPhases() {
	for i := range e.prevPhase {
		e.prevPhase[i] = 0
		e.sumPhase[i] = 0
	}
}

// push appends one input sample to the rolling window. It returns true when
// a full frame is buffered and runFrame may be called.
func (e *spectralEngine) push(x float64) bool {
	e.inBuf[e.inFill] = x
	e.inFill++
	return e.inFill == spectralFrameSize
}

func (e *spectralEngine) identity() bool {
	return math.Abs(e.pitchRatio-1) <= identityRatioEps && e.preserveFormants
}

// runFrame processes the buffered frame and fills hopOut with the next hop
// of output samples. The rolling window keeps the newest frame-hop samples
// for the next call.
func (e *spectralEngine) runFrame() {
	if e.identity() {
		e.runIdentityFrame()
	} else {
		e.runShiftFrame()
	}

	// Emit the completed hop. Each frame's contribution is individually
	// exact under the w/w2 pairing, so partial coverage at startup and at
	// identity transitions still reconstructs correctly.
	for i := range spectralHop {
		v := e.outAcc[i]
		if e.normAcc[i] > spectralNormFloor {
			v /= e.normAcc[i]
		}
		e.hopOut[i] = v
	}

	copy(e.outAcc, e.outAcc[spectralHop:])
	copy(e.normAcc, e.normAcc[spectralHop:])
	for i := spectralFrameSize - spectralHop; i < spectralFrameSize; i++ {
		e.outAcc[i] = 0
		e.normAcc[i] = 0
	}

	copy(e.inBuf, e.inBuf[spectralHop:])
	e.inFill = spectralFrameSize - spectralHop
}

// runIdentityFrame skips the transforms entirely and feeds the raw frame
// through the same overlap-add path the shifted frames use.
func (e *spectralEngine) runIdentityFrame() {
	for i := range spectralFrameSize {
		w2 := e.windowCoeffs[i] * e.windowCoeffs[i]
		e.outAcc[i] += e.inBuf[i] * w2
		e.normAcc[i] += w2
	}
	e.resetPhases()
}

func (e *spectralEngine) runShiftFrame() {
	half := spectralFrameSize / 2
	hopF := float64(spectralHop)

	for i := range spectralFrameSize {
		e.analysisSpectrum[i] = complex(e.inBuf[i]*e.windowCoeffs[i], 0)
	}
	_ = e.plan.Forward(e.analysisSpectrum, e.analysisSpectrum)

	// Magnitudes and instantaneous frequencies from the phase delta.
	for k := 0; k <= half; k++ {
		re := real(e.analysisSpectrum[k])
		im := imag(e.analysisSpectrum[k])
		e.magnitudes[k] = math.Hypot(re, im)
		phase := math.Atan2(im, re)

		delta := wrapPhase(phase - e.prevPhase[k] - e.omega[k]*hopF)
		e.instFreqs[k] = e.omega[k] + delta/hopF
		e.prevPhase[k] = phase
	}

	e.computeEnvelope()

	for k := 0; k <= half; k++ {
		env := e.envelope[k]
		if env < spectralNormFloor {
			env = spectralNormFloor
		}
		e.residual[k] = e.magnitudes[k] / env
	}

	// Shift residual bins by the pitch ratio with linear interpolation;
	// instantaneous frequencies scale with the ratio.
	for k := 0; k <= half; k++ {
		srcK := float64(k) / e.pitchRatio
		if srcK >= float64(half) {
			e.shiftedMag[k] = 0
			e.shiftedFreq[k] = e.omega[k]
			continue
		}

		lo := int(srcK)
		frac := srcK - float64(lo)
		hi := lo + 1
		if hi > half {
			hi = half
		}
		e.shiftedMag[k] = e.residual[lo]*(1-frac) + e.residual[hi]*frac
		interpFreq := e.instFreqs[lo]*(1-frac) + e.instFreqs[hi]*frac
		e.shiftedFreq[k] = interpFreq * e.pitchRatio
	}

	// Resample the envelope by the formant ratio, or keep it in place to
	// preserve the original resonances while the residual moves.
	if e.preserveFormants {
		copy(e.targetEnv, e.envelope)
	} else {
		for k := 0; k <= half; k++ {
			srcK := float64(k) / e.formantRatio
			if srcK >= float64(half) {
				e.targetEnv[k] = e.envelope[half]
				continue
			}
			lo := int(srcK)
			frac := srcK - float64(lo)
			hi := lo + 1
			if hi > half {
				hi = half
			}
			e.targetEnv[k] = e.envelope[lo]*(1-frac) + e.envelope[hi]*frac
		}
	}

	// Per-bin phase accumulation and synthesis.
	for k := 0; k <= half; k++ {
		mag := e.shiftedMag[k] * e.targetEnv[k]
		e.sumPhase[k] += e.shiftedFreq[k] * hopF
		e.synthesisSpectrum[k] = complex(
			mag*math.Cos(e.sumPhase[k]),
			mag*math.Sin(e.sumPhase[k]),
		)
	}

	// Conjugate mirror for a real-valued inverse transform.
	e.synthesisSpectrum[0] = complex(real(e.synthesisSpectrum[0]), 0)
	e.synthesisSpectrum[half] = complex(real(e.synthesisSpectrum[half]), 0)
	for k := 1; k < half; k++ {
		v := e.synthesisSpectrum[k]
		e.synthesisSpectrum[spectralFrameSize-k] = complex(real(v), -imag(v))
	}

	_ = e.plan.Inverse(e.timeFrame, e.synthesisSpectrum)

	for i := range spectralFrameSize {
		w := e.windowCoeffs[i]
		e.outAcc[i] += real(e.timeFrame[i]) * w
		e.normAcc[i] += w * w
	}
}

// computeEnvelope extracts the smoothed spectral envelope by liftering the
// real cepstrum: transform the symmetric log-magnitude spectrum, zero
// everything above the low-quefrency cutoff, transform back, exponentiate.
func (e *spectralEngine) computeEnvelope() {
	half := spectralFrameSize / 2

	for k := 0; k <= half; k++ {
		e.cepstrum[k] = complex(math.Log(e.magnitudes[k]+spectralNormFloor), 0)
	}
	for k := 1; k < half; k++ {
		e.cepstrum[spectralFrameSize-k] = e.cepstrum[k]
	}

	_ = e.plan.Inverse(e.cepstrum, e.cepstrum)

	for q := e.cepstralCutoff; q <= spectralFrameSize-e.cepstralCutoff; q++ {
		e.cepstrum[q] = 0
	}

	_ = e.plan.Forward(e.cepstrum, e.cepstrum)

	for k := 0; k <= half; k++ {
		e.envelope[k] = math.Exp(real(e.cepstrum[k]))
	}
}

func wrapPhase(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x - math.Pi
}
