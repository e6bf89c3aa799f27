package reverb

import (
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
)

// Hall: one wide bank of eight prime-spaced lines per channel, with a slow
// phase-staggered LFO sweeping each read tap so the long tail stays dense
// instead of settling into fixed modes.
var hallBaseLengths = []float64{1537, 1753, 1999, 2251, 2473, 2689, 2851, 3067}

const (
	// Right-channel lines sit this many samples off the left primes so the
	// two banks never share a mode.
	hallStereoSpread = 23

	hallModRateHz     = 0.1
	hallModDepthMaxMs = 4.0
)

type hallModel struct {
	banks [2]*delayBank

	baseLengths [2][]float64
	gains       []float64
	dampState   [2][]float64

	mix [2][]float64
	inj [2][]float64

	lfoPhase   float64
	lfoStep    float64
	modDepth   float64
	damp       float64
	inputGain  float64
	outputGain float64

	sampleRate float64
}

func newHallModel(sampleRate float64) (*hallModel, error) {
	n := len(hallBaseLengths)
	m := &hallModel{
		gains:      make([]float64, n),
		inputGain:  1 / math.Sqrt(float64(n)),
		outputGain: 1 / math.Sqrt(float64(n)),
		sampleRate: sampleRate,
	}

	m.baseLengths[0] = hallBaseLengths
	right := make([]float64, n)
	for i, base := range hallBaseLengths {
		right[i] = base + hallStereoSpread
	}
	m.baseLengths[1] = right

	modHeadroom := hallModDepthMaxMs * 0.001
	for ch := range m.banks {
		bank, err := newDelayBank(m.baseLengths[ch], sampleRate, modHeadroom)
		if err != nil {
			return nil, err
		}
		m.banks[ch] = bank
		m.dampState[ch] = make([]float64, n)
		m.mix[ch] = make([]float64, n)
		m.inj[ch] = make([]float64, n)
	}

	m.lfoStep = 2 * math.Pi * hallModRateHz / sampleRate
	return m, nil
}

func (m *hallModel) configure(p AlgorithmicParams) {
	scale := sizeScale(p.Size)
	srScale := m.sampleRate / bankReferenceRate
	for ch := range m.banks {
		m.banks[ch].setTaps(m.baseLengths[ch], scale, m.sampleRate)
	}
	for i, base := range m.baseLengths[0] {
		m.gains[i] = feedbackGainFor(base*scale*srScale, p.DecaySeconds, m.sampleRate)
	}
	m.modDepth = p.Detune * hallModDepthMaxMs * 0.001 * m.sampleRate
	m.damp = p.Damp
}

func (m *hallModel) processSample(inL, inR float64) (float64, float64) {
	m.banks[0].readModulated(m.lfoPhase, m.modDepth)
	m.banks[1].readModulated(m.lfoPhase+math.Pi/2, m.modDepth)

	m.lfoPhase += m.lfoStep
	if m.lfoPhase >= 2*math.Pi {
		m.lfoPhase -= 2 * math.Pi
	}

	wetL, wetR := 0.0, 0.0
	for i := range m.gains {
		wetL += m.banks[0].outs[i]
		wetR += m.banks[1].outs[i]
		m.mix[0][i] = m.banks[0].outs[i]
		m.mix[1][i] = m.banks[1].outs[i]
	}
	wetL *= m.outputGain
	wetR *= m.outputGain

	householderMix(m.mix[0])
	householderMix(m.mix[1])

	// Each channel recirculates the other channel's reflection.
	for i, gain := range m.gains {
		fbL := m.mix[1][i]*(1-m.damp) + m.dampState[0][i]*m.damp
		fbR := m.mix[0][i]*(1-m.damp) + m.dampState[1][i]*m.damp
		m.dampState[0][i] = core.FlushDenormals(fbL)
		m.dampState[1][i] = core.FlushDenormals(fbR)
		m.inj[0][i] = inL*m.inputGain + fbL*gain
		m.inj[1][i] = inR*m.inputGain + fbR*gain
	}

	m.banks[0].write(m.inj[0])
	m.banks[1].write(m.inj[1])

	return wetL, wetR
}

func (m *hallModel) reset() {
	for ch := range m.banks {
		m.banks[ch].reset()
		for i := range m.dampState[ch] {
			m.dampState[ch][i] = 0
		}
	}
	m.lfoPhase = 0
}
