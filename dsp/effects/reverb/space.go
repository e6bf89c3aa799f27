package reverb

import (
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/delay"
)

// Space: three cascaded banks of four lines per channel behind a short
// vibrato pre-delay. The pre-delay taps drift under a slow randomized LFO
// (left and right in quadrature), detuning the tail against the source the
// way very large rooms smear pitch.
var spaceBaseLengths = [spaceStages][]float64{
	{3407, 1823, 859, 331},
	{4801, 2909, 1153, 461},
	{7607, 4217, 2269, 1597},
}

const (
	spaceStages = 3
	spaceLines  = 4

	spaceVibratoSamples = 256

	// The vibrato rate re-randomizes on every phase wrap; drift scales it by
	// the cubed detune so the low half of the knob stays nearly still.
	spaceVibratoRateBase = 0.4294967295
	spaceVibratoRateStep = 0.0000000000618
)

type spaceModel struct {
	banks [2][spaceStages]*delayBank
	vib   [2]*delay.Line

	gains     []float64
	dampState [2][]float64
	fb        [2][]float64
	inj       [2][]float64

	noise fpNoise

	vibPhase float64
	vibRate  float64
	vibScale float64
	drift    float64

	damp       float64
	inputGain  float64
	outputGain float64

	sampleRate float64
}

func newSpaceModel(sampleRate float64) (*spaceModel, error) {
	m := &spaceModel{
		gains:      make([]float64, spaceLines),
		inputGain:  1 / math.Sqrt(spaceLines),
		outputGain: 1 / math.Sqrt(spaceLines),
		sampleRate: sampleRate,
	}
	m.noise.state = noiseSeedLeft

	srScale := sampleRate / bankReferenceRate
	vibLen := int(spaceVibratoSamples*srScale) + 6
	for ch := range m.banks {
		for st := range spaceStages {
			bank, err := newDelayBank(spaceBaseLengths[st], sampleRate, 0)
			if err != nil {
				return nil, err
			}
			m.banks[ch][st] = bank
		}
		line, err := delay.New(vibLen)
		if err != nil {
			return nil, err
		}
		m.vib[ch] = line
		m.dampState[ch] = make([]float64, spaceLines)
		m.fb[ch] = make([]float64, spaceLines)
		m.inj[ch] = make([]float64, spaceLines)
	}
	m.vibScale = float64(vibLen-6) / 2

	m.resetVibrato()
	return m, nil
}

func (m *spaceModel) configure(p AlgorithmicParams) {
	scale := sizeScale(p.Size)
	srScale := m.sampleRate / bankReferenceRate
	for ch := range m.banks {
		for st := range spaceStages {
			m.banks[ch][st].setTaps(spaceBaseLengths[st], scale, m.sampleRate)
		}
	}
	for i := range m.gains {
		loop := (spaceBaseLengths[0][i] + spaceBaseLengths[1][i] + spaceBaseLengths[2][i]) * scale * srScale
		m.gains[i] = feedbackGainFor(loop, p.DecaySeconds, m.sampleRate)
	}
	m.drift = p.Detune * p.Detune * p.Detune * 0.001
	m.damp = p.Damp
}

func (m *spaceModel) processSample(inL, inR float64) (float64, float64) {
	m.vibPhase += m.vibRate * m.drift
	if m.vibPhase > 2*math.Pi {
		m.vibPhase = 0
		m.vibRate = spaceVibratoRateBase + float64(m.noise.next())*spaceVibratoRateStep
	}

	m.vib[0].Write(inL * m.inputGain)
	m.vib[1].Write(inR * m.inputGain)
	offL := (math.Sin(m.vibPhase) + 1) * m.vibScale
	offR := (math.Sin(m.vibPhase+math.Pi/2) + 1) * m.vibScale
	pdL := m.vib[0].ReadFractionalLinear(offL + 1)
	pdR := m.vib[1].ReadFractionalLinear(offR + 1)

	for ch := range m.banks {
		for st := range spaceStages {
			m.banks[ch][st].read()
		}
	}

	// Each channel's first bank regenerates from the other channel's tail.
	var wet [2]float64
	for ch := range m.banks {
		in := pdL
		other := 1
		if ch == 1 {
			in = pdR
			other = 0
		}
		for i, gain := range m.gains {
			damped := m.fb[other][i]*(1-m.damp) + m.dampState[ch][i]*m.damp
			m.dampState[ch][i] = core.FlushDenormals(damped)
			m.inj[ch][i] = in + damped*gain
		}

		for i := range spaceLines {
			wet[ch] += m.banks[ch][2].outs[i]
		}
		wet[ch] *= m.outputGain

		householderMix(m.banks[ch][0].outs)
		householderMix(m.banks[ch][1].outs)
		householderMix(m.banks[ch][2].outs)

		m.banks[ch][0].write(m.inj[ch])
		m.banks[ch][1].write(m.banks[ch][0].outs)
		m.banks[ch][2].write(m.banks[ch][1].outs)
	}

	copy(m.fb[0], m.banks[0][2].outs)
	copy(m.fb[1], m.banks[1][2].outs)

	return wet[0], wet[1]
}

func (m *spaceModel) reset() {
	for ch := range m.banks {
		for st := range spaceStages {
			m.banks[ch][st].reset()
		}
		m.vib[ch].Reset()
		for i := range spaceLines {
			m.dampState[ch][i] = 0
			m.fb[ch][i] = 0
			m.inj[ch][i] = 0
		}
	}
	m.noise.state = noiseSeedLeft
	m.resetVibrato()
}

func (m *spaceModel) resetVibrato() {
	m.vibPhase = 3.0
	// Start absurdly fast so the first sample wraps and picks a random rate.
	m.vibRate = 429496.7295
}
