package reverb

import (
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
)

// Room: three cascaded banks of five lines per channel. The feedback vector
// is softened each sample by a randomized interpolation against its previous
// value, which smears the feedback path just enough to kill the metallic
// ring of pure integer-delay recirculation.
var roomBaseLengths = [roomStages][]float64{
	{5003, 4349, 3323, 2141, 677},
	{4951, 4157, 2791, 1811, 643},
	{4919, 3929, 2767, 1733, 439},
}

const (
	roomStages = 3
	roomLines  = 5

	// Softening interpolation floor and span. The floor stays above zero on
	// purpose; a perfectly clean feedback path rings.
	roomSoftenFloor = 0.07
	roomSoftenSpan  = 0.4
)

type roomModel struct {
	banks [2][roomStages]*delayBank

	gains     []float64
	dampState [2][]float64
	fb        [2][]float64
	prev      [2][]float64
	inj       [2][]float64

	soften [2]fpNoise

	softenMax  float64
	damp       float64
	inputGain  float64
	outputGain float64

	sampleRate float64
}

func newRoomModel(sampleRate float64) (*roomModel, error) {
	m := &roomModel{
		gains:      make([]float64, roomLines),
		inputGain:  1 / math.Sqrt(roomLines),
		outputGain: 1 / math.Sqrt(roomLines),
		sampleRate: sampleRate,
	}
	m.soften[0].state = noiseSeedLeft
	m.soften[1].state = noiseSeedRight

	for ch := range m.banks {
		for st := range roomStages {
			bank, err := newDelayBank(roomBaseLengths[st], sampleRate, 0)
			if err != nil {
				return nil, err
			}
			m.banks[ch][st] = bank
		}
		m.dampState[ch] = make([]float64, roomLines)
		m.fb[ch] = make([]float64, roomLines)
		m.prev[ch] = make([]float64, roomLines)
		m.inj[ch] = make([]float64, roomLines)
	}
	return m, nil
}

func (m *roomModel) configure(p AlgorithmicParams) {
	scale := sizeScale(p.Size)
	srScale := m.sampleRate / bankReferenceRate
	for ch := range m.banks {
		for st := range roomStages {
			m.banks[ch][st].setTaps(roomBaseLengths[st], scale, m.sampleRate)
		}
	}
	for i := range m.gains {
		loop := (roomBaseLengths[0][i] + roomBaseLengths[1][i] + roomBaseLengths[2][i]) * scale * srScale
		m.gains[i] = feedbackGainFor(loop, p.DecaySeconds, m.sampleRate)
	}
	m.softenMax = roomSoftenFloor + p.Detune*roomSoftenSpan
	m.damp = p.Damp
}

func (m *roomModel) processSample(inL, inR float64) (float64, float64) {
	for ch := range m.banks {
		for st := range roomStages {
			m.banks[ch][st].read()
		}
	}

	var wet [2]float64
	for ch := range m.banks {
		// Soften the stored feedback before injecting it.
		interp := m.softenMax * (1 + m.soften[ch].uniform())
		for i := range roomLines {
			m.fb[ch][i] = m.fb[ch][i]*(1-interp) + m.prev[ch][i]*interp
			m.prev[ch][i] = m.fb[ch][i]
		}

		in := inL
		if ch == 1 {
			in = inR
		}
		for i, gain := range m.gains {
			damped := m.fb[ch][i]*(1-m.damp) + m.dampState[ch][i]*m.damp
			m.dampState[ch][i] = core.FlushDenormals(damped)
			m.inj[ch][i] = in*m.inputGain + damped*gain
		}

		for i := range roomLines {
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

	// Alternate lines trade sides, so each channel's tail regenerates from a
	// mix of both and the stereo image decorrelates.
	for i := range roomLines {
		l := m.banks[0][2].outs[i]
		r := m.banks[1][2].outs[i]
		if i%2 == 0 {
			l, r = r, l
		}
		m.fb[0][i] = l
		m.fb[1][i] = r
	}

	return wet[0], wet[1]
}

func (m *roomModel) reset() {
	for ch := range m.banks {
		for st := range roomStages {
			m.banks[ch][st].reset()
		}
		for i := range roomLines {
			m.dampState[ch][i] = 0
			m.fb[ch][i] = 0
			m.prev[ch][i] = 0
		}
	}
	m.soften[0].state = noiseSeedLeft
	m.soften[1].state = noiseSeedRight
}
