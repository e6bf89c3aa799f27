package pitch

import (
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/delay"
)

const (
	phasorLineSize   = 8192
	phasorWindowSize = 4096

	// Per-sample one-pole on the ratio keeps the phasor rate continuous,
	// preventing the dual taps from jumping mid-grain.
	phasorRatioSmooth = 0.001
)

// phasorEngine is the cheap time-domain shifting strategy: a delay line with
// a sawtooth phasor driving two read taps half a cycle apart, crossfaded by
// triangular gains. No spectral processing, no added latency, no formant
// control.
type phasorEngine struct {
	line    *delay.Line
	phasor  float64
	current float64
	target  float64
}

func newPhasorEngine() (*phasorEngine, error) {
	line, err := delay.New(phasorLineSize)
	if err != nil {
		return nil, err
	}
	return &phasorEngine{line: line, current: 1, target: 1}, nil
}

func (e *phasorEngine) setTargetRatio(ratio float64) {
	e.target = ratio
}

func (e *phasorEngine) reset() {
	e.line.Reset()
	e.phasor = 0
}

func (e *phasorEngine) processSample(input float64) float64 {
	e.current = (1-phasorRatioSmooth)*e.current + phasorRatioSmooth*e.target

	e.line.Write(input)

	e.phasor += (1 - e.current) / phasorWindowSize
	if e.phasor >= 1 {
		e.phasor -= 1
	}
	if e.phasor < 0 {
		e.phasor += 1
	}

	phaseB := math.Mod(e.phasor+0.5, 1)
	delayA := e.phasor * (phasorWindowSize - 1)
	delayB := phaseB * (phasorWindowSize - 1)

	// Write advances the line, so the just-written sample sits at delay 1.
	sampleA := e.line.ReadFractionalLinear(delayA + 1)
	sampleB := e.line.ReadFractionalLinear(delayB + 1)

	gainA := 1 - 2*math.Abs(e.phasor-0.5)
	gainB := 1 - 2*math.Abs(phaseB-0.5)

	return sampleA*gainA + sampleB*gainB
}
