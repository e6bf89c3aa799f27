package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/delay"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	minEchoTimeMs     = 10.0
	maxEchoTimeMs     = 2000.0
	defaultEchoTimeMs = 350.0

	maxEchoFeedback     = 0.95
	defaultEchoFeedback = 0.35

	maxEchoWet     = 1.0
	defaultEchoWet = 0.25

	maxEchoSpreadMs = 50.0

	minEchoDampHz     = 200.0
	maxEchoDampHz     = 20000.0
	defaultEchoDampHz = 6000.0

	// Delay time glides with this constant so tap changes sweep
	// instead of clicking.
	echoGlideMs = 50.0
)

// EchoParams is the full echo configuration, exchanged as one snapshot.
type EchoParams struct {
	Enabled  bool
	TimeMs   float64 // 10 to 2000, left tap delay
	SpreadMs float64 // 0 to 50, extra delay on the right tap
	Feedback float64 // 0 to 0.95, recirculation amount
	Wet      float64 // 0 to 1, echo level added on the dry signal
	DampHz   float64 // 200 to 20000, low-pass inside the loop
}

// DefaultEchoParams returns a medium slap with gentle recirculation.
func DefaultEchoParams() EchoParams {
	return EchoParams{
		Enabled:  true,
		TimeMs:   defaultEchoTimeMs,
		SpreadMs: 15,
		Feedback: defaultEchoFeedback,
		Wet:      defaultEchoWet,
		DampHz:   defaultEchoDampHz,
	}
}

// sanitized clamps every field into its legal range and replaces non-finite
// values with safe defaults.
func (p EchoParams) sanitized() EchoParams {
	p.TimeMs = clampFinite(p.TimeMs, minEchoTimeMs, maxEchoTimeMs, defaultEchoTimeMs)
	p.SpreadMs = clampFinite(p.SpreadMs, 0, maxEchoSpreadMs, 0)
	p.Feedback = clampFinite(p.Feedback, 0, maxEchoFeedback, defaultEchoFeedback)
	p.Wet = clampFinite(p.Wet, 0, maxEchoWet, defaultEchoWet)
	p.DampHz = clampFinite(p.DampHz, minEchoDampHz, maxEchoDampHz, defaultEchoDampHz)
	return p
}

func clampFinite(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return core.Clamp(v, lo, hi)
}

// Echo is a stereo feedback delay. Each channel recirculates through its own
// line with a one-pole low-pass in the loop, and the tap is added on top of
// the dry signal. The right tap sits SpreadMs behind the left one so
// repeats drift apart instead of stacking in the center.
type Echo struct {
	params   param.Cell[EchoParams]
	bypassed param.Bool

	lines     [2]*delay.Line
	dampState [2]float64
	curDelay  [2]float64

	glideCoeff float64
	sampleRate float64
	prepared   bool
}

// NewEcho creates an echo with DefaultEchoParams. Prepare must be called
// before processing.
func NewEcho() *Echo {
	e := &Echo{}
	e.params.Store(DefaultEchoParams())
	return e
}

// Prepare sizes both delay lines for the maximum tap and resets all state.
func (e *Echo) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("echo: sample rate must be > 0 and finite: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("echo: max block size must be > 0: %d", maxBlock)
	}

	size := int(math.Ceil((maxEchoTimeMs+maxEchoSpreadMs)*0.001*sampleRate)) + 4
	for c := range e.lines {
		line, err := delay.New(size)
		if err != nil {
			return fmt.Errorf("echo: delay line: %w", err)
		}
		e.lines[c] = line
	}

	e.sampleRate = sampleRate
	e.glideCoeff = 1 - math.Exp(-1/(echoGlideMs*0.001*sampleRate))
	e.prepared = true
	e.Reset()
	return nil
}

// SetParams publishes a sanitized snapshot for the audio thread.
func (e *Echo) SetParams(p EchoParams) {
	e.params.Store(p.sanitized())
}

// Params returns the current parameter snapshot.
func (e *Echo) Params() EchoParams {
	return e.params.Load()
}

// SetBypassed toggles a hard bypass that leaves the buffers untouched.
func (e *Echo) SetBypassed(bypassed bool) {
	e.bypassed.Store(bypassed)
}

// Bypassed reports whether the echo is bypassed.
func (e *Echo) Bypassed() bool {
	return e.bypassed.Load()
}

// Reset clears the delay lines, the loop filters, and snaps the tap glides
// to their targets.
func (e *Echo) Reset() {
	if !e.prepared {
		return
	}
	p := e.params.Load()
	targets := e.tapTargets(p)
	for c := range e.lines {
		e.lines[c].Reset()
		e.dampState[c] = 0
		e.curDelay[c] = targets[c]
	}
}

// State returns the parameters as opaque bytes.
func (e *Echo) State() ([]byte, error) {
	p := e.params.Load()
	return json.Marshal(&p)
}

// SetState restores parameters captured by State.
func (e *Echo) SetState(data []byte) error {
	var p EchoParams
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("echo: decode state: %w", err)
	}
	e.SetParams(p)
	return nil
}

func (e *Echo) tapTargets(p EchoParams) [2]float64 {
	left := p.TimeMs * 0.001 * e.sampleRate
	return [2]float64{left, left + p.SpreadMs*0.001*e.sampleRate}
}

// ProcessBlock adds the echo onto left and right in place. Does nothing
// until Prepare succeeds.
func (e *Echo) ProcessBlock(left, right []float64) {
	if !e.prepared || e.bypassed.Load() {
		return
	}

	p := e.params.Load()
	if !p.Enabled {
		return
	}

	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	if n == 0 {
		return
	}

	targets := e.tapTargets(p)
	dampCoeff := 1 - math.Exp(-2*math.Pi*p.DampHz/e.sampleRate)
	bufs := [2][]float64{left[:n], right[:n]}

	for c := range bufs {
		buf := bufs[c]
		line := e.lines[c]
		cur := e.curDelay[c]
		state := e.dampState[c]

		for i := range buf {
			cur += (targets[c] - cur) * e.glideCoeff
			tap := line.ReadFractionalLinear(cur)
			state += (tap - state) * dampCoeff
			line.Write(buf[i] + state*p.Feedback)
			buf[i] += state * p.Wet
		}

		e.curDelay[c] = cur
		e.dampState[c] = state
	}
}
