package reverb

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/delay"
)

const (
	// Feedback gains stay strictly below unity so every tail decays.
	maxFeedbackGain = 0.997

	// Below this magnitude a sample is replaced with low-level noise so
	// recirculating tails never sink into denormal range.
	denormalFloor = 1.18e-23
	denormalNoise = 1.18e-17

	noiseSeedLeft  = 1557111
	noiseSeedRight = 7891233

	bankReferenceRate = 44100.0
)

// fpNoise is a 32-bit xorshift generator. It feeds the denormal noise floor,
// the feedback softening jitter, and the output dither.
type fpNoise struct {
	state uint32
}

func (n *fpNoise) next() uint32 {
	n.state ^= n.state << 13
	n.state ^= n.state >> 17
	n.state ^= n.state << 5
	return n.state
}

// uniform returns a value in [0, 1) without advancing twice.
func (n *fpNoise) uniform() float64 {
	return float64(n.next()) / float64(math.MaxUint32)
}

// flushToNoise substitutes vanishing samples with the generator's current
// noise floor. The state is not advanced here; the dither step advances it
// once per sample.
func flushToNoise(x float64, n *fpNoise) float64 {
	if math.Abs(x) < denormalFloor {
		return float64(n.state) * denormalNoise
	}
	return x
}

// ditherTail adds noise scaled to the float32 mantissa of x, decorrelating
// the quantization error picked up when the mix is narrowed for the device.
func ditherTail(x float64, n *fpNoise) float64 {
	_, exp := math.Frexp(x)
	delta := float64(n.next()) - 2147483647
	return x + delta*5.5e-36*math.Ldexp(1, exp+62)
}

// householderMix reflects v through the lossless mixing matrix
// out[j] = in[j] - (2/N)*sum(in), in place. The reflection preserves signal
// energy, so loop decay is controlled entirely by the feedback gains.
func householderMix(v []float64) {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	scale := 2.0 / float64(len(v))
	for j := range v {
		v[j] -= sum * scale
	}
}

// feedbackGainFor derives the per-line feedback gain that makes a loop of
// loopSamples decay by 60 dB over decaySeconds, clamped below unity.
func feedbackGainFor(loopSamples, decaySeconds, sampleRate float64) float64 {
	if decaySeconds <= 0 || loopSamples <= 0 {
		return 0
	}
	loopSeconds := loopSamples / sampleRate
	gain := math.Pow(10, -3*loopSeconds/decaySeconds)
	if gain > maxFeedbackGain {
		gain = maxFeedbackGain
	}
	return gain
}

// sizeScale maps the 0..1 room size onto the delay-length multiplier. The
// square keeps the lower half of the knob usefully small.
func sizeScale(size float64) float64 {
	return size*size*0.9 + 0.1
}

// delayBank is one stage of parallel delay lines addressed by a shared tap
// table. Lines are allocated once for the longest reachable tap; size and
// sample-rate changes only move the read offsets.
type delayBank struct {
	lines []*delay.Line
	taps  []float64
	outs  []float64
}

// newDelayBank allocates one line per base length, sized for the maximum
// room size at the given sample rate plus modulation headroom.
func newDelayBank(baseLengths []float64, sampleRate, modHeadroom float64) (*delayBank, error) {
	b := &delayBank{
		lines: make([]*delay.Line, len(baseLengths)),
		taps:  make([]float64, len(baseLengths)),
		outs:  make([]float64, len(baseLengths)),
	}
	srScale := sampleRate / bankReferenceRate
	for i, base := range baseLengths {
		maxTap := base*srScale + modHeadroom*sampleRate
		line, err := delay.New(int(maxTap) + 8)
		if err != nil {
			return nil, fmt.Errorf("reverb bank line %d: %w", i, err)
		}
		b.lines[i] = line
		b.taps[i] = base * srScale
	}
	return b, nil
}

// setTaps moves every read offset to base*scale samples at the bank's rate.
func (b *delayBank) setTaps(baseLengths []float64, scale, sampleRate float64) {
	srScale := sampleRate / bankReferenceRate
	for i, base := range baseLengths {
		b.taps[i] = base * scale * srScale
	}
}

// read fills outs with the current taps. Call before write for an exact
// taps[i]-sample delay.
func (b *delayBank) read() {
	for i, line := range b.lines {
		b.outs[i] = line.Read(int(b.taps[i]))
	}
}

// readModulated fills outs with fractional taps offset per line by a
// phase-staggered LFO, spreading modal peaks across the bank.
func (b *delayBank) readModulated(lfoPhase, depthSamples float64) {
	n := float64(len(b.lines))
	for i, line := range b.lines {
		offset := 2 * math.Pi * float64(i) / n
		mod := 0.5 * (1 + math.Sin(lfoPhase+offset))
		b.outs[i] = line.ReadFractional(b.taps[i] + depthSamples*mod)
	}
}

// write pushes one new sample into every line.
func (b *delayBank) write(values []float64) {
	for i, line := range b.lines {
		line.Write(values[i])
	}
}

// reset clears all lines.
func (b *delayBank) reset() {
	for _, line := range b.lines {
		line.Reset()
	}
}
