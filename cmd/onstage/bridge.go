package main

import (
	"encoding/binary"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/engine"
)

// maxExpectedBlock sizes the engine buses for the largest callback a
// low-latency duplex device is expected to deliver. Larger blocks still
// work through the engine's regrow path.
const maxExpectedBlock = 4096

const bytesPerSample = 4 // FormatF32

// bridge adapts malgo's interleaved float32 duplex callback to the
// engine's per-channel float64 buffers. All conversion buffers are owned
// by the bridge and grown outside the steady state, so the callback
// allocates only when the device raises its period size.
type bridge struct {
	eng      *engine.Engine
	channels int

	in  [][]float64
	out [][]float64
}

func newBridge(eng *engine.Engine, channels int) *bridge {
	b := &bridge{
		eng:      eng,
		channels: channels,
		in:       make([][]float64, channels),
		out:      make([][]float64, 2),
	}
	b.grow(maxExpectedBlock)
	return b
}

func (b *bridge) grow(frames int) {
	for ch := range b.in {
		b.in[ch] = make([]float64, frames)
	}
	for ch := range b.out {
		b.out[ch] = make([]float64, frames)
	}
}

// process is the malgo data callback. pInput carries b.channels interleaved
// float32 capture channels, pOutput expects two interleaved float32
// playback channels.
func (b *bridge) process(pOutput, pInput []byte, framecount uint32) {
	frames := int(framecount)
	if frames == 0 {
		return
	}
	if frames > len(b.in[0]) {
		b.grow(frames)
	}

	b.deinterleave(pInput, frames)
	b.eng.ProcessBlock(b.in, b.out, frames)
	b.interleave(pOutput, frames)
}

func (b *bridge) deinterleave(raw []byte, frames int) {
	stride := b.channels * bytesPerSample
	for f := 0; f < frames; f++ {
		base := f * stride
		if base+stride > len(raw) {
			for ch := 0; ch < b.channels; ch++ {
				b.in[ch][f] = 0
			}
			continue
		}
		for ch := 0; ch < b.channels; ch++ {
			bits := binary.LittleEndian.Uint32(raw[base+ch*bytesPerSample:])
			b.in[ch][f] = float64(math.Float32frombits(bits))
		}
	}
}

func (b *bridge) interleave(raw []byte, frames int) {
	const stride = 2 * bytesPerSample
	for f := 0; f < frames; f++ {
		base := f * stride
		if base+stride > len(raw) {
			return
		}
		binary.LittleEndian.PutUint32(raw[base:], math.Float32bits(float32(b.out[0][f])))
		binary.LittleEndian.PutUint32(raw[base+bytesPerSample:], math.Float32bits(float32(b.out[1][f])))
	}
}
