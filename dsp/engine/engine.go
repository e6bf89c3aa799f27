package engine

import (
	"fmt"
	"math"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/core"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/effects/dynamics"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/effects/harmonizer"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/effects/pitch"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/effects/reverb"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	// MaxChannels is the fixed microphone input capacity.
	MaxChannels = 4

	minChannelGainDb = -60.0
	maxChannelGainDb = 24.0
	minMasterGainDb  = -60.0
	maxMasterGainDb  = 12.0

	defaultEngineSampleRate = 48000.0
	defaultEngineMaxBlock   = 2048
)

// ChannelParams configures one microphone input strip.
type ChannelParams struct {
	GainDb    float64 // -60 to +24, preamp trim
	Mute      bool
	FXEnabled bool // false routes the channel around the vocal chain
}

// Params is the engine mix configuration, exchanged as one snapshot. The
// per-processor parameters live on the processors themselves; this snapshot
// only carries routing and gain decisions the chain reads every block.
type Params struct {
	Channels     [MaxChannels]ChannelParams
	MasterGainDb float64
	ReverbType   reverb.Type
}

// DefaultParams returns unity gains with the vocal chain enabled on every
// channel and the algorithmic reverb selected.
func DefaultParams() Params {
	p := Params{
		MasterGainDb: 0,
		ReverbType:   reverb.TypeAlgorithmic,
	}
	for ch := range p.Channels {
		p.Channels[ch] = ChannelParams{GainDb: 0, FXEnabled: true}
	}
	return p
}

// sanitized clamps every field into its legal range and replaces non-finite
// values with safe defaults.
func (p Params) sanitized() Params {
	for ch := range p.Channels {
		c := &p.Channels[ch]
		c.GainDb = clampFinite(c.GainDb, minChannelGainDb, maxChannelGainDb, 0)
	}
	p.MasterGainDb = clampFinite(p.MasterGainDb, minMasterGainDb, maxMasterGainDb, 0)
	if !p.ReverbType.Valid() {
		p.ReverbType = reverb.TypeAlgorithmic
	}
	return p
}

// BackingSource fills a stereo block with external program material (a
// media player, a network stream). It runs on the audio thread and must not
// block; the buffers arrive zeroed.
type BackingSource func(left, right []float64)

// Meters is one reading of the engine's peak meters. Values are block peaks
// of absolute sample magnitude, written by the audio thread.
type Meters struct {
	Inputs  [MaxChannels]float64
	Vocal   float64
	MasterL float64
	MasterR float64
}

// Engine owns the fixed vocal processing graph and drives it from an audio
// callback.
//
// Per block: each live microphone channel is trimmed and either sent
// through its gate, de-esser, and compressor onto the vocal bus, or
// accumulated dry onto a bypass bus. The mono vocal bus feeds the pitch
// detector, then fans out to stereo through the harmonizer, the selected
// reverb, and the echo. A mono fold of the processed vocals plus the bypass
// bus keys the dynamic EQ that ducks the backing bus. Master is the sum of
// backing, vocals, and bypass behind the master gain; the recorder taps the
// master feed and the output buffers are populated last.
//
// All buses are allocated by Prepare. A block larger than the prepared
// maximum regrows them on the audio thread, a rare slow path accepted so
// the callback never truncates.
type Engine struct {
	params param.Cell[Params]

	numChannels int

	gates       [MaxChannels]*dynamics.Gate
	deessers    [MaxChannels]*dynamics.DeEsser
	compressors [MaxChannels]*dynamics.Compressor

	detector  *pitch.Detector
	harm      *harmonizer.Harmonizer
	reverbAlg *reverb.Algorithmic
	reverbCnv *reverb.Convolution
	echo      *Echo
	duckEQ    *dynamics.DynamicEQ
	recorder  *Recorder

	backing param.Cell[BackingSource]

	// lastReverbType lives on the audio thread so a type switch can
	// clear the incoming reverb's tail before it sounds.
	lastReverbType reverb.Type

	scratch []float64
	vocal   []float64
	bypass  []float64
	vocalL  []float64
	vocalR  []float64
	backL   []float64
	backR   []float64
	sidechn []float64

	inputPeaks [MaxChannels]param.Float
	vocalPeak  param.Float
	masterPkL  param.Float
	masterPkR  param.Float

	sampleRate float64
	maxBlock   int
	prepared   bool
}

// New creates an engine with numChannels microphone strips (1 to
// MaxChannels). Every processor starts with its package defaults at a
// nominal 48 kHz; Prepare must run before the first callback.
func New(numChannels int) (*Engine, error) {
	if numChannels < 1 || numChannels > MaxChannels {
		return nil, fmt.Errorf("engine: channel count must be in [1, %d]: %d", MaxChannels, numChannels)
	}

	e := &Engine{numChannels: numChannels}
	e.params.Store(DefaultParams())

	for ch := 0; ch < numChannels; ch++ {
		gate, err := dynamics.NewGate(defaultEngineSampleRate)
		if err != nil {
			return nil, fmt.Errorf("engine: gate %d: %w", ch, err)
		}
		deesser, err := dynamics.NewDeEsser(defaultEngineSampleRate)
		if err != nil {
			return nil, fmt.Errorf("engine: de-esser %d: %w", ch, err)
		}
		comp, err := dynamics.NewCompressor(defaultEngineSampleRate)
		if err != nil {
			return nil, fmt.Errorf("engine: compressor %d: %w", ch, err)
		}
		e.gates[ch] = gate
		e.deessers[ch] = deesser
		e.compressors[ch] = comp
	}

	duckEQ, err := dynamics.NewDynamicEQ(defaultEngineSampleRate)
	if err != nil {
		return nil, fmt.Errorf("engine: dynamic eq: %w", err)
	}
	detector, err := pitch.NewDetector(defaultEngineSampleRate)
	if err != nil {
		return nil, fmt.Errorf("engine: pitch detector: %w", err)
	}
	recorder, err := NewRecorder(defaultEngineSampleRate)
	if err != nil {
		return nil, fmt.Errorf("engine: recorder: %w", err)
	}

	e.duckEQ = duckEQ
	e.detector = detector
	e.recorder = recorder
	e.harm = harmonizer.New()
	e.reverbAlg = reverb.NewAlgorithmic()
	e.reverbCnv = reverb.NewConvolution()
	e.echo = NewEcho()

	return e, nil
}

// NumChannels returns the configured microphone strip count.
func (e *Engine) NumChannels() int { return e.numChannels }

// SampleRate returns the prepared sample rate, or 0 before Prepare.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Prepare re-rates every processor and allocates the buses. It must be
// called before the first callback and again on every format change; it is
// not safe concurrently with ProcessBlock. An active recording is stopped.
func (e *Engine) Prepare(sampleRate float64, maxBlock int) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("engine: sample rate must be > 0 and finite: %f", sampleRate)
	}
	if maxBlock <= 0 {
		return fmt.Errorf("engine: max block size must be > 0: %d", maxBlock)
	}

	if e.recorder.IsRecording() {
		if err := e.recorder.Stop(); err != nil {
			return fmt.Errorf("engine: stop recorder: %w", err)
		}
	}
	if err := e.recorder.SetSampleRate(sampleRate); err != nil {
		return err
	}

	for ch := 0; ch < e.numChannels; ch++ {
		if err := e.gates[ch].SetSampleRate(sampleRate); err != nil {
			return fmt.Errorf("engine: gate %d: %w", ch, err)
		}
		if err := e.deessers[ch].SetSampleRate(sampleRate); err != nil {
			return fmt.Errorf("engine: de-esser %d: %w", ch, err)
		}
		if err := e.compressors[ch].SetSampleRate(sampleRate); err != nil {
			return fmt.Errorf("engine: compressor %d: %w", ch, err)
		}
	}
	if err := e.duckEQ.SetSampleRate(sampleRate); err != nil {
		return fmt.Errorf("engine: dynamic eq: %w", err)
	}

	// The detector fixes its analysis window at construction, so a rate
	// change means a fresh instance carrying over the tuning knobs.
	detector, err := pitch.NewDetector(sampleRate)
	if err != nil {
		return fmt.Errorf("engine: pitch detector: %w", err)
	}
	if e.detector != nil {
		_ = detector.SetThreshold(e.detector.Threshold())
		_ = detector.SetGateThreshold(e.detector.GateThreshold())
		_ = detector.SetReferencePitch(e.detector.ReferencePitch())
	}
	e.detector = detector

	if err := e.harm.Prepare(sampleRate, maxBlock); err != nil {
		return fmt.Errorf("engine: harmonizer: %w", err)
	}
	if err := e.reverbAlg.Prepare(sampleRate, maxBlock); err != nil {
		return fmt.Errorf("engine: algorithmic reverb: %w", err)
	}
	if err := e.reverbCnv.Prepare(sampleRate, maxBlock); err != nil {
		return fmt.Errorf("engine: convolution reverb: %w", err)
	}
	if err := e.echo.Prepare(sampleRate, maxBlock); err != nil {
		return fmt.Errorf("engine: echo: %w", err)
	}

	e.sampleRate = sampleRate
	e.growBuses(maxBlock)
	e.lastReverbType = e.params.Load().ReverbType
	e.prepared = true
	return nil
}

func (e *Engine) growBuses(maxBlock int) {
	e.scratch = make([]float64, maxBlock)
	e.vocal = make([]float64, maxBlock)
	e.bypass = make([]float64, maxBlock)
	e.vocalL = make([]float64, maxBlock)
	e.vocalR = make([]float64, maxBlock)
	e.backL = make([]float64, maxBlock)
	e.backR = make([]float64, maxBlock)
	e.sidechn = make([]float64, maxBlock)
	e.maxBlock = maxBlock
}

// SetParams publishes a sanitized mix snapshot for the audio thread.
func (e *Engine) SetParams(p Params) {
	e.params.Store(p.sanitized())
}

// Params returns the current mix snapshot.
func (e *Engine) Params() Params {
	return e.params.Load()
}

// SetBackingSource installs the callback that fills the backing bus each
// block. A nil source leaves the backing bus silent.
func (e *Engine) SetBackingSource(src BackingSource) {
	e.backing.Store(src)
}

// Gate returns channel ch's noise gate, or nil when ch is out of range.
func (e *Engine) Gate(ch int) *dynamics.Gate {
	if ch < 0 || ch >= e.numChannels {
		return nil
	}
	return e.gates[ch]
}

// DeEsser returns channel ch's de-esser, or nil when ch is out of range.
func (e *Engine) DeEsser(ch int) *dynamics.DeEsser {
	if ch < 0 || ch >= e.numChannels {
		return nil
	}
	return e.deessers[ch]
}

// Compressor returns channel ch's compressor, or nil when ch is out of
// range.
func (e *Engine) Compressor(ch int) *dynamics.Compressor {
	if ch < 0 || ch >= e.numChannels {
		return nil
	}
	return e.compressors[ch]
}

// Harmonizer returns the shared vocal-bus harmonizer.
func (e *Engine) Harmonizer() *harmonizer.Harmonizer { return e.harm }

// AlgorithmicReverb returns the FDN reverb instance.
func (e *Engine) AlgorithmicReverb() *reverb.Algorithmic { return e.reverbAlg }

// ConvolutionReverb returns the convolution reverb instance.
func (e *Engine) ConvolutionReverb() *reverb.Convolution { return e.reverbCnv }

// Echo returns the vocal-bus echo.
func (e *Engine) Echo() *Echo { return e.echo }

// DuckEQ returns the dynamic EQ that ducks the backing bus.
func (e *Engine) DuckEQ() *dynamics.DynamicEQ { return e.duckEQ }

// Recorder returns the master-bus recorder.
func (e *Engine) Recorder() *Recorder { return e.recorder }

// Detector returns the vocal-bus pitch detector. Prepare replaces the
// instance, so do not cache the pointer across format changes.
func (e *Engine) Detector() *pitch.Detector { return e.detector }

// Pitch returns the detector's latest published reading.
func (e *Engine) Pitch() pitch.PitchInfo {
	return e.detector.Current()
}

// Meters returns the latest block peaks.
func (e *Engine) Meters() Meters {
	var m Meters
	for ch := range m.Inputs {
		m.Inputs[ch] = e.inputPeaks[ch].Load()
	}
	m.Vocal = e.vocalPeak.Load()
	m.MasterL = e.masterPkL.Load()
	m.MasterR = e.masterPkR.Load()
	return m
}

// Reset clears every processor and meter without reallocating.
func (e *Engine) Reset() {
	for ch := 0; ch < e.numChannels; ch++ {
		e.gates[ch].Reset()
		e.deessers[ch].Reset()
		e.compressors[ch].Reset()
		e.inputPeaks[ch].Store(0)
	}
	e.detector.Reset()
	e.harm.Reset()
	e.reverbAlg.Reset()
	e.reverbCnv.Reset()
	e.echo.Reset()
	e.duckEQ.Reset()
	e.vocalPeak.Store(0)
	e.masterPkL.Store(0)
	e.masterPkR.Store(0)
}

// ProcessBlock runs the chain for n frames. in carries one mono buffer per
// microphone channel; out is fully populated before return, with output
// channel c reading master bus channel c%2. Until Prepare succeeds the
// outputs are zeroed.
func (e *Engine) ProcessBlock(in, out [][]float64, n int) {
	if n <= 0 {
		return
	}
	if !e.prepared {
		for c := range out {
			zeroPrefix(out[c], n)
		}
		return
	}
	if n > e.maxBlock {
		// Rare slow path: the host delivered more than it promised.
		e.growBuses(n)
	}

	p := e.params.Load()

	vocal := e.vocal[:n]
	bypass := e.bypass[:n]
	for i := range vocal {
		vocal[i] = 0
		bypass[i] = 0
	}

	e.mixChannels(&p, in, vocal, bypass, n)

	e.detector.Process(vocal)
	e.vocalPeak.Store(blockPeak(vocal))

	vocalL := e.vocalL[:n]
	vocalR := e.vocalR[:n]
	copy(vocalL, vocal)
	copy(vocalR, vocal)

	e.harm.ProcessBlock(vocal, vocalL, vocalR)

	if p.ReverbType != e.lastReverbType {
		// Entering reverb starts from silence, not a stale tail.
		switch p.ReverbType {
		case reverb.TypeConvolution:
			e.reverbCnv.Reset()
		default:
			e.reverbAlg.Reset()
		}
		e.lastReverbType = p.ReverbType
	}
	switch p.ReverbType {
	case reverb.TypeConvolution:
		e.reverbCnv.ProcessBlock(vocalL, vocalR)
	default:
		e.reverbAlg.ProcessBlock(vocalL, vocalR)
	}

	e.echo.ProcessBlock(vocalL, vocalR)

	sidechain := e.sidechn[:n]
	for i := range sidechain {
		sidechain[i] = 0.5*(vocalL[i]+vocalR[i]) + bypass[i]
	}

	backL := e.backL[:n]
	backR := e.backR[:n]
	for i := range backL {
		backL[i] = 0
		backR[i] = 0
	}
	if src := e.backing.Load(); src != nil {
		src(backL, backR)
	}
	e.duckEQ.ProcessBlock(backL, backR, sidechain)

	masterGain := core.DBToLinear(p.MasterGainDb)
	peakL, peakR := 0.0, 0.0
	for i := range backL {
		l := (backL[i] + vocalL[i] + bypass[i]) * masterGain
		r := (backR[i] + vocalR[i] + bypass[i]) * masterGain
		if math.IsNaN(l) || math.IsInf(l, 0) {
			l = 0
		}
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
		}
		backL[i] = l
		backR[i] = r
		if a := math.Abs(l); a > peakL {
			peakL = a
		}
		if a := math.Abs(r); a > peakR {
			peakR = a
		}
	}

	e.recorder.PushBlock(backL, backR)
	e.masterPkL.Store(peakL)
	e.masterPkR.Store(peakR)

	for c := range out {
		src := backL
		if c%2 == 1 {
			src = backR
		}
		dst := out[c]
		m := n
		if m > len(dst) {
			m = len(dst)
		}
		copy(dst[:m], src[:m])
	}
}

// mixChannels trims each live input, runs the vocal chain on enabled
// channels, and accumulates onto the vocal and bypass buses.
func (e *Engine) mixChannels(p *Params, in [][]float64, vocal, bypass []float64, n int) {
	scratch := e.scratch[:n]

	for ch := 0; ch < e.numChannels; ch++ {
		cp := p.Channels[ch]
		if cp.Mute || ch >= len(in) || len(in[ch]) < n {
			e.inputPeaks[ch].Store(0)
			continue
		}

		src := in[ch][:n]
		gain := core.DBToLinear(cp.GainDb)
		peak := 0.0
		for i, v := range src {
			v *= gain
			scratch[i] = v
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
		e.inputPeaks[ch].Store(peak)

		if cp.FXEnabled {
			e.gates[ch].ProcessInPlace(scratch)
			e.deessers[ch].ProcessInPlace(scratch)
			e.compressors[ch].ProcessInPlace(scratch)
			for i, v := range scratch {
				vocal[i] += v
			}
		} else {
			for i, v := range scratch {
				bypass[i] += v
			}
		}
	}
}

func blockPeak(buf []float64) float64 {
	peak := 0.0
	for _, v := range buf {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

func zeroPrefix(buf []float64, n int) {
	if n > len(buf) {
		n = len(buf)
	}
	for i := range buf[:n] {
		buf[i] = 0
	}
}
