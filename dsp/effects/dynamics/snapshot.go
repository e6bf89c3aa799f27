package dynamics

import (
	"encoding/json"
	"math"
)

// This file carries the whole-struct snapshot surface of the dynamics
// processors. Each processor keeps its kernel-level setters, which validate
// and return errors for direct API use; the snapshot surface instead clamps
// every field into range, publishes the complete struct through an atomic
// cell, and lets the audio thread apply it at the start of the next
// processed sample or block. SetParams and the State round-trip are safe
// from any goroutine; the per-field setters are not.

// sanitizeRange clamps v into [lo, hi], replacing non-finite values with
// fallback.
func sanitizeRange(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CompressorParams is the full compressor configuration, exchanged as one
// snapshot.
type CompressorParams struct {
	ThresholdDb        float64
	Ratio              float64
	KneeDb             float64
	AttackMs           float64
	ReleaseMs          float64
	Character          Character
	Mix                float64
	AutoMakeup         bool
	MakeupDb           float64 // applied only when AutoMakeup is false
	RMSWindowMs        float64
	SidechainLowCutHz  float64 // 0 disables
	SidechainHighCutHz float64 // 0 disables
}

// DefaultCompressorParams returns the live-vocal defaults used by
// NewCompressor.
func DefaultCompressorParams() CompressorParams {
	return CompressorParams{
		ThresholdDb: defaultCompressorThresholdDB,
		Ratio:       defaultCompressorRatio,
		KneeDb:      defaultCompressorKneeDB,
		AttackMs:    defaultCompressorAttackMs,
		ReleaseMs:   defaultCompressorReleaseMs,
		Character:   CharacterClean,
		Mix:         defaultCompressorMix,
		AutoMakeup:  true,
		RMSWindowMs: defaultCompressorRMSWindowMs,
	}
}

func (p CompressorParams) sanitized(sampleRate float64) CompressorParams {
	p.ThresholdDb = sanitizeRange(p.ThresholdDb, -120, 24, defaultCompressorThresholdDB)
	p.Ratio = sanitizeRange(p.Ratio, minCompressorRatio, maxCompressorRatio, defaultCompressorRatio)
	p.KneeDb = sanitizeRange(p.KneeDb, minCompressorKneeDB, maxCompressorKneeDB, defaultCompressorKneeDB)
	p.AttackMs = sanitizeRange(p.AttackMs, minCompressorAttackMs, maxCompressorAttackMs, defaultCompressorAttackMs)
	p.ReleaseMs = sanitizeRange(p.ReleaseMs, minCompressorReleaseMs, maxCompressorReleaseMs, defaultCompressorReleaseMs)
	if p.Character < CharacterClean || p.Character > CharacterPeak {
		p.Character = CharacterClean
	}
	p.Mix = sanitizeRange(p.Mix, 0, 1, defaultCompressorMix)
	p.MakeupDb = sanitizeRange(p.MakeupDb, -60, 60, defaultCompressorMakeupDB)
	p.RMSWindowMs = sanitizeRange(p.RMSWindowMs, minDynamicsRMSTimeMs, maxDynamicsRMSTimeMs, defaultCompressorRMSWindowMs)
	p.SidechainLowCutHz = sanitizeCutoff(p.SidechainLowCutHz, sampleRate)
	p.SidechainHighCutHz = sanitizeCutoff(p.SidechainHighCutHz, sampleRate)
	return p
}

// sanitizeCutoff keeps a detector prefilter cutoff inside (0, nyquist) or at
// the exact zero that disables it.
func sanitizeCutoff(hz, sampleRate float64) float64 {
	if math.IsNaN(hz) || math.IsInf(hz, 0) || hz <= 0 {
		return 0
	}
	nyquist := sampleRate / 2
	if hz < minSidechainCutoffHz {
		return minSidechainCutoffHz
	}
	if hz >= nyquist {
		return nyquist * 0.99
	}
	return hz
}

// Params returns the current snapshot.
func (c *Compressor) Params() CompressorParams {
	if p := c.pendingParams.Ref(); p != nil {
		return *p
	}
	return CompressorParams{
		ThresholdDb:        c.thresholdDB,
		Ratio:              c.ratio,
		KneeDb:             c.kneeDB,
		AttackMs:           c.attackMs,
		ReleaseMs:          c.releaseMs,
		Character:          c.character,
		Mix:                c.mix,
		AutoMakeup:         c.core.AutoMakeup(),
		MakeupDb:           c.core.manualMakeupGainDB(),
		RMSWindowMs:        c.core.RMSWindowMs(),
		SidechainLowCutHz:  c.core.SidechainLowCutHz(),
		SidechainHighCutHz: c.core.SidechainHighCutHz(),
	}
}

// SetParams publishes a sanitized snapshot. The audio thread applies it
// before the next processed sample. Safe from any goroutine.
func (c *Compressor) SetParams(p CompressorParams) {
	c.pendingParams.Store(p.sanitized(c.sampleRate))
}

// applySnapshot pushes a sanitized snapshot into the kernel setters. Every
// field is already in range, so the pushes cannot fail.
func (c *Compressor) applySnapshot(p *CompressorParams) {
	_ = c.SetCharacter(p.Character)
	_ = c.SetThreshold(p.ThresholdDb)
	_ = c.SetRatio(p.Ratio)
	_ = c.SetKnee(p.KneeDb)
	_ = c.SetAttack(p.AttackMs)
	_ = c.SetRelease(p.ReleaseMs)
	_ = c.SetMix(p.Mix)
	_ = c.SetRMSWindow(p.RMSWindowMs)
	_ = c.SetSidechainLowCut(p.SidechainLowCutHz)
	_ = c.SetSidechainHighCut(p.SidechainHighCutHz)
	if p.AutoMakeup {
		_ = c.SetAutoMakeup(true)
	} else {
		_ = c.SetMakeupGain(p.MakeupDb)
	}
	c.lastApplied = p
}

// State returns the full Params snapshot as opaque bytes.
func (c *Compressor) State() ([]byte, error) {
	return json.Marshal(c.Params())
}

// SetState restores a snapshot produced by State.
func (c *Compressor) SetState(data []byte) error {
	var p CompressorParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	c.SetParams(p)
	return nil
}

// GateParams is the full gate configuration, exchanged as one snapshot.
type GateParams struct {
	ThresholdDb float64
	Ratio       float64
	KneeDb      float64
	AttackMs    float64
	HoldMs      float64
	ReleaseMs   float64
	RangeDb     float64
}

// DefaultGateParams returns the stage-bleed defaults used by NewGate.
func DefaultGateParams() GateParams {
	return GateParams{
		ThresholdDb: defaultGateThresholdDB,
		Ratio:       defaultGateRatio,
		KneeDb:      defaultGateKneeDB,
		AttackMs:    defaultGateAttackMs,
		HoldMs:      defaultGateHoldMs,
		ReleaseMs:   defaultGateReleaseMs,
		RangeDb:     defaultGateRangeDB,
	}
}

func (p GateParams) sanitized() GateParams {
	p.ThresholdDb = sanitizeRange(p.ThresholdDb, -120, 24, defaultGateThresholdDB)
	p.Ratio = sanitizeRange(p.Ratio, minGateRatio, maxGateRatio, defaultGateRatio)
	p.KneeDb = sanitizeRange(p.KneeDb, minGateKneeDB, maxGateKneeDB, defaultGateKneeDB)
	p.AttackMs = sanitizeRange(p.AttackMs, minGateAttackMs, maxGateAttackMs, defaultGateAttackMs)
	p.HoldMs = sanitizeRange(p.HoldMs, minGateHoldMs, maxGateHoldMs, defaultGateHoldMs)
	p.ReleaseMs = sanitizeRange(p.ReleaseMs, minGateReleaseMs, maxGateReleaseMs, defaultGateReleaseMs)
	p.RangeDb = sanitizeRange(p.RangeDb, minGateRangeDB, maxGateRangeDB, defaultGateRangeDB)
	return p
}

// Params returns the current snapshot.
func (g *Gate) Params() GateParams {
	if p := g.pendingParams.Ref(); p != nil {
		return *p
	}
	return GateParams{
		ThresholdDb: g.thresholdDB,
		Ratio:       g.ratio,
		KneeDb:      g.kneeDB,
		AttackMs:    g.attackMs,
		HoldMs:      g.holdMs,
		ReleaseMs:   g.releaseMs,
		RangeDb:     g.rangeDB,
	}
}

// SetParams publishes a sanitized snapshot. The audio thread applies it
// before the next processed sample. Safe from any goroutine.
func (g *Gate) SetParams(p GateParams) {
	g.pendingParams.Store(p.sanitized())
}

func (g *Gate) applySnapshot(p *GateParams) {
	_ = g.SetThreshold(p.ThresholdDb)
	_ = g.SetRatio(p.Ratio)
	_ = g.SetKnee(p.KneeDb)
	_ = g.SetAttack(p.AttackMs)
	_ = g.SetHold(p.HoldMs)
	_ = g.SetRelease(p.ReleaseMs)
	_ = g.SetRange(p.RangeDb)
	g.lastApplied = p
}

// State returns the full Params snapshot as opaque bytes.
func (g *Gate) State() ([]byte, error) {
	return json.Marshal(g.Params())
}

// SetState restores a snapshot produced by State.
func (g *Gate) SetState(data []byte) error {
	var p GateParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	g.SetParams(p)
	return nil
}

// DeEsserParams is the full de-esser configuration, exchanged as one
// snapshot.
type DeEsserParams struct {
	FrequencyHz float64
	Q           float64
	ThresholdDb float64
	Ratio       float64
	KneeDb      float64
	AttackMs    float64
	ReleaseMs   float64
	RangeDb     float64
	Mode        DeEsserMode
	Detector    DeEsserDetector
	Listen      bool
	FilterOrder int
}

// DefaultDeEsserParams returns the vocal defaults used by NewDeEsser.
func DefaultDeEsserParams() DeEsserParams {
	return DeEsserParams{
		FrequencyHz: defaultDeEsserFreqHz,
		Q:           defaultDeEsserQ,
		ThresholdDb: defaultDeEsserThreshDB,
		Ratio:       defaultDeEsserRatio,
		KneeDb:      defaultDeEsserKneeDB,
		AttackMs:    defaultDeEsserAttackMs,
		ReleaseMs:   defaultDeEsserReleaseMs,
		RangeDb:     defaultDeEsserRangeDB,
		Mode:        defaultDeEsserMode,
		Detector:    defaultDeEsserDetector,
		Listen:      defaultDeEsserListen,
		FilterOrder: defaultDeEsserFilterOrder,
	}
}

func (p DeEsserParams) sanitized() DeEsserParams {
	p.FrequencyHz = sanitizeRange(p.FrequencyHz, minDeEsserFreqHz, maxDeEsserFreqHz, defaultDeEsserFreqHz)
	p.Q = sanitizeRange(p.Q, minDeEsserQ, maxDeEsserQ, defaultDeEsserQ)
	p.ThresholdDb = sanitizeRange(p.ThresholdDb, -120, 24, defaultDeEsserThreshDB)
	p.Ratio = sanitizeRange(p.Ratio, minDeEsserRatio, maxDeEsserRatio, defaultDeEsserRatio)
	p.KneeDb = sanitizeRange(p.KneeDb, minDeEsserKneeDB, maxDeEsserKneeDB, defaultDeEsserKneeDB)
	p.AttackMs = sanitizeRange(p.AttackMs, minDeEsserAttackMs, maxDeEsserAttackMs, defaultDeEsserAttackMs)
	p.ReleaseMs = sanitizeRange(p.ReleaseMs, minDeEsserReleaseMs, maxDeEsserReleaseMs, defaultDeEsserReleaseMs)
	p.RangeDb = sanitizeRange(p.RangeDb, minDeEsserRangeDB, maxDeEsserRangeDB, defaultDeEsserRangeDB)
	if p.Mode != DeEsserSplitBand && p.Mode != DeEsserWideband {
		p.Mode = defaultDeEsserMode
	}
	if p.Detector != DeEsserDetectBandpass && p.Detector != DeEsserDetectHighpass {
		p.Detector = defaultDeEsserDetector
	}
	if p.FilterOrder < minDeEsserFilterOrder || p.FilterOrder > maxDeEsserFilterOrder {
		p.FilterOrder = defaultDeEsserFilterOrder
	}
	return p
}

// Params returns the current snapshot.
func (d *DeEsser) Params() DeEsserParams {
	if p := d.pendingParams.Ref(); p != nil {
		return *p
	}
	return DeEsserParams{
		FrequencyHz: d.freqHz,
		Q:           d.q,
		ThresholdDb: d.thresholdDB,
		Ratio:       d.ratio,
		KneeDb:      d.kneeDB,
		AttackMs:    d.attackMs,
		ReleaseMs:   d.releaseMs,
		RangeDb:     d.rangeDB,
		Mode:        d.mode,
		Detector:    d.detector,
		Listen:      d.listen,
		FilterOrder: d.filterOrder,
	}
}

// SetParams publishes a sanitized snapshot. The audio thread applies it
// before the next processed sample. Safe from any goroutine.
func (d *DeEsser) SetParams(p DeEsserParams) {
	d.pendingParams.Store(p.sanitized())
}

func (d *DeEsser) applySnapshot(p *DeEsserParams) {
	_ = d.SetFrequency(p.FrequencyHz)
	_ = d.SetQ(p.Q)
	_ = d.SetThreshold(p.ThresholdDb)
	_ = d.SetRatio(p.Ratio)
	_ = d.SetKnee(p.KneeDb)
	_ = d.SetAttack(p.AttackMs)
	_ = d.SetRelease(p.ReleaseMs)
	_ = d.SetRange(p.RangeDb)
	_ = d.SetMode(p.Mode)
	_ = d.SetDetector(p.Detector)
	d.SetListen(p.Listen)
	_ = d.SetFilterOrder(p.FilterOrder)
	d.lastApplied = p
}

// State returns the full Params snapshot as opaque bytes.
func (d *DeEsser) State() ([]byte, error) {
	return json.Marshal(d.Params())
}

// SetState restores a snapshot produced by State.
func (d *DeEsser) SetState(data []byte) error {
	var p DeEsserParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	d.SetParams(p)
	return nil
}

// DynamicEQBandParams configures one duckable band.
type DynamicEQBandParams struct {
	Enabled     bool
	FrequencyHz float64
	Q           float64
}

// DynamicEQParams is the full dynamic EQ configuration, exchanged as one
// snapshot.
type DynamicEQParams struct {
	ThresholdDb float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	Shape       float64
	Bands       [dynamicEQBands]DynamicEQBandParams
}

// DefaultDynamicEQParams returns the backing-duck defaults used by
// NewDynamicEQ.
func DefaultDynamicEQParams() DynamicEQParams {
	return DynamicEQParams{
		ThresholdDb: defaultDynamicEQThresholdDB,
		Ratio:       defaultDynamicEQRatio,
		AttackMs:    defaultDynamicEQAttackMs,
		ReleaseMs:   defaultDynamicEQReleaseMs,
		Shape:       defaultDynamicEQShape,
		Bands: [dynamicEQBands]DynamicEQBandParams{
			{Enabled: true, FrequencyHz: defaultDynamicEQFreqHz, Q: defaultDynamicEQQ},
			{Enabled: false, FrequencyHz: defaultDynamicEQFreq2Hz, Q: defaultDynamicEQQ},
		},
	}
}

func (p DynamicEQParams) sanitized() DynamicEQParams {
	p.ThresholdDb = sanitizeRange(p.ThresholdDb, -120, 24, defaultDynamicEQThresholdDB)
	p.Ratio = sanitizeRange(p.Ratio, minDynamicEQRatio, maxDynamicEQRatio, defaultDynamicEQRatio)
	p.AttackMs = sanitizeRange(p.AttackMs, minDynamicEQAttackMs, maxDynamicEQAttackMs, defaultDynamicEQAttackMs)
	p.ReleaseMs = sanitizeRange(p.ReleaseMs, minDynamicEQReleaseMs, maxDynamicEQReleaseMs, defaultDynamicEQReleaseMs)
	p.Shape = sanitizeRange(p.Shape, 0, 1, defaultDynamicEQShape)
	for b := range p.Bands {
		p.Bands[b].FrequencyHz = sanitizeRange(p.Bands[b].FrequencyHz, minDynamicEQFreqHz, maxDynamicEQFreqHz, defaultDynamicEQFreqHz)
		p.Bands[b].Q = sanitizeRange(p.Bands[b].Q, minDynamicEQQ, maxDynamicEQQ, defaultDynamicEQQ)
	}
	return p
}

// Params returns the current snapshot.
func (eq *DynamicEQ) Params() DynamicEQParams {
	if p := eq.pendingParams.Ref(); p != nil {
		return *p
	}
	out := DynamicEQParams{
		ThresholdDb: eq.thresholdDB,
		Ratio:       eq.ratio,
		AttackMs:    eq.attackMs,
		ReleaseMs:   eq.releaseMs,
		Shape:       eq.shape,
	}
	for b := range eq.bands {
		out.Bands[b] = DynamicEQBandParams{
			Enabled:     eq.bands[b].enabled,
			FrequencyHz: eq.bands[b].freqHz,
			Q:           eq.bands[b].q,
		}
	}
	return out
}

// SetParams publishes a sanitized snapshot. The audio thread applies it at
// the start of the next block. Safe from any goroutine.
func (eq *DynamicEQ) SetParams(p DynamicEQParams) {
	eq.pendingParams.Store(p.sanitized())
}

func (eq *DynamicEQ) applySnapshot(p *DynamicEQParams) {
	_ = eq.SetThreshold(p.ThresholdDb)
	_ = eq.SetRatio(p.Ratio)
	_ = eq.SetAttack(p.AttackMs)
	_ = eq.SetRelease(p.ReleaseMs)
	_ = eq.SetShape(p.Shape)
	for b := range p.Bands {
		_ = eq.SetBandFrequency(b, p.Bands[b].FrequencyHz)
		_ = eq.SetBandQ(b, p.Bands[b].Q)
		_ = eq.SetBandEnabled(b, p.Bands[b].Enabled)
	}
	eq.lastApplied = p
}

// State returns the full Params snapshot as opaque bytes.
func (eq *DynamicEQ) State() ([]byte, error) {
	return json.Marshal(eq.Params())
}

// SetState restores a snapshot produced by State.
func (eq *DynamicEQ) SetState(data []byte) error {
	var p DynamicEQParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	eq.SetParams(p)
	return nil
}

// TransientSplitterParams is the full splitter configuration, exchanged as
// one snapshot.
type TransientSplitterParams struct {
	Sensitivity     float64
	HoldMs          float64
	DecayMs         float64
	SmoothingMs     float64
	GateMode        bool
	Invert          bool
	Balance         float64
	TransientGainDb float64
	SustainGainDb   float64
}

// DefaultTransientSplitterParams returns the neutral defaults used by
// NewTransientSplitter.
func DefaultTransientSplitterParams() TransientSplitterParams {
	return TransientSplitterParams{
		Sensitivity: defaultTransientSensitivity,
		HoldMs:      defaultTransientHoldMs,
		DecayMs:     defaultTransientDecayMs,
		SmoothingMs: defaultTransientSmoothingMs,
	}
}

func (p TransientSplitterParams) sanitized() TransientSplitterParams {
	p.Sensitivity = sanitizeRange(p.Sensitivity, 0, 1, defaultTransientSensitivity)
	p.HoldMs = sanitizeRange(p.HoldMs, minTransientHoldMs, maxTransientHoldMs, defaultTransientHoldMs)
	p.DecayMs = sanitizeRange(p.DecayMs, minTransientDecayMs, maxTransientDecayMs, defaultTransientDecayMs)
	p.SmoothingMs = sanitizeRange(p.SmoothingMs, minTransientSmoothingMs, maxTransientSmoothingMs, defaultTransientSmoothingMs)
	p.Balance = sanitizeRange(p.Balance, -1, 1, 0)
	p.TransientGainDb = sanitizeRange(p.TransientGainDb, minTransientGainDB, maxTransientGainDB, 0)
	p.SustainGainDb = sanitizeRange(p.SustainGainDb, minTransientGainDB, maxTransientGainDB, 0)
	return p
}

// Params returns the current snapshot.
func (s *TransientSplitter) Params() TransientSplitterParams {
	if p := s.pendingParams.Ref(); p != nil {
		return *p
	}
	return TransientSplitterParams{
		Sensitivity:     s.sensitivity,
		HoldMs:          s.holdMs,
		DecayMs:         s.decayMs,
		SmoothingMs:     s.smoothingMs,
		GateMode:        s.gateMode,
		Invert:          s.invert,
		Balance:         s.balance,
		TransientGainDb: s.transientGainDB,
		SustainGainDb:   s.sustainGainDB,
	}
}

// SetParams publishes a sanitized snapshot. The audio thread applies it
// before the next processed sample. Safe from any goroutine.
func (s *TransientSplitter) SetParams(p TransientSplitterParams) {
	s.pendingParams.Store(p.sanitized())
}

func (s *TransientSplitter) applySnapshot(p *TransientSplitterParams) {
	_ = s.SetSensitivity(p.Sensitivity)
	_ = s.SetHold(p.HoldMs)
	_ = s.SetDecay(p.DecayMs)
	_ = s.SetSmoothing(p.SmoothingMs)
	s.SetGateMode(p.GateMode)
	s.SetInvert(p.Invert)
	_ = s.SetBalance(p.Balance)
	_ = s.SetTransientGain(p.TransientGainDb)
	_ = s.SetSustainGain(p.SustainGainDb)
	s.lastApplied = p
}

// State returns the full Params snapshot as opaque bytes.
func (s *TransientSplitter) State() ([]byte, error) {
	return json.Marshal(s.Params())
}

// SetState restores a snapshot produced by State.
func (s *TransientSplitter) SetState(data []byte) error {
	var p TransientSplitterParams
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	s.SetParams(p)
	return nil
}
