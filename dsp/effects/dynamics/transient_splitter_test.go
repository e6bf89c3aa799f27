package dynamics

import (
	"math"
	"testing"
)

// quietThenStep produces a low-level warmup followed by a constant loud
// section, which fires the fast/slow detector at the boundary.
func quietThenStep(quiet, loud int) []float64 {
	buf := make([]float64, quiet+loud)
	for i := 0; i < quiet; i++ {
		buf[i] = 0.01 * math.Sin(2*math.Pi*440*float64(i)/48000)
	}

	for i := quiet; i < len(buf); i++ {
		buf[i] = 0.9
	}

	return buf
}

// TestNewTransientSplitter verifies constructor validation.
func TestNewTransientSplitter(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		wantErr    bool
	}{
		{"valid 44100", 44100, false},
		{"valid 48000", 48000, false},
		{"invalid zero", 0, true},
		{"invalid negative", -1, true},
		{"invalid NaN", math.NaN(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewTransientSplitter(tt.sampleRate)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTransientSplitter() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && s == nil {
				t.Error("NewTransientSplitter() returned nil without error")
			}
		})
	}
}

// TestTransientSplitterDefaults verifies default parameter values.
func TestTransientSplitterDefaults(t *testing.T) {
	s, err := NewTransientSplitter(48000)
	if err != nil {
		t.Fatalf("NewTransientSplitter() error = %v", err)
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"Sensitivity", s.Sensitivity(), defaultTransientSensitivity},
		{"Hold", s.Hold(), defaultTransientHoldMs},
		{"Decay", s.Decay(), defaultTransientDecayMs},
		{"Smoothing", s.Smoothing(), defaultTransientSmoothingMs},
		{"Balance", s.Balance(), 0},
		{"TransientGain", s.TransientGain(), 0},
		{"SustainGain", s.SustainGain(), 0},
		{"SampleRate", s.SampleRate(), 48000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %f, want %f", tt.name, tt.got, tt.want)
			}
		})
	}

	if s.GateMode() {
		t.Error("GateMode() = true, want false by default")
	}

	if s.Invert() {
		t.Error("Invert() = true, want false by default")
	}

	// Sensitivity 0.5 maps to a detection threshold of 3.
	if s.threshold != 3.0 {
		t.Errorf("threshold = %g, want 3.0 for default sensitivity", s.threshold)
	}
}

// TestTransientSplitterSetterValidation verifies invalid values are rejected.
func TestTransientSplitterSetterValidation(t *testing.T) {
	s, err := NewTransientSplitter(48000)
	if err != nil {
		t.Fatalf("NewTransientSplitter() error = %v", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"sensitivity below min", func() error { return s.SetSensitivity(-0.1) }},
		{"sensitivity above max", func() error { return s.SetSensitivity(1.1) }},
		{"sensitivity NaN", func() error { return s.SetSensitivity(math.NaN()) }},

		{"hold negative", func() error { return s.SetHold(-1) }},
		{"hold above max", func() error { return s.SetHold(1001) }},

		{"decay below min", func() error { return s.SetDecay(0.5) }},
		{"decay above max", func() error { return s.SetDecay(1001) }},

		{"smoothing below min", func() error { return s.SetSmoothing(0.05) }},
		{"smoothing above max", func() error { return s.SetSmoothing(51) }},

		{"balance below min", func() error { return s.SetBalance(-1.1) }},
		{"balance above max", func() error { return s.SetBalance(1.1) }},

		{"transient gain below min", func() error { return s.SetTransientGain(-61) }},
		{"transient gain above max", func() error { return s.SetTransientGain(13) }},

		{"sustain gain below min", func() error { return s.SetSustainGain(-61) }},
		{"sustain gain above max", func() error { return s.SetSustainGain(13) }},

		{"sample rate zero", func() error { return s.SetSampleRate(0) }},
		{"sample rate NaN", func() error { return s.SetSampleRate(math.NaN()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

// TestTransientSplitterSettersUpdate verifies that valid setter calls update
// state.
func TestTransientSplitterSettersUpdate(t *testing.T) {
	s, err := NewTransientSplitter(48000)
	if err != nil {
		t.Fatalf("NewTransientSplitter() error = %v", err)
	}

	if err := s.SetSensitivity(0.8); err != nil {
		t.Fatalf("SetSensitivity() error = %v", err)
	}

	if s.Sensitivity() != 0.8 {
		t.Errorf("Sensitivity() = %g, want 0.8", s.Sensitivity())
	}

	if err := s.SetHold(25); err != nil {
		t.Fatalf("SetHold() error = %v", err)
	}

	if s.Hold() != 25 {
		t.Errorf("Hold() = %g, want 25", s.Hold())
	}

	if err := s.SetDecay(100); err != nil {
		t.Fatalf("SetDecay() error = %v", err)
	}

	if s.Decay() != 100 {
		t.Errorf("Decay() = %g, want 100", s.Decay())
	}

	if err := s.SetSmoothing(10); err != nil {
		t.Fatalf("SetSmoothing() error = %v", err)
	}

	if s.Smoothing() != 10 {
		t.Errorf("Smoothing() = %g, want 10", s.Smoothing())
	}

	s.SetGateMode(true)

	if !s.GateMode() {
		t.Error("GateMode() = false, want true")
	}

	s.SetInvert(true)

	if !s.Invert() {
		t.Error("Invert() = false, want true")
	}

	if err := s.SetBalance(-0.5); err != nil {
		t.Fatalf("SetBalance() error = %v", err)
	}

	if s.Balance() != -0.5 {
		t.Errorf("Balance() = %g, want -0.5", s.Balance())
	}

	if err := s.SetTransientGain(6); err != nil {
		t.Fatalf("SetTransientGain() error = %v", err)
	}

	if s.TransientGain() != 6 {
		t.Errorf("TransientGain() = %g, want 6", s.TransientGain())
	}

	if err := s.SetSustainGain(-12); err != nil {
		t.Fatalf("SetSustainGain() error = %v", err)
	}

	if s.SustainGain() != -12 {
		t.Errorf("SustainGain() = %g, want -12", s.SustainGain())
	}

	if err := s.SetSampleRate(96000); err != nil {
		t.Fatalf("SetSampleRate() error = %v", err)
	}

	if s.SampleRate() != 96000 {
		t.Errorf("SampleRate() = %g, want 96000", s.SampleRate())
	}
}

// TestTransientSplitterSumReconstruction verifies that at neutral settings
// the two paths sum back to the input.
func TestTransientSplitterSumReconstruction(t *testing.T) {
	s, _ := NewTransientSplitter(48000)

	input := quietThenStep(2000, 2000)

	const tolerance = 1e-12

	for i, in := range input {
		tr, su := s.ProcessSample(in)
		if diff := math.Abs(tr + su - in); diff > tolerance {
			t.Fatalf("sample %d: transient %g + sustain %g != input %g (diff %g)",
				i, tr, su, in, diff)
		}
	}
}

// TestTransientSplitterDetectsAttack verifies the transient path dominates
// at an onset and the sustain path dominates in steady state.
func TestTransientSplitterDetectsAttack(t *testing.T) {
	s, _ := NewTransientSplitter(48000)

	warm := quietThenStep(2000, 0)
	for _, in := range warm {
		s.ProcessSample(in)
	}

	// Onset window.
	onset := make([]float64, 1000)
	for i := range onset {
		onset[i] = 0.9
	}

	transient := make([]float64, len(onset))
	sustain := make([]float64, len(onset))
	s.ProcessSplit(onset, transient, sustain)

	m := s.GetMetrics()
	if m.TransientRMS <= m.SustainRMS {
		t.Errorf("onset: transient RMS %g, want > sustain RMS %g", m.TransientRMS, m.SustainRMS)
	}

	if m.MaxActivity < 0.5 {
		t.Errorf("MaxActivity = %g after onset, want > 0.5", m.MaxActivity)
	}

	// Long steady state: the detector ratio settles and the gate closes.
	steady := make([]float64, 20000)
	for i := range steady {
		steady[i] = 0.9
	}

	s.ProcessInPlace(steady)

	tail := make([]float64, 1000)
	for i := range tail {
		tail[i] = 0.9
	}

	s.ProcessSplit(tail, transient[:1000], sustain[:1000])

	m = s.GetMetrics()
	if m.TransientRMS > 0.1*m.SustainRMS {
		t.Errorf("steady state: transient RMS %g, want well below sustain RMS %g",
			m.TransientRMS, m.SustainRMS)
	}
}

// TestTransientSplitterHoldArmsOnDetection verifies the hold counter re-arms
// the moment the detector fires.
func TestTransientSplitterHoldArmsOnDetection(t *testing.T) {
	s, _ := NewTransientSplitter(48000)

	for _, in := range quietThenStep(2000, 0) {
		s.ProcessSample(in)
	}

	s.ProcessSample(0.9)

	if s.gate != 1.0 {
		t.Errorf("gate = %g after onset sample, want 1.0", s.gate)
	}

	if s.holdRemaining != s.holdSamples {
		t.Errorf("holdRemaining = %d after onset, want %d", s.holdRemaining, s.holdSamples)
	}
}

// TestTransientSplitterGateMode verifies the hard separation mode changes
// the split once the gate decays into the proportional region.
func TestTransientSplitterGateMode(t *testing.T) {
	smooth, _ := NewTransientSplitter(48000)
	hard, _ := NewTransientSplitter(48000)
	hard.SetGateMode(true)

	input := quietThenStep(2000, 6000)

	var diff float64

	for _, in := range input {
		t1, _ := smooth.ProcessSample(in)
		t2, _ := hard.ProcessSample(in)
		diff += math.Abs(t1 - t2)
	}

	if diff < 1e-3 {
		t.Errorf("summed transient difference = %g, want gate mode to change the split", diff)
	}
}

// TestTransientSplitterInvert verifies inversion swaps the two paths at
// neutral gain settings.
func TestTransientSplitterInvert(t *testing.T) {
	normal, _ := NewTransientSplitter(48000)
	inverted, _ := NewTransientSplitter(48000)
	inverted.SetInvert(true)

	const tolerance = 1e-12

	for i, in := range quietThenStep(2000, 2000) {
		tn, sn := normal.ProcessSample(in)
		ti, si := inverted.ProcessSample(in)

		if math.Abs(ti-sn) > tolerance || math.Abs(si-tn) > tolerance {
			t.Fatalf("sample %d: inverted (%g, %g), want swapped (%g, %g)", i, ti, si, sn, tn)
		}
	}
}

// TestTransientSplitterBalance verifies the balance tilt scales exactly one
// path.
func TestTransientSplitterBalance(t *testing.T) {
	center, _ := NewTransientSplitter(48000)
	tilted, _ := NewTransientSplitter(48000)

	if err := tilted.SetBalance(-0.5); err != nil {
		t.Fatal(err)
	}

	for i, in := range quietThenStep(2000, 2000) {
		tCen, sCen := center.ProcessSample(in)
		tTilt, sTilt := tilted.ProcessSample(in)

		if tTilt != tCen {
			t.Fatalf("sample %d: transient %g changed by negative balance, want %g", i, tTilt, tCen)
		}

		if sTilt != sCen*0.5 {
			t.Fatalf("sample %d: sustain = %g, want %g (scaled by 1+balance)", i, sTilt, sCen*0.5)
		}
	}

	// Full positive tilt silences the transient path.
	full, _ := NewTransientSplitter(48000)
	if err := full.SetBalance(1); err != nil {
		t.Fatal(err)
	}

	for _, in := range quietThenStep(2000, 2000) {
		tr, _ := full.ProcessSample(in)
		if tr != 0 {
			t.Fatalf("transient = %g with balance 1, want 0", tr)
		}
	}
}

// TestTransientSplitterOutputGains verifies the per-path dB gains.
func TestTransientSplitterOutputGains(t *testing.T) {
	unity, _ := NewTransientSplitter(48000)
	cut, _ := NewTransientSplitter(48000)

	if err := cut.SetSustainGain(-20); err != nil {
		t.Fatal(err)
	}

	want := math.Pow(10, -20.0/20.0)

	for i, in := range quietThenStep(2000, 2000) {
		_, su := unity.ProcessSample(in)
		_, sc := cut.ProcessSample(in)

		if su == 0 {
			continue
		}

		if math.Abs(sc/su-want) > 1e-9 {
			t.Fatalf("sample %d: sustain gain ratio = %g, want %g", i, sc/su, want)
		}
	}
}

// TestTransientSplitterSplitMatchesInPlace verifies both block methods agree.
func TestTransientSplitterSplitMatchesInPlace(t *testing.T) {
	s1, _ := NewTransientSplitter(48000)
	s2, _ := NewTransientSplitter(48000)

	input := quietThenStep(2000, 2000)

	sum := append([]float64(nil), input...)
	s1.ProcessInPlace(sum)

	transient := make([]float64, len(input))
	sustain := make([]float64, len(input))
	s2.ProcessSplit(input, transient, sustain)

	const tolerance = 1e-12

	for i := range input {
		if diff := math.Abs(sum[i] - (transient[i] + sustain[i])); diff > tolerance {
			t.Errorf("sample %d: in-place %g vs split sum %g", i, sum[i], transient[i]+sustain[i])
			break
		}
	}
}

// TestTransientSplitterReset verifies state and metrics clear.
func TestTransientSplitterReset(t *testing.T) {
	s, _ := NewTransientSplitter(48000)

	buf := quietThenStep(2000, 2000)
	s.ProcessInPlace(buf)

	if s.fastEnv == 0 && s.slowEnv == 0 {
		t.Fatal("envelopes should be non-zero after processing")
	}

	if s.GetMetrics().MaxActivity == 0 {
		t.Fatal("MaxActivity should be non-zero after an onset")
	}

	s.Reset()

	if s.fastEnv != 0 || s.slowEnv != 0 || s.gate != 0 || s.smoothedGate != 0 {
		t.Error("detector state not cleared by Reset()")
	}

	if m := s.GetMetrics(); m.MaxActivity != 0 || m.TransientRMS != 0 || m.SustainRMS != 0 {
		t.Errorf("metrics after Reset() = %+v, want cleared", m)
	}
}
