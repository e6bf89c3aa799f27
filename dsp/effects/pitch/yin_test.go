package pitch

import (
	"math"
	"testing"

	"github.com/ranroby76/onstage-standalone-sub000/internal/testutil"
)

func TestNewDetector(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		wantErr    bool
	}{
		{name: "valid 44100", sampleRate: 44100, wantErr: false},
		{name: "valid 48000", sampleRate: 48000, wantErr: false},
		{name: "invalid zero", sampleRate: 0, wantErr: true},
		{name: "invalid negative", sampleRate: -1, wantErr: true},
		{name: "invalid NaN", sampleRate: math.NaN(), wantErr: true},
		{name: "invalid too low", sampleRate: 4000, wantErr: true},
		{name: "invalid too high", sampleRate: 500000, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDetector(tt.sampleRate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDetector() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				return
			}

			if d == nil {
				t.Fatal("NewDetector() returned nil")
			}

			if got := d.SampleRate(); got != tt.sampleRate {
				t.Fatalf("SampleRate() = %f, want %f", got, tt.sampleRate)
			}

			if got := d.Threshold(); got != defaultDetectorThreshold {
				t.Fatalf("Threshold() = %f, want %f", got, defaultDetectorThreshold)
			}

			if got := d.GateThreshold(); got != defaultDetectorGateRMS {
				t.Fatalf("GateThreshold() = %f, want %f", got, defaultDetectorGateRMS)
			}

			if got := d.ReferencePitch(); got != defaultReferencePitch {
				t.Fatalf("ReferencePitch() = %f, want %f", got, defaultReferencePitch)
			}

			info := d.Current()
			if info.IsActive {
				t.Fatal("Current().IsActive = true before any input")
			}

			if info.MidiNote != -1 {
				t.Fatalf("Current().MidiNote = %d, want -1", info.MidiNote)
			}
		})
	}
}

func TestDetectorSettersValidate(t *testing.T) {
	d, err := NewDetector(48000)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	if err := d.SetThreshold(0); err == nil {
		t.Fatal("expected error for zero threshold")
	}

	if err := d.SetThreshold(1); err == nil {
		t.Fatal("expected error for threshold of one")
	}

	if err := d.SetThreshold(math.NaN()); err == nil {
		t.Fatal("expected error for NaN threshold")
	}

	if err := d.SetThreshold(0.2); err != nil {
		t.Fatalf("SetThreshold() error = %v", err)
	}

	if err := d.SetGateThreshold(-0.01); err == nil {
		t.Fatal("expected error for negative gate threshold")
	}

	if err := d.SetGateThreshold(math.NaN()); err == nil {
		t.Fatal("expected error for NaN gate threshold")
	}

	if err := d.SetGateThreshold(0.01); err != nil {
		t.Fatalf("SetGateThreshold() error = %v", err)
	}

	if err := d.SetReferencePitch(399); err == nil {
		t.Fatal("expected error for too-low reference pitch")
	}

	if err := d.SetReferencePitch(481); err == nil {
		t.Fatal("expected error for too-high reference pitch")
	}

	if err := d.SetReferencePitch(math.NaN()); err == nil {
		t.Fatal("expected error for NaN reference pitch")
	}

	if err := d.SetReferencePitch(442); err != nil {
		t.Fatalf("SetReferencePitch() error = %v", err)
	}
}

func TestDetectorTracksSineFrequency(t *testing.T) {
	const sampleRate = 48000.0

	tests := []struct {
		name     string
		freq     float64
		wantNote int
	}{
		{name: "E2", freq: 82.41, wantNote: 40},
		{name: "A2", freq: 110, wantNote: 45},
		{name: "A3", freq: 220, wantNote: 57},
		{name: "A4", freq: 440, wantNote: 69},
		{name: "A5", freq: 880, wantNote: 81},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDetector(sampleRate)
			if err != nil {
				t.Fatalf("NewDetector() error = %v", err)
			}

			input := testutil.DeterministicSine(tt.freq, sampleRate, 0.5, int(sampleRate))
			d.Process(input)

			info := d.Current()
			if !info.IsActive {
				t.Fatalf("detector inactive after %d samples of a %g Hz sine", len(input), tt.freq)
			}

			relErr := math.Abs(info.Frequency-tt.freq) / tt.freq
			if relErr > 0.01 {
				t.Fatalf("Frequency = %f Hz, want %f Hz within 1%% (rel err %f)", info.Frequency, tt.freq, relErr)
			}

			if info.MidiNote != tt.wantNote {
				t.Fatalf("MidiNote = %d (%s), want %d (%s)",
					info.MidiNote, NoteName(info.MidiNote), tt.wantNote, NoteName(tt.wantNote))
			}

			if math.Abs(info.Cents) > 10 {
				t.Fatalf("Cents = %f, want within +/-10 of the note center", info.Cents)
			}

			if info.Confidence < detectorConfidenceFloor {
				t.Fatalf("Confidence = %f, want >= %f", info.Confidence, detectorConfidenceFloor)
			}
		})
	}
}

func TestDetectorSilenceDeactivates(t *testing.T) {
	const sampleRate = 48000.0

	d, err := NewDetector(sampleRate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	d.Process(testutil.DeterministicSine(440, sampleRate, 0.5, int(sampleRate)))
	if !d.Current().IsActive {
		t.Fatal("detector inactive after sine input")
	}

	d.Process(make([]float64, 2*detectorFrameSize))

	info := d.Current()
	if info.IsActive {
		t.Fatal("detector still active after silence")
	}

	// The last locked note stays available for display during gaps.
	if info.MidiNote != 69 {
		t.Fatalf("MidiNote = %d after silence, want 69", info.MidiNote)
	}
}

func TestDetectorQuietSignalStaysInactive(t *testing.T) {
	const sampleRate = 48000.0

	d, err := NewDetector(sampleRate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	// Amplitude far below the RMS gate.
	d.Process(testutil.DeterministicSine(440, sampleRate, 0.001, int(sampleRate)))

	if d.Current().IsActive {
		t.Fatal("detector active on a signal below the silence gate")
	}
}

func TestDetectorNoteLockFollowsNoteChange(t *testing.T) {
	const sampleRate = 48000.0

	d, err := NewDetector(sampleRate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	d.Process(testutil.DeterministicSine(440, sampleRate, 0.5, int(sampleRate)))
	if got := d.Current().MidiNote; got != 69 {
		t.Fatalf("MidiNote = %d after A4, want 69", got)
	}

	// A full semitone up must defeat the hysteresis and relock.
	d.Process(testutil.DeterministicSine(466.16, sampleRate, 0.5, int(sampleRate)))

	info := d.Current()
	if !info.IsActive {
		t.Fatal("detector inactive after note change")
	}

	if info.MidiNote != 70 {
		t.Fatalf("MidiNote = %d after A#4, want 70", info.MidiNote)
	}
}

func TestDetectorCentsStayClamped(t *testing.T) {
	const sampleRate = 48000.0

	d, err := NewDetector(sampleRate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	// 452 Hz is about +47 cents off A4; the rounded note is still 69, so
	// the lock holds and the display cents track the deviation.
	d.Process(testutil.DeterministicSine(452, sampleRate, 0.5, int(sampleRate)))

	info := d.Current()
	if !info.IsActive {
		t.Fatal("detector inactive")
	}

	if info.MidiNote != 69 {
		t.Fatalf("MidiNote = %d, want 69", info.MidiNote)
	}

	if info.Cents < 30 || info.Cents > 50 {
		t.Fatalf("Cents = %f, want in [30, 50]", info.Cents)
	}
}

func TestDetectorReset(t *testing.T) {
	const sampleRate = 48000.0

	d, err := NewDetector(sampleRate)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	d.Process(testutil.DeterministicSine(440, sampleRate, 0.5, int(sampleRate)))
	if !d.Current().IsActive {
		t.Fatal("detector inactive after sine input")
	}

	d.Reset()

	info := d.Current()
	if info.IsActive {
		t.Fatal("Current().IsActive = true after Reset")
	}

	if info.MidiNote != -1 {
		t.Fatalf("Current().MidiNote = %d after Reset, want -1", info.MidiNote)
	}

	if info.Frequency != 0 {
		t.Fatalf("Current().Frequency = %f after Reset, want 0", info.Frequency)
	}
}

func TestNoteName(t *testing.T) {
	tests := []struct {
		midi int
		want string
	}{
		{midi: 69, want: "A4"},
		{midi: 60, want: "C4"},
		{midi: 61, want: "C#4"},
		{midi: 21, want: "A0"},
		{midi: 108, want: "C8"},
		{midi: 0, want: "C-1"},
		{midi: -1, want: "-"},
		{midi: 128, want: "-"},
	}

	for _, tt := range tests {
		if got := NoteName(tt.midi); got != tt.want {
			t.Errorf("NoteName(%d) = %q, want %q", tt.midi, got, tt.want)
		}
	}
}

func BenchmarkDetectorProcess(b *testing.B) {
	d, err := NewDetector(48000)
	if err != nil {
		b.Fatalf("NewDetector() error = %v", err)
	}

	input := testutil.DeterministicSine(220, 48000, 0.5, 4800)

	b.ReportAllocs()

	for b.Loop() {
		d.Process(input)
	}
}
