package pitch

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	detectorFrameSize = 2048
	detectorHop       = detectorFrameSize / 4

	defaultDetectorThreshold = 0.15
	defaultDetectorGateRMS   = 0.006
	defaultReferencePitch    = 440.0

	minDetectorFrequency = 80.0
	maxDetectorFrequency = 1000.0

	detectorConfidenceFloor = 0.5
	detectorHistoryLen      = 5

	noteLockFrames   = 4
	noteUnlockFrames = 3
	noteUnlockCents  = 35.0

	minDetectorSampleRate = 8000.0
	maxDetectorSampleRate = 384000.0

	detectorTiny = 1e-10
)

// PitchInfo is one complete detection result, published once per analysis
// hop. Readers always see a whole snapshot, never a partial update.
type PitchInfo struct {
	Frequency  float64
	Confidence float64
	MidiNote   int
	Cents      float64
	IsActive   bool
}

// Detector estimates the fundamental frequency of a mono signal using the
// YIN cumulative-mean-normalized difference function.
//
// It analyzes a rolling 2048-sample window every 512 samples, gates on
// frame RMS, post-filters with a 5-point median and octave correction, and
// locks detected notes with hysteresis so the reported note does not
// chatter at note boundaries. The detector only reads audio; it never
// writes to the signal path.
type Detector struct {
	sampleRate float64
	threshold  float64
	gateRMS    float64
	refPitch   float64

	input    []float64
	writePos int
	hopCount int

	frame []float64
	diff  []float64
	cmnd  []float64

	history     []float64
	historySort []float64
	historyIdx  int
	smoothed    float64

	lockedNote    int
	pendingNote   int
	lockCounter   int
	unlockCounter int

	current PitchInfo
	out     param.Cell[PitchInfo]
}

// NewDetector creates a pitch detector for the given sample rate.
func NewDetector(sampleRate float64) (*Detector, error) {
	if math.IsNaN(sampleRate) || sampleRate < minDetectorSampleRate || sampleRate > maxDetectorSampleRate {
		return nil, fmt.Errorf("pitch detector sample rate must be in [%g, %g]: %f",
			minDetectorSampleRate, maxDetectorSampleRate, sampleRate)
	}

	d := &Detector{
		sampleRate:  sampleRate,
		threshold:   defaultDetectorThreshold,
		gateRMS:     defaultDetectorGateRMS,
		refPitch:    defaultReferencePitch,
		input:       make([]float64, detectorFrameSize*2),
		frame:       make([]float64, detectorFrameSize),
		diff:        make([]float64, detectorFrameSize/2),
		cmnd:        make([]float64, detectorFrameSize/2),
		history:     make([]float64, detectorHistoryLen),
		historySort: make([]float64, detectorHistoryLen),
		lockedNote:  -1,
		pendingNote: -1,
		current:     PitchInfo{MidiNote: -1},
	}
	d.out.Store(d.current)
	return d, nil
}

// SampleRate returns the analysis sample rate in Hz.
func (d *Detector) SampleRate() float64 { return d.sampleRate }

// Threshold returns the CMND sensitivity threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// GateThreshold returns the RMS silence gate level.
func (d *Detector) GateThreshold() float64 { return d.gateRMS }

// ReferencePitch returns the A4 reference frequency in Hz.
func (d *Detector) ReferencePitch() float64 { return d.refPitch }

// SetThreshold updates the CMND sensitivity threshold. Lower values demand
// a cleaner periodicity match before a candidate is accepted.
func (d *Detector) SetThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("pitch detector threshold must be in (0, 1): %f", threshold)
	}
	d.threshold = threshold
	return nil
}

// SetGateThreshold updates the frame-RMS silence gate.
func (d *Detector) SetGateThreshold(rms float64) error {
	if math.IsNaN(rms) || rms < 0 {
		return fmt.Errorf("pitch detector gate threshold must be >= 0: %f", rms)
	}
	d.gateRMS = rms
	return nil
}

// SetReferencePitch updates the A4 reference frequency.
func (d *Detector) SetReferencePitch(hz float64) error {
	if math.IsNaN(hz) || hz < 400 || hz > 480 {
		return fmt.Errorf("pitch detector reference pitch must be in [400, 480] Hz: %f", hz)
	}
	d.refPitch = hz
	return nil
}

// Current returns the latest complete detection snapshot. Safe to call from
// any goroutine.
func (d *Detector) Current() PitchInfo {
	return d.out.Load()
}

// Process feeds input samples into the rolling analysis window, running one
// analysis pass per 512 accumulated samples. The input is not modified.
func (d *Detector) Process(input []float64) {
	for _, v := range input {
		d.input[d.writePos] = v
		d.writePos++
		if d.writePos >= len(d.input) {
			d.writePos = 0
		}
		d.hopCount++
		if d.hopCount >= detectorHop {
			d.hopCount = 0
			d.analyze()
		}
	}
}

// Reset clears all analysis and note-locking state.
func (d *Detector) Reset() {
	for i := range d.input {
		d.input[i] = 0
	}
	for i := range d.history {
		d.history[i] = 0
	}
	d.writePos = 0
	d.hopCount = 0
	d.historyIdx = 0
	d.smoothed = 0
	d.lockedNote = -1
	d.pendingNote = -1
	d.lockCounter = 0
	d.unlockCounter = 0
	d.current = PitchInfo{MidiNote: -1}
	d.out.Store(d.current)
}

func (d *Detector) publishInactive() {
	d.current.IsActive = false
	d.out.Store(d.current)
}

func (d *Detector) analyze() {
	ringLen := len(d.input)
	readPos := d.writePos - detectorFrameSize
	if readPos < 0 {
		readPos += ringLen
	}

	rms := 0.0
	for i := range detectorFrameSize {
		v := d.input[(readPos+i)%ringLen]
		d.frame[i] = v
		rms += v * v
	}
	rms = math.Sqrt(rms / detectorFrameSize)

	if rms < d.gateRMS {
		d.publishInactive()
		return
	}

	halfSize := detectorFrameSize / 2

	// Squared-difference function.
	for tau := range halfSize {
		sum := 0.0
		for i := range halfSize {
			delta := d.frame[i] - d.frame[i+tau]
			sum += delta * delta
		}
		d.diff[tau] = sum
	}

	// Cumulative mean normalized difference.
	d.cmnd[0] = 1
	runningSum := 0.0
	for tau := 1; tau < halfSize; tau++ {
		runningSum += d.diff[tau]
		if runningSum > detectorTiny {
			d.cmnd[tau] = d.diff[tau] * float64(tau) / runningSum
		} else {
			d.cmnd[tau] = 1
		}
	}

	// Lag search range for the vocal/instrument band.
	minTau := int(d.sampleRate / maxDetectorFrequency)
	if minTau < 2 {
		minTau = 2
	}
	maxTau := int(d.sampleRate / minDetectorFrequency)
	if maxTau > halfSize-1 {
		maxTau = halfSize - 1
	}

	// First local minimum below the threshold wins: descend the dip the
	// threshold crossing opens and stop at its bottom.
	bestTau := -1
	for tau := minTau; tau < maxTau; tau++ {
		if d.cmnd[tau] < d.threshold {
			for tau+1 < maxTau && d.cmnd[tau+1] < d.cmnd[tau] {
				tau++
			}
			bestTau = tau
			break
		}
	}
	if bestTau < 0 {
		d.publishInactive()
		return
	}
	bestValue := d.cmnd[bestTau]

	// Parabolic refinement across the three neighboring CMND values.
	refinedTau := float64(bestTau)
	if bestTau > 0 && bestTau < halfSize-1 {
		s0 := d.cmnd[bestTau-1]
		s1 := d.cmnd[bestTau]
		s2 := d.cmnd[bestTau+1]
		denom := 2*s1 - s2 - s0
		if math.Abs(denom) > detectorTiny {
			delta := (s2 - s0) / (2 * denom)
			if delta > 1 {
				delta = 1
			} else if delta < -1 {
				delta = -1
			}
			refinedTau += delta
		}
	}

	detected := d.sampleRate / refinedTau
	if detected < minDetectorFrequency || detected > maxDetectorFrequency {
		d.publishInactive()
		return
	}

	confidence := 1 - bestValue
	if confidence < detectorConfidenceFloor {
		d.publishInactive()
		return
	}

	// Median filter across recent estimates rejects octave flips.
	d.history[d.historyIdx] = detected
	d.historyIdx = (d.historyIdx + 1) % detectorHistoryLen
	copy(d.historySort, d.history)
	sort.Float64s(d.historySort)
	median := d.historySort[detectorHistoryLen/2]

	ratio := detected / median
	if ratio > 1.9 && ratio < 2.1 {
		detected /= 2
	} else if ratio > 0.48 && ratio < 0.52 {
		detected *= 2
	}

	if d.smoothed > 0 {
		d.smoothed = d.smoothed*0.6 + detected*0.4
	} else {
		d.smoothed = detected
	}

	d.updateNoteLock(confidence)
}

// updateNoteLock runs the note hysteresis: a candidate note must persist
// noteLockFrames hops to lock, and a locked note survives until the pitch
// has deviated past noteUnlockCents for noteUnlockFrames consecutive hops.
func (d *Detector) updateNoteLock(confidence float64) {
	exactMidi := 69 + 12*math.Log2(d.smoothed/d.refPitch)
	detectedNote := int(math.Round(exactMidi))

	centsFromLocked := 0.0
	if d.lockedNote >= 0 {
		centsFromLocked = (exactMidi - float64(d.lockedNote)) * 100
	}

	if d.lockedNote < 0 {
		if detectedNote == d.pendingNote {
			d.lockCounter++
			if d.lockCounter >= noteLockFrames {
				d.lockedNote = detectedNote
				d.lockCounter = 0
			}
		} else {
			d.pendingNote = detectedNote
			d.lockCounter = 1
		}
	} else if math.Abs(centsFromLocked) > noteUnlockCents {
		d.unlockCounter++
		if d.unlockCounter >= noteUnlockFrames {
			if detectedNote == d.pendingNote {
				d.lockCounter++
				if d.lockCounter >= noteLockFrames {
					d.lockedNote = detectedNote
					d.lockCounter = 0
					d.unlockCounter = 0
				}
			} else {
				d.pendingNote = detectedNote
				d.lockCounter = 1
			}
		}
	} else {
		d.unlockCounter = 0
		d.lockCounter = 0
		d.pendingNote = d.lockedNote
	}

	if d.lockedNote < 0 {
		d.publishInactive()
		return
	}

	displayCents := (exactMidi - float64(d.lockedNote)) * 100
	if displayCents > 50 {
		displayCents = 50
	} else if displayCents < -50 {
		displayCents = -50
	}

	d.current = PitchInfo{
		Frequency:  d.smoothed,
		Confidence: confidence,
		MidiNote:   d.lockedNote,
		Cents:      displayCents,
		IsActive:   true,
	}
	d.out.Store(d.current)
}

// NoteName returns the conventional name for a MIDI note number, e.g.
// NoteName(69) == "A4". Out-of-range notes return "-".
func NoteName(midiNote int) string {
	if midiNote < 0 || midiNote > 127 {
		return "-"
	}
	names := [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := midiNote/12 - 1
	return names[midiNote%12] + strconv.Itoa(octave)
}
