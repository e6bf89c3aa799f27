package engine

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/dither"
	"github.com/ranroby76/onstage-standalone-sub000/dsp/param"
)

const (
	// recorderRingSamples is the SPSC ring capacity in interleaved
	// samples. Power of two so positions wrap with a mask.
	recorderRingSamples = 1 << 17

	// recorderChunkSamples is the minimum drain size handed to the WAV
	// encoder while recording is live.
	recorderChunkSamples = 4096

	recorderBitDepth = 24

	recorderPollInterval = 5 * time.Millisecond

	// Waveform thumbnail: one min/max pair per 256 frames, ring of 1024.
	waveformPoints     = 1024
	waveformDecimation = 256
)

// WaveformPoint is one min/max pair of the recording thumbnail.
type WaveformPoint struct {
	Min float64
	Max float64
}

// Recorder captures the stereo master bus to a 24-bit WAV file.
//
// The audio thread pushes interleaved frames into a fixed single-producer
// single-consumer ring and never blocks: when the ring is full the frame is
// dropped and counted. A background goroutine drains the ring in chunks,
// quantizes to 24 bits with triangular dither, and feeds the WAV encoder.
// It also folds the drained audio into a coarse min/max waveform thumbnail
// readable from the control thread.
type Recorder struct {
	ring     []float64
	writePos atomic.Uint64
	readPos  atomic.Uint64
	dropped  atomic.Uint64

	recording atomic.Bool
	level     param.Float

	mu         sync.Mutex
	sampleRate float64
	file       *os.File
	enc        *wav.Encoder
	quant      *dither.Quantizer
	stop       chan struct{}
	done       chan struct{}
	writeErr   error

	wfMu    sync.Mutex
	wf      [waveformPoints]WaveformPoint
	wfLen   int
	wfPos   int
	wfMin   float64
	wfMax   float64
	wfCount int
}

// NewRecorder creates a recorder for the given sample rate.
func NewRecorder(sampleRate float64) (*Recorder, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("recorder: sample rate must be > 0 and finite: %f", sampleRate)
	}
	return &Recorder{
		ring:       make([]float64, recorderRingSamples),
		sampleRate: sampleRate,
	}, nil
}

// SetSampleRate changes the rate used for the next recording. It fails
// while a recording is in progress.
func (r *Recorder) SetSampleRate(sampleRate float64) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("recorder: sample rate must be > 0 and finite: %f", sampleRate)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording.Load() {
		return fmt.Errorf("recorder: cannot change sample rate while recording")
	}
	r.sampleRate = sampleRate
	return nil
}

// Start creates path and begins draining pushed audio into it. It fails if
// a recording is already in progress.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording.Load() {
		return fmt.Errorf("recorder: already recording")
	}

	quant, err := dither.NewQuantizer(r.sampleRate, dither.WithBitDepth(recorderBitDepth))
	if err != nil {
		return fmt.Errorf("recorder: quantizer: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recorder: create %s: %w", path, err)
	}

	r.file = file
	r.enc = wav.NewEncoder(file, int(r.sampleRate), recorderBitDepth, 2, 1)
	r.quant = quant
	r.writeErr = nil
	r.writePos.Store(0)
	r.readPos.Store(0)
	r.dropped.Store(0)
	r.level.Store(0)
	r.resetWaveform()

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.drain(r.enc, r.quant, r.stop, r.done)

	r.recording.Store(true)
	return nil
}

// Stop flushes the ring, finalizes the WAV header, and closes the file.
// Stopping an idle recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording.Load() {
		return nil
	}

	// Flip first so the audio thread stops pushing, then let the drain
	// goroutine empty whatever is left.
	r.recording.Store(false)
	close(r.stop)
	<-r.done

	err := r.writeErr
	if closeErr := r.enc.Close(); err == nil {
		err = closeErr
	}
	if closeErr := r.file.Close(); err == nil {
		err = closeErr
	}
	r.enc = nil
	r.file = nil
	r.quant = nil
	r.level.Store(0)
	return err
}

// IsRecording reports whether a recording is in progress.
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// DroppedSamples returns how many samples were discarded because the ring
// was full during the current or most recent recording.
func (r *Recorder) DroppedSamples() uint64 {
	return r.dropped.Load()
}

// Level returns the peak magnitude of the most recently drained chunk.
func (r *Recorder) Level() float64 {
	return r.level.Load()
}

// Push appends one stereo frame from the audio thread. It never blocks:
// when the ring is full the frame is counted as dropped instead.
func (r *Recorder) Push(left, right float64) {
	if !r.recording.Load() {
		return
	}
	w := r.writePos.Load()
	if w-r.readPos.Load()+2 > uint64(len(r.ring)) {
		r.dropped.Add(2)
		return
	}
	mask := uint64(len(r.ring) - 1)
	r.ring[w&mask] = left
	r.ring[(w+1)&mask] = right
	r.writePos.Store(w + 2)
}

// PushBlock appends a block of stereo frames from the audio thread.
func (r *Recorder) PushBlock(left, right []float64) {
	if !r.recording.Load() {
		return
	}
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		r.Push(left[i], right[i])
	}
}

// Waveform copies the current thumbnail into dst oldest-first and returns
// the number of points written.
func (r *Recorder) Waveform(dst []WaveformPoint) int {
	r.wfMu.Lock()
	defer r.wfMu.Unlock()

	n := r.wfLen
	if n > len(dst) {
		n = len(dst)
	}
	start := r.wfPos - r.wfLen
	if start < 0 {
		start += waveformPoints
	}
	for i := 0; i < n; i++ {
		dst[i] = r.wf[(start+i)%waveformPoints]
	}
	return n
}

func (r *Recorder) resetWaveform() {
	r.wfMu.Lock()
	r.wfLen = 0
	r.wfPos = 0
	r.wfMin = 0
	r.wfMax = 0
	r.wfCount = 0
	r.wfMu.Unlock()
}

// drain runs on the background goroutine until stop closes, then empties
// the remainder of the ring before signalling done.
func (r *Recorder) drain(enc *wav.Encoder, quant *dither.Quantizer, stop, done chan struct{}) {
	defer close(done)

	scratch := make([]float64, recorderChunkSamples)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  int(r.sampleRate),
		},
		Data:           make([]int, recorderChunkSamples),
		SourceBitDepth: recorderBitDepth,
	}

	flushing := false
	for {
		avail := r.writePos.Load() - r.readPos.Load()
		switch {
		case avail >= recorderChunkSamples || (flushing && avail > 0):
			count := int(avail)
			if count > recorderChunkSamples {
				count = recorderChunkSamples
			}
			count &^= 1 // whole frames only
			if count == 0 {
				if flushing {
					return
				}
				break
			}
			r.writeChunk(enc, quant, scratch[:count], buf)
		case flushing:
			return
		default:
			select {
			case <-stop:
				flushing = true
			case <-time.After(recorderPollInterval):
			}
		}
	}
}

func (r *Recorder) writeChunk(enc *wav.Encoder, quant *dither.Quantizer, scratch []float64, buf *audio.IntBuffer) {
	rd := r.readPos.Load()
	mask := uint64(len(r.ring) - 1)
	peak := 0.0
	for i := range scratch {
		v := r.ring[(rd+uint64(i))&mask]
		scratch[i] = v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	r.readPos.Store(rd + uint64(len(scratch)))
	r.level.Store(peak)

	r.foldWaveform(scratch)

	buf.Data = buf.Data[:len(scratch)]
	for i, v := range scratch {
		buf.Data[i] = quant.ProcessInteger(v)
	}
	if r.writeErr == nil {
		if err := enc.Write(buf); err != nil {
			r.writeErr = fmt.Errorf("recorder: write: %w", err)
		}
	}
}

// foldWaveform accumulates mono min/max over waveformDecimation frames and
// pushes a point into the thumbnail ring for each full window.
func (r *Recorder) foldWaveform(interleaved []float64) {
	r.wfMu.Lock()
	defer r.wfMu.Unlock()

	for i := 0; i+1 < len(interleaved); i += 2 {
		mono := 0.5 * (interleaved[i] + interleaved[i+1])
		if r.wfCount == 0 {
			r.wfMin = mono
			r.wfMax = mono
		} else {
			if mono < r.wfMin {
				r.wfMin = mono
			}
			if mono > r.wfMax {
				r.wfMax = mono
			}
		}
		r.wfCount++
		if r.wfCount >= waveformDecimation {
			r.wf[r.wfPos] = WaveformPoint{Min: r.wfMin, Max: r.wfMax}
			r.wfPos = (r.wfPos + 1) % waveformPoints
			if r.wfLen < waveformPoints {
				r.wfLen++
			}
			r.wfCount = 0
		}
	}
}
