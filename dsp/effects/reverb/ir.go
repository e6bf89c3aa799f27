package reverb

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"github.com/ranroby76/onstage-standalone-sub000/dsp/resample"
)

const (
	irNameInternal = "Default (Internal)"
	irNameMissing  = "File Not Found (Default)"

	defaultImpulseSeconds = 1.8
	defaultImpulseSeed    = 8675309
	maxImpulseSeconds     = 10.0

	// Zero input fed after the impulse to drain the resampler's filter.
	resampleDrainLen = 512
)

// resolveImpulse returns the per-channel impulse responses for path and the
// display name of whatever actually loaded. An empty path selects the
// embedded default; a path that fails to load also falls back to the default
// but reports it.
func resolveImpulse(path string, engineRate float64) (irL, irR []float64, name string) {
	if path == "" {
		ir := defaultImpulseResponse(engineRate)
		return ir, ir, irNameInternal
	}
	irL, irR, err := loadImpulseFile(path, engineRate)
	if err != nil {
		ir := defaultImpulseResponse(engineRate)
		return ir, ir, irNameMissing
	}
	base := filepath.Base(path)
	return irL, irR, strings.TrimSuffix(base, filepath.Ext(base))
}

// defaultImpulseResponse synthesizes the embedded impulse: a deterministic
// noise burst decaying 60 dB over its length, normalized to unit energy.
func defaultImpulseResponse(sampleRate float64) []float64 {
	n := int(defaultImpulseSeconds * sampleRate)
	if n < 1 {
		n = 1
	}
	rng := fpNoise{state: defaultImpulseSeed}
	decay := math.Log(1000) / float64(n)
	ir := make([]float64, n)
	energy := 0.0
	for i := range ir {
		s := (rng.uniform()*2 - 1) * math.Exp(-float64(i)*decay)
		ir[i] = s
		energy += s * s
	}
	if energy > 0 {
		scale := 1 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= scale
		}
	}
	return ir
}

// loadImpulseFile decodes a WAV impulse response, resamples it to the engine
// rate when needed, and normalizes the pair to unit mean energy. Mono files
// feed both channels; extra channels beyond the first two are ignored.
func loadImpulseFile(path string, engineRate float64) (irL, irR []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open impulse response: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("impulse response is not a valid WAV file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("decode impulse response: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, nil, fmt.Errorf("impulse response has no samples: %s", path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(uint64(1)<<(bitDepth-1))

	frames := len(buf.Data) / channels
	irL = make([]float64, frames)
	irR = make([]float64, frames)
	for i := range frames {
		irL[i] = float64(buf.Data[i*channels]) * scale
		if channels > 1 {
			irR[i] = float64(buf.Data[i*channels+1]) * scale
		} else {
			irR[i] = irL[i]
		}
	}

	if fileRate := float64(buf.Format.SampleRate); fileRate > 0 && fileRate != engineRate {
		if irL, err = resampleImpulse(irL, fileRate, engineRate); err != nil {
			return nil, nil, err
		}
		if irR, err = resampleImpulse(irR, fileRate, engineRate); err != nil {
			return nil, nil, err
		}
	}

	if maxLen := int(maxImpulseSeconds * engineRate); len(irL) > maxLen {
		irL = irL[:maxLen]
		irR = irR[:maxLen]
	}
	if len(irL) == 0 {
		return nil, nil, fmt.Errorf("impulse response is empty after conversion: %s", path)
	}

	if err := normalizeImpulsePair(irL, irR); err != nil {
		return nil, nil, fmt.Errorf("impulse response %s: %w", path, err)
	}
	return irL, irR, nil
}

// resampleImpulse converts one channel to the engine rate, draining the
// polyphase filter so the impulse tail is not cut off.
func resampleImpulse(ir []float64, fileRate, engineRate float64) ([]float64, error) {
	rs, err := resample.NewForRates(fileRate, engineRate)
	if err != nil {
		return nil, fmt.Errorf("resample impulse response: %w", err)
	}
	out := rs.Process(ir)
	tail := rs.Process(make([]float64, resampleDrainLen))
	return append(out, tail...), nil
}

// normalizeImpulsePair scales both channels by one factor so the pair has
// unit mean energy. A single scale preserves the file's stereo balance.
func normalizeImpulsePair(irL, irR []float64) error {
	energy := 0.0
	for _, s := range irL {
		energy += s * s
	}
	for _, s := range irR {
		energy += s * s
	}
	energy *= 0.5
	if energy < 1e-12 {
		return errors.New("impulse response is silent")
	}
	scale := 1 / math.Sqrt(energy)
	for i := range irL {
		irL[i] *= scale
	}
	for i := range irR {
		irR[i] *= scale
	}
	return nil
}
