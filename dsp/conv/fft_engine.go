package conv

import (
	algofft "github.com/MeKo-Christian/algo-fft"
)

// fftEngine wraps an FFT plan of a fixed size. All buffers handed to it are
// allocated at stage construction with exactly the plan's length, so the
// underlying transform cannot fail at runtime and the methods absorb the
// plan's error returns.
type fftEngine[C algofft.Complex] struct {
	plan *algofft.Plan[C]
	size int
}

// newFFTEngine creates an engine for transforms of length fftSize.
func newFFTEngine[C algofft.Complex](fftSize int) (*fftEngine[C], error) {
	plan, err := algofft.NewPlanT[C](fftSize)
	if err != nil {
		return nil, err
	}

	return &fftEngine[C]{plan: plan, size: fftSize}, nil
}

// Forward computes the forward FFT of src into dst. In-place (dst == src)
// is allowed.
func (e *fftEngine[C]) Forward(dst, src []C) {
	_ = e.plan.Forward(dst, src)
}

// Inverse computes the normalized inverse FFT of src into dst. In-place
// (dst == src) is allowed.
func (e *fftEngine[C]) Inverse(dst, src []C) {
	_ = e.plan.Inverse(dst, src)
}

// packReal fills dst with src as real-valued complex samples.
// Slices are paired by index; dst must be at least as long as src.
func packReal[C algofft.Complex, F algofft.Float](dst []C, src []F) {
	switch d := any(dst).(type) {
	case []complex64:
		for i, v := range src {
			d[i] = complex(float32(v), 0)
		}
	case []complex128:
		for i, v := range src {
			d[i] = complex(float64(v), 0)
		}
	}
}

// unpackReal extracts the real parts of src into dst.
// src must be at least as long as dst.
func unpackReal[F algofft.Float, C algofft.Complex](dst []F, src []C) {
	switch s := any(src).(type) {
	case []complex64:
		for i := range dst {
			dst[i] = F(real(s[i]))
		}
	case []complex128:
		for i := range dst {
			dst[i] = F(real(s[i]))
		}
	}
}
