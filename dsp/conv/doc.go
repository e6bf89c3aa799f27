// Package conv provides time-domain and partitioned FFT convolution.
//
// Two strategies cover the two workloads that show up in practice:
//
//   - Direct convolution: Simple O(N*M) time-domain convolution, best for very
//     short kernels (< 64 samples) and as a bit-exact reference in tests
//   - Partitioned convolution (UPOLA): non-uniformly partitioned overlap-add
//     for long impulse responses at low, fixed latency
//
// # Usage
//
// For one-shot convolution with a short kernel:
//
//	result, err := conv.Direct(signal, kernel)
//
// For streaming convolution against a long impulse response (e.g. a reverb
// IR of several seconds), create a reusable convolver:
//
//	pc, err := conv.NewPartitionedConvolution(ir, 7, 13)
//	err = pc.ProcessBlock(input, output)
//
// # Partitioning
//
// The impulse response is split into stages with exponentially increasing
// partition sizes. The smallest partition (2^minBlockOrder samples) sets the
// latency; larger partitions run on a modulo schedule so the per-block cost
// stays roughly constant instead of spiking when a large FFT comes due.
//
// For a 48 kHz stream, minBlockOrder=7 gives 128 samples (~2.7 ms) of
// latency, and maxBlockOrder=13 caps individual FFTs at 16384 points.
package conv
