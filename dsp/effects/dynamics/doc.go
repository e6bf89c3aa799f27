// Package dynamics provides reusable non-I/O dynamics processors for the
// live vocal chain.
//
// Included processors:
//   - Compressor: Soft-knee feedforward compressor with log2-domain gain
//     computation and selectable character voicings (clean, opto, FET,
//     vintage, peak).
//   - Gate: Soft-knee noise gate with hold support.
//   - DeEsser: Split-band sibilance detector and reducer.
//   - DynamicEQ: Sidechain-keyed band ducker operating in mid/side, for
//     carving vocal space out of a backing bus.
//   - TransientSplitter: Fast/slow envelope detector that separates a signal
//     into transient and sustain buses.
//
// Compressor and Gate share a detector/gain core. All processors are mono
// except DynamicEQ, which is stereo with a separate key input.
package dynamics
