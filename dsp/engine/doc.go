// Package engine wires the vocal processors into one fixed chain driven
// from an audio callback.
//
// Engine owns per-channel gate, de-esser, and compressor strips, the shared
// harmonizer, both reverbs, the echo, the ducking dynamic EQ, the pitch
// detector, and the master-bus recorder. The callback hands it mono input
// buffers and receives a fully populated output; all routing and gain
// decisions travel in one Params snapshot through dsp/param, and every bus
// is preallocated at Prepare so the audio thread stays allocation free
// outside a declared regrow path for oversized blocks.
//
// Echo is the one processor defined here rather than in dsp/effects: a
// stereo feedback delay that exists only as part of the chain. Recorder
// drains the master bus to 24-bit WAV on a background goroutine and never
// blocks the callback.
package engine
