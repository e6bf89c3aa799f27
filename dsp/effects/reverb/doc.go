// Package reverb provides the stereo reverb processors: an algorithmic
// feedback-delay-network reverb with selectable hall, room, and space
// models, and a convolution reverb running impulse responses through
// non-uniformly partitioned convolution.
//
// Both processors share the snapshot parameter scheme from dsp/param:
// SetParams publishes a sanitized copy from any goroutine and the audio
// thread picks it up at the next block. Both carry a wet-level duck driven
// by an envelope of the dry input; the convolution reverb adds a wet-path
// noise gate and loads impulse responses from WAV files with automatic
// resampling.
package reverb
