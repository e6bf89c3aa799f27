// Package harmonizer layers pitch-shifted harmony voices onto a stereo bus.
package harmonizer
