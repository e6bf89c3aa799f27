// Package interp provides interpolation primitives used by delay-based DSP
// blocks.
//
// Available methods, from cheapest to highest quality:
//
//   - [Linear2]:   2-point linear interpolation
//   - [Hermite4]:  4-point cubic Hermite (good default)
//
// [LagrangeInterpolator] wraps both behind an order selector for callers
// that choose quality at construction time.
package interp
