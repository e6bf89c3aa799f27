// Package pitch provides streaming pitch analysis and shifting.
//
// Included processors:
//   - Detector: Autocorrelation-difference pitch tracker with note locking.
//   - Shifter: Mono pitch and formant shifter with two engine strategies.
package pitch
