package reverb

// Type selects which reverb implementation is active in a host chain
// that carries both an [Algorithmic] and a [Convolution] instance.
type Type int

const (
	// TypeAlgorithmic routes through the feedback-delay-network reverb.
	TypeAlgorithmic Type = iota
	// TypeConvolution routes through the partitioned-convolution reverb.
	TypeConvolution
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeAlgorithmic:
		return "algorithmic"
	case TypeConvolution:
		return "convolution"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known reverb type.
func (t Type) Valid() bool {
	return t == TypeAlgorithmic || t == TypeConvolution
}
