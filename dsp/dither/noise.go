package dither

// Xorshift32 is a tiny deterministic noise source for audio-rate use: fast,
// allocation-free, and cheap enough to run per sample. The reverb engines use
// it to decorrelate their wet tails and to keep feedback paths out of the
// denormal range.
type Xorshift32 struct {
	state uint32
}

// NewXorshift32 returns a generator seeded with seed. A zero seed is
// replaced, since the xorshift sequence fixes at zero.
func NewXorshift32(seed uint32) *Xorshift32 {
	if seed == 0 {
		seed = 0x6c078965
	}
	return &Xorshift32{state: seed}
}

// Next advances the generator and returns the raw 32-bit state.
func (x *Xorshift32) Next() uint32 {
	x.state ^= x.state << 13
	x.state ^= x.state >> 17
	x.state ^= x.state << 5
	return x.state
}

// NextFloat returns a uniform sample in [0, 1).
func (x *Xorshift32) NextFloat() float64 {
	return float64(x.Next()) / 4294967296.0
}

// NextBipolar returns a uniform sample in [-1, 1).
func (x *Xorshift32) NextBipolar() float64 {
	return x.NextFloat()*2 - 1
}

// Seed resets the generator state. A zero seed is replaced.
func (x *Xorshift32) Seed(seed uint32) {
	if seed == 0 {
		seed = 0x6c078965
	}
	x.state = seed
}
