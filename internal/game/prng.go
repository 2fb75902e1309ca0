package game

// mulberry32 pseudo-random stream. The generator is a pure function of its
// 32-bit state word: identical seeds produce identical sequences on every
// platform, which is what lets independently-polling clients agree on crash
// points and opponent rosters without talking to each other.

// NextRand draws one value in [0,1) and returns the successor state.
// Callers thread the state explicitly; there is no hidden generator state.
func NextRand(state uint32) (float64, uint32) {
	state += 0x6D2B79F5
	t := state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0, state
}
