package game

import (
	"math"
	"time"
)

const (
	MIN_MULTIPLIER  = 1.00
	HOUSE_EDGE      = 0.99 // 1% expected-value skim toward the house
	GROWTH_CONSTANT = 0.0693

	// Seed factors keyed off the round id. Crash points and opponent
	// rosters use different factors so the streams are independent.
	CRASH_SEED_FACTOR = 1337

	COUNTDOWN_DURATION = 5 * time.Second
	COOLDOWN_DURATION  = 3 * time.Second
)

// GenerateCrashPoint derives the crash multiplier for a round. Pure and
// deterministic: the same round id yields the same crash point on every
// client regardless of call order.
//
// One draw r feeds HOUSE_EDGE / (1 - r). The generator guarantees r < 1,
// so the MIN_MULTIPLIER floor only catches the low end of the distribution
// (r close to 0 gives values just under 1.00).
func GenerateCrashPoint(roundID int64) float64 {
	r, _ := NextRand(uint32(roundID) * CRASH_SEED_FACTOR)
	crash := HOUSE_EDGE / (1 - r)
	if crash < MIN_MULTIPLIER {
		return MIN_MULTIPLIER
	}
	return crash
}

// MultiplierAt maps elapsed running-time to the current multiplier.
// exp(0.0693 * t) reaches 2.00x at roughly 10 seconds.
func MultiplierAt(elapsedSeconds float64) float64 {
	return math.Exp(GROWTH_CONSTANT * elapsedSeconds)
}
