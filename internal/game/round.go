package game

import (
	"time"
)

type Phase string

const (
	PhaseCountdown Phase = "COUNTDOWN"
	PhaseRunning   Phase = "RUNNING"
	PhaseCrashed   Phase = "CRASHED"
)

const HISTORY_LIMIT = 100

// RoundRecord is the single canonical record of game progress, shared by
// every polling client through the round store. All fields a client needs
// to recompute the current phase and multiplier from wall-clock time ride
// in this record; serving layers must hide CrashPoint until it is reached.
type RoundRecord struct {
	RoundID    int64     `json:"round_id"`
	Phase      Phase     `json:"phase"`
	PhaseStart time.Time `json:"phase_start"`
	CrashPoint float64   `json:"crash_point"`
	History    []float64 `json:"history"`
}

// LiveView is the display-safe projection of a round at an instant.
type LiveView struct {
	Phase         Phase   `json:"phase"`
	Multiplier    float64 `json:"multiplier"`
	TimeRemaining float64 `json:"time_remaining"`
}

// NewRound creates the canonical record for a fresh round starting now.
// First-ever creation uses roundID 1 and an empty history.
func NewRound(roundID int64, now time.Time) RoundRecord {
	return RoundRecord{
		RoundID:    roundID,
		Phase:      PhaseCountdown,
		PhaseStart: now,
		CrashPoint: GenerateCrashPoint(roundID),
	}
}

// Valid reports whether a stored record is usable. Malformed records
// (zero round id, unknown phase, out-of-range crash point) are recovered
// from by falling back to a freshly-initialized round.
func (r RoundRecord) Valid() bool {
	if r.RoundID < 1 || r.CrashPoint < MIN_MULTIPLIER || r.PhaseStart.IsZero() {
		return false
	}
	switch r.Phase {
	case PhaseCountdown, PhaseRunning, PhaseCrashed:
		return true
	}
	return false
}

// Advance recomputes the round state from elapsed wall-clock time. Pure:
// it never touches shared state and applies at most one transition per
// call, re-anchoring PhaseStart at the transition instant. Calling it
// again with the same now on its own output is a no-op.
//
// Callers are expected to poll frequently enough that at most one
// transition is due per call; a process waking from a long suspension
// fast-forwards by advancing once per tick until it catches up.
func Advance(rec RoundRecord, now time.Time) (RoundRecord, bool) {
	elapsed := now.Sub(rec.PhaseStart)

	switch rec.Phase {
	case PhaseCountdown:
		if elapsed >= COUNTDOWN_DURATION {
			rec.Phase = PhaseRunning
			rec.PhaseStart = now
			return rec, true
		}

	case PhaseRunning:
		if MultiplierAt(elapsed.Seconds()) >= rec.CrashPoint {
			rec.Phase = PhaseCrashed
			rec.History = prependHistory(rec.History, rec.CrashPoint)
			rec.PhaseStart = now
			return rec, true
		}

	case PhaseCrashed:
		if elapsed >= COOLDOWN_DURATION {
			rec.RoundID++
			rec.Phase = PhaseCountdown
			rec.PhaseStart = now
			rec.CrashPoint = GenerateCrashPoint(rec.RoundID)
			return rec, true
		}
	}

	return rec, false
}

// Live derives the display values for a record at an instant. During
// RUNNING the multiplier is clamped to the crash point so the display
// never overshoots before the crash transition is observed.
func Live(rec RoundRecord, now time.Time) LiveView {
	view := LiveView{Phase: rec.Phase, Multiplier: MIN_MULTIPLIER}

	switch rec.Phase {
	case PhaseCountdown:
		remaining := COUNTDOWN_DURATION - now.Sub(rec.PhaseStart)
		if remaining > 0 {
			view.TimeRemaining = remaining.Seconds()
		}

	case PhaseRunning:
		m := MultiplierAt(now.Sub(rec.PhaseStart).Seconds())
		if m > rec.CrashPoint {
			m = rec.CrashPoint
		}
		view.Multiplier = m

	case PhaseCrashed:
		view.Multiplier = rec.CrashPoint
	}

	return view
}

// prependHistory puts the newest crash point at index 0 and evicts the
// oldest entries past HISTORY_LIMIT. Always copies so concurrent readers
// of the previous record are unaffected.
func prependHistory(history []float64, crashPoint float64) []float64 {
	n := len(history) + 1
	if n > HISTORY_LIMIT {
		n = HISTORY_LIMIT
	}
	out := make([]float64, n)
	out[0] = crashPoint
	copy(out[1:], history)
	return out
}
