package game

import (
	"math"
	"testing"
	"time"
)

func TestNewRound(t *testing.T) {
	now := time.Now()
	rec := NewRound(1, now)

	if rec.RoundID != 1 {
		t.Errorf("RoundID = %v, want 1", rec.RoundID)
	}
	if rec.Phase != PhaseCountdown {
		t.Errorf("Phase = %v, want %v", rec.Phase, PhaseCountdown)
	}
	if !rec.PhaseStart.Equal(now) {
		t.Errorf("PhaseStart = %v, want %v", rec.PhaseStart, now)
	}
	if rec.CrashPoint != GenerateCrashPoint(1) {
		t.Errorf("CrashPoint = %v, want %v", rec.CrashPoint, GenerateCrashPoint(1))
	}
	if len(rec.History) != 0 {
		t.Errorf("History length = %v, want 0", len(rec.History))
	}
}

func TestRoundRecord_Valid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rec  RoundRecord
		want bool
	}{
		{name: "fresh round", rec: NewRound(1, now), want: true},
		{name: "zero round id", rec: RoundRecord{Phase: PhaseCountdown, PhaseStart: now, CrashPoint: 1.5}, want: false},
		{name: "unknown phase", rec: RoundRecord{RoundID: 1, Phase: "WAITING", PhaseStart: now, CrashPoint: 1.5}, want: false},
		{name: "crash below floor", rec: RoundRecord{RoundID: 1, Phase: PhaseRunning, PhaseStart: now, CrashPoint: 0.5}, want: false},
		{name: "zero phase start", rec: RoundRecord{RoundID: 1, Phase: PhaseRunning, CrashPoint: 1.5}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvance_CountdownHolds(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)

	next, changed := Advance(rec, start.Add(COUNTDOWN_DURATION-time.Millisecond))
	if changed {
		t.Error("Advance() transitioned before the countdown elapsed")
	}
	if next.Phase != PhaseCountdown {
		t.Errorf("Phase = %v, want %v", next.Phase, PhaseCountdown)
	}
}

func TestAdvance_CountdownToRunning(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)

	now := start.Add(COUNTDOWN_DURATION)
	next, changed := Advance(rec, now)
	if !changed {
		t.Fatal("Advance() did not transition at countdown expiry")
	}
	if next.Phase != PhaseRunning {
		t.Errorf("Phase = %v, want %v", next.Phase, PhaseRunning)
	}
	if !next.PhaseStart.Equal(now) {
		t.Errorf("PhaseStart not re-anchored: %v, want %v", next.PhaseStart, now)
	}
}

func TestAdvance_RunningToCrashed(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)
	rec.Phase = PhaseRunning

	// find the instant the multiplier reaches the crash point
	crashAfter := math.Log(rec.CrashPoint) / GROWTH_CONSTANT

	before := start.Add(time.Duration((crashAfter - 0.05) * float64(time.Second)))
	if _, changed := Advance(rec, before); changed {
		t.Error("Advance() crashed before the multiplier reached the crash point")
	}

	now := start.Add(time.Duration((crashAfter + 0.05) * float64(time.Second)))
	next, changed := Advance(rec, now)
	if !changed {
		t.Fatal("Advance() did not crash past the crash point")
	}
	if next.Phase != PhaseCrashed {
		t.Errorf("Phase = %v, want %v", next.Phase, PhaseCrashed)
	}
	if len(next.History) != 1 || next.History[0] != rec.CrashPoint {
		t.Errorf("History = %v, want [%v]", next.History, rec.CrashPoint)
	}
}

func TestAdvance_CrashedToNextRound(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)
	rec.Phase = PhaseCrashed
	rec.History = []float64{rec.CrashPoint}

	next, changed := Advance(rec, start.Add(COOLDOWN_DURATION))
	if !changed {
		t.Fatal("Advance() did not roll over after the cooldown")
	}
	if next.RoundID != 2 {
		t.Errorf("RoundID = %v, want 2", next.RoundID)
	}
	if next.Phase != PhaseCountdown {
		t.Errorf("Phase = %v, want %v", next.Phase, PhaseCountdown)
	}
	if next.CrashPoint != GenerateCrashPoint(2) {
		t.Errorf("CrashPoint = %v, want %v", next.CrashPoint, GenerateCrashPoint(2))
	}
	if len(next.History) != 1 {
		t.Errorf("History carried over: length %v, want 1", len(next.History))
	}
}

func TestAdvance_Idempotent(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)
	now := start.Add(COUNTDOWN_DURATION)

	first, changed := Advance(rec, now)
	if !changed {
		t.Fatal("expected a transition")
	}

	// re-advancing the output at the same instant must be a no-op
	second, changed := Advance(first, now)
	if changed {
		t.Error("Advance() re-applied a transition at the same instant")
	}
	if second.Phase != first.Phase || second.RoundID != first.RoundID {
		t.Errorf("record drifted: got %+v, want %+v", second, first)
	}
}

func TestAdvance_OneTransitionPerCall(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)

	// far enough for countdown AND crash to both be overdue
	now := start.Add(time.Hour)
	next, changed := Advance(rec, now)
	if !changed {
		t.Fatal("expected a transition")
	}
	if next.Phase != PhaseRunning {
		t.Errorf("Phase = %v, want %v (one step at a time)", next.Phase, PhaseRunning)
	}

	// second call catches up the crash
	next, changed = Advance(next, now.Add(time.Hour))
	if !changed || next.Phase != PhaseCrashed {
		t.Errorf("Phase = %v changed=%v, want CRASHED after second call", next.Phase, changed)
	}
}

func TestLive_Countdown(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)

	view := Live(rec, start.Add(2*time.Second))
	if view.Phase != PhaseCountdown {
		t.Errorf("Phase = %v, want %v", view.Phase, PhaseCountdown)
	}
	if view.Multiplier != MIN_MULTIPLIER {
		t.Errorf("Multiplier = %v, want %v", view.Multiplier, MIN_MULTIPLIER)
	}
	if math.Abs(view.TimeRemaining-3.0) > 0.001 {
		t.Errorf("TimeRemaining = %v, want 3.0", view.TimeRemaining)
	}

	// overdue countdown never reports negative remaining
	view = Live(rec, start.Add(10*time.Second))
	if view.TimeRemaining != 0 {
		t.Errorf("TimeRemaining = %v, want 0 when overdue", view.TimeRemaining)
	}
}

func TestLive_RunningClampedToCrashPoint(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)
	rec.Phase = PhaseRunning
	rec.CrashPoint = 1.5

	view := Live(rec, start.Add(5*time.Second))
	if view.Multiplier != MultiplierAt(5) {
		t.Errorf("Multiplier = %v, want %v", view.Multiplier, MultiplierAt(5))
	}

	// way past the crash instant the view pins to the crash point
	view = Live(rec, start.Add(time.Minute))
	if view.Multiplier != rec.CrashPoint {
		t.Errorf("Multiplier = %v, want clamp to %v", view.Multiplier, rec.CrashPoint)
	}
}

func TestLive_Crashed(t *testing.T) {
	start := time.Now()
	rec := NewRound(1, start)
	rec.Phase = PhaseCrashed
	rec.CrashPoint = 2.75

	view := Live(rec, start.Add(time.Second))
	if view.Multiplier != 2.75 {
		t.Errorf("Multiplier = %v, want 2.75", view.Multiplier)
	}
}

func TestPrependHistory(t *testing.T) {
	t.Run("newest first", func(t *testing.T) {
		got := prependHistory([]float64{2.0, 3.0}, 1.5)
		if len(got) != 3 || got[0] != 1.5 || got[1] != 2.0 {
			t.Errorf("prependHistory() = %v, want [1.5 2 3]", got)
		}
	})

	t.Run("caps at limit", func(t *testing.T) {
		full := make([]float64, HISTORY_LIMIT)
		for i := range full {
			full[i] = float64(i)
		}
		got := prependHistory(full, 99.9)
		if len(got) != HISTORY_LIMIT {
			t.Errorf("length = %v, want %v", len(got), HISTORY_LIMIT)
		}
		if got[0] != 99.9 {
			t.Errorf("got[0] = %v, want 99.9", got[0])
		}
		if got[HISTORY_LIMIT-1] != full[HISTORY_LIMIT-2] {
			t.Error("oldest entry was not evicted")
		}
	})

	t.Run("does not alias input", func(t *testing.T) {
		in := []float64{2.0}
		got := prependHistory(in, 1.5)
		got[1] = 42
		if in[0] != 2.0 {
			t.Error("prependHistory() mutated its input")
		}
	})
}

func BenchmarkAdvance(b *testing.B) {
	start := time.Now()
	rec := NewRound(1, start)
	now := start.Add(time.Second)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Advance(rec, now)
	}
}
