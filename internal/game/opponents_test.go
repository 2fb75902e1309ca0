package game

import (
	"testing"
)

func TestGenerateOpponents_Deterministic(t *testing.T) {
	a := GenerateOpponents(7)
	b := GenerateOpponents(7)

	if len(a) != len(b) {
		t.Fatalf("roster sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("opponent %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerateOpponents_PinnedRoundOne(t *testing.T) {
	got := GenerateOpponents(1)

	if len(got) != 14 {
		t.Fatalf("len = %v, want 14", len(got))
	}

	want := []Opponent{
		{Name: "Reyansh", BetAmount: 252.1, TargetCashout: 5.19, Status: OpponentActive},
		{Name: "Priya", BetAmount: 183.74, TargetCashout: 1.47, Status: OpponentActive},
		{Name: "Kabir", BetAmount: 508.41, TargetCashout: 5.23, Status: OpponentActive},
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("opponent %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestGenerateOpponents_Bounds(t *testing.T) {
	for roundID := int64(1); roundID <= 500; roundID++ {
		roster := GenerateOpponents(roundID)

		if len(roster) < MIN_OPPONENTS || len(roster) > MIN_OPPONENTS+9 {
			t.Fatalf("round %d: count = %v, want [%v,%v]", roundID, len(roster), MIN_OPPONENTS, MIN_OPPONENTS+9)
		}
		for _, o := range roster {
			if o.BetAmount < 10 || o.BetAmount > 510 {
				t.Fatalf("round %d: bet %v out of range", roundID, o.BetAmount)
			}
			if o.TargetCashout < 1.1 || o.TargetCashout > 6.1 {
				t.Fatalf("round %d: target %v out of range", roundID, o.TargetCashout)
			}
			if o.Status != OpponentActive {
				t.Fatalf("round %d: fresh opponent status %v, want ACTIVE", roundID, o.Status)
			}
		}
	}
}

func TestGenerateOpponents_VariesByRound(t *testing.T) {
	a := GenerateOpponents(1)
	b := GenerateOpponents(2)

	if len(a) == len(b) {
		same := true
		for i := range a {
			if a[i] != b[i] {
				same = false
				break
			}
		}
		if same {
			t.Error("rosters for different rounds are identical (unlikely)")
		}
	}
}

func TestTickOpponents(t *testing.T) {
	roster := []Opponent{
		{Name: "A", BetAmount: 100, TargetCashout: 1.5, Status: OpponentActive},
		{Name: "B", BetAmount: 100, TargetCashout: 3.0, Status: OpponentActive},
	}

	TickOpponents(roster, 2.0)

	if roster[0].Status != OpponentCashedOut {
		t.Errorf("A status = %v, want CASHED_OUT", roster[0].Status)
	}
	if roster[0].CashoutMultiplier != 1.5 {
		t.Errorf("A cashed out at %v, want its target 1.5", roster[0].CashoutMultiplier)
	}
	if roster[0].Profit != 50 {
		t.Errorf("A profit = %v, want 50", roster[0].Profit)
	}
	if roster[1].Status != OpponentActive {
		t.Errorf("B status = %v, want still ACTIVE", roster[1].Status)
	}

	// second tick must not re-settle
	TickOpponents(roster, 10.0)
	if roster[0].CashoutMultiplier != 1.5 {
		t.Error("cashed-out opponent was settled again")
	}
}

func TestSettleOpponents(t *testing.T) {
	roster := []Opponent{
		{Name: "A", BetAmount: 100, TargetCashout: 1.5, Status: OpponentCashedOut, CashoutMultiplier: 1.5, Profit: 50},
		{Name: "B", BetAmount: 80, TargetCashout: 3.0, Status: OpponentActive},
	}

	SettleOpponents(roster)

	if roster[0].Status != OpponentCashedOut || roster[0].Profit != 50 {
		t.Errorf("winner was disturbed: %+v", roster[0])
	}
	if roster[1].Status != OpponentLost {
		t.Errorf("B status = %v, want LOST", roster[1].Status)
	}
	if roster[1].Profit != -80 {
		t.Errorf("B profit = %v, want -80", roster[1].Profit)
	}
}

func BenchmarkGenerateOpponents(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateOpponents(int64(i) + 1)
	}
}
