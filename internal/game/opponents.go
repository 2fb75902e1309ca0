package game

import "math"

const (
	BOT_SEED_FACTOR = 12345

	MIN_OPPONENTS = 5
)

// Cosmetic co-players shown alongside the participant. Regenerated fully
// at the start of every round from a round-keyed seed, never persisted.

type OpponentStatus string

const (
	OpponentActive    OpponentStatus = "ACTIVE"
	OpponentCashedOut OpponentStatus = "CASHED_OUT"
	OpponentLost      OpponentStatus = "LOST"
)

type Opponent struct {
	Name              string         `json:"name"`
	BetAmount         float64        `json:"bet_amount"`
	TargetCashout     float64        `json:"target_cashout"`
	Status            OpponentStatus `json:"status"`
	CashoutMultiplier float64        `json:"cashout_multiplier,omitempty"`
	Profit            float64        `json:"profit"`
}

var opponentNames = []string{
	"Aarav", "Vivaan", "Aditya", "Vihaan", "Arjun", "Sai", "Reyansh",
	"Ayaan", "Krishna", "Ishaan", "Priya", "Ananya", "Diya", "Riya",
	"Saanvi", "Kabir", "Neha", "Rohan", "Sonia", "Vikram",
}

// GenerateOpponents produces the deterministic roster for a round. The
// draw order is fixed: count first, then name, bet and target per
// opponent, so every client derives the identical population.
func GenerateOpponents(roundID int64) []Opponent {
	state := uint32(roundID) * BOT_SEED_FACTOR

	var r float64
	r, state = NextRand(state)
	count := int(r*10) + MIN_OPPONENTS

	opponents := make([]Opponent, 0, count)
	for i := 0; i < count; i++ {
		var name, bet, target float64
		name, state = NextRand(state)
		bet, state = NextRand(state)
		target, state = NextRand(state)

		opponents = append(opponents, Opponent{
			Name:          opponentNames[int(name*float64(len(opponentNames)))],
			BetAmount:     round2(bet*500 + 10),
			TargetCashout: round2(target*5 + 1.1),
			Status:        OpponentActive,
		})
	}
	return opponents
}

// TickOpponents cashes out every opponent whose target the live
// multiplier has reached, recording profit at the target.
func TickOpponents(opponents []Opponent, multiplier float64) {
	for i := range opponents {
		o := &opponents[i]
		if o.Status != OpponentActive || multiplier < o.TargetCashout {
			continue
		}
		o.Status = OpponentCashedOut
		o.CashoutMultiplier = o.TargetCashout
		o.Profit = round2(o.BetAmount * (o.TargetCashout - 1))
	}
}

// SettleOpponents marks everyone still active as lost after a crash.
func SettleOpponents(opponents []Opponent) {
	for i := range opponents {
		o := &opponents[i]
		if o.Status != OpponentActive {
			continue
		}
		o.Status = OpponentLost
		o.Profit = -o.BetAmount
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
