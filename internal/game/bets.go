package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	MIN_BET            = 10.0
	MIN_TARGET_CASHOUT = 1.01

	CREDIT_RETRIES     = 3
	CREDIT_RETRY_DELAY = 100 * time.Millisecond
)

var (
	// ErrInvalidAmount rejects a bet below the minimum or above the
	// available balance, before any ledger call is made.
	ErrInvalidAmount = errors.New("invalid bet amount")

	// ErrCannotCancelActiveBet rejects cancellation once a bet is live.
	ErrCannotCancelActiveBet = errors.New("cannot cancel an active bet")

	// ErrNoActiveBet rejects a cashout with no eligible live bet.
	ErrNoActiveBet = errors.New("no active bet")

	// ErrBetAlreadyPlaced rejects a second wager for the same round.
	ErrBetAlreadyPlaced = errors.New("bet already placed for this round")
)

type BetState string

const (
	BetStateNone      BetState = "NONE"
	BetStateQueued    BetState = "QUEUED"
	BetStatePending   BetState = "PENDING"
	BetStateActive    BetState = "ACTIVE"
	BetStateCashedOut BetState = "CASHED_OUT"
	BetStateLost      BetState = "LOST"
)

// Bet is one participant's wager for one round. ActiveAmount and
// ActiveTarget are snapshotted the instant the round goes RUNNING;
// edits to the inputs after that must not drift into the live wager.
type Bet struct {
	State               BetState `json:"state"`
	RoundID             int64    `json:"round_id,omitempty"`
	Amount              float64  `json:"amount,omitempty"`
	TargetCashout       float64  `json:"target_cashout,omitempty"`
	ActiveAmount        float64  `json:"active_amount,omitempty"`
	ActiveTarget        float64  `json:"active_target,omitempty"`
	MultiplierAtCashout float64  `json:"multiplier_at_cashout,omitempty"`
	Payout              float64  `json:"payout,omitempty"`

	seq int // ledger key disambiguator, see idempotencyKey
}

// participant holds the two slots a player can legally occupy at once:
// the bet for the current (or upcoming) round, and a bet queued during
// a RUNNING round for the round after it.
type participant struct {
	current Bet
	queued  *Bet
	seq     int
}

// ParticipantView is the per-participant answer to "what should my
// screen show right now".
type ParticipantView struct {
	Phase         Phase   `json:"phase"`
	Multiplier    float64 `json:"multiplier"`
	TimeRemaining float64 `json:"time_remaining"`
	Bet           Bet     `json:"bet"`
	Queued        *Bet    `json:"queued,omitempty"`
}

// BetService is the bet lifecycle manager. It owns the per-participant
// state machines exclusively; the only shared mutable state it touches
// is the ledger, and every debit/credit carries an idempotency key so
// retries after partial failure cannot double-apply.
type BetService struct {
	ledger Ledger

	mu           sync.Mutex
	participants map[string]*participant
	roundID      int64
	phase        Phase
	view         LiveView
}

func NewBetService(ledger Ledger) *BetService {
	return &BetService{
		ledger:       ledger,
		participants: make(map[string]*participant),
	}
}

// SetRoundState publishes the engine's latest tick to the service so
// placements and manual cashouts act on the freshest observed view.
// Called by the poller before any phase reactions for the same tick.
func (s *BetService) SetRoundState(roundID int64, phase Phase, view LiveView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundID = roundID
	s.phase = phase
	s.view = view
}

// PlaceBet commits a wager. The amount is debited from the ledger at
// placement time (pessimistic reservation); CancelBet is the only path
// that reverses it. During a RUNNING round the wager is queued for the
// next round, otherwise it is pending for the upcoming RUNNING phase.
func (s *BetService) PlaceBet(ctx context.Context, participantID string, amount, targetCashout float64) (Bet, error) {
	if amount < MIN_BET {
		return Bet{}, ErrInvalidAmount
	}
	if targetCashout < MIN_TARGET_CASHOUT {
		targetCashout = MIN_TARGET_CASHOUT
	}

	balance, err := s.ledger.GetBalance(ctx, participantID)
	if err != nil {
		return Bet{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if amount > balance {
		return Bet{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.participant(participantID)

	var state BetState
	var wagerRound int64

	switch s.phase {
	case PhaseRunning:
		// current bet may be ACTIVE or CASHED_OUT; the new wager
		// rides the queued slot for the next round
		if p.queued != nil {
			return Bet{}, ErrBetAlreadyPlaced
		}
		state = BetStateQueued
		wagerRound = s.roundID + 1

	case PhaseCrashed:
		if p.queued != nil || p.current.State == BetStatePending {
			return Bet{}, ErrBetAlreadyPlaced
		}
		state = BetStatePending
		wagerRound = s.roundID + 1

	default: // COUNTDOWN
		if p.current.State == BetStatePending || p.current.State == BetStateActive {
			return Bet{}, ErrBetAlreadyPlaced
		}
		state = BetStatePending
		wagerRound = s.roundID
	}

	p.seq++
	bet := Bet{
		State:         state,
		RoundID:       wagerRound,
		Amount:        amount,
		TargetCashout: targetCashout,
		seq:           p.seq,
	}

	key := idempotencyKey(participantID, wagerRound, bet.seq, "bet")
	if _, err := s.ledger.AdjustBalance(ctx, participantID, -amount, key); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return Bet{}, ErrInsufficientFunds
		}
		return Bet{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if state == BetStateQueued {
		q := bet
		p.queued = &q
	} else {
		p.current = bet
	}

	log.Printf("[BET] %s placed %.2f @ %.2fx for round %d (%s)",
		participantID, amount, targetCashout, wagerRound, state)
	return bet, nil
}

// CancelBet reverses a QUEUED or PENDING wager, refunding the full
// reserved amount under the same placement sequence. The slot is
// cleared before the refund executes so the wager can never go live
// mid-refund; the credit itself runs outside the state lock.
func (s *BetService) CancelBet(ctx context.Context, participantID string) (Bet, error) {
	s.mu.Lock()
	p := s.participant(participantID)

	var refund credit
	switch {
	case p.queued != nil:
		q := *p.queued
		refund = credit{
			participantID: participantID,
			amount:        q.Amount,
			key:           idempotencyKey(participantID, q.RoundID, q.seq, "refund"),
			roundID:       q.RoundID,
		}
		p.queued = nil

	case p.current.State == BetStatePending:
		cur := p.current
		refund = credit{
			participantID: participantID,
			amount:        cur.Amount,
			key:           idempotencyKey(participantID, cur.RoundID, cur.seq, "refund"),
			roundID:       cur.RoundID,
		}
		p.current = Bet{State: BetStateNone}

	case p.current.State == BetStateActive:
		s.mu.Unlock()
		return Bet{}, ErrCannotCancelActiveBet

	default:
		s.mu.Unlock()
		return Bet{}, ErrNoActiveBet
	}
	s.mu.Unlock()

	if err := s.applyCredit(ctx, refund); err != nil {
		return Bet{}, err
	}
	log.Printf("[BET] %s cancelled bet for round %d", participantID, refund.roundID)
	return Bet{State: BetStateNone}, nil
}

// ManualCashout locks in a payout at the currently observed multiplier.
func (s *BetService) ManualCashout(ctx context.Context, participantID string) (Bet, error) {
	s.mu.Lock()
	p := s.participant(participantID)
	if p.current.State != BetStateActive || s.phase != PhaseRunning {
		s.mu.Unlock()
		return Bet{}, ErrNoActiveBet
	}

	c := markCashedOut(participantID, p, s.view.Multiplier)
	bet := p.current
	s.mu.Unlock()

	if err := s.applyCredit(ctx, c); err != nil {
		return bet, err
	}
	log.Printf("[BET] %s cashed out at %.2fx, payout %.2f", participantID, bet.MultiplierAtCashout, bet.Payout)
	return bet, nil
}

// OnNewRound reacts to the CRASHED->COUNTDOWN boundary: terminal states
// reset to NONE and any queued wager is promoted to PENDING. Exactly
// once per boundary; the poller edge-detects the round id change.
//
// A PENDING bet whose round was skipped entirely (the clock jumped past
// it, so it never went live) is refunded: the stake was reserved at
// placement and there is no LOST settlement to account for it.
func (s *BetService) OnNewRound(ctx context.Context, roundID int64) {
	s.mu.Lock()

	var refunds []credit
	s.roundID = roundID
	for participantID, p := range s.participants {
		switch p.current.State {
		case BetStateCashedOut, BetStateLost, BetStateActive:
			p.current = Bet{State: BetStateNone}
		case BetStatePending:
			// a pending bet placed during the previous CRASHED phase
			// already belongs to this round and survives the boundary
			if p.current.RoundID != roundID {
				refunds = append(refunds, credit{
					participantID: participantID,
					amount:        p.current.Amount,
					key:           idempotencyKey(participantID, p.current.RoundID, p.current.seq, "refund"),
					roundID:       p.current.RoundID,
				})
				p.current = Bet{State: BetStateNone}
			}
		}

		if p.queued != nil && p.queued.RoundID <= roundID {
			promoted := *p.queued
			promoted.State = BetStatePending
			promoted.RoundID = roundID
			p.current = promoted
			p.queued = nil
		}

		if p.current.State == BetStateNone && p.queued == nil {
			delete(s.participants, participantID)
		}
	}
	s.mu.Unlock()

	for _, c := range refunds {
		if err := s.applyCredit(ctx, c); err != nil {
			continue
		}
		log.Printf("[BET] %s pending bet for skipped round %d refunded", c.participantID, c.roundID)
	}
}

// OnRoundRunning reacts to COUNTDOWN->RUNNING: every pending bet goes
// live, snapshotting amount and target at this instant.
func (s *BetService) OnRoundRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for participantID, p := range s.participants {
		if p.current.State != BetStatePending {
			continue
		}
		p.current.State = BetStateActive
		p.current.ActiveAmount = p.current.Amount
		p.current.ActiveTarget = p.current.TargetCashout
		log.Printf("[BET] %s active: %.2f @ %.2fx", participantID, p.current.ActiveAmount, p.current.ActiveTarget)
	}
}

// OnRunningTick fires auto-cashouts. Payout uses the registered target,
// not the possibly-higher multiplier observed this tick, and each bet
// settles at most once (the state transition is the guard). The poller
// calls this before marking bets lost when a crash lands on the same
// tick, so reaching the target always wins over a simultaneous crash.
func (s *BetService) OnRunningTick(ctx context.Context, multiplier float64) {
	s.mu.Lock()
	var credits []credit
	for participantID, p := range s.participants {
		if p.current.State != BetStateActive || multiplier < p.current.ActiveTarget {
			continue
		}
		credits = append(credits, markCashedOut(participantID, p, p.current.ActiveTarget))
		log.Printf("[BET] %s cashed out at %.2fx, payout %.2f",
			participantID, p.current.MultiplierAtCashout, p.current.Payout)
	}
	s.mu.Unlock()

	for _, c := range credits {
		s.applyCredit(ctx, c)
	}
}

// OnRoundCrashed reacts to RUNNING->CRASHED: every bet still live is
// lost. No ledger action; the wager was debited at placement.
func (s *BetService) OnRoundCrashed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for participantID, p := range s.participants {
		if p.current.State != BetStateActive {
			continue
		}
		p.current.State = BetStateLost
		log.Printf("[BET] %s lost %.2f", participantID, p.current.ActiveAmount)
	}
}

// CurrentView assembles the per-participant poll response.
func (s *BetService) CurrentView(participantID string) ParticipantView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := ParticipantView{
		Phase:         s.phase,
		Multiplier:    s.view.Multiplier,
		TimeRemaining: s.view.TimeRemaining,
		Bet:           Bet{State: BetStateNone},
	}

	p, ok := s.participants[participantID]
	if !ok {
		return view
	}
	view.Bet = p.current
	if p.queued != nil {
		q := *p.queued
		view.Queued = &q
	}
	return view
}

// credit is one ledger payout or refund queued under the state lock
// and executed after it is released, so retry sleeps never stall
// placements, manual cashouts or the poll tick.
type credit struct {
	participantID string
	amount        float64
	key           string
	roundID       int64
}

// markCashedOut transitions the bet and returns the credit to apply.
// The transition happens before any ledger call so a bet can never
// settle twice. Must be called with s.mu held.
func markCashedOut(participantID string, p *participant, multiplier float64) credit {
	p.current.State = BetStateCashedOut
	p.current.MultiplierAtCashout = multiplier
	p.current.Payout = p.current.ActiveAmount * multiplier
	return credit{
		participantID: participantID,
		amount:        p.current.Payout,
		key:           idempotencyKey(participantID, p.current.RoundID, p.current.seq, "cashout"),
		roundID:       p.current.RoundID,
	}
}

// applyCredit runs one queued credit with retries. A credit that still
// fails is surfaced to the caller and logged operator-visibly; it is
// never silently dropped — the idempotency key stays valid for replay
// once the ledger recovers.
func (s *BetService) applyCredit(ctx context.Context, c credit) error {
	if _, err := s.creditWithRetry(ctx, c.participantID, c.amount, c.key); err != nil {
		log.Printf("[LEDGER] PERMANENT FAILURE: credit %s (%.2f) not applied: %v", c.key, c.amount, err)
		return err
	}
	return nil
}

// creditWithRetry retries a credit with the same idempotency key, so a
// success on any attempt applies exactly once. Never called with s.mu
// held.
func (s *BetService) creditWithRetry(ctx context.Context, participantID string, amount float64, key string) (float64, error) {
	var lastErr error
	for i := 0; i < CREDIT_RETRIES; i++ {
		balance, err := s.ledger.AdjustBalance(ctx, participantID, amount, key)
		if err == nil {
			return balance, nil
		}
		lastErr = err
		time.Sleep(CREDIT_RETRY_DELAY)
	}
	return 0, fmt.Errorf("%w: %v", ErrLedgerUnavailable, lastErr)
}

func (s *BetService) participant(participantID string) *participant {
	p, ok := s.participants[participantID]
	if !ok {
		p = &participant{current: Bet{State: BetStateNone}}
		s.participants[participantID] = p
	}
	return p
}
