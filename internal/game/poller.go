package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const POLL_INTERVAL = 100 * time.Millisecond

// Poller is the cooperative polling loop driving the round engine. Each
// tick it re-derives the canonical record from wall-clock time, persists
// observed transitions, and reacts to them exactly once: it compares the
// previously observed phase and round id against the new ones and only
// fires the bet lifecycle and opponent reactions on change.
//
// The engine itself has no authoritative server process; any number of
// pollers against the same store converge on the same record because
// Advance is a pure function of (record, now).
type Poller struct {
	store RoundStore
	bets  *BetService
	hub   *Hub // optional

	mu        sync.RWMutex
	record    RoundRecord
	view      LiveView
	opponents []Opponent

	lastRoundID int64
	lastPhase   Phase
}

func NewPoller(store RoundStore, bets *BetService, hub *Hub) *Poller {
	return &Poller{
		store: store,
		bets:  bets,
		hub:   hub,
	}
}

// Run steps the engine at a fixed rate until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(POLL_INTERVAL)
	defer ticker.Stop()

	log.Println("[ROUND] Poller started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[ROUND] Poller stopped")
			return
		case <-ticker.C:
			p.Step(ctx, time.Now())
		}
	}
}

// Step performs one tick: load, advance, persist, react. Exposed so
// tests can drive the engine with synthetic clocks.
func (p *Poller) Step(ctx context.Context, now time.Time) {
	rec := p.loadOrInit(ctx, now)

	next, changed := Advance(rec, now)
	if changed {
		if err := p.store.SaveRound(ctx, next); err != nil {
			if errors.Is(err, ErrStaleRoundWrite) {
				// another writer got there first; both computed the
				// same transition, but theirs may already be newer
				if stored, lerr := p.store.LoadRound(ctx); lerr == nil && stored.Valid() {
					next = stored
				}
			} else {
				log.Printf("[ROUND] save failed, continuing on local record: %v", err)
			}
		}
	}

	view := Live(next, now)

	// advance -> liveView -> reactions, in that order
	p.bets.SetRoundState(next.RoundID, next.Phase, view)

	newRound := next.RoundID != p.lastRoundID
	phaseChanged := newRound || next.Phase != p.lastPhase

	p.mu.Lock()
	if newRound {
		p.opponents = GenerateOpponents(next.RoundID)
	}
	p.record = next
	p.view = view
	p.mu.Unlock()

	if newRound {
		p.bets.OnNewRound(ctx, next.RoundID)
		p.broadcast("round_start", next.RoundID, view)
	}

	if phaseChanged {
		switch next.Phase {
		case PhaseRunning:
			p.bets.OnRoundRunning()
			p.broadcast("round_running", next.RoundID, view)
		case PhaseCrashed:
			// auto-cashout is evaluated before the crash settles bets:
			// reaching the target on the crash tick wins over the crash
			p.bets.OnRunningTick(ctx, view.Multiplier)
			p.bets.OnRoundCrashed()
			p.mu.Lock()
			TickOpponents(p.opponents, view.Multiplier)
			SettleOpponents(p.opponents)
			p.mu.Unlock()
			p.broadcast("crash", next.RoundID, view)
		}
	}

	if next.Phase == PhaseRunning {
		p.bets.OnRunningTick(ctx, view.Multiplier)
		p.mu.Lock()
		TickOpponents(p.opponents, view.Multiplier)
		p.mu.Unlock()
		if !phaseChanged {
			p.broadcast("update", next.RoundID, view)
		}
	}

	p.lastRoundID = next.RoundID
	p.lastPhase = next.Phase
}

// CurrentRound returns a copy of the latest observed record.
func (p *Poller) CurrentRound() RoundRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec := p.record
	rec.History = append([]float64(nil), p.record.History...)
	return rec
}

// CurrentView returns the latest display projection.
func (p *Poller) CurrentView() LiveView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// Opponents returns a copy of this round's roster.
func (p *Poller) Opponents() []Opponent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Opponent(nil), p.opponents...)
}

// loadOrInit fetches the shared record. When the store is unreachable or
// holds nothing usable it falls back to the last locally observed record,
// and only a process with no history at all initializes round 1. Recovery
// is local; it is never surfaced to participants.
func (p *Poller) loadOrInit(ctx context.Context, now time.Time) RoundRecord {
	rec, err := p.store.LoadRound(ctx)
	if err == nil && rec.Valid() {
		return rec
	}
	if err != nil && !errors.Is(err, ErrNoRound) {
		log.Printf("[ROUND] load failed, continuing on local record: %v", err)
	}

	p.mu.RLock()
	local := p.record
	p.mu.RUnlock()
	if local.Valid() {
		return local
	}

	rec = NewRound(1, now)
	if err := p.store.SaveRound(ctx, rec); err != nil && !errors.Is(err, ErrStaleRoundWrite) {
		log.Printf("[ROUND] initial save failed: %v", err)
	}
	return rec
}

func (p *Poller) broadcast(event string, roundID int64, view LiveView) {
	if p.hub == nil {
		return
	}
	p.hub.Broadcast(RoundMessage{
		Type:          event,
		RoundID:       roundID,
		Phase:         view.Phase,
		Multiplier:    view.Multiplier,
		TimeRemaining: view.TimeRemaining,
	})
}
