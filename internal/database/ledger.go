package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crashpoll/internal/game"
)

// Ledger is the postgres-backed balance store. Every adjustment lands
// as one transaction that records the idempotency key and moves the
// wallet together, so an at-least-once retry of the same operation is
// a no-op that just reports the current balance.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// GetBalance returns the wallet balance, zero for an unknown wallet.
func (l *Ledger) GetBalance(ctx context.Context, participantID string) (float64, error) {
	var balance float64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE participant_id = $1`, participantID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrLedgerUnavailable, err)
	}
	return balance, nil
}

// AdjustBalance applies a signed delta under an idempotency key. A
// debit that would take the balance below zero returns
// game.ErrInsufficientFunds and leaves both tables untouched.
func (l *Ledger) AdjustBalance(ctx context.Context, participantID string, delta float64, idempotencyKey string) (float64, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (idempotency_key, participant_id, delta)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		idempotencyKey, participantID, delta)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrLedgerUnavailable, err)
	}

	if tag.RowsAffected() == 0 {
		// already applied by an earlier attempt
		var balance float64
		if err := tx.QueryRow(ctx,
			`SELECT balance FROM wallets WHERE participant_id = $1`, participantID).Scan(&balance); err != nil {
			return 0, fmt.Errorf("%w: %v", game.ErrLedgerUnavailable, err)
		}
		log.Printf("[LEDGER] Duplicate adjustment %s ignored", idempotencyKey)
		return balance, nil
	}

	var balance float64
	err = tx.QueryRow(ctx,
		`INSERT INTO wallets (participant_id, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (participant_id) DO UPDATE SET
		   balance = wallets.balance + EXCLUDED.balance,
		   updated_at = now()
		 RETURNING balance`,
		participantID, delta).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrLedgerUnavailable, err)
	}

	if balance < 0 {
		return 0, game.ErrInsufficientFunds // rollback via defer
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrLedgerUnavailable, err)
	}
	return balance, nil
}
