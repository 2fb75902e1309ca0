package game

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is the ledger-side rejection of a debit.
	// The caller must not mark the bet as placed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLedgerUnavailable marks a transient ledger failure. The same
	// idempotency key must be retried until the operation lands.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Ledger is the external balance store credited and debited by wager
// placement and settlement. AdjustBalance must be idempotent under the
// given key: retrying an already-applied adjustment is a no-op that
// returns the current balance.
type Ledger interface {
	GetBalance(ctx context.Context, participantID string) (float64, error)
	AdjustBalance(ctx context.Context, participantID string, delta float64, idempotencyKey string) (float64, error)
}

// idempotencyKey builds the stable key for one ledger operation. The
// placement sequence disambiguates a re-placed bet in the same round
// (cancel then bet again) while retries of the same operation reuse the
// same key.
func idempotencyKey(participantID string, roundID int64, seq int, action string) string {
	return fmt.Sprintf("%s:%d:%d:%s", participantID, roundID, seq, action)
}
