package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	REDIS_KEY_CURRENT_ROUND = "crash:round:current"

	saveRetries = 3
)

var (
	// ErrNoRound means the store holds no round record yet.
	ErrNoRound = errors.New("no stored round")

	// ErrStaleRoundWrite means the write was based on an outdated record.
	// The caller must reload and re-run its transition logic, never
	// fabricate a new round.
	ErrStaleRoundWrite = errors.New("stale round write")
)

// RoundStore is the persistence port for the canonical round record.
type RoundStore interface {
	LoadRound(ctx context.Context) (RoundRecord, error)
	SaveRound(ctx context.Context, rec RoundRecord) error
}

// RedisRoundStore keeps the record as one JSON value. Concurrent writers
// racing on the same transition converge on identical fields because
// Advance is pure, so last-write-wins is benign; only writes that would
// move the record backwards are rejected.
type RedisRoundStore struct {
	client *redis.Client
}

func NewRedisRoundStore(client *redis.Client) *RedisRoundStore {
	return &RedisRoundStore{client: client}
}

func (s *RedisRoundStore) LoadRound(ctx context.Context) (RoundRecord, error) {
	data, err := s.client.Get(ctx, REDIS_KEY_CURRENT_ROUND).Bytes()
	if err == redis.Nil {
		return RoundRecord{}, ErrNoRound
	}
	if err != nil {
		return RoundRecord{}, fmt.Errorf("load round: %w", err)
	}

	var rec RoundRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return RoundRecord{}, fmt.Errorf("load round: %w", err)
	}
	return rec, nil
}

// SaveRound writes the record under an optimistic WATCH transaction so a
// stale write (older round, or an earlier phase of the same round) is
// detected and discarded instead of clobbering fresher state.
func (s *RedisRoundStore) SaveRound(ctx context.Context, rec RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, REDIS_KEY_CURRENT_ROUND).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var cur RoundRecord
			if json.Unmarshal(stored, &cur) == nil && staleWrite(cur, rec) {
				return ErrStaleRoundWrite
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, REDIS_KEY_CURRENT_ROUND, data, 24*time.Hour)
			return nil
		})
		return err
	}

	for i := 0; i < saveRetries; i++ {
		err := s.client.Watch(ctx, txf, REDIS_KEY_CURRENT_ROUND)
		if err == redis.TxFailedErr {
			continue // key changed under us, re-check freshness
		}
		return err
	}
	return ErrStaleRoundWrite
}

// staleWrite reports whether incoming would move the stored record
// backwards. Within one round the phases are strictly ordered.
func staleWrite(stored, incoming RoundRecord) bool {
	if incoming.RoundID != stored.RoundID {
		return incoming.RoundID < stored.RoundID
	}
	return phaseRank(incoming.Phase) < phaseRank(stored.Phase)
}

func phaseRank(p Phase) int {
	switch p {
	case PhaseCountdown:
		return 0
	case PhaseRunning:
		return 1
	case PhaseCrashed:
		return 2
	}
	return -1
}
