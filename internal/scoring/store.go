package scoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store appends lead tier transitions to the audit table.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

// InsertTransition appends one (old tier, new tier) audit row.
func (s *Store) InsertTransition(ctx context.Context, conversationID uuid.UUID, oldTier, newTier string) error {
	query := `
		INSERT INTO lead_score_history (id, conversation_id, old_tier, new_tier)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, uuid.New(), conversationID, oldTier, newTier); err != nil {
		return fmt.Errorf("scoring: insert transition: %w", err)
	}
	return nil
}
