package conversation

import (
	"context"
	"fmt"
	"time"

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

// Store persists conversations in Postgres.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

const conversationColumns = `id, channel, address, status, stage, lead_tier, human_flag,
		profile_tag, quote_sent, followup_attempts, last_followup_at,
		last_user_message_at, created_at, updated_at`

// Ensure returns the conversation for (channel, address), creating it on
// first contact. Concurrent calls converge on the same row.
func (s *Store) Ensure(ctx context.Context, channel, address string) (Conversation, error) {
	query := `
		INSERT INTO conversations (id, channel, address, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (channel, address) DO UPDATE SET updated_at = now()
		RETURNING ` + conversationColumns
	row := s.pool.QueryRow(ctx, query, uuid.New(), channel, address, StatusActive)
	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation: ensure: %w", err)
	}
	return conv, nil
}

// Get fetches a conversation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation: get: %w", err)
	}
	return conv, nil
}

// TouchUserActivity records that the user wrote at the given instant.
func (s *Store) TouchUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_user_message_at = $2, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, at.UTC()); err != nil {
		return fmt.Errorf("conversation: touch activity: %w", err)
	}
	return nil
}

// UpdateStage moves the conversation to a new stage.
func (s *Store) UpdateStage(ctx context.Context, id uuid.UUID, stage string) error {
	query := `UPDATE conversations SET stage = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, stage); err != nil {
		return fmt.Errorf("conversation: update stage: %w", err)
	}
	return nil
}

// SetTier stores a new lead tier. Returns true only when the tier actually
// changed, so callers can append history exactly once per change.
func (s *Store) SetTier(ctx context.Context, id uuid.UUID, tier string) (bool, error) {
	query := `
		UPDATE conversations
		SET lead_tier = $2, updated_at = now()
		WHERE id = $1 AND lead_tier <> $2
	`
	tag, err := s.pool.Exec(ctx, query, id, tier)
	if err != nil {
		return false, fmt.Errorf("conversation: set tier: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetHumanFlag hands the conversation to a human (or back to the bot).
func (s *Store) SetHumanFlag(ctx context.Context, id uuid.UUID, human bool) error {
	query := `UPDATE conversations SET human_flag = $2, updated_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, human); err != nil {
		return fmt.Errorf("conversation: set human flag: %w", err)
	}
	return nil
}

// MarkQuoteSent flags that a quote went out and pins the protected stage.
// Returns false when the quote was already marked.
func (s *Store) MarkQuoteSent(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE conversations
		SET quote_sent = TRUE, stage = $2, updated_at = now()
		WHERE id = $1 AND quote_sent = FALSE
	`
	tag, err := s.pool.Exec(ctx, query, id, StageQuoteSent)
	if err != nil {
		return false, fmt.Errorf("conversation: mark quote sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFollowup claims one follow-up attempt. The attempt cap and the
// minimum spacing are enforced in the same guarded update so concurrent
// pollers cannot double-send.
func (s *Store) RecordFollowup(ctx context.Context, id uuid.UUID, maxAttempts int, notBefore time.Time) (bool, error) {
	query := `
		UPDATE conversations
		SET followup_attempts = followup_attempts + 1,
			last_followup_at = now(),
			updated_at = now()
		WHERE id = $1
			AND followup_attempts < $2
			AND (last_followup_at IS NULL OR last_followup_at <= $3)
	`
	tag, err := s.pool.Exec(ctx, query, id, maxAttempts, notBefore.UTC())
	if err != nil {
		return false, fmt.Errorf("conversation: record followup: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListFollowupCandidates returns conversations of the given tier whose users
// went quiet before idleSince, still under the attempt cap, not handed to a
// human, and not in a protected stage.
func (s *Store) ListFollowupCandidates(ctx context.Context, tier string, idleSince time.Time, maxAttempts, limit int) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE status = $1
			AND lead_tier = $2
			AND human_flag = FALSE
			AND stage <> $3
			AND followup_attempts < $4
			AND last_user_message_at IS NOT NULL
			AND last_user_message_at <= $5
			AND (last_followup_at IS NULL OR last_followup_at <= $5)
		ORDER BY last_user_message_at ASC
		LIMIT $6
	`
	rows, err := s.pool.Query(ctx, query, StatusActive, tier, StageQuoteSent, maxAttempts, idleSince.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list followup candidates: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

// ListQuoteCandidates returns conversations parked in the quote-sent stage
// whose users went quiet before idleSince. The quote_sent flag gates the
// re-engagement so a manually retagged stage never triggers it.
func (s *Store) ListQuoteCandidates(ctx context.Context, idleSince time.Time, maxAttempts, limit int) ([]Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE status = $1
			AND human_flag = FALSE
			AND stage = $2
			AND quote_sent = TRUE
			AND followup_attempts < $3
			AND last_user_message_at IS NOT NULL
			AND last_user_message_at <= $4
			AND (last_followup_at IS NULL OR last_followup_at <= $4)
		ORDER BY last_user_message_at ASC
		LIMIT $5
	`
	rows, err := s.pool.Query(ctx, query, StatusActive, StageQuoteSent, maxAttempts, idleSince.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list quote candidates: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

// ResetStaleStages clears in-flight stages untouched since the cutoff, and
// returns the affected conversations so the caller can drop their buffered
// state. The guard is updated_at, not the user's last message: a stage just
// parked by the survey loop touches updated_at and must survive until the
// user had a chance to answer.
func (s *Store) ResetStaleStages(ctx context.Context, cutoff time.Time, limit int) ([]Conversation, error) {
	query := `
		UPDATE conversations
		SET stage = '', updated_at = now()
		WHERE id IN (
			SELECT id FROM conversations
			WHERE stage LIKE 'esperando_%'
				AND updated_at <= $1
			LIMIT $2
		)
		RETURNING ` + conversationColumns
	rows, err := s.pool.Query(ctx, query, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: reset stale stages: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

func collectConversations(rows pgx.Rows) ([]Conversation, error) {
	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.Channel, &c.Address, &c.Status, &c.Stage, &c.LeadTier,
		&c.HumanFlag, &c.ProfileTag, &c.QuoteSent, &c.FollowupAttempts,
		&c.LastFollowupAt, &c.LastUserMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
