package messaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the interaction store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	TypeText  = "text"
	TypeImage = "image"
)

// Interaction is one logged message in a conversation, either direction.
type Interaction struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Type           string
	Body           string
	MediaURL       string
	MessageHash    string
	CreatedAt      time.Time
}

// InteractionStore persists the message history of every conversation in
// Postgres. The message hash doubles as an idempotency ledger: duplicate
// writes of the same body within the same minute collapse into one row.
type InteractionStore struct {
	pool Querier
}

func NewInteractionStore(pool Querier) *InteractionStore {
	return &InteractionStore{pool: pool}
}

// MessageHash derives the dedupe key for a logged message. The timestamp is
// truncated to the minute so rapid duplicates collide while legitimate
// repeats minutes apart do not.
func MessageHash(conversationID uuid.UUID, body string, at time.Time) string {
	minute := at.UTC().Truncate(time.Minute).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(conversationID.String() + "|" + body + "|" + minute))
	return hex.EncodeToString(sum[:])
}

// RecordInbound logs a user message. Returns false when the same message was
// already logged this minute, which happens when the provider retries a
// webhook delivery.
func (s *InteractionStore) RecordInbound(ctx context.Context, conversationID uuid.UUID, body, mediaURL string, at time.Time) (bool, error) {
	msgType := TypeText
	if mediaURL != "" {
		msgType = TypeImage
	}
	return s.record(ctx, conversationID, RoleUser, msgType, body, mediaURL, at)
}

// RecordOutbound logs a bot message. Returns false when an identical message
// was already logged for this conversation in the same minute, in which case
// no row is written and the caller must not dispatch.
func (s *InteractionStore) RecordOutbound(ctx context.Context, conversationID uuid.UUID, body string, at time.Time) (bool, error) {
	return s.record(ctx, conversationID, RoleAssistant, TypeText, body, "", at)
}

func (s *InteractionStore) record(ctx context.Context, conversationID uuid.UUID, role, msgType, body, mediaURL string, at time.Time) (bool, error) {
	query := `
		INSERT INTO interaction_history (id, message_hash, conversation_id, sender_role, message_type, body, media_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_hash) DO NOTHING
	`
	hash := MessageHash(conversationID, body, at)
	tag, err := s.pool.Exec(ctx, query, uuid.New(), hash, conversationID, role, msgType, body, mediaURL, at.UTC())
	if err != nil {
		return false, fmt.Errorf("messaging: record %s message: %w", role, err)
	}
	return tag.RowsAffected() == 1, nil
}

// History returns the most recent messages of a conversation in
// chronological order.
func (s *InteractionStore) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, conversation_id, sender_role, message_type, body, media_url, message_hash, created_at
		FROM (
			SELECT id, conversation_id, sender_role, message_type, body, media_url, message_hash, created_at
			FROM interaction_history
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: list history: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var rec Interaction
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.Role, &rec.Type, &rec.Body, &rec.MediaURL, &rec.MessageHash, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan interaction: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
