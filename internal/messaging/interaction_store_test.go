package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageHashStableWithinMinute(t *testing.T) {
	convID := uuid.New()
	base := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	h1 := MessageHash(convID, "hola", base)
	h2 := MessageHash(convID, "hola", base.Add(40*time.Second))
	h3 := MessageHash(convID, "hola", base.Add(2*time.Minute))

	assert.Equal(t, h1, h2, "same minute must collide")
	assert.NotEqual(t, h1, h3, "different minute must not collide")
	assert.NotEqual(t, h1, MessageHash(uuid.New(), "hola", base))
	assert.NotEqual(t, h1, MessageHash(convID, "adios", base))
}

func TestRecordOutboundFirstInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewInteractionStore(mock)
	inserted, err := store.RecordOutbound(context.Background(), convID, "hola", time.Now())
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutboundDuplicateSuppressed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewInteractionStore(mock)
	inserted, err := store.RecordOutbound(context.Background(), convID, "hola", time.Now())
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordInboundImageType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleUser, TypeImage, "mira esto", "https://cdn.example/foto.jpg", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewInteractionStore(mock)
	inserted, err := store.RecordInbound(context.Background(), convID, "mira esto", "https://cdn.example/foto.jpg", time.Now())
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryReturnsChronological(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "conversation_id", "sender_role", "message_type", "body", "media_url", "message_hash", "created_at"}).
		AddRow(uuid.New(), convID, RoleUser, TypeText, "hola", "", "h1", now.Add(-2*time.Minute)).
		AddRow(uuid.New(), convID, RoleAssistant, TypeText, "¡Hola! Soy AIDANA", "", "h2", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT id, conversation_id, sender_role").
		WithArgs(convID, 20).
		WillReturnRows(rows)

	store := NewInteractionStore(mock)
	history, err := store.History(context.Background(), convID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleAssistant, history[1].Role)
	require.NoError(t, mock.ExpectationsWereMet())
}
