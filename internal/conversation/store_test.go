package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conversationRows(conv Conversation) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "channel", "address", "status", "stage", "lead_tier", "human_flag",
		"profile_tag", "quote_sent", "followup_attempts", "last_followup_at",
		"last_user_message_at", "created_at", "updated_at",
	}).AddRow(
		conv.ID, conv.Channel, conv.Address, conv.Status, conv.Stage, conv.LeadTier,
		conv.HumanFlag, conv.ProfileTag, conv.QuoteSent, conv.FollowupAttempts,
		conv.LastFollowupAt, conv.LastUserMessageAt, conv.CreatedAt, conv.UpdatedAt,
	)
}

func TestEnsureReturnsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	want := Conversation{
		ID:         uuid.New(),
		Channel:    "whatsapp",
		Address:    "+5215512345678",
		Status:     StatusActive,
		ProfileTag: "generico",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), "whatsapp", "+5215512345678", StatusActive).
		WillReturnRows(conversationRows(want))

	store := NewStore(mock)
	got, err := store.Ensure(context.Background(), "whatsapp", "+5215512345678")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, StatusActive, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTierReportsChange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, TierQualified).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, TierQualified).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock)

	changed, err := store.SetTier(context.Background(), id, TierQualified)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.SetTier(context.Background(), id, TierQualified)
	require.NoError(t, err)
	assert.False(t, changed, "same tier must report no change")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkQuoteSentIsOneShot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, StageQuoteSent).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, StageQuoteSent).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock)

	first, err := store.MarkQuoteSent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkQuoteSent(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFollowupGuarded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	notBefore := time.Now().Add(-time.Hour)
	mock.ExpectExec("UPDATE conversations").
		WithArgs(id, 3, notBefore.UTC()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock)
	claimed, err := store.RecordFollowup(context.Background(), id, 3, notBefore)
	require.NoError(t, err)
	assert.False(t, claimed, "capped conversation must not be claimed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetStaleStagesReturnsAffected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stale := Conversation{
		ID:         uuid.New(),
		Channel:    "whatsapp",
		Address:    "+5215512345678",
		Status:     StatusActive,
		ProfileTag: "generico",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	cutoff := time.Now().Add(-30 * time.Minute)
	mock.ExpectQuery("UPDATE conversations").
		WithArgs(cutoff.UTC(), 100).
		WillReturnRows(conversationRows(stale))

	store := NewStore(mock)
	got, err := store.ResetStaleStages(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageProtected(t *testing.T) {
	assert.True(t, StageProtected(StageQuoteSent))
	assert.False(t, StageProtected(StageAwaitingZone))
	assert.False(t, StageProtected(StageNone))
}
