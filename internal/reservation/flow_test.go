package reservation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/classifier"
)

type stubExtractor struct {
	booking    classifier.BookingFields
	bookingErr error
	contact    classifier.ContactFields
	contactErr error
}

func (s *stubExtractor) ExtractBooking(context.Context, string) (classifier.BookingFields, error) {
	return s.booking, s.bookingErr
}

func (s *stubExtractor) ExtractContact(context.Context, string) (classifier.ContactFields, error) {
	return s.contact, s.contactErr
}

func newTestFlow(t *testing.T, ex Extractor) (*Flow, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	flow := NewFlow(NewStore(mock), ex, nil)
	flow.now = func() time.Time { return anchor }
	return flow, mock
}

func testProfile() *business.Profile {
	return business.DefaultProfile("org-1")
}

func TestStartBooksNextSaturday(t *testing.T) {
	ex := &stubExtractor{booking: classifier.BookingFields{
		Service:  "consulta",
		DateText: "sábado",
		TimeText: "10am",
	}}
	flow, mock := newTestFlow(t, ex)

	convID := uuid.New()
	wantStart := time.Date(2026, 3, 14, 10, 0, 0, 0, mx)
	mock.ExpectExec("INSERT INTO pending_reservations").
		WithArgs("+5215512345678", "consulta", wantStart.UTC(), "", "", "", StageAwaitingConfirm, convID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	reply, err := flow.Start(context.Background(), testProfile(), "+5215512345678", convID, "quiero agendar una consulta el sábado a las 10am")
	require.NoError(t, err)
	assert.Contains(t, reply, "consulta")
	assert.Contains(t, reply, "14/03/2026")
	assert.Contains(t, reply, "¿Confirmas")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartMissingDateReprompts(t *testing.T) {
	ex := &stubExtractor{booking: classifier.BookingFields{Service: "consulta", TimeText: "10am"}}
	flow, mock := newTestFlow(t, ex)

	reply, err := flow.Start(context.Background(), testProfile(), "+5215512345678", uuid.New(), "quiero una consulta a las 10")
	require.NoError(t, err)
	assert.Equal(t, MsgAskDateTime(), reply)
	require.NoError(t, mock.ExpectationsWereMet(), "nothing must be persisted")
}

func TestStartPastInstantNeverPersists(t *testing.T) {
	ex := &stubExtractor{booking: classifier.BookingFields{
		Service:  "consulta",
		DateText: "hoy",
		TimeText: "9am", // anchor is 12:00 local, so 9am already passed
	}}
	flow, mock := newTestFlow(t, ex)

	reply, err := flow.Start(context.Background(), testProfile(), "+5215512345678", uuid.New(), "hoy a las 9")
	require.NoError(t, err)
	assert.Equal(t, MsgPastDate(), reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartClassifierErrorApologizesWithoutMutation(t *testing.T) {
	ex := &stubExtractor{bookingErr: errors.New("model timeout")}
	flow, mock := newTestFlow(t, ex)

	reply, err := flow.Start(context.Background(), testProfile(), "+5215512345678", uuid.New(), "quiero reservar")
	require.NoError(t, err)
	assert.Equal(t, MsgApology(), reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartSingleSlotConflict(t *testing.T) {
	ex := &stubExtractor{booking: classifier.BookingFields{
		Service:  "cena",
		DateText: "sábado",
		TimeText: "8 de la noche",
	}}
	flow, mock := newTestFlow(t, ex)

	profile := testProfile()
	profile.SingleSlot = true

	wantStart := time.Date(2026, 3, 14, 20, 0, 0, 0, mx)
	mock.ExpectQuery("SELECT 1 FROM reservations").
		WithArgs(wantStart.UTC(), StatusCancelled).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	reply, err := flow.Start(context.Background(), profile, "+5215512345678", uuid.New(), "el sábado a las 8 de la noche")
	require.NoError(t, err)
	assert.Equal(t, MsgSlotTaken(), reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartZoneRequired(t *testing.T) {
	ex := &stubExtractor{booking: classifier.BookingFields{
		Service:  "cena",
		DateText: "viernes",
		TimeText: "7 de la tarde",
	}}
	flow, mock := newTestFlow(t, ex)

	profile := testProfile()
	profile.RequireZone = true

	mock.ExpectExec("INSERT INTO pending_reservations").
		WithArgs("+5215512345678", "cena", pgxmock.AnyArg(), "", "", "", StageAwaitingZone, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	reply, err := flow.Start(context.Background(), profile, "+5215512345678", uuid.New(), "cena el viernes a las 7")
	require.NoError(t, err)
	assert.Contains(t, reply, "zona")
	for _, zone := range profile.AllowedZones {
		assert.Contains(t, reply, zone)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceZoneAnswer(t *testing.T) {
	flow, mock := newTestFlow(t, &stubExtractor{})

	pending := Pending{
		UserID:         "+5215512345678",
		Service:        "cena",
		StartsAt:       time.Date(2026, 3, 13, 19, 0, 0, 0, mx),
		Stage:          StageAwaitingZone,
		ConversationID: uuid.New(),
	}

	mock.ExpectExec("INSERT INTO pending_reservations").
		WithArgs(pending.UserID, "cena", pending.StartsAt.UTC(), "Terraza", "", "", StageAwaitingConfirm, pending.ConversationID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "terraza")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "Terraza")
	assert.Contains(t, reply, "¿Confirmas")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceUnknownZoneReprompts(t *testing.T) {
	flow, mock := newTestFlow(t, &stubExtractor{})

	pending := Pending{UserID: "+5215512345678", Stage: StageAwaitingZone}
	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "la azotea")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "opciones")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceAffirmationWithKnownContactPromotes(t *testing.T) {
	flow, mock := newTestFlow(t, &stubExtractor{})

	pending := Pending{
		UserID:         "+5215512345678",
		Service:        "consulta",
		StartsAt:       time.Date(2026, 3, 14, 10, 0, 0, 0, mx),
		ContactName:    "Ana López",
		ContactEmail:   "ana@example.com",
		Stage:          StageAwaitingConfirm,
		ConversationID: uuid.New(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pending_reservations").
		WithArgs(pending.UserID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), pending.UserID, "Ana López", pending.UserID, "consulta", "", pending.StartsAt.UTC(), StatusPending, pending.ConversationID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "Ana López", pending.UserID, "sí")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "confirmada")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceAffirmationTokens(t *testing.T) {
	for _, token := range []string{"sí", "si", "Si!", "CONFIRMO", "ok", "¡Sí!"} {
		assert.True(t, IsAffirmative(token), token)
	}
	for _, token := range []string{"no", "mejor otro día", "quizás", "a qué hora era?"} {
		assert.False(t, IsAffirmative(token), token)
	}
}

func TestAdvanceNonAffirmativeIsNotHandled(t *testing.T) {
	flow, mock := newTestFlow(t, &stubExtractor{})

	pending := Pending{UserID: "+5215512345678", Stage: StageAwaitingConfirm}
	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "¿tienen estacionamiento?")
	require.NoError(t, err)
	assert.False(t, handled, "ordinary conversation must fall through")
	assert.Empty(t, reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceAffirmationWithoutContactAsksForIt(t *testing.T) {
	flow, mock := newTestFlow(t, &stubExtractor{})

	pending := Pending{
		UserID:         "+5215512345678",
		Service:        "consulta",
		StartsAt:       time.Date(2026, 3, 14, 10, 0, 0, 0, mx),
		Stage:          StageAwaitingConfirm,
		ConversationID: uuid.New(),
	}
	mock.ExpectExec("INSERT INTO pending_reservations").
		WithArgs(pending.UserID, "consulta", pending.StartsAt.UTC(), "", "", "", StageAwaitingContact, pending.ConversationID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "confirmo")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, MsgAskContact(), reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceContactDataPromotes(t *testing.T) {
	ex := &stubExtractor{contact: classifier.ContactFields{Name: "Ana López", Email: "ana@example.com"}}
	flow, mock := newTestFlow(t, ex)

	pending := Pending{
		UserID:         "+5215512345678",
		Service:        "consulta",
		StartsAt:       time.Date(2026, 3, 14, 10, 0, 0, 0, mx),
		Stage:          StageAwaitingContact,
		ConversationID: uuid.New(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM pending_reservations").
		WithArgs(pending.UserID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs(pgxmock.AnyArg(), pending.UserID, "Ana López", pending.UserID, "consulta", "", pending.StartsAt.UTC(), StatusPending, pending.ConversationID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "Ana López, ana@example.com")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "confirmada")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceInvalidEmailReprompts(t *testing.T) {
	ex := &stubExtractor{contact: classifier.ContactFields{Name: "Ana", Email: "no-es-correo"}}
	flow, mock := newTestFlow(t, ex)

	pending := Pending{UserID: "+5215512345678", Stage: StageAwaitingContact}
	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "Ana, no-es-correo")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, MsgInvalidContact(), reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceContactClassifierErrorKeepsState(t *testing.T) {
	ex := &stubExtractor{contactErr: errors.New("model down")}
	flow, mock := newTestFlow(t, ex)

	pending := Pending{UserID: "+5215512345678", Stage: StageAwaitingContact}
	reply, handled, err := flow.Advance(context.Background(), testProfile(), pending, "", pending.UserID, "Ana, ana@example.com")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, MsgApology(), reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("ana@example.com"))
	assert.True(t, ValidEmail("a.b+c@sub.dominio.mx"))
	assert.False(t, ValidEmail("ana@example"))
	assert.False(t, ValidEmail("ana example.com"))
	assert.False(t, ValidEmail(""))
}

func TestMsgSummaryRendersLocalTime(t *testing.T) {
	p := Pending{
		Service:  "cena",
		StartsAt: time.Date(2026, 3, 14, 20, 0, 0, 0, mx),
		Zone:     "VIP",
	}
	got := MsgSummary(p, mx)
	assert.True(t, strings.Contains(got, "14/03/2026") && strings.Contains(got, "20:00"), got)
	assert.Contains(t, got, "VIP")
}
