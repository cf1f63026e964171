package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
)

type fakeMessenger struct {
	sent []OutboundMessage
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, msg OutboundMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestOutboundSendLogsAndDispatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	messenger := &fakeMessenger{}
	out := NewOutbound(NewInteractionStore(mock), messenger, nil)

	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "hola"))
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "+5215512345678", messenger.sent[0].To)
	assert.Equal(t, convID.String(), messenger.sent[0].ConversationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboundSendDuplicateSkipsDispatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	messenger := &fakeMessenger{}
	out := NewOutbound(NewInteractionStore(mock), messenger, nil)

	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "hola"))
	assert.Empty(t, messenger.sent, "duplicate must not reach the provider")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboundSendDispatchFailureKeepsLog(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	messenger := &fakeMessenger{err: errors.New("provider down")}
	out := NewOutbound(NewInteractionStore(mock), messenger, nil)

	// The dispatch error is logged, not returned; the log row stays.
	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "hola"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboundSendUsesInjectedClock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	at := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	hash := MessageHash(convID, "hola", at)

	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), hash, convID, RoleAssistant, TypeText, "hola", "", at.UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	out := NewOutbound(NewInteractionStore(mock), &fakeMessenger{}, nil)
	out.now = func() time.Time { return at }

	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "hola"))
	require.NoError(t, mock.ExpectationsWereMet())
}

// counterValue digs one labelled counter out of a gathered registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metric:
		for _, m := range f.GetMetric() {
			got := map[string]string{}
			for _, l := range m.GetLabel() {
				got[l.GetName()] = l.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestOutboundSendCountsOutcomes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "hola", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO interaction_history").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), convID, RoleAssistant, TypeText, "adios", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	reg := prometheus.NewRegistry()
	agentMetrics := metrics.NewAgentMetrics(reg)
	messenger := &fakeMessenger{}
	out := NewOutbound(NewInteractionStore(mock), messenger, nil).WithMetrics(agentMetrics)

	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "hola"))
	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "hola"))
	messenger.err = errors.New("provider down")
	require.NoError(t, out.Send(context.Background(), convID, "+5215512345678", "adios"))

	name := "agenda_messaging_outbound_total"
	assert.Equal(t, float64(1), counterValue(t, reg, name, map[string]string{"status": "sent", "suppressed": "false"}))
	assert.Equal(t, float64(1), counterValue(t, reg, name, map[string]string{"status": "suppressed", "suppressed": "true"}))
	assert.Equal(t, float64(1), counterValue(t, reg, name, map[string]string{"status": "failed", "suppressed": "false"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
