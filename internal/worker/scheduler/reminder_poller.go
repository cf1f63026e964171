package schedulerworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

type reminderStore interface {
	ListDue24hReminders(ctx context.Context, from, to time.Time) ([]reservation.Reservation, error)
	ListDue1hReminders(ctx context.Context, from, to time.Time) ([]reservation.Reservation, error)
	MarkReminder24hSent(ctx context.Context, id uuid.UUID) (bool, error)
	MarkReminder1hSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// ReminderPoller sends the 24-hour and 1-hour appointment reminders. A
// reservation qualifies when its start falls inside the target window and the
// matching sent-flag is still clear.
type ReminderPoller struct {
	store    reminderStore
	sender   Sender
	profiles ProfileSource
	orgID    string
	logger   *logging.Logger
	metrics  *metrics.AgentMetrics
	interval time.Duration
	margin   time.Duration
	now      func() time.Time
}

func NewReminderPoller(store reminderStore, sender Sender, profiles ProfileSource, orgID string, logger *logging.Logger) *ReminderPoller {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderPoller{
		store:    store,
		sender:   sender,
		profiles: profiles,
		orgID:    orgID,
		logger:   logger,
		interval: time.Minute,
		margin:   5 * time.Minute,
		now:      time.Now,
	}
}

func (p *ReminderPoller) WithInterval(d time.Duration) *ReminderPoller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *ReminderPoller) WithMargin(d time.Duration) *ReminderPoller {
	if d > 0 {
		p.margin = d
	}
	return p
}

func (p *ReminderPoller) WithMetrics(m *metrics.AgentMetrics) *ReminderPoller {
	p.metrics = m
	return p
}

func (p *ReminderPoller) Run(ctx context.Context) {
	runLoop(ctx, p.interval, p.drain)
}

func (p *ReminderPoller) drain(ctx context.Context) {
	if p.store == nil || p.sender == nil {
		return
	}
	profile := resolveProfile(ctx, p.profiles, p.orgID)
	if !profile.Has(business.CapReminders) {
		return
	}
	loc := profile.Location()
	now := p.now()

	target := now.Add(24 * time.Hour)
	due24, err := p.store.ListDue24hReminders(ctx, target.Add(-p.margin), target.Add(p.margin))
	if err != nil {
		p.logger.Error("24h reminder fetch failed", "error", err)
	} else {
		for _, r := range due24 {
			p.dispatch(ctx, r, "24h", reservation.MsgReminder24h(r, loc), p.store.MarkReminder24hSent)
		}
	}

	target = now.Add(time.Hour)
	due1, err := p.store.ListDue1hReminders(ctx, target.Add(-p.margin), target.Add(p.margin))
	if err != nil {
		p.logger.Error("1h reminder fetch failed", "error", err)
		return
	}
	for _, r := range due1 {
		p.dispatch(ctx, r, "1h", reservation.MsgReminder1h(r, loc), p.store.MarkReminder1hSent)
	}
}

func (p *ReminderPoller) dispatch(ctx context.Context, r reservation.Reservation, kind, body string, claim func(context.Context, uuid.UUID) (bool, error)) {
	claimed, err := claim(ctx, r.ID)
	if err != nil {
		p.logger.Error("reminder claim failed", "kind", kind, "reservation_id", r.ID.String(), "error", err)
		return
	}
	if !claimed {
		return
	}
	if err := p.sender.Send(ctx, r.ConversationID, r.Address, body); err != nil {
		p.logger.Error("reminder send failed", "kind", kind, "reservation_id", r.ID.String(), "error", err)
		return
	}
	p.metrics.ObserveSchedulerAction("reminders", kind)
}
