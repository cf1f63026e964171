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

type attendanceStore interface {
	ListAttendanceDue(ctx context.Context, from, to time.Time) ([]reservation.Reservation, error)
	MarkAwaitingAttendance(ctx context.Context, id uuid.UUID) (bool, error)
}

// AttendancePoller asks whether the user showed up, shortly after the
// appointment started. The question goes out once per reservation; the status
// transition to esperando_confirmacion is the claim.
type AttendancePoller struct {
	store    attendanceStore
	sender   Sender
	profiles ProfileSource
	orgID    string
	logger   *logging.Logger
	metrics  *metrics.AgentMetrics
	interval time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	now      func() time.Time
}

func NewAttendancePoller(store attendanceStore, sender Sender, profiles ProfileSource, orgID string, logger *logging.Logger) *AttendancePoller {
	if logger == nil {
		logger = logging.Default()
	}
	return &AttendancePoller{
		store:    store,
		sender:   sender,
		profiles: profiles,
		orgID:    orgID,
		logger:   logger,
		interval: time.Minute,
		minDelay: 10 * time.Minute,
		maxDelay: 12 * time.Minute,
		now:      time.Now,
	}
}

func (p *AttendancePoller) WithInterval(d time.Duration) *AttendancePoller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *AttendancePoller) WithDelayWindow(min, max time.Duration) *AttendancePoller {
	if min > 0 && max > min {
		p.minDelay = min
		p.maxDelay = max
	}
	return p
}

func (p *AttendancePoller) WithMetrics(m *metrics.AgentMetrics) *AttendancePoller {
	p.metrics = m
	return p
}

func (p *AttendancePoller) Run(ctx context.Context) {
	runLoop(ctx, p.interval, p.drain)
}

func (p *AttendancePoller) drain(ctx context.Context) {
	if p.store == nil || p.sender == nil {
		return
	}
	if !resolveProfile(ctx, p.profiles, p.orgID).Has(business.CapBooking) {
		return
	}
	now := p.now()
	// Reservations that started between maxDelay and minDelay ago.
	due, err := p.store.ListAttendanceDue(ctx, now.Add(-p.maxDelay), now.Add(-p.minDelay))
	if err != nil {
		p.logger.Error("attendance fetch failed", "error", err)
		return
	}
	for _, r := range due {
		claimed, err := p.store.MarkAwaitingAttendance(ctx, r.ID)
		if err != nil {
			p.logger.Error("attendance claim failed", "reservation_id", r.ID.String(), "error", err)
			continue
		}
		if !claimed {
			continue
		}
		if err := p.sender.Send(ctx, r.ConversationID, r.Address, reservation.MsgAttendanceCheck(r)); err != nil {
			p.logger.Error("attendance check send failed", "reservation_id", r.ID.String(), "error", err)
			continue
		}
		p.metrics.ObserveSchedulerAction("attendance", "asked")
	}
}
