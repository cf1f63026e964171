package schedulerworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

type surveyStore interface {
	ListSurveyDue(ctx context.Context, limit int) ([]reservation.Reservation, error)
	MarkSurveySent(ctx context.Context, id uuid.UUID) (bool, error)
}

type surveyConversations interface {
	UpdateStage(ctx context.Context, id uuid.UUID, stage string) error
}

// SurveyPoller sends the satisfaction survey for completed reservations and
// parks the conversation in the rating stage so the next user message is read
// as a score.
type SurveyPoller struct {
	store         surveyStore
	conversations surveyConversations
	sender        Sender
	profiles      ProfileSource
	orgID         string
	logger        *logging.Logger
	metrics       *metrics.AgentMetrics
	interval      time.Duration
	batch         int
}

func NewSurveyPoller(store surveyStore, conversations surveyConversations, sender Sender, profiles ProfileSource, orgID string, logger *logging.Logger) *SurveyPoller {
	if logger == nil {
		logger = logging.Default()
	}
	return &SurveyPoller{
		store:         store,
		conversations: conversations,
		sender:        sender,
		profiles:      profiles,
		orgID:         orgID,
		logger:        logger,
		interval:      time.Minute,
		batch:         50,
	}
}

func (p *SurveyPoller) WithInterval(d time.Duration) *SurveyPoller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *SurveyPoller) WithBatchSize(n int) *SurveyPoller {
	if n > 0 {
		p.batch = n
	}
	return p
}

func (p *SurveyPoller) WithMetrics(m *metrics.AgentMetrics) *SurveyPoller {
	p.metrics = m
	return p
}

func (p *SurveyPoller) Run(ctx context.Context) {
	runLoop(ctx, p.interval, p.drain)
}

func (p *SurveyPoller) drain(ctx context.Context) {
	if p.store == nil || p.sender == nil {
		return
	}
	if !resolveProfile(ctx, p.profiles, p.orgID).Has(business.CapSurvey) {
		return
	}
	due, err := p.store.ListSurveyDue(ctx, p.batch)
	if err != nil {
		p.logger.Error("survey fetch failed", "error", err)
		return
	}
	for _, r := range due {
		claimed, err := p.store.MarkSurveySent(ctx, r.ID)
		if err != nil {
			p.logger.Error("survey claim failed", "reservation_id", r.ID.String(), "error", err)
			continue
		}
		if !claimed {
			continue
		}
		if err := p.sender.Send(ctx, r.ConversationID, r.Address, reservation.MsgSurvey()); err != nil {
			p.logger.Error("survey send failed", "reservation_id", r.ID.String(), "error", err)
			continue
		}
		if p.conversations != nil {
			if err := p.conversations.UpdateStage(ctx, r.ConversationID, conversation.StageAwaitingRating); err != nil {
				p.logger.Error("survey stage update failed", "conversation_id", r.ConversationID.String(), "error", err)
			}
		}
		p.metrics.ObserveSchedulerAction("survey", "sent")
	}
}
