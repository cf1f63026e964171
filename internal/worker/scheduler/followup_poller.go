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

type followupConversations interface {
	ListFollowupCandidates(ctx context.Context, tier string, idleSince time.Time, maxAttempts, limit int) ([]conversation.Conversation, error)
	ListQuoteCandidates(ctx context.Context, idleSince time.Time, maxAttempts, limit int) ([]conversation.Conversation, error)
	RecordFollowup(ctx context.Context, id uuid.UUID, maxAttempts int, notBefore time.Time) (bool, error)
}

// FollowupPoller re-engages leads that went silent past their tier's
// threshold, and, on a longer fixed threshold, conversations parked in the
// quote-sent stage. The attempt counter update is the claim.
type FollowupPoller struct {
	conversations followupConversations
	sender        Sender
	profiles      ProfileSource
	orgID         string
	logger        *logging.Logger
	metrics       *metrics.AgentMetrics
	interval      time.Duration
	batch         int
	now           func() time.Time
}

func NewFollowupPoller(conversations followupConversations, sender Sender, profiles ProfileSource, orgID string, logger *logging.Logger) *FollowupPoller {
	if logger == nil {
		logger = logging.Default()
	}
	return &FollowupPoller{
		conversations: conversations,
		sender:        sender,
		profiles:      profiles,
		orgID:         orgID,
		logger:        logger,
		interval:      15 * time.Minute,
		batch:         50,
		now:           time.Now,
	}
}

func (p *FollowupPoller) WithInterval(d time.Duration) *FollowupPoller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *FollowupPoller) WithBatchSize(n int) *FollowupPoller {
	if n > 0 {
		p.batch = n
	}
	return p
}

func (p *FollowupPoller) WithMetrics(m *metrics.AgentMetrics) *FollowupPoller {
	p.metrics = m
	return p
}

func (p *FollowupPoller) Run(ctx context.Context) {
	runLoop(ctx, p.interval, p.drain)
}

func (p *FollowupPoller) drain(ctx context.Context) {
	if p.conversations == nil || p.sender == nil {
		return
	}
	profile := resolveProfile(ctx, p.profiles, p.orgID)
	if !profile.Has(business.CapFollowup) {
		return
	}
	now := p.now()

	for _, tier := range []string{conversation.TierQualified, conversation.TierMedium, conversation.TierUnqualified} {
		th := profile.ThresholdFor(tier)
		idleSince := now.Add(-th.Silence)
		candidates, err := p.conversations.ListFollowupCandidates(ctx, tier, idleSince, th.MaxTries, p.batch)
		if err != nil {
			p.logger.Error("followup fetch failed", "tier", tier, "error", err)
			continue
		}
		for _, conv := range candidates {
			p.dispatch(ctx, conv, tier, idleSince, th.MaxTries, reservation.MsgFollowup(tier))
		}
	}

	quoteCap := profile.ThresholdFor(conversation.TierQualified).MaxTries
	idleSince := now.Add(-profile.QuoteThreshold)
	quoted, err := p.conversations.ListQuoteCandidates(ctx, idleSince, quoteCap, p.batch)
	if err != nil {
		p.logger.Error("quote followup fetch failed", "error", err)
		return
	}
	for _, conv := range quoted {
		p.dispatch(ctx, conv, "cotizacion", idleSince, quoteCap, reservation.MsgFollowupQuote())
	}
}

func (p *FollowupPoller) dispatch(ctx context.Context, conv conversation.Conversation, tier string, notBefore time.Time, maxTries int, body string) {
	claimed, err := p.conversations.RecordFollowup(ctx, conv.ID, maxTries, notBefore)
	if err != nil {
		p.logger.Error("followup claim failed", "conversation_id", conv.ID.String(), "error", err)
		return
	}
	if !claimed {
		return
	}
	if err := p.sender.Send(ctx, conv.ID, conv.Address, body); err != nil {
		p.logger.Error("followup send failed", "conversation_id", conv.ID.String(), "error", err)
		return
	}
	p.metrics.ObserveSchedulerAction("followup", tier)
}
