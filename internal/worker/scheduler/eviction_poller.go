package schedulerworker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

type evictionStore interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]reservation.Pending, error)
	DeletePending(ctx context.Context, userID string) (bool, error)
}

type evictionConversations interface {
	UpdateStage(ctx context.Context, id uuid.UUID, stage string) error
	ResetStaleStages(ctx context.Context, cutoff time.Time, limit int) ([]conversation.Conversation, error)
}

type fragmentBuffer interface {
	Evict(key string)
}

// EvictionPoller abandons pending bookings whose users went silent past the
// TTL. The row delete is the claim: whoever wins it sends the single
// eviction notice. It also sweeps conversations stuck in an esperando_ stage
// with no pending row backing it, such as a survey nobody answered.
type EvictionPoller struct {
	store         evictionStore
	conversations evictionConversations
	buffer        fragmentBuffer
	sender        Sender
	logger        *logging.Logger
	metrics       *metrics.AgentMetrics
	interval      time.Duration
	ttl           time.Duration
	stageTTL      time.Duration
	batch         int
	now           func() time.Time
}

func NewEvictionPoller(store evictionStore, conversations evictionConversations, buffer fragmentBuffer, sender Sender, logger *logging.Logger) *EvictionPoller {
	if logger == nil {
		logger = logging.Default()
	}
	return &EvictionPoller{
		store:         store,
		conversations: conversations,
		buffer:        buffer,
		sender:        sender,
		logger:        logger,
		interval:      time.Minute,
		ttl:           30 * time.Minute,
		stageTTL:      24 * time.Hour,
		batch:         50,
		now:           time.Now,
	}
}

func (p *EvictionPoller) WithInterval(d time.Duration) *EvictionPoller {
	if d > 0 {
		p.interval = d
	}
	return p
}

func (p *EvictionPoller) WithTTL(d time.Duration) *EvictionPoller {
	if d > 0 {
		p.ttl = d
	}
	return p
}

// WithStageTTL sets how long an esperando_ stage may sit untouched before
// the sweep clears it.
func (p *EvictionPoller) WithStageTTL(d time.Duration) *EvictionPoller {
	if d > 0 {
		p.stageTTL = d
	}
	return p
}

func (p *EvictionPoller) WithMetrics(m *metrics.AgentMetrics) *EvictionPoller {
	p.metrics = m
	return p
}

func (p *EvictionPoller) Run(ctx context.Context) {
	runLoop(ctx, p.interval, p.drain)
}

func (p *EvictionPoller) drain(ctx context.Context) {
	if p.store == nil || p.sender == nil {
		return
	}
	cutoff := p.now().Add(-p.ttl)
	stale, err := p.store.ListPendingBefore(ctx, cutoff, p.batch)
	if err != nil {
		p.logger.Error("eviction fetch failed", "error", err)
		return
	}
	for _, pend := range stale {
		removed, err := p.store.DeletePending(ctx, pend.UserID)
		if err != nil {
			p.logger.Error("eviction delete failed", "user_id", pend.UserID, "error", err)
			continue
		}
		if !removed {
			continue
		}
		if p.buffer != nil {
			p.buffer.Evict(pend.ConversationID.String())
		}
		if p.conversations != nil {
			if err := p.conversations.UpdateStage(ctx, pend.ConversationID, conversation.StageNone); err != nil {
				p.logger.Error("eviction stage reset failed", "conversation_id", pend.ConversationID.String(), "error", err)
			}
		}
		if err := p.sender.Send(ctx, pend.ConversationID, pend.UserID, reservation.MsgEvicted()); err != nil {
			p.logger.Error("eviction notice send failed", "user_id", pend.UserID, "error", err)
			continue
		}
		p.metrics.ObserveSchedulerAction("eviction", "evicted")
	}

	if p.conversations == nil {
		return
	}
	reset, err := p.conversations.ResetStaleStages(ctx, p.now().Add(-p.stageTTL), p.batch)
	if err != nil {
		p.logger.Error("stale stage reset failed", "error", err)
		return
	}
	for _, conv := range reset {
		if p.buffer != nil {
			p.buffer.Evict(conv.ID.String())
		}
		p.metrics.ObserveSchedulerAction("eviction", "stage_reset")
	}
}
