package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

// Outbound sends bot messages through a Messenger while keeping the durable
// interaction log authoritative. Every send is logged first; a duplicate log
// entry suppresses the dispatch entirely, and a dispatch failure never rolls
// the log back.
type Outbound struct {
	store     *InteractionStore
	messenger Messenger
	logger    *logging.Logger
	metrics   *metrics.AgentMetrics
	now       func() time.Time
}

func NewOutbound(store *InteractionStore, messenger Messenger, logger *logging.Logger) *Outbound {
	if logger == nil {
		logger = logging.Default()
	}
	return &Outbound{
		store:     store,
		messenger: messenger,
		logger:    logger,
		now:       time.Now,
	}
}

// WithMetrics counts sends per outcome. A nil receiver on the metrics side is
// a no-op, so callers without a registry skip the call entirely.
func (o *Outbound) WithMetrics(m *metrics.AgentMetrics) *Outbound {
	o.metrics = m
	return o
}

// Send logs and dispatches one message. A duplicate within the dedupe window
// is silently dropped. Dispatch errors are logged and swallowed; the provider
// retry already happened inside the messenger, and the logged row is the
// source of truth for what the bot said.
func (o *Outbound) Send(ctx context.Context, conversationID uuid.UUID, to, body string) error {
	if o.store == nil {
		return errors.New("messaging: outbound requires an interaction store")
	}

	inserted, err := o.store.RecordOutbound(ctx, conversationID, body, o.now())
	if err != nil {
		return err
	}
	if !inserted {
		o.metrics.ObserveOutbound("suppressed", true)
		o.logger.Info("duplicate outbound suppressed",
			"conversation_id", conversationID.String(),
			"to", to,
		)
		return nil
	}

	if o.messenger == nil {
		o.metrics.ObserveOutbound("logged", false)
		return nil
	}
	if err := o.messenger.Send(ctx, OutboundMessage{
		To:             to,
		Body:           body,
		ConversationID: conversationID.String(),
	}); err != nil {
		o.metrics.ObserveOutbound("failed", false)
		o.logger.Error("outbound dispatch failed",
			"conversation_id", conversationID.String(),
			"to", to,
			"error", err.Error(),
		)
		return nil
	}
	o.metrics.ObserveOutbound("sent", false)
	return nil
}
