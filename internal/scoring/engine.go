package scoring

import (
	"context"
	"strings"

	"github.com/aidanalabs/agenda-bot/internal/classifier"
	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

// Stage tags written when a re-score changes the tier.
const (
	StageFollowup    = "seguimiento"
	StageUnqualified = "no_calificado"
)

// LeadClassifier is the slice of the classifier the engine needs.
type LeadClassifier interface {
	ClassifyLead(ctx context.Context, history []classifier.ChatMessage) (classifier.LeadAssessment, error)
}

// Engine re-derives the lead tier of a conversation after every turn. A tier
// is not monotonic: it may move in either direction, and every change
// produces exactly one audit row.
type Engine struct {
	conversations *conversation.Store
	history       *Store
	classifier    LeadClassifier
	logger        *logging.Logger
}

func NewEngine(conversations *conversation.Store, history *Store, lc LeadClassifier, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		conversations: conversations,
		history:       history,
		classifier:    lc,
		logger:        logger,
	}
}

// Reevaluate scores the transcript and persists the tier if it changed.
// Returns the resulting tier. The stage retag is skipped for protected
// stages and for in-flight esperando_* stages, which belong to the booking
// and survey flows.
func (e *Engine) Reevaluate(ctx context.Context, conv conversation.Conversation, transcript []classifier.ChatMessage) (string, error) {
	assessment, err := e.classifier.ClassifyLead(ctx, transcript)
	if err != nil {
		return conv.LeadTier, err
	}

	tier := strings.ToLower(strings.TrimSpace(assessment.Tier))
	if tier == conv.LeadTier {
		return tier, nil
	}

	changed, err := e.conversations.SetTier(ctx, conv.ID, tier)
	if err != nil {
		return conv.LeadTier, err
	}
	if !changed {
		// Another path won the race with the same tier; no audit row.
		return tier, nil
	}

	if err := e.history.InsertTransition(ctx, conv.ID, conv.LeadTier, tier); err != nil {
		return tier, err
	}

	e.logger.Info("lead tier changed",
		"conversation_id", conv.ID.String(),
		"old_tier", conv.LeadTier,
		"new_tier", tier,
		"reason", assessment.Reason,
	)

	if conversation.StageProtected(conv.Stage) || strings.HasPrefix(conv.Stage, "esperando_") {
		return tier, nil
	}

	stage := StageFollowup
	if tier == conversation.TierUnqualified {
		stage = StageUnqualified
	}
	if err := e.conversations.UpdateStage(ctx, conv.ID, stage); err != nil {
		return tier, err
	}
	return tier, nil
}
