// Package agent coordinates one inbound turn: webhook dedupe, the message
// buffer, the booking flow, intent routing and re-scoring. It owns no state
// of its own; everything durable lives in the stores it is handed.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/classifier"
	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/internal/messaging"
	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

var agentTracer = otel.Tracer("agenda-bot/agent")

// ConversationStore is the slice of the conversation store the agent needs.
type ConversationStore interface {
	Ensure(ctx context.Context, channel, address string) (conversation.Conversation, error)
	TouchUserActivity(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStage(ctx context.Context, id uuid.UUID, stage string) error
}

// InteractionLog records and replays the per-conversation transcript.
type InteractionLog interface {
	RecordInbound(ctx context.Context, conversationID uuid.UUID, body, mediaURL string, at time.Time) (bool, error)
	History(ctx context.Context, conversationID uuid.UUID, limit int) ([]messaging.Interaction, error)
}

// ReplySender delivers one outbound reply, deduplicated by the outbound log.
type ReplySender interface {
	Send(ctx context.Context, conversationID uuid.UUID, to, body string) error
}

// ReservationStore is the slice of the reservation store the agent needs.
type ReservationStore interface {
	GetPending(ctx context.Context, userID string) (reservation.Pending, bool, error)
	DeletePending(ctx context.Context, userID string) (bool, error)
	LatestAwaitingAttendance(ctx context.Context, userID string) (reservation.Reservation, bool, error)
	ResolveAttendance(ctx context.Context, id uuid.UUID, attended bool) (bool, error)
	LatestSurveyed(ctx context.Context, userID string) (reservation.Reservation, bool, error)
	InsertRating(ctx context.Context, r reservation.Rating) error
	NextActiveForUser(ctx context.Context, userID string, from time.Time) (reservation.Reservation, bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
}

// BookingFlow drives the pending-booking state machine.
type BookingFlow interface {
	Start(ctx context.Context, profile *business.Profile, userID string, convID uuid.UUID, text string) (string, error)
	Advance(ctx context.Context, profile *business.Profile, pending reservation.Pending, displayName, address, text string) (string, bool, error)
}

// IntentService is the slice of the classifier the agent needs.
type IntentService interface {
	DetectIntent(ctx context.Context, history []classifier.ChatMessage) (classifier.Intent, error)
	ExtractRating(ctx context.Context, text string) (classifier.RatingFields, error)
	Reply(ctx context.Context, persona string, history []classifier.ChatMessage) (string, error)
}

// Scorer re-derives the lead tier after a turn.
type Scorer interface {
	Reevaluate(ctx context.Context, conv conversation.Conversation, transcript []classifier.ChatMessage) (string, error)
}

// ProfileSource resolves tenant configuration.
type ProfileSource interface {
	Get(ctx context.Context, orgID string) (*business.Profile, error)
}

const historyWindow = 20

// Config carries the orchestrator's collaborators.
type Config struct {
	OrgID         string
	DefaultRegion string
	Conversations ConversationStore
	Interactions  InteractionLog
	Sender        ReplySender
	Reservations  ReservationStore
	Flow          BookingFlow
	Intents       IntentService
	Scorer        Scorer
	Profiles      ProfileSource
	Buffer        *conversation.Buffer
	Metrics       *metrics.AgentMetrics
	Logger        *logging.Logger
}

type Orchestrator struct {
	orgID         string
	defaultRegion string
	conversations ConversationStore
	interactions  InteractionLog
	sender        ReplySender
	reservations  ReservationStore
	flow          BookingFlow
	intents       IntentService
	scorer        Scorer
	profiles      ProfileSource
	buffer        *conversation.Buffer
	metrics       *metrics.AgentMetrics
	logger        *logging.Logger
	now           func() time.Time
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	buffer := cfg.Buffer
	if buffer == nil {
		buffer = conversation.NewBuffer(0, 0)
	}
	region := cfg.DefaultRegion
	if region == "" {
		region = "MX"
	}
	return &Orchestrator{
		orgID:         cfg.OrgID,
		defaultRegion: region,
		conversations: cfg.Conversations,
		interactions:  cfg.Interactions,
		sender:        cfg.Sender,
		reservations:  cfg.Reservations,
		flow:          cfg.Flow,
		intents:       cfg.Intents,
		scorer:        cfg.Scorer,
		profiles:      cfg.Profiles,
		buffer:        buffer,
		metrics:       cfg.Metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleInbound processes one webhook delivery. Provider retries are absorbed
// by the interaction log's hash dedupe; a duplicate body is dropped before it
// can reach the buffer or the model.
func (o *Orchestrator) HandleInbound(ctx context.Context, channel, from, body, mediaURL string) error {
	ctx, span := agentTracer.Start(ctx, "agent.handle_inbound")
	defer span.End()
	span.SetAttributes(attribute.String("channel", channel))

	address, err := messaging.NormalizePhone(from, o.defaultRegion)
	if err != nil {
		o.metrics.ObserveInbound(channel, "rejected")
		return fmt.Errorf("agent: normalize sender: %w", err)
	}

	conv, err := o.conversations.Ensure(ctx, channel, address)
	if err != nil {
		return fmt.Errorf("agent: ensure conversation: %w", err)
	}
	span.SetAttributes(attribute.String("conversation_id", conv.ID.String()))

	now := o.now()
	inserted, err := o.interactions.RecordInbound(ctx, conv.ID, body, mediaURL, now)
	if err != nil {
		return fmt.Errorf("agent: record inbound: %w", err)
	}
	if !inserted {
		o.metrics.ObserveInbound(channel, "duplicate")
		o.logger.Info("duplicate inbound dropped", "conversation_id", conv.ID.String())
		return nil
	}
	if err := o.conversations.TouchUserActivity(ctx, conv.ID, now); err != nil {
		o.logger.Warn("touch user activity failed", "conversation_id", conv.ID.String(), "error", err.Error())
	}

	if conv.HumanFlag {
		// A human operator owns this thread; log the message and stay quiet.
		o.metrics.ObserveInbound(channel, "human")
		return nil
	}

	joined, complete := o.buffer.Submit(conv.ID.String(), body)
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	if complete {
		o.logger.Debug("buffer flushed at cap", "conversation_id", conv.ID.String())
	}

	profile, err := o.profiles.Get(ctx, o.orgID)
	if err != nil {
		o.logger.Warn("profile lookup failed, using defaults", "org_id", o.orgID, "error", err.Error())
		profile = business.DefaultProfile(o.orgID)
	}

	reply, err := o.respond(ctx, profile, conv, address, joined)
	if err != nil {
		o.logger.Error("turn handling failed", "conversation_id", conv.ID.String(), "error", err.Error())
		if reply == "" {
			reply = reservation.MsgApology()
		}
	}
	if reply != "" {
		if err := o.sender.Send(ctx, conv.ID, address, reply); err != nil {
			o.logger.Error("reply send failed", "conversation_id", conv.ID.String(), "error", err.Error())
		}
	}
	o.metrics.ObserveInbound(channel, "processed")

	if o.scorer != nil && profile.Has(business.CapLeadScoring) {
		o.rescore(ctx, conv)
	}
	return nil
}

// respond picks exactly one reply for the joined turn. Routing order: pending
// booking negotiation, attendance replies, rating collection, then intent.
func (o *Orchestrator) respond(ctx context.Context, profile *business.Profile, conv conversation.Conversation, userID, text string) (string, error) {
	pending, hasPending, err := o.reservations.GetPending(ctx, userID)
	if err != nil {
		return "", err
	}
	if hasPending {
		reply, handled, err := o.flow.Advance(ctx, profile, pending, pending.ContactName, userID, text)
		if handled || err != nil {
			return reply, err
		}
		if pending.Stage == reservation.StageAwaitingConfirm && reservation.IsNegative(text) {
			if _, err := o.reservations.DeletePending(ctx, userID); err != nil {
				return "", err
			}
			o.buffer.Evict(conv.ID.String())
			return reservation.MsgAborted(), nil
		}
		// Not an answer to the negotiation; treat as ordinary conversation.
	}

	if res, ok, err := o.reservations.LatestAwaitingAttendance(ctx, userID); err != nil {
		return "", err
	} else if ok {
		switch {
		case reservation.IsAffirmative(text):
			if _, err := o.reservations.ResolveAttendance(ctx, res.ID, true); err != nil {
				return "", err
			}
			o.metrics.ObserveReservation(reservation.StatusConfirmed)
			return reservation.MsgAttendanceThanks(true), nil
		case reservation.IsNegative(text):
			if _, err := o.reservations.ResolveAttendance(ctx, res.ID, false); err != nil {
				return "", err
			}
			o.metrics.ObserveReservation(reservation.StatusNoShow)
			return reservation.MsgAttendanceThanks(false), nil
		}
	}

	if conv.Stage == conversation.StageAwaitingRating {
		return o.collectRating(ctx, conv, userID, text)
	}

	history, err := o.chatHistory(ctx, conv.ID)
	if err != nil {
		return "", err
	}

	intent, err := o.intents.DetectIntent(ctx, history)
	if err != nil {
		o.logger.Warn("intent detection failed", "conversation_id", conv.ID.String(), "error", err.Error())
		intent = classifier.IntentGeneral
	}

	switch intent {
	case classifier.IntentReserve:
		if profile.Has(business.CapBooking) {
			return o.flow.Start(ctx, profile, userID, conv.ID, text)
		}
	case classifier.IntentStatus:
		res, ok, err := o.reservations.NextActiveForUser(ctx, userID, o.now())
		if err != nil {
			return "", err
		}
		if !ok {
			return reservation.MsgNoUpcoming(), nil
		}
		return reservation.MsgStatus(res, profile.Location()), nil
	case classifier.IntentCancel:
		res, ok, err := o.reservations.NextActiveForUser(ctx, userID, o.now())
		if err != nil {
			return "", err
		}
		if !ok {
			return reservation.MsgNoUpcoming(), nil
		}
		if _, err := o.reservations.UpdateStatus(ctx, res.ID, reservation.StatusCancelled); err != nil {
			return "", err
		}
		o.metrics.ObserveReservation(reservation.StatusCancelled)
		return reservation.MsgCancelled(res, profile.Location()), nil
	}

	return o.intents.Reply(ctx, o.persona(profile), history)
}

func (o *Orchestrator) collectRating(ctx context.Context, conv conversation.Conversation, userID, text string) (string, error) {
	fields, err := o.intents.ExtractRating(ctx, text)
	if err != nil {
		o.logger.Warn("rating extraction failed", "conversation_id", conv.ID.String(), "error", err.Error())
		return reservation.MsgSurveyRetry(), nil
	}
	if fields.Score < 1 || fields.Score > 5 {
		return reservation.MsgSurveyRetry(), nil
	}

	res, ok, err := o.reservations.LatestSurveyed(ctx, userID)
	if err != nil {
		return "", err
	}
	if ok {
		rating := reservation.Rating{
			ReservationID: res.ID,
			UserID:        userID,
			Score:         fields.Score,
			Comment:       fields.Comment,
		}
		if err := o.reservations.InsertRating(ctx, rating); err != nil {
			return "", err
		}
	} else {
		o.logger.Warn("rating received without surveyed reservation", "user_id", userID)
	}
	if err := o.conversations.UpdateStage(ctx, conv.ID, conversation.StageNone); err != nil {
		return "", err
	}
	return reservation.MsgRatingThanks(fields.Score), nil
}

func (o *Orchestrator) rescore(ctx context.Context, conv conversation.Conversation) {
	history, err := o.chatHistory(ctx, conv.ID)
	if err != nil {
		o.logger.Warn("rescore transcript load failed", "conversation_id", conv.ID.String(), "error", err.Error())
		return
	}
	if _, err := o.scorer.Reevaluate(ctx, conv, history); err != nil {
		o.logger.Warn("lead rescore failed", "conversation_id", conv.ID.String(), "error", err.Error())
	}
}

func (o *Orchestrator) chatHistory(ctx context.Context, conversationID uuid.UUID) ([]classifier.ChatMessage, error) {
	records, err := o.interactions.History(ctx, conversationID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("agent: load history: %w", err)
	}
	msgs := make([]classifier.ChatMessage, 0, len(records))
	for _, rec := range records {
		role := classifier.ChatRoleUser
		if rec.Role == messaging.RoleAssistant {
			role = classifier.ChatRoleAssistant
		}
		msgs = append(msgs, classifier.ChatMessage{Role: role, Content: rec.Body})
	}
	return msgs, nil
}

func (o *Orchestrator) persona(profile *business.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, el asistente virtual de %s por WhatsApp. ", profile.BotName, profile.BusinessName)
	b.WriteString("Responde en español, en mensajes breves y amables, y nunca inventes datos del negocio.")
	if profile.PersonaPrompt != "" {
		b.WriteString("\n")
		b.WriteString(profile.PersonaPrompt)
	}
	return b.String()
}
