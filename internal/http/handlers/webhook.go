// Package handlers holds the HTTP surface: the WhatsApp webhook and the
// operator endpoints for reservation state.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aidanalabs/agenda-bot/internal/messaging"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

var webhookTracer = otel.Tracer("agenda-bot/http/webhook")

const twimlEmptyAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundHandler processes one inbound message end to end.
type InboundHandler interface {
	HandleInbound(ctx context.Context, channel, from, body, mediaURL string) error
}

// WhatsAppWebhookHandler receives Twilio WhatsApp deliveries.
type WhatsAppWebhookHandler struct {
	inbound    InboundHandler
	authToken  string
	webhookURL string
	logger     *logging.Logger
}

// NewWhatsAppWebhookHandler creates the webhook handler. authToken enables
// Twilio signature validation; webhookURL must be the public URL Twilio signs.
func NewWhatsAppWebhookHandler(inbound InboundHandler, authToken, webhookURL string, logger *logging.Logger) *WhatsAppWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		inbound:    inbound,
		authToken:  authToken,
		webhookURL: webhookURL,
		logger:     logger,
	}
}

// Handle processes POST /webhooks/whatsapp. Twilio retries on non-2xx, so
// processing failures after dedupe still return 200; the interaction log
// absorbs the replays.
func (h *WhatsAppWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhook.whatsapp")
	defer span.End()

	if h.authToken != "" {
		if !messaging.ValidateTwilioSignature(r, h.authToken, h.webhookURL) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	hook, err := messaging.ParseWhatsAppWebhook(r)
	if err != nil {
		h.logger.Error("webhook parse failed", "error", err.Error())
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("message_sid", hook.MessageSid))

	if hook.From == "" || (strings.TrimSpace(hook.Body) == "" && hook.MediaURL == "") {
		h.logger.Warn("webhook missing required fields", "message_sid", hook.MessageSid)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := h.inbound.HandleInbound(ctx, "whatsapp", hook.From, hook.Body, hook.MediaURL); err != nil {
		// Replying 5xx would make Twilio redeliver a message we already
		// logged; acknowledge and rely on the logs.
		h.logger.Error("inbound handling failed", "message_sid", hook.MessageSid, "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(twimlEmptyAck))
}
