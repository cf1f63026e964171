package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

// ConversationFlagStore mutates operator-controlled conversation flags.
type ConversationFlagStore interface {
	MarkQuoteSent(ctx context.Context, id uuid.UUID) (bool, error)
	SetHumanFlag(ctx context.Context, id uuid.UUID, human bool) error
}

// ConversationOpsHandler exposes the operator toggles: marking that a quote
// went out, which parks the conversation in the protected quote stage and
// arms the quote re-engagement loop, and handing a conversation to a human
// (or back to the bot).
type ConversationOpsHandler struct {
	store  ConversationFlagStore
	logger *logging.Logger
}

func NewConversationOpsHandler(store ConversationFlagStore, logger *logging.Logger) *ConversationOpsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationOpsHandler{store: store, logger: logger}
}

type quoteRequest struct {
	ConversationID string `json:"conversation_id"`
}

type quoteResponse struct {
	Marked bool `json:"marked"`
}

// HandleQuote processes POST /conversations/quote. Marking is idempotent:
// a second call on the same conversation reports marked=false.
func (h *ConversationOpsHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}

	marked, err := h.store.MarkQuoteSent(r.Context(), id)
	if err != nil {
		h.logger.Error("quote mark failed", "conversation_id", req.ConversationID, "error", err.Error())
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("quote marked", "conversation_id", req.ConversationID, "marked", marked)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(quoteResponse{Marked: marked})
}

type humanFlagRequest struct {
	ConversationID string `json:"conversation_id"`
	Human          bool   `json:"human"`
}

// HandleHumanFlag processes POST /conversations/human.
func (h *ConversationOpsHandler) HandleHumanFlag(w http.ResponseWriter, r *http.Request) {
	var req humanFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}

	if err := h.store.SetHumanFlag(r.Context(), id, req.Human); err != nil {
		h.logger.Error("human flag update failed", "conversation_id", req.ConversationID, "error", err.Error())
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("human flag updated", "conversation_id", req.ConversationID, "human", req.Human)
	w.WriteHeader(http.StatusNoContent)
}
