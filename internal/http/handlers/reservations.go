package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/reservation"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

// StatusUpdater transitions a reservation's lifecycle status.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
}

// ReservationStatusHandler lets operators move reservations through their
// lifecycle. Marking one completada makes the survey loop pick it up.
type ReservationStatusHandler struct {
	store  StatusUpdater
	logger *logging.Logger
}

func NewReservationStatusHandler(store StatusUpdater, logger *logging.Logger) *ReservationStatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReservationStatusHandler{store: store, logger: logger}
}

type statusUpdateRequest struct {
	ReservationID string `json:"reservation_id"`
	NewState      string `json:"new_state"`
}

type statusUpdateResponse struct {
	Updated bool `json:"updated"`
}

// Handle processes POST /reservations/status.
func (h *ReservationStatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.ReservationID)
	if err != nil {
		http.Error(w, "invalid reservation_id", http.StatusBadRequest)
		return
	}
	if !reservation.ValidStatus(req.NewState) {
		http.Error(w, "unknown new_state", http.StatusBadRequest)
		return
	}

	updated, err := h.store.UpdateStatus(r.Context(), id, req.NewState)
	if err != nil {
		h.logger.Error("reservation status update failed", "reservation_id", req.ReservationID, "error", err.Error())
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("reservation status updated",
		"reservation_id", req.ReservationID,
		"new_state", req.NewState,
		"updated", updated,
	)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusUpdateResponse{Updated: updated})
}
