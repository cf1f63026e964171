package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Reservation statuses. A reservation is never deleted, only transitioned.
const (
	StatusPending            = "pendiente"
	StatusAwaitingAttendance = "esperando_confirmacion"
	StatusConfirmed          = "confirmada"
	StatusNoShow             = "no_asistio"
	StatusCompleted          = "completada"
	StatusCancelled          = "cancelada"
)

// Pending booking sub-states.
const (
	StageAwaitingZone    = "esperando_zona"
	StageAwaitingConfirm = "esperando_confirmacion"
	StageAwaitingContact = "esperando_datos"
)

// Pending is an in-flight booking negotiation. One row per user address;
// confirmed bookings promote to a Reservation, abandoned ones get evicted.
type Pending struct {
	UserID         string
	Service        string
	StartsAt       time.Time
	Zone           string
	ContactName    string
	ContactEmail   string
	Stage          string
	ConversationID uuid.UUID
	CreatedAt      time.Time
}

// Reservation is a confirmed booking.
type Reservation struct {
	ID              uuid.UUID
	UserID          string
	DisplayName     string
	Address         string
	Service         string
	Zone            string
	StartsAt        time.Time
	Status          string
	Reminder24hSent bool
	Reminder1hSent  bool
	SurveySent      bool
	ConversationID  uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rating is a post-appointment satisfaction score.
type Rating struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	UserID        string
	Score         int
	Comment       string
	Channel       string
	CreatedAt     time.Time
}

// ValidStatus reports whether s is a known reservation status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusAwaitingAttendance, StatusConfirmed,
		StatusNoShow, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
