package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Conversation statuses.
const (
	StatusActive = "activa"
	StatusClosed = "cerrada"
)

// Stages the bot tracks between messages. Empty means no flow in progress.
const (
	StageNone            = ""
	StageAwaitingZone    = "esperando_zona"
	StageAwaitingConfirm = "esperando_confirmacion"
	StageAwaitingContact = "esperando_datos"
	StageAwaitingRating  = "esperando_calificacion"
	StageQuoteSent       = "cotizacion_enviada"
)

// Lead tiers.
const (
	TierQualified   = "calificado"
	TierMedium      = "medio"
	TierUnqualified = "no_calificado"
)

// protectedStages are never overwritten by automatic re-tagging: a human or
// a commercial milestone set them deliberately.
var protectedStages = map[string]bool{
	StageQuoteSent: true,
}

// StageProtected reports whether automated flows must leave the stage alone.
func StageProtected(stage string) bool {
	return protectedStages[stage]
}

// Conversation is one user's thread on one channel. The (channel, address)
// pair is unique; address is the user's E.164 number for WhatsApp.
type Conversation struct {
	ID                uuid.UUID
	Channel           string
	Address           string
	Status            string
	Stage             string
	LeadTier          string
	HumanFlag         bool
	ProfileTag        string
	QuoteSent         bool
	FollowupAttempts  int
	LastFollowupAt    *time.Time
	LastUserMessageAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
