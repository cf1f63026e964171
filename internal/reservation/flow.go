package reservation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/classifier"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

// Extractor is the slice of the classifier the booking flow needs.
type Extractor interface {
	ExtractBooking(ctx context.Context, text string) (classifier.BookingFields, error)
	ExtractContact(ctx context.Context, text string) (classifier.ContactFields, error)
}

// Flow drives one pending booking from first mention to a persisted
// reservation. Every step returns the reply to send; a classifier failure at
// any step produces an apology and leaves the stored sub-state untouched, so
// the user can simply retry.
type Flow struct {
	store     *Store
	extractor Extractor
	logger    *logging.Logger
	now       func() time.Time
}

func NewFlow(store *Store, extractor Extractor, logger *logging.Logger) *Flow {
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		store:     store,
		extractor: extractor,
		logger:    logger,
		now:       time.Now,
	}
}

var affirmatives = map[string]bool{
	"si": true, "sí": true, "confirmo": true, "ok": true, "okay": true,
	"claro": true, "dale": true, "va": true, "sale": true,
}

var negatives = map[string]bool{
	"no": true, "nop": true, "no pude": true, "no fui": true, "no asisti": true, "no asistí": true,
}

var tokenCleaner = regexp.MustCompile(`[.,;:!¡¿?]+`)

// IsAffirmative reports whether the message is an affirmation token.
func IsAffirmative(text string) bool {
	return affirmatives[cleanToken(text)]
}

// IsNegative reports whether the message is a negation token.
func IsNegative(text string) bool {
	return negatives[cleanToken(text)]
}

func cleanToken(text string) string {
	return strings.ToLower(strings.TrimSpace(tokenCleaner.ReplaceAllString(text, "")))
}

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

// ValidEmail checks the local@domain.tld shape, nothing more.
func ValidEmail(email string) bool {
	return emailRE.MatchString(strings.TrimSpace(email))
}

// Start handles a booking-intent message when no pending booking exists.
// On success the pending record is persisted in the first reachable
// sub-state and the returned reply prompts for what comes next. Extraction
// and validation failures re-prompt without persisting anything.
func (f *Flow) Start(ctx context.Context, profile *business.Profile, userID string, convID uuid.UUID, text string) (string, error) {
	fields, err := f.extractor.ExtractBooking(ctx, text)
	if err != nil {
		f.logger.Warn("booking extraction failed", "user_id", userID, "error", err.Error())
		return MsgApology(), nil
	}
	if fields.DateText == "" || fields.TimeText == "" {
		return MsgAskDateTime(), nil
	}

	loc := profile.Location()
	startsAt, err := ResolveInstant(fields.DateText, fields.TimeText, f.now(), loc)
	if err != nil {
		return MsgAskDateTime(), nil
	}
	if !startsAt.After(f.now()) {
		return MsgPastDate(), nil
	}

	if profile.SingleSlot {
		taken, err := f.store.HasActiveAt(ctx, startsAt)
		if err != nil {
			f.logger.Error("slot check failed", "user_id", userID, "error", err.Error())
			return MsgApology(), nil
		}
		if taken {
			return MsgSlotTaken(), nil
		}
	}

	service := fields.Service
	if service == "" {
		service = "reserva"
	}
	pending := Pending{
		UserID:         userID,
		Service:        service,
		StartsAt:       startsAt,
		ConversationID: convID,
	}

	if profile.RequireZone {
		pending.Stage = StageAwaitingZone
		if err := f.store.UpsertPending(ctx, pending); err != nil {
			return MsgApology(), err
		}
		return MsgAskZone(profile.AllowedZones), nil
	}

	pending.Stage = StageAwaitingConfirm
	if err := f.store.UpsertPending(ctx, pending); err != nil {
		return MsgApology(), err
	}
	return MsgSummary(pending, loc), nil
}

// Advance feeds one user message into an existing pending booking. handled
// is false when the message does not belong to the flow (ordinary
// conversation during esperando_confirmacion), letting the caller route it
// elsewhere without losing the pending state.
func (f *Flow) Advance(ctx context.Context, profile *business.Profile, pending Pending, displayName, address, text string) (reply string, handled bool, err error) {
	loc := profile.Location()

	switch pending.Stage {
	case StageAwaitingZone:
		zone, ok := profile.ZoneAllowed(text)
		if !ok {
			return MsgInvalidZone(profile.AllowedZones), true, nil
		}
		pending.Zone = zone
		pending.Stage = StageAwaitingConfirm
		if err := f.store.UpsertPending(ctx, pending); err != nil {
			return MsgApology(), true, err
		}
		return MsgSummary(pending, loc), true, nil

	case StageAwaitingConfirm:
		if !IsAffirmative(text) {
			return "", false, nil
		}
		if pending.ContactName == "" || pending.ContactEmail == "" {
			pending.Stage = StageAwaitingContact
			if err := f.store.UpsertPending(ctx, pending); err != nil {
				return MsgApology(), true, err
			}
			return MsgAskContact(), true, nil
		}
		return f.confirm(ctx, pending, displayName, address, loc)

	case StageAwaitingContact:
		fields, err := f.extractor.ExtractContact(ctx, text)
		if err != nil {
			f.logger.Warn("contact extraction failed", "user_id", pending.UserID, "error", err.Error())
			return MsgApology(), true, nil
		}
		if fields.Name == "" || !ValidEmail(fields.Email) {
			return MsgInvalidContact(), true, nil
		}
		pending.ContactName = fields.Name
		pending.ContactEmail = fields.Email
		return f.confirm(ctx, pending, fields.Name, address, loc)

	default:
		f.logger.Warn("pending booking in unknown stage", "user_id", pending.UserID, "stage", pending.Stage)
		return "", false, nil
	}
}

func (f *Flow) confirm(ctx context.Context, pending Pending, displayName, address string, loc *time.Location) (string, bool, error) {
	if _, err := f.store.Promote(ctx, pending, displayName, address); err != nil {
		f.logger.Error("booking promotion failed", "user_id", pending.UserID, "error", err.Error())
		return MsgApology(), true, err
	}
	return MsgConfirmed(pending, loc), true, nil
}
