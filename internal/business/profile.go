// Package business provides per-tenant bot configuration and business logic.
package business

import (
	"strings"
	"time"
)

// Capability is a behavior the bot exposes for a tenant. The set is resolved
// once from the profile's template kind; all runtime branching checks the set
// instead of string-matching template names at call sites.
type Capability string

const (
	CapBooking     Capability = "booking"
	CapLeadScoring Capability = "lead_scoring"
	CapFollowup    Capability = "followup"
	CapSurvey      Capability = "survey"
	CapReminders   Capability = "reminders"
)

// Template kinds mirror the product's bot catalog.
const (
	TemplateVentas    = "ventas"
	TemplateReservas  = "reservas"
	TemplateAsistente = "asistente"
	TemplateGenerico  = "generico"
)

var templateCapabilities = map[string][]Capability{
	TemplateVentas:    {CapLeadScoring, CapFollowup},
	TemplateReservas:  {CapBooking, CapReminders, CapSurvey, CapLeadScoring, CapFollowup},
	TemplateAsistente: {CapBooking, CapReminders, CapLeadScoring},
	TemplateGenerico:  {CapLeadScoring},
}

// TierThreshold holds the silence threshold and attempt cap for one lead tier.
type TierThreshold struct {
	Silence  time.Duration `json:"silence"`
	MaxTries int           `json:"max_tries"`
}

// Profile holds tenant-specific configuration consumed by the core.
type Profile struct {
	OrgID        string `json:"org_id"`
	BusinessName string `json:"business_name"`
	BotName      string `json:"bot_name"`
	Template     string `json:"template"`
	// Timezone is the reference timezone all proposed instants are compared
	// in; stored times are UTC, display is local.
	Timezone string `json:"timezone"`

	// Booking rules
	SingleSlot   bool     `json:"single_slot"`
	RequireZone  bool     `json:"require_zone"`
	AllowedZones []string `json:"allowed_zones,omitempty"`

	// Re-engagement thresholds per tier, plus the fixed quote-stage
	// threshold that applies when a quote was sent.
	Thresholds     map[string]TierThreshold `json:"thresholds,omitempty"`
	QuoteThreshold time.Duration            `json:"quote_threshold"`

	// Persona context injected into free-form replies.
	PersonaPrompt string `json:"persona_prompt,omitempty"`
}

// DefaultProfile returns the configuration used when a tenant has none stored.
func DefaultProfile(orgID string) *Profile {
	return &Profile{
		OrgID:        orgID,
		BusinessName: "nuestro negocio",
		BotName:      "AIDANA",
		Template:     TemplateReservas,
		Timezone:     "America/Mexico_City",
		SingleSlot:   false,
		RequireZone:  false,
		AllowedZones: []string{"Salón", "Terraza", "VIP"},
		Thresholds: map[string]TierThreshold{
			"calificado":    {Silence: 72 * time.Hour, MaxTries: 3},
			"medio":         {Silence: 48 * time.Hour, MaxTries: 3},
			"no_calificado": {Silence: 24 * time.Hour, MaxTries: 3},
		},
		QuoteThreshold: 7 * 24 * time.Hour,
	}
}

// Capabilities resolves the tenant's capability set from its template kind.
func (p *Profile) Capabilities() []Capability {
	caps, ok := templateCapabilities[p.Template]
	if !ok {
		caps = templateCapabilities[TemplateGenerico]
	}
	return caps
}

// Has reports whether the tenant's template enables a capability.
func (p *Profile) Has(c Capability) bool {
	for _, cap := range p.Capabilities() {
		if cap == c {
			return true
		}
	}
	return false
}

// Location returns the tenant's reference *time.Location, falling back to UTC.
func (p *Profile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ZoneAllowed matches a user answer against the allowed zone set,
// case-insensitively. Returns the canonical zone spelling.
func (p *Profile) ZoneAllowed(answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	for _, z := range p.AllowedZones {
		if strings.EqualFold(z, answer) {
			return z, true
		}
	}
	return "", false
}

// ThresholdFor returns the re-engagement threshold for a lead tier. Unknown
// tiers use the most conservative (no_calificado) threshold.
func (p *Profile) ThresholdFor(tier string) TierThreshold {
	if t, ok := p.Thresholds[tier]; ok {
		return t
	}
	if t, ok := p.Thresholds["no_calificado"]; ok {
		return t
	}
	return TierThreshold{Silence: 24 * time.Hour, MaxTries: 3}
}
