package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

var classifierTracer = otel.Tracer("agenda-bot/classifier")

// Intent is the coarse category a user message falls into.
type Intent string

const (
	IntentReserve Intent = "reservar"
	IntentStatus  Intent = "consultar"
	IntentCancel  Intent = "cancelar"
	IntentGeneral Intent = "general"
)

// BookingFields holds the raw booking details extracted from a message.
// Date and Time stay as the user's own words so the parser downstream can
// resolve relative expressions against the business timezone.
type BookingFields struct {
	Service  string `json:"servicio"`
	DateText string `json:"fecha"`
	TimeText string `json:"hora"`
}

// ContactFields holds contact details extracted from a message.
type ContactFields struct {
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

// LeadAssessment is the outcome of scoring a conversation transcript.
type LeadAssessment struct {
	Tier   string `json:"clasificacion"`
	Reason string `json:"motivo"`
}

// RatingFields holds a satisfaction rating extracted from a survey reply.
// Score is 0 when the message carries no usable rating.
type RatingFields struct {
	Score   int    `json:"puntuacion"`
	Comment string `json:"comentario"`
}

// Service wraps an LLM client with the typed classification and extraction
// tasks the conversation flow needs.
type Service struct {
	client  LLMClient
	model   string
	logger  *logging.Logger
	metrics *metrics.AgentMetrics
}

// NewService creates a classifier service backed by the given LLM client.
func NewService(client LLMClient, model string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{client: client, model: model, logger: logger}
}

// WithMetrics records per-operation model latency.
func (s *Service) WithMetrics(m *metrics.AgentMetrics) *Service {
	s.metrics = m
	return s
}

const intentSystemPrompt = `Eres un clasificador de intenciones para un asistente de reservas.

CRITICAL: Return ONLY a JSON object, nothing else. No markdown, no code fences, no explanation.

Return this exact format:
{"intencion": "reservar"}

Las intenciones posibles son:
- "reservar": el usuario quiere agendar, mover o preguntar por disponibilidad de una cita
- "consultar": el usuario pregunta por el estado de una reserva existente
- "cancelar": el usuario quiere cancelar una reserva
- "general": cualquier otra cosa (preguntas, saludos, quejas, precios)`

// DetectIntent classifies the latest user message in the context of the
// conversation history.
func (s *Service) DetectIntent(ctx context.Context, history []ChatMessage) (Intent, error) {
	ctx, span := classifierTracer.Start(ctx, "classifier.detect_intent")
	defer span.End()

	var out struct {
		Intencion string `json:"intencion"`
	}
	if err := s.completeJSON(ctx, "intent", intentSystemPrompt, transcript(history, 8), &out); err != nil {
		return "", fmt.Errorf("classifier: intent detection: %w", err)
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(out.Intencion)))
	switch intent {
	case IntentReserve, IntentStatus, IntentCancel, IntentGeneral:
	default:
		intent = IntentGeneral
	}
	span.SetAttributes(attribute.String("agenda.intent", string(intent)))
	return intent, nil
}

const bookingSystemPrompt = `Extrae los datos de una solicitud de reserva.

CRITICAL: Return ONLY a JSON object, nothing else. No markdown, no code fences, no explanation.

Return this exact format:
{"servicio": "cena", "fecha": "viernes", "hora": "8 de la noche"}

Rules:
- "servicio" es el servicio o motivo que menciona el usuario, o "" si no lo dice
- "fecha" son las palabras EXACTAS del usuario sobre el dia ("hoy", "mañana", "viernes", "15 de marzo"), o "" si no lo dice
- "hora" son las palabras EXACTAS del usuario sobre la hora ("10am", "16:00", "6 de la tarde"), o "" si no lo dice
- NO inventes ni completes datos que el usuario no dio`

// ExtractBooking pulls service, date, and time fragments from a booking
// request. Fields the user never mentioned come back empty.
func (s *Service) ExtractBooking(ctx context.Context, text string) (BookingFields, error) {
	ctx, span := classifierTracer.Start(ctx, "classifier.extract_booking")
	defer span.End()

	var out BookingFields
	if err := s.completeJSON(ctx, "booking", bookingSystemPrompt, "Mensaje: "+text, &out); err != nil {
		return BookingFields{}, fmt.Errorf("classifier: booking extraction: %w", err)
	}
	out.Service = strings.TrimSpace(out.Service)
	out.DateText = strings.TrimSpace(out.DateText)
	out.TimeText = strings.TrimSpace(out.TimeText)
	return out, nil
}

const contactSystemPrompt = `Extrae nombre y correo electronico de un mensaje.

CRITICAL: Return ONLY a JSON object, nothing else. No markdown, no code fences, no explanation.

Return this exact format:
{"nombre": "Ana Lopez", "email": "ana@example.com"}

Rules:
- "nombre" es el nombre de la persona, o "" si no aparece
- "email" es el correo, o "" si no aparece
- NO inventes datos`

// ExtractContact pulls a name and email address from a message.
func (s *Service) ExtractContact(ctx context.Context, text string) (ContactFields, error) {
	ctx, span := classifierTracer.Start(ctx, "classifier.extract_contact")
	defer span.End()

	var out ContactFields
	if err := s.completeJSON(ctx, "contact", contactSystemPrompt, "Mensaje: "+text, &out); err != nil {
		return ContactFields{}, fmt.Errorf("classifier: contact extraction: %w", err)
	}
	out.Name = strings.TrimSpace(out.Name)
	out.Email = strings.TrimSpace(strings.ToLower(out.Email))
	return out, nil
}

const leadSystemPrompt = `Eres un evaluador de prospectos. Analiza la conversacion y clasifica que tan cerca esta el usuario de concretar una reserva o compra.

CRITICAL: Return ONLY a JSON object, nothing else. No markdown, no code fences, no explanation.

Return this exact format:
{"clasificacion": "calificado", "motivo": "pidio fecha y confirmo asistencia"}

Las clasificaciones posibles son:
- "calificado": mostro intencion clara de reservar o comprar, dio datos concretos
- "medio": mostro interes pero sin compromiso (pregunta precios, duda, compara)
- "no_calificado": sin interes comercial (saludo, queja, pregunta ajena al negocio)`

// ClassifyLead scores a conversation transcript into a lead tier.
func (s *Service) ClassifyLead(ctx context.Context, history []ChatMessage) (LeadAssessment, error) {
	ctx, span := classifierTracer.Start(ctx, "classifier.classify_lead")
	defer span.End()

	var out LeadAssessment
	if err := s.completeJSON(ctx, "lead", leadSystemPrompt, transcript(history, 20), &out); err != nil {
		return LeadAssessment{}, fmt.Errorf("classifier: lead classification: %w", err)
	}

	tier := strings.ToLower(strings.TrimSpace(out.Tier))
	switch tier {
	case "calificado", "medio", "no_calificado":
	default:
		tier = "no_calificado"
	}
	out.Tier = tier
	span.SetAttributes(attribute.String("agenda.lead_tier", tier))
	return out, nil
}

const ratingSystemPrompt = `Extrae una calificacion de satisfaccion de la respuesta de un cliente a una encuesta.

CRITICAL: Return ONLY a JSON object, nothing else. No markdown, no code fences, no explanation.

Return this exact format:
{"puntuacion": 4, "comentario": "todo bien pero tardaron"}

Rules:
- "puntuacion" es un entero del 1 al 5, o 0 si el mensaje no contiene una calificacion
- "comentario" es el comentario libre del cliente, o "" si no hay
- Frases como "excelente" o "muy bien" cuentan como 5, "mal" o "pesimo" como 1`

// ExtractRating pulls a 1-5 satisfaction score from a survey reply.
// A zero score means no rating was present.
func (s *Service) ExtractRating(ctx context.Context, text string) (RatingFields, error) {
	ctx, span := classifierTracer.Start(ctx, "classifier.extract_rating")
	defer span.End()

	var out RatingFields
	if err := s.completeJSON(ctx, "rating", ratingSystemPrompt, "Respuesta: "+text, &out); err != nil {
		return RatingFields{}, fmt.Errorf("classifier: rating extraction: %w", err)
	}
	if out.Score < 0 || out.Score > 5 {
		out.Score = 0
	}
	out.Comment = strings.TrimSpace(out.Comment)
	return out, nil
}

// Reply generates a free-form conversational answer using the business
// persona prompt.
func (s *Service) Reply(ctx context.Context, persona string, history []ChatMessage) (string, error) {
	ctx, span := classifierTracer.Start(ctx, "classifier.reply")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()

	msgs := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == ChatRoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("classifier: reply requires at least one message")
	}

	start := time.Now()
	resp, err := s.client.Complete(callCtx, LLMRequest{
		Model:       s.model,
		System:      []string{persona},
		Messages:    msgs,
		MaxTokens:   512,
		Temperature: 0.6,
	})
	s.metrics.ObserveLLMLatency("reply", time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("classifier: reply generation: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// completeJSON runs a single-turn completion and decodes the JSON object the
// model returns into out. Code fences and surrounding prose are tolerated.
func (s *Service) completeJSON(ctx context.Context, op, system, userText string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := s.client.Complete(callCtx, LLMRequest{
		Model:       s.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: userText}},
		MaxTokens:   256,
		Temperature: 0,
	})
	s.metrics.ObserveLLMLatency(op, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	raw := strings.TrimSpace(resp.Text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	jsonText := raw
	if !strings.HasPrefix(jsonText, "{") {
		start := strings.Index(jsonText, "{")
		end := strings.LastIndex(jsonText, "}")
		if start >= 0 && end > start {
			jsonText = jsonText[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(jsonText), out); err != nil {
		s.logger.Warn("classifier returned unparseable output",
			"model", s.model,
			"raw", truncateForLog(raw),
		)
		return fmt.Errorf("parse model output: %w", err)
	}
	return nil
}

func transcript(history []ChatMessage, limit int) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	b.WriteString("Conversacion:\n")
	for _, msg := range history {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "…"
	}
	return s
}
