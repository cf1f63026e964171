package reservation

import (
	"fmt"
	"strings"
	"time"
)

// User-facing copy. All strings are rendered in the tenant timezone.

func formatInstant(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return fmt.Sprintf("%s a las %s", local.Format("02/01/2006"), local.Format("15:04"))
}

func MsgAskDateTime() string {
	return "¿Para qué fecha y hora te gustaría reservar? Por ejemplo: \"el viernes a las 7 de la tarde\"."
}

func MsgPastDate() string {
	return "Esa fecha ya pasó 😅 ¿Me das una fecha y hora futuras para tu reserva?"
}

func MsgSlotTaken() string {
	return "Ese horario ya está ocupado. ¿Te funciona otra fecha u hora?"
}

func MsgAskZone(zones []string) string {
	return fmt.Sprintf("¿En qué zona te gustaría? Tenemos: %s.", strings.Join(zones, ", "))
}

func MsgInvalidZone(zones []string) string {
	return fmt.Sprintf("No reconozco esa zona 🙈 Las opciones son: %s.", strings.Join(zones, ", "))
}

func MsgSummary(p Pending, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("Perfecto, esto es lo que tengo:\n")
	fmt.Fprintf(&b, "• Servicio: %s\n", p.Service)
	fmt.Fprintf(&b, "• Fecha: %s\n", formatInstant(p.StartsAt, loc))
	if p.Zone != "" {
		fmt.Fprintf(&b, "• Zona: %s\n", p.Zone)
	}
	b.WriteString("¿Confirmas la reserva? (sí / no)")
	return b.String()
}

func MsgAskContact() string {
	return "¡Casi listo! Para terminar necesito tu nombre completo y tu correo electrónico, por favor."
}

func MsgInvalidContact() string {
	return "No pude leer bien tus datos 🙏 Envíame tu nombre y un correo válido, por ejemplo: \"Ana López, ana@correo.com\"."
}

func MsgConfirmed(p Pending, loc *time.Location) string {
	return fmt.Sprintf("¡Reserva confirmada! 🎉 Te esperamos para %s el %s. Te enviaré un recordatorio antes de tu cita.",
		p.Service, formatInstant(p.StartsAt, loc))
}

func MsgApology() string {
	return "Ups, tuve un problema para procesar tu mensaje 😔 ¿Me lo repites, por favor?"
}

func MsgReminder24h(r Reservation, loc *time.Location) string {
	return fmt.Sprintf("¡Hola! Te recuerdo tu reserva de %s mañana, el %s. ¡Te esperamos!",
		r.Service, formatInstant(r.StartsAt, loc))
}

func MsgReminder1h(r Reservation, loc *time.Location) string {
	return fmt.Sprintf("¡Tu reserva de %s es en una hora! Te esperamos a las %s.",
		r.Service, r.StartsAt.In(loc).Format("15:04"))
}

func MsgAttendanceCheck(r Reservation) string {
	return fmt.Sprintf("¡Hola! ¿Pudiste asistir a tu reserva de %s? Responde sí o no, por favor.", r.Service)
}

func MsgAttendanceThanks(attended bool) string {
	if attended {
		return "¡Gracias por tu visita! 💛"
	}
	return "Gracias por avisar. Cuando quieras reagendar, aquí estoy."
}

func MsgSurvey() string {
	return "¡Gracias por visitarnos! ¿Cómo calificarías tu experiencia del 1 al 5? Puedes agregar un comentario si gustas."
}

func MsgSurveyRetry() string {
	return "¡Gracias! Solo necesito un número del 1 al 5 para tu calificación 🙂"
}

func MsgRatingThanks(score int) string {
	if score >= 4 {
		return "¡Mil gracias! Nos alegra que la pasaras bien 🥳"
	}
	return "Gracias por tu honestidad, trabajaremos para mejorar 🙏"
}

func MsgEvicted() string {
	return "Tu reserva pendiente se canceló automáticamente por inactividad. Si aún la quieres, escríbeme de nuevo y la agendamos 🙂"
}

func MsgAborted() string {
	return "De acuerdo, no agendo nada por ahora. Si cambias de opinión, aquí estoy 🙂"
}

func MsgStatus(r Reservation, loc *time.Location) string {
	return fmt.Sprintf("Tu próxima reserva de %s es el %s y está %s.",
		r.Service, formatInstant(r.StartsAt, loc), r.Status)
}

func MsgNoUpcoming() string {
	return "No encuentro ninguna reserva próxima a tu nombre. ¿Quieres agendar una?"
}

func MsgCancelled(r Reservation, loc *time.Location) string {
	return fmt.Sprintf("Listo, cancelé tu reserva de %s del %s. Cuando quieras reagendar, escríbeme 🙂",
		r.Service, formatInstant(r.StartsAt, loc))
}

func MsgFollowupQuote() string {
	return "¡Hola! Te envié una cotización hace unos días, ¿tuviste oportunidad de revisarla? Cualquier duda, aquí estoy 🙂"
}

func MsgFollowup(tier string) string {
	switch tier {
	case "calificado":
		return "¡Hola! Quedamos pendientes de tu reserva, ¿te gustaría retomarla? Tengo horarios disponibles esta semana 🙂"
	case "medio":
		return "¡Hola! ¿Sigues interesado? Con gusto resuelvo cualquier duda que tengas."
	default:
		return "¡Hola! Por aquí sigo si necesitas algo 🙂"
	}
}
