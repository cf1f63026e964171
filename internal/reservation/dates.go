package reservation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date fragments arrive as the user's own words ("mañana", "el sábado",
// "15 de marzo"). Resolution is deterministic against the tenant timezone:
// hoy/mañana use the current local date, named weekdays resolve to the next
// future occurrence with today excluded, everything else goes through
// best-effort layout parsing.

var accentNormalizer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

func normalizeFragment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = accentNormalizer.Replace(s)
	for _, prefix := range []string{"el ", "la ", "este ", "esta ", "proximo ", "proxima "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return strings.TrimSpace(s)
}

var weekdays = map[string]time.Weekday{
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
	"domingo":   time.Sunday,
}

var months = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

var dayOfMonthRE = regexp.MustCompile(`^(\d{1,2})\s+de\s+([a-z]+)(?:\s+(?:de\s+)?(\d{4}))?$`)

// ResolveDate resolves a date fragment to a local calendar date (midnight in
// loc). now anchors the relative forms.
func ResolveDate(fragment string, now time.Time, loc *time.Location) (time.Time, error) {
	frag := normalizeFragment(fragment)
	if frag == "" {
		return time.Time{}, fmt.Errorf("reservation: empty date fragment")
	}

	today := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)

	switch frag {
	case "hoy":
		return today, nil
	case "manana":
		return today.AddDate(0, 0, 1), nil
	case "pasado manana":
		return today.AddDate(0, 0, 2), nil
	}

	if wd, ok := weekdays[frag]; ok {
		// Today never counts: "lunes" said on a Monday means next Monday.
		delta := (int(wd) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, delta), nil
	}

	if m := dayOfMonthRE.FindStringSubmatch(frag); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := months[m[2]]
		if !ok {
			return time.Time{}, fmt.Errorf("reservation: unknown month %q", m[2])
		}
		year := today.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		date := time.Date(year, month, day, 0, 0, 0, 0, loc)
		if date.Day() != day {
			return time.Time{}, fmt.Errorf("reservation: invalid day %d for %s", day, m[2])
		}
		// A month/day with no year that already passed means next year.
		if m[3] == "" && date.Before(today) {
			date = date.AddDate(1, 0, 0)
		}
		return date, nil
	}

	for _, layout := range []string{"02/01/2006", "2/1/2006", "2006-01-02"} {
		if date, err := time.ParseInLocation(layout, frag, loc); err == nil {
			return date, nil
		}
	}
	for _, layout := range []string{"02/01", "2/1"} {
		if date, err := time.ParseInLocation(layout, frag, loc); err == nil {
			date = time.Date(today.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
			if date.Before(today) {
				date = date.AddDate(1, 0, 0)
			}
			return date, nil
		}
	}

	return time.Time{}, fmt.Errorf("reservation: unparseable date %q", fragment)
}

var clockRE = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.|de la manana|de la tarde|de la noche|de la madrugada|hrs|h)?$`)

// ResolveClock resolves a time-of-day fragment ("10am", "16:00",
// "6 de la tarde") to hour and minute.
func ResolveClock(fragment string) (hour, minute int, err error) {
	frag := normalizeFragment(fragment)
	frag = strings.TrimPrefix(frag, "a las ")
	frag = strings.TrimPrefix(frag, "las ")
	if frag == "mediodia" {
		return 12, 0, nil
	}
	if frag == "medianoche" {
		return 0, 0, nil
	}

	m := clockRE.FindStringSubmatch(frag)
	if m == nil {
		return 0, 0, fmt.Errorf("reservation: unparseable time %q", fragment)
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("reservation: time %q out of range", fragment)
	}

	switch m[3] {
	case "pm", "p.m.", "de la tarde", "de la noche":
		if hour < 12 {
			hour += 12
		}
	case "am", "a.m.", "de la manana", "de la madrugada":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute, nil
}

// ResolveInstant combines a date and time fragment into one absolute instant
// in loc.
func ResolveInstant(dateFrag, timeFrag string, now time.Time, loc *time.Location) (time.Time, error) {
	date, err := ResolveDate(dateFrag, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ResolveClock(timeFrag)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}
