package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// monthsByName maps multilingual month names (lowercase, no trailing
// dot) to month numbers.
var monthsByName = map[string]time.Month{
	// English
	"jan": 1, "january": 1, "feb": 2, "february": 2, "mar": 3, "march": 3,
	"apr": 4, "april": 4, "may": 5, "jun": 6, "june": 6,
	"jul": 7, "july": 7, "aug": 8, "august": 8, "sep": 9, "sept": 9,
	"september": 9, "oct": 10, "october": 10, "nov": 11, "november": 11,
	"dec": 12, "december": 12,
	// Portuguese
	"fev": 2, "fevereiro": 2, "março": 3, "abr": 4, "abril": 4,
	"mai": 5, "maio": 5, "ago": 8, "agosto": 8, "set": 9, "setembro": 9,
	"out": 10, "outubro": 10, "dez": 12, "dezembro": 12,
	"janeiro": 1, "junho": 6, "julho": 7, "novembro": 11,
	// Spanish
	"ene": 1, "enero": 1, "febrero": 2, "marzo": 3,
	"mayo": 5, "junio": 6, "julio": 7, "septiembre": 9,
	"octubre": 10, "noviembre": 11, "dic": 12, "diciembre": 12,
	// German
	"mär": 3, "märz": 3, "okt": 10, "oktober": 10, "dezember": 12,
	// Scandinavian
	"maj": 5, "marts": 3, "juni": 6, "juli": 7, "augusti": 8,
}

var (
	dayMonthYearRe = regexp.MustCompile(`^(\d{1,2})\s+(?:de\s+)?([A-Za-zÀ-ÿ]+)\.?\s+(?:de\s+)?(\d{4})`)
	monthDayYearRe = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{1,2}),?\s+(\d{4})`)
)

// numericLayouts are tried first, before month-name resolution.
var numericLayouts = []string{
	"2006-01-02", "02/01/2006", "02.01.2006", "02-01-2006",
}

// fallbackLayouts are the last resort after month-name resolution.
var fallbackLayouts = []string{
	"2 Jan 2006", "2 January 2006", "Jan 2, 2006", "January 2, 2006",
}

// ParseFlightDate parses a date string that may use Portuguese,
// Spanish, German or Scandinavian month names, e.g. "16 de mar. de
// 2026", "16 Mar 2026", "2026-03-16". The returned date is midnight
// UTC. Unparseable input returns ok=false; it never panics or errors.
func ParseFlightDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)

	for _, layout := range numericLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC(), true
		}
	}

	// "16 de mar. de 2026" or "16 Mar 2026" or "28 okt 2025".
	if m := dayMonthYearRe.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		name := strings.TrimSuffix(strings.ToLower(m[2]), ".")
		if month, ok := monthsByName[name]; ok {
			if d, ok := makeDate(year, month, day); ok {
				return d, true
			}
		}
	}

	// English "Mar 16, 2026".
	if m := monthDayYearRe.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month, ok := monthsByName[strings.ToLower(m[1])]; ok {
			if d, ok := makeDate(year, month, day); ok {
				return d, true
			}
		}
	}

	for _, layout := range fallbackLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC(), true
		}
	}

	return time.Time{}, false
}

// makeDate validates the day against the month before constructing the
// date, since time.Date silently normalizes overflow.
func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if day < 1 || day > daysIn(year, month) {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// combineDateTime merges a calendar date with an "HH:MM" clock string
// into a single UTC instant.
func combineDateTime(date time.Time, clock string) (time.Time, bool) {
	h, m, ok := parseClock(clock)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, time.UTC), true
}

func parseClock(clock string) (hour, minute int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// resolveYear fills in the year of a yearless date (parsed as year 0)
// from the message's received date. If the resolved date would precede
// the received date, the flight is assumed to be in the following year
// (a year-end booking).
func resolveYear(d time.Time, received *time.Time) time.Time {
	if d.Year() != 0 {
		return d
	}

	refYear := time.Now().UTC().Year()
	if received != nil {
		refYear = received.Year()
	}

	candidate := time.Date(refYear, d.Month(), d.Day(), d.Hour(), d.Minute(), 0, 0, time.UTC)
	if received != nil {
		refDate := time.Date(received.Year(), received.Month(), received.Day(), 0, 0, 0, 0, time.UTC)
		if candidate.Before(refDate) {
			candidate = candidate.AddDate(1, 0, 0)
		}
	}
	return candidate
}
