package extract

import (
	"regexp"
	"strings"
)

var (
	bookingRefRe = regexp.MustCompile(`(?i)(?:C[óo]digo\s+de\s+reserva|booking\s*(?:ref|code|reference)|Bokning|Reserva|PNR|Buchungscode|Buchungsnummer|reservation\s*code|confirmation\s*code|Reservierungscode)[:\s\[]+([A-Z0-9]{5,8})`)
	bookingShortRe = regexp.MustCompile(`(?i)Booking\s*:\s*([A-Z0-9]{5,8})`)

	// Passenger name appearing on the line after a multilingual list
	// marker, optionally bulleted. At least two capitalized words.
	passengerListRe = regexp.MustCompile(`(?i)(?:Lista\s+de\s+passageiros|passenger\s*(?:list|name)|Passagier|Reisender|passager|passasjer)[\s:]*\n\s*(?:[-•·]\s*)?([A-ZÀ-ÿ][a-zA-ZÀ-ÿ]+(?:[ ]+[A-ZÀ-ÿ][a-zA-ZÀ-ÿ]+)+)`)
)

// findBookingReference scans subject then body for a booking reference
// in any of the supported languages. Returns the uppercased code or "".
func findBookingReference(subject, body string) string {
	for _, text := range []string{subject, body} {
		if m := bookingRefRe.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	if m := bookingShortRe.FindStringSubmatch(body); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// findPassengerName looks for a passenger list in the body and returns
// the first listed name, or "".
func findPassengerName(body string) string {
	if m := passengerListRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// cabinSynonyms maps cabin names in several languages, and single
// letter fare codes, to the canonical class names.
var cabinSynonyms = map[string]string{
	"economy": "economy", "eco": "economy", "y": "economy",
	"premium economy": "premium_economy", "premium": "premium_economy", "w": "premium_economy",
	"business": "business", "j": "business", "c": "business",
	"first": "first", "f": "first",
	"econômica": "economy", "económica": "economy", "ejecutiva": "business",
}

// normalizeCabin maps a raw cabin label to a canonical class, or ""
// when unrecognized.
func normalizeCabin(raw string) string {
	return cabinSynonyms[strings.ToLower(strings.TrimSpace(raw))]
}
