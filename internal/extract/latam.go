package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/rules"
)

// LATAM purchase confirmations list each direction with explicit
// date+time only at the overall departure and arrival. Connection
// points ("Troca de avião em:") carry layover durations instead, so
// intermediate times are estimated by splitting the total in-air time
// equally across segments.

var (
	latamDatePat    = `(\d{1,2}\s+(?:de\s+)?[A-Za-zÀ-ÿ]+\.?\s+(?:de\s+)?\d{4})`
	latamTimePat    = `(\d{1,2}:\d{2})`
	latamAirportPat = `\(([A-Z]{3})\)`
	latamFlightPat  = `([A-Z0-9]{2}\s*\d{3,5})`

	latamSegmentRe = regexp.MustCompile(`(?s)` + latamDatePat + `\s+` + latamTimePat + `.*?` + latamAirportPat)

	latamDirectionRe = regexp.MustCompile(`(?i)Voo de (?:ida|volta)|(?:Outbound|Return|Inbound)\s+(?:flight|journey)`)
	latamTrechoRe    = regexp.MustCompile(`(?i)Trecho\s+\d+`)
	latamItineraryRe = regexp.MustCompile(`(?i)Itiner[áa]rio`)

	latamConnectionRe = regexp.MustCompile(`(?is)Troca\s+de\s+avi[ãa]o\s+em:\s*([A-ZÀ-ÿ][a-zA-ZÀ-ÿ\s]*?)\s*\(([A-Z]{3})\)\s+([A-Z0-9]{2}\s*\d{3,5}).*?Tempo\s+de\s+espera:\s*(\d+)\s*hr?\s*(\d+)\s*min`)

	latamBookingRe   = regexp.MustCompile(`(?i)(?:C[óo]digo\s+de\s+reserva|booking\s*(?:ref|code|reference)|Bokning|Reserva|PNR|confirmation\s*code)[:\s\[]+([A-Z0-9]{5,8})`)
	latamPassengerRe = regexp.MustCompile(`(?i)(?:Lista\s+de\s+passageiros|passenger\s*(?:list|name))[\s:]*[-•·]?\s*([A-ZÀ-ÿ][a-zA-ZÀ-ÿ]+(?:\s+[A-ZÀ-ÿ][a-zA-ZÀ-ÿ]+)*)`)
	latamGreetingRe  = regexp.MustCompile(`(?i)(?:Ol[áa]|Hello|Hola)\s+(?:<b[^>]*>)?\s*([A-ZÀ-ÿ][a-zA-ZÀ-ÿ]+)`)
)

// extractLATAMText parses LATAM flights out of the plain-text body.
func extractLATAMText(msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	body := msg.Body()
	booking := latamBookingReference(msg.Subject, body)
	passenger := latamPassengerName(body)

	var legs []Leg
	for _, section := range splitLATAMSections(body, true) {
		dep := latamSegmentRe.FindStringSubmatch(section)
		if dep == nil {
			continue
		}
		depDateStr, depTimeStr, depAirport := dep[1], dep[2], dep[3]

		segMatches := latamSegmentRe.FindAllStringSubmatch(section, -1)
		if len(segMatches) < 2 {
			// Only one date+time+airport tuple: a direct flight whose
			// arrival airport follows the flight number.
			fre, err := regexp.Compile(`(?s)\(` + regexp.QuoteMeta(depAirport) + `\)` + `.*?` + latamFlightPat + `.*?` + latamAirportPat)
			if err != nil {
				continue
			}
			if fm := fre.FindStringSubmatch(section); fm != nil {
				if leg, ok := makeLATAMLeg(rule, depDateStr, depTimeStr, depAirport,
					depDateStr, depTimeStr, fm[2], strings.TrimSpace(fm[1]), booking, passenger); ok {
					legs = append(legs, leg)
				}
			}
			continue
		}

		arr := segMatches[len(segMatches)-1]
		arrDateStr, arrTimeStr, arrAirport := arr[1], arr[2], arr[3]

		connMatches := latamConnectionRe.FindAllStringSubmatch(section, -1)

		firstFlight := ""
		ffre, err := regexp.Compile(`\(` + regexp.QuoteMeta(depAirport) + `\)\s+` + latamFlightPat)
		if err == nil {
			if fm := ffre.FindStringSubmatch(section); fm != nil {
				firstFlight = strings.TrimSpace(fm[1])
			}
		}

		if len(connMatches) == 0 {
			if firstFlight != "" {
				if leg, ok := makeLATAMLeg(rule, depDateStr, depTimeStr, depAirport,
					arrDateStr, arrTimeStr, arrAirport, firstFlight, booking, passenger); ok {
					legs = append(legs, leg)
				}
			}
			continue
		}

		conns := make([]latamConnection, 0, len(connMatches))
		for _, cm := range connMatches {
			h, _ := strconv.Atoi(cm[4])
			m, _ := strconv.Atoi(cm[5])
			conns = append(conns, latamConnection{
				airport:      cm[2],
				flightNumber: strings.TrimSpace(cm[3]),
				layoverMin:   h*60 + m,
			})
		}

		depDate, ok := ParseFlightDate(depDateStr)
		if !ok {
			continue
		}
		arrDate, ok := ParseFlightDate(arrDateStr)
		if !ok {
			continue
		}
		depDT, ok1 := combineDateTime(depDate, depTimeStr)
		arrDT, ok2 := combineDateTime(arrDate, arrTimeStr)
		if !ok1 || !ok2 {
			continue
		}

		segments := buildLATAMChain(depAirport, arrAirport, firstFlight, conns)
		for _, leg := range interpolateLATAMSegments(rule, segments, depDT, arrDT, booking, passenger) {
			legs = append(legs, leg)
		}
	}
	return legs
}

// splitLATAMSections splits itinerary text into per-direction sections.
// Direction headers (Voo de ida/volta, Outbound/Return) take priority,
// then numbered "Trecho N" sections, then a single section from the
// "Itinerário" marker onward (or the whole text).
func splitLATAMSections(text string, itineraryFallback bool) []string {
	if starts := latamDirectionRe.FindAllStringIndex(text, -1); len(starts) > 0 {
		return sliceByStarts(text, starts)
	}
	if starts := latamTrechoRe.FindAllStringIndex(text, -1); len(starts) > 0 {
		return sliceByStarts(text, starts)
	}
	if itineraryFallback {
		if loc := latamItineraryRe.FindStringIndex(text); loc != nil {
			return []string{text[loc[0]:]}
		}
	}
	return []string{text}
}

func sliceByStarts(text string, starts [][]int) []string {
	sections := make([]string, 0, len(starts))
	for i, loc := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		sections = append(sections, text[loc[0]:end])
	}
	return sections
}

type latamConnection struct {
	airport      string
	flightNumber string
	layoverMin   int
}

type latamSegment struct {
	depAirport   string
	arrAirport   string
	flightNumber string
	layoverMin   int // layover after this segment
	nextFlight   string
}

// buildLATAMChain threads the connection list into a segment chain:
// departure → conn1 → ... → connN → arrival. Each connection announces
// the flight number of the segment that LEAVES it, so segment i flies
// under the number announced at connection i-1.
func buildLATAMChain(depAirport, arrAirport, firstFlight string, conns []latamConnection) []latamSegment {
	segments := make([]latamSegment, 0, len(conns)+1)
	prev := depAirport
	for _, conn := range conns {
		fn := firstFlight
		if len(segments) > 0 {
			fn = segments[len(segments)-1].nextFlight
		}
		segments = append(segments, latamSegment{
			depAirport:   prev,
			arrAirport:   conn.airport,
			flightNumber: fn,
			layoverMin:   conn.layoverMin,
			nextFlight:   conn.flightNumber,
		})
		prev = conn.airport
	}
	last := latamSegment{depAirport: prev, arrAirport: arrAirport, flightNumber: firstFlight}
	if len(segments) > 0 {
		last.flightNumber = segments[len(segments)-1].nextFlight
	}
	return append(segments, last)
}

// interpolateLATAMSegments estimates per-segment times: total elapsed
// minus total layover is the in-air time, split equally across
// segments. A non-positive in-air time means the parse went wrong and
// yields nothing.
func interpolateLATAMSegments(rule *rules.AirlineRule, segments []latamSegment, depDT, arrDT time.Time, booking, passenger string) []Leg {
	totalElapsed := arrDT.Sub(depDT)
	var totalLayover time.Duration
	for _, s := range segments {
		totalLayover += time.Duration(s.layoverMin) * time.Minute
	}
	totalFlight := totalElapsed - totalLayover
	if totalFlight <= 0 || len(segments) == 0 {
		return nil
	}
	perSegment := totalFlight / time.Duration(len(segments))

	var legs []Leg
	current := depDT
	for _, seg := range segments {
		leg := Leg{
			AirlineName:      rule.AirlineName,
			AirlineCode:      rule.AirlineCode,
			FlightNumber:     seg.flightNumber,
			DepartureAirport: seg.depAirport,
			ArrivalAirport:   seg.arrAirport,
			DepartureTime:    current,
			ArrivalTime:      current.Add(perSegment),
			BookingReference: booking,
			PassengerName:    passenger,
		}
		if leg.Valid() {
			legs = append(legs, leg)
		}
		current = leg.ArrivalTime.Add(time.Duration(seg.layoverMin) * time.Minute)
	}
	return legs
}

func makeLATAMLeg(rule *rules.AirlineRule, depDateStr, depTimeStr, depAirport, arrDateStr, arrTimeStr, arrAirport, flightNumber, booking, passenger string) (Leg, bool) {
	depDate, ok := ParseFlightDate(depDateStr)
	if !ok {
		return Leg{}, false
	}
	arrDate, ok := ParseFlightDate(arrDateStr)
	if !ok {
		arrDate = depDate
	}
	depDT, ok := combineDateTime(depDate, depTimeStr)
	if !ok {
		return Leg{}, false
	}
	arrDT, ok := combineDateTime(arrDate, arrTimeStr)
	if !ok {
		return Leg{}, false
	}
	leg := Leg{
		AirlineName:      rule.AirlineName,
		AirlineCode:      rule.AirlineCode,
		FlightNumber:     flightNumber,
		DepartureAirport: depAirport,
		ArrivalAirport:   arrAirport,
		DepartureTime:    depDT,
		ArrivalTime:      arrDT,
		BookingReference: booking,
		PassengerName:    passenger,
	}
	return leg, leg.Valid()
}

func latamBookingReference(subject, body string) string {
	if m := latamBookingRe.FindStringSubmatch(subject + "\n" + body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func latamPassengerName(body string) string {
	if m := latamPassengerRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := latamGreetingRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
