package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/rules"
)

// Structured extractors work on the HTML part of a confirmation,
// flattened to a single whitespace-normalized line the way the
// airline's template lays it out. They are tried before the regex
// strategies; an empty result falls back.

type structuredFunc func(text string, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg

func structuredFor(extractor string) structuredFunc {
	switch extractor {
	case "latam":
		return extractLATAMStructured
	case "sas":
		return extractSASStructured
	case "lufthansa":
		return extractLufthansaStructured
	case "azul":
		return extractAzulStructured
	}
	return nil
}

func extractStructured(msg *mail.NormalizedMessage, rule *rules.AirlineRule, logger *zap.Logger) []Leg {
	fn := structuredFor(rule.Extractor)
	if fn == nil {
		return nil
	}
	text := flattenHTML(msg.HTMLBody)
	if text == "" {
		return nil
	}
	legs := fn(text, msg, rule)
	if len(legs) > 0 {
		logger.Debug("structured extractor found flights",
			zap.String("extractor", rule.Extractor), zap.Int("count", len(legs)))
	}
	return legs
}

var collapseWS = regexp.MustCompile(`\s+`)

// flattenHTML reduces an HTML document to its visible text with all
// whitespace collapsed to single spaces.
func flattenHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "title":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(collapseWS.ReplaceAllString(sb.String(), " "))
}

// ---- LATAM ----

var latamStructConnRe = regexp.MustCompile(`(?is)Troca\s+de\s+avi[ãa]o\s+em:.*?\(([A-Z]{3})\)\s+([A-Z0-9]{2}\s*\d{3,5}).*?Tempo\s+de\s+espera:\s*(\d+)\s*hr?\s*(\d+)\s*min`)

var latamFlightNumRe = regexp.MustCompile(latamFlightPat)

func extractLATAMStructured(text string, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	booking := findBookingReference(msg.Subject, text)
	passenger := latamPassengerName(text)

	var legs []Leg
	for _, section := range splitLATAMSections(text, false) {
		segMatches := latamSegmentRe.FindAllStringSubmatch(section, -1)
		flightNums := latamFlightNumRe.FindAllString(section, -1)
		if len(segMatches) < 2 || len(flightNums) == 0 {
			continue
		}

		connMatches := latamStructConnRe.FindAllStringSubmatch(section, -1)
		if len(connMatches) > 0 {
			dep, arr := segMatches[0], segMatches[len(segMatches)-1]
			depDate, ok1 := ParseFlightDate(dep[1])
			arrDate, ok2 := ParseFlightDate(arr[1])
			if !ok1 || !ok2 {
				continue
			}
			depDT, ok1 := combineDateTime(depDate, dep[2])
			arrDT, ok2 := combineDateTime(arrDate, arr[2])
			if !ok1 || !ok2 {
				continue
			}

			conns := make([]latamConnection, 0, len(connMatches))
			for _, cm := range connMatches {
				h, _ := strconv.Atoi(cm[3])
				m, _ := strconv.Atoi(cm[4])
				conns = append(conns, latamConnection{
					airport:      cm[1],
					flightNumber: strings.TrimSpace(cm[2]),
					layoverMin:   h*60 + m,
				})
			}
			first := strings.TrimSpace(flightNums[0])
			segments := buildLATAMChain(dep[3], arr[3], first, conns)
			legs = append(legs, interpolateLATAMSegments(rule, segments, depDT, arrDT, booking, passenger)...)
			continue
		}

		// No connections: tuples pair up as departure and arrival of
		// consecutive direct legs.
		for i := 0; i+1 < len(segMatches); i += 2 {
			dep, arr := segMatches[i], segMatches[i+1]
			fn := ""
			if idx := i / 2; idx < len(flightNums) {
				fn = strings.TrimSpace(flightNums[idx])
			}
			if leg, ok := makeLATAMLeg(rule, dep[1], dep[2], dep[3],
				arr[1], arr[2], arr[3], fn, booking, passenger); ok {
				legs = append(legs, leg)
			}
		}
	}
	return legs
}

// ---- SAS ----

var (
	sasDateHeaderRe = regexp.MustCompile(`(?:^|\s)(\d{1,2}\s+[A-Za-zÀ-ÿ]+\s+\d{4})(?:\s|$)`)
	sasRouteRe      = regexp.MustCompile(`([A-Z]{3})\s*[-–]\s*(?:[A-ZÀ-ÿ][A-Za-zÀ-ÿ\s-]*?\s+)?([A-Z]{3})`)
	sasTimeRangeRe  = regexp.MustCompile(`(\d{1,2}:\d{2})\s*[-–]\s*(\d{1,2}:\d{2})`)
	sasFlightNumRe  = regexp.MustCompile(`((?:SK|VS|LH|LX|OS|TP|A3|SN)\s*\d{2,5})`)
)

// extractSASStructured reads SAS templates: a date header per travel
// day followed by a "ARN – Copenhagen CPH" route, a "07:30 – 09:10"
// time range and the flight number. An arrival clock before the
// departure clock means the flight lands the next day.
func extractSASStructured(text string, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	booking := findBookingReference(msg.Subject, text)

	var legs []Leg
	headers := sasDateHeaderRe.FindAllStringSubmatchIndex(text, -1)
	for i, h := range headers {
		depDate, ok := ParseFlightDate(text[h[2]:h[3]])
		if !ok {
			continue
		}

		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		block := text[h[0]:end]

		route := sasRouteRe.FindStringSubmatch(block)
		times := sasTimeRangeRe.FindStringSubmatch(block)
		fn := sasFlightNumRe.FindStringSubmatch(block)
		if route == nil || times == nil || fn == nil {
			continue
		}

		depDT, ok1 := combineDateTime(depDate, times[1])
		arrDT, ok2 := combineDateTime(depDate, times[2])
		if !ok1 || !ok2 {
			continue
		}
		if arrDT.Before(depDT) {
			arrDT = arrDT.AddDate(0, 0, 1)
		}

		leg := Leg{
			AirlineName:      rule.AirlineName,
			AirlineCode:      rule.AirlineCode,
			FlightNumber:     strings.ReplaceAll(fn[1], " ", ""),
			DepartureAirport: route[1],
			ArrivalAirport:   route[2],
			DepartureTime:    depDT,
			ArrivalTime:      arrDT,
			BookingReference: booking,
		}
		if leg.Valid() {
			legs = append(legs, leg)
		}
	}
	return legs
}

// ---- Lufthansa ----

var lufthansaFlightNumRe = regexp.MustCompile(`(LH\s*\d{3,5})`)

// extractLufthansaStructured pairs consecutive date+time+airport
// tuples into departure and arrival of each leg; the flight number sits
// between them in the template.
func extractLufthansaStructured(text string, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	booking := findBookingReference(msg.Subject, text)

	tuples := latamSegmentRe.FindAllStringSubmatchIndex(text, -1)
	fns := lufthansaFlightNumRe.FindAllStringSubmatchIndex(text, -1)

	var legs []Leg
	for i := 0; i+1 < len(tuples); i += 2 {
		dep, arr := tuples[i], tuples[i+1]

		depDate, ok1 := ParseFlightDate(text[dep[2]:dep[3]])
		arrDate, ok2 := ParseFlightDate(text[arr[2]:arr[3]])
		if !ok1 || !ok2 {
			continue
		}
		depDT, ok1 := combineDateTime(depDate, text[dep[4]:dep[5]])
		arrDT, ok2 := combineDateTime(arrDate, text[arr[4]:arr[5]])
		if !ok1 || !ok2 {
			continue
		}

		flightNumber := ""
		for _, fn := range fns {
			if fn[0] >= dep[0] && fn[0] <= arr[0] {
				flightNumber = strings.ReplaceAll(text[fn[2]:fn[3]], " ", "")
				break
			}
		}

		leg := Leg{
			AirlineName:      rule.AirlineName,
			AirlineCode:      rule.AirlineCode,
			FlightNumber:     flightNumber,
			DepartureAirport: text[dep[6]:dep[7]],
			ArrivalAirport:   text[arr[6]:arr[7]],
			DepartureTime:    depDT,
			ArrivalTime:      arrDT,
			BookingReference: booking,
		}
		if leg.Valid() {
			legs = append(legs, leg)
		}
	}
	return legs
}

// ---- Azul ----

var azulBlockRe = regexp.MustCompile(`(?s)(?:^|\s)([A-Z]{3})\s.*?(\d{2}/\d{2})\s*[•·]\s*(\d{1,2}:\d{2}).*?(?:Voo|Flight)\s+(\d{3,5}).*?(?:^|\s)([A-Z]{3})\s.*?(\d{2}/\d{2})\s*[•·]\s*(\d{1,2}:\d{2})`)

// extractAzulStructured reads Azul templates with "REC 15/03 • 08:30
// ... Voo 4849 ... GRU 15/03 • 11:45" blocks. Dates carry no year, so
// the year comes from the email's own date.
func extractAzulStructured(text string, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	booking := findBookingReference(msg.Subject, text)

	var legs []Leg
	for _, m := range azulBlockRe.FindAllStringSubmatch(text, -1) {
		depDate, ok1 := parseDDMM(m[2], msg.ReceivedAt)
		arrDate, ok2 := parseDDMM(m[6], msg.ReceivedAt)
		if !ok1 || !ok2 {
			continue
		}
		depDT, ok1 := combineDateTime(depDate, m[3])
		arrDT, ok2 := combineDateTime(arrDate, m[7])
		if !ok1 || !ok2 {
			continue
		}

		leg := Leg{
			AirlineName:      rule.AirlineName,
			AirlineCode:      rule.AirlineCode,
			FlightNumber:     rule.AirlineCode + m[4],
			DepartureAirport: m[1],
			ArrivalAirport:   m[5],
			DepartureTime:    depDT,
			ArrivalTime:      arrDT,
			BookingReference: booking,
		}
		if leg.Valid() {
			legs = append(legs, leg)
		}
	}
	return legs
}

var ddmmRe = regexp.MustCompile(`^(\d{2})/(\d{2})`)

// parseDDMM parses a "DD/MM" date, taking the year from the message
// date and rolling over to the next year when the resolved date would
// precede it.
func parseDDMM(raw string, received *time.Time) (time.Time, bool) {
	m := ddmmRe.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return time.Time{}, false
	}

	refYear := time.Now().UTC().Year()
	if received != nil {
		refYear = received.Year()
	}
	candidate, ok := makeDate(refYear, time.Month(month), day)
	if !ok {
		return time.Time{}, false
	}
	if received != nil {
		refDate := time.Date(received.Year(), received.Month(), received.Day(), 0, 0, 0, 0, time.UTC)
		if candidate.Before(refDate) {
			candidate, ok = makeDate(refYear+1, time.Month(month), day)
			if !ok {
				return time.Time{}, false
			}
		}
	}
	return candidate, true
}
