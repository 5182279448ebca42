// Package extract turns a matched confirmation email into flight legs.
//
// Extraction is a cascade of strategies, tried in a fixed order: a
// structured HTML extractor dedicated to the airline's template (when
// the message carries an HTML part and the rule names one), then a
// carrier-specific text extractor where one exists, and finally a
// generic extractor driven by the rule's body pattern with named
// capture groups. The first strategy that yields legs wins.
package extract

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/rules"
)

// Leg is a single extracted flight segment. Times are UTC.
type Leg struct {
	AirlineName       string
	AirlineCode       string
	FlightNumber      string
	DepartureAirport  string
	ArrivalAirport    string
	DepartureTime     time.Time
	ArrivalTime       time.Time
	BookingReference  string
	PassengerName     string
	Seat              string
	CabinClass        string
	DepartureTerminal string
	ArrivalTerminal   string
	DepartureGate     string
	ArrivalGate       string
}

// Valid reports whether the leg carries the minimum fields required to
// persist it: a flight number, both airports, and both instants.
func (l Leg) Valid() bool {
	return l.FlightNumber != "" && l.DepartureAirport != "" && l.ArrivalAirport != "" &&
		!l.DepartureTime.IsZero() && !l.ArrivalTime.IsZero()
}

// Engine runs the extraction cascade for a message and its matched
// rule.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// strategy is one extraction approach. Strategies form a closed set
// tried in a fixed order; an empty result falls through to the next
// applicable strategy unless the strategy is terminal.
type strategy struct {
	name     string
	terminal bool
	applies  func(msg *mail.NormalizedMessage, rule *rules.AirlineRule) bool
	run      func(e *Engine, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg
}

var strategies = []strategy{
	{
		name: "structured",
		applies: func(msg *mail.NormalizedMessage, rule *rules.AirlineRule) bool {
			return msg.HTMLBody != "" && rule.Extractor != ""
		},
		run: func(e *Engine, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
			return extractStructured(msg, rule, e.logger)
		},
	},
	{
		// The LATAM text extractor owns its format completely; the
		// generic pattern would misread connection blocks, so no
		// fallthrough.
		name:     "latam-text",
		terminal: true,
		applies: func(_ *mail.NormalizedMessage, rule *rules.AirlineRule) bool {
			return rule.Extractor == "latam"
		},
		run: func(_ *Engine, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
			return extractLATAMText(msg, rule)
		},
	},
	{
		name:    "generic",
		applies: func(*mail.NormalizedMessage, *rules.AirlineRule) bool { return true },
		run: func(e *Engine, msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
			return e.extractGeneric(msg, rule)
		},
	},
}

// Extract returns all flight legs found in the message. A message that
// matches a rule but yields no legs returns an empty slice; failures
// inside one strategy fall through to the next.
func (e *Engine) Extract(msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	for _, s := range strategies {
		if !s.applies(msg, rule) {
			continue
		}
		legs := s.run(e, msg, rule)
		if len(legs) > 0 {
			e.logger.Debug("extraction strategy yielded flights",
				zap.String("strategy", s.name),
				zap.String("airline", rule.AirlineName),
				zap.Int("count", len(legs)))
			return legs
		}
		if s.terminal {
			return nil
		}
	}
	return nil
}

// contextDateRe finds plain "16 Mar 2026" style dates used to backfill
// a departure date for legs whose pattern match lacks one (connecting
// legs sharing a date header).
var contextDateRe = regexp.MustCompile(`(\d{1,2}\s+[A-Za-zÀ-ÿ]+\s+\d{4})`)

// extractGeneric applies the rule's body pattern across the text body,
// building one leg per match from the pattern's named groups.
func (e *Engine) extractGeneric(msg *mail.NormalizedMessage, rule *rules.AirlineRule) []Leg {
	bodyRe, err := rule.BodyRegexp()
	if err != nil {
		e.logger.Error("invalid body pattern",
			zap.String("airline", rule.AirlineName), zap.Error(err))
		return nil
	}

	body := msg.Body()
	sharedBooking := findBookingReference(msg.Subject, body)
	sharedPassenger := findPassengerName(body)

	matches := bodyRe.FindAllStringSubmatchIndex(body, -1)
	if matches == nil {
		e.logger.Debug("no body pattern matches",
			zap.String("airline", rule.AirlineName),
			zap.String("message_id", msg.MessageID))
		return nil
	}

	var legs []Leg
	for _, m := range matches {
		group := func(name string) string {
			return strings.TrimSpace(namedGroup(bodyRe, body, m, name))
		}

		flightNum := group("flight_number")
		if flightNum != "" && isAllDigits(flightNum) && rule.AirlineCode != "" {
			flightNum = rule.AirlineCode + flightNum
		}

		leg := Leg{
			AirlineName:       rule.AirlineName,
			AirlineCode:       rule.AirlineCode,
			FlightNumber:      flightNum,
			DepartureAirport:  strings.ToUpper(group("departure_airport")),
			ArrivalAirport:    strings.ToUpper(group("arrival_airport")),
			BookingReference:  firstNonEmpty(group("booking_reference"), sharedBooking),
			PassengerName:     firstNonEmpty(group("passenger_name"), sharedPassenger),
			Seat:              group("seat"),
			CabinClass:        normalizeCabin(group("cabin_class")),
			DepartureTerminal: group("departure_terminal"),
			ArrivalTerminal:   group("arrival_terminal"),
			DepartureGate:     group("departure_gate"),
			ArrivalGate:       group("arrival_gate"),
		}

		depDateStr := group("departure_date")
		depTimeStr := group("departure_time")

		// Connecting legs often share a single date header. Use the
		// closest date preceding this match in the body.
		if depDateStr == "" {
			ctx := contextDateRe.FindAllStringSubmatch(body[:m[0]], -1)
			if len(ctx) > 0 {
				depDateStr = ctx[len(ctx)-1][1]
			}
		}

		arrDateStr := group("arrival_date")
		if arrDateStr == "" {
			arrDateStr = depDateStr
		}
		arrTimeStr := group("arrival_time")

		depDate, ok := e.parseDate(depDateStr, rule)
		if !ok || depTimeStr == "" {
			e.logger.Warn("cannot parse departure datetime",
				zap.String("date", depDateStr), zap.String("time", depTimeStr))
			continue
		}
		depDate = resolveYear(depDate, msg.ReceivedAt)
		depDT, ok := combineDateTime(depDate, depTimeStr)
		if !ok {
			e.logger.Warn("bad departure time", zap.String("time", depTimeStr))
			continue
		}
		leg.DepartureTime = depDT

		arrDate, ok := e.parseDate(arrDateStr, rule)
		if !ok {
			arrDate = depDate // assume same day
		} else {
			arrDate = resolveYear(arrDate, msg.ReceivedAt)
		}
		if arrTimeStr == "" {
			e.logger.Warn("no arrival time found, skipping leg",
				zap.String("flight", flightNum))
			continue
		}
		arrDT, ok := combineDateTime(arrDate, arrTimeStr)
		if !ok {
			e.logger.Warn("bad arrival time", zap.String("time", arrTimeStr))
			continue
		}
		leg.ArrivalTime = arrDT

		if leg.Valid() {
			legs = append(legs, leg)
		} else {
			e.logger.Debug("skipping incomplete flight match",
				zap.String("flight", flightNum))
		}
	}

	return legs
}

// parseDate tries the multilingual parser first, then the rule's own
// date layout. A yearless layout parses to year 0, resolved later from
// the message date.
func (e *Engine) parseDate(raw string, rule *rules.AirlineRule) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if d, ok := ParseFlightDate(raw); ok {
		return d, true
	}
	if rule.DateLayout != "" {
		if d, err := time.Parse(rule.DateLayout, raw); err == nil {
			return d.UTC(), true
		}
	}
	return time.Time{}, false
}

// namedGroup returns the submatch for a named capture group out of a
// FindAllStringSubmatchIndex match, or "" if absent or unmatched.
func namedGroup(re *regexp.Regexp, s string, m []int, name string) string {
	for i, n := range re.SubexpNames() {
		if n != name {
			continue
		}
		if 2*i+1 >= len(m) || m[2*i] < 0 {
			return ""
		}
		return s[m[2*i]:m[2*i+1]]
	}
	return ""
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
