// Package rules defines the per-airline matching and extraction rules.
// Rules are defined in code and loaded once at process start; they are
// immutable configuration, not user data.
package rules

import (
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/mail"
)

// Version identifies the current built-in rule set as a whole. Bumping
// it forces a full mailbox rescan on each account's next sync;
// deduplication prevents double-insertion of already-known flights.
const Version = "2026-08-1"

// AirlineRule describes how to recognize and parse one airline's
// confirmation emails.
type AirlineRule struct {
	AirlineName string
	AirlineCode string

	// SenderPattern is a regex searched against the From header.
	SenderPattern string

	// SubjectPattern optionally restricts matches by subject.
	SubjectPattern string

	// BodyPattern extracts flight legs via named capture groups.
	// Required groups: flight_number, departure_airport,
	// arrival_airport, departure_time, arrival_time. Optional:
	// departure_date, arrival_date, booking_reference, passenger_name,
	// seat, cabin_class, departure_terminal, arrival_terminal,
	// departure_gate, arrival_gate.
	BodyPattern string

	// DateLayout and TimeLayout are Go reference-time layouts used as
	// a fallback when the shared multilingual date parser fails. A
	// layout without a year (e.g. "02/01") parses to year 0, which
	// triggers year inference from the message date.
	DateLayout string
	TimeLayout string

	// Extractor selects a dedicated structured-markup extractor; empty
	// means generic regex extraction only.
	Extractor string

	// Priority orders rule evaluation; higher is tried first.
	Priority int

	senderOnce sync.Once
	senderRe   *regexp.Regexp
	senderErr  error

	subjectOnce sync.Once
	subjectRe   *regexp.Regexp
	subjectErr  error

	bodyOnce sync.Once
	bodyRe   *regexp.Regexp
	bodyErr  error
}

// SenderRegexp returns the compiled sender pattern. Matching is a
// case-insensitive search, not a full match.
func (r *AirlineRule) SenderRegexp() (*regexp.Regexp, error) {
	r.senderOnce.Do(func() {
		r.senderRe, r.senderErr = regexp.Compile(`(?i)` + r.SenderPattern)
	})
	return r.senderRe, r.senderErr
}

// SubjectRegexp returns the compiled subject pattern, or (nil, nil)
// when the rule has none.
func (r *AirlineRule) SubjectRegexp() (*regexp.Regexp, error) {
	if r.SubjectPattern == "" {
		return nil, nil
	}
	r.subjectOnce.Do(func() {
		r.subjectRe, r.subjectErr = regexp.Compile(`(?i)` + r.SubjectPattern)
	})
	return r.subjectRe, r.subjectErr
}

// BodyRegexp returns the compiled body pattern. The pattern is applied
// case-insensitively with . matching newlines, mirroring how the
// patterns are written against flattened HTML text.
func (r *AirlineRule) BodyRegexp() (*regexp.Regexp, error) {
	r.bodyOnce.Do(func() {
		r.bodyRe, r.bodyErr = regexp.Compile(`(?is)` + r.BodyPattern)
	})
	return r.bodyRe, r.bodyErr
}

// Ranked returns the rules sorted by (priority desc, airline name asc).
func Ranked(rs []*AirlineRule) []*AirlineRule {
	ranked := make([]*AirlineRule, len(rs))
	copy(ranked, rs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return ranked[i].AirlineName < ranked[j].AirlineName
	})
	return ranked
}

// Match finds the first rule (in ranked order) whose sender pattern
// matches the message sender and, if the rule specifies one, whose
// subject pattern matches the subject. A rule with an invalid pattern
// is skipped with a warning; no match returns nil.
func Match(msg *mail.NormalizedMessage, rs []*AirlineRule, logger *zap.Logger) *AirlineRule {
	for _, rule := range rs {
		senderRe, err := rule.SenderRegexp()
		if err != nil {
			logger.Warn("invalid sender pattern in rule",
				zap.String("airline", rule.AirlineName), zap.Error(err))
			continue
		}
		if !senderRe.MatchString(msg.Sender) {
			continue
		}

		subjectRe, err := rule.SubjectRegexp()
		if err != nil {
			logger.Warn("invalid subject pattern in rule",
				zap.String("airline", rule.AirlineName), zap.Error(err))
			continue
		}
		if subjectRe != nil && !subjectRe.MatchString(msg.Subject) {
			continue
		}

		return rule
	}
	return nil
}
