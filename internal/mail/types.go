package mail

import (
	"strings"
	"time"
)

// NormalizedMessage is the canonical form of a fetched or delivered
// email, produced once per message and never mutated afterwards.
type NormalizedMessage struct {
	// MessageID is the Message-ID header (or a synthetic fallback),
	// used for deduplication.
	MessageID string

	// Sender is the decoded From header.
	Sender string

	// Subject is the decoded Subject header.
	Subject string

	// PlainBody is the text/plain part, if any.
	PlainBody string

	// HTMLBody is the raw text/html part, if any. Structured
	// extractors parse this directly.
	HTMLBody string

	// HTMLText is the HTML part converted to block-structured plain
	// text. Many airlines put itinerary details only in the HTML part.
	HTMLText string

	// ReceivedAt is the Date header; nil when the header is missing or
	// unparseable.
	ReceivedAt *time.Time
}

// Body returns the plain and HTML-derived text joined, so extraction
// patterns can match data from either part.
func (m *NormalizedMessage) Body() string {
	var parts []string
	if p := strings.TrimSpace(m.PlainBody); p != "" {
		parts = append(parts, p)
	}
	if h := strings.TrimSpace(m.HTMLText); h != "" {
		parts = append(parts, h)
	}
	return strings.Join(parts, "\n\n")
}
