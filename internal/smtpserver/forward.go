package smtpserver

import (
	"regexp"
	"strings"
)

// Forwarding wrapper markers as the major clients write them.
// Gmail: "---------- Forwarded message ---------"
// Outlook: "-------- Original Message --------"
// Apple Mail: "Begin forwarded message:"
var fwdMarkerRes = []*regexp.Regexp{
	regexp.MustCompile(`-{3,}\s*Forwarded\s+[Mm]essage\s*-{3,}`),
	regexp.MustCompile(`-{3,}\s*Original\s+[Mm]essage\s*-{3,}`),
	regexp.MustCompile(`Begin\s+forwarded\s+message:`),
}

var (
	fwdFromRe    = regexp.MustCompile(`(?i)(?:From|De|Von|Fra):\s*(.+?)(?:\n|$)`)
	fwdSubjectRe = regexp.MustCompile(`(?i)(?:Subject|Assunto|Betreff|Emne|Ämne):\s*(.+?)(?:\n|$)`)
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
)

// unwrapForwarded extracts the original sender, subject, and body from
// a forwarded email's text. When no forwarding marker is present the
// input is a direct email: forwarded is false and the body is returned
// as is.
func unwrapForwarded(body string) (sender, subject, rest string, forwarded bool) {
	fwdStart := -1
	for _, re := range fwdMarkerRes {
		if loc := re.FindStringIndex(body); loc != nil {
			fwdStart = loc[1]
			break
		}
	}
	if fwdStart < 0 {
		return "", "", body, false
	}

	wrapped := body[fwdStart:]

	if m := fwdFromRe.FindStringSubmatch(wrapped); m != nil {
		sender = strings.TrimSpace(m[1])
	}
	if m := fwdSubjectRe.FindStringSubmatch(wrapped); m != nil {
		subject = strings.TrimSpace(m[1])
	}

	// The body proper begins after the blank line that closes the
	// forwarded header block.
	rest = wrapped
	if loc := blankLineRe.FindStringIndex(wrapped); loc != nil {
		rest = wrapped[loc[1]:]
	}

	return sender, subject, strings.TrimSpace(rest), true
}
