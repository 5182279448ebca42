package mail

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
)

func init() {
	// Airline emails frequently arrive in latin-1 or other legacy
	// charsets; route unknown labels through x/net's charset tables.
	message.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(label, input)
	}
}

// ParseMessage parses a raw RFC 5322 message into a NormalizedMessage.
// Malformed input degrades gracefully: an unparseable message is
// treated as a bare plain-text body, and an undecodable part yields an
// empty string for that part.
func ParseMessage(raw []byte) *NormalizedMessage {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return &NormalizedMessage{PlainBody: string(raw)}
	}
	defer mr.Close()

	msg := &NormalizedMessage{}

	msg.MessageID, _ = mr.Header.MessageID()
	msg.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].String()
	} else {
		msg.Sender = mr.Header.Get("From")
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = &date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && msg.PlainBody == "":
			msg.PlainBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && msg.HTMLBody == "":
			msg.HTMLBody = string(body)
		}
	}

	if msg.HTMLBody != "" {
		msg.HTMLText = HTMLToText(msg.HTMLBody)
	}

	return msg
}
