package mail

import (
	"strings"
	"testing"
)

func TestHTMLToTextBlockStructure(t *testing.T) {
	in := `<html><head><title>ignored</title><style>body { color: red }</style></head>
<body><table><tr><td>GRU</td><td>08:30</td></tr><tr><td>SCL</td><td>12:45</td></tr></table>
<p>Código de   reserva: <b>ABC123</b></p></body></html>`

	got := HTMLToText(in)

	if strings.Contains(got, "ignored") || strings.Contains(got, "color") {
		t.Errorf("head content leaked into output:\n%s", got)
	}
	if !strings.Contains(got, "GRU\n") || !strings.Contains(got, "\n08:30") {
		t.Errorf("table cells not split into lines:\n%s", got)
	}
	if !strings.Contains(got, "Código de reserva: ABC123") {
		t.Errorf("inline markup not flattened:\n%s", got)
	}
}

func TestHTMLToTextCollapsesBlankLines(t *testing.T) {
	got := HTMLToText("<div>a</div><div></div><div></div><div>b</div>")
	if got != "a\n\nb" {
		t.Errorf("got %q, want %q", got, "a\n\nb")
	}
}

func TestHTMLToTextMalformedInput(t *testing.T) {
	got := HTMLToText("<td>GRU<unclosed <b>08:30")
	if !strings.Contains(got, "GRU") {
		t.Errorf("text lost on malformed input: %q", got)
	}
}

func TestParseMessageMultipart(t *testing.T) {
	raw := "From: LATAM Airlines <info@info.latam.com>\r\n" +
		"To: traveler@example.com\r\n" +
		"Subject: =?utf-8?q?Confirma=C3=A7=C3=A3o_de_compra?=\r\n" +
		"Message-ID: <abc@latam.com>\r\n" +
		"Date: Sat, 10 Jan 2026 09:00:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain part\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html part</p>\r\n" +
		"--b1--\r\n"

	msg := ParseMessage([]byte(raw))

	if msg.MessageID != "abc@latam.com" {
		t.Errorf("message id %q", msg.MessageID)
	}
	if msg.Subject != "Confirmação de compra" {
		t.Errorf("subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Sender, "info@info.latam.com") {
		t.Errorf("sender %q", msg.Sender)
	}
	if msg.ReceivedAt == nil {
		t.Error("date not parsed")
	}
	if !strings.Contains(msg.PlainBody, "plain part") {
		t.Errorf("plain body %q", msg.PlainBody)
	}
	if !strings.Contains(msg.HTMLText, "html part") {
		t.Errorf("html text %q", msg.HTMLText)
	}

	body := msg.Body()
	if !strings.Contains(body, "plain part") || !strings.Contains(body, "html part") {
		t.Errorf("combined body %q", body)
	}
}

func TestParseMessageUnparseableFallsBackToRawBody(t *testing.T) {
	msg := ParseMessage([]byte("not an rfc822 message at all"))
	if msg.PlainBody == "" {
		t.Error("raw input dropped")
	}
}
