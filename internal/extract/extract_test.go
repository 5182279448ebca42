package extract

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/mail"
	"github.com/nhle/flight-tracker/internal/rules"
)

func ruleByCode(t *testing.T, code string) *rules.AirlineRule {
	t.Helper()
	for _, r := range rules.Builtin() {
		if r.AirlineCode == code {
			return r
		}
	}
	t.Fatalf("no builtin rule with code %s", code)
	return nil
}

func makeMsg(t *testing.T, sender, subject, body string, received time.Time) *mail.NormalizedMessage {
	t.Helper()
	return &mail.NormalizedMessage{
		MessageID:  "test-" + sender,
		Sender:     sender,
		Subject:    subject,
		PlainBody:  body,
		ReceivedAt: &received,
	}
}

const latamBody = `Seu itinerário de viagem

Lista de passageiros
- João Silva

Código de reserva: ABC123

Trecho 1
16 de mar. de 2026  08:30  São Paulo  (GRU)  LA 1234
16 de mar. de 2026  12:45  Santiago   (SCL)

Trecho 2
20 de mar. de 2026  14:00  Santiago   (SCL)  LA 1235
20 de mar. de 2026  18:15  São Paulo  (GRU)
`

func TestLATAMExtraction(t *testing.T) {
	rule := ruleByCode(t, "LA")
	msg := makeMsg(t, "info@info.latam.com", "Confirmação de compra - seu itinerário",
		latamBody, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}

	out := legs[0]
	if out.DepartureAirport != "GRU" || out.ArrivalAirport != "SCL" {
		t.Errorf("outbound route %s-%s, want GRU-SCL", out.DepartureAirport, out.ArrivalAirport)
	}
	if out.FlightNumber != "LA 1234" {
		t.Errorf("outbound flight %q", out.FlightNumber)
	}
	wantDep := time.Date(2026, 3, 16, 8, 30, 0, 0, time.UTC)
	if !out.DepartureTime.Equal(wantDep) {
		t.Errorf("outbound departure %v, want %v", out.DepartureTime, wantDep)
	}
	if out.BookingReference != "ABC123" {
		t.Errorf("booking reference %q, want ABC123", out.BookingReference)
	}
	if !strings.Contains(out.PassengerName, "João") {
		t.Errorf("passenger %q, want a name containing João", out.PassengerName)
	}
	if out.AirlineName != "LATAM Airlines" || out.AirlineCode != "LA" {
		t.Errorf("airline %s/%s", out.AirlineName, out.AirlineCode)
	}

	ret := legs[1]
	if ret.DepartureAirport != "SCL" || ret.ArrivalAirport != "GRU" {
		t.Errorf("return route %s-%s, want SCL-GRU", ret.DepartureAirport, ret.ArrivalAirport)
	}
	if ret.BookingReference != "ABC123" {
		t.Errorf("return booking reference %q", ret.BookingReference)
	}
}

const latamConnectionBody = `Voo de ida

Código de reserva: QWE987

16 de mar. de 2026  08:00  São Paulo  (GRU)  LA 8000
Troca de avião em: Lima  (LIM)  LA 2456
Tempo de espera: 2 hr 0 min
16 de mar. de 2026  18:00  Bogotá  (BOG)
`

func TestLATAMConnectionInterpolation(t *testing.T) {
	rule := ruleByCode(t, "LA")
	msg := makeMsg(t, "info@info.latam.com", "Confirmação de compra",
		latamConnectionBody, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}

	// 10h elapsed minus 2h layover leaves 8h in the air, 4h per leg.
	first, second := legs[0], legs[1]
	if first.DepartureAirport != "GRU" || first.ArrivalAirport != "LIM" {
		t.Errorf("first leg %s-%s, want GRU-LIM", first.DepartureAirport, first.ArrivalAirport)
	}
	if first.FlightNumber != "LA 8000" {
		t.Errorf("first leg flight %q", first.FlightNumber)
	}
	wantArr := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	if !first.ArrivalTime.Equal(wantArr) {
		t.Errorf("first leg arrival %v, want %v", first.ArrivalTime, wantArr)
	}

	if second.DepartureAirport != "LIM" || second.ArrivalAirport != "BOG" {
		t.Errorf("second leg %s-%s, want LIM-BOG", second.DepartureAirport, second.ArrivalAirport)
	}
	if second.FlightNumber != "LA 2456" {
		t.Errorf("second leg flight %q", second.FlightNumber)
	}
	wantDep := time.Date(2026, 3, 16, 14, 0, 0, 0, time.UTC)
	if !second.DepartureTime.Equal(wantDep) {
		t.Errorf("second leg departure %v, want %v", second.DepartureTime, wantDep)
	}
	if !second.ArrivalTime.Equal(time.Date(2026, 3, 16, 18, 0, 0, 0, time.UTC)) {
		t.Errorf("second leg arrival %v", second.ArrivalTime)
	}
}

func TestLATAMImpossibleLayoverYieldsNothing(t *testing.T) {
	// Layover exceeds the overall elapsed time; the parse is wrong and
	// no legs should come out.
	body := `Voo de ida

16 de mar. de 2026  08:00  São Paulo  (GRU)  LA 8000
Troca de avião em: Lima  (LIM)  LA 2456
Tempo de espera: 20 hr 0 min
16 de mar. de 2026  10:00  Bogotá  (BOG)
`
	rule := ruleByCode(t, "LA")
	msg := makeMsg(t, "info@info.latam.com", "Confirmação", body,
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))

	if legs := NewEngine(zap.NewNop()).Extract(msg, rule); len(legs) != 0 {
		t.Errorf("got %d legs, want 0", len(legs))
	}
}

const sasBody = `Your booking confirmation

Booking: XY9012

07 Aug 2026
Stockholm ARN – Copenhagen CPH
07:30 – 09:10 (1h 40m)
SK 1829 | Operated by SAS

10 Aug 2026
Copenhagen CPH – Stockholm ARN
18:00 – 19:45 (1h 45m)
SK 1834 | Operated by SAS
`

func TestSASExtraction(t *testing.T) {
	rule := ruleByCode(t, "SK")
	msg := makeMsg(t, "no-reply@flysas.com", "Booking confirmation SK1829",
		sasBody, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}

	out := legs[0]
	if out.DepartureAirport != "ARN" || out.ArrivalAirport != "CPH" {
		t.Errorf("outbound route %s-%s, want ARN-CPH", out.DepartureAirport, out.ArrivalAirport)
	}
	if out.FlightNumber != "SK 1829" {
		t.Errorf("outbound flight %q", out.FlightNumber)
	}
	// The pattern captures no departure date; it must come from the
	// closest date header above the match.
	wantDep := time.Date(2026, 8, 7, 7, 30, 0, 0, time.UTC)
	if !out.DepartureTime.Equal(wantDep) {
		t.Errorf("outbound departure %v, want %v", out.DepartureTime, wantDep)
	}
	if out.BookingReference != "XY9012" {
		t.Errorf("booking reference %q, want XY9012", out.BookingReference)
	}

	ret := legs[1]
	wantRetDep := time.Date(2026, 8, 10, 18, 0, 0, 0, time.UTC)
	if !ret.DepartureTime.Equal(wantRetDep) {
		t.Errorf("return departure %v, want %v", ret.DepartureTime, wantRetDep)
	}
}

const lufthansaBody = `Ihre Buchungsbestätigung

Buchungscode: DE5678

15 Mar 2026  10:00  Frankfurt (FRA)  LH 1234
15 Mar 2026  11:30  Munich    (MUC)

18 Mar 2026  14:15  Munich    (MUC)  LH 1235
18 Mar 2026  15:30  Frankfurt (FRA)
`

func TestLufthansaExtraction(t *testing.T) {
	rule := ruleByCode(t, "LH")
	msg := makeMsg(t, "info@lufthansa.com", "Ihre Buchungsbestätigung",
		lufthansaBody, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}
	if legs[0].DepartureAirport != "FRA" || legs[0].ArrivalAirport != "MUC" {
		t.Errorf("outbound route %s-%s", legs[0].DepartureAirport, legs[0].ArrivalAirport)
	}
	if legs[0].FlightNumber != "LH 1234" {
		t.Errorf("outbound flight %q", legs[0].FlightNumber)
	}
	if legs[0].BookingReference != "DE5678" {
		t.Errorf("booking reference %q, want DE5678", legs[0].BookingReference)
	}
	wantArr := time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC)
	if !legs[0].ArrivalTime.Equal(wantArr) {
		t.Errorf("outbound arrival %v, want %v", legs[0].ArrivalTime, wantArr)
	}
}

const azulBody = `
Seu itinerário

Código de reserva: ZX3344

GRU
São Paulo
02/03 • 13:20
Voo 4849
CNF
Belo Horizonte
02/03 • 14:35

CNF
Belo Horizonte
05/03 • 10:00
Voo 4852
GRU
São Paulo
05/03 • 11:15
`

func TestAzulExtraction(t *testing.T) {
	rule := ruleByCode(t, "AD")
	msg := makeMsg(t, "noreply@voeazul-news.com.br", "Confirmação de bilhete eletrônico",
		azulBody, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}

	out := legs[0]
	if out.DepartureAirport != "GRU" || out.ArrivalAirport != "CNF" {
		t.Errorf("outbound route %s-%s, want GRU-CNF", out.DepartureAirport, out.ArrivalAirport)
	}
	// Digits-only flight number gets the airline code prefix.
	if out.FlightNumber != "AD4849" {
		t.Errorf("outbound flight %q, want AD4849", out.FlightNumber)
	}
	// The DD/MM date carries no year; it comes from the message date.
	wantDep := time.Date(2026, 3, 2, 13, 20, 0, 0, time.UTC)
	if !out.DepartureTime.Equal(wantDep) {
		t.Errorf("outbound departure %v, want %v", out.DepartureTime, wantDep)
	}
	if out.BookingReference != "ZX3344" {
		t.Errorf("booking reference %q, want ZX3344", out.BookingReference)
	}
}

func TestSASWithoutDateHeaderYieldsNothing(t *testing.T) {
	// The SAS pattern captures no departure date; with no date header
	// anywhere above the match there is nothing to infer from and the
	// leg is dropped.
	body := `Booking: XY9012

Stockholm ARN – Copenhagen CPH
07:30 – 09:10 (1h 40m)
SK 1829 | Operated by SAS
`
	rule := ruleByCode(t, "SK")
	msg := makeMsg(t, "no-reply@flysas.com", "Booking confirmation SK1829",
		body, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 0 {
		t.Fatalf("got %d legs, want 0", len(legs))
	}
}

func TestStructuredSASExtraction(t *testing.T) {
	html := `<html><body>
<p>Your booking confirmation</p>
<p>Booking: XY9012</p>
<table><tr><td>07 Aug 2026</td></tr>
<tr><td>Stockholm ARN – Copenhagen CPH</td></tr>
<tr><td>23:30 – 01:10</td></tr>
<tr><td>SK 1829</td></tr></table>
</body></html>`

	rule := ruleByCode(t, "SK")
	received := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	msg := &mail.NormalizedMessage{
		MessageID:  "sas-html-1",
		Sender:     "no-reply@flysas.com",
		Subject:    "Booking confirmation SK1829",
		HTMLBody:   html,
		ReceivedAt: &received,
	}

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 1 {
		t.Fatalf("got %d legs, want 1", len(legs))
	}
	leg := legs[0]
	if leg.FlightNumber != "SK1829" {
		t.Errorf("flight %q, want SK1829", leg.FlightNumber)
	}
	// Arrival clock before departure clock means next day.
	wantDep := time.Date(2026, 8, 7, 23, 30, 0, 0, time.UTC)
	wantArr := time.Date(2026, 8, 8, 1, 10, 0, 0, time.UTC)
	if !leg.DepartureTime.Equal(wantDep) || !leg.ArrivalTime.Equal(wantArr) {
		t.Errorf("times %v / %v, want %v / %v", leg.DepartureTime, leg.ArrivalTime, wantDep, wantArr)
	}
}

func TestStructuredAzulExtraction(t *testing.T) {
	html := `<html><body>
<p>Código de reserva: ZX3344</p>
<table><tr><td>GRU</td><td>São Paulo</td></tr>
<tr><td>02/03 • 13:20</td></tr>
<tr><td>Voo 4849</td></tr>
<tr><td>CNF</td><td>Belo Horizonte</td></tr>
<tr><td>02/03 • 14:35</td></tr></table>
</body></html>`

	rule := ruleByCode(t, "AD")
	received := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	msg := &mail.NormalizedMessage{
		MessageID:  "azul-html-1",
		Sender:     "noreply@voeazul-news.com.br",
		Subject:    "Confirmação de bilhete eletrônico",
		HTMLBody:   html,
		ReceivedAt: &received,
	}

	legs := NewEngine(zap.NewNop()).Extract(msg, rule)
	if len(legs) != 1 {
		t.Fatalf("got %d legs, want 1", len(legs))
	}
	if legs[0].FlightNumber != "AD4849" {
		t.Errorf("flight %q, want AD4849", legs[0].FlightNumber)
	}
	if legs[0].DepartureTime.Year() != 2026 || legs[0].DepartureTime.Month() != 3 {
		t.Errorf("departure %v, want March 2026", legs[0].DepartureTime)
	}
}

func TestNormalizeCabin(t *testing.T) {
	cases := map[string]string{
		"Economy":   "economy",
		"eco":       "economy",
		"Y":         "economy",
		"Business":  "business",
		"J":         "business",
		"econômica": "economy",
		"First":     "first",
		"premium":   "premium_economy",
		"unknown":   "",
		"":          "",
	}
	for in, want := range cases {
		if got := normalizeCabin(in); got != want {
			t.Errorf("normalizeCabin(%q) = %q, want %q", in, got, want)
		}
	}
}
