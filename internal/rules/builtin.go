package rules

// Built-in airline rules. Each body pattern uses named capture groups
// and is written against the output of mail.HTMLToText, which inserts
// newlines at block-level HTML element boundaries.

// Flexible date sub-pattern, reusable across rules.
// Matches: "16 de mar. de 2026", "16 Mar 2026", "28 okt 2025".
const (
	datePat = `\d{1,2}\s+(?:de\s+)?[A-Za-zÀ-ÿ]+\.?\s+(?:de\s+)?\d{4}`
	timePat = `\d{1,2}:\d{2}`
)

var builtin = []*AirlineRule{
	// LATAM Airlines (LA / JJ / 4C / 4M).
	//
	// Real emails come from info@info.latam.com with subjects in
	// PT/ES/EN. The HTML itinerary uses this structure per flight leg:
	//   <date>  <time> <city>  (<AIRPORT>)  <flight_number>
	//   ...
	//   <date>  <time> <city>  (<AIRPORT>)
	// Connection flights carry "Troca de avião em:" markers and are
	// handled by the dedicated LATAM extractor.
	{
		AirlineName:   "LATAM Airlines",
		AirlineCode:   "LA",
		SenderPattern: `(latam\.com|latamairlines\.com|info\.latam\.|@latam\.)`,
		SubjectPattern: `(itinerar|confirm|reserv|booking|e-?ticket|` +
			`compr|viage|viaje|vuelo|voo|trip|travel)`,
		BodyPattern: `(?P<departure_date>` + datePat + `)` +
			`\s+` +
			`(?P<departure_time>` + timePat + `)` +
			`.*?` +
			`\((?P<departure_airport>[A-Z]{3})\)` +
			`.*?` +
			`(?P<flight_number>(?:LA|JJ|4C|4M)\s*\d{3,5})` +
			`.*?` +
			`(?P<arrival_date>` + datePat + `)` +
			`\s+` +
			`(?P<arrival_time>` + timePat + `)` +
			`.*?` +
			`\((?P<arrival_airport>[A-Z]{3})\)`,
		DateLayout: "02 Jan 2006",
		TimeLayout: "15:04",
		Extractor:  "latam",
		Priority:   10,
	},
	// SAS Scandinavian Airlines (SK).
	//
	// Emails come from flysas.com / sas.se / sas.dk / sas.no. After
	// HTML flattening, each leg reads:
	//   <City> <AIRPORT> [-–] <City> <AIRPORT>
	//   <dep_time> [-–] <arr_time> (<duration>)
	//   SK <number> | <operator>
	// The segment date appears as a section header earlier (e.g.
	// "07 Aug 2020", "28 okt 2025"); connecting legs may share one
	// date header, so departure_date is not captured here — the
	// extractor infers it from the closest preceding date in the body.
	{
		AirlineName:   "SAS Scandinavian Airlines",
		AirlineCode:   "SK",
		SenderPattern: `(flysas\.com|sas\.se|sas\.dk|sas\.no|@sas\.)`,
		SubjectPattern: `(booking\s*confirm|itinerary|e-?ticket|receipt|` +
			`reservation|billet|resa|rejse|reise|trip|travel|` +
			`flight|flygning|bokningsbek|bokning|Din\s+resa|Your\s+Flight)`,
		BodyPattern: `(?P<departure_airport>[A-Z]{3})` +
			`\s*[-–]\s*` +
			`(?:[A-ZÀ-ÿ][A-Za-zÀ-ÿ\s-]*?\s+)?` +
			`(?P<arrival_airport>[A-Z]{3})` +
			`\s+` +
			`(?P<departure_time>` + timePat + `)` +
			`\s*[-–]\s*` +
			`(?P<arrival_time>` + timePat + `)` +
			`.*?` +
			`(?P<flight_number>(?:SK|VS|LH|LX|OS|TP|A3|SN)\s*\d{2,5})`,
		DateLayout: "02 Jan 2006",
		TimeLayout: "15:04",
		Extractor:  "sas",
		Priority:   10,
	},
	// Lufthansa (LH).
	{
		AirlineName:   "Lufthansa",
		AirlineCode:   "LH",
		SenderPattern: `(lufthansa\.com|@lh\.com|noreply@lufthansa)`,
		SubjectPattern: `(booking\s*confirm|itinerary|e-?ticket|receipt|` +
			`buchungsbest[äa]tigung|flugbest[äa]tigung|reservation|` +
			`Reise|trip|travel)`,
		BodyPattern: `(?P<departure_date>` + datePat + `)` +
			`\s+` +
			`(?P<departure_time>` + timePat + `)` +
			`.*?` +
			`\((?P<departure_airport>[A-Z]{3})\)` +
			`.*?` +
			`(?P<flight_number>LH\s*\d{3,5})` +
			`.*?` +
			`(?P<arrival_date>` + datePat + `)` +
			`\s+` +
			`(?P<arrival_time>` + timePat + `)` +
			`.*?` +
			`\((?P<arrival_airport>[A-Z]{3})\)`,
		DateLayout: "02 Jan 2006",
		TimeLayout: "15:04",
		Extractor:  "lufthansa",
		Priority:   10,
	},
	// Azul Brazilian Airlines (AD).
	//
	// Emails come from noreply@voeazul-news.com.br. The flattened
	// itinerary structure per leg:
	//   <DEPARTURE_AIRPORT>      (standalone code on its own line)
	//   <city name>
	//   DD/MM • HH:MM            (no year; inferred from message date)
	//   Voo NNNN                 (flight number without AD prefix)
	//   <ARRIVAL_AIRPORT>
	//   <city name>
	//   DD/MM • HH:MM
	{
		AirlineName:   "Azul Brazilian Airlines",
		AirlineCode:   "AD",
		SenderPattern: `(voeazul[\w-]*\.com\.br|azullinhasaereas\.com|@azul\.com)`,
		SubjectPattern: `(itinerar|confirm|reserv|booking|e-?ticket|` +
			`compr|viage|voo|passagem|bilhete|trip|travel)`,
		BodyPattern: `\n\s*(?P<departure_airport>[A-Z]{3})\s*\n` +
			`.*?` +
			`(?P<departure_date>\d{2}/\d{2})` +
			`\s*[•·]\s*` +
			`(?P<departure_time>` + timePat + `)` +
			`.*?` +
			`(?:Voo|Flight)\s+(?P<flight_number>\d{3,5})` +
			`.*?` +
			`\n\s*(?P<arrival_airport>[A-Z]{3})\s*\n` +
			`.*?` +
			`(?P<arrival_date>\d{2}/\d{2})` +
			`\s*[•·]\s*` +
			`(?P<arrival_time>` + timePat + `)`,
		DateLayout: "02/01",
		TimeLayout: "15:04",
		Extractor:  "azul",
		Priority:   10,
	},
}

// Builtin returns the built-in rule set in ranked order.
func Builtin() []*AirlineRule {
	return Ranked(builtin)
}

// SenderPatterns returns every rule's sender pattern, used as a
// mailbox-side prefilter when fetching.
func SenderPatterns(rs []*AirlineRule) []string {
	patterns := make([]string, 0, len(rs))
	for _, r := range rs {
		if r.SenderPattern != "" {
			patterns = append(patterns, r.SenderPattern)
		}
	}
	return patterns
}
