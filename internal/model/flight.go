package model

import "time"

// FlightStatus describes where a flight sits relative to now.
type FlightStatus string

const (
	StatusUpcoming  FlightStatus = "upcoming"
	StatusCompleted FlightStatus = "completed"
	StatusCancelled FlightStatus = "cancelled"
)

// CabinClass is a normalized cabin class value.
type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

// User identifies an account holder. The username doubles as the local
// part of the forwarding address {username}@{domain}.
type User struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// EmailAccount is a connected mailbox scanned for flight confirmation
// emails.
type EmailAccount struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	Name         string     `db:"name"`
	EmailAddress string     `db:"email_address"`
	IMAPHost     string     `db:"imap_host"`
	IMAPPort     int        `db:"imap_port"`
	IMAPUsername string     `db:"imap_username"`
	IMAPPassword string     `db:"imap_password"`
	UseTLS       bool       `db:"use_tls"`
	Active       bool       `db:"active"`
	LastSyncedAt *time.Time `db:"last_synced_at"`

	// LastRulesVersion records which rule-set version the account was
	// last synced with. A mismatch forces a full rescan.
	LastRulesVersion string `db:"last_rules_version"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Flight is one parsed flight leg extracted from an email.
type Flight struct {
	ID      string  `db:"id"`
	UserID  string  `db:"user_id"`
	GroupID *string `db:"group_id"`

	AirlineName      string `db:"airline_name"`
	AirlineCode      string `db:"airline_code"`
	FlightNumber     string `db:"flight_number"`
	BookingReference string `db:"booking_reference"`

	DepartureAirport  string    `db:"departure_airport"`
	DepartureTime     time.Time `db:"departure_time"`
	DepartureTerminal string    `db:"departure_terminal"`
	DepartureGate     string    `db:"departure_gate"`

	ArrivalAirport  string    `db:"arrival_airport"`
	ArrivalTime     time.Time `db:"arrival_time"`
	ArrivalTerminal string    `db:"arrival_terminal"`
	ArrivalGate     string    `db:"arrival_gate"`

	PassengerName string `db:"passenger_name"`
	Seat          string `db:"seat"`
	CabinClass    string `db:"cabin_class"`
	Status        string `db:"status"`
	DurationMin   int    `db:"duration_minutes"`

	// Provenance.
	AccountID      *string    `db:"account_id"`
	EmailSubject   string     `db:"email_subject"`
	EmailDate      *time.Time `db:"email_date"`
	EmailMessageID string     `db:"email_message_id"`
	ManuallyAdded  bool       `db:"manually_added"`

	Notes     string    `db:"notes"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ComputeStatus derives the flight status from the arrival instant.
// A cancelled flight is never overridden.
func (f *Flight) ComputeStatus(now time.Time) FlightStatus {
	if FlightStatus(f.Status) == StatusCancelled {
		return StatusCancelled
	}
	if f.ArrivalTime.Before(now) {
		return StatusCompleted
	}
	return StatusUpcoming
}

// ComputeDuration derives the flight duration in minutes from the two
// instants, with a floor of one minute.
func (f *Flight) ComputeDuration() int {
	minutes := int(f.ArrivalTime.Sub(f.DepartureTime).Minutes())
	if minutes < 1 {
		return 1
	}
	return minutes
}

// FlightGroup clusters related flights into one trip.
type FlightGroup struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Name          string    `db:"name"`
	Description   string    `db:"description"`
	AutoGenerated bool      `db:"auto_generated"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
