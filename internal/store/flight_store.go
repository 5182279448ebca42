package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/flight-tracker/internal/model"
)

// CreateFlight inserts a new flight. Status and duration are derived
// from the departure and arrival instants unless the flight is already
// marked cancelled. A flight whose dedup key (user + email message id)
// already exists returns ErrDuplicateFlight.
func (s *SQLiteStore) CreateFlight(ctx context.Context, f model.Flight) (*model.Flight, error) {
	if f.FlightNumber == "" || f.DepartureAirport == "" || f.ArrivalAirport == "" {
		return nil, fmt.Errorf("flight number and airports must not be empty")
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	// Manually added flights have no source email; give them a unique
	// placeholder so the dedup constraint stays satisfiable.
	if f.EmailMessageID == "" {
		f.EmailMessageID = "manual:" + f.ID
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	f.Status = string(f.ComputeStatus(now))
	f.DurationMin = f.ComputeDuration()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flights (
			id, user_id, group_id,
			airline_name, airline_code, flight_number, booking_reference,
			departure_airport, departure_time, departure_terminal, departure_gate,
			arrival_airport, arrival_time, arrival_terminal, arrival_gate,
			passenger_name, seat, cabin_class, status, duration_minutes,
			account_id, email_subject, email_date, email_message_id, manually_added,
			notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.GroupID,
		f.AirlineName, f.AirlineCode, f.FlightNumber, f.BookingReference,
		f.DepartureAirport, f.DepartureTime.UTC(), f.DepartureTerminal, f.DepartureGate,
		f.ArrivalAirport, f.ArrivalTime.UTC(), f.ArrivalTerminal, f.ArrivalGate,
		f.PassengerName, f.Seat, f.CabinClass, f.Status, f.DurationMin,
		f.AccountID, f.EmailSubject, f.EmailDate, f.EmailMessageID, f.ManuallyAdded,
		f.Notes, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateFlight
		}
		return nil, fmt.Errorf("creating flight %s: %w", f.FlightNumber, err)
	}
	return &f, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UpdateFlight updates an existing flight by ID, re-deriving status and
// duration.
func (s *SQLiteStore) UpdateFlight(ctx context.Context, f model.Flight) error {
	now := time.Now().UTC()
	f.UpdatedAt = now
	f.Status = string(f.ComputeStatus(now))
	f.DurationMin = f.ComputeDuration()

	result, err := s.db.ExecContext(ctx, `
		UPDATE flights SET
			group_id = ?,
			airline_name = ?, airline_code = ?, flight_number = ?, booking_reference = ?,
			departure_airport = ?, departure_time = ?, departure_terminal = ?, departure_gate = ?,
			arrival_airport = ?, arrival_time = ?, arrival_terminal = ?, arrival_gate = ?,
			passenger_name = ?, seat = ?, cabin_class = ?, status = ?, duration_minutes = ?,
			notes = ?, updated_at = ?
		WHERE id = ?`,
		f.GroupID,
		f.AirlineName, f.AirlineCode, f.FlightNumber, f.BookingReference,
		f.DepartureAirport, f.DepartureTime.UTC(), f.DepartureTerminal, f.DepartureGate,
		f.ArrivalAirport, f.ArrivalTime.UTC(), f.ArrivalTerminal, f.ArrivalGate,
		f.PassengerName, f.Seat, f.CabinClass, f.Status, f.DurationMin,
		f.Notes, f.UpdatedAt,
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating flight %s: %w", f.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFlight removes a flight by ID.
func (s *SQLiteStore) DeleteFlight(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM flights WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting flight %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFlightByID returns a flight by ID, or ErrNotFound.
func (s *SQLiteStore) GetFlightByID(ctx context.Context, id string) (*model.Flight, error) {
	var f model.Flight
	err := s.db.GetContext(ctx, &f, "SELECT * FROM flights WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting flight %s: %w", id, err)
	}
	return &f, nil
}

// GetFlights returns a user's flights with optional filtering, ordered
// by departure time.
func (s *SQLiteStore) GetFlights(ctx context.Context, userID string, filter FlightFilter) ([]model.Flight, error) {
	query := "SELECT * FROM flights WHERE user_id = ?"
	args := []any{userID}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.GroupID != nil {
		query += " AND group_id = ?"
		args = append(args, *filter.GroupID)
	}
	if filter.From != nil {
		query += " AND departure_time >= ?"
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		query += " AND departure_time < ?"
		args = append(args, filter.To.UTC())
	}

	query += " ORDER BY departure_time"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var flights []model.Flight
	if err := s.db.SelectContext(ctx, &flights, query, args...); err != nil {
		return nil, fmt.Errorf("getting flights for user %s: %w", userID, err)
	}
	return flights, nil
}

// GetUngroupedFlights returns a user's flights that belong to no group
// yet, ordered by departure time. This is the grouping worklist.
func (s *SQLiteStore) GetUngroupedFlights(ctx context.Context, userID string) ([]model.Flight, error) {
	var flights []model.Flight
	err := s.db.SelectContext(ctx, &flights,
		"SELECT * FROM flights WHERE user_id = ? AND group_id IS NULL ORDER BY departure_time", userID)
	if err != nil {
		return nil, fmt.Errorf("getting ungrouped flights for user %s: %w", userID, err)
	}
	return flights, nil
}

// GetFlightsByGroup returns every flight in a group, ordered by
// departure time.
func (s *SQLiteStore) GetFlightsByGroup(ctx context.Context, groupID string) ([]model.Flight, error) {
	var flights []model.Flight
	err := s.db.SelectContext(ctx, &flights,
		"SELECT * FROM flights WHERE group_id = ? ORDER BY departure_time", groupID)
	if err != nil {
		return nil, fmt.Errorf("getting flights for group %s: %w", groupID, err)
	}
	return flights, nil
}

// RefreshFlightStatuses marks upcoming flights whose arrival has passed
// as completed. Cancelled flights are never touched. Returns the number
// of rows updated.
func (s *SQLiteStore) RefreshFlightStatuses(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE flights SET status = ?, updated_at = ?
		WHERE status = ? AND arrival_time < ?`,
		string(model.StatusCompleted), time.Now().UTC(),
		string(model.StatusUpcoming), now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("refreshing flight statuses: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}
