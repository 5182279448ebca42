package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestUser creates a user for test fixtures.
func NewTestUser(t *testing.T, s *store.SQLiteStore, username string) *model.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), model.User{Username: username})
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return u
}

// NewTestFlight persists a flight leg between two airports departing at
// dep and landing two hours later.
func NewTestFlight(t *testing.T, s *store.SQLiteStore, userID, flightNumber, from, to string, dep time.Time) *model.Flight {
	t.Helper()

	f, err := s.CreateFlight(context.Background(), model.Flight{
		UserID:           userID,
		AirlineName:      "LATAM Airlines",
		AirlineCode:      "LA",
		FlightNumber:     flightNumber,
		DepartureAirport: from,
		ArrivalAirport:   to,
		DepartureTime:    dep,
		ArrivalTime:      dep.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("creating test flight: %v", err)
	}
	return f
}
