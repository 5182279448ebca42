package grouping

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/store"
	"github.com/nhle/flight-tracker/tests/testutil"
)

func newGrouper(t *testing.T) (*Grouper, *store.SQLiteStore, *model.User) {
	t.Helper()
	s := testutil.NewTestStore(t)
	u := testutil.NewTestUser(t, s, "alice")
	return NewGrouper(s, zap.NewNop()), s, u
}

func addFlight(t *testing.T, s *store.SQLiteStore, userID, number, from, to, ref string, dep, arr time.Time) *model.Flight {
	t.Helper()
	f, err := s.CreateFlight(context.Background(), model.Flight{
		UserID:           userID,
		FlightNumber:     number,
		DepartureAirport: from,
		ArrivalAirport:   to,
		BookingReference: ref,
		DepartureTime:    dep,
		ArrivalTime:      arr,
	})
	if err != nil {
		t.Fatalf("creating flight %s: %v", number, err)
	}
	return f
}

func TestGroupsByBookingReference(t *testing.T) {
	g, s, u := newGrouper(t)
	ctx := context.Background()

	dep := time.Date(2026, 3, 16, 8, 30, 0, 0, time.UTC)
	addFlight(t, s, u.ID, "LA 1234", "GRU", "SCL", "ABC123", dep, dep.Add(4*time.Hour))
	addFlight(t, s, u.ID, "LA 1235", "SCL", "GRU", "ABC123", dep.AddDate(0, 0, 4), dep.AddDate(0, 0, 4).Add(4*time.Hour))

	summary, err := g.Run(ctx, u.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.GroupsCreated != 1 || summary.FlightsGrouped != 2 {
		t.Errorf("summary = %+v, want 1 group with 2 flights", summary)
	}

	groups, err := s.GetGroupsByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetGroupsByUser: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if !groups[0].AutoGenerated {
		t.Error("group not flagged auto-generated")
	}
	if want := "GRU → SCL (Mar 2026) [ABC123]"; groups[0].Name != want {
		t.Errorf("group name %q, want %q", groups[0].Name, want)
	}
}

func TestProximityClusterBoundary(t *testing.T) {
	g, s, u := newGrouper(t)
	ctx := context.Background()

	// Second departure exactly 48h after the first arrival: same trip.
	// Third departure 48h+1m after the second arrival: new cluster,
	// and a singleton stays ungrouped.
	dep1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	arr1 := dep1.Add(2 * time.Hour)
	addFlight(t, s, u.ID, "SK 1829", "ARN", "CPH", "", dep1, arr1)

	dep2 := arr1.Add(48 * time.Hour)
	arr2 := dep2.Add(2 * time.Hour)
	addFlight(t, s, u.ID, "SK 1834", "CPH", "ARN", "", dep2, arr2)

	dep3 := arr2.Add(48*time.Hour + time.Minute)
	addFlight(t, s, u.ID, "SK 2000", "ARN", "OSL", "", dep3, dep3.Add(1*time.Hour))

	summary, err := g.Run(ctx, u.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.GroupsCreated != 1 || summary.FlightsGrouped != 2 {
		t.Errorf("summary = %+v, want 1 group with 2 flights", summary)
	}

	ungrouped, err := s.GetUngroupedFlights(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUngroupedFlights: %v", err)
	}
	if len(ungrouped) != 1 || ungrouped[0].FlightNumber != "SK 2000" {
		t.Errorf("ungrouped = %d flights, want only the singleton", len(ungrouped))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	g, s, u := newGrouper(t)
	ctx := context.Background()

	dep := time.Date(2026, 3, 16, 8, 30, 0, 0, time.UTC)
	addFlight(t, s, u.ID, "LA 1234", "GRU", "SCL", "ABC123", dep, dep.Add(4*time.Hour))
	addFlight(t, s, u.ID, "LA 1235", "SCL", "GRU", "ABC123", dep.AddDate(0, 0, 4), dep.AddDate(0, 0, 4).Add(4*time.Hour))

	if _, err := g.Run(ctx, u.ID); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := g.Run(ctx, u.ID)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.GroupsCreated != 0 || second.FlightsGrouped != 0 || second.GroupsMerged != 0 {
		t.Errorf("second run = %+v, want all zeros", second)
	}
}

func TestMergeTransitivity(t *testing.T) {
	g, s, u := newGrouper(t)
	ctx := context.Background()

	// Three bookings: A overlaps B, B overlaps C, A and C do not touch
	// directly. One trip must remain.
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	addFlight(t, s, u.ID, "LH 100", "FRA", "JFK", "AAAAA1", base, base.Add(8*time.Hour))
	addFlight(t, s, u.ID, "LH 101", "JFK", "FRA", "AAAAA1", base.AddDate(0, 0, 2), base.AddDate(0, 0, 2).Add(8*time.Hour))

	addFlight(t, s, u.ID, "UA 200", "JFK", "SFO", "BBBBB2", base.AddDate(0, 0, 3), base.AddDate(0, 0, 3).Add(6*time.Hour))
	addFlight(t, s, u.ID, "UA 201", "SFO", "JFK", "BBBBB2", base.AddDate(0, 0, 5), base.AddDate(0, 0, 5).Add(6*time.Hour))

	addFlight(t, s, u.ID, "AA 300", "SFO", "LAX", "CCCCC3", base.AddDate(0, 0, 6), base.AddDate(0, 0, 6).Add(1*time.Hour))
	addFlight(t, s, u.ID, "AA 301", "LAX", "SFO", "CCCCC3", base.AddDate(0, 0, 8), base.AddDate(0, 0, 8).Add(1*time.Hour))

	summary, err := g.Run(ctx, u.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.GroupsMerged != 2 {
		t.Errorf("merged %d trips, want 2", summary.GroupsMerged)
	}

	groups, err := s.GetGroupsByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetGroupsByUser: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}

	flights, err := s.GetFlightsByGroup(ctx, groups[0].ID)
	if err != nil {
		t.Fatalf("GetFlightsByGroup: %v", err)
	}
	if len(flights) != 6 {
		t.Errorf("merged trip has %d flights, want 6", len(flights))
	}

	// All three booking references appear in the rebuilt name.
	name := groups[0].Name
	for _, ref := range []string{"AAAAA1", "BBBBB2", "CCCCC3"} {
		if !strings.Contains(name, ref) {
			t.Errorf("name %q missing booking reference %s", name, ref)
		}
	}
}

func TestDestinationInference(t *testing.T) {
	dep := func(day, hour int) time.Time {
		return time.Date(2026, 7, day, hour, 0, 0, 0, time.UTC)
	}

	// Round trip ARN → FRA → GRU → FRA → ARN with a week in GRU: the
	// destination is GRU, not the FRA connections.
	roundTrip := []model.Flight{
		{DepartureAirport: "ARN", ArrivalAirport: "FRA", DepartureTime: dep(1, 8), ArrivalTime: dep(1, 10)},
		{DepartureAirport: "FRA", ArrivalAirport: "GRU", DepartureTime: dep(1, 12), ArrivalTime: dep(1, 23)},
		{DepartureAirport: "GRU", ArrivalAirport: "FRA", DepartureTime: dep(8, 18), ArrivalTime: dep(9, 7)},
		{DepartureAirport: "FRA", ArrivalAirport: "ARN", DepartureTime: dep(9, 9), ArrivalTime: dep(9, 11)},
	}
	if got := findDestination(roundTrip, "ARN"); got != "GRU" {
		t.Errorf("round trip destination %q, want GRU", got)
	}

	// One-way ARN → FRA → GRU ends at the last arrival.
	oneWay := roundTrip[:2]
	if got := findDestination(oneWay, "ARN"); got != "GRU" {
		t.Errorf("one-way destination %q, want GRU", got)
	}

	// Round trip with only short connections falls back to the
	// midpoint leg's arrival.
	shuttle := []model.Flight{
		{DepartureAirport: "ARN", ArrivalAirport: "CPH", DepartureTime: dep(1, 8), ArrivalTime: dep(1, 9)},
		{DepartureAirport: "CPH", ArrivalAirport: "ARN", DepartureTime: dep(1, 12), ArrivalTime: dep(1, 13)},
	}
	if got := findDestination(shuttle, "ARN"); got != "CPH" {
		t.Errorf("shuttle destination %q, want CPH", got)
	}
}

func TestMixedBookingAndProximityMerge(t *testing.T) {
	g, s, u := newGrouper(t)
	ctx := context.Background()

	// A booked leg and two unreferenced legs inside the same window
	// end up in one trip after the merge phase.
	base := time.Date(2026, 9, 10, 7, 0, 0, 0, time.UTC)
	addFlight(t, s, u.ID, "LA 1234", "GRU", "SCL", "XYZ789", base, base.Add(4*time.Hour))
	addFlight(t, s, u.ID, "H2 500", "SCL", "PMC", "", base.AddDate(0, 0, 1), base.AddDate(0, 0, 1).Add(2*time.Hour))
	addFlight(t, s, u.ID, "H2 501", "PMC", "SCL", "", base.AddDate(0, 0, 2), base.AddDate(0, 0, 2).Add(2*time.Hour))

	if _, err := g.Run(ctx, u.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	groups, err := s.GetGroupsByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetGroupsByUser: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	flights, err := s.GetFlightsByGroup(ctx, groups[0].ID)
	if err != nil {
		t.Fatalf("GetFlightsByGroup: %v", err)
	}
	if len(flights) != 3 {
		t.Errorf("trip has %d flights, want 3", len(flights))
	}
}
