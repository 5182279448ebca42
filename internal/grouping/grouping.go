// Package grouping clusters a user's flights into trips.
//
// Grouping runs in three phases: flights sharing a booking reference
// become one trip, remaining flights are clustered by temporal
// proximity, and finally trips whose time spans overlap (or sit within
// the same gap threshold) are merged. The whole pass is idempotent: a
// second run over unchanged data creates and merges nothing.
package grouping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/flight-tracker/internal/model"
	"github.com/nhle/flight-tracker/internal/store"
)

const (
	// proximityGap is the maximum arrival-to-departure gap for two
	// flights to count as the same trip.
	proximityGap = 48 * time.Hour

	// stayThreshold separates a destination stay from a connection.
	stayThreshold = 24 * time.Hour
)

// Grouper runs the trip grouping passes. Safe for concurrent use;
// passes for the same user are serialized.
type Grouper struct {
	store  store.Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGrouper(st store.Store, logger *zap.Logger) *Grouper {
	return &Grouper{
		store:  st,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Summary reports what a grouping pass did.
type Summary struct {
	GroupsCreated  int
	FlightsGrouped int
	GroupsMerged   int
}

// userLock returns the mutex serializing grouping for one user.
func (g *Grouper) userLock(userID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[userID] = l
	}
	return l
}

// Run groups a user's ungrouped flights and merges overlapping trips.
func (g *Grouper) Run(ctx context.Context, userID string) (Summary, error) {
	lock := g.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var summary Summary

	ungrouped, err := g.store.GetUngroupedFlights(ctx, userID)
	if err != nil {
		return summary, fmt.Errorf("loading ungrouped flights: %w", err)
	}

	// Phase 1: same booking reference, same trip.
	var refOrder []string
	byBooking := make(map[string][]model.Flight)
	var noBooking []model.Flight
	for _, f := range ungrouped {
		if f.BookingReference == "" {
			noBooking = append(noBooking, f)
			continue
		}
		if _, seen := byBooking[f.BookingReference]; !seen {
			refOrder = append(refOrder, f.BookingReference)
		}
		byBooking[f.BookingReference] = append(byBooking[f.BookingReference], f)
	}

	for _, ref := range refOrder {
		flights := byBooking[ref]
		if err := g.createGroup(ctx, userID, flights, ref); err != nil {
			return summary, err
		}
		summary.GroupsCreated++
		summary.FlightsGrouped += len(flights)
	}

	// Phase 2: temporal proximity for the rest. Only clusters of two
	// or more become trips; singletons stay ungrouped.
	for _, cluster := range clusterByProximity(noBooking, proximityGap) {
		if len(cluster) < 2 {
			continue
		}
		if err := g.createGroup(ctx, userID, cluster, ""); err != nil {
			return summary, err
		}
		summary.GroupsCreated++
		summary.FlightsGrouped += len(cluster)
	}

	// Phase 3: merge trips whose spans overlap.
	merged, err := g.mergeOverlapping(ctx, userID)
	if err != nil {
		return summary, err
	}
	summary.GroupsMerged = merged
	if merged > 0 {
		g.logger.Info("merged overlapping trips",
			zap.String("user_id", userID), zap.Int("merged", merged))
	}

	return summary, nil
}

// createGroup creates an auto-generated trip for flights and assigns
// them to it.
func (g *Grouper) createGroup(ctx context.Context, userID string, flights []model.Flight, bookingRef string) error {
	if len(flights) == 0 {
		return nil
	}

	name := tripName(flights)
	if bookingRef != "" {
		name = fmt.Sprintf("%s [%s]", name, bookingRef)
	}

	group, err := g.store.CreateGroup(ctx, model.FlightGroup{
		UserID:        userID,
		Name:          name,
		AutoGenerated: true,
	})
	if err != nil {
		return fmt.Errorf("creating trip %q: %w", name, err)
	}

	for _, f := range flights {
		if err := g.store.AssignFlightToGroup(ctx, f.ID, &group.ID); err != nil {
			return fmt.Errorf("assigning flight %s to trip %q: %w", f.ID, name, err)
		}
	}

	g.logger.Info("created trip",
		zap.String("user_id", userID), zap.String("name", name), zap.Int("flights", len(flights)))
	return nil
}

// clusterByProximity walks departure-ordered flights and starts a new
// cluster whenever the gap from the previous arrival to the next
// departure exceeds maxGap. A gap of exactly maxGap stays in the
// cluster.
func clusterByProximity(flights []model.Flight, maxGap time.Duration) [][]model.Flight {
	if len(flights) == 0 {
		return nil
	}

	var clusters [][]model.Flight
	current := []model.Flight{flights[0]}
	for i := 1; i < len(flights); i++ {
		gap := flights[i].DepartureTime.Sub(flights[i-1].ArrivalTime)
		if gap <= maxGap {
			current = append(current, flights[i])
			continue
		}
		clusters = append(clusters, current)
		current = []model.Flight{flights[i]}
	}
	return append(clusters, current)
}

// tripInterval is one auto-generated trip's time span.
type tripInterval struct {
	group model.FlightGroup
	start time.Time
	end   time.Time
}

// mergeOverlapping merges auto-generated trips whose spans overlap or
// sit within the gap threshold. Connected trips are found with a
// union-find over the trip intervals, so the pass reaches its fixed
// point in one sweep instead of restarting on every merge.
func (g *Grouper) mergeOverlapping(ctx context.Context, userID string) (int, error) {
	groups, err := g.store.GetGroupsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading trips: %w", err)
	}

	var intervals []tripInterval
	for _, grp := range groups {
		if !grp.AutoGenerated {
			continue
		}
		flights, err := g.store.GetFlightsByGroup(ctx, grp.ID)
		if err != nil {
			return 0, fmt.Errorf("loading flights for trip %s: %w", grp.ID, err)
		}
		if len(flights) == 0 {
			continue
		}
		intervals = append(intervals, tripInterval{
			group: grp,
			start: flights[0].DepartureTime,
			end:   flights[len(flights)-1].ArrivalTime,
		})
	}
	if len(intervals) < 2 {
		return 0, nil
	}

	// Oldest trip in a connected component survives the merge.
	sort.Slice(intervals, func(i, j int) bool {
		a, b := intervals[i].group, intervals[j].group
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	parent := make([]int, len(intervals))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			if rj < ri {
				ri, rj = rj, ri
			}
			parent[rj] = ri
		}
	}

	for i := 0; i < len(intervals); i++ {
		for j := i + 1; j < len(intervals); j++ {
			a, b := intervals[i], intervals[j]
			if !a.start.After(b.end.Add(proximityGap)) && !b.start.After(a.end.Add(proximityGap)) {
				union(i, j)
			}
		}
	}

	components := make(map[int][]int)
	for i := range intervals {
		root := find(i)
		components[root] = append(components[root], i)
	}

	merges := 0
	for root, members := range components {
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)
		dst := intervals[root].group
		for _, idx := range members {
			src := intervals[idx].group
			if src.ID == dst.ID {
				continue
			}
			if err := g.store.MergeGroups(ctx, dst.ID, src.ID); err != nil {
				return merges, fmt.Errorf("merging trip %s into %s: %w", src.ID, dst.ID, err)
			}
			g.logger.Info("merged trip",
				zap.String("user_id", userID),
				zap.String("from", src.Name), zap.String("into", dst.Name))
			merges++
		}

		// Rebuild the surviving trip's name from the combined flights.
		flights, err := g.store.GetFlightsByGroup(ctx, dst.ID)
		if err != nil {
			return merges, fmt.Errorf("loading flights for merged trip %s: %w", dst.ID, err)
		}
		if err := g.store.RenameGroup(ctx, dst.ID, tripNameWithRefs(flights)); err != nil {
			return merges, fmt.Errorf("renaming merged trip %s: %w", dst.ID, err)
		}
	}

	return merges, nil
}

// tripName builds "ORIGIN → DEST (Mon YYYY)" from departure-ordered
// flights.
func tripName(flights []model.Flight) string {
	sorted := make([]model.Flight, len(flights))
	copy(sorted, flights)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DepartureTime.Before(sorted[j].DepartureTime)
	})

	origin := sorted[0].DepartureAirport
	dest := findDestination(sorted, origin)
	return fmt.Sprintf("%s → %s (%s)", origin, dest, sorted[0].DepartureTime.Format("Jan 2006"))
}

// tripNameWithRefs is tripName plus every distinct booking reference,
// sorted and slash-joined.
func tripNameWithRefs(flights []model.Flight) string {
	name := tripName(flights)

	seen := make(map[string]bool)
	var refs []string
	for _, f := range flights {
		if f.BookingReference != "" && !seen[f.BookingReference] {
			seen[f.BookingReference] = true
			refs = append(refs, f.BookingReference)
		}
	}
	if len(refs) == 0 {
		return name
	}
	sort.Strings(refs)
	return fmt.Sprintf("%s [%s]", name, strings.Join(refs, "/"))
}

// findDestination picks the trip's main destination. A one-way trip
// ends at its last arrival. A round trip that returns to the origin
// reports the first arrival followed by a stay of at least 24 hours,
// distinguishing a real destination from a short connection, falling
// back to the midpoint leg's arrival.
func findDestination(flights []model.Flight, origin string) string {
	if len(flights) == 0 {
		return origin
	}

	lastArrival := flights[len(flights)-1].ArrivalAirport
	if lastArrival != origin {
		return lastArrival
	}

	for i := 0; i+1 < len(flights); i++ {
		stay := flights[i+1].DepartureTime.Sub(flights[i].ArrivalTime)
		if stay >= stayThreshold && flights[i].ArrivalAirport != origin {
			return flights[i].ArrivalAirport
		}
	}

	mid := (len(flights) - 1) / 2
	if arr := flights[mid].ArrivalAirport; arr != origin {
		return arr
	}
	return flights[0].ArrivalAirport
}
