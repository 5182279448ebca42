package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/flight-tracker/internal/model"
)

// ErrDuplicateFlight is returned when a flight with the same dedup key
// (user + email message id + flight number) already exists.
var ErrDuplicateFlight = errors.New("duplicate flight")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// FlightFilter controls filtering and sorting for flight queries.
type FlightFilter struct {
	Status  *string
	GroupID *string
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// Store defines the persistence interface for users, email accounts,
// flights, and flight groups.
type Store interface {
	// === Users ===

	CreateUser(ctx context.Context, u model.User) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// === Email accounts ===

	CreateAccount(ctx context.Context, a model.EmailAccount) (*model.EmailAccount, error)
	UpdateAccount(ctx context.Context, a model.EmailAccount) error
	DeleteAccount(ctx context.Context, id string) error
	GetAccountByID(ctx context.Context, id string) (*model.EmailAccount, error)
	GetActiveAccounts(ctx context.Context) ([]model.EmailAccount, error)
	MarkSynced(ctx context.Context, accountID, rulesVersion string, at time.Time) error

	// === Flights ===

	CreateFlight(ctx context.Context, f model.Flight) (*model.Flight, error)
	UpdateFlight(ctx context.Context, f model.Flight) error
	DeleteFlight(ctx context.Context, id string) error
	GetFlightByID(ctx context.Context, id string) (*model.Flight, error)
	GetFlights(ctx context.Context, userID string, filter FlightFilter) ([]model.Flight, error)
	GetUngroupedFlights(ctx context.Context, userID string) ([]model.Flight, error)
	GetFlightsByGroup(ctx context.Context, groupID string) ([]model.Flight, error)
	RefreshFlightStatuses(ctx context.Context, now time.Time) (int, error)

	// === Flight groups ===

	CreateGroup(ctx context.Context, g model.FlightGroup) (*model.FlightGroup, error)
	RenameGroup(ctx context.Context, id, name string) error
	DeleteGroup(ctx context.Context, id string) error
	GetGroupByID(ctx context.Context, id string) (*model.FlightGroup, error)
	GetGroupsByUser(ctx context.Context, userID string) ([]model.FlightGroup, error)
	AssignFlightToGroup(ctx context.Context, flightID string, groupID *string) error
	// MergeGroups moves every flight from src into dst and deletes src,
	// atomically.
	MergeGroups(ctx context.Context, dstID, srcID string) error

	Close() error
}
