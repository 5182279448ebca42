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

// CreateGroup inserts a new flight group. Generates a UUID if ID is
// empty.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g model.FlightGroup) (*model.FlightGroup, error) {
	if strings.TrimSpace(g.Name) == "" {
		return nil, fmt.Errorf("group name must not be empty")
	}
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flight_groups (id, user_id, name, description, auto_generated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Description, g.AutoGenerated, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating flight group %s: %w", g.Name, err)
	}
	return &g, nil
}

// RenameGroup updates a group's name.
func (s *SQLiteStore) RenameGroup(ctx context.Context, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("group name must not be empty")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE flight_groups SET name = ?, updated_at = ?
		WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("renaming flight group %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteGroup removes a group by ID. Member flights fall back to
// ungrouped via the schema's ON DELETE SET NULL.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM flight_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting flight group %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetGroupByID returns a group by ID, or ErrNotFound.
func (s *SQLiteStore) GetGroupByID(ctx context.Context, id string) (*model.FlightGroup, error) {
	var g model.FlightGroup
	err := s.db.GetContext(ctx, &g, "SELECT * FROM flight_groups WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting flight group %s: %w", id, err)
	}
	return &g, nil
}

// GetGroupsByUser returns a user's groups, newest trip first by
// creation time.
func (s *SQLiteStore) GetGroupsByUser(ctx context.Context, userID string) ([]model.FlightGroup, error) {
	var groups []model.FlightGroup
	err := s.db.SelectContext(ctx, &groups,
		"SELECT * FROM flight_groups WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("getting flight groups for user %s: %w", userID, err)
	}
	return groups, nil
}

// AssignFlightToGroup sets (or clears, with nil) a flight's group.
func (s *SQLiteStore) AssignFlightToGroup(ctx context.Context, flightID string, groupID *string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE flights SET group_id = ?, updated_at = ? WHERE id = ?",
		groupID, time.Now().UTC(), flightID,
	)
	if err != nil {
		return fmt.Errorf("assigning flight %s to group: %w", flightID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeGroups moves every flight from src into dst and deletes src, in
// one transaction.
func (s *SQLiteStore) MergeGroups(ctx context.Context, dstID, srcID string) error {
	if dstID == srcID {
		return fmt.Errorf("cannot merge group %s into itself", srcID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE flights SET group_id = ?, updated_at = ? WHERE group_id = ?",
		dstID, time.Now().UTC(), srcID,
	); err != nil {
		return fmt.Errorf("moving flights from group %s: %w", srcID, err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM flight_groups WHERE id = ?", srcID)
	if err != nil {
		return fmt.Errorf("deleting merged group %s: %w", srcID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing group merge: %w", err)
	}
	return nil
}
