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

// CreateUser inserts a new user. Generates a UUID if ID is empty.
func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	if u.Username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)",
		u.ID, u.Username, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user %s: %w", u.Username, err)
	}
	return &u, nil
}

// GetUserByID returns a user by ID, or ErrNotFound.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return &u, nil
}

// GetUserByUsername looks a user up by username, case-insensitively.
// Used by the inbound SMTP server to resolve forwarding addresses.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		"SELECT * FROM users WHERE username = ?", strings.ToLower(strings.TrimSpace(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username %s: %w", username, err)
	}
	return &u, nil
}
