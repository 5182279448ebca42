package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/flight-tracker/internal/model"
)

// CreateAccount inserts a new email account. Generates a UUID if ID is
// empty.
func (s *SQLiteStore) CreateAccount(ctx context.Context, a model.EmailAccount) (*model.EmailAccount, error) {
	if a.EmailAddress == "" || a.IMAPHost == "" {
		return nil, fmt.Errorf("email address and imap host must not be empty")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.IMAPPort == 0 {
		a.IMAPPort = 993
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_accounts (
			id, user_id, name, email_address,
			imap_host, imap_port, imap_username, imap_password,
			use_tls, active, last_synced_at, last_rules_version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.EmailAddress,
		a.IMAPHost, a.IMAPPort, a.IMAPUsername, a.IMAPPassword,
		a.UseTLS, a.Active, a.LastSyncedAt, a.LastRulesVersion,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating email account %s: %w", a.EmailAddress, err)
	}
	return &a, nil
}

// UpdateAccount updates an existing email account by ID.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, a model.EmailAccount) error {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE email_accounts SET
			name = ?, email_address = ?,
			imap_host = ?, imap_port = ?, imap_username = ?, imap_password = ?,
			use_tls = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.EmailAddress,
		a.IMAPHost, a.IMAPPort, a.IMAPUsername, a.IMAPPassword,
		a.UseTLS, a.Active, a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating email account %s: %w", a.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccount removes an email account by ID.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM email_accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting email account %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAccountByID returns an email account by ID, or ErrNotFound.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id string) (*model.EmailAccount, error) {
	var a model.EmailAccount
	err := s.db.GetContext(ctx, &a, "SELECT * FROM email_accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting email account %s: %w", id, err)
	}
	return &a, nil
}

// GetActiveAccounts returns every account flagged active, across all
// users, ordered by creation time. The poller walks this list each
// cycle.
func (s *SQLiteStore) GetActiveAccounts(ctx context.Context) ([]model.EmailAccount, error) {
	var accounts []model.EmailAccount
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT * FROM email_accounts WHERE active = 1 ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("getting active accounts: %w", err)
	}
	return accounts, nil
}

// MarkSynced records a completed sync attempt: the sync timestamp and
// the rules version the account was scanned with.
func (s *SQLiteStore) MarkSynced(ctx context.Context, accountID, rulesVersion string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE email_accounts
		SET last_synced_at = ?, last_rules_version = ?, updated_at = ?
		WHERE id = ?`,
		at.UTC(), rulesVersion, time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("marking account %s synced: %w", accountID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
