package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// SQLiteStore implements the Store interface on an embedded SQLite
// database. Used for single-node deployments and local development where a
// Postgres instance would be overkill.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database file and its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(s scanner) (*domain.Submission, error) {
	sub := &domain.Submission{}
	if err := s.Scan(&sub.ID, &sub.Organization, &sub.Distribution, &sub.Sample, &sub.SequencingType, &sub.SubmittedAt); err != nil {
		return nil, err
	}
	return sub, nil
}

func scanNotification(s scanner) (*domain.Notification, error) {
	n := &domain.Notification{}
	if err := s.Scan(&n.ID, &n.UserEmail, &n.Message, &n.Dismissed, &n.CreatedAt); err != nil {
		return nil, err
	}
	return n, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization TEXT NOT NULL,
		distribution TEXT NOT NULL,
		sample TEXT NOT NULL,
		sequencing_type TEXT NOT NULL DEFAULT '',
		submission_date DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(organization, distribution, sample)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_email TEXT NOT NULL,
		message TEXT NOT NULL,
		is_dismissed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_distribution ON submissions(distribution);
	CREATE INDEX IF NOT EXISTS idx_submissions_sample ON submissions(distribution, sample);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_email, is_dismissed);
	`

	_, err := db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// GetOrganization returns the organization with the given name, or nil when
// it does not exist.
func (s *SQLiteStore) GetOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM organizations WHERE name = ?", name,
	).Scan(&org.ID, &org.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query organization: %w", err)
	}
	return &org, nil
}

// ListOrganizations returns every organization, ordered by name.
func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM organizations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// CreateOrganization inserts a new organization.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO organizations (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert organization: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}
	return &domain.Organization{ID: id, Name: name}, nil
}

// RecordSubmission upserts a lab's submission record for one sample.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub *domain.Submission) error {
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM submissions WHERE organization = ? AND distribution = ? AND sample = ?",
		sub.Organization, sub.Distribution, sub.Sample,
	).Scan(&existingID)

	if err == nil {
		sub.ID = existingID
		_, err = s.db.ExecContext(ctx, `
			UPDATE submissions SET sequencing_type = ?, submission_date = ? WHERE id = ?
		`, sub.SequencingType, sub.SubmittedAt, existingID)
		if err != nil {
			return fmt.Errorf("failed to update submission: %w", err)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (organization, distribution, sample, sequencing_type, submission_date)
		VALUES (?, ?, ?, ?, ?)
	`, sub.Organization, sub.Distribution, sub.Sample, sub.SequencingType, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	sub.ID = id
	return nil
}

// ListSubmissions returns every submission of a distribution.
func (s *SQLiteStore) ListSubmissions(ctx context.Context, distribution string) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization, distribution, sample, sequencing_type, submission_date
		FROM submissions
		WHERE distribution = ?
		ORDER BY organization, sample
	`, distribution)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Platforms returns lab name -> declared sequencing platform for one sample.
func (s *SQLiteStore) Platforms(ctx context.Context, distribution, sample string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization, sequencing_type
		FROM submissions
		WHERE distribution = ? AND sample = ?
	`, distribution, sample)
	if err != nil {
		return nil, fmt.Errorf("failed to query platforms: %w", err)
	}
	defer rows.Close()

	platforms := map[string]string{}
	for rows.Next() {
		var org, platform string
		if err := rows.Scan(&org, &platform); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		platforms[org] = platform
	}
	return platforms, rows.Err()
}

// CreateNotification stores a toolbar notification for a user.
func (s *SQLiteStore) CreateNotification(ctx context.Context, userEmail, message string) (*domain.Notification, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_email, message, created_at) VALUES (?, ?, ?)
	`, userEmail, message, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}
	return &domain.Notification{ID: id, UserEmail: userEmail, Message: message, CreatedAt: now}, nil
}

// ActiveNotifications returns the user's undismissed notifications, newest
// first.
func (s *SQLiteStore) ActiveNotifications(ctx context.Context, userEmail string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, message, is_dismissed, created_at
		FROM notifications
		WHERE user_email = ? AND is_dismissed = 0
		ORDER BY created_at DESC, id DESC
	`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

// DismissNotifications marks every notification of a user dismissed.
func (s *SQLiteStore) DismissNotifications(ctx context.Context, userEmail string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_dismissed = 1 WHERE user_email = ?", userEmail)
	if err != nil {
		return fmt.Errorf("failed to dismiss notifications: %w", err)
	}
	return nil
}
