package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
)

// PostgresStore is the production Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresStore creates a connection pool from the database
// configuration and verifies it with a ping.
func NewPostgresStore(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":      cfg.Host,
		"port":      cfg.Port,
		"database":  cfg.Database,
		"max_conns": cfg.MaxConns,
	}).Info("Database connection pool established")

	return &PostgresStore{pool: pool, log: logger}, nil
}

// Ping checks the connection health.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.log.Info("Database connection pool closed")
	}
}

// GetOrganization returns the organization with the given name, or nil when
// it does not exist.
func (s *PostgresStore) GetOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	var org domain.Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM organizations WHERE name = $1`, name,
	).Scan(&org.ID, &org.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying organization: %w", err)
	}
	return &org, nil
}

// ListOrganizations returns every organization, ordered by name.
func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying organizations: %w", err)
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name); err != nil {
			return nil, fmt.Errorf("scanning organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// CreateOrganization inserts a new organization.
func (s *PostgresStore) CreateOrganization(ctx context.Context, name string) (*domain.Organization, error) {
	var org domain.Organization
	org.Name = name
	err := s.pool.QueryRow(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`, name,
	).Scan(&org.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting organization: %w", err)
	}
	return &org, nil
}

// RecordSubmission upserts a lab's submission record for one sample of a
// distribution. A re-upload replaces the declared sequencing platform.
func (s *PostgresStore) RecordSubmission(ctx context.Context, sub *domain.Submission) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO submissions (organization, distribution, sample, sequencing_type, submission_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization, distribution, sample)
		DO UPDATE SET sequencing_type = EXCLUDED.sequencing_type,
		              submission_date = EXCLUDED.submission_date
		RETURNING id`,
		sub.Organization, sub.Distribution, sub.Sample, sub.SequencingType, sub.SubmittedAt,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("recording submission: %w", err)
	}
	return nil
}

// ListSubmissions returns every submission of a distribution.
func (s *PostgresStore) ListSubmissions(ctx context.Context, distribution string) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization, distribution, sample, sequencing_type, submission_date
		FROM submissions
		WHERE distribution = $1
		ORDER BY organization, sample`, distribution)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var sub domain.Submission
		if err := rows.Scan(&sub.ID, &sub.Organization, &sub.Distribution, &sub.Sample, &sub.SequencingType, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Platforms returns lab name -> declared sequencing platform for one sample.
func (s *PostgresStore) Platforms(ctx context.Context, distribution, sample string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT organization, sequencing_type
		FROM submissions
		WHERE distribution = $1 AND sample = $2`, distribution, sample)
	if err != nil {
		return nil, fmt.Errorf("querying platforms: %w", err)
	}
	defer rows.Close()

	platforms := map[string]string{}
	for rows.Next() {
		var org, platform string
		if err := rows.Scan(&org, &platform); err != nil {
			return nil, fmt.Errorf("scanning platform: %w", err)
		}
		platforms[org] = platform
	}
	return platforms, rows.Err()
}

// CreateNotification stores a toolbar notification for a user.
func (s *PostgresStore) CreateNotification(ctx context.Context, userEmail, message string) (*domain.Notification, error) {
	n := &domain.Notification{UserEmail: userEmail, Message: message}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_email, message)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		userEmail, message,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting notification: %w", err)
	}
	return n, nil
}

// ActiveNotifications returns the user's undismissed notifications, newest
// first.
func (s *PostgresStore) ActiveNotifications(ctx context.Context, userEmail string) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_email, message, is_dismissed, created_at
		FROM notifications
		WHERE user_email = $1 AND is_dismissed = FALSE
		ORDER BY created_at DESC`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserEmail, &n.Message, &n.Dismissed, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// DismissNotifications marks every notification of a user dismissed.
func (s *PostgresStore) DismissNotifications(ctx context.Context, userEmail string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_dismissed = TRUE WHERE user_email = $1`, userEmail)
	if err != nil {
		return fmt.Errorf("dismissing notifications: %w", err)
	}
	return nil
}
