package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// PostgresRepository stores profiles in a self-hosted Postgres database.
// Access control is the database's concern here, so the bearer token is
// accepted and ignored.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres-backed profile repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// MarkVerified implements Repository.MarkVerified.
func (r *PostgresRepository) MarkVerified(ctx context.Context, _ string, id uuid.UUID, verifiedAt time.Time) (*Profile, error) {
	query := `
		UPDATE profiles
		SET email_verified = TRUE,
		    verified_at = $2
		WHERE id = $1
		RETURNING id, email, full_name, email_verified, verified_at, created_at
	`

	profile, err := r.scanRow(r.db.QueryRow(ctx, query, id, verifiedAt.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to mark profile verified: %w", err)
	}
	return profile, nil
}

// GetByID implements Repository.GetByID.
func (r *PostgresRepository) GetByID(ctx context.Context, _ string, id uuid.UUID) (*Profile, error) {
	query := `
		SELECT id, email, full_name, email_verified, verified_at, created_at
		FROM profiles
		WHERE id = $1
	`

	profile, err := r.scanRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// Create implements Repository.Create.
func (r *PostgresRepository) Create(ctx context.Context, _ string, p Profile) (*Profile, error) {
	query := `
		INSERT INTO profiles (id, email, full_name, email_verified, verified_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, full_name, email_verified, verified_at, created_at
	`

	profile, err := r.scanRow(r.db.QueryRow(ctx, query, p.ID, p.Email, p.FullName, p.EmailVerified, p.VerifiedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrProfileConflict
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return profile, nil
}

// UpdateFullName implements Repository.UpdateFullName.
func (r *PostgresRepository) UpdateFullName(ctx context.Context, _ string, id uuid.UUID, fullName string) (*Profile, error) {
	query := `
		UPDATE profiles
		SET full_name = $2
		WHERE id = $1
		RETURNING id, email, full_name, email_verified, verified_at, created_at
	`

	profile, err := r.scanRow(r.db.QueryRow(ctx, query, id, fullName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to update full name: %w", err)
	}
	return profile, nil
}

func (r *PostgresRepository) scanRow(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.FullName,
		&p.EmailVerified,
		&p.VerifiedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
