// Package sessions provides the PostgreSQL-backed repository for onboarding
// sessions.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/dbx"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/steps"
)

// uniqueViolation is the PostgreSQL error code raised by the identity hash
// unique index.
const uniqueViolation = "23505"

// PostgresRepository implements session storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new session. A duplicate identity hash surfaces as
// common.ErrDuplicateIdentity.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	linked, err := marshalLinked(s.LinkedRecords)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (id, identity_hash, identity_encrypted, identity_nonce,
			carrier_code, terminal, current_step, completed, resume_expires_at,
			terminated, terminated_reason, terminated_at, linked_records, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
		RETURNING version, created_at, updated_at;
	`
	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.IdentityHash, s.IdentityEncrypted, s.IdentityNonce,
		s.Company.CarrierCode, s.Company.Terminal,
		string(s.Progress.CurrentStep), s.Progress.Completed, s.ResumeExpiresAt,
		s.Terminated, s.TerminatedReason, s.TerminatedAt, linked,
	).Scan(&s.Version, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrDuplicateIdentity
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return r.getByField(ctx, "id", id)
}

func (r *PostgresRepository) GetByIdentityHash(ctx context.Context, hash string) (*models.Session, error) {
	return r.getByField(ctx, "identity_hash", hash)
}

func (r *PostgresRepository) getByField(ctx context.Context, field, value string) (*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, identity_hash, identity_encrypted, identity_nonce,
			carrier_code, terminal, current_step, completed, resume_expires_at,
			terminated, terminated_reason, terminated_at, linked_records, version,
			created_at, updated_at
		FROM sessions WHERE %s = $1;
	`, field)

	s := &models.Session{}
	var currentStep string
	var terminatedAt sql.NullTime
	var linked []byte

	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&s.ID, &s.IdentityHash, &s.IdentityEncrypted, &s.IdentityNonce,
		&s.Company.CarrierCode, &s.Company.Terminal,
		&currentStep, &s.Progress.Completed, &s.ResumeExpiresAt,
		&s.Terminated, &s.TerminatedReason, &terminatedAt, &linked, &s.Version,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.Progress.CurrentStep = steps.Step(currentStep)
	if terminatedAt.Valid {
		t := terminatedAt.Time
		s.TerminatedAt = &t
	}
	if err := json.Unmarshal(linked, &s.LinkedRecords); err != nil {
		return nil, fmt.Errorf("linked records decode: %w", err)
	}

	return s, nil
}

// Update persists the session with optimistic compare-on-write. If the row's
// version no longer matches, common.ErrVersionConflict is returned and the
// caller may reload and retry. On success the session's version is advanced
// in place.
func (r *PostgresRepository) Update(ctx context.Context, s *models.Session) error {
	linked, err := marshalLinked(s.LinkedRecords)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions SET
			identity_hash = $2, identity_encrypted = $3, identity_nonce = $4,
			current_step = $5, completed = $6, resume_expires_at = $7,
			terminated = $8, terminated_reason = $9, terminated_at = $10,
			linked_records = $11, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $12
		RETURNING version, updated_at;
	`
	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.IdentityHash, s.IdentityEncrypted, s.IdentityNonce,
		string(s.Progress.CurrentStep), s.Progress.Completed, s.ResumeExpiresAt,
		s.Terminated, s.TerminatedReason, s.TerminatedAt, linked, s.Version,
	).Scan(&s.Version, &s.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrVersionConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrDuplicateIdentity
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

// Delete removes the session row; linked records go with it via the cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func marshalLinked(linked map[steps.Step]string) ([]byte, error) {
	if linked == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(linked)
	if err != nil {
		return nil, fmt.Errorf("linked records encode: %w", err)
	}
	return b, nil
}

var _ Repository = (*PostgresRepository)(nil)
