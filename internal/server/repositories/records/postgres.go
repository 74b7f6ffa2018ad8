// Package records provides the PostgreSQL-backed repository for per-step
// onboarding records.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/dbx"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/steps"
)

// PostgresRepository implements record storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `
		SELECT id, session_id, kind, payload, version, created_at, updated_at
		FROM records WHERE id = $1;
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetBySessionAndKind(ctx context.Context, sessionID string, kind steps.Step) (*models.Record, error) {
	query := `
		SELECT id, session_id, kind, payload, version, created_at, updated_at
		FROM records WHERE session_id = $1 AND kind = $2;
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, sessionID, string(kind)))
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Record, error) {
	query := `
		SELECT id, session_id, kind, payload, version, created_at, updated_at
		FROM records WHERE session_id = $1 ORDER BY kind;
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts the record for its (session, kind) pair with optimistic
// compare-on-write: updating stale state returns common.ErrVersionConflict.
// On success the record's version is advanced in place.
func (r *PostgresRepository) Save(ctx context.Context, rec *models.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("payload encode: %w", err)
	}

	query := `
		INSERT INTO records (id, session_id, kind, payload, version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (session_id, kind)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			version = records.version + 1,
			updated_at = now()
			WHERE records.version = $5
		RETURNING id, version, created_at, updated_at;
	`
	err = r.db.QueryRowContext(ctx, query,
		rec.ID, rec.SessionID, string(rec.Kind), payload, rec.Version,
	).Scan(&rec.ID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE session_id = $1;`, sessionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Record, error) {
	rec, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	rec := &models.Record{}
	var kind string
	var payload []byte

	if err := scan(&rec.ID, &rec.SessionID, &kind, &payload, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rec.Kind = steps.Step(kind)
	p, err := models.DecodePayload(rec.Kind, payload)
	if err != nil {
		return nil, fmt.Errorf("payload decode: %w", err)
	}
	rec.Payload = p

	return rec, nil
}

var _ Repository = (*PostgresRepository)(nil)
