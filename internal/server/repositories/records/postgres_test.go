package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/steps"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestSave_InsertPopulatesVersion(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO records .* ON CONFLICT \(session_id, kind\).*RETURNING id, version, created_at, updated_at;`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow("r1", int64(1), now, now))

	rec := &models.Record{
		ID:        "r1",
		SessionID: "s1",
		Kind:      steps.ApplicationPage1,
		Payload:   &models.ApplicationPage1Payload{FirstName: "Ada"},
	}
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("version not populated: %d", rec.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSave_StaleVersionConflicts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO records`).
		WillReturnError(sql.ErrNoRows)

	rec := &models.Record{
		ID:        "r1",
		SessionID: "s1",
		Kind:      steps.ApplicationPage1,
		Payload:   &models.ApplicationPage1Payload{},
		Version:   7,
	}
	if err := repo.Save(context.Background(), rec); !errors.Is(err, common.ErrVersionConflict) {
		t.Fatalf("want ErrVersionConflict, got %v", err)
	}
}

func TestGetBySessionAndKind_DecodesTypedPayload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "kind", "payload", "version", "created_at", "updated_at"}).
		AddRow("r1", "s1", "license_upload", []byte(`{
			"license_number": "D1234567",
			"license_class": "A",
			"expires_on": "2027-05-01",
			"license_front": {"key": "sessions/s1/license_front/a.jpg", "url": "", "mime_type": "image/jpeg"},
			"license_back": {"key": "temp/b.jpg", "url": "", "mime_type": "image/jpeg"}
		}`), int64(2), now, now)

	mock.ExpectQuery(`SELECT .* FROM records WHERE session_id = \$1 AND kind = \$2;`).
		WithArgs("s1", "license_upload").
		WillReturnRows(rows)

	rec, err := repo.GetBySessionAndKind(context.Background(), "s1", steps.LicenseUpload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, ok := rec.Payload.(*models.LicenseUploadPayload)
	if !ok {
		t.Fatalf("payload not typed: %T", rec.Payload)
	}
	if payload.LicenseNumber != "D1234567" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if !payload.LicenseBack.IsTemp() || payload.LicenseFront.IsTemp() {
		t.Fatalf("temp flags wrong: %+v", payload)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM records WHERE id = \$1;`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListBySession(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "session_id", "kind", "payload", "version", "created_at", "updated_at"}).
		AddRow("r1", "s1", "prequalification", []byte(`{"has_cdl": true}`), int64(1), now, now).
		AddRow("r2", "s1", "application_page1", []byte(`{"first_name": "Ada"}`), int64(3), now, now)

	mock.ExpectQuery(`SELECT .* FROM records WHERE session_id = \$1 ORDER BY kind;`).
		WithArgs("s1").
		WillReturnRows(rows)

	recs, err := repo.ListBySession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %d", len(recs))
	}
	if recs[0].Kind != steps.Prequalification || recs[1].Kind != steps.ApplicationPage1 {
		t.Fatalf("kinds wrong: %v %v", recs[0].Kind, recs[1].Kind)
	}
}
