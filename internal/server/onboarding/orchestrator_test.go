package onboarding

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/dbx"
	"github.com/haulhq/driveronboard/internal/history"
	"github.com/haulhq/driveronboard/internal/logging"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/server/repositories/records"
	"github.com/haulhq/driveronboard/internal/server/repositories/sessions"
	"github.com/haulhq/driveronboard/internal/steps"
)

// ---- fakes ----

type fakeLifecycle struct {
	sessions map[string]*models.Session
	expired  bool

	terminated       bool
	terminatedReason string
	updates          int
	touched          int
}

func (f *fakeLifecycle) Get(ctx context.Context, id string) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s, nil
}

func (f *fakeLifecycle) IsExpired(*models.Session) bool { return f.expired }

func (f *fakeLifecycle) Touch(*models.Session) { f.touched++ }

func (f *fakeLifecycle) Terminate(ctx context.Context, s *models.Session, reason string) error {
	f.terminated = true
	f.terminatedReason = reason
	s.Terminated = true
	s.TerminatedReason = reason
	return nil
}

func (f *fakeLifecycle) Update(ctx context.Context, s *models.Session) error {
	f.updates++
	return nil
}

type fakeFinalizer struct {
	runs int
	err  error

	lastPriorKeys  []string
	lastDestPrefix string
}

func (f *fakeFinalizer) Run(ctx context.Context, rec *models.Record, priorKeys []string, destPrefix string) error {
	if f.err != nil {
		return f.err
	}
	f.runs++
	f.lastPriorKeys = priorKeys
	f.lastDestPrefix = destPrefix
	return nil
}

type fakeStore struct {
	deleted   []string
	deleteErr error
	presigned []string
}

func (f *fakeStore) StagePutURL(ctx context.Context, mimeType string) (*models.FileAsset, error) {
	panic("not used")
}

func (f *fakeStore) Move(ctx context.Context, tempKey, destPrefix string) (*models.FileAsset, error) {
	panic("not used")
}

func (f *fakeStore) Delete(ctx context.Context, keys []string) error {
	f.deleted = append(f.deleted, keys...)
	return f.deleteErr
}

func (f *fakeStore) PresignGetURL(ctx context.Context, key string) (string, error) {
	f.presigned = append(f.presigned, key)
	return "https://s3.local/" + key + "?sig=abc", nil
}

type fakeRecordRepo struct {
	byKind map[steps.Step]*models.Record

	sessionDeletes int
}

func (f *fakeRecordRepo) GetByID(ctx context.Context, id string) (*models.Record, error) {
	panic("not used")
}

func (f *fakeRecordRepo) GetBySessionAndKind(ctx context.Context, sessionID string, kind steps.Step) (*models.Record, error) {
	rec, ok := f.byKind[kind]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRecordRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.Record, error) {
	var out []*models.Record
	for _, rec := range f.byKind {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeRecordRepo) Save(ctx context.Context, rec *models.Record) error { return nil }

func (f *fakeRecordRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	f.sessionDeletes++
	return nil
}

type fakeSessionRepo struct {
	deletes int
}

func (f *fakeSessionRepo) Create(ctx context.Context, s *models.Session) error  { panic("not used") }
func (f *fakeSessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	panic("not used")
}
func (f *fakeSessionRepo) GetByIdentityHash(ctx context.Context, hash string) (*models.Session, error) {
	panic("not used")
}
func (f *fakeSessionRepo) Update(ctx context.Context, s *models.Session) error { panic("not used") }
func (f *fakeSessionRepo) Delete(ctx context.Context, id string) error {
	f.deletes++
	return nil
}

type fakeRepoManager struct {
	recordRepo  *fakeRecordRepo
	sessionRepo *fakeSessionRepo
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository    { return f.sessionRepo }
func (f *fakeRepoManager) Records(db dbx.DBTX) records.Repository      { return f.recordRepo }

// ---- helpers ----

type fixture struct {
	orch      *Orchestrator
	lifecycle *fakeLifecycle
	finalizer *fakeFinalizer
	store     *fakeStore
	records   *fakeRecordRepo
	sessions  *fakeSessionRepo
}

func newFixture(t *testing.T, db *sql.DB) *fixture {
	t.Helper()

	f := &fixture{
		lifecycle: &fakeLifecycle{sessions: make(map[string]*models.Session)},
		finalizer: &fakeFinalizer{},
		store:     &fakeStore{},
		records:   &fakeRecordRepo{byKind: make(map[steps.Step]*models.Record)},
		sessions:  &fakeSessionRepo{},
	}
	rm := &fakeRepoManager{recordRepo: f.records, sessionRepo: f.sessions}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.orch = NewOrchestrator(db, rm, f.lifecycle, f.finalizer, f.store, logger)
	return f
}

func (f *fixture) addSession(id string, current steps.Step) *models.Session {
	s := &models.Session{
		ID:              id,
		Progress:        steps.Progress{CurrentStep: current},
		ResumeExpiresAt: time.Now().Add(time.Hour),
	}
	f.lifecycle.sessions[id] = s
	return s
}

// ---- tests ----

func TestHandleStep_AdvancesOnCurrentStep(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.Prequalification)

	body := []byte(`{"has_cdl":true,"eligible_to_work":true,"meets_age_requirement":true,"has_dui":false}`)
	session, rec, err := f.orch.HandleStep(context.Background(), "s1", steps.Prequalification, body)
	require.NoError(t, err)

	assert.Equal(t, steps.ApplicationPage1, session.Progress.CurrentStep)
	assert.Equal(t, 1, f.finalizer.runs)
	assert.Equal(t, "sessions/s1", f.finalizer.lastDestPrefix)
	assert.Equal(t, 1, f.lifecycle.updates)
	assert.Equal(t, 1, f.lifecycle.touched)

	linked, ok := session.RecordID(steps.Prequalification)
	require.True(t, ok)
	assert.Equal(t, rec.ID, linked)
}

func TestHandleStep_ResubmitEarlierStepDoesNotAdvance(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.ApplicationPage2)

	body := []byte(`{"has_cdl":true,"eligible_to_work":true,"meets_age_requirement":true,"has_dui":false}`)
	session, _, err := f.orch.HandleStep(context.Background(), "s1", steps.Prequalification, body)
	require.NoError(t, err)

	assert.Equal(t, steps.ApplicationPage2, session.Progress.CurrentStep)
	assert.Equal(t, 1, f.finalizer.runs, "the rewrite itself is permitted")
}

func TestHandleStep_StepAheadIsGated(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.Prequalification)

	_, _, err := f.orch.HandleStep(context.Background(), "s1", steps.DriveTest, []byte(`{}`))

	var gErr *common.GateError
	require.ErrorAs(t, err, &gErr)
	assert.Equal(t, string(steps.DriveTest), gErr.Step)
	assert.Zero(t, f.finalizer.runs)
}

func TestHandleStep_UnknownSession(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.orch.HandleStep(context.Background(), "nope", steps.Prequalification, []byte(`{}`))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestHandleStep_ExpiredSession(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.Prequalification)
	f.lifecycle.expired = true

	_, _, err := f.orch.HandleStep(context.Background(), "s1", steps.Prequalification, []byte(`{}`))
	assert.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestHandleStep_TerminatedSession(t *testing.T) {
	f := newFixture(t, nil)
	s := f.addSession("s1", steps.DriveTest)
	s.Terminated = true

	_, _, err := f.orch.HandleStep(context.Background(), "s1", steps.DriveTest, []byte(`{}`))

	var gErr *common.GateError
	require.ErrorAs(t, err, &gErr)
	assert.Equal(t, "session terminated", gErr.Reason)
}

func TestHandleStep_UnknownFieldRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.Prequalification)

	_, _, err := f.orch.HandleStep(context.Background(), "s1", steps.Prequalification,
		[]byte(`{"has_cdl":true,"shoe_size":42}`))

	var vErr *common.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Zero(t, f.finalizer.runs)
}

func TestHandleStep_EmploymentHistoryRulesApplied(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.EmploymentHistory)

	// two entries overlapping in time
	body := []byte(`{"entries":[
		{"employer_name":"Acme","position":"Driver","from":"2024-01-01","to":"2025-06-01"},
		{"employer_name":"Initech","position":"Driver","from":"2025-01-01","to":"2025-12-01"}
	]}`)
	_, _, err := f.orch.HandleStep(context.Background(), "s1", steps.EmploymentHistory, body)

	var oErr *history.OverlapError
	require.ErrorAs(t, err, &oErr)
	assert.Zero(t, f.finalizer.runs)
}

func TestHandleStep_FailedDriveTestTerminates(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.DriveTest)

	body := []byte(`{"passed":false,"examiner":"R. Ortiz","tested_on":"2026-08-30",
		"score_sheet":{"key":"temp/sheet.pdf"}}`)
	session, rec, err := f.orch.HandleStep(context.Background(), "s1", steps.DriveTest, body)
	require.NoError(t, err)

	assert.Equal(t, 1, f.finalizer.runs, "the failed result is still kept on file")
	require.NotNil(t, rec)
	assert.True(t, f.lifecycle.terminated)
	assert.Equal(t, "failed drive test", f.lifecycle.terminatedReason)
	assert.Equal(t, steps.DriveTest, session.Progress.CurrentStep, "no advance past a failed test")
}

func TestHandleStep_FinalStepCompletes(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.FlatbedTraining)

	body := []byte(`{"completed_on":"2026-08-31","trainer":"M. Chen",
		"certificate":{"key":"temp/cert.pdf"}}`)
	session, _, err := f.orch.HandleStep(context.Background(), "s1", steps.FlatbedTraining, body)
	require.NoError(t, err)

	assert.True(t, session.Progress.Completed)
	assert.Equal(t, steps.FlatbedTraining, session.Progress.CurrentStep)
}

func TestHandleStep_PriorKeysFromExistingRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.PoliciesConsents)

	f.records.byKind[steps.LicenseUpload] = &models.Record{
		ID: "r-lic", SessionID: "s1", Kind: steps.LicenseUpload,
		Payload: &models.LicenseUploadPayload{
			LicenseNumber: "D1", LicenseClass: "A", ExpiresOn: "2027-01-01",
			LicenseFront: models.FileAsset{Key: "sessions/s1/license_front/a.jpg"},
			LicenseBack:  models.FileAsset{Key: "sessions/s1/license_back/b.jpg"},
		},
	}

	body := []byte(`{"license_number":"D2","license_class":"A","expires_on":"2027-01-01",
		"license_front":{"key":"temp/x.jpg"},"license_back":{"key":"temp/y.jpg"}}`)
	_, _, err := f.orch.HandleStep(context.Background(), "s1", steps.LicenseUpload, body)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"sessions/s1/license_front/a.jpg",
		"sessions/s1/license_back/b.jpg",
	}, f.finalizer.lastPriorKeys)
}

func TestGetStep_PresignsFinalizedAssets(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.PoliciesConsents)

	f.records.byKind[steps.LicenseUpload] = &models.Record{
		ID: "r-lic", SessionID: "s1", Kind: steps.LicenseUpload,
		Payload: &models.LicenseUploadPayload{
			LicenseNumber: "D1", LicenseClass: "A", ExpiresOn: "2027-01-01",
			LicenseFront: models.FileAsset{Key: "sessions/s1/license_front/a.jpg"},
			LicenseBack:  models.FileAsset{Key: "sessions/s1/license_back/b.jpg"},
		},
	}

	rec, err := f.orch.GetStep(context.Background(), "s1", steps.LicenseUpload)
	require.NoError(t, err)

	payload := rec.Payload.(*models.LicenseUploadPayload)
	assert.Contains(t, payload.LicenseFront.URL, "sessions/s1/license_front/a.jpg")
	assert.Len(t, f.store.presigned, 2)
}

func TestGetStep_UnreachedStepIsGated(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.Prequalification)

	_, err := f.orch.GetStep(context.Background(), "s1", steps.DriveTest)

	var gErr *common.GateError
	assert.ErrorAs(t, err, &gErr)
}

func TestDeleteSession_RemovesObjectsThenRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := newFixture(t, db)
	f.addSession("s1", steps.PoliciesConsents)
	f.records.byKind[steps.LicenseUpload] = &models.Record{
		ID: "r-lic", SessionID: "s1", Kind: steps.LicenseUpload,
		Payload: &models.LicenseUploadPayload{
			LicenseNumber: "D1", LicenseClass: "A", ExpiresOn: "2027-01-01",
			LicenseFront: models.FileAsset{Key: "sessions/s1/license_front/a.jpg"},
			LicenseBack:  models.FileAsset{Key: "sessions/s1/license_back/b.jpg"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, f.orch.DeleteSession(context.Background(), "s1"))

	assert.Len(t, f.store.deleted, 2)
	assert.Equal(t, 1, f.records.sessionDeletes)
	assert.Equal(t, 1, f.sessions.deletes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSession_AbortsWhenObjectDeleteFails(t *testing.T) {
	f := newFixture(t, nil)
	f.addSession("s1", steps.PoliciesConsents)
	f.records.byKind[steps.LicenseUpload] = &models.Record{
		ID: "r-lic", SessionID: "s1", Kind: steps.LicenseUpload,
		Payload: &models.LicenseUploadPayload{
			LicenseNumber: "D1", LicenseClass: "A", ExpiresOn: "2027-01-01",
			LicenseFront: models.FileAsset{Key: "sessions/s1/license_front/a.jpg"},
			LicenseBack:  models.FileAsset{Key: "sessions/s1/license_back/b.jpg"},
		},
	}
	f.store.deleteErr = errors.New("delete refused")

	err := f.orch.DeleteSession(context.Background(), "s1")
	require.Error(t, err)
	assert.Zero(t, f.records.sessionDeletes, "rows stay while their objects exist")
}
