// Package onboarding drives a session through the hiring pipeline: it
// gates step submissions against the progression order, applies the
// per-step business rules, hands file-carrying payloads to the finalizer,
// and advances the session on success.
package onboarding

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/dbx"
	"github.com/haulhq/driveronboard/internal/history"
	"github.com/haulhq/driveronboard/internal/logging"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/server/repositories/repomanager"
	"github.com/haulhq/driveronboard/internal/server/storage"
	"github.com/haulhq/driveronboard/internal/steps"
)

type lifecycleSvc interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	IsExpired(session *models.Session) bool
	Touch(session *models.Session)
	Terminate(ctx context.Context, session *models.Session, reason string) error
	Update(ctx context.Context, session *models.Session) error
}

type finalizerSvc interface {
	Run(ctx context.Context, rec *models.Record, priorKeys []string, destPrefix string) error
}

type Orchestrator struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	lifecycle   lifecycleSvc
	finalizer   finalizerSvc
	store       storage.ObjectStore
	order       *steps.Order
	logger      logging.Logger
}

func NewOrchestrator(db *sql.DB, rm repomanager.RepositoryManager, lifecycle lifecycleSvc,
	finalizer finalizerSvc, store storage.ObjectStore, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		db:          db,
		repomanager: rm,
		lifecycle:   lifecycle,
		finalizer:   finalizer,
		store:       store,
		order:       steps.DefaultOrder(),
		logger:      logger.With("module", "onboarding"),
	}
}

// gate loads the session and rejects everything that may not act on the
// given step: unknown sessions, elapsed resume windows, and steps the
// session has not reached yet.
func (o *Orchestrator) gate(ctx context.Context, sessionID string, step steps.Step) (*models.Session, error) {
	session, err := o.lifecycle.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if o.lifecycle.IsExpired(session) {
		return nil, common.ErrSessionExpired
	}

	if !o.order.Contains(step) {
		return nil, &common.ValidationError{Field: "step", Reason: "unknown step"}
	}

	if !o.order.HasReached(session.Progress, step) {
		return nil, &common.GateError{Step: string(step), Reason: "step not yet reachable"}
	}

	return session, nil
}

// HandleStep validates and persists one step submission and, when the
// submission completes the session's current step, advances the session.
func (o *Orchestrator) HandleStep(ctx context.Context, sessionID string, step steps.Step, data []byte) (*models.Session, *models.Record, error) {
	session, err := o.gate(ctx, sessionID, step)
	if err != nil {
		return nil, nil, err
	}

	if session.Terminated {
		return nil, nil, &common.GateError{Step: string(step), Reason: "session terminated"}
	}

	payload, err := models.DecodePayload(step, data)
	if err != nil {
		return nil, nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, nil, err
	}
	if err := applyBusinessRules(payload); err != nil {
		return nil, nil, err
	}

	recordRepo := o.repomanager.Records(o.db)

	rec, err := recordRepo.GetBySessionAndKind(ctx, sessionID, step)
	var priorKeys []string
	switch {
	case err == nil:
		priorKeys = models.FinalizedKeys(rec.Payload)
		rec.Payload = payload
	case errors.Is(err, common.ErrNotFound):
		rec = &models.Record{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Kind:      step,
			Payload:   payload,
		}
	default:
		return nil, nil, err
	}

	if err := o.finalizer.Run(ctx, rec, priorKeys, "sessions/"+sessionID); err != nil {
		return nil, nil, err
	}

	session.LinkRecord(step, rec.ID)

	// A failed drive test ends the pipeline: the result is kept on file but
	// the session never advances past it.
	if dt, ok := payload.(*models.DriveTestPayload); ok && !dt.Passed {
		if err := o.lifecycle.Terminate(ctx, session, "failed drive test"); err != nil {
			return nil, nil, err
		}
		return session, rec, nil
	}

	session.Progress = o.order.Advance(session.Progress, step)
	o.lifecycle.Touch(session)

	if err := o.lifecycle.Update(ctx, session); err != nil {
		return nil, nil, err
	}

	return session, rec, nil
}

// GetStep returns the stored record for a reachable step, with short-lived
// download URLs attached to its finalized file assets. Terminated sessions
// stay readable.
func (o *Orchestrator) GetStep(ctx context.Context, sessionID string, step steps.Step) (*models.Record, error) {
	if _, err := o.gate(ctx, sessionID, step); err != nil {
		return nil, err
	}

	rec, err := o.repomanager.Records(o.db).GetBySessionAndKind(ctx, sessionID, step)
	if err != nil {
		return nil, err
	}

	if carrier, ok := rec.Payload.(models.FileCarrier); ok {
		for _, ref := range carrier.FileRefs() {
			if ref.Asset.IsZero() || ref.Asset.IsTemp() {
				continue
			}
			url, err := o.store.PresignGetURL(ctx, ref.Asset.Key)
			if err != nil {
				return nil, err
			}
			ref.Asset.URL = url
		}
	}

	return rec, nil
}

// DeleteSession removes an application entirely: its stored objects, its
// records, and the session row, in that order. Object deletion failing
// aborts the call so the rows keep pointing at live objects.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := o.lifecycle.Get(ctx, sessionID); err != nil {
		return err
	}

	recs, err := o.repomanager.Records(o.db).ListBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	var keys []string
	for _, rec := range recs {
		keys = append(keys, models.FinalizedKeys(rec.Payload)...)
	}
	if len(keys) > 0 {
		if err := o.store.Delete(ctx, keys); err != nil {
			return err
		}
	}

	return dbx.WithTx(ctx, o.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := o.repomanager.Records(tx).DeleteBySession(ctx, sessionID); err != nil {
			return err
		}
		return o.repomanager.Sessions(tx).Delete(ctx, sessionID)
	})
}

// applyBusinessRules runs the step rules that go beyond payload shape.
func applyBusinessRules(payload models.StepPayload) error {
	switch p := payload.(type) {
	case *models.EmploymentHistoryPayload:
		return history.Validate(p.Entries)
	}
	return nil
}
