// Package saga coordinates the durable record write with the external
// object store. The two systems share no transaction, so correctness comes
// from ordering and compensation:
//
//  1. shape-validate the payload (no writes yet)
//  2. phase 1: provisionally persist the record with its temp keys
//  3. phase 2: copy every temp field to its permanent key, concurrently,
//     leaving the staged originals in place; a partial failure deletes this
//     call's new permanent keys and restores the temp state
//  4. phase 3: persist the record with the permanent keys
//  5. phase 4: best-effort delete of the previously-finalized keys the
//     request superseded and of this call's staged temps; never fatal
//
// A committed record never references a deleted key, no permanent object is
// deleted while a committed record references it, and because staged
// objects survive until phase 4 a failed request can always be re-run:
// non-temp fields are left untouched and temp fields are re-copied from
// their originals.
package saga

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haulhq/driveronboard/internal/common"
	"github.com/haulhq/driveronboard/internal/logging"
	"github.com/haulhq/driveronboard/internal/server/models"
	"github.com/haulhq/driveronboard/internal/server/repositories/records"
	"github.com/haulhq/driveronboard/internal/server/storage"
)

type Finalizer struct {
	store   storage.ObjectStore
	records records.Repository
	logger  logging.Logger
}

func NewFinalizer(store storage.ObjectStore, records records.Repository, logger logging.Logger) *Finalizer {
	return &Finalizer{
		store:   store,
		records: records,
		logger:  logger.With("module", "finalizer"),
	}
}

// moved tracks one field finalized by the current call, with enough state
// to undo it.
type moved struct {
	ref  models.FileRef
	orig models.FileAsset
}

// Run executes the finalization protocol for rec. priorKeys are the
// finalized keys the committed record referenced before this request;
// whatever of them the new payload no longer references is garbage-collected
// after commit. destPrefix is the permanent namespace of the owning session,
// e.g. "sessions/<id>"; each field finalizes under its own sub-prefix.
func (f *Finalizer) Run(ctx context.Context, rec *models.Record, priorKeys []string, destPrefix string) error {
	if err := rec.Payload.Validate(); err != nil {
		return err
	}

	carrier, hasFiles := rec.Payload.(models.FileCarrier)
	if !hasFiles {
		return f.records.Save(ctx, rec)
	}

	// Phase 1: provisional write, temp keys in place. A crash after this
	// point keeps the submitted shape; re-running the request finalizes
	// the same stable temp keys.
	if err := f.records.Save(ctx, rec); err != nil {
		return err
	}

	// Phase 2: fan out the per-field moves, join, first error wins.
	var mu sync.Mutex
	var finalized []moved

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range carrier.FileRefs() {
		if ref.Asset.IsZero() || !ref.Asset.IsTemp() {
			// already finalized in a prior call, or absent
			continue
		}

		g.Go(func() error {
			asset, err := f.store.Move(gctx, ref.Asset.Key, destPrefix+"/"+ref.Field)
			if err != nil {
				return &common.StorageFinalizeError{Field: ref.Field, Err: err}
			}

			mu.Lock()
			finalized = append(finalized, moved{ref: ref, orig: *ref.Asset})
			mu.Unlock()

			*ref.Asset = *asset
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		f.compensate(ctx, finalized)
		return err
	}

	// Phase 3: commit the permanent keys.
	if err := rec.Payload.Validate(); err != nil {
		f.compensate(ctx, finalized)
		return err
	}
	if err := f.records.Save(ctx, rec); err != nil {
		f.compensate(ctx, finalized)
		return err
	}

	// Phase 4: the commit holds; the superseded originals and this call's
	// staged temps are now unreferenced. Deleting them can only fail towards
	// a storage-cost leak, never towards data loss, so failures are logged
	// and swallowed. The temps must outlive the commit: until this point a
	// failure falls back to them.
	garbage := supersededKeys(priorKeys, rec.Payload)
	for _, m := range finalized {
		garbage = append(garbage, m.orig.Key)
	}
	if len(garbage) > 0 {
		if err := f.store.Delete(ctx, garbage); err != nil {
			f.logger.Warn(ctx, "could not delete unreferenced objects",
				"record_id", rec.ID, "keys", garbage, "error", err)
		}
	}

	return nil
}

// compensate undoes this call's successful moves: the new permanent objects
// are deleted and the payload fields are restored to their temp assets, so
// the in-memory record matches the phase-1 row again.
func (f *Finalizer) compensate(ctx context.Context, finalized []moved) {
	if len(finalized) == 0 {
		return
	}

	keys := make([]string, 0, len(finalized))
	for _, m := range finalized {
		if !m.ref.Asset.IsTemp() {
			keys = append(keys, m.ref.Asset.Key)
		}
		*m.ref.Asset = m.orig
	}

	if err := f.store.Delete(ctx, keys); err != nil {
		f.logger.Warn(ctx, "compensating delete failed", "keys", keys, "error", err)
	}
}

func supersededKeys(priorKeys []string, payload models.StepPayload) []string {
	current := make(map[string]struct{})
	for _, k := range models.FinalizedKeys(payload) {
		current[k] = struct{}{}
	}

	var superseded []string
	for _, k := range priorKeys {
		if _, ok := current[k]; !ok {
			superseded = append(superseded, k)
		}
	}
	return superseded
}
