package services

import (
	"context"
	"fmt"
	"time"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// Finalizer writes the durable report from the state store and resets the
// store for the next run.
type Finalizer struct {
	store  storage.StateStore
	path   string
	logger *utils.Logger
	now    func() time.Time
}

// NewFinalizer creates a Finalizer writing to path.
func NewFinalizer(store storage.StateStore, path string, logger *utils.Logger) *Finalizer {
	return &Finalizer{store: store, path: path, logger: logger, now: time.Now}
}

// Finalize snapshots the store, writes the report and clears the store.
// The store is left untouched when the report cannot be written. Call it
// with a context that outlives cancellation of the run.
func (f *Finalizer) Finalize(ctx context.Context) (*models.Report, error) {
	report, err := f.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalizer: snapshot: %w", err)
	}
	normaliseReport(report, f.now)

	if err := storage.WriteJSON(f.path, report); err != nil {
		return report, fmt.Errorf("finalizer: %w", err)
	}
	f.logger.Success("[finalizer] Report saved to %s (%d links, %d ready for use)",
		f.path, len(report.AllLinks), len(report.ReadyForUse))

	if err := f.store.Clear(ctx); err != nil {
		return report, fmt.Errorf("finalizer: clear store: %w", err)
	}
	f.logger.Info("[finalizer] State store cleared")
	return report, nil
}

// FinalizePending finalizes only when the store holds links from an earlier
// interrupted run. It returns a nil report when there was nothing to write.
func (f *Finalizer) FinalizePending(ctx context.Context) (*models.Report, error) {
	current, err := f.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalizer: snapshot: %w", err)
	}
	if len(current.AllLinks) == 0 {
		return nil, nil
	}
	f.logger.Info("[finalizer] Writing %d links left in the state store", len(current.AllLinks))
	return f.Finalize(ctx)
}

// LoadReport reads a report written by Finalize.
func LoadReport(path string) (*models.Report, error) {
	var report models.Report
	if err := storage.ReadJSON(path, &report); err != nil {
		return nil, fmt.Errorf("load report %s: %w", path, err)
	}
	normaliseReport(&report, nil)
	return &report, nil
}

// normaliseReport replaces nil sets with empty ones so they encode as [].
// A zero timestamp is set from now when now is given.
func normaliseReport(r *models.Report, now func() time.Time) {
	for _, set := range []*[]string{
		&r.AllLinks, &r.ProcessedLinks, &r.UnavailableLinks,
		&r.KeywordMatchedLinks, &r.NonMatchedLinks, &r.ReadyForUse,
	} {
		if *set == nil {
			*set = []string{}
		}
	}
	if r.ProcessedObjects == nil {
		r.ProcessedObjects = []models.ClassificationRecord{}
	}
	for i := range r.ProcessedObjects {
		if r.ProcessedObjects[i].MatchedKeywords == nil {
			r.ProcessedObjects[i].MatchedKeywords = []string{}
		}
	}
	if r.LastUpdated.IsZero() && now != nil {
		r.LastUpdated = now().UTC()
	}
}
