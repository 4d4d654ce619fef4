package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// FilterStage is the second pipeline stage: classify every collected link
// that has no verdict yet, then finalize.
type FilterStage struct {
	links       *storage.LinkListFile
	store       storage.StateStore
	coordinator *Coordinator
	finalizer   *Finalizer
	reportPath  string
	incremental bool
	concurrency int
	logger      *utils.Logger
}

// NewFilterStage wires the stage. reportPath is the previous report used to
// resume when incremental is set.
func NewFilterStage(links *storage.LinkListFile, store storage.StateStore, coordinator *Coordinator,
	finalizer *Finalizer, reportPath string, incremental bool, concurrency int, logger *utils.Logger) *FilterStage {
	return &FilterStage{
		links:       links,
		store:       store,
		coordinator: coordinator,
		finalizer:   finalizer,
		reportPath:  reportPath,
		incremental: incremental,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run classifies pending links. The report is finalized even when the run
// fails or ctx is cancelled, as long as the store was prepared.
func (f *FilterStage) Run(ctx context.Context) (report *models.Report, err error) {
	links, err := f.links.Read()
	if err != nil {
		return nil, fmt.Errorf("filter: read links: %w", err)
	}
	f.logger.Info("[filter] Loaded %d links from %s", len(links), f.links.Path())

	if err := f.prepare(ctx); err != nil {
		return nil, err
	}

	defer func() {
		final, ferr := f.finalizer.Finalize(context.WithoutCancel(ctx))
		if ferr != nil {
			f.logger.Error("[filter] Finalization failed: %v", ferr)
			err = errors.Join(err, ferr)
		}
		report = final
	}()

	if err := f.store.AddDiscovered(ctx, links...); err != nil {
		f.logger.Error("[filter] Could not register discovered links: %v", err)
	}

	pending, err := f.pending(ctx, links)
	if err != nil {
		return nil, err
	}
	f.logger.Info("[filter] %d links left to classify", len(pending))

	if _, err := f.coordinator.Run(ctx, pending, f.concurrency); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return nil, nil
}

// prepare clears the store for a full run. An incremental run keeps what a
// persistent store already holds, or replays the previous report into an
// empty one.
func (f *FilterStage) prepare(ctx context.Context) error {
	if !f.incremental {
		if err := f.store.Clear(ctx); err != nil {
			return fmt.Errorf("filter: clear store: %w", err)
		}
		return nil
	}

	current, err := f.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("filter: inspect store: %w", err)
	}
	if len(current.AllLinks) > 0 {
		f.logger.Info("[filter] Resuming from %d links already in the state store", len(current.AllLinks))
		return nil
	}

	previous, err := LoadReport(f.reportPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		f.logger.Warn("[filter] Ignoring unreadable previous report: %v", err)
		return nil
	}

	if err := f.store.AddDiscovered(ctx, previous.AllLinks...); err != nil {
		return fmt.Errorf("filter: seed store: %w", err)
	}
	for _, rec := range previous.ProcessedObjects {
		if err := f.store.RecordClassification(ctx, rec); err != nil {
			return fmt.Errorf("filter: seed store: %w", err)
		}
	}
	f.logger.Info("[filter] Seeded state store with %d records from %s", len(previous.ProcessedObjects), f.reportPath)
	return nil
}

// pending returns links that are neither classified nor unavailable.
func (f *FilterStage) pending(ctx context.Context, links []string) ([]string, error) {
	done := utils.NewURLSet()
	for _, set := range []storage.SetName{storage.SetProcessed, storage.SetUnavailable} {
		members, err := f.store.Members(ctx, set)
		if err != nil {
			return nil, fmt.Errorf("filter: read %s: %w", set, err)
		}
		for _, m := range members {
			done.Add(m)
		}
	}

	var out []string
	for _, l := range links {
		if !done.Contains(l) {
			out = append(out, l)
		}
	}
	return out, nil
}
