package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/oldiberezkoo/0xLider/config"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// EnrichSummary counts what one enrichment run did.
type EnrichSummary struct {
	Total     int
	Extracted int64
	Rentals   int64
	Leaked    int64
}

// Enricher is the third pipeline stage. It takes the links the filter marked
// ready for use, extracts their attributes and files each one as processed
// or leaked.
type Enricher struct {
	session     scraper.Session
	extractor   *Extractor
	cleaner     *Cleaner
	processed   *storage.JSONArrayFile[*models.ExtractedListing]
	leaked      *storage.LinkListFile
	reportPath  string
	retry       *utils.RetryConfig
	concurrency int
	rateLimitMs int
	logger      *utils.Logger
	newRunID    func() string
}

// NewEnricher wires an Enricher from cfg. The durable report is read from
// cfg.OutputFile under the output directory.
func NewEnricher(cfg *config.Config, session scraper.Session, extractor *Extractor,
	processed *storage.JSONArrayFile[*models.ExtractedListing], leaked *storage.LinkListFile,
	logger *utils.Logger) *Enricher {
	return &Enricher{
		session:     session,
		extractor:   extractor,
		cleaner:     NewCleaner(logger),
		processed:   processed,
		leaked:      leaked,
		reportPath:  cfg.Path(cfg.OutputFile),
		retry:       &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: cfg.RetryDelay, Logger: logger},
		concurrency: cfg.EnrichConcurrency,
		rateLimitMs: cfg.RateLimitMs,
		logger:      logger,
		newRunID:    uuid.NewString,
	}
}

// Run enriches every ready link that is in neither the processed nor the
// leaked file. Cancelling ctx stops new links from starting; links in flight
// are not filed.
func (e *Enricher) Run(ctx context.Context) (*EnrichSummary, error) {
	report, err := LoadReport(e.reportPath)
	if err != nil {
		return nil, fmt.Errorf("enricher: %w", err)
	}

	pending, err := e.pending(report.ReadyForUse)
	if err != nil {
		return nil, err
	}
	summary := &EnrichSummary{Total: len(pending)}
	if len(pending) == 0 {
		e.logger.Info("[enricher] Nothing to enrich")
		return summary, nil
	}

	runID := e.newRunID()
	e.extractor.SetRunID(runID)
	e.logger.Info("[enricher] Run %s: enriching %d of %d ready links with %d workers",
		runID, len(pending), len(report.ReadyForUse), max(e.concurrency, 1))

	pool := utils.NewWorkerPool(e.concurrency, e.rateLimitMs)
	for _, link := range pending {
		if err := pool.Submit(ctx, func() {
			e.process(ctx, link, summary)
		}); err != nil {
			break
		}
	}
	pool.Wait()

	e.logger.Success("[enricher] Done: %d extracted, %d rentals, %d leaked",
		atomic.LoadInt64(&summary.Extracted), atomic.LoadInt64(&summary.Rentals), atomic.LoadInt64(&summary.Leaked))
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("enricher: %w", err)
	}
	return summary, nil
}

func (e *Enricher) pending(ready []string) ([]string, error) {
	done := utils.NewURLSet()

	listings, err := e.processed.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("enricher: read %s: %w", e.processed.Path(), err)
	}
	for _, l := range listings {
		if l != nil {
			done.Add(l.Link)
		}
	}

	leaked, err := e.leaked.Read()
	if err != nil {
		return nil, fmt.Errorf("enricher: read %s: %w", e.leaked.Path(), err)
	}
	for _, l := range leaked {
		done.Add(l)
	}

	var out []string
	for _, l := range ready {
		if !done.Contains(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (e *Enricher) process(ctx context.Context, link string, summary *EnrichSummary) {
	if ctx.Err() != nil {
		return
	}

	content, err := e.fetch(ctx, link)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.leak(link, summary, "page failed: %v", err)
		return
	}
	e.cleaner.CleanPage(content)

	if !content.Available() {
		e.leak(link, summary, "listing is no longer available")
		return
	}
	if missing := missingFields(content); len(missing) > 0 {
		e.leak(link, summary, "missing %v", missing)
		return
	}

	price := e.cleaner.PriceDigits(content.PriceText)
	text := ListingText(content.Title, content.Description, content.Parameters, content.LocationText)

	listing, err := e.extractor.Extract(ctx, text, link, price)
	switch {
	case errors.Is(err, ErrRental):
		atomic.AddInt64(&summary.Rentals, 1)
		e.leak(link, summary, "rental listing")
		return
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		e.leak(link, summary, "extraction failed: %v", err)
		return
	}

	if err := e.processed.Append(listing); err != nil {
		e.logger.Error("[enricher] Could not save %s: %v", link, err)
		return
	}
	n := atomic.AddInt64(&summary.Extracted, 1)
	e.logger.Success("[enricher] Extracted %s (%d/%d)", link, n, summary.Total)
}

// fetch loads link in a tab of its own.
func (e *Enricher) fetch(ctx context.Context, link string) (*models.PageContent, error) {
	var content *models.PageContent
	err := e.retry.Do(ctx, "fetch "+link, func(int) error {
		page, err := e.session.NewPage(ctx)
		if err != nil {
			return err
		}
		defer page.Close()

		content, err = page.Fetch(ctx, link)
		return err
	})
	return content, err
}

func (e *Enricher) leak(link string, summary *EnrichSummary, format string, args ...any) {
	atomic.AddInt64(&summary.Leaked, 1)
	e.logger.Warn("[enricher] Leaked %s: %s", link, fmt.Sprintf(format, args...))
	if err := e.leaked.Add(link); err != nil {
		e.logger.Error("[enricher] Could not record leaked link %s: %v", link, err)
	}
}

// missingFields names the detail fields the extraction prompt needs that the
// page did not render.
func missingFields(p *models.PageContent) []string {
	var missing []string
	if p.Title == "" {
		missing = append(missing, "title")
	}
	if p.Description == "" {
		missing = append(missing, "description")
	}
	if len(p.Parameters) == 0 {
		missing = append(missing, "parameters")
	}
	if p.PriceText == "" {
		missing = append(missing, "price")
	}
	if p.LocationText == "" {
		missing = append(missing, "location")
	}
	return missing
}
