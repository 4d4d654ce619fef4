package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oldiberezkoo/0xLider/config"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// RunSummary counts what one classification run did.
type RunSummary struct {
	Total       int
	Completed   int64
	Unavailable int64
	Matched     int64
	Exhausted   int64
}

// Coordinator classifies links with several concurrent browser pages and
// routes every outcome into the state store.
type Coordinator struct {
	session     scraper.Session
	classifier  *Classifier
	store       storage.StateStore
	leaked      storage.LinkRecorder
	policy      string
	maxRetries  int
	retryDelay  time.Duration
	rateLimitMs int
	logger      *utils.Logger
}

// NewCoordinator wires a Coordinator from cfg. leaked is only used by the
// leak policy and may be nil otherwise.
func NewCoordinator(cfg *config.Config, session scraper.Session, classifier *Classifier,
	store storage.StateStore, leaked storage.LinkRecorder, logger *utils.Logger) *Coordinator {
	return &Coordinator{
		session:     session,
		classifier:  classifier,
		store:       store,
		leaked:      leaked,
		policy:      cfg.ExhaustedPolicy,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		rateLimitMs: cfg.RateLimitMs,
		logger:      logger,
	}
}

// Run splits links into concurrency contiguous partitions and classifies each
// partition on its own page. It resets the global counter first and returns
// when every partition is done or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, links []string, concurrency int) (*RunSummary, error) {
	links = utils.NewURLSet(links...).Items()
	summary := &RunSummary{Total: len(links)}
	if len(links) == 0 {
		c.logger.Info("[coordinator] Nothing to classify")
		return summary, nil
	}

	if err := c.store.ResetGlobalProcessed(ctx); err != nil {
		return summary, fmt.Errorf("coordinator: reset counter: %w", err)
	}

	parts := utils.Partition(links, concurrency)
	c.logger.Info("[coordinator] Classifying %d links with %d workers", len(links), len(parts))

	var g errgroup.Group
	for i, part := range parts {
		g.Go(func() error {
			return c.runPartition(ctx, i+1, part, summary)
		})
	}
	err := g.Wait()

	c.logger.Info("[coordinator] Done: %d classified, %d unavailable, %d matched, %d exhausted",
		atomic.LoadInt64(&summary.Completed), atomic.LoadInt64(&summary.Unavailable),
		atomic.LoadInt64(&summary.Matched), atomic.LoadInt64(&summary.Exhausted))
	return summary, err
}

func (c *Coordinator) runPartition(ctx context.Context, worker int, links []string, summary *RunSummary) error {
	page, err := c.session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: worker %d: open page: %w", worker, err)
	}
	defer page.Close()

	limiter := utils.NewLimiter(c.rateLimitMs)
	retry := &utils.RetryConfig{MaxAttempts: c.maxRetries, BaseDelay: c.retryDelay, Logger: c.logger}

	for _, link := range links {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		var out outcome
		err := retry.Do(ctx, "classify "+link, func(int) error {
			if out.rec == nil {
				rec, err := c.classify(ctx, page, link)
				if err != nil {
					return err
				}
				out.rec = &rec
			}
			return c.persist(ctx, &out)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if out.recorded {
				c.logger.Error("[coordinator] Counter update failed for %s: %v", link, err)
				c.tally(worker, *out.rec, -1, summary)
				continue
			}
			c.exhausted(ctx, worker, link, err, retry, summary)
			continue
		}

		c.tally(worker, *out.rec, out.processed, summary)
	}
	return nil
}

// outcome tracks how far one link got, so a retry resumes after the last
// step that succeeded instead of fetching or recording it twice.
type outcome struct {
	rec       *models.ClassificationRecord
	recorded  bool
	counted   bool
	processed int64
}

// classify fetches link and builds its record. Unavailable pages are not
// classified.
func (c *Coordinator) classify(ctx context.Context, page scraper.Page, link string) (models.ClassificationRecord, error) {
	content, err := page.Fetch(ctx, link)
	if err != nil {
		return models.ClassificationRecord{}, err
	}
	if content == nil {
		return models.ClassificationRecord{}, fmt.Errorf("fetch %s: empty page", link)
	}
	if !content.Available() {
		c.logger.Info("[coordinator] Unavailable (status %d): %s", content.StatusCode, link)
		return models.UnavailableRecord(link), nil
	}

	verdict := c.classifier.Classify(strings.TrimSpace(content.Title + " " + content.Description))
	return models.ClassificationRecord{
		Link:             link,
		Title:            content.Title,
		Description:      content.Description,
		IsAvailable:      true,
		ContainsKeywords: verdict.Contains,
		MatchedKeywords:  verdict.Matches,
	}, nil
}

// persist records out.rec and advances the global counter, skipping the
// steps an earlier attempt already finished.
func (c *Coordinator) persist(ctx context.Context, out *outcome) error {
	if !out.recorded {
		if err := c.store.RecordClassification(ctx, *out.rec); err != nil {
			return fmt.Errorf("record %s: %w", out.rec.Link, err)
		}
		out.recorded = true
	}
	if !out.counted {
		n, err := c.store.IncrementGlobalProcessed(ctx)
		if err != nil {
			return fmt.Errorf("count %s: %w", out.rec.Link, err)
		}
		out.processed = n
		out.counted = true
	}
	return nil
}

// tally updates the run summary for a recorded link and logs progress.
// processed is the global counter value, or negative when it is unknown.
func (c *Coordinator) tally(worker int, rec models.ClassificationRecord, processed int64, summary *RunSummary) {
	switch {
	case !rec.IsAvailable:
		atomic.AddInt64(&summary.Unavailable, 1)
	case rec.ContainsKeywords:
		atomic.AddInt64(&summary.Matched, 1)
		c.logger.Info("[coordinator] Keywords found in %s: %v", rec.Link, rec.MatchedKeywords)
	}
	atomic.AddInt64(&summary.Completed, 1)

	if processed < 0 {
		return
	}
	total := int64(summary.Total)
	c.logger.Info("[worker %d] Progress: %.1f%% | processed %d/%d | remaining %d",
		worker, float64(processed)/float64(total)*100, processed, total, total-processed)
}

// exhausted applies the configured policy to a link that failed every attempt.
func (c *Coordinator) exhausted(ctx context.Context, worker int, link string, cause error,
	retry *utils.RetryConfig, summary *RunSummary) {
	atomic.AddInt64(&summary.Exhausted, 1)

	switch c.policy {
	case config.PolicyLeak:
		c.logger.Error("[coordinator] Giving up on %s, adding to leaked list: %v", link, cause)
		if c.leaked == nil {
			return
		}
		if err := c.leaked.Add(link); err != nil {
			c.logger.Error("[coordinator] Leaked list update failed for %s: %v", link, err)
		}
	case config.PolicyUnavailable:
		c.logger.Error("[coordinator] Giving up on %s, recording as unavailable: %v", link, cause)
		rec := models.UnavailableRecord(link)
		out := outcome{rec: &rec}
		if err := retry.Do(ctx, "record "+link, func(int) error { return c.persist(ctx, &out) }); err != nil {
			c.logger.Error("[coordinator] Store update failed for %s: %v", link, err)
			if !out.recorded {
				return
			}
			out.processed = -1
		}
		c.tally(worker, rec, out.processed, summary)
	default:
		c.logger.Error("[coordinator] Giving up on %s, skipped for this run: %v", link, cause)
	}
}

// IsCancelled reports whether err comes from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
