package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// saveEvery is how many new links are collected between intermediate saves.
const saveEvery = 3

// Collector walks the search result pages and merges the listing links it
// finds into the link file.
type Collector struct {
	source      scraper.ListingSource
	links       *storage.LinkListFile
	maxPages    int
	retry       *utils.RetryConfig
	rateLimitMs int
	logger      *utils.Logger
}

// NewCollector creates a Collector. Each page load is attempted up to
// pageRetries times.
func NewCollector(source scraper.ListingSource, links *storage.LinkListFile, maxPages, pageRetries int,
	retryDelay time.Duration, rateLimitMs int, logger *utils.Logger) *Collector {
	return &Collector{
		source:   source,
		links:    links,
		maxPages: maxPages,
		retry: &utils.RetryConfig{
			MaxAttempts: pageRetries,
			BaseDelay:   retryDelay,
			Logger:      logger,
		},
		rateLimitMs: rateLimitMs,
		logger:      logger,
	}
}

// Run collects links until the last page, a block page or a navigation
// failure. Links found so far are saved in every case. It returns the number
// of links that were new to the link file.
func (c *Collector) Run(ctx context.Context) (added int, err error) {
	seen := utils.NewURLSet()
	saved := 0

	flush := func() {
		if seen.Size() == saved {
			return
		}
		n, ferr := c.links.Merge(seen.Items())
		if ferr != nil {
			c.logger.Error("[collector] Saving links failed: %v", ferr)
			err = errors.Join(err, ferr)
			return
		}
		added += n
		saved = seen.Size()
		c.logger.Info("[collector] Saved %d links (%d new)", saved, n)
	}
	defer flush()

	first, blocked, err := c.load(ctx, 1)
	if err != nil {
		return 0, err
	}
	if blocked {
		c.logger.Error("[collector] Possible CAPTCHA or IP block detected on the first page")
		return 0, scraper.ErrBlocked
	}

	last := first.MaxPage
	if c.maxPages > 0 && last > c.maxPages {
		last = c.maxPages
	}
	c.logger.Info("[collector] Found %d pages, walking %d", first.MaxPage, last)

	limiter := utils.NewLimiter(c.rateLimitMs)
	page := first
	for n := 1; n <= last; n++ {
		if n > 1 {
			if err := limiter.Wait(ctx); err != nil {
				return added, err
			}
			page, blocked, err = c.load(ctx, n)
			if err != nil {
				c.logger.Error("[collector] Navigation to page %d failed, ending collection: %v", n, err)
				return added, err
			}
			if blocked {
				c.logger.Error("[collector] Possible CAPTCHA or IP block detected on page %d", n)
				return added, scraper.ErrBlocked
			}
		}

		fresh := 0
		for _, link := range page.Links {
			if seen.Add(link) {
				fresh++
			}
		}
		if len(page.Links) == 0 {
			c.logger.Warn("[collector] No listings found on page %d", n)
		} else {
			c.logger.Info("[collector] Page %d/%d: %d listings, %d unseen", n, last, len(page.Links), fresh)
		}

		if seen.Size()-saved >= saveEvery {
			flush()
		}
	}

	c.logger.Success("[collector] Collection complete: %d links", seen.Size())
	return added, nil
}

// load fetches page n with retries. A block page is reported through blocked
// and is not retried.
func (c *Collector) load(ctx context.Context, n int) (*models.SearchPage, bool, error) {
	var (
		page    *models.SearchPage
		blocked bool
	)
	err := c.retry.Do(ctx, fmt.Sprintf("search page %d", n), func(int) error {
		p, err := c.source.SearchPage(ctx, n)
		if errors.Is(err, scraper.ErrBlocked) {
			blocked = true
			return nil
		}
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, blocked, err
}
