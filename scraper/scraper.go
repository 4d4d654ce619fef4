// Package scraper declares the page fetching capabilities the pipeline
// consumes. Concrete browsers live in sub-packages.
package scraper

import (
	"context"
	"errors"

	"github.com/oldiberezkoo/0xLider/models"
)

// ErrBlocked is returned when the site answers with a captcha or block page.
var ErrBlocked = errors.New("scraper: captcha or IP block detected")

// Page is a single fetch channel, typically one browser tab. A Page is not
// safe for concurrent use; every worker opens its own.
type Page interface {
	Fetch(ctx context.Context, url string) (*models.PageContent, error)
	Close() error
}

// Session owns the browser process and hands out independent pages.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// ListingSource walks the paginated search results of the site.
type ListingSource interface {
	// SearchPage loads result page n (1-based) and returns the listing links on it.
	SearchPage(ctx context.Context, n int) (*models.SearchPage, error)
	Close() error
}
