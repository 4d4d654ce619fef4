// Package olx fetches listing pages from olx.uz with a headless Chrome.
package olx

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/oldiberezkoo/0xLider/config"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper"
	"github.com/oldiberezkoo/0xLider/utils"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Images, media and fonts are never needed for text extraction.
var blockedResources = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.mp4", "*.webm", "*.mp3",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
}

// Browser is a running Chrome instance. It implements scraper.Session.
type Browser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *utils.Logger
}

var _ scraper.Session = (*Browser)(nil)

// Launch starts Chrome with the configured flags and waits until it is ready.
func Launch(cfg *config.Config, logger *utils.Logger) (*Browser, error) {
	chromeBin := cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[olx] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "ru-RU,ru"),
		chromedp.WindowSize(1366, 768),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// The first Run allocates the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("olx: launch browser: %w", err)
	}

	timeout := cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Browser{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		timeout: timeout,
		logger:  logger,
	}, nil
}

// NewPage opens a new tab with heavy resources blocked.
func (b *Browser) NewPage(ctx context.Context) (scraper.Page, error) {
	return b.newTab(ctx, b.timeout)
}

// WithTimeout returns a view of the same browser whose tabs use timeout per
// fetch. Closing either value shuts the shared browser down.
func (b *Browser) WithTimeout(timeout time.Duration) *Browser {
	if timeout <= 0 {
		return b
	}
	view := *b
	view.timeout = timeout
	return &view
}

func (b *Browser) newTab(ctx context.Context, timeout time.Duration) (*Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetBlockedURLS(blockedResources),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
			"Referer":         "https://www.olx.uz/",
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("olx: open tab: %w", err)
	}
	return &Tab{ctx: tabCtx, cancel: cancel, timeout: timeout}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.cancel()
	b.logger.Success("[olx] Browser closed")
	return nil
}

// Tab is one browser tab. It implements scraper.Page.
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

var _ scraper.Page = (*Tab)(nil)

// load navigates to pageURL and returns the response status and the rendered HTML.
func (t *Tab) load(ctx context.Context, pageURL string) (int, string, error) {
	runCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	resp, err := chromedp.RunResponse(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", fmt.Errorf("olx: navigate %s: %w", pageURL, err)
	}

	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	if isGone(status) {
		return status, "", nil
	}

	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return status, "", ctx.Err()
		}
		return status, "", fmt.Errorf("olx: read html %s: %w", pageURL, err)
	}
	return status, html, nil
}

// Fetch loads an ad page and extracts its text fields. Deleted ads come back
// with their status code and empty fields.
func (t *Tab) Fetch(ctx context.Context, pageURL string) (*models.PageContent, error) {
	status, html, err := t.load(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if html == "" {
		return &models.PageContent{URL: pageURL, StatusCode: status}, nil
	}
	content, err := ParseAd(pageURL, html)
	if err != nil {
		return nil, err
	}
	content.StatusCode = status
	return content, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	t.cancel()
	return nil
}

// Source walks the search results with a single tab. It implements
// scraper.ListingSource.
type Source struct {
	tab  *Tab
	base *url.URL
}

var _ scraper.ListingSource = (*Source)(nil)

// NewSource opens a tab for paging through the results under baseURL.
func NewSource(ctx context.Context, b *Browser, baseURL string) (*Source, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("olx: parse base url: %w", err)
	}
	tab, err := b.newTab(ctx, b.timeout)
	if err != nil {
		return nil, err
	}
	return &Source{tab: tab, base: base}, nil
}

// SearchPage loads result page n. Page 1 is the base URL itself.
func (s *Source) SearchPage(ctx context.Context, n int) (*models.SearchPage, error) {
	target := s.base.String()
	if n > 1 {
		target = PageURL(s.base, n)
	}
	status, html, err := s.tab.load(ctx, target)
	if err != nil {
		return nil, err
	}
	if html == "" {
		return nil, fmt.Errorf("olx: search page %d unavailable (status %d)", n, status)
	}
	page, err := ParseSearch(s.base, html)
	if err != nil {
		return nil, err
	}
	page.Number = n
	if page.Blocked {
		return page, scraper.ErrBlocked
	}
	return page, nil
}

// Close closes the underlying tab.
func (s *Source) Close() error {
	return s.tab.Close()
}

func isGone(status int) bool {
	return status == 403 || status == 404 || status == 410
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
