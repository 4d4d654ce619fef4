package services

import (
	"context"
	"errors"
	"sync"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/scraper"
	"github.com/oldiberezkoo/0xLider/storage"
)

var (
	errFlaky     = errors.New("navigation timeout")
	errStoreDown = errors.New("connection reset by peer")
)

// fakeSite serves canned pages. failures[link] is the number of fetches of
// link that fail before it is served. Links in empty are fetched without
// error but yield no content.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]*models.PageContent
	failures map[string]int
	empty    map[string]bool
	fetches  map[string]int
	opened   int
	closed   int
	openErr  error
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:    make(map[string]*models.PageContent),
		failures: make(map[string]int),
		empty:    make(map[string]bool),
		fetches:  make(map[string]int),
	}
}

func (s *fakeSite) add(link, title, description string) {
	s.pages[link] = &models.PageContent{URL: link, StatusCode: 200, Title: title, Description: description}
}

func (s *fakeSite) NewPage(ctx context.Context) (scraper.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	return &fakePage{site: s}, nil
}

func (s *fakeSite) Close() error { return nil }

func (s *fakeSite) fetchCount(link string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[link]
}

type fakePage struct {
	site *fakeSite
}

func (p *fakePage) Fetch(ctx context.Context, link string) (*models.PageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := p.site
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches[link]++
	if s.failures[link] > 0 {
		s.failures[link]--
		return nil, errFlaky
	}
	if s.empty[link] {
		return nil, nil
	}
	page, ok := s.pages[link]
	if !ok {
		return &models.PageContent{URL: link, StatusCode: 404}, nil
	}
	cp := *page
	cp.Parameters = append([]string(nil), page.Parameters...)
	return &cp, nil
}

func (p *fakePage) Close() error {
	p.site.mu.Lock()
	p.site.closed++
	p.site.mu.Unlock()
	return nil
}

// linkRecorder collects links in memory.
type linkRecorder struct {
	mu    sync.Mutex
	links []string
}

func (r *linkRecorder) Add(link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l == link {
			return nil
		}
	}
	r.links = append(r.links, link)
	return nil
}

func (r *linkRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.links...)
}

// flakyStore is a MemoryStore whose first recordFailures classification
// writes and first countFailures counter updates fail.
type flakyStore struct {
	*storage.MemoryStore

	mu             sync.Mutex
	recordFailures int
	countFailures  int
	recordCalls    int
}

func newFlakyStore(recordFailures, countFailures int) *flakyStore {
	return &flakyStore{
		MemoryStore:    storage.NewMemoryStore(),
		recordFailures: recordFailures,
		countFailures:  countFailures,
	}
}

func (s *flakyStore) RecordClassification(ctx context.Context, rec models.ClassificationRecord) error {
	s.mu.Lock()
	s.recordCalls++
	fail := s.recordFailures > 0
	if fail {
		s.recordFailures--
	}
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.MemoryStore.RecordClassification(ctx, rec)
}

func (s *flakyStore) IncrementGlobalProcessed(ctx context.Context) (int64, error) {
	s.mu.Lock()
	fail := s.countFailures > 0
	if fail {
		s.countFailures--
	}
	s.mu.Unlock()
	if fail {
		return 0, errStoreDown
	}
	return s.MemoryStore.IncrementGlobalProcessed(ctx)
}
