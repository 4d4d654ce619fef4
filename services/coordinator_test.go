package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/oldiberezkoo/0xLider/config"
	"github.com/oldiberezkoo/0xLider/storage"
)

func testConfig(policy string) *config.Config {
	return &config.Config{
		Concurrency:     2,
		MaxRetries:      3,
		ExhaustedPolicy: policy,
	}
}

func newTestCoordinator(policy string, site *fakeSite) (*Coordinator, *storage.MemoryStore, *linkRecorder) {
	store := storage.NewMemoryStore()
	leaked := &linkRecorder{}
	classifier := NewClassifier([]string{"ипотека", "кредит"}, newTestLogger())
	return NewCoordinator(testConfig(policy), site, classifier, store, leaked, newTestLogger()), store, leaked
}

func TestCoordinatorRoutesOutcomes(t *testing.T) {
	site := newFakeSite()
	site.add("a", "Квартира", "Возможна ипотека")
	site.add("b", "Квартира", "Евроремонт")
	site.add("d", "Старое", "Снято")
	site.pages["d"].Inactive = true
	site.add("e", "", "")

	coord, store, _ := newTestCoordinator(config.PolicySkip, site)
	summary, err := coord.Run(context.Background(), []string{"a", "b", "c", "d", "e", "a"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 5 || summary.Completed != 5 || summary.Unavailable != 3 || summary.Matched != 1 {
		t.Errorf("summary = %+v", summary)
	}

	snap, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(snap.KeywordMatchedLinks, []string{"a"}) {
		t.Errorf("keywordMatchedLinks = %v", snap.KeywordMatchedLinks)
	}
	if !reflect.DeepEqual(snap.ReadyForUse, []string{"b"}) {
		t.Errorf("readyForUse = %v", snap.ReadyForUse)
	}
	if len(snap.UnavailableLinks) != 3 {
		t.Errorf("unavailableLinks = %v", snap.UnavailableLinks)
	}
	for _, rec := range snap.ProcessedObjects {
		if rec.Link == "a" && !reflect.DeepEqual(rec.MatchedKeywords, []string{"ипотека"}) {
			t.Errorf("matched keywords of a = %v", rec.MatchedKeywords)
		}
	}

	next, _ := store.IncrementGlobalProcessed(context.Background())
	if next != 6 {
		t.Errorf("global counter after run: got %d, want 5", next-1)
	}
}

func TestCoordinatorRetriesTransientFailures(t *testing.T) {
	site := newFakeSite()
	site.add("a", "Квартира", "Евроремонт")
	site.failures["a"] = 2

	coord, store, _ := newTestCoordinator(config.PolicySkip, site)
	if _, err := coord.Run(context.Background(), []string{"a"}, 1); err != nil {
		t.Fatal(err)
	}
	if got := site.fetchCount("a"); got != 3 {
		t.Errorf("fetches = %d; want 3", got)
	}
	ready, _ := store.Members(context.Background(), storage.SetReadyForUse)
	if !reflect.DeepEqual(ready, []string{"a"}) {
		t.Errorf("readyForUse = %v", ready)
	}
}

func TestCoordinatorExhaustedPolicies(t *testing.T) {
	tests := []struct {
		policy          string
		wantLeaked      []string
		wantUnavailable []string
	}{
		{config.PolicySkip, nil, nil},
		{config.PolicyLeak, []string{"a"}, nil},
		{config.PolicyUnavailable, nil, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			site := newFakeSite()
			site.add("a", "Квартира", "Евроремонт")
			site.add("b", "Квартира", "Евроремонт")
			site.failures["a"] = 10

			coord, store, leaked := newTestCoordinator(tt.policy, site)
			summary, err := coord.Run(context.Background(), []string{"a", "b"}, 1)
			if err != nil {
				t.Fatal(err)
			}
			if summary.Exhausted != 1 {
				t.Errorf("Exhausted = %d", summary.Exhausted)
			}
			if got := site.fetchCount("a"); got != 3 {
				t.Errorf("attempts = %d; want 3", got)
			}
			if got := leaked.list(); !reflect.DeepEqual(got, tt.wantLeaked) {
				t.Errorf("leaked = %v; want %v", got, tt.wantLeaked)
			}
			unavailable, _ := store.Members(context.Background(), storage.SetUnavailable)
			if len(unavailable) != len(tt.wantUnavailable) {
				t.Errorf("unavailable = %v; want %v", unavailable, tt.wantUnavailable)
			}
			ready, _ := store.Members(context.Background(), storage.SetReadyForUse)
			if !reflect.DeepEqual(ready, []string{"b"}) {
				t.Errorf("partition stopped after exhausted link: readyForUse = %v", ready)
			}
		})
	}
}

func TestCoordinatorRetriesStoreFailures(t *testing.T) {
	tests := []struct {
		name           string
		recordFailures int
		countFailures  int
		wantRecords    int
	}{
		{"record write fails once", 1, 0, 2},
		{"counter update fails once", 0, 1, 1},
		{"both fail once", 1, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			site := newFakeSite()
			site.add("a", "Квартира", "Евроремонт")

			store := newFlakyStore(tt.recordFailures, tt.countFailures)
			classifier := NewClassifier([]string{"ипотека"}, newTestLogger())
			coord := NewCoordinator(testConfig(config.PolicySkip), site, classifier, store, nil, newTestLogger())

			summary, err := coord.Run(ctx, []string{"a"}, 1)
			if err != nil {
				t.Fatal(err)
			}
			if summary.Completed != 1 || summary.Exhausted != 0 {
				t.Errorf("summary = %+v", summary)
			}
			if got := site.fetchCount("a"); got != 1 {
				t.Errorf("fetches = %d; want 1", got)
			}
			if store.recordCalls != tt.wantRecords {
				t.Errorf("record calls = %d; want %d", store.recordCalls, tt.wantRecords)
			}

			snap, err := store.Snapshot(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(snap.ReadyForUse, []string{"a"}) {
				t.Errorf("readyForUse = %v", snap.ReadyForUse)
			}
			if len(snap.ProcessedObjects) != 1 {
				t.Errorf("processedObjects = %v; want exactly one record", snap.ProcessedObjects)
			}
			next, _ := store.IncrementGlobalProcessed(ctx)
			if next != 2 {
				t.Errorf("counter = %d; want 1", next-1)
			}
		})
	}
}

func TestCoordinatorStoreFailureExhaustsLink(t *testing.T) {
	ctx := context.Background()
	site := newFakeSite()
	site.add("a", "Квартира", "Евроремонт")
	site.add("b", "Квартира", "Евроремонт")

	store := newFlakyStore(3, 0)
	leaked := &linkRecorder{}
	classifier := NewClassifier([]string{"ипотека"}, newTestLogger())
	coord := NewCoordinator(testConfig(config.PolicyLeak), site, classifier, store, leaked, newTestLogger())

	summary, err := coord.Run(ctx, []string{"a", "b"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Exhausted != 1 || summary.Completed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if got := leaked.list(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("leaked = %v", got)
	}
	ready, _ := store.Members(ctx, storage.SetReadyForUse)
	if !reflect.DeepEqual(ready, []string{"b"}) {
		t.Errorf("readyForUse = %v", ready)
	}
}

func TestCoordinatorEmptyPageIsRetried(t *testing.T) {
	site := newFakeSite()
	site.empty["a"] = true
	site.add("b", "Квартира", "Евроремонт")

	coord, store, _ := newTestCoordinator(config.PolicyUnavailable, site)
	summary, err := coord.Run(context.Background(), []string{"a", "b"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := site.fetchCount("a"); got != 3 {
		t.Errorf("fetches = %d; want 3", got)
	}
	if summary.Exhausted != 1 || summary.Completed != 2 {
		t.Errorf("summary = %+v", summary)
	}
	unavailable, _ := store.Members(context.Background(), storage.SetUnavailable)
	if !reflect.DeepEqual(unavailable, []string{"a"}) {
		t.Errorf("unavailable = %v", unavailable)
	}
}

func TestCoordinatorPartitionsOnePagePerWorker(t *testing.T) {
	site := newFakeSite()
	var links []string
	for i := 0; i < 12; i++ {
		link := fmt.Sprintf("https://www.olx.uz/d/%d.html", i)
		site.add(link, "Квартира", "Описание")
		links = append(links, link)
	}

	coord, store, _ := newTestCoordinator(config.PolicySkip, site)
	summary, err := coord.Run(context.Background(), links, 3)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Completed != 12 {
		t.Errorf("Completed = %d", summary.Completed)
	}
	if site.opened != 3 || site.closed != 3 {
		t.Errorf("pages opened/closed = %d/%d; want 3/3", site.opened, site.closed)
	}
	next, _ := store.IncrementGlobalProcessed(context.Background())
	if next != 13 {
		t.Errorf("counter = %d; want 12", next-1)
	}
}

func TestCoordinatorStopsOnCancel(t *testing.T) {
	site := newFakeSite()
	site.add("a", "Квартира", "Описание")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coord, store, _ := newTestCoordinator(config.PolicyLeak, site)
	_, err := coord.Run(ctx, []string{"a"}, 1)
	if !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	snap, _ := store.Snapshot(context.Background())
	if len(snap.ProcessedObjects) != 0 {
		t.Errorf("cancelled run recorded %v", snap.ProcessedObjects)
	}
}

func TestCoordinatorPageOpenFailure(t *testing.T) {
	site := newFakeSite()
	site.openErr = errors.New("tab crashed")

	coord, _, _ := newTestCoordinator(config.PolicySkip, site)
	if _, err := coord.Run(context.Background(), []string{"a"}, 1); err == nil {
		t.Fatal("expected error when no page can be opened")
	}
}

func TestCoordinatorEmptyInput(t *testing.T) {
	coord, _, _ := newTestCoordinator(config.PolicySkip, newFakeSite())
	summary, err := coord.Run(context.Background(), nil, 2)
	if err != nil || summary.Total != 0 {
		t.Errorf("Run(nil) = %+v, %v", summary, err)
	}
}
