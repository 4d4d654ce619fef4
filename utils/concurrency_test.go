package utils

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestURLSetNoDuplicates(t *testing.T) {
	s := NewURLSet()

	added := s.Add("https://example.com/1")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("https://example.com/1")
	if added {
		t.Error("second Add of same URL should return false")
	}

	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestURLSetKeepsInsertionOrder(t *testing.T) {
	s := NewURLSet("a", "b", "a", "c")

	got := s.Items()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Items: got %v, want %v", got, want)
	}
	if !s.Contains("b") || s.Contains("d") {
		t.Error("Contains reported wrong membership")
	}
}

func TestURLSetConcurrency(t *testing.T) {
	s := NewURLSet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		url := "https://example.com/same"
		_ = pool.Submit(context.Background(), func() {
			if s.Add(url) {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var (
		mu         sync.Mutex
		timestamps []time.Time
	)

	for i := 0; i < 3; i++ {
		_ = pool.Submit(context.Background(), func() {
			mu.Lock()
			timestamps = append(timestamps, time.Now())
			mu.Unlock()
		})
	}
	pool.Wait()

	if len(timestamps) != 3 {
		t.Fatalf("jobs run: got %d, want 3", len(timestamps))
	}
	// small tolerance for the gap between the limiter releasing and the job reading the clock
	min := time.Duration(rateLimitMs)*time.Millisecond - 10*time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestWorkerPoolStopsWaitingOnCancel(t *testing.T) {
	pool := NewWorkerPool(2, int(time.Hour/time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	var ran int64
	job := func() { atomic.AddInt64(&ran, 1) }
	for i := 0; i < 2; i++ {
		if err := pool.Submit(ctx, job); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	time.AfterFunc(20*time.Millisecond, cancel)
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked on the rate limiter after cancellation")
	}

	if got := atomic.LoadInt64(&ran); got != 1 {
		t.Errorf("jobs run: got %d, want 1", got)
	}
}

func TestWorkerPoolSubmitAfterCancel(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the only slot is taken, so Submit must observe the cancelled context
	release := make(chan struct{})
	_ = pool.Submit(context.Background(), func() { <-release })

	ran := false
	err := pool.Submit(ctx, func() { ran = true })
	close(release)
	pool.Wait()

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit: got %v, want context.Canceled", err)
	}
	if ran {
		t.Error("job ran after cancellation")
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		n     int
		want  [][]int
	}{
		{"even split", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"odd split rounds up first", []int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2, 3}, {4, 5}}},
		{"more workers than items", []int{1, 2}, 5, [][]int{{1}, {2}}},
		{"single worker", []int{1, 2, 3}, 1, [][]int{{1, 2, 3}}},
		{"zero workers treated as one", []int{1, 2}, 0, [][]int{{1, 2}}},
		{"empty input", nil, 3, nil},
	}

	for _, tt := range tests {
		got := Partition(tt.items, tt.n)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: Partition(%v, %d) = %v; want %v", tt.name, tt.items, tt.n, got, tt.want)
		}
	}
}
