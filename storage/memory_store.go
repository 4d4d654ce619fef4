package storage

import (
	"context"
	"sync"
	"time"

	"github.com/oldiberezkoo/0xLider/models"
)

// orderedSet keeps insertion order so reports are stable between runs.
type orderedSet struct {
	index map[string]int
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]int)}
}

func (s *orderedSet) add(item string) {
	if _, ok := s.index[item]; ok {
		return
	}
	s.index[item] = len(s.items)
	s.items = append(s.items, item)
}

func (s *orderedSet) remove(item string) {
	pos, ok := s.index[item]
	if !ok {
		return
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, item)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i]] = i
	}
}

func (s *orderedSet) list() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// MemoryStore is a StateStore held in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	sets        map[SetName]*orderedSet
	objects     []models.ClassificationRecord
	lastUpdated time.Time
	processed   int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	m.reset()
	return m
}

func (m *MemoryStore) reset() {
	m.sets = make(map[SetName]*orderedSet, len(AllSets))
	for _, name := range AllSets {
		m.sets[name] = newOrderedSet()
	}
	m.objects = nil
	m.lastUpdated = time.Time{}
	m.processed = 0
}

func (m *MemoryStore) AddDiscovered(_ context.Context, links ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		m.sets[SetAll].add(l)
	}
	return nil
}

func (m *MemoryStore) RecordClassification(_ context.Context, rec models.ClassificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects = append(m.objects, cloneRecord(rec))
	m.sets[SetAll].add(rec.Link)
	for _, s := range staleSets(rec) {
		m.sets[s].remove(rec.Link)
	}
	for _, s := range terminalSets(rec) {
		m.sets[s].add(rec.Link)
	}
	m.lastUpdated = time.Now().UTC()
	return nil
}

func (m *MemoryStore) IncrementGlobalProcessed(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
	return m.processed, nil
}

func (m *MemoryStore) ResetGlobalProcessed(context.Context) error {
	m.mu.Lock()
	m.processed = 0
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Members(_ context.Context, set SetName) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		return nil, ErrUnknownSet
	}
	return s.list(), nil
}

func (m *MemoryStore) Snapshot(context.Context) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	objects := make([]models.ClassificationRecord, len(m.objects))
	for i, o := range m.objects {
		objects[i] = cloneRecord(o)
	}
	return &models.Report{
		AllLinks:            m.sets[SetAll].list(),
		ProcessedLinks:      m.sets[SetProcessed].list(),
		UnavailableLinks:    m.sets[SetUnavailable].list(),
		KeywordMatchedLinks: m.sets[SetKeywordMatched].list(),
		NonMatchedLinks:     m.sets[SetNonMatched].list(),
		ReadyForUse:         m.sets[SetReadyForUse].list(),
		ProcessedObjects:    objects,
		LastUpdated:         m.lastUpdated,
	}, nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.reset()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneRecord(rec models.ClassificationRecord) models.ClassificationRecord {
	matched := make([]string, len(rec.MatchedKeywords))
	copy(matched, rec.MatchedKeywords)
	rec.MatchedKeywords = matched
	return rec
}
