package storage

import (
	"context"

	"github.com/oldiberezkoo/0xLider/models"
)

// SetName identifies one of the link sets tracked by a StateStore.
type SetName string

const (
	SetAll            SetName = "allLinks"
	SetProcessed      SetName = "processedLinks"
	SetUnavailable    SetName = "unavailableLinks"
	SetKeywordMatched SetName = "keywordMatchedLinks"
	SetNonMatched     SetName = "nonMatchedLinks"
	SetReadyForUse    SetName = "readyForUse"
)

// AllSets lists every set in report order.
var AllSets = []SetName{SetAll, SetProcessed, SetUnavailable, SetKeywordMatched, SetNonMatched, SetReadyForUse}

// StateStore is the ledger of which links are in which stage during a run.
// Implementations must be safe for concurrent use; set additions are idempotent.
type StateStore interface {
	// AddDiscovered adds links to the allLinks set.
	AddDiscovered(ctx context.Context, links ...string) error
	// RecordClassification appends rec to the processed log and moves its link
	// into exactly one terminal set, plus readyForUse when it did not match.
	RecordClassification(ctx context.Context, rec models.ClassificationRecord) error
	// IncrementGlobalProcessed atomically adds one to the run counter and returns the new value.
	IncrementGlobalProcessed(ctx context.Context) (int64, error)
	// ResetGlobalProcessed sets the run counter back to zero.
	ResetGlobalProcessed(ctx context.Context) error
	Members(ctx context.Context, set SetName) ([]string, error)
	// Snapshot returns a consistent copy of every set and the processed log.
	Snapshot(ctx context.Context) (*models.Report, error)
	Clear(ctx context.Context) error
	Close() error
}

// terminalSets returns the sets a record belongs to after classification.
func terminalSets(rec models.ClassificationRecord) []SetName {
	switch {
	case !rec.IsAvailable:
		return []SetName{SetUnavailable}
	case rec.ContainsKeywords:
		return []SetName{SetProcessed, SetKeywordMatched}
	default:
		return []SetName{SetProcessed, SetNonMatched, SetReadyForUse}
	}
}

// staleSets returns the sets a link must leave when rec is recorded, so a
// reclassified link never sits in two terminal sets at once.
func staleSets(rec models.ClassificationRecord) []SetName {
	keep := make(map[SetName]bool)
	for _, s := range terminalSets(rec) {
		keep[s] = true
	}
	var stale []SetName
	for _, s := range []SetName{SetProcessed, SetUnavailable, SetKeywordMatched, SetNonMatched, SetReadyForUse} {
		if !keep[s] {
			stale = append(stale, s)
		}
	}
	return stale
}

// LinkRecorder persists single links, e.g. the leaked list.
type LinkRecorder interface {
	Add(link string) error
}
