package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oldiberezkoo/0xLider/llm"
	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/utils"
)

// ErrRental is returned when the model classifies a listing as a rental
// rather than a sale.
var ErrRental = errors.New("services: listing is a rental")

// AuditLog receives one entry per model invocation.
type AuditLog interface {
	Append(entry models.AuditEntry) error
}

// Extractor turns listing text into an ExtractedListing with a language model.
// The model is untrusted: every answer is validated and repaired here.
type Extractor struct {
	model        llm.Model
	audit        AuditLog
	exchangeRate float64
	runID        string
	logger       *utils.Logger
	now          func() time.Time
}

// NewExtractor creates an Extractor. audit may be nil.
func NewExtractor(model llm.Model, audit AuditLog, exchangeRate float64, logger *utils.Logger) *Extractor {
	return &Extractor{
		model:        model,
		audit:        audit,
		exchangeRate: exchangeRate,
		logger:       logger,
		now:          time.Now,
	}
}

// SetRunID tags later audit entries with id.
func (e *Extractor) SetRunID(id string) { e.runID = id }

// Extract asks the model for the attributes of one listing. price is the
// source currency amount and is copied into the result unchanged, as is link.
// A rental answer yields ErrRental. A model failure is returned as is and
// never retried.
func (e *Extractor) Extract(ctx context.Context, text, link, price string) (*models.ExtractedListing, error) {
	prompt := BuildPrompt(text, link)
	e.logger.Debug("[extractor] Invoking model for %s", link)

	raw, err := e.model.Invoke(ctx, prompt)
	if err != nil {
		e.record(link, prompt, "", nil, text)
		return nil, fmt.Errorf("extractor: invoke model for %s: %w", link, err)
	}
	raw = strings.TrimSpace(raw)

	if raw == rentalSentinel {
		e.logger.Warn("[extractor] Model marked %s as a rental", link)
		e.record(link, prompt, raw, rentalSentinel, text)
		return nil, ErrRental
	}

	listing := e.parse(raw, link, price)
	listing.Link = link
	listing.Price = price
	e.derivePrices(listing)

	e.record(link, prompt, raw, listing, text)
	return listing, nil
}

// parse decodes the model answer, falling back to the outermost braces and
// finally to an all-null record.
func (e *Extractor) parse(raw, link, price string) *models.ExtractedListing {
	listing, err := decodeAnswer(raw)
	if err == nil {
		return listing
	}
	e.logger.Warn("[extractor] Invalid JSON from model for %s: %v, repairing", link, err)

	repaired := RepairJSON(raw)
	e.logger.Debug("[extractor] Repaired answer: %s", repaired)
	if listing, err := decodeAnswer(repaired); err == nil {
		return listing
	}
	e.logger.Error("[extractor] Could not repair model answer for %s", link)
	return models.EmptyListing(link, price)
}

// modelAnswer shadows the mandatory string fields so that a number or null
// the model puts there does not reject the whole answer. Both are overwritten
// by the caller anyway.
type modelAnswer struct {
	models.ExtractedListing
	Link  models.NullString `json:"ссылка"`
	Price models.NullString `json:"цена"`
}

func decodeAnswer(raw string) (*models.ExtractedListing, error) {
	var ans modelAnswer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return nil, err
	}
	return &ans.ExtractedListing, nil
}

// derivePrices fills the per-area and converted prices when both price and
// area are positive numbers, and clears them otherwise.
func (e *Extractor) derivePrices(l *models.ExtractedListing) {
	l.PricePerArea = models.NullString{}
	l.PriceConverted = models.NullString{}
	l.PricePerAreaConverted = models.NullString{}

	price, okPrice := ParsePositive(l.Price)
	if !okPrice || !l.Area.Valid {
		return
	}
	area, okArea := ParsePositive(l.Area.String)
	if !okArea {
		e.logger.Debug("[extractor] No usable area for %s: %q", l.Link, l.Area.String)
		return
	}

	converted := price * e.exchangeRate
	l.PricePerArea = models.Str(strconv.FormatFloat(price/area, 'f', 2, 64))
	l.PriceConverted = models.Str(strconv.FormatFloat(converted, 'f', 0, 64))
	l.PricePerAreaConverted = models.Str(strconv.FormatFloat(converted/area, 'f', 2, 64))
}

func (e *Extractor) record(link, prompt, raw string, final any, text string) {
	if e.audit == nil {
		return
	}
	entry := models.AuditEntry{
		Timestamp:     e.now().UTC(),
		RunID:         e.runID,
		Link:          link,
		Prompt:        prompt,
		RawResponse:   raw,
		FinalResponse: final,
		InputText:     text,
	}
	if err := e.audit.Append(entry); err != nil {
		e.logger.Warn("[extractor] Audit log write failed for %s: %v", link, err)
	}
}

// RepairJSON returns the text between the first '{' and the last '}' of s,
// or s trimmed when it holds no such pair.
func RepairJSON(s string) string {
	s = strings.TrimSpace(s)
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last > first {
		return s[first : last+1]
	}
	return s
}
