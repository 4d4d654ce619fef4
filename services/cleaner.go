package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/utils"
)

var (
	// priceRegexp captures a grouped numeric price such as "65 000" or "1,200.50"
	priceRegexp = regexp.MustCompile(`\d[\d\s\x{00a0},]*(?:\.\d+)?`)
	// leadingNumberRegexp captures the number a value starts with, e.g. "54,5 м²"
	leadingNumberRegexp = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)`)
)

// Cleaner normalises the text scraped from ad pages and the listings
// produced from them.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// CleanPage collapses whitespace in every text field of p in place.
func (c *Cleaner) CleanPage(p *models.PageContent) *models.PageContent {
	if p == nil {
		return nil
	}
	p.Title = normaliseText(p.Title)
	p.Description = normaliseText(p.Description)
	p.PriceText = normaliseText(p.PriceText)
	p.LocationText = normaliseText(p.LocationText)

	params := p.Parameters[:0]
	for _, param := range p.Parameters {
		if param = normaliseText(param); param != "" {
			params = append(params, param)
		}
	}
	p.Parameters = params
	return p
}

// Clean drops listings without a link and duplicates of an earlier link.
func (c *Cleaner) Clean(listings []*models.ExtractedListing) []*models.ExtractedListing {
	seen := make(map[string]struct{})
	result := make([]*models.ExtractedListing, 0, len(listings))

	for _, l := range listings {
		if l == nil {
			continue
		}
		link := strings.TrimSpace(l.Link)
		if link == "" {
			c.logger.Warn("[cleaner] Dropping listing without link")
			continue
		}
		if _, dup := seen[link]; dup {
			c.logger.Debug("[cleaner] Duplicate link skipped: %s", link)
			continue
		}
		seen[link] = struct{}{}

		l.Link = link
		l.Location = normaliseNull(l.Location)
		l.BuildingType = normaliseNull(l.BuildingType)
		l.Renovation = normaliseNull(l.Renovation)
		l.Layout = normaliseNull(l.Layout)
		result = append(result, l)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(listings), len(result), len(listings)-len(result))
	return result
}

// PriceDigits extracts the numeric price from display text.
// Examples:
//
//	"65 000 у.е." → "65000"
//	"$1,200.50"   → "1200.50"
//	"Договорная"  → ""
func (c *Cleaner) PriceDigits(raw string) string {
	match := priceRegexp.FindString(raw)
	if match == "" {
		c.logger.Debug("[cleaner] No price in %q", raw)
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' {
			return r
		}
		return -1
	}, match)
}

// ParsePositive reads the number raw starts with and reports whether it is a
// positive finite value. A decimal comma is accepted.
func ParsePositive(raw string) (float64, bool) {
	m := leadingNumberRegexp.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0, false
	}
	val, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) || val <= 0 {
		return 0, false
	}
	return val, true
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

func normaliseNull(n models.NullString) models.NullString {
	if !n.Valid {
		return n
	}
	n.String = normaliseText(n.String)
	return n
}
