package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// PageContent holds the rendered text fields of a single listing page.
// StatusCode is zero when the browser did not report one.
type PageContent struct {
	URL          string
	StatusCode   int
	Title        string
	Description  string
	PriceText    string
	LocationText string
	Parameters   []string
	Inactive     bool
}

// Available reports whether the page can be classified at all.
// Deleted or expired ads answer 404/403/410, show the inactive banner,
// or render with neither a title nor a description.
func (p *PageContent) Available() bool {
	if p == nil || p.Inactive {
		return false
	}
	switch p.StatusCode {
	case 403, 404, 410:
		return false
	}
	return p.Title != "" || p.Description != ""
}

// SearchPage is one page of search results.
type SearchPage struct {
	Number  int
	MaxPage int
	Links   []string
	Blocked bool
}

// ClassificationRecord is the immutable outcome of classifying one link.
type ClassificationRecord struct {
	Link             string   `json:"link"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	IsAvailable      bool     `json:"isAvailable"`
	ContainsKeywords bool     `json:"containsKeywords"`
	MatchedKeywords  []string `json:"matchedKeywords"`
}

// UnavailableRecord builds the record stored for pages that could not be classified.
func UnavailableRecord(link string) ClassificationRecord {
	return ClassificationRecord{Link: link, MatchedKeywords: []string{}}
}

// Report is the durable point-in-time serialization of the link state store.
type Report struct {
	AllLinks            []string               `json:"allLinks"`
	ProcessedLinks      []string               `json:"processedLinks"`
	UnavailableLinks    []string               `json:"unavailableLinks"`
	KeywordMatchedLinks []string               `json:"keywordMatchedLinks"`
	NonMatchedLinks     []string               `json:"nonMatchedLinks"`
	ReadyForUse         []string               `json:"readyForUse"`
	ProcessedObjects    []ClassificationRecord `json:"processedObjects"`
	LastUpdated         time.Time              `json:"lastUpdated"`
}

// NullString is a nullable text value. The language model is free to answer
// with any JSON value for a field, so decoding keeps the textual form of
// strings, numbers and booleans, and the compact JSON of objects and arrays.
type NullString struct {
	String string
	Valid  bool
}

// Str returns a valid NullString.
func Str(s string) NullString { return NullString{String: s, Valid: true} }

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *NullString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = NullString{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Str(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*n = Str(strconv.FormatBool(b))
	case '{', '[':
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return err
		}
		*n = Str(compact.String())
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return err
		}
		*n = Str(num.String())
	}
	return nil
}

// ExtractedListing is the fixed attribute schema the extraction model fills in.
// JSON keys are the schema keys the prompt declares to the model.
type ExtractedListing struct {
	FloorCount      NullString `json:"этажность_дома"`
	Floor           NullString `json:"этаж"`
	BuildingType    NullString `json:"тип_строения"`
	Renovation      NullString `json:"ремонт"`
	Layout          NullString `json:"планировка"`
	RoomCount       NullString `json:"количество_комнат"`
	YearBuilt       NullString `json:"год_постройки"`
	Link            string     `json:"ссылка"`
	Location        NullString `json:"местоположение"`
	PublicationDate NullString `json:"дата_публикации"`
	Area            NullString `json:"площадь"`
	Price           string     `json:"цена"`

	PricePerArea          NullString `json:"цена_за_м2"`
	PriceConverted        NullString `json:"цена_сум"`
	PricePerAreaConverted NullString `json:"цена_за_м2_сум"`
}

// EmptyListing returns the all-null record used when the model answer cannot be parsed.
func EmptyListing(link, price string) *ExtractedListing {
	return &ExtractedListing{Link: link, Price: price}
}

// AuditEntry is one line of the extraction audit log.
// FinalResponse is either an *ExtractedListing or the rental sentinel string.
type AuditEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	RunID         string    `json:"runId,omitempty"`
	Link          string    `json:"link"`
	Prompt        string    `json:"prompt"`
	RawResponse   string    `json:"rawResponse"`
	FinalResponse any       `json:"finalResponse"`
	InputText     string    `json:"inputText"`
}

// InsightReport holds the computed analytics over the enriched dataset.
type InsightReport struct {
	TotalListings      int
	PricedListings     int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	AveragePricePerM2  float64
	MostExpensive      *ExtractedListing
	Cheapest           []*ExtractedListing
	ListingsByLocation map[string]int
	ListingsByRooms    map[string]int
}
