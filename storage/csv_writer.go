package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oldiberezkoo/0xLider/models"
)

var csvHeader = []string{
	"link", "price", "area", "price_per_m2", "price_converted", "price_per_m2_converted",
	"rooms", "floor", "floor_count", "building_type", "renovation", "layout",
	"year_built", "location", "published",
}

// CSVWriter writes enriched listings to a CSV file as a flat table.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteListings appends one row per listing. Null fields become empty cells.
func (c *CSVWriter) WriteListings(listings []*models.ExtractedListing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		if l == nil {
			continue
		}
		row := []string{
			l.Link,
			l.Price,
			l.Area.String,
			l.PricePerArea.String,
			l.PriceConverted.String,
			l.PricePerAreaConverted.String,
			l.RoomCount.String,
			l.Floor.String,
			l.FloorCount.String,
			l.BuildingType.String,
			l.Renovation.String,
			l.Layout.String,
			l.YearBuilt.String,
			l.Location.String,
			l.PublicationDate.String,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
