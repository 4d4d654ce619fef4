package services

import (
	"fmt"
	"io"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/storage"
	"github.com/oldiberezkoo/0xLider/utils"
)

// Exporter turns the processed listings file into a CSV table and prints
// the insight summary.
type Exporter struct {
	processed *storage.JSONArrayFile[*models.ExtractedListing]
	csvPath   string
	cleaner   *Cleaner
	insights  *InsightService
	logger    *utils.Logger
}

func NewExporter(processed *storage.JSONArrayFile[*models.ExtractedListing], csvPath string, logger *utils.Logger) *Exporter {
	return &Exporter{
		processed: processed,
		csvPath:   csvPath,
		cleaner:   NewCleaner(logger),
		insights:  NewInsightService(logger),
		logger:    logger,
	}
}

// Export writes the CSV file and prints insights to out. It returns the
// report so callers can inspect it.
func (e *Exporter) Export(out io.Writer) (*models.InsightReport, error) {
	listings, err := e.processed.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("exporter: read %s: %w", e.processed.Path(), err)
	}
	listings = e.cleaner.Clean(listings)

	w, err := storage.NewCSVWriter(e.csvPath)
	if err != nil {
		return nil, fmt.Errorf("exporter: %w", err)
	}
	if err := w.WriteListings(listings); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("exporter: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("exporter: close %s: %w", e.csvPath, err)
	}
	e.logger.Success("[exporter] Wrote %d listings to %s", len(listings), e.csvPath)

	report := e.insights.Generate(listings)
	e.insights.Print(out, report)
	return report, nil
}
