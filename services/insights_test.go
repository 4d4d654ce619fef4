package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oldiberezkoo/0xLider/models"
)

func sampleListings() []*models.ExtractedListing {
	return []*models.ExtractedListing{
		{Link: "https://www.olx.uz/d/1.html", Price: "65000", Location: models.Str("Ташкент, Юнусабадский район"),
			RoomCount: models.Str("3"), PricePerArea: models.Str("1000.00")},
		{Link: "https://www.olx.uz/d/2.html", Price: "40000", Location: models.Str("Ташкент, Юнусабадский район"),
			RoomCount: models.Str("2"), PricePerArea: models.Str("800.00")},
		{Link: "https://www.olx.uz/d/3.html", Price: "120000", Location: models.Str("Ташкент, Мирзо-Улугбекский район"),
			RoomCount: models.Str("3")},
		{Link: "https://www.olx.uz/d/4.html", Price: "", Location: models.Str("Самарканд")},
		{Link: "https://www.olx.uz/d/5.html", Price: "0"},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.TotalListings != 5 {
		t.Errorf("TotalListings: got %d, want 5", r.TotalListings)
	}
	if r.PricedListings != 3 {
		t.Errorf("PricedListings: got %d, want 3", r.PricedListings)
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.AveragePrice != 75000 {
		t.Errorf("AveragePrice: got %.2f, want 75000", r.AveragePrice)
	}
	if r.MinPrice != 40000 {
		t.Errorf("MinPrice: got %.2f, want 40000", r.MinPrice)
	}
	if r.MaxPrice != 120000 {
		t.Errorf("MaxPrice: got %.2f, want 120000", r.MaxPrice)
	}
	if r.AveragePricePerM2 != 900 {
		t.Errorf("AveragePricePerM2: got %.2f, want 900", r.AveragePricePerM2)
	}
}

func TestInsightMostExpensive(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.MostExpensive == nil {
		t.Fatal("MostExpensive should not be nil")
	}
	if r.MostExpensive.Link != "https://www.olx.uz/d/3.html" {
		t.Errorf("MostExpensive: got %q", r.MostExpensive.Link)
	}
}

func TestInsightCheapest(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if len(r.Cheapest) != 3 {
		t.Fatalf("Cheapest len: got %d, want 3", len(r.Cheapest))
	}
	want := []string{"40000", "65000", "120000"}
	for i, l := range r.Cheapest {
		if l.Price != want[i] {
			t.Errorf("Cheapest[%d].Price: got %s, want %s", i, l.Price, want[i])
		}
	}
}

func TestInsightGrouping(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(sampleListings())
	if r.ListingsByLocation["Ташкент, Юнусабадский район"] != 2 {
		t.Errorf("location count: got %d, want 2", r.ListingsByLocation["Ташкент, Юнусабадский район"])
	}
	if len(r.ListingsByLocation) != 3 {
		t.Errorf("locations: got %d, want 3", len(r.ListingsByLocation))
	}
	if r.ListingsByRooms["3"] != 2 || r.ListingsByRooms["2"] != 1 {
		t.Errorf("rooms: got %v", r.ListingsByRooms)
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	r := svc.Generate(nil)
	if r.TotalListings != 0 || r.MostExpensive != nil {
		t.Errorf("expected empty report for empty input, got %+v", r)
	}

	var buf bytes.Buffer
	svc.Print(&buf, r)
	if !strings.Contains(buf.String(), "No price data available") {
		t.Errorf("empty report output:\n%s", buf.String())
	}
}

func TestInsightPrint(t *testing.T) {
	svc := NewInsightService(newTestLogger())
	var buf bytes.Buffer
	svc.Print(&buf, svc.Generate(sampleListings()))

	out := buf.String()
	for _, want := range []string{"Total listings", "Average per m²", "Самарканд", "https://www.olx.uz/d/2.html"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	got := truncate("Мирзо-Улугбекский район", 10)
	if got != "Мирзо-У..." {
		t.Errorf("truncate = %q", got)
	}
	if truncate("коротко", 10) != "коротко" {
		t.Error("short string changed")
	}
}
