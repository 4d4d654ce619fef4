package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/oldiberezkoo/0xLider/models"
	"github.com/oldiberezkoo/0xLider/utils"
)

const cheapestCount = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes price statistics and groupings over enriched listings.
// Listings without a positive price are counted but left out of the price
// statistics.
func (s *InsightService) Generate(listings []*models.ExtractedListing) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByLocation: make(map[string]int),
		ListingsByRooms:    make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	type priced struct {
		listing *models.ExtractedListing
		price   float64
	}
	var pricedListings []priced
	var perM2Total float64
	var perM2Count int

	for _, l := range listings {
		if price, ok := ParsePositive(l.Price); ok {
			pricedListings = append(pricedListings, priced{l, price})
		}
		if perM2, ok := ParsePositive(l.PricePerArea.String); l.PricePerArea.Valid && ok {
			perM2Total += perM2
			perM2Count++
		}
		if l.Location.Valid && l.Location.String != "" {
			report.ListingsByLocation[l.Location.String]++
		}
		if l.RoomCount.Valid && l.RoomCount.String != "" {
			report.ListingsByRooms[l.RoomCount.String]++
		}
	}

	report.PricedListings = len(pricedListings)
	if len(pricedListings) > 0 {
		report.MinPrice = pricedListings[0].price
		report.MaxPrice = pricedListings[0].price
		report.MostExpensive = pricedListings[0].listing
		var total float64
		for _, p := range pricedListings {
			total += p.price
			if p.price < report.MinPrice {
				report.MinPrice = p.price
			}
			if p.price > report.MaxPrice {
				report.MaxPrice = p.price
				report.MostExpensive = p.listing
			}
		}
		report.AveragePrice = round2(total / float64(len(pricedListings)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)

		sort.SliceStable(pricedListings, func(i, j int) bool {
			return pricedListings[i].price < pricedListings[j].price
		})
		for i := 0; i < len(pricedListings) && i < cheapestCount; i++ {
			report.Cheapest = append(report.Cheapest, pricedListings[i].listing)
		}
	}
	if perM2Count > 0 {
		report.AveragePricePerM2 = round2(perM2Total / float64(perM2Count))
	}

	s.logger.Debug("[insights] %d listings, %d priced, %d locations",
		report.TotalListings, report.PricedListings, len(report.ListingsByLocation))
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 LISTING INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings   : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  With a price     : \033[1m%d\033[0m\n", r.PricedListings)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics (y.e.)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%.2f\033[0m\n", r.MaxPrice)
		if r.AveragePricePerM2 > 0 {
			fmt.Fprintf(w, "  Average per m²: \033[1;32m%.2f\033[0m\n", r.AveragePricePerM2)
		}
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	// Most Expensive
	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Link, 50))
		fmt.Fprintf(w, "  Location : %s\n", r.MostExpensive.Location.String)
		fmt.Fprintf(w, "  Price    : \033[1;31m%s\033[0m\n", r.MostExpensive.Price)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Top %d Cheapest Listings\033[0m\n", cheapestCount)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.Cheapest) == 0 {
		fmt.Fprintf(w, "  No priced listings found\n")
	} else {
		for i, l := range r.Cheapest {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%s\033[0m\n",
				i+1, truncate(l.Link, 38), l.Price)
		}
	}
	fmt.Fprintln(w)

	printCounts(w, "Listings by Location", "No location data", r.ListingsByLocation, thin)
	printCounts(w, "Listings by Rooms", "No room data", r.ListingsByRooms, thin)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// printCounts renders a bar per key, sorted by count descending then key.
func printCounts(w io.Writer, title, empty string, counts map[string]int, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  %s\n", empty)
		fmt.Fprintln(w)
		return
	}

	type keyCount struct {
		key   string
		count int
	}
	var rows []keyCount
	for k, n := range counts {
		rows = append(rows, keyCount{k, n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, r := range rows {
		bar := strings.Repeat("█", r.count)
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(r.key, 28), bar, r.count)
	}
	fmt.Fprintln(w)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
