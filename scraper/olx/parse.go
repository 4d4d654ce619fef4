package olx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/oldiberezkoo/0xLider/models"
)

// Field selectors of an ad page.
const (
	titleSelector       = "div[data-cy='ad_title'] h4"
	descriptionSelector = "div[data-cy='ad_description'] > div.css-19duwlz"
	parameterSelector   = "div.css-41yf00 > div.css-ae1s7g > div.css-1msmb8o > p.css-z0m36u"
	priceSelector       = "div[data-testid='ad-price-container'] > h3.css-fqcbii"
	locationSelector    = "section.css-wefbef div.css-13l8eec div p.css-7wnksb"
	inactiveSelector    = "div[data-testid='ad-inactive-msg']"

	cardSelector       = "[data-cy='l-card']"
	paginationSelector = "[data-testid^='pagination-link-']"
)

var blockMarkers = []string{"captcha", "blocked", "suspicious activity"}

// ParseAd extracts the text fields of a rendered ad page.
func ParseAd(pageURL, html string) (*models.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("olx: parse ad %s: %w", pageURL, err)
	}

	content := &models.PageContent{
		URL:          pageURL,
		Title:        firstText(doc, titleSelector),
		Description:  firstText(doc, descriptionSelector),
		PriceText:    firstText(doc, priceSelector),
		LocationText: firstText(doc, locationSelector),
		Inactive:     doc.Find(inactiveSelector).Length() > 0,
	}
	doc.Find(parameterSelector).Each(func(_ int, s *goquery.Selection) {
		if p := strings.TrimSpace(s.Text()); p != "" {
			content.Parameters = append(content.Parameters, p)
		}
	})
	return content, nil
}

// ParseSearch extracts listing links and the highest page number from a
// search results page. Relative links are resolved against base.
func ParseSearch(base *url.URL, html string) (*models.SearchPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("olx: parse search page: %w", err)
	}

	page := &models.SearchPage{MaxPage: 1}
	doc.Find(paginationSelector).Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > page.MaxPage {
			page.MaxPage = n
		}
	})

	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		page.Links = append(page.Links, ref.String())
	})

	if len(page.Links) == 0 {
		body := strings.ToLower(doc.Find("body").Text())
		for _, marker := range blockMarkers {
			if strings.Contains(body, marker) {
				page.Blocked = true
				break
			}
		}
	}
	return page, nil
}

// PageURL returns base with the page query parameter set to n.
func PageURL(base *url.URL, n int) string {
	u := *base
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}
