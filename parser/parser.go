// Package parser extracts book listings from search-results HTML. The
// target markup is not stable, so every field is resolved through a chain
// of selector strategies; the first one yielding a non-empty value wins.
package parser

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jwdsh/second-hand-book/models"
)

var (
	itemSelector = "ul.bigimg li, ul.smallimg li"

	titleSelectors = []string{
		`a[dd_name="单品标题"]`,
		"a.pic",
		`a[name="itemlist-title"]`,
	}

	priceSelectors = []string{
		"p.price span.search_now_price",
		"span.price_n",
	}
)

// ParseSearch extracts all recognizable listings from a search-results page.
// A page with no listing nodes yields an empty slice, never an error, and a
// single malformed element is skipped without aborting the rest.
func ParseSearch(html string) []models.Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.Warn("unparsable search page", slog.Any("error", err))
		return nil
	}

	var listings []models.Listing
	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		listing, ok := extractListing(item)
		if !ok {
			return
		}
		listings = append(listings, listing)
	})
	return listings
}

func extractListing(item *goquery.Selection) (models.Listing, bool) {
	title := extractTitle(item)
	if title == "" {
		// No title strategy matched; treat the element as noise.
		return models.Listing{}, false
	}

	return models.Listing{
		Title:    title,
		Price:    ParsePrice(extractPriceText(item)),
		ImageURL: extractImageURL(item),
	}, true
}

func extractTitle(item *goquery.Selection) string {
	for _, selector := range titleSelectors {
		anchor := item.Find(selector).First()
		if anchor.Length() == 0 {
			continue
		}
		if title := strings.TrimSpace(anchor.AttrOr("title", "")); title != "" {
			return title
		}
		if title := strings.TrimSpace(anchor.Text()); title != "" {
			return title
		}
	}
	return ""
}

func extractPriceText(item *goquery.Selection) string {
	for _, selector := range priceSelectors {
		if node := item.Find(selector).First(); node.Length() > 0 {
			if text := strings.TrimSpace(node.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func extractImageURL(item *goquery.Selection) string {
	img := item.Find("img").First()
	if img.Length() == 0 {
		return ""
	}

	src := strings.TrimSpace(img.AttrOr("data-original", ""))
	if src == "" {
		src = strings.TrimSpace(img.AttrOr("src", ""))
	}
	return NormalizeImageURL(src)
}

// NormalizeImageURL upgrades protocol-relative URLs so the image fetcher
// receives something it can request directly.
func NormalizeImageURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "http:" + src
	}
	return src
}

// NormalizePrice removes currency symbols and surrounding whitespace.
func NormalizePrice(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "¥", "")
	text = strings.ReplaceAll(text, "￥", "")
	return strings.TrimSpace(text)
}

// ParsePrice converts cleaned price text to a number. Unparsable or negative
// text resolves to the sentinel 0 so the listing survives with an unknown
// price instead of being dropped.
func ParsePrice(text string) float64 {
	cleaned := NormalizePrice(text)
	if cleaned == "" {
		return 0
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || price < 0 {
		return 0
	}
	return price
}
