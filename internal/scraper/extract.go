package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cardpricer/worker/internal/model"

	"github.com/PuerkitoBio/goquery"
)

const (
	// The marketplace renders its section header into h1 before the real
	// product name arrives
	titlePlaceholder = "Singles"

	maxListingRows     = 20
	priceSanityCeiling = 1000.0
)

// Selector strategies, tried in order; the first hit wins
var (
	titleSelectors = []string{
		"h1.page-title",
		"h1",
		".product-name",
		".product-title",
	}

	imageSelectors = []string{
		".product-image img",
		".card-image img",
		`img[alt*="card"]`,
		"img.product-img",
		".image-container img",
	}

	imagePlaceholders = []string{"transparent.gif", "placeholder"}

	rowSelectors = []string{
		"table.table tbody tr",
		".article-table tbody tr",
		"table tbody tr[data-article-id]",
		"tr.article-row",
	}
)

// Currency patterns, tried in order per cell
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`€\s*(\d+[,.]\d{2})`),
	regexp.MustCompile(`(\d+[,.]\d{2})\s*€`),
	regexp.MustCompile(`^(\d+[,.]\d{2})$`),
	regexp.MustCompile(`(?i)Price:\s*(\d+[,.]\d{2})`),
}

var articleCountPattern = regexp.MustCompile(`(?i)(\d+)\s+(?:article|listing)`)

// Extract pulls a snapshot out of a rendered product page. Every field is
// best effort: a missing element leaves its field empty, never errors.
func Extract(doc *goquery.Document, capturedAt time.Time) *model.ScrapedSnapshot {
	snapshot := &model.ScrapedSnapshot{CapturedAt: capturedAt}
	snapshot.Title = extractTitle(doc)
	snapshot.Image = extractImage(doc)
	snapshot.Listings, snapshot.PriceRange = extractListings(doc)
	snapshot.ArticleCount = extractArticleCount(doc)
	return snapshot
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range titleSelectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" && title != titlePlaceholder {
			return title
		}
	}
	return ""
}

func extractImage(doc *goquery.Document) string {
	for _, selector := range imageSelectors {
		src, ok := doc.Find(selector).First().Attr("src")
		if !ok || src == "" {
			continue
		}
		if isPlaceholderImage(src) {
			continue
		}
		return src
	}
	return ""
}

func isPlaceholderImage(src string) bool {
	for _, marker := range imagePlaceholders {
		if strings.Contains(src, marker) {
			return true
		}
	}
	return false
}

func extractListings(doc *goquery.Document) ([]model.Listing, *model.PriceRange) {
	var rows *goquery.Selection
	for _, selector := range rowSelectors {
		if found := doc.Find(selector); found.Length() > 0 {
			rows = found
			break
		}
	}
	if rows == nil {
		return nil, nil
	}

	var listings []model.Listing
	var prices []float64
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= maxListingRows {
			return false
		}
		if price, ok := rowPrice(row); ok {
			listings = append(listings, model.Listing{Index: i, Price: price})
			prices = append(prices, price)
		}
		return true
	})

	if len(prices) == 0 {
		return listings, nil
	}
	return listings, aggregate(prices)
}

// rowPrice scans the row's cells in order and takes the first cell whose
// text parses as a price
func rowPrice(row *goquery.Selection) (float64, bool) {
	var price float64
	found := false
	row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if p, ok := ParsePrice(strings.TrimSpace(cell.Text())); ok {
			price = p
			found = true
			return false
		}
		return true
	})
	return price, found
}

// ParsePrice matches text against the ordered currency patterns. European
// decimal commas are normalized, and only values inside (0, 1000) survive;
// anything else on a singles page is a parse artifact.
func ParsePrice(text string) (float64, bool) {
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
		if err != nil {
			continue
		}
		if value > 0 && value < priceSanityCeiling {
			return value, true
		}
	}
	return 0, false
}

func aggregate(prices []float64) *model.PriceRange {
	r := &model.PriceRange{Min: prices[0], Max: prices[0], Count: len(prices)}
	var sum float64
	for _, p := range prices {
		if p < r.Min {
			r.Min = p
		}
		if p > r.Max {
			r.Max = p
		}
		sum += p
	}
	r.Avg = sum / float64(len(prices))
	return r
}

func extractArticleCount(doc *goquery.Document) int {
	match := articleCountPattern.FindStringSubmatch(doc.Text())
	if match == nil {
		return 0
	}
	count, _ := strconv.Atoi(match[1])
	return count
}
