package model

import "time"

// Product is one catalog entry, keyed by the marketplace product id. The
// json tags follow the bulk product feed, the bson tags the stored document.
type Product struct {
	IDProduct    int    `bson:"idProduct" json:"idProduct"`
	Name         string `bson:"name" json:"name"`
	IDCategory   int    `bson:"idCategory" json:"idCategory"`
	CategoryName string `bson:"categoryName" json:"categoryName"`
	IDExpansion  int    `bson:"idExpansion" json:"idExpansion"`
	IDMetacard   int    `bson:"idMetacard,omitempty" json:"idMetacard"`
	DateAdded    string `bson:"dateAdded,omitempty" json:"dateAdded"`

	// Derived during ingestion
	CardCode string `bson:"cardCode" json:"-"`

	// Cross-reference enrichment, zeroed when the lookup misses
	BlueprintID     int            `bson:"blueprintId" json:"-"`
	ExternalURL     string         `bson:"externalUrl" json:"-"`
	FixedProperties map[string]any `bson:"fixedProperties" json:"-"`

	// Side-channel scrape cache, written by the scraper only
	ScrapedData *ScrapedSnapshot `bson:"scrapedData,omitempty" json:"-"`
	LastScraped *time.Time       `bson:"lastScraped,omitempty" json:"-"`
}

// Listing is a single offer row captured from a product page
type Listing struct {
	Index int     `bson:"index" json:"index"`
	Price float64 `bson:"price" json:"price"`
}

// PriceRange aggregates the captured listing prices
type PriceRange struct {
	Min   float64 `bson:"min" json:"min"`
	Max   float64 `bson:"max" json:"max"`
	Avg   float64 `bson:"avg" json:"avg"`
	Count int     `bson:"count" json:"count"`
}

// ScrapedSnapshot is what one successful page scrape produced. Every field
// except CapturedAt is optional.
type ScrapedSnapshot struct {
	Title        string      `bson:"title,omitempty" json:"title,omitempty"`
	Image        string      `bson:"image,omitempty" json:"image,omitempty"`
	Listings     []Listing   `bson:"listings,omitempty" json:"listings,omitempty"`
	PriceRange   *PriceRange `bson:"priceRange,omitempty" json:"priceRange,omitempty"`
	ArticleCount int         `bson:"articleCount,omitempty" json:"articleCount,omitempty"`
	CapturedAt   time.Time   `bson:"capturedAt" json:"capturedAt"`
}
