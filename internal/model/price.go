package model

import "time"

// PriceEntry is one row of the bulk price-guide feed
type PriceEntry struct {
	IDProduct int     `json:"idProduct"`
	Avg       float64 `json:"avg"`
	Low       float64 `json:"low"`
	Trend     float64 `json:"trend"`
	Avg1      float64 `json:"avg1"`
	Avg7      float64 `json:"avg7"`
	Avg30     float64 `json:"avg30"`
}

// PriceRecord is one stored price observation. Records are insert-only;
// the history for a product is the set of records sharing its idProduct,
// ordered by timestamp.
type PriceRecord struct {
	IDProduct  int       `bson:"idProduct"`
	IDCategory int       `bson:"idCategory,omitempty"`
	Avg        float64   `bson:"avg"`
	Low        float64   `bson:"low"`
	Trend      float64   `bson:"trend"`
	Avg1       float64   `bson:"avg1"`
	Avg7       float64   `bson:"avg7"`
	Avg30      float64   `bson:"avg30"`
	PriceDelta float64   `bson:"priceDelta"`
	Timestamp  time.Time `bson:"timestamp"`
}
