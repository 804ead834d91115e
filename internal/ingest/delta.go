package ingest

import "cardpricer/worker/internal/model"

// PriceDelta returns the percentage change of the current avg1 value
// against the most recent stored observation. No prior record, or a prior
// avg1 of zero, yields 0 rather than a division by zero.
func PriceDelta(prev *model.PriceRecord, current float64) float64 {
	if prev == nil || prev.Avg1 == 0 {
		return 0
	}
	return (current - prev.Avg1) / prev.Avg1 * 100
}
