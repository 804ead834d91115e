package ingest

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"cardpricer/worker/helpers"
	"cardpricer/worker/internal/model"
	"cardpricer/worker/logger"
)

// Feeds is the bulk feed surface the merger consumes
type Feeds interface {
	FetchProducts(ctx context.Context) ([]model.Product, error)
	FetchPriceGuide(ctx context.Context) ([]model.PriceEntry, error)
}

// Storage is the persistence surface the merger writes through
type Storage interface {
	UpsertProducts(ctx context.Context, products []model.Product) error
	InsertPriceRecords(ctx context.Context, records []model.PriceRecord) error
	LatestPrice(ctx context.Context, idProduct int) (*model.PriceRecord, error)
	BlueprintByProductID(ctx context.Context, idProduct int) (*model.Blueprint, error)
}

// Publisher receives the run summary after a successful merge
type Publisher interface {
	Publish(key string, message []byte) error
}

// Mover is one of the largest price swings of a run
type Mover struct {
	IDProduct  int     `json:"idProduct"`
	Avg1       float64 `json:"avg1"`
	PriceDelta float64 `json:"priceDelta"`
}

// Summary describes one completed ingestion run
type Summary struct {
	Products  int           `json:"products"`
	Prices    int           `json:"prices"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	TopMovers []Mover       `json:"topMovers,omitempty"`
}

// Merger runs the ingestion pipeline: download both bulk feeds, derive card
// codes, enrich from the cross-reference collection, compute deltas against
// stored history, then persist catalog upserts and price inserts.
type Merger struct {
	feeds Feeds
	store Storage
	pub   Publisher
	log   *logger.Logger
	now   func() time.Time
}

// NewMerger creates an ingestion merger. pub may be nil to disable
// run-summary publishing.
func NewMerger(feeds Feeds, store Storage, pub Publisher) *Merger {
	return &Merger{
		feeds: feeds,
		store: store,
		pub:   pub,
		log:   logger.ForIngest(),
		now:   time.Now,
	}
}

// DownloadAndMerge executes one full ingestion run. Any feed or storage
// failure aborts the run; the next scheduled run is the recovery. A failed
// cross-reference lookup only leaves the product unenriched.
func (m *Merger) DownloadAndMerge(ctx context.Context) (*Summary, error) {
	started := m.now()

	products, err := m.feeds.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := m.feeds.FetchPriceGuide(ctx)
	if err != nil {
		return nil, err
	}

	productsByID := make(map[int]*model.Product, len(products))
	for i := range products {
		p := &products[i]
		p.CardCode = helpers.ExtractCardCode(p.Name)
		m.enrich(ctx, p)
		productsByID[p.IDProduct] = p
	}

	// One shared timestamp so all records of a run sort together
	ts := m.now().UTC()

	records := make([]model.PriceRecord, 0, len(entries))
	for _, e := range entries {
		prev, err := m.store.LatestPrice(ctx, e.IDProduct)
		if err != nil {
			return nil, err
		}
		record := model.PriceRecord{
			IDProduct:  e.IDProduct,
			Avg:        e.Avg,
			Low:        e.Low,
			Trend:      e.Trend,
			Avg1:       e.Avg1,
			Avg7:       e.Avg7,
			Avg30:      e.Avg30,
			PriceDelta: PriceDelta(prev, e.Avg1),
			Timestamp:  ts,
		}
		if p, ok := productsByID[e.IDProduct]; ok {
			record.IDCategory = p.IDCategory
		}
		records = append(records, record)
	}

	if err := m.store.UpsertProducts(ctx, products); err != nil {
		return nil, err
	}
	if err := m.store.InsertPriceRecords(ctx, records); err != nil {
		return nil, err
	}

	summary := &Summary{
		Products:  len(products),
		Prices:    len(records),
		StartedAt: started,
		Duration:  m.now().Sub(started),
		TopMovers: topMovers(records, 5),
	}
	m.log.Info().
		Int("products", summary.Products).
		Int("prices", summary.Prices).
		Dur("duration", summary.Duration).
		Msg("Ingestion run complete")

	m.publish(summary)
	return summary, nil
}

// enrich attaches cross-reference data to a product. Misses and lookup
// errors leave the product unenriched; they never abort the run.
func (m *Merger) enrich(ctx context.Context, p *model.Product) {
	bp, err := m.store.BlueprintByProductID(ctx, p.IDProduct)
	if err != nil {
		m.log.Debug().Err(err).Int("idProduct", p.IDProduct).Msg("Cross-reference lookup failed")
		return
	}
	if bp == nil {
		return
	}
	p.BlueprintID = bp.ID
	p.FixedProperties = bp.FixedProperties
	if bp.BigImage != "" {
		p.ExternalURL = bp.BigImage
	} else {
		p.ExternalURL = bp.SmallImage
	}
}

// publish emits the run summary. Publish failures are logged, never fatal.
func (m *Merger) publish(summary *Summary) {
	if m.pub == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to encode run summary")
		return
	}
	if err := m.pub.Publish("ingest_summary", data); err != nil {
		m.log.Warn().Err(err).Msg("Failed to publish run summary")
	}
}

// topMovers returns the n records with the largest absolute delta
func topMovers(records []model.PriceRecord, n int) []Mover {
	sorted := make([]model.PriceRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := sorted[i].PriceDelta, sorted[j].PriceDelta
		if di < 0 {
			di = -di
		}
		if dj < 0 {
			dj = -dj
		}
		return di > dj
	})

	if n > len(sorted) {
		n = len(sorted)
	}
	movers := make([]Mover, 0, n)
	for _, r := range sorted[:n] {
		if r.PriceDelta == 0 {
			break
		}
		movers = append(movers, Mover{IDProduct: r.IDProduct, Avg1: r.Avg1, PriceDelta: r.PriceDelta})
	}
	return movers
}
