package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cardpricer/worker/internal/model"
	apperr "cardpricer/worker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeds struct {
	products []model.Product
	entries  []model.PriceEntry
	prodErr  error
	priceErr error
}

func (f *fakeFeeds) FetchProducts(ctx context.Context) ([]model.Product, error) {
	return f.products, f.prodErr
}

func (f *fakeFeeds) FetchPriceGuide(ctx context.Context) ([]model.PriceEntry, error) {
	return f.entries, f.priceErr
}

// fakeStorage keeps an in-memory rendition of the two collections
type fakeStorage struct {
	products   map[int]model.Product
	records    []model.PriceRecord
	blueprints map[int]model.Blueprint // keyed by cardmarket product id
	upsertErr  error
	insertErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		products:   make(map[int]model.Product),
		blueprints: make(map[int]model.Blueprint),
	}
}

func (f *fakeStorage) UpsertProducts(ctx context.Context, products []model.Product) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, p := range products {
		f.products[p.IDProduct] = p
	}
	return nil
}

func (f *fakeStorage) InsertPriceRecords(ctx context.Context, records []model.PriceRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStorage) LatestPrice(ctx context.Context, idProduct int) (*model.PriceRecord, error) {
	var latest *model.PriceRecord
	for i := range f.records {
		r := f.records[i]
		if r.IDProduct != idProduct {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			latest = &r
		}
	}
	return latest, nil
}

func (f *fakeStorage) BlueprintByProductID(ctx context.Context, idProduct int) (*model.Blueprint, error) {
	if bp, ok := f.blueprints[idProduct]; ok {
		return &bp, nil
	}
	return nil, nil
}

type capturingPublisher struct {
	keys     []string
	messages [][]byte
	err      error
}

func (p *capturingPublisher) Publish(key string, message []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.messages = append(p.messages, message)
	return nil
}

func TestDownloadAndMergeEndToEnd(t *testing.T) {
	feeds := &fakeFeeds{
		products: []model.Product{
			{IDProduct: 101, Name: "Monkey.D.Luffy (OP01-003)", IDCategory: 1},
		},
		entries: []model.PriceEntry{
			{IDProduct: 101, Avg1: 10, Avg7: 9.5},
		},
	}
	storage := newFakeStorage()
	storage.blueprints[101] = model.Blueprint{ID: 55, BigImage: "https://cardtrader.com/luffy.jpg", FixedProperties: map[string]any{"rarity": "L"}}

	merger := NewMerger(feeds, storage, nil)

	// First run: no history, so the delta is zero
	summary, err := merger.DownloadAndMerge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Products)
	assert.Equal(t, 1, summary.Prices)
	require.Len(t, storage.records, 1)
	assert.Zero(t, storage.records[0].PriceDelta)
	assert.Empty(t, summary.TopMovers)

	stored := storage.products[101]
	assert.Equal(t, "OP01-003", stored.CardCode)
	assert.Equal(t, 55, stored.BlueprintID)
	assert.Equal(t, "https://cardtrader.com/luffy.jpg", stored.ExternalURL)

	// Second run: avg1 moved from 10 to 12, a 20% delta
	feeds.entries[0].Avg1 = 12
	summary, err = merger.DownloadAndMerge(context.Background())
	require.NoError(t, err)

	require.Len(t, storage.records, 2)
	assert.InDelta(t, 20.0, storage.records[1].PriceDelta, 1e-9)
	require.Len(t, summary.TopMovers, 1)
	assert.Equal(t, 101, summary.TopMovers[0].IDProduct)

	// Catalog stays single-document per product
	assert.Len(t, storage.products, 1)
}

func TestDownloadAndMergeSharedTimestamp(t *testing.T) {
	feeds := &fakeFeeds{
		products: []model.Product{{IDProduct: 101}, {IDProduct: 102}},
		entries:  []model.PriceEntry{{IDProduct: 101, Avg1: 1}, {IDProduct: 102, Avg1: 2}},
	}
	storage := newFakeStorage()
	merger := NewMerger(feeds, storage, nil)

	_, err := merger.DownloadAndMerge(context.Background())
	require.NoError(t, err)

	require.Len(t, storage.records, 2)
	assert.Equal(t, storage.records[0].Timestamp, storage.records[1].Timestamp)
}

func TestDownloadAndMergeFeedFailureAbortsRun(t *testing.T) {
	feeds := &fakeFeeds{prodErr: apperr.NewFetch("products", "download failed", nil)}
	storage := newFakeStorage()
	merger := NewMerger(feeds, storage, nil)

	_, err := merger.DownloadAndMerge(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.ErrorTypeFetch, apperr.TypeOf(err))
	assert.Empty(t, storage.products)
	assert.Empty(t, storage.records)
}

func TestDownloadAndMergeStorageFailureAbortsRun(t *testing.T) {
	feeds := &fakeFeeds{
		products: []model.Product{{IDProduct: 101}},
		entries:  []model.PriceEntry{{IDProduct: 101, Avg1: 1}},
	}
	storage := newFakeStorage()
	storage.upsertErr = apperr.NewPersistence("store", "bulk write failed", errors.New("socket closed"))
	merger := NewMerger(feeds, storage, nil)

	_, err := merger.DownloadAndMerge(context.Background())
	require.Error(t, err)
	assert.Empty(t, storage.records)
}

func TestDownloadAndMergePublishesSummary(t *testing.T) {
	feeds := &fakeFeeds{
		products: []model.Product{{IDProduct: 101}},
		entries:  []model.PriceEntry{{IDProduct: 101, Avg1: 3}},
	}
	pub := &capturingPublisher{}
	merger := NewMerger(feeds, newFakeStorage(), pub)

	_, err := merger.DownloadAndMerge(context.Background())
	require.NoError(t, err)

	require.Len(t, pub.keys, 1)
	assert.Equal(t, "ingest_summary", pub.keys[0])

	var decoded Summary
	require.NoError(t, json.Unmarshal(pub.messages[0], &decoded))
	assert.Equal(t, 1, decoded.Prices)
}

func TestDownloadAndMergePublishFailureIsNotFatal(t *testing.T) {
	feeds := &fakeFeeds{
		products: []model.Product{{IDProduct: 101}},
		entries:  []model.PriceEntry{{IDProduct: 101, Avg1: 3}},
	}
	pub := &capturingPublisher{err: errors.New("stream unavailable")}
	merger := NewMerger(feeds, newFakeStorage(), pub)

	_, err := merger.DownloadAndMerge(context.Background())
	assert.NoError(t, err)
}
