package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cardpricer/worker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPageHTML = `<html><body>
	<h1 class="page-title">Monkey.D.Luffy (OP01-003)</h1>
	<table class="table"><tbody>
		<tr><td>seller</td><td>€0,02</td></tr>
	</tbody></table>
</body></html>`

// fakeBrowser plays back a scripted sequence of page results
type fakeBrowser struct {
	results    []*PageResult
	visit      int
	ensures    int
	forced     int
	shutdowns  int
	proxyCount int
	ensureErr  error
}

func (f *fakeBrowser) Ensure(ctx context.Context, forceNew bool) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensures++
	if forceNew {
		f.forced++
	}
	return nil
}

func (f *fakeBrowser) Visit(ctx context.Context, url string) (*PageResult, error) {
	if f.visit >= len(f.results) {
		return &PageResult{Status: http.StatusOK, HTML: productPageHTML}, nil
	}
	result := f.results[f.visit]
	f.visit++
	return result, nil
}

func (f *fakeBrowser) Shutdown() { f.shutdowns++ }

func (f *fakeBrowser) ProxyCount() int { return f.proxyCount }

type fakeProductStore struct {
	products  []model.Product
	snapshots map[int]*model.ScrapedSnapshot
	attachErr error
}

func newFakeProductStore(ids ...int) *fakeProductStore {
	s := &fakeProductStore{snapshots: make(map[int]*model.ScrapedSnapshot)}
	for _, id := range ids {
		s.products = append(s.products, model.Product{IDProduct: id})
	}
	return s
}

func (f *fakeProductStore) Products(ctx context.Context, limit int64) ([]model.Product, error) {
	if limit > 0 && int64(len(f.products)) > limit {
		return f.products[:limit], nil
	}
	return f.products, nil
}

func (f *fakeProductStore) AttachSnapshot(ctx context.Context, idProduct int, snap *model.ScrapedSnapshot, at time.Time) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.snapshots[idProduct] = snap
	return nil
}

type memoryCache struct {
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (m *memoryCache) Get(key string) ([]byte, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (m *memoryCache) Set(key string, value []byte, expiration time.Duration) error {
	m.values[key] = value
	return nil
}

func (m *memoryCache) Delete(key string) error {
	delete(m.values, key)
	return nil
}

func newTestScraper(browser Browser, store ProductStore, cacheService *memoryCache) *Scraper {
	s := NewScraper(browser, store, nil, Options{BaseURL: "https://market.example.com/en/OnePiece"})
	if cacheService != nil {
		s.cache = cacheService
	}
	s.sleep = func(time.Duration) {}
	return s
}

func TestScrapePageSuccess(t *testing.T) {
	browser := &fakeBrowser{}
	scraper := newTestScraper(browser, newFakeProductStore(), nil)

	snapshot, err := scraper.ScrapePage(context.Background(), 101)

	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "Monkey.D.Luffy (OP01-003)", snapshot.Title)
	require.Len(t, snapshot.Listings, 1)
	assert.InDelta(t, 0.02, snapshot.Listings[0].Price, 1e-9)
}

func TestScrapePageRateLimitRecyclesSessionPerRetry(t *testing.T) {
	browser := &fakeBrowser{
		proxyCount: 2,
		results: []*PageResult{
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusOK, HTML: productPageHTML},
		},
	}
	scraper := newTestScraper(browser, newFakeProductStore(), nil)

	var waits []time.Duration
	scraper.sleep = func(d time.Duration) { waits = append(waits, d) }

	snapshot, err := scraper.ScrapePage(context.Background(), 101)

	require.NoError(t, err)
	require.NotNil(t, snapshot)
	// One forced session per 429, one fixed wait each
	assert.Equal(t, 2, browser.forced)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, waits)
}

func TestScrapePageRateLimitGivesUpAfterRetries(t *testing.T) {
	browser := &fakeBrowser{
		proxyCount: 2,
		results: []*PageResult{
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusTooManyRequests},
		},
	}
	scraper := newTestScraper(browser, newFakeProductStore(), nil)

	snapshot, err := scraper.ScrapePage(context.Background(), 101)

	assert.NoError(t, err)
	assert.Nil(t, snapshot)
	// Initial attempt plus exactly three retries
	assert.Equal(t, 4, browser.visit)
	assert.Equal(t, 3, browser.forced)
}

func TestScrapePageRateLimitBacksOffWithoutSpareProxies(t *testing.T) {
	browser := &fakeBrowser{
		proxyCount: 1,
		results: []*PageResult{
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusTooManyRequests},
			{Status: http.StatusOK, HTML: productPageHTML},
		},
	}
	scraper := newTestScraper(browser, newFakeProductStore(), nil)

	var waits []time.Duration
	scraper.sleep = func(d time.Duration) { waits = append(waits, d) }

	snapshot, err := scraper.ScrapePage(context.Background(), 101)

	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Zero(t, browser.forced)
	assert.Equal(t, []time.Duration{1 * time.Minute, 2 * time.Minute}, waits)
}

func TestScrapePageBlockedAbandonsImmediately(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusAccepted} {
		browser := &fakeBrowser{results: []*PageResult{{Status: status}}}
		scraper := newTestScraper(browser, newFakeProductStore(), nil)

		snapshot, err := scraper.ScrapePage(context.Background(), 101)

		assert.NoError(t, err, "status %d", status)
		assert.Nil(t, snapshot, "status %d", status)
		assert.Equal(t, 1, browser.visit, "status %d", status)
	}
}

func TestScrapePageUnexpectedStatus(t *testing.T) {
	browser := &fakeBrowser{results: []*PageResult{{Status: http.StatusNotFound}}}
	scraper := newTestScraper(browser, newFakeProductStore(), nil)

	snapshot, err := scraper.ScrapePage(context.Background(), 101)

	assert.NoError(t, err)
	assert.Nil(t, snapshot)
	assert.Equal(t, 1, browser.visit)
}

func TestScrapeAllPersistsSnapshots(t *testing.T) {
	browser := &fakeBrowser{}
	store := newFakeProductStore(101, 102, 103)
	scraper := newTestScraper(browser, store, nil)

	result, err := scraper.ScrapeAll(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Success)
	assert.Zero(t, result.Failed)
	assert.Len(t, store.snapshots, 3)
	// Session released when the batch ends
	assert.Equal(t, 1, browser.shutdowns)
}

func TestScrapeAllRotatesProxyEveryFifthItem(t *testing.T) {
	browser := &fakeBrowser{proxyCount: 3}
	store := newFakeProductStore(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)
	scraper := newTestScraper(browser, store, nil)

	_, err := scraper.ScrapeAll(context.Background(), 0)

	require.NoError(t, err)
	// Batch rotations at items 5 and 10
	assert.Equal(t, 2, browser.forced)
}

func TestScrapeAllCountsFailures(t *testing.T) {
	browser := &fakeBrowser{results: []*PageResult{{Status: http.StatusNotFound}}}
	store := newFakeProductStore(101, 102)
	scraper := newTestScraper(browser, store, nil)

	result, err := scraper.ScrapeAll(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Success)
}

func TestScrapeAllSkipsBlockedTargets(t *testing.T) {
	// First target draws anti-bot detection, putting it in cooldown
	browser := &fakeBrowser{results: []*PageResult{{Status: http.StatusForbidden}}}
	store := newFakeProductStore(101)
	cacheService := newMemoryCache()
	scraper := newTestScraper(browser, store, cacheService)

	result, err := scraper.ScrapeAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// Second batch skips it without visiting
	result, err = scraper.ScrapeAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, browser.visit)
}

func TestScrapeAllRespectsLimit(t *testing.T) {
	browser := &fakeBrowser{}
	store := newFakeProductStore(101, 102, 103)
	scraper := newTestScraper(browser, store, nil)

	result, err := scraper.ScrapeAll(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}
