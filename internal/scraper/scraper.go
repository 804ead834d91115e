package scraper

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"net/http"
	"strings"
	"time"

	"cardpricer/worker/internal/model"
	"cardpricer/worker/logger"
	apperr "cardpricer/worker/pkg/errors"
	"cardpricer/worker/services/cache"

	"github.com/PuerkitoBio/goquery"
)

// ProductStore is the storage surface the scrape batch reads targets from
// and writes snapshots through
type ProductStore interface {
	Products(ctx context.Context, limit int64) ([]model.Product, error)
	AttachSnapshot(ctx context.Context, idProduct int, snap *model.ScrapedSnapshot, at time.Time) error
}

// Options tune the retry and pacing behavior
type Options struct {
	BaseURL       string
	MaxRetries    int           // rate-limit retries per target
	RateLimitWait time.Duration // pause after switching proxy on a 429
	BackoffUnit   time.Duration // escalating backoff unit without spare proxies
	RotateEvery   int           // batch items between proxy rotations
	RotatePause   time.Duration // pause after a batch rotation
	DelayMin      time.Duration // inter-item delay lower bound
	DelayMax      time.Duration // inter-item delay upper bound
	BlockCooldown time.Duration // skip window after anti-bot detection
}

func (o *Options) applyDefaults() {
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RateLimitWait == 0 {
		o.RateLimitWait = 10 * time.Second
	}
	if o.BackoffUnit == 0 {
		o.BackoffUnit = time.Minute
	}
	if o.RotateEvery == 0 {
		o.RotateEvery = 5
	}
	if o.RotatePause == 0 {
		o.RotatePause = 5 * time.Second
	}
	if o.DelayMin == 0 {
		o.DelayMin = 30 * time.Second
	}
	if o.DelayMax == 0 {
		o.DelayMax = 60 * time.Second
	}
	if o.BlockCooldown == 0 {
		o.BlockCooldown = 6 * time.Hour
	}
}

// BatchResult summarizes one scrape batch
type BatchResult struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

// Scraper drives the browser over individual product pages. One target at a
// time; the browser session and the rotation cursor belong to this instance.
type Scraper struct {
	browser Browser
	store   ProductStore
	cache   cache.CacheService // optional block cooldown, may be nil
	opts    Options
	log     *logger.Logger
	sleep   func(time.Duration)
	now     func() time.Time
	rand    *mathrand.Rand
}

// NewScraper creates a scraper. cacheService may be nil, which disables the
// block cooldown.
func NewScraper(browser Browser, store ProductStore, cacheService cache.CacheService, opts Options) *Scraper {
	opts.applyDefaults()
	return &Scraper{
		browser: browser,
		store:   store,
		cache:   cacheService,
		opts:    opts,
		log:     logger.ForScraper(),
		sleep:   time.Sleep,
		now:     time.Now,
		rand:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Scraper) productURL(idProduct int) string {
	return fmt.Sprintf("%s/Products?idProduct=%d", strings.TrimRight(s.opts.BaseURL, "/"), idProduct)
}

// ScrapePage visits one product page and returns its snapshot, or nil when
// the target could not be scraped. Rate limiting is retried a bounded
// number of times, rotating the proxy when spares exist and backing off
// otherwise. Anti-bot and unexpected statuses abandon the target at once.
func (s *Scraper) ScrapePage(ctx context.Context, idProduct int) (*model.ScrapedSnapshot, error) {
	target := s.productURL(idProduct)

	for retry := 0; ; retry++ {
		if err := s.browser.Ensure(ctx, false); err != nil {
			return nil, err
		}

		page, err := s.browser.Visit(ctx, target)
		if err != nil {
			s.log.Warn().Err(err).Int("idProduct", idProduct).Msg("Page visit failed")
			return nil, err
		}

		switch page.Status {
		case http.StatusOK:
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
			if err != nil {
				return nil, apperr.NewNavigation("scraper", "rendered page is not parseable", err)
			}
			snapshot := Extract(doc, s.now().UTC())
			s.log.Debug().
				Int("idProduct", idProduct).
				Int("listings", len(snapshot.Listings)).
				Str("title", snapshot.Title).
				Msg("Scraped product page")
			return snapshot, nil

		case http.StatusTooManyRequests:
			if retry >= s.opts.MaxRetries {
				s.log.Error().Int("idProduct", idProduct).Int("retries", retry).Msg("Rate limit persisted, giving up")
				return nil, nil
			}
			if s.browser.ProxyCount() > 1 {
				s.log.Warn().Int("idProduct", idProduct).Msg("Rate limited, rotating proxy")
				if err := s.browser.Ensure(ctx, true); err != nil {
					return nil, err
				}
				s.sleep(s.opts.RateLimitWait)
			} else {
				wait := time.Duration(retry+1) * s.opts.BackoffUnit
				s.log.Warn().Int("idProduct", idProduct).Dur("wait", wait).Msg("Rate limited, no spare proxies, backing off")
				s.sleep(wait)
			}

		case http.StatusForbidden, http.StatusAccepted:
			s.log.Warn().Int("idProduct", idProduct).Int("status", page.Status).Msg("Anti-bot response, abandoning target")
			s.markBlocked(idProduct)
			return nil, nil

		default:
			s.log.Warn().Int("idProduct", idProduct).Int("status", page.Status).Msg("Unexpected status, abandoning target")
			return nil, nil
		}
	}
}

// ScrapeAll walks the stored catalog sequentially, persisting a snapshot
// per successful target. Per-target failures are counted, never fatal; the
// browser session is released when the batch ends.
func (s *Scraper) ScrapeAll(ctx context.Context, limit int64) (*BatchResult, error) {
	defer s.browser.Shutdown()

	products, err := s.store.Products(ctx, limit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Total: len(products)}
	s.log.Info().Int("count", len(products)).Msg("Starting scrape batch")

	for i, product := range products {
		if err := ctx.Err(); err != nil {
			s.log.Info().Int("remaining", len(products)-i).Msg("Scrape batch cancelled")
			return result, err
		}

		if s.isBlocked(product.IDProduct) {
			s.log.Debug().Int("idProduct", product.IDProduct).Msg("Target in block cooldown, skipping")
			result.Skipped++
			continue
		}

		// Spread the batch over multiple egress points
		if s.browser.ProxyCount() > 1 && i > 0 && i%s.opts.RotateEvery == 0 {
			if err := s.browser.Ensure(ctx, true); err != nil {
				s.log.Warn().Err(err).Msg("Proxy rotation failed, keeping current session")
			} else {
				s.sleep(s.opts.RotatePause)
			}
		}

		snapshot, err := s.ScrapePage(ctx, product.IDProduct)
		if err != nil || snapshot == nil {
			result.Failed++
		} else if err := s.store.AttachSnapshot(ctx, product.IDProduct, snapshot, s.now().UTC()); err != nil {
			s.log.Error().Err(err).Int("idProduct", product.IDProduct).Msg("Failed to persist snapshot")
			result.Failed++
		} else {
			result.Success++
		}

		if i < len(products)-1 {
			s.sleep(s.interItemDelay())
		}
	}

	s.log.Info().
		Int("success", result.Success).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("Scrape batch complete")
	return result, nil
}

// interItemDelay picks a random pause inside the configured window
func (s *Scraper) interItemDelay() time.Duration {
	span := s.opts.DelayMax - s.opts.DelayMin
	if span <= 0 {
		return s.opts.DelayMin
	}
	return s.opts.DelayMin + time.Duration(s.rand.Int63n(int64(span)))
}

func blockKey(idProduct int) string {
	return fmt.Sprintf("scrape_block:%d", idProduct)
}

func (s *Scraper) markBlocked(idProduct int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(blockKey(idProduct), []byte("blocked"), s.opts.BlockCooldown); err != nil {
		s.log.Debug().Err(err).Int("idProduct", idProduct).Msg("Failed to record block cooldown")
	}
}

func (s *Scraper) isBlocked(idProduct int) bool {
	if s.cache == nil {
		return false
	}
	_, err := s.cache.Get(blockKey(idProduct))
	return err == nil
}
