package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cardpricer/worker/logger"
	apperr "cardpricer/worker/pkg/errors"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// PageResult is what one rendered page visit produced. HTML is only
// populated for a 200 response.
type PageResult struct {
	Status int
	HTML   string
}

// Browser is the rendering boundary the scraper drives. It owns at most one
// live browser at a time; forcing a new session moves to the next proxy.
type Browser interface {
	Ensure(ctx context.Context, forceNew bool) error
	Visit(ctx context.Context, url string) (*PageResult, error)
	Shutdown()
	ProxyCount() int
}

// ChromeBrowser runs a headless Chrome through chromedp. Launch flags carry
// the current proxy, so rotating means tearing the browser down and
// launching a fresh one.
type ChromeBrowser struct {
	rotator *Rotator
	log     *logger.Logger

	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	browserCtx  context.Context
	current     *Endpoint

	navTimeout     time.Duration
	productWait    time.Duration
	tableWait      time.Duration
	renderSettle   time.Duration
	overlayTimeout time.Duration
}

// NewChromeBrowser creates a browser manager over the given rotator
func NewChromeBrowser(rotator *Rotator) *ChromeBrowser {
	return &ChromeBrowser{
		rotator:        rotator,
		log:            logger.ForScraper(),
		navTimeout:     30 * time.Second,
		productWait:    10 * time.Second,
		tableWait:      20 * time.Second,
		renderSettle:   2 * time.Second,
		overlayTimeout: 5 * time.Second,
	}
}

// ProxyCount returns the number of configured proxies
func (b *ChromeBrowser) ProxyCount() int {
	return b.rotator.Len()
}

// Ensure makes a live browser available. An existing session is reused
// unless forceNew is set, which tears it down and launches through the next
// proxy in rotation.
func (b *ChromeBrowser) Ensure(ctx context.Context, forceNew bool) error {
	if b.browserCtx != nil && !forceNew {
		return nil
	}
	b.Shutdown()

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)

	b.current = b.rotator.Next()
	if b.current != nil {
		b.log.Info().Str("proxy", maskAddress(b.current.Address)).Msg("Launching browser through proxy")
		opts = append(opts, chromedp.ProxyServer(b.current.Address))
	} else {
		b.log.Info().Msg("Launching browser with direct egress")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// Launch eagerly so a broken Chrome install surfaces here, not mid-scrape
	if err := chromedp.Run(browserCtx); err != nil {
		ctxCancel()
		allocCancel()
		return apperr.NewNavigation("session", "browser launch failed", err)
	}

	b.allocCancel = allocCancel
	b.ctxCancel = ctxCancel
	b.browserCtx = browserCtx
	return nil
}

// Shutdown tears down the current browser. Safe to call repeatedly.
func (b *ChromeBrowser) Shutdown() {
	if b.ctxCancel != nil {
		b.ctxCancel()
		b.ctxCancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	b.browserCtx = nil
	b.current = nil
}

// Visit navigates a fresh tab to url and returns the navigation status plus
// the rendered HTML for a 200. The tab is closed on every exit path.
func (b *ChromeBrowser) Visit(ctx context.Context, url string) (*PageResult, error) {
	if b.browserCtx == nil {
		return nil, apperr.NewNavigation("session", "no active browser session", nil)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()

	navCtx, navCancel := context.WithTimeout(tabCtx, b.navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		}),
	); err != nil {
		return nil, apperr.NewNavigation("session", "tab setup failed", err)
	}

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, apperr.NewNavigation("session", fmt.Sprintf("navigation to %s failed", url), err)
	}
	if resp == nil {
		return nil, apperr.NewNavigation("session", "no navigation response for "+url, nil)
	}

	status := int(resp.Status)
	if status != http.StatusOK {
		return &PageResult{Status: status}, nil
	}

	// Let client-side rendering settle before touching the DOM
	_ = chromedp.Run(tabCtx, chromedp.Sleep(b.renderSettle))
	b.dismissOverlays(tabCtx)

	// Wait timeouts are non-fatal: extraction runs against whatever loaded
	b.waitQuiet(tabCtx, `h1, .product-name, [class*="Product"]`, b.productWait)
	b.waitQuiet(tabCtx, `table.table tbody tr, .article-table tbody tr, [data-article-id]`, b.tableWait)

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, apperr.NewNavigation("session", "failed to capture rendered page", err)
	}
	return &PageResult{Status: status, HTML: html}, nil
}

// waitQuiet waits for a selector with its own deadline, logging instead of
// failing on timeout
func (b *ChromeBrowser) waitQuiet(ctx context.Context, selector string, timeout time.Duration) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		b.log.Debug().Str("selector", selector).Msg("Timed out waiting for selector, continuing")
	}
}

const dismissOverlaysJS = `(() => {
	const clickable = [...document.querySelectorAll('button, a')].find((el) => {
		const text = (el.textContent || '').toLowerCase();
		const id = (el.id || '').toLowerCase();
		const cls = (typeof el.className === 'string' ? el.className : '').toLowerCase();
		return text.includes('accept') || text.includes('agree') ||
			id.includes('accept') || id.includes('agree') ||
			cls.includes('accept') || cls.includes('agree');
	});
	if (clickable) {
		clickable.click();
		return true;
	}
	document.querySelectorAll('[class*="cookie"], [id*="cookie"], [class*="consent"], [id*="consent"]')
		.forEach((el) => { el.style.display = 'none'; });
	return false;
})()`

// dismissOverlays clicks away or hides consent banners. Best effort only.
func (b *ChromeBrowser) dismissOverlays(ctx context.Context) {
	overlayCtx, cancel := context.WithTimeout(ctx, b.overlayTimeout)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(overlayCtx, chromedp.Evaluate(dismissOverlaysJS, &clicked)); err != nil {
		b.log.Debug().Err(err).Msg("Consent overlay handling skipped")
		return
	}
	if clicked {
		_ = chromedp.Run(ctx, chromedp.Sleep(time.Second))
	}
}
