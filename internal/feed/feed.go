package feed

import (
	"context"

	"cardpricer/worker/helpers"
	"cardpricer/worker/internal/model"
	"cardpricer/worker/logger"
	apperr "cardpricer/worker/pkg/errors"
)

type productsEnvelope struct {
	Products []model.Product `json:"products"`
}

type pricesEnvelope struct {
	PriceGuides []model.PriceEntry `json:"priceGuides"`
}

// Client downloads the marketplace bulk feeds. Each feed is a single JSON
// document with an envelope around the payload array. There is no retry
// here: a failed download fails the ingestion run.
type Client struct {
	productsURL string
	pricesURL   string
	log         *logger.Logger
}

// NewClient creates a bulk feed client
func NewClient(productsURL, pricesURL string) *Client {
	return &Client{
		productsURL: productsURL,
		pricesURL:   pricesURL,
		log:         logger.ForFeed("bulk"),
	}
}

// FetchProducts downloads the product catalog feed
func (c *Client) FetchProducts(ctx context.Context) ([]model.Product, error) {
	if c.productsURL == "" {
		return nil, apperr.NewConfiguration("PRODUCTS_URL is not configured", nil)
	}

	var env productsEnvelope
	if err := helpers.FetchJSON(ctx, c.productsURL, &env); err != nil {
		return nil, apperr.NewFetch("products", "product feed download failed", err)
	}
	if env.Products == nil {
		return nil, apperr.NewFetch("products", "feed body is missing the products array", nil)
	}

	c.log.Info().Int("count", len(env.Products)).Msg("Downloaded product feed")
	return env.Products, nil
}

// FetchPriceGuide downloads the price guide feed
func (c *Client) FetchPriceGuide(ctx context.Context) ([]model.PriceEntry, error) {
	if c.pricesURL == "" {
		return nil, apperr.NewConfiguration("PRICES_URL is not configured", nil)
	}

	var env pricesEnvelope
	if err := helpers.FetchJSON(ctx, c.pricesURL, &env); err != nil {
		return nil, apperr.NewFetch("prices", "price guide download failed", err)
	}
	if env.PriceGuides == nil {
		return nil, apperr.NewFetch("prices", "feed body is missing the priceGuides array", nil)
	}

	c.log.Info().Int("count", len(env.PriceGuides)).Msg("Downloaded price guide feed")
	return env.PriceGuides, nil
}
