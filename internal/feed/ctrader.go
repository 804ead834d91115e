package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cardpricer/worker/helpers"
	"cardpricer/worker/internal/model"
	"cardpricer/worker/logger"
	apperr "cardpricer/worker/pkg/errors"
)

const externalCatalogBase = "https://cardtrader.com"

// BlueprintStore is the storage surface the cross-reference sync needs
type BlueprintStore interface {
	Expansions(ctx context.Context) ([]model.Expansion, error)
	UpsertBlueprints(ctx context.Context, blueprints []model.Blueprint) error
}

// blueprintItem mirrors the export endpoint's JSON
type blueprintItem struct {
	ID              int            `json:"id"`
	Name            string         `json:"name"`
	Version         string         `json:"version"`
	GameID          int            `json:"game_id"`
	CardMarketIDs   []int          `json:"card_market_ids"`
	TCGPlayerID     int            `json:"tcg_player_id"`
	FixedProperties map[string]any `json:"fixed_properties"`
	Image           struct {
		URL     string `json:"url"`
		Preview struct {
			URL string `json:"url"`
		} `json:"preview"`
	} `json:"image"`
}

// CTraderClient pulls the external catalog's blueprint export, one page per
// expansion, and refreshes the cross-reference collection. A fixed delay
// between requests keeps the client under the endpoint's request quota.
type CTraderClient struct {
	baseURL string
	token   string
	store   BlueprintStore
	delay   time.Duration
	sleep   func(time.Duration)
	log     *logger.Logger
}

// NewCTraderClient creates a cross-reference catalog client
func NewCTraderClient(baseURL, token string, store BlueprintStore) *CTraderClient {
	return &CTraderClient{
		baseURL: baseURL,
		token:   token,
		store:   store,
		delay:   60 * time.Millisecond,
		sleep:   time.Sleep,
		log:     logger.ForFeed("ctrader"),
	}
}

// FetchBlueprints downloads the export page for one expansion
func (c *CTraderClient) FetchBlueprints(ctx context.Context, expansion model.Expansion) ([]model.Blueprint, error) {
	if c.baseURL == "" {
		return nil, apperr.NewConfiguration("CTRADER_API_URL is not configured", nil)
	}
	if c.token == "" {
		return nil, apperr.NewConfiguration("CTRADER_TOKEN is not configured", nil)
	}

	url := fmt.Sprintf("%s?expansion_id=%d", c.baseURL, expansion.ID)

	var items []blueprintItem
	if err := helpers.FetchJSONAuth(ctx, url, c.token, &items); err != nil {
		return nil, apperr.NewFetch("ctrader", fmt.Sprintf("blueprint export failed for expansion %d", expansion.ID), err)
	}

	blueprints := make([]model.Blueprint, 0, len(items))
	for _, item := range items {
		blueprints = append(blueprints, model.Blueprint{
			ID:              item.ID,
			Name:            item.Name,
			Version:         item.Version,
			GameID:          item.GameID,
			ExpansionID:     expansion.ID,
			CardMarketIDs:   item.CardMarketIDs,
			TCGPlayerID:     item.TCGPlayerID,
			FixedProperties: item.FixedProperties,
			BigImage:        absoluteImageURL(item.Image.URL),
			SmallImage:      absoluteImageURL(item.Image.Preview.URL),
		})
	}
	return blueprints, nil
}

// SyncAll walks every known expansion and refreshes the cross-reference
// collection. A failed expansion is logged and skipped; the remaining
// pages still sync. Returns the number of blueprints upserted.
func (c *CTraderClient) SyncAll(ctx context.Context) (int, error) {
	expansions, err := c.store.Expansions(ctx)
	if err != nil {
		return 0, err
	}
	if len(expansions) == 0 {
		c.log.Warn().Msg("No expansions stored, nothing to sync")
		return 0, nil
	}

	var all []model.Blueprint
	for i, exp := range expansions {
		blueprints, err := c.FetchBlueprints(ctx, exp)
		if err != nil {
			c.log.Warn().Err(err).Int("expansion", exp.ID).Msg("Skipping expansion")
		} else {
			all = append(all, blueprints...)
		}
		if i < len(expansions)-1 {
			c.sleep(c.delay)
		}
	}

	if err := c.store.UpsertBlueprints(ctx, all); err != nil {
		return 0, err
	}
	c.log.Info().Int("expansions", len(expansions)).Int("blueprints", len(all)).Msg("Cross-reference sync complete")
	return len(all), nil
}

// absoluteImageURL prefixes catalog-relative image paths with the external
// catalog host
func absoluteImageURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return externalCatalogBase + path
}
