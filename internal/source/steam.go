package source

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/ratelimit"
)

const steamPriceOverviewPath = "/market/priceoverview/"

// SteamPriceOverview is the priceoverview response. Prices are locale
// formatted strings ("$12.34", "10,50€"); any of them may be missing.
type SteamPriceOverview struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	Volume      string `json:"volume"`
	MedianPrice string `json:"median_price"`
}

// SteamClient Primary 市场客户端
type SteamClient struct {
	base
	appID      int
	currencyID int
}

func NewSteamClient(cfg config.SteamConfig, limiter ratelimit.Admitter, maxWait time.Duration, rec Recorder, opts ...Option) *SteamClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept", "application/json")

	c := &SteamClient{
		base: base{
			source:  models.SourceSteam,
			http:    client,
			limiter: limiter,
			maxWait: maxWait,
			rec:     rec,
			now:     time.Now,
		},
		appID:      cfg.AppID,
		currencyID: cfg.CurrencyID,
	}
	for _, opt := range opts {
		opt(&c.base)
	}
	return c
}

func (c *SteamClient) Source() models.Source { return models.SourceSteam }

// CurrencyID is the Steam currency code requested for every price.
func (c *SteamClient) CurrencyID() int { return c.currencyID }

// Fetch calls priceoverview for the item's market hash name.
func (c *SteamClient) Fetch(ctx context.Context, item models.Item) (*RawPayload, error) {
	appID := c.appID
	if item.AppID != 0 {
		appID = item.AppID
	}
	params := map[string]string{
		"appid":            strconv.Itoa(appID),
		"currency":         strconv.Itoa(c.currencyID),
		"market_hash_name": item.MarketHashName,
	}

	var (
		overview SteamPriceOverview
		body     []byte
	)
	fetchedAt, err := c.call(ctx, steamPriceOverviewPath, params, itemRef(item), func(b []byte) error {
		if err := json.Unmarshal(b, &overview); err != nil {
			return err
		}
		if !overview.Success {
			return errors.New("priceoverview returned success=false")
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &RawPayload{
		Source:    models.SourceSteam,
		ItemID:    item.ItemID,
		FetchedAt: fetchedAt,
		Body:      json.RawMessage(body),
		Steam:     &overview,
	}, nil
}
