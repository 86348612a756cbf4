package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/ratelimit"
)

const (
	buffSearchPath    = "/api/market/goods"
	buffSellOrderPath = "/api/market/goods/sell_order"
	buffBuyOrderPath  = "/api/market/goods/buy_order"

	// A sell page whose buy_order call failed is reused by a retry within this window.
	sellPageReuse = 30 * time.Second
)

// BuffOrder is one listing (sell_order) or purchase request (buy_order).
type BuffOrder struct {
	Price string `json:"price"`
	Num   int    `json:"num"`
}

// BuffOrderBook is the first page of both sides for one goods id.
type BuffOrderBook struct {
	GoodsID    int64       `json:"goods_id"`
	SellOrders []BuffOrder `json:"sell_orders"`
	BuyOrders  []BuffOrder `json:"buy_orders"`
	SellTotal  int         `json:"sell_total"`
	BuyTotal   int         `json:"buy_total"`
}

type buffEnvelope struct {
	Code string          `json:"code"`
	Msg  any             `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type buffOrderPage struct {
	Items      []BuffOrder `json:"items"`
	TotalCount int         `json:"total_count"`
}

type sellPage struct {
	page      buffOrderPage
	raw       json.RawMessage
	fetchedAt time.Time
}

type buffGoods struct {
	ID             int64  `json:"id"`
	MarketHashName string `json:"market_hash_name"`
	Name           string `json:"name"`
}

type buffGoodsPage struct {
	Items []buffGoods `json:"items"`
}

// BuffClient Secondary 市场客户端，所有请求都带会话 Cookie
type BuffClient struct {
	base
	game     string
	currency string

	mu      sync.Mutex
	pending map[int64]sellPage
}

func NewBuffClient(cfg config.BuffConfig, limiter ratelimit.Admitter, maxWait time.Duration, rec Recorder, opts ...Option) *BuffClient {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeaders(map[string]string{
		"User-Agent":       cfg.UserAgent,
		"Accept":           "application/json, text/plain, */*",
		"Referer":          strings.TrimRight(cfg.BaseURL, "/") + "/market/?game=" + cfg.Game,
		"X-Requested-With": "XMLHttpRequest",
		"Cookie":           cfg.Cookie,
	})

	c := &BuffClient{
		base: base{
			source:  models.SourceBuff,
			http:    client,
			limiter: limiter,
			maxWait: maxWait,
			rec:     rec,
			now:     time.Now,
		},
		game:     cfg.Game,
		currency: cfg.Currency,
		pending:  make(map[int64]sellPage),
	}
	for _, opt := range opts {
		opt(&c.base)
	}
	return c
}

func (c *BuffClient) Source() models.Source { return models.SourceBuff }

// Currency is the native currency of every Buff price.
func (c *BuffClient) Currency() string { return c.currency }

// Fetch reads the first page of sell and buy orders. Both requests must
// succeed; the payload timestamp is the start of the sell_order request.
// When only buy_order fails, a retry shortly after reuses the sell page
// instead of spending another request on it.
func (c *BuffClient) Fetch(ctx context.Context, item models.Item) (*RawPayload, error) {
	if item.BuffGoodsID == nil || *item.BuffGoodsID == 0 {
		return nil, ErrNoGoodsID
	}
	goodsID := *item.BuffGoodsID
	ref := itemRef(item)

	var buy buffOrderPage
	var buyRaw json.RawMessage

	sp, ok := c.takeSellPage(goodsID)
	if !ok {
		var err error
		sp.fetchedAt, err = c.call(ctx, buffSellOrderPath, map[string]string{
			"game":     c.game,
			"goods_id": strconv.FormatInt(goodsID, 10),
			"page_num": "1",
			"sort_by":  "default",
		}, ref, func(b []byte) error {
			raw, err := decodeBuff(b, &sp.page)
			sp.raw = raw
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	sell, sellRaw, fetchedAt := sp.page, sp.raw, sp.fetchedAt

	_, err := c.call(ctx, buffBuyOrderPath, map[string]string{
		"game":     c.game,
		"goods_id": strconv.FormatInt(goodsID, 10),
		"page_num": "1",
	}, ref, func(b []byte) error {
		raw, err := decodeBuff(b, &buy)
		buyRaw = raw
		return err
	})
	if err != nil {
		c.keepSellPage(goodsID, sp)
		return nil, err
	}

	body, err := json.Marshal(map[string]json.RawMessage{
		"sell_order": sellRaw,
		"buy_order":  buyRaw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode buff payload: %w", err)
	}

	return &RawPayload{
		Source:    models.SourceBuff,
		ItemID:    item.ItemID,
		FetchedAt: fetchedAt,
		Body:      body,
		Buff: &BuffOrderBook{
			GoodsID:    goodsID,
			SellOrders: sell.Items,
			BuyOrders:  buy.Items,
			SellTotal:  sell.TotalCount,
			BuyTotal:   buy.TotalCount,
		},
	}, nil
}

func (c *BuffClient) takeSellPage(goodsID int64) (sellPage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, ok := c.pending[goodsID]
	delete(c.pending, goodsID)
	if !ok || c.now().Sub(sp.fetchedAt) > sellPageReuse {
		return sellPage{}, false
	}
	return sp, true
}

func (c *BuffClient) keepSellPage(goodsID int64, sp sellPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[goodsID] = sp
}

// SearchGoodsID looks up the goods id for a market hash name. An exact name
// match wins; otherwise the best-selling hit is used.
func (c *BuffClient) SearchGoodsID(ctx context.Context, item models.Item) (int64, error) {
	var page buffGoodsPage
	_, err := c.call(ctx, buffSearchPath, map[string]string{
		"game":     c.game,
		"search":   item.MarketHashName,
		"page_num": "1",
		"sort_by":  "sell_num.desc",
	}, itemRef(item), func(b []byte) error {
		_, err := decodeBuff(b, &page)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(page.Items) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrGoodsNotFound, item.MarketHashName)
	}
	for _, g := range page.Items {
		if g.MarketHashName == item.MarketHashName {
			return g.ID, nil
		}
	}
	return page.Items[0].ID, nil
}

// decodeBuff unwraps {code, msg, data}. A non-OK code is a malformed
// response, except for login errors which surface as auth failures.
func decodeBuff(b []byte, into any) (json.RawMessage, error) {
	var env buffEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.Code != "OK" {
		if strings.Contains(strings.ToLower(env.Code), "login") {
			return nil, &loginRequiredError{code: env.Code}
		}
		return nil, fmt.Errorf("buff code %q: %v", env.Code, env.Msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("buff response without data")
	}
	if err := json.Unmarshal(env.Data, into); err != nil {
		return nil, fmt.Errorf("decode buff data: %w", err)
	}
	return json.RawMessage(b), nil
}

type loginRequiredError struct{ code string }

func (e *loginRequiredError) Error() string { return "buff session rejected: " + e.code }
