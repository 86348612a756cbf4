// Package catalog maps canonical item names to per-source identifiers. Items
// are created once and only ever updated to attach a Buff goods id.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"csgo-arbitrage/internal/models"
)

var (
	ErrEmptyName       = errors.New("catalog: market_hash_name is empty")
	ErrGoodsIDConflict = errors.New("catalog: item already has a different buff goods id")
)

const defaultAppID = 730

type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	GetItem(ctx context.Context, itemID uint) (*models.Item, error)
	GetItemByName(ctx context.Context, name string) (*models.Item, error)
	GetOrCreateItem(ctx context.Context, item *models.Item) (created bool, err error)
	AttachBuffGoodsID(ctx context.Context, itemID uint, goodsID int64) error
}

type Catalog struct {
	store   Store
	log     *zap.Logger
	tracked map[string]struct{}
}

type Option func(*Catalog)

// WithTracked limits Items to the given market hash names. An empty list
// tracks the whole catalog.
func WithTracked(names []string) Option {
	return func(c *Catalog) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				if c.tracked == nil {
					c.tracked = make(map[string]struct{}, len(names))
				}
				c.tracked[n] = struct{}{}
			}
		}
	}
}

func New(store Store, log *zap.Logger, opts ...Option) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{store: store, log: log.Named("catalog")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Items returns every tracked item ordered by id.
func (c *Catalog) Items(ctx context.Context) ([]models.Item, error) {
	items, err := c.store.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if len(c.tracked) == 0 {
		return items, nil
	}

	out := items[:0]
	seen := make(map[string]struct{}, len(c.tracked))
	for _, it := range items {
		if _, ok := c.tracked[it.MarketHashName]; ok {
			out = append(out, it)
			seen[it.MarketHashName] = struct{}{}
		}
	}
	for name := range c.tracked {
		if _, ok := seen[name]; !ok {
			c.log.Warn("tracked item not in catalog", zap.String("name", name))
		}
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, itemID uint) (*models.Item, error) {
	return c.store.GetItem(ctx, itemID)
}

// Lookup finds an item by its market hash name.
func (c *Catalog) Lookup(ctx context.Context, name string) (*models.Item, error) {
	return c.store.GetItemByName(ctx, strings.TrimSpace(name))
}

// Add registers name if it is not tracked yet. An existing item is returned
// unchanged apart from attaching goodsID when it has none.
func (c *Catalog) Add(ctx context.Context, name string, goodsID *int64, appID int) (*models.Item, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, ErrEmptyName
	}
	if appID == 0 {
		appID = defaultAppID
	}
	item := &models.Item{MarketHashName: name, BuffGoodsID: goodsID, AppID: appID}
	created, err := c.store.GetOrCreateItem(ctx, item)
	if err != nil {
		return nil, false, fmt.Errorf("get or create %q: %w", name, err)
	}
	if created {
		c.log.Info("item added", zap.Uint("item_id", item.ItemID), zap.String("name", name))
		return item, true, nil
	}
	if goodsID != nil {
		if err := c.AttachBuffGoodsID(ctx, item, *goodsID); err != nil {
			return item, false, err
		}
	}
	return item, false, nil
}

// AttachBuffGoodsID records a discovered goods id on item. Re-attaching the
// same id is a no-op; a different id is rejected.
func (c *Catalog) AttachBuffGoodsID(ctx context.Context, item *models.Item, goodsID int64) error {
	if item.BuffGoodsID != nil {
		if *item.BuffGoodsID == goodsID {
			return nil
		}
		return fmt.Errorf("%w: item %d has %d, got %d", ErrGoodsIDConflict, item.ItemID, *item.BuffGoodsID, goodsID)
	}
	if err := c.store.AttachBuffGoodsID(ctx, item.ItemID, goodsID); err != nil {
		return fmt.Errorf("attach goods id to item %d: %w", item.ItemID, err)
	}
	item.BuffGoodsID = &goodsID
	c.log.Info("buff goods id attached", zap.Uint("item_id", item.ItemID), zap.Int64("goods_id", goodsID))
	return nil
}

// ParseSeed splits "NAME[:GOODS_ID]". A trailing part that is not a positive
// integer stays in the name.
func ParseSeed(spec string) (string, *int64, error) {
	spec = strings.TrimSpace(spec)
	name := spec
	var goodsID *int64
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		if id, err := strconv.ParseInt(strings.TrimSpace(spec[i+1:]), 10, 64); err == nil && id > 0 {
			name = strings.TrimSpace(spec[:i])
			goodsID = &id
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrEmptyName, spec)
	}
	return name, goodsID, nil
}

// Seed adds every "NAME[:GOODS_ID]" spec through Add.
func (c *Catalog) Seed(ctx context.Context, specs []string, appID int) ([]models.Item, error) {
	items := make([]models.Item, 0, len(specs))
	for _, spec := range specs {
		name, goodsID, err := ParseSeed(spec)
		if err != nil {
			return items, err
		}
		item, _, err := c.Add(ctx, name, goodsID, appID)
		if err != nil {
			return items, err
		}
		items = append(items, *item)
	}
	return items, nil
}
