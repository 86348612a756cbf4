package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"csgo-arbitrage/internal/models"
)

type snapshotKey struct {
	itemID uint
	ts     int64
}

type depthKey struct {
	snapshotID uint64
	source     models.Source
	side       models.Side
	rank       int
}

// Memory is an in-process Store with the same uniqueness rules as the SQL
// schema. Returned values are copies.
type Memory struct {
	mu sync.RWMutex

	items      map[uint]models.Item
	itemByName map[string]uint
	steam      map[snapshotKey]models.SteamSnapshot
	buff       map[snapshotKey]models.BuffSnapshot
	depth      map[depthKey]models.BookDepth
	fetchLogs  []models.FetchLog
	candidates []models.TradeCandidate

	nextItemID uint
	nextSnapID uint64
	nextRowID  uint64
}

func NewMemory() *Memory {
	return &Memory{
		items:      make(map[uint]models.Item),
		itemByName: make(map[string]uint),
		steam:      make(map[snapshotKey]models.SteamSnapshot),
		buff:       make(map[snapshotKey]models.BuffSnapshot),
		depth:      make(map[depthKey]models.BookDepth),
	}
}

func (m *Memory) ListItems(_ context.Context) ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *Memory) GetItem(_ context.Context, itemID uint) (*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (m *Memory) GetItemByName(_ context.Context, name string) (*models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.itemByName[name]
	if !ok {
		return nil, ErrNotFound
	}
	it := m.items[id]
	return &it, nil
}

func (m *Memory) GetOrCreateItem(_ context.Context, item *models.Item) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.itemByName[item.MarketHashName]; ok {
		*item = m.items[id]
		return false, nil
	}
	m.nextItemID++
	now := time.Now().UTC()
	item.ItemID = m.nextItemID
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.AppID == 0 {
		item.AppID = 730
	}
	m.items[item.ItemID] = *item
	m.itemByName[item.MarketHashName] = item.ItemID
	return true, nil
}

func (m *Memory) AttachBuffGoodsID(_ context.Context, itemID uint, goodsID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return ErrNotFound
	}
	it.BuffGoodsID = &goodsID
	it.UpdatedAt = time.Now().UTC()
	m.items[itemID] = it
	return nil
}

func (m *Memory) InsertSteamSnapshot(_ context.Context, snap *models.SteamSnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snapshotKey{itemID: snap.ItemID, ts: snap.Timestamp.UnixNano()}
	if _, dup := m.steam[key]; dup {
		return false, nil
	}
	m.nextSnapID++
	snap.SnapshotID = m.nextSnapID
	m.steam[key] = *snap
	return true, nil
}

func (m *Memory) InsertBuffSnapshot(_ context.Context, snap *models.BuffSnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snapshotKey{itemID: snap.ItemID, ts: snap.Timestamp.UnixNano()}
	if _, dup := m.buff[key]; dup {
		return false, nil
	}
	m.nextSnapID++
	snap.SnapshotID = m.nextSnapID
	m.buff[key] = *snap
	return true, nil
}

func (m *Memory) LatestSteamSnapshot(_ context.Context, itemID uint) (*models.SteamSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.SteamSnapshot
	for k, s := range m.steam {
		if k.itemID != itemID {
			continue
		}
		if latest == nil || s.Timestamp.After(latest.Timestamp) {
			cp := s
			latest = &cp
		}
	}
	return latest, nil
}

func (m *Memory) LatestBuffSnapshot(_ context.Context, itemID uint) (*models.BuffSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.BuffSnapshot
	for k, s := range m.buff {
		if k.itemID != itemID {
			continue
		}
		if latest == nil || s.Timestamp.After(latest.Timestamp) {
			cp := s
			latest = &cp
		}
	}
	return latest, nil
}

func (m *Memory) SteamHistory(_ context.Context, itemID uint, since time.Time) ([]models.SteamSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SteamSnapshot
	for k, s := range m.steam {
		if k.itemID == itemID && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) BuffHistory(_ context.Context, itemID uint, since time.Time) ([]models.BuffSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BuffSnapshot
	for k, s := range m.buff {
		if k.itemID == itemID && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) InsertDepth(_ context.Context, rows []models.BookDepth) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range rows {
		key := depthKey{snapshotID: r.SnapshotID, source: r.Source, side: r.Side, rank: r.OrderRank}
		if _, dup := m.depth[key]; dup {
			continue
		}
		m.nextRowID++
		r.DepthID = m.nextRowID
		m.depth[key] = r
		n++
	}
	return n, nil
}

// Depth returns the stored levels of one snapshot ordered by side then rank.
func (m *Memory) Depth(snapshotID uint64, source models.Source) []models.BookDepth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.BookDepth
	for k, r := range m.depth {
		if k.snapshotID == snapshotID && k.source == source {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Side != out[j].Side {
			return out[i].Side < out[j].Side
		}
		return out[i].OrderRank < out[j].OrderRank
	})
	return out
}

func (m *Memory) InsertFetchLog(_ context.Context, entry *models.FetchLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRowID++
	entry.LogID = m.nextRowID
	m.fetchLogs = append(m.fetchLogs, *entry)
	return nil
}

// FetchLogs returns every recorded attempt in insertion order.
func (m *Memory) FetchLogs() []models.FetchLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.FetchLog(nil), m.fetchLogs...)
}

func (m *Memory) FetchLogSummary(_ context.Context, since time.Time) ([]FetchLogStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySource := make(map[models.Source]*FetchLogStat)
	latency := make(map[models.Source]int64)
	for _, l := range m.fetchLogs {
		if l.Timestamp.Before(since) {
			continue
		}
		st, ok := bySource[l.Source]
		if !ok {
			st = &FetchLogStat{Source: l.Source}
			bySource[l.Source] = st
		}
		st.Total++
		if l.Success {
			st.Successes++
		} else {
			st.Failures++
		}
		latency[l.Source] += l.LatencyMs
	}
	out := make([]FetchLogStat, 0, len(bySource))
	for src, st := range bySource {
		st.AvgLatencyMs = float64(latency[src]) / float64(st.Total)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (m *Memory) InsertCandidate(_ context.Context, c *models.TradeCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRowID++
	c.CandidateID = m.nextRowID
	m.candidates = append(m.candidates, *c)
	return nil
}

// Candidates returns every stored candidate in insertion order.
func (m *Memory) Candidates() []models.TradeCandidate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TradeCandidate(nil), m.candidates...)
}

func (m *Memory) LatestCandidates(_ context.Context, filter CandidateFilter) ([]models.TradeCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := make(map[uint]models.TradeCandidate)
	for _, c := range m.candidates {
		prev, ok := latest[c.ItemID]
		if !ok || !c.Timestamp.Before(prev.Timestamp) {
			latest[c.ItemID] = c
		}
	}
	out := make([]models.TradeCandidate, 0, len(latest))
	for _, c := range latest {
		if filter.Action != "" && c.RecommendedAction != filter.Action {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PnLNow > out[j].PnLNow })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SnapshotCounts reports how many snapshot rows exist per source.
func (m *Memory) SnapshotCounts() (steam, buff int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steam), len(m.buff)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*GormStore)(nil)
)
