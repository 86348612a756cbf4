// Package pipeline drives polling and evaluation cycles over the catalog.
//
// Each item is processed Buff first, then Steam, then evaluated, by a single
// goroutine. A failure is contained to the item it happened on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"csgo-arbitrage/internal/depth"
	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/normalize"
	"csgo-arbitrage/internal/source"
)

type Catalog interface {
	Items(ctx context.Context) ([]models.Item, error)
	AttachBuffGoodsID(ctx context.Context, item *models.Item, goodsID int64) error
}

// GoodsIDFinder resolves a Buff goods id from a market hash name.
type GoodsIDFinder interface {
	SearchGoodsID(ctx context.Context, item models.Item) (int64, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, item models.Item, raw *source.RawPayload, ts time.Time) (*normalize.Snapshot, error)
}

type DepthRecorder interface {
	Record(ctx context.Context, snapshotID uint64, src models.Source, ts time.Time, levels iter.Seq[depth.Level]) depth.Result
}

type Evaluator interface {
	Evaluate(ctx context.Context, item models.Item) (*models.TradeCandidate, error)
}

// Publisher receives cycle events for the live feed.
type Publisher interface {
	Publish(kind string, payload any)
}

const (
	EventCandidate    = "candidate"
	EventCycleSummary = "cycle_summary"
)

// Deps are the collaborators of a Scheduler. Finder, Depth and Publisher
// are optional.
type Deps struct {
	Catalog    Catalog
	Buff       source.Client
	Steam      source.Client
	Finder     GoodsIDFinder
	Normalizer Normalizer
	Depth      DepthRecorder
	Evaluator  Evaluator
	Publisher  Publisher
}

type Option func(*Scheduler)

func WithRetry(r Retry) Option { return func(s *Scheduler) { s.retry = r } }

// WithWorkers bounds how many items are processed concurrently.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithSleep replaces the context-aware sleep used for backoff and between cycles.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithLogger sets the scheduler logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log.Named("scheduler")
		}
	}
}

type Scheduler struct {
	deps    Deps
	retry   Retry
	workers int
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	log     *zap.Logger

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(deps Deps, opts ...Option) *Scheduler {
	s := &Scheduler{
		deps:    deps,
		retry:   DefaultRetry(),
		workers: 1,
		now:     time.Now,
		sleep:   sleepContext,
		log:     zap.NewNop(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stop asks the scheduler to finish the in-flight items and return. It never
// cancels a request mid-flight.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

func (s *Scheduler) Stopped() bool { return s.stopped.Load() }

// SourceStats counts per-item outcomes for one source.
type SourceStats struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Summary describes one cycle.
type Summary struct {
	CycleID     string                `json:"cycle_id"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
	Items       int                   `json:"items"`
	Processed   int                   `json:"processed"`
	Buff        SourceStats           `json:"buff"`
	Steam       SourceStats           `json:"steam"`
	Evaluation  SourceStats           `json:"evaluation"`
	Actions     map[models.Action]int `json:"actions"`
	DepthRows   int                   `json:"depth_rows"`
	Interrupted bool                  `json:"interrupted"`
}

func (s Summary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (st *SourceStats) add(o outcome) {
	switch o {
	case outcomeSucceeded:
		st.Succeeded++
	case outcomeSkipped:
		st.Skipped++
	case outcomeFailed:
		st.Failed++
	}
}

type itemResult struct {
	buff, steam, eval outcome
	action            models.Action
	depthRows         int
}

// RunOnce performs one pass over the catalog. The error is non-nil only when
// the catalog itself cannot be read.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	sum := Summary{
		CycleID:   uuid.NewString(),
		StartedAt: s.now(),
		Actions:   make(map[models.Action]int),
	}
	log := s.log.With(zap.String("cycle_id", sum.CycleID))

	items, err := s.deps.Catalog.Items(ctx)
	if err != nil {
		return sum, fmt.Errorf("load catalog: %w", err)
	}
	sum.Items = len(items)
	log.Info("cycle started", zap.Int("items", len(items)), zap.Int("workers", s.workers))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.workers)
	halted := func() bool {
		if !s.Stopped() && ctx.Err() == nil {
			return false
		}
		mu.Lock()
		sum.Interrupted = true
		mu.Unlock()
		return true
	}
	for _, item := range items {
		if halted() {
			break
		}
		// Go blocks until a worker is free, so the stop flag is checked
		// again once the item actually gets a slot.
		g.Go(func() error {
			if halted() {
				return nil
			}
			res := s.processItem(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			sum.Processed++
			sum.Buff.add(res.buff)
			sum.Steam.add(res.steam)
			sum.Evaluation.add(res.eval)
			sum.DepthRows += res.depthRows
			if res.eval == outcomeSucceeded {
				sum.Actions[res.action]++
			}
			return nil
		})
	}
	_ = g.Wait()

	sum.FinishedAt = s.now()
	metrics.CycleDuration.Observe(sum.Duration().Seconds())
	log.Info("cycle finished",
		zap.Int("items", sum.Items),
		zap.Int("processed", sum.Processed),
		zap.Any("buff", sum.Buff),
		zap.Any("steam", sum.Steam),
		zap.Any("evaluation", sum.Evaluation),
		zap.Any("actions", sum.Actions),
		zap.Duration("took", sum.Duration()),
		zap.Bool("interrupted", sum.Interrupted))
	s.publish(EventCycleSummary, sum)
	return sum, nil
}

// Run repeats RunOnce every interval until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("pipeline: interval must be positive")
	}
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("cycle failed", zap.Error(err))
		}
		if s.Stopped() {
			return nil
		}
		s.log.Info("sleeping until next cycle", zap.Duration("interval", interval))
		if err := s.wait(ctx, interval); err != nil {
			return err
		}
		if s.Stopped() {
			return nil
		}
	}
}

// RunCron runs a cycle on every tick of spec until ctx is done or Stop is called.
func (s *Scheduler) RunCron(ctx context.Context, spec string) error {
	runner := NewCronRunner(s.log, ctx)
	if _, err := runner.Add(spec, func(ctx context.Context) {
		if s.Stopped() {
			return
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}
	runner.Start()
	defer runner.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return nil
	}
}

// wait sleeps for d, returning early on Stop.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()
	err := s.sleep(waitCtx, d)
	if err != nil && ctx.Err() == nil {
		return nil
	}
	return err
}

func (s *Scheduler) processItem(ctx context.Context, item models.Item) itemResult {
	log := s.log.With(zap.Uint("item_id", item.ItemID), zap.String("name", item.MarketHashName))
	var res itemResult

	res.buff, res.depthRows = s.collectBuff(ctx, log, &item)
	res.steam, _ = s.collect(ctx, log, item, s.deps.Steam)

	// The latest stored snapshot of a failed source belongs to an earlier
	// cycle, so the item sits this cycle out.
	if res.buff == outcomeFailed || res.steam == outcomeFailed {
		res.eval = outcomeSkipped
		log.Info("evaluation skipped after fetch failure")
		return res
	}

	c, err := s.deps.Evaluator.Evaluate(ctx, item)
	switch {
	case err != nil:
		res.eval = outcomeFailed
		metrics.ItemFailures.WithLabelValues("evaluate").Inc()
		log.Warn("evaluation failed", zap.Error(err))
	case c == nil:
		res.eval = outcomeSkipped
	default:
		res.eval = outcomeSucceeded
		res.action = c.RecommendedAction
		if c.RecommendedAction == models.ActionCandidate {
			s.publish(EventCandidate, c)
		}
	}
	return res
}

func (s *Scheduler) collectBuff(ctx context.Context, log *zap.Logger, item *models.Item) (outcome, int) {
	if s.deps.Buff == nil {
		return outcomeSkipped, 0
	}
	if item.BuffGoodsID == nil {
		if s.deps.Finder == nil {
			return outcomeSkipped, 0
		}
		if err := s.discoverGoodsID(ctx, item); err != nil {
			metrics.ItemFailures.WithLabelValues(models.SourceBuff.String()).Inc()
			log.Warn("buff goods id discovery failed", zap.Error(err))
			if errors.Is(err, source.ErrGoodsNotFound) {
				return outcomeSkipped, 0
			}
			return outcomeFailed, 0
		}
	}

	out, snap := s.collect(ctx, log, *item, s.deps.Buff)
	if out != outcomeSucceeded || s.deps.Depth == nil || !snap.Inserted || snap.raw == nil {
		return out, 0
	}
	r := s.deps.Depth.Record(ctx, snap.SnapshotID, models.SourceBuff, snap.Timestamp, depth.BuffLevels(snap.raw.Buff))
	return out, r.Written
}

func (s *Scheduler) discoverGoodsID(ctx context.Context, item *models.Item) error {
	var goodsID int64
	err := s.retry.Do(ctx, s.sleep, func(ctx context.Context) error {
		id, err := s.deps.Finder.SearchGoodsID(ctx, *item)
		goodsID = id
		return err
	})
	if err != nil {
		return err
	}
	return s.deps.Catalog.AttachBuffGoodsID(ctx, item, goodsID)
}

type collected struct {
	*normalize.Snapshot
	raw *source.RawPayload
}

// collect fetches with retry and normalizes one source for item.
func (s *Scheduler) collect(ctx context.Context, log *zap.Logger, item models.Item, c source.Client) (outcome, collected) {
	if c == nil {
		return outcomeSkipped, collected{}
	}
	src := c.Source()

	var raw *source.RawPayload
	err := s.retry.Do(ctx, s.sleep, func(ctx context.Context) error {
		p, err := c.Fetch(ctx, item)
		raw = p
		return err
	})
	if errors.Is(err, source.ErrNoGoodsID) {
		return outcomeSkipped, collected{}
	}
	if err != nil {
		metrics.ItemFailures.WithLabelValues(src.String()).Inc()
		log.Warn("fetch failed", zap.String("source", src.String()), zap.Error(err))
		return outcomeFailed, collected{}
	}

	ts := raw.FetchedAt
	if ts.IsZero() {
		ts = s.now()
	}
	snap, err := s.deps.Normalizer.Normalize(ctx, item, raw, ts)
	if err != nil {
		metrics.ItemFailures.WithLabelValues(src.String()).Inc()
		log.Warn("normalize failed", zap.String("source", src.String()), zap.Error(err))
		return outcomeFailed, collected{}
	}
	return outcomeSucceeded, collected{Snapshot: snap, raw: raw}
}

func (s *Scheduler) publish(kind string, payload any) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.Publish(kind, payload)
	}
}
