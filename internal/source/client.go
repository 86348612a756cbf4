// Package source wraps the HTTP surfaces of the two marketplaces.
//
// Every request waits for local admission, is classified into success or a
// typed FetchError, and is handed to the fetch logger before returning.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"csgo-arbitrage/internal/fetchlog"
	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
	"csgo-arbitrage/internal/ratelimit"
)

// RawPayload is a successfully fetched response. Body is kept verbatim for audit;
// the typed views carry the fields the normalizer maps.
type RawPayload struct {
	Source    models.Source
	ItemID    uint
	FetchedAt time.Time
	Body      json.RawMessage
	Steam     *SteamPriceOverview
	Buff      *BuffOrderBook
}

// Client fetches one item from one marketplace.
type Client interface {
	Source() models.Source
	Fetch(ctx context.Context, item models.Item) (*RawPayload, error)
}

// Recorder receives every attempt.
type Recorder interface {
	Record(ctx context.Context, a fetchlog.Attempt)
}

type base struct {
	source  models.Source
	http    *resty.Client
	limiter ratelimit.Admitter
	maxWait time.Duration
	rec     Recorder
	now     func() time.Time
}

type Option func(*base)

// WithClock replaces time.Now for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// call performs one GET. decode runs on a 200 body; its error means the
// response was malformed. The attempt is recorded exactly once.
func (b *base) call(ctx context.Context, endpoint string, params map[string]string, itemID *uint, decode func([]byte) error) (time.Time, error) {
	attempt := fetchlog.Attempt{
		Source:   b.source,
		Endpoint: endpoint,
		ItemID:   itemID,
	}

	waited, err := ratelimit.Wait(ctx, b.limiter, b.source, b.maxWait)
	metrics.RateLimitWait.WithLabelValues(b.source.String()).Observe(waited.Seconds())
	if err != nil {
		attempt.Started = b.now()
		fe := &FetchError{Kind: KindTimeout, Source: b.source, Endpoint: endpoint, Err: fmt.Errorf("rate limit admission: %w", err)}
		b.finish(ctx, &attempt, fe)
		return attempt.Started, fe
	}

	attempt.Started = b.now()
	start := time.Now()
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(endpoint)
	attempt.Latency = time.Since(start)

	if err != nil {
		kind := KindServerError
		if isTimeout(err) {
			kind = KindTimeout
		}
		fe := &FetchError{Kind: kind, Source: b.source, Endpoint: endpoint, Err: err}
		b.finish(ctx, &attempt, fe)
		return attempt.Started, fe
	}

	attempt.StatusCode = resp.StatusCode()
	if fe := b.classify(ctx, endpoint, resp); fe != nil {
		b.finish(ctx, &attempt, fe)
		return attempt.Started, fe
	}

	if err := decode(resp.Body()); err != nil {
		kind := KindMalformedResponse
		var lr *loginRequiredError
		if errors.As(err, &lr) {
			kind = KindAuthFailure
		}
		fe := &FetchError{Kind: kind, Source: b.source, Endpoint: endpoint, StatusCode: resp.StatusCode(), Err: err}
		b.finish(ctx, &attempt, fe)
		return attempt.Started, fe
	}

	b.finish(ctx, &attempt, nil)
	return attempt.Started, nil
}

func (b *base) classify(ctx context.Context, endpoint string, resp *resty.Response) *FetchError {
	status := resp.StatusCode()
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &FetchError{Kind: KindAuthFailure, Source: b.source, Endpoint: endpoint, StatusCode: status}
	case status == http.StatusTooManyRequests:
		b.limiter.Cooldown(ctx, b.source)
		return &FetchError{Kind: KindRateLimited, Source: b.source, Endpoint: endpoint, StatusCode: status}
	case status >= 500:
		return &FetchError{Kind: KindServerError, Source: b.source, Endpoint: endpoint, StatusCode: status}
	default:
		return &FetchError{Kind: KindServerError, Source: b.source, Endpoint: endpoint, StatusCode: status,
			Err: fmt.Errorf("unexpected status %s", http.StatusText(status))}
	}
}

func (b *base) finish(ctx context.Context, a *fetchlog.Attempt, fe *FetchError) {
	if fe != nil {
		a.Err = fe
		a.Result = fe.Kind.String()
	} else {
		a.Result = "ok"
	}
	if b.rec != nil {
		b.rec.Record(ctx, *a)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func itemRef(item models.Item) *uint {
	if item.ItemID == 0 {
		return nil
	}
	id := item.ItemID
	return &id
}
