// Package fetchlog keeps the append-only record of every outbound market request.
package fetchlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"csgo-arbitrage/internal/metrics"
	"csgo-arbitrage/internal/models"
)

// Writer persists fetch log rows.
type Writer interface {
	InsertFetchLog(ctx context.Context, entry *models.FetchLog) error
}

// Attempt describes one outbound request and its outcome.
type Attempt struct {
	Source     models.Source
	Endpoint   string
	Started    time.Time
	Latency    time.Duration
	StatusCode int
	// Result is "ok" or the failure kind.
	Result string
	Err    error
	ItemID *uint
}

type Logger struct {
	w   Writer
	log *zap.Logger
}

func New(w Writer, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{w: w, log: log.Named("fetchlog")}
}

// Record stores the attempt. It runs even when ctx is already cancelled, and
// a storage failure is logged rather than returned.
func (l *Logger) Record(ctx context.Context, a Attempt) {
	entry := &models.FetchLog{
		Source:     a.Source,
		Endpoint:   a.Endpoint,
		Timestamp:  a.Started.UTC(),
		StatusCode: a.StatusCode,
		LatencyMs:  a.Latency.Milliseconds(),
		Success:    a.Err == nil,
		ItemID:     a.ItemID,
	}
	if a.Err != nil {
		entry.ErrorMessage = a.Err.Error()
	}
	result := a.Result
	if result == "" {
		result = "ok"
		if a.Err != nil {
			result = "error"
		}
	}

	metrics.FetchTotal.WithLabelValues(a.Source.String(), result).Inc()
	metrics.FetchLatency.WithLabelValues(a.Source.String()).Observe(a.Latency.Seconds())

	fields := []zap.Field{
		zap.String("source", a.Source.String()),
		zap.String("endpoint", a.Endpoint),
		zap.Int("status", a.StatusCode),
		zap.Duration("latency", a.Latency),
		zap.String("result", result),
	}
	if a.ItemID != nil {
		fields = append(fields, zap.Uint("item_id", *a.ItemID))
	}
	if a.Err != nil {
		l.log.Warn("fetch failed", append(fields, zap.Error(a.Err))...)
	} else {
		l.log.Debug("fetch ok", fields...)
	}

	if l.w == nil {
		return
	}
	if err := l.w.InsertFetchLog(context.WithoutCancel(ctx), entry); err != nil {
		l.log.Error("persist fetch log", append(fields, zap.Error(err))...)
	}
}
