// Package refresh implements the Refresh Loop (C5): a background task that
// periodically iterates the Audience-Keyed Cache's key set, re-invokes the
// Upstream Fetcher for each, and replaces entries whose serialized payload
// differs. The ticker/select/ctx.Done shape is grounded on the cache
// daemon's scheduler loop.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/contile/contile/internal/admclient"
	"github.com/contile/contile/internal/audience"
	"github.com/contile/contile/internal/events"
	"github.com/contile/contile/internal/metrics"
	"github.com/contile/contile/internal/tilecache"
	"github.com/contile/contile/internal/tilevalidate"
)

// Loop owns the ticker goroutine. Start is idempotent-unsafe by design
// (callers start it exactly once, like the teacher's scheduler). There is
// no Stop method: cancelling the context passed to Start stops the loop.
type Loop struct {
	cache      *tilecache.Cache
	fetcher    *admclient.Fetcher
	tickEvery  time.Duration
	ttl        time.Duration
	jitter     float64
	metrics    metrics.Collector
	reporter   events.Reporter
	logger     *zap.Logger
}

func New(cache *tilecache.Cache, fetcher *admclient.Fetcher, tickEvery, ttl time.Duration, jitter float64, m metrics.Collector, reporter events.Reporter, logger *zap.Logger) *Loop {
	if m == nil {
		m = metrics.Noop{}
	}
	if reporter == nil {
		reporter = events.NoopReporter{}
	}
	return &Loop{
		cache:     cache,
		fetcher:   fetcher,
		tickEvery: tickEvery,
		ttl:       ttl,
		jitter:    jitter,
		metrics:   m,
		reporter:  reporter,
		logger:    logger,
	}
}

// Start runs the tick loop until ctx is cancelled. It recovers from a
// panic in a single tick's processing so one bad iteration never kills the
// whole loop — the teacher's scheduler has no equivalent guard since it
// never calls into arbitrary upstream code per tick; Contile's C3 call is
// exactly that, so the recover is load-bearing here.
func (l *Loop) Start(ctx context.Context) {
	ticker := time.NewTicker(l.tickEvery)
	defer ticker.Stop()

	l.logger.Info("refresh loop started", zap.Duration("tick_interval", l.tickEvery))

	tickCount := 0
	for {
		select {
		case <-ticker.C:
			tickCount++
			l.safeTick(tickCount)
		case <-ctx.Done():
			l.logger.Info("refresh loop shutdown requested")
			return
		}
	}
}

func (l *Loop) safeTick(tickCount int) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("refresh tick panicked, continuing", zap.Any("recover", r))
		}
	}()

	keys := l.cache.Keys()
	for _, key := range keys {
		l.refreshOne(key)
	}

	if tickCount%10 == 0 {
		l.logger.Info("refresh loop status", zap.Int("tick", tickCount), zap.Int("cache_size", l.cache.Size()))
	}
}

func (l *Loop) refreshOne(key audience.Key) {
	tiles, err := l.fetcher.FetchTiles("refresh-"+requestLabel(key), key, "")
	if err != nil {
		l.metrics.IncrCacheUpdaterError()
		l.reporter.Report(events.Event{
			Kind:      "refresh_failed",
			Message:   err.Error(),
			CreatedAt: time.Now(),
			Tags:      events.Tags{"country": key.Country, "form_factor": string(key.FormFactor)},
		})
		return
	}

	payload, marshalErr := json.Marshal(tilesResponse{Tiles: tiles})
	if marshalErr != nil {
		l.metrics.IncrCacheUpdaterError()
		l.logger.Error("refresh: could not marshal tiles", zap.Error(marshalErr))
		return
	}

	existing, ok := l.cache.Get(key)
	if ok && bytes.Equal(existing.Payload, payload) {
		return
	}

	l.cache.Insert(key, tilecache.Entry{Payload: payload, CreatedAt: time.Now(), TTL: l.ttl})
	l.metrics.IncrCacheUpdaterUpdate()
}

type tilesResponse struct {
	Tiles []tilevalidate.OutputTile `json:"tiles"`
}

// requestLabel derives a short, deterministic correlation id for a
// refresh-triggered fetch from its audience key, so repeated refreshes of
// the same key are easy to grep together across log lines without leaking
// anything beyond the already-coarse audience fields.
func requestLabel(key audience.Key) string {
	h := xxhash.New()
	h.WriteString(key.Country)
	h.WriteString(key.Region)
	h.WriteString(string(key.FormFactor))
	h.WriteString(string(key.OSFamily))
	return strconv.FormatUint(h.Sum64(), 16)
}
