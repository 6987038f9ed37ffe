package refresh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/contile/contile/internal/admclient"
	"github.com/contile/contile/internal/audience"
	"github.com/contile/contile/internal/events"
	"github.com/contile/contile/internal/metrics"
	"github.com/contile/contile/internal/tilecache"
	"github.com/contile/contile/internal/tilefilter"
	"github.com/contile/contile/internal/tilevalidate"
)

func TestLoopRefreshesStaleEntry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		host := r.Host
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tiles": []map[string]any{
				{
					"id":             calls,
					"name":           "acme",
					"advertiser_url": "https://" + host + "/ad",
					"click_url":      "https://" + host + "/click?aespFlag=1&ci=1&ctag=1&key=1&version=1",
					"image_url":      "https://" + host + "/img.png",
					"impression_url": "https://" + host + "/imp?id=1",
				},
			},
		})
	}))
	defer srv.Close()

	rs, err := tilefilter.Parse([]byte(`{"acme": {"advertiser_hosts": ["` + srv.Listener.Addr().String() + `"], "click_hosts": ["` + srv.Listener.Addr().String() + `"], "impression_hosts": ["` + srv.Listener.Addr().String() + `"]}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	validator := tilevalidate.NewValidator(rs, events.NoopReporter{}, nil)
	fetcher := admclient.New(admclient.Settings{
		EndpointURL:    srv.URL,
		MaxTiles:       2,
		QueryTileCount: 10,
		Timeout:        2 * time.Second,
	}, validator)

	cache := tilecache.New()
	key := audience.New("US", "", audience.FormFactorDesktop, audience.OSFamilyLinux)
	cache.Insert(key, tilecache.Entry{Payload: []byte(`{"tiles":[]}`), CreatedAt: time.Now(), TTL: time.Minute})

	loop := New(cache, fetcher, 10*time.Millisecond, time.Minute, 0, metrics.Noop{}, events.NoopReporter{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop.Start(ctx)

	entry, ok := cache.Get(key)
	if !ok {
		t.Fatal("expected entry to remain in cache")
	}
	if string(entry.Payload) == `{"tiles":[]}` {
		t.Error("expected the refresh loop to have replaced the stale payload")
	}
	if calls == 0 {
		t.Error("expected the fetcher to have been invoked at least once")
	}
}

func TestLoopSkipsIdenticalPayload(t *testing.T) {
	cache := tilecache.New()
	key := audience.New("US", "", audience.FormFactorDesktop, audience.OSFamilyLinux)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	rs, _ := tilefilter.Parse([]byte(`{}`))
	validator := tilevalidate.NewValidator(rs, events.NoopReporter{}, nil)
	fetcher := admclient.New(admclient.Settings{EndpointURL: srv.URL, MaxTiles: 2, QueryTileCount: 10, Timeout: 2 * time.Second}, validator)

	emptyPayload, _ := json.Marshal(tilesResponse{Tiles: []tilevalidate.OutputTile{}})
	cache.Insert(key, tilecache.Entry{Payload: emptyPayload, CreatedAt: time.Now(), TTL: time.Minute})

	var updates int
	countingMetrics := &countingCollector{Collector: metrics.Noop{}}
	loop := New(cache, fetcher, 10*time.Millisecond, time.Minute, 0, countingMetrics, events.NoopReporter{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	loop.Start(ctx)

	updates = countingMetrics.updates
	if updates != 0 {
		t.Errorf("expected no cache updates when payload is identical, got %d", updates)
	}
}

type countingCollector struct {
	metrics.Collector
	updates int
}

func (c *countingCollector) IncrCacheUpdaterUpdate() {
	c.updates++
}
