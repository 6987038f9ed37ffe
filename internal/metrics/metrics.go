// Package metrics exposes the Prometheus counters the tile pipeline emits,
// following the teacher's CounterVec-per-concern layout and fasthttpadaptor
// bridge for serving /metrics from the same fasthttp runtime as the rest of
// Contile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Collector is the interface the tile pipeline depends on. It must never
// fail or block the calling path (§6's observability sinks contract).
type Collector interface {
	IncrTilesInvalid(reason string)
	IncrTilesEmpty()
	IncrCacheUpdaterUpdate()
	IncrCacheUpdaterError()
	IncrCacheHit()
	IncrCacheMiss()
	IncrLocationUnknownIP()
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Prometheus implements Collector using the literal metric names named in
// the operating spec's §8 testable properties and §9 design notes.
type Prometheus struct {
	tilesInvalid        *prometheus.CounterVec
	tilesEmpty          prometheus.Counter
	cacheUpdaterUpdate  prometheus.Counter
	cacheUpdaterError   prometheus.Counter
	cacheHit            prometheus.Counter
	cacheMiss           prometheus.Counter
	locationUnknownIP   prometheus.Counter

	logger      *zap.Logger
	httpHandler fasthttp.RequestHandler
}

// New registers Contile's counters against registerer and wires the
// /metrics handler through fasthttpadaptor, the same bridge the teacher
// uses to serve promhttp.Handler from a fasthttp listener.
func New(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Prometheus {
	p := &Prometheus{logger: logger}

	p.tilesInvalid = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tiles_invalid",
		Help:      "Tiles rejected by the validator, by rejection reason",
	}, []string{"reason"})

	p.tilesEmpty = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tiles_empty",
		Help:      "Requests served an empty tile list",
	})

	p.cacheUpdaterUpdate = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tile_cache_updater",
		Name:      "update",
		Help:      "Refresh loop cycles that replaced a cache entry",
	})

	p.cacheUpdaterError = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tile_cache_updater",
		Name:      "error",
		Help:      "Refresh loop cycles that failed to fetch from ADM",
	})

	p.cacheHit = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tiles_cache",
		Name:      "hit",
		Help:      "Requests served from a fresh cache entry",
	})

	p.cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tiles_cache",
		Name:      "miss",
		Help:      "Requests that found no fresh cache entry",
	})

	p.locationUnknownIP = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "location",
		Name:      "unknown_ip",
		Help:      "Requests whose client IP could not be located by GeoIP",
	})

	registerer.MustRegister(
		p.tilesInvalid,
		p.tilesEmpty,
		p.cacheUpdaterUpdate,
		p.cacheUpdaterError,
		p.cacheHit,
		p.cacheMiss,
		p.locationUnknownIP,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	p.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return p
}

func (p *Prometheus) IncrTilesInvalid(reason string) {
	p.tilesInvalid.WithLabelValues(reason).Inc()
	p.logger.Debug("tiles.invalid", zap.String("reason", reason))
}

func (p *Prometheus) IncrTilesEmpty() {
	p.tilesEmpty.Inc()
	p.logger.Debug("tiles.empty")
}

func (p *Prometheus) IncrCacheUpdaterUpdate() {
	p.cacheUpdaterUpdate.Inc()
	p.logger.Debug("tile_cache_updater.update")
}

func (p *Prometheus) IncrCacheUpdaterError() {
	p.cacheUpdaterError.Inc()
	p.logger.Debug("tile_cache_updater.error")
}

func (p *Prometheus) IncrCacheHit() {
	p.cacheHit.Inc()
	p.logger.Debug("tiles_cache.hit")
}

func (p *Prometheus) IncrCacheMiss() {
	p.cacheMiss.Inc()
	p.logger.Debug("tiles_cache.miss")
}

func (p *Prometheus) IncrLocationUnknownIP() {
	p.locationUnknownIP.Inc()
	p.logger.Debug("location.unknown.ip")
}

func (p *Prometheus) ServeHTTP(ctx *fasthttp.RequestCtx) {
	p.httpHandler(ctx)
}

// Noop discards every metric. Used in tests and in components that only
// need the Collector interface satisfied.
type Noop struct{}

func (Noop) IncrTilesInvalid(string)              {}
func (Noop) IncrTilesEmpty()                      {}
func (Noop) IncrCacheUpdaterUpdate()               {}
func (Noop) IncrCacheUpdaterError()                {}
func (Noop) IncrCacheHit()                         {}
func (Noop) IncrCacheMiss()                        {}
func (Noop) IncrLocationUnknownIP()                {}
func (Noop) ServeHTTP(ctx *fasthttp.RequestCtx)    { ctx.SetStatusCode(fasthttp.StatusNotFound) }
