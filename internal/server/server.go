// Package server implements the inbound HTTP surface: GET /v1/tiles and the
// DockerFlow health endpoints, wired to every tile-pipeline collaborator.
// The routing and request-lifecycle shape (request ID, structured logger,
// writeError) is grounded on the teacher's edge HTTP server.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/contile/contile/internal/admclient"
	"github.com/contile/contile/internal/audience"
	"github.com/contile/contile/internal/clientip"
	"github.com/contile/contile/internal/common/requestid"
	"github.com/contile/contile/internal/events"
	"github.com/contile/contile/internal/geoip"
	"github.com/contile/contile/internal/metrics"
	"github.com/contile/contile/internal/tilecache"
	"github.com/contile/contile/internal/tileerrors"
	"github.com/contile/contile/internal/tilevalidate"
	"github.com/contile/contile/internal/useragent"
)

// BuildInfo is stamped into /__version__. Left zero-valued (empty strings)
// when the binary wasn't built with -ldflags, matching the teacher's
// version-endpoint convention of "best effort, never fails".
type BuildInfo struct {
	Version string `json:"version"`
	Source  string `json:"source"`
	Commit  string `json:"commit"`
}

// Server wires every tile-pipeline collaborator to the inbound HTTP surface.
type Server struct {
	cache           *tilecache.Cache
	fetcher         *admclient.Fetcher
	locator         geoip.Locator
	fallbackCountry string
	ttl             time.Duration
	fallbackTTL     time.Duration
	jitter          float64
	metrics         metrics.Collector
	reporter        events.Reporter
	logger          *zap.Logger
	build           BuildInfo
}

func New(
	cache *tilecache.Cache,
	fetcher *admclient.Fetcher,
	locator geoip.Locator,
	fallbackCountry string,
	ttl, fallbackTTL time.Duration,
	jitter float64,
	m metrics.Collector,
	reporter events.Reporter,
	logger *zap.Logger,
	build BuildInfo,
) *Server {
	if m == nil {
		m = metrics.Noop{}
	}
	if reporter == nil {
		reporter = events.NoopReporter{}
	}
	return &Server{
		cache:           cache,
		fetcher:         fetcher,
		locator:         locator,
		fallbackCountry: fallbackCountry,
		ttl:             ttl,
		fallbackTTL:     fallbackTTL,
		jitter:          jitter,
		metrics:         m,
		reporter:        reporter,
		logger:          logger,
		build:           build,
	}
}

// HandleRequest is the single fasthttp entry point, routed by path exactly
// as the teacher's edge server routes /health, /ready, and /render.
func (s *Server) HandleRequest(ctx *fasthttp.RequestCtx) {
	customRequestID := string(ctx.Request.Header.Peek("X-Request-ID"))
	requestID := requestid.GenerateRequestID(customRequestID)
	ctx.Response.Header.Set("X-Request-ID", requestID)

	logger := s.logger.With(zap.String("request_id", requestID))

	switch string(ctx.Path()) {
	case "/v1/tiles":
		if !ctx.IsGet() {
			s.writeText(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleTiles(ctx, requestID, logger)
	case "/__heartbeat__":
		s.handleHeartbeat(ctx)
	case "/__lbheartbeat__":
		s.handleLBHeartbeat(ctx)
	case "/__version__":
		s.handleVersion(ctx)
	case "/__error__":
		s.handleTestError(ctx, requestID)
	default:
		logger.Warn("not found", zap.String("path", string(ctx.Path())))
		s.writeText(ctx, fasthttp.StatusNotFound, "Not Found")
	}
}

type tilesResponse struct {
	Tiles []tilevalidate.OutputTile `json:"tiles"`
}

// emptyTilesPayload is the canonical serialized form of an empty tile list,
// cached and compared against so a cache hit on a previously-empty result
// still yields 204 rather than 200 with an empty body.
var emptyTilesPayload = mustMarshalEmptyTiles()

func mustMarshalEmptyTiles() []byte {
	payload, err := json.Marshal(tilesResponse{Tiles: []tilevalidate.OutputTile{}})
	if err != nil {
		panic(err)
	}
	return payload
}

// handleTiles implements the request flow from §2: derive audience key,
// check the cache, fetch on miss/expiry, and serve. Per the quiet-failure
// contract (§7), an AdmServerError/BadAdmResponse from the Fetcher is never
// a 5xx: it becomes 204 No Content, or, when an expired entry exists, that
// stale entry is served. Only an Internal error becomes a 5xx.
func (s *Server) handleTiles(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger) {
	clientAddr := clientip.Extract(string(ctx.Request.Header.Peek("X-Forwarded-For")), ctx.RemoteAddr().String())
	countryOverride := string(ctx.QueryArgs().Peek("country"))
	ua := string(ctx.Request.Header.Peek("User-Agent"))

	var loc geoip.Location
	located := false
	if ip := net.ParseIP(clientAddr); ip != nil {
		loc, located = s.locator.Locate(ip)
	}
	if !located {
		s.metrics.IncrLocationUnknownIP()
		loc = geoip.Resolve(s.locator, "", countryOverride, s.fallbackCountry)
	}

	osFamily, formFactor := useragent.Classify(ua)
	if placement := string(ctx.QueryArgs().Peek("placement")); placement != "" {
		formFactor = audience.ParseFormFactor(placement)
	}

	key := audience.New(loc.Country, loc.Region, formFactor, osFamily)

	entry, ok := s.cache.Get(key)
	if !ok || entry.IsExpired(time.Now(), s.jitter) {
		s.metrics.IncrCacheMiss()
		fresh, err := s.fetcher.FetchTiles(requestID, key, useragent.Strip(ua))
		if err != nil {
			if err.Kind == tileerrors.KindAdmServerError || err.Kind == tileerrors.KindBadAdmResponse {
				s.metrics.IncrTilesInvalid(string(err.Kind))
			}
			s.reporter.Report(events.Event{
				RequestID: requestID,
				Kind:      "adm_fetch_failed",
				Message:   err.Error(),
				CreatedAt: time.Now(),
			})
			if err.Kind == tileerrors.KindInternal {
				s.writeText(ctx, err.HTTPStatus(), "internal error")
				return
			}
			if !ok {
				// No prior entry to fall back to: serve quietly empty.
				s.writeEmpty(ctx)
				return
			}
			// Serve the stale entry, re-stamped with the longer fallback
			// TTL so a struggling upstream isn't re-queried on every
			// request until it recovers.
			s.cache.Insert(key, tilecache.Entry{Payload: entry.Payload, CreatedAt: time.Now(), TTL: s.fallbackTTL})
			s.writePayload(ctx, entry.Payload)
			return
		}

		payload, marshalErr := json.Marshal(tilesResponse{Tiles: fresh})
		if marshalErr != nil {
			s.writeText(ctx, fasthttp.StatusInternalServerError, "internal error")
			return
		}

		s.cache.Insert(key, tilecache.Entry{Payload: payload, CreatedAt: time.Now(), TTL: s.ttl})
		if len(fresh) == 0 {
			s.metrics.IncrTilesEmpty()
			s.writeEmpty(ctx)
			return
		}
		s.writePayload(ctx, payload)
		return
	}

	s.metrics.IncrCacheHit()
	s.writePayload(ctx, entry.Payload)
}

// writePayload serves a cached or freshly-fetched tiles document. A payload
// equal to the canonical empty-tiles document is served as 204, not 200
// with an empty body — this covers the cache-hit and stale-serve paths,
// which never re-derive len(fresh) themselves.
func (s *Server) writePayload(ctx *fasthttp.RequestCtx, payload []byte) {
	if bytes.Equal(payload, emptyTilesPayload) {
		s.writeEmpty(ctx)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(payload)
}

func (s *Server) writeEmpty(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) writeText(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.Response.Header.Set("Content-Type", "text/plain")
	ctx.SetStatusCode(statusCode)
	ctx.SetBodyString(message)
}

func (s *Server) handleHeartbeat(ctx *fasthttp.RequestCtx) {
	body, _ := json.Marshal(map[string]string{"version": s.build.Version})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

func (s *Server) handleLBHeartbeat(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyString("{}")
}

func (s *Server) handleVersion(ctx *fasthttp.RequestCtx) {
	body, err := json.Marshal(s.build)
	if err != nil {
		s.writeText(ctx, fasthttp.StatusInternalServerError, "internal error")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

// handleTestError always fails and reports to the event sink, so operators
// can verify the reporting pipeline end-to-end (Part D.4).
func (s *Server) handleTestError(ctx *fasthttp.RequestCtx, requestID string) {
	s.reporter.Report(events.Event{
		RequestID: requestID,
		Kind:      "test_error",
		Message:   "/__error__ was invoked",
		CreatedAt: time.Now(),
	})
	s.writeText(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("test error (request_id=%s)", requestID))
}
