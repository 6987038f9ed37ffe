// Command contile runs the tile intermediary: it serves GET /v1/tiles and
// the DockerFlow health surface, fetching and caching sponsored tiles from
// ADM on behalf of the browser new-tab page. Bootstrap and shutdown follow
// the teacher's edge-gateway main: a startup-override logger, a single
// fasthttp.Server, a background refresh loop, a distinct metrics listener,
// and a signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/contile/contile/internal/admclient"
	"github.com/contile/contile/internal/common/configtypes"
	"github.com/contile/contile/internal/common/logger"
	"github.com/contile/contile/internal/common/metricsserver"
	"github.com/contile/contile/internal/config"
	"github.com/contile/contile/internal/events"
	"github.com/contile/contile/internal/geoip"
	"github.com/contile/contile/internal/metrics"
	"github.com/contile/contile/internal/refresh"
	"github.com/contile/contile/internal/server"
	"github.com/contile/contile/internal/tilecache"
	"github.com/contile/contile/internal/tilefilter"
	"github.com/contile/contile/internal/tilevalidate"
)

// buildVersion is stamped via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

const serverName = "Contile/1.0"

func main() {
	configPath := flag.String("c", "configs/contile.yaml", "path to configuration file")
	flag.Parse()

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("failed to create startup logger: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		initialLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	dynamicLogger, err := logger.NewLoggerWithStartupOverride(configtypes.LogConfig{
		Level:   cfg.LogLevel,
		Console: configtypes.ConsoleLogConfig{Enabled: true, Format: configtypes.LogFormatConsole},
	})
	if err != nil {
		initialLogger.Fatal("failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Sync()

	appLogger := dynamicLogger.Logger

	ruleset, err := loadRuleset(cfg.AdmSettingsPath)
	if err != nil {
		appLogger.Fatal("failed to load advertiser ruleset", zap.Error(err))
	}
	appLogger.Info("loaded advertiser ruleset", zap.Int("advertisers", ruleset.Len()))

	locator := openLocator(cfg.MaxMindDBLoc, appLogger)
	defer locator.Close()

	var reporter events.Reporter = events.NoopReporter{}
	if cfg.EventLogPath != "" {
		fileReporter, err := events.NewFileReporter(events.FileConfig{Enabled: true, Path: cfg.EventLogPath}, appLogger)
		if err != nil {
			appLogger.Fatal("failed to create event reporter", zap.Error(err))
		}
		reporter = fileReporter
		defer fileReporter.Close()
	}

	metricsCollector := metrics.New("contile", prometheus.DefaultRegisterer, appLogger)

	metricsServerHandle, err := metricsserver.StartMetricsServer(
		true,
		cfg.MetricsListen,
		"/metrics",
		metricsCollector,
		appLogger,
	)
	if err != nil {
		appLogger.Fatal("failed to start metrics server", zap.Error(err))
	}

	cache := tilecache.New()
	validator := tilevalidate.NewValidator(ruleset, reporter, metricsCollector)
	fetcher := admclient.New(admclient.Settings{
		EndpointURL:    cfg.AdmEndpointURL,
		PartnerID:      cfg.AdmPartnerID,
		Sub1:           cfg.AdmSub1,
		MaxTiles:       cfg.AdmMaxTiles,
		QueryTileCount: cfg.AdmQueryTileCount,
		Timeout:        cfg.AdmTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}, validator)

	refreshLoop := refresh.New(
		cache,
		fetcher,
		time.Duration(cfg.AdmRefreshRateSecs)*time.Second,
		cfg.TilesTTL,
		cfg.Jitter,
		metricsCollector,
		reporter,
		appLogger,
	)

	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	go refreshLoop.Start(refreshCtx)

	srv := server.New(
		cache,
		fetcher,
		locator,
		cfg.FallbackCountry,
		cfg.TilesTTL,
		cfg.TilesFallbackTTL,
		cfg.Jitter,
		metricsCollector,
		reporter,
		appLogger,
		server.BuildInfo{Version: buildVersion, Source: "https://github.com/contile/contile"},
	)

	httpServer := &fasthttp.Server{
		Handler:               srv.HandleRequest,
		Name:                  serverName,
		ReadTimeout:           cfg.AdmTimeout,
		WriteTimeout:          cfg.AdmTimeout,
		NoDefaultServerHeader: true,
		NoDefaultDate:         true,
	}

	listenAddr := cfg.Host + ":" + itoa(cfg.Port)
	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("contile listening", zap.String("address", listenAddr))
		if err := httpServer.ListenAndServe(listenAddr); err != nil {
			serverErrors <- err
		}
	}()

	dynamicLogger.SwitchToConfiguredLevel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		dynamicLogger.EnsureInfoLevelForShutdown()
		appLogger.Info("shutting down contile")
	case err := <-serverErrors:
		dynamicLogger.EnsureInfoLevelForShutdown()
		appLogger.Error("http server failed, shutting down", zap.Error(err))
	}

	cancelRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown error", zap.Error(err))
	}
	if metricsServerHandle != nil {
		if err := metricsServerHandle.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := reporter.Close(); err != nil {
		appLogger.Error("event reporter close error", zap.Error(err))
	}

	appLogger.Info("contile stopped")
}

func loadRuleset(path string) (*tilefilter.Ruleset, error) {
	if path == "" {
		return tilefilter.Parse([]byte(`{}`))
	}
	if strings.HasPrefix(strings.TrimSpace(path), "{") {
		return tilefilter.Parse([]byte(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return tilefilter.Parse(data)
}

func openLocator(path string, logger *zap.Logger) geoip.Locator {
	if path == "" {
		logger.Warn("no maxminddb_loc configured, GeoIP lookups disabled")
		return geoip.NoopLocator{}
	}
	locator, err := geoip.Open(path)
	if err != nil {
		logger.Error("failed to open geoip database, falling back to noop", zap.Error(err))
		return geoip.NoopLocator{}
	}
	return locator
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
