package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weatherpy/internal/cache"
	"github.com/kjstillabower/weatherpy/internal/client"
	"github.com/kjstillabower/weatherpy/internal/config"
	"github.com/kjstillabower/weatherpy/internal/geo"
	httphandler "github.com/kjstillabower/weatherpy/internal/http"
	"github.com/kjstillabower/weatherpy/internal/lifecycle"
	"github.com/kjstillabower/weatherpy/internal/observability"
	"github.com/kjstillabower/weatherpy/internal/plot"
	"github.com/kjstillabower/weatherpy/internal/sampler"
	"github.com/kjstillabower/weatherpy/internal/service"
	"github.com/kjstillabower/weatherpy/internal/table"
)

func main() {
	runID := uuid.New().String()
	logger, err := observability.NewLogger(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			lifecycle.SetShuttingDown(true)
		}
	}()

	code := 0
	if err := run(ctx, cfg, runID, logger, os.Stdout); err != nil {
		logger.Error("run failed", zap.Error(err))
		code = 1
	}
	if err := observability.FlushTelemetry(logger, cfg.MetricsTextfile); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
	stop()
	os.Exit(code)
}

// run executes one sample → resolve → fetch → clean → export → plot pass.
// Progress lines go to out. On error the lifecycle phase is left at failed.
func run(ctx context.Context, cfg *config.Config, runID string, logger *zap.Logger, out io.Writer) (err error) {
	defer func() {
		if err != nil {
			lifecycle.SetPhase(lifecycle.PhaseFailed)
		}
	}()
	start := time.Now()
	runDate := start.Format(plot.DateLayout)

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return fmt.Errorf("weather client: %w", err)
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		logger.Info("cache backend: none")
	}
	if memcacheCloser != nil {
		defer func() {
			if err := memcacheCloser.Close(); err != nil {
				logger.Error("memcached close", zap.Error(err))
			}
		}()
	}

	if cfg.MetricsListenAddr != "" {
		healthConfig := &httphandler.HealthConfig{
			RunID:            runID,
			StartTime:        start,
			DegradedWindow:   cfg.DegradedWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
		}
		if memcacheCloser != nil {
			healthConfig.CachePing = memcacheCloser.Ping
		}
		handler := httphandler.NewHandler(healthConfig, logger)
		router := httphandler.NewRouter(handler, logger, httphandler.NewLimiter(cfg.StatusRateLimit, cfg.StatusRateBurst))
		srv := httphandler.NewServer(cfg.MetricsListenAddr, router)
		go func() {
			logger.Info("status server starting", zap.String("addr", cfg.MetricsListenAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status server", zap.Error(err))
			}
		}()
		defer func() {
			if err != nil {
				lifecycle.SetPhase(lifecycle.PhaseFailed)
			}
			linger(ctx, cfg.StatusLinger, logger)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown", zap.Error(err))
			}
		}()
	}

	lifecycle.SetPhase(lifecycle.PhaseSampling)
	coords := sampler.New(cfg.SampleSize, cfg.SampleSeed).Sample()
	observability.CoordinatesSampledTotal.Add(float64(len(coords)))

	lifecycle.SetPhase(lifecycle.PhaseResolving)
	dataset, err := loadDataset(cfg.CitiesFile)
	if err != nil {
		return err
	}
	cities := geo.Resolve(dataset, coords)
	observability.CitiesResolved.Set(float64(len(cities)))
	logger.Info("cities resolved",
		zap.Int("coordinates", len(coords)),
		zap.Int("cities", len(cities)),
		zap.Int("dataset_size", dataset.Len()))

	lifecycle.SetPhase(lifecycle.PhaseFetching)
	weatherService := service.NewWeatherService(weatherClient, cacheSvc, cfg.CacheTTL, out, logger)
	raw, outcomes := weatherService.FetchAll(client.WithCorrelationID(ctx, runID), cities)
	sum := service.Summarize(outcomes)
	reasons := make(map[string]int, len(sum.Reasons))
	for r, n := range sum.Reasons {
		reasons[string(r)] = n
	}
	logger.Info("fetch complete",
		zap.Int("fetched", sum.Fetched),
		zap.Int("skipped", sum.Skipped),
		zap.Int("cache_hits", sum.Cached),
		zap.Any("skip_reasons", reasons))
	if n := reasons[string(client.ErrorCategoryInvalidAPIKey)]; n > 0 && sum.Fetched == 0 {
		logger.Warn("every request was rejected for the API key; check WEATHER_API_KEY", zap.Int("rejected", n))
	}
	if ctx.Err() != nil {
		logger.Warn("run interrupted; exporting partial results", zap.Int("rows", raw.Len()))
	}

	lifecycle.SetPhase(lifecycle.PhaseCleaning)
	rows, report := table.Clean(raw)
	logger.Info("records cleaned",
		zap.Int("input", report.Input),
		zap.Int("kept", report.Kept),
		zap.Int("humidity_over_100", report.HumidityOver100),
		zap.Int("humidity_invalid", report.HumidityInvalid))

	lifecycle.SetPhase(lifecycle.PhaseExporting)
	if cfg.CreateDir {
		if err := ensureDir(filepath.Dir(cfg.CSVPath)); err != nil {
			return err
		}
	}
	if err := table.WriteCSV(cfg.CSVPath, rows); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	logger.Info("csv written", zap.String("path", cfg.CSVPath), zap.Int("rows", len(rows)))

	if cfg.Plots {
		lifecycle.SetPhase(lifecycle.PhasePlotting)
		if cfg.CreateDir {
			if err := ensureDir(cfg.PlotDir); err != nil {
				return err
			}
		}
		paths, err := plot.Render(rows, cfg.PlotDir, runDate)
		if err != nil {
			return fmt.Errorf("render plots: %w", err)
		}
		logger.Info("plots written", zap.Strings("paths", paths))
	}

	lifecycle.SetPhase(lifecycle.PhaseDone)
	logger.Info("run complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// linger keeps the status server reachable for d once the run has finished so
// the final phase can be scraped. It returns early when ctx is done.
func linger(ctx context.Context, d time.Duration, logger *zap.Logger) {
	if d <= 0 {
		return
	}
	logger.Info("status server lingering",
		zap.Duration("linger", d),
		zap.String("phase", string(lifecycle.CurrentPhase())))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// loadDataset returns the cities file when configured, else the bundled table.
func loadDataset(path string) (*geo.Dataset, error) {
	if path == "" {
		ds, err := geo.LoadEmbedded()
		if err != nil {
			return nil, fmt.Errorf("load cities: %w", err)
		}
		return ds, nil
	}
	ds, err := geo.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load cities from %s: %w", path, err)
	}
	return ds, nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	return nil
}
