//go:build integration
// +build integration

package testhelpers

import (
	"io"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherpy/internal/cache"
	"github.com/kjstillabower/weatherpy/internal/client"
	"github.com/kjstillabower/weatherpy/internal/config"
	"github.com/kjstillabower/weatherpy/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "none" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = config.DefaultWeatherAPIURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a WeatherService against the live API. Progress
// lines go to out (io.Discard when nil). The returned cleanup closes any memcached client.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig, out io.Writer) (*service.WeatherService, func()) {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("zap.NewDevelopment() error = %v", err)
	}

	var cacheSvc cache.Cache
	cleanup := func() {}
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err != nil {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
			_ = mc.Close()
			cacheSvc = cache.NewInMemoryCache()
			break
		}
		cacheSvc = mc
		cleanup = func() { _ = mc.Close() }
		t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
	}

	svc := service.NewWeatherService(SetupIntegrationClient(t, cfg), cacheSvc, 5*time.Minute, out, logger)
	return svc, cleanup
}
