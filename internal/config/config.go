package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds run configuration loaded from YAML, .env and env.
type Config struct {
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	SampleSize int
	SampleSeed uint64

	CitiesFile string

	CacheBackend          string // "none" or "memcached"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CSVPath   string
	PlotDir   string
	Plots     bool
	CreateDir bool

	MetricsListenAddr string
	MetricsTextfile   string
	StatusRateLimit   int // requests per second on the status server; 0 disables
	StatusRateBurst   int
	DegradedWindow    time.Duration
	DegradedErrorPct  int
	StatusLinger      time.Duration // how long the status server stays up after the run
}

type fileConfig struct {
	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Sampler struct {
		Size int    `yaml:"size"`
		Seed uint64 `yaml:"seed"`
	} `yaml:"sampler"`

	Geo struct {
		CitiesFile string `yaml:"cities_file"`
	} `yaml:"geo"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Output struct {
		CSVPath   string `yaml:"csv_path"`
		PlotDir   string `yaml:"plot_dir"`
		Plots     *bool  `yaml:"plots"`
		CreateDir *bool  `yaml:"create_dir"`
	} `yaml:"output"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
		Textfile   string `yaml:"textfile"`
		RateLimit  int    `yaml:"rate_limit_rps"`
		RateBurst  int    `yaml:"rate_limit_burst"`
		Linger     string `yaml:"linger"`
		Degraded   struct {
			Window   string `yaml:"window"`
			ErrorPct *int   `yaml:"error_pct"`
		} `yaml:"degraded"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Default values used when the config file leaves a field empty.
const (
	DefaultWeatherAPIURL = "http://api.openweathermap.org/data/2.5/weather"
	DefaultSampleSize    = 1500
	DefaultCSVPath       = "output_data/cities.csv"
	DefaultPlotDir       = "output_data"
)

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// The API key comes from WEATHER_API_KEY, which may be set in the environment or in a
// .env file in the working directory, and falls back to the secrets file. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Existing environment wins over .env.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read .env file: %w", err)
	}

	cfg := &Config{}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = strings.TrimSpace(os.Getenv("WEATHER_API_URL"))
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	}
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = DefaultWeatherAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.SampleSize = fc.Sampler.Size
	if v := strings.TrimSpace(os.Getenv("SAMPLE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse SAMPLE_SIZE: %w", err)
		}
		cfg.SampleSize = n
	}
	if cfg.SampleSize == 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	cfg.SampleSeed = fc.Sampler.Seed

	cfg.CitiesFile = strings.TrimSpace(fc.Geo.CitiesFile)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "none"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CSVPath = strings.TrimSpace(fc.Output.CSVPath)
	if cfg.CSVPath == "" {
		cfg.CSVPath = DefaultCSVPath
	}
	cfg.PlotDir = strings.TrimSpace(fc.Output.PlotDir)
	if cfg.PlotDir == "" {
		cfg.PlotDir = DefaultPlotDir
	}
	cfg.Plots = true
	if fc.Output.Plots != nil {
		cfg.Plots = *fc.Output.Plots
	}
	cfg.CreateDir = false
	if fc.Output.CreateDir != nil {
		cfg.CreateDir = *fc.Output.CreateDir
	}

	cfg.MetricsListenAddr = strings.TrimSpace(os.Getenv("METRICS_LISTEN_ADDR"))
	if cfg.MetricsListenAddr == "" {
		cfg.MetricsListenAddr = strings.TrimSpace(fc.Metrics.ListenAddr)
	}
	cfg.MetricsTextfile = strings.TrimSpace(fc.Metrics.Textfile)
	cfg.StatusRateLimit = fc.Metrics.RateLimit
	cfg.StatusRateBurst = fc.Metrics.RateBurst
	cfg.DegradedWindow = parseDuration(fc.Metrics.Degraded.Window, time.Minute)
	cfg.StatusLinger = parseDuration(fc.Metrics.Linger, 0)
	cfg.DegradedErrorPct = 50
	if fc.Metrics.Degraded.ErrorPct != nil {
		cfg.DegradedErrorPct = *fc.Metrics.Degraded.ErrorPct
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey returns WEATHER_API_KEY from the environment, falling back to config/secrets.yaml.
// A missing secrets file is not an error; the caller checks for an empty key.
func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if cfg.SampleSize < 0 {
		return fmt.Errorf("sampler.size must be positive, got %d", cfg.SampleSize)
	}
	if cfg.StatusRateLimit < 0 || cfg.StatusRateBurst < 0 {
		return fmt.Errorf("metrics.rate_limit_rps and rate_limit_burst must not be negative")
	}
	if cfg.DegradedErrorPct < 0 || cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("metrics.degraded.error_pct must be between 0 and 100, got %d", cfg.DegradedErrorPct)
	}
	switch cfg.CacheBackend {
	case "none", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be none or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
