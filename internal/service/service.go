package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weatherpy/internal/cache"
	"github.com/kjstillabower/weatherpy/internal/client"
	"github.com/kjstillabower/weatherpy/internal/degraded"
	"github.com/kjstillabower/weatherpy/internal/lifecycle"
	"github.com/kjstillabower/weatherpy/internal/models"
	"github.com/kjstillabower/weatherpy/internal/observability"
	"github.com/kjstillabower/weatherpy/internal/table"
)

// Banner is printed once before the first fetch.
const Banner = "Beginning Data Retrieval\n--------------------------------------\n"

// Status is the result kind of one city fetch.
type Status string

const (
	StatusFetched Status = "fetched"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to one city. Reason and Err are set only when skipped.
type Outcome struct {
	City   models.City
	Status Status
	Reason client.ErrorCategory
	Err    error
	Cached bool
}

// WeatherService runs the sequential fetch loop, consulting an optional
// response cache before calling the API.
type WeatherService struct {
	client client.WeatherClient
	cache  cache.Cache // nil disables caching
	ttl    time.Duration
	out    io.Writer
	logger *zap.Logger
}

// NewWeatherService creates a WeatherService. Progress lines go to out; cache may be nil.
func NewWeatherService(client client.WeatherClient, cache cache.Cache, ttl time.Duration, out io.Writer, logger *zap.Logger) *WeatherService {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		client: client,
		cache:  cache,
		ttl:    ttl,
		out:    out,
		logger: logger,
	}
}

// FetchAll requests weather for each city in order, one at a time, and
// returns the table of successful observations plus one Outcome per city.
// A failing city is skipped and never stops the batch. Once ctx is done the
// remaining cities are skipped without a request.
func (s *WeatherService) FetchAll(ctx context.Context, cities []models.City) (*table.RawTable, []Outcome) {
	raw := table.NewRawTable()
	outcomes := make([]Outcome, 0, len(cities))

	lifecycle.SetPlanned(len(cities))
	fmt.Fprint(s.out, Banner)
	for _, city := range cities {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, s.skip(city, err))
			continue
		}

		rec, cached, err := s.fetchOne(ctx, city)
		if err != nil {
			outcomes = append(outcomes, s.skip(city, err))
			continue
		}

		n := raw.Append(rec)
		fmt.Fprintf(s.out, "Processing Record data for %d of Set 1 | %s\n", n, city.Name)
		observability.CitiesFetchedTotal.Inc()
		lifecycle.RecordFetched()
		outcomes = append(outcomes, Outcome{City: city, Status: StatusFetched, Cached: cached})
	}
	return raw, outcomes
}

func (s *WeatherService) skip(city models.City, err error) Outcome {
	reason := client.CategorizeError(err)
	observability.CitiesSkippedTotal.WithLabelValues(string(reason)).Inc()
	lifecycle.RecordSkipped()
	s.logger.Debug("city skipped", zap.String("city", city.Name), zap.String("reason", string(reason)), zap.Error(err))
	return Outcome{City: city, Status: StatusSkipped, Reason: reason, Err: err}
}

// fetchOne returns the flattened observation for city, from cache when possible.
func (s *WeatherService) fetchOne(ctx context.Context, city models.City) (table.Record, bool, error) {
	key := normalizeLocation(city.Name)

	if s.cache != nil {
		body, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			s.logger.Warn("cache get failed", zap.String("city", key), zap.Error(err))
		case ok:
			rec, err := client.ParseObservation(body)
			if err == nil {
				observability.CacheHitsTotal.Inc()
				return rec, true, nil
			}
			s.logger.Warn("discarding unreadable cache entry", zap.String("city", key), zap.Error(err))
		}
	}

	obs, err := s.client.FetchCity(ctx, city.Name)
	if err != nil {
		if countsAgainstAPI(err) {
			degraded.RecordError()
		}
		return nil, false, fmt.Errorf("fetch weather for %s: %w", key, err)
	}
	degraded.RecordSuccess()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, obs.Body, s.ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			s.logger.Warn("cache set failed", zap.String("city", key), zap.Error(err))
		}
	}
	return obs.Record, false, nil
}

// countsAgainstAPI reports whether err reflects the API's health. Rejected
// city names never reach the API and cancellation is ours.
func countsAgainstAPI(err error) bool {
	switch client.CategorizeError(err) {
	case client.ErrorCategoryValidation, client.ErrorCategoryCanceled:
		return false
	}
	return true
}

// Summary counts outcomes by status and skip reason.
type Summary struct {
	Fetched int
	Skipped int
	Cached  int
	Reasons map[client.ErrorCategory]int
}

// Summarize tallies outcomes for end-of-run logging.
func Summarize(outcomes []Outcome) Summary {
	sum := Summary{Reasons: map[client.ErrorCategory]int{}}
	for _, o := range outcomes {
		if o.Status == StatusFetched {
			sum.Fetched++
			if o.Cached {
				sum.Cached++
			}
			continue
		}
		sum.Skipped++
		sum.Reasons[o.Reason]++
	}
	return sum
}

// normalizeLocation trims and lowercases a city name for use as a cache key.
func normalizeLocation(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
