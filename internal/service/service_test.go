package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kjstillabower/weatherpy/internal/cache"
	"github.com/kjstillabower/weatherpy/internal/client"
	"github.com/kjstillabower/weatherpy/internal/models"
	"github.com/kjstillabower/weatherpy/internal/observability"
	"github.com/kjstillabower/weatherpy/internal/table"
)

// observationBody returns a minimal successful API body for name.
func observationBody(name string, humidity float64) []byte {
	return []byte(fmt.Sprintf(`{"coord":{"lon":10.5,"lat":-20.25},"main":{"temp_max":71.6,"humidity":%v},`+
		`"wind":{"speed":5.8},"clouds":{"all":40},"dt":1700000000,"sys":{"country":"XX"},"name":%q,"cod":200}`,
		humidity, name))
}

type mockWeatherClient struct {
	bodies map[string][]byte
	errs   map[string]error
	calls  []string
	// onCall runs after each call; tests use it to cancel mid-batch.
	onCall func(city string)
}

func (m *mockWeatherClient) FetchCity(ctx context.Context, city string) (client.Observation, error) {
	m.calls = append(m.calls, city)
	if m.onCall != nil {
		defer m.onCall(city)
	}
	if err, ok := m.errs[city]; ok {
		return client.Observation{}, err
	}
	body, ok := m.bodies[city]
	if !ok {
		return client.Observation{}, fmt.Errorf("%w: HTTP 404", client.ErrLocationNotFound)
	}
	rec, err := client.ParseObservation(body)
	if err != nil {
		return client.Observation{}, err
	}
	return client.Observation{Body: body, Record: rec}, nil
}

type mockCache struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func cities(names ...string) []models.City {
	out := make([]models.City, len(names))
	for i, n := range names {
		out[i] = models.City{Name: n}
	}
	return out
}

// TestNormalizeLocation verifies that normalizeLocation trims whitespace and lowercases.
func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trim and lower", in: " Seattle ", want: "seattle"},
		{name: "already normalized", in: "seattle", want: "seattle"},
		{name: "mixed case", in: "SeAtTlE", want: "seattle"},
		{name: "with spaces", in: "  New York  ", want: "new york"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeLocation(tc.in)
			if got != tc.want {
				t.Fatalf("normalizeLocation(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestWeatherService_FetchAll_ProgressNumbering verifies that progress lines are
// numbered by table length so a skipped city leaves no gap.
func TestWeatherService_FetchAll_ProgressNumbering(t *testing.T) {
	mc := &mockWeatherClient{
		bodies: map[string][]byte{
			"hilo":     observationBody("Hilo", 80),
			"ushuaia":  observationBody("Ushuaia", 60),
			"tasiilaq": observationBody("Tasiilaq", 70),
		},
	}
	var out bytes.Buffer
	svc := NewWeatherService(mc, nil, 0, &out, nil)

	raw, outcomes := svc.FetchAll(context.Background(), cities("hilo", "nowhere", "ushuaia", "tasiilaq"))

	if raw.Len() != 3 {
		t.Fatalf("raw.Len() = %d, want 3", raw.Len())
	}
	want := Banner +
		"Processing Record data for 1 of Set 1 | hilo\n" +
		"Processing Record data for 2 of Set 1 | ushuaia\n" +
		"Processing Record data for 3 of Set 1 | tasiilaq\n"
	if out.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", out.String(), want)
	}

	if len(outcomes) != 4 {
		t.Fatalf("len(outcomes) = %d, want 4", len(outcomes))
	}
	skipped := outcomes[1]
	if skipped.Status != StatusSkipped || skipped.Reason != client.ErrorCategoryLocationNotFound {
		t.Errorf("outcomes[1] = %+v, want skipped location_not_found", skipped)
	}
	if !errors.Is(skipped.Err, client.ErrLocationNotFound) {
		t.Errorf("outcomes[1].Err = %v, want ErrLocationNotFound", skipped.Err)
	}
	for _, i := range []int{0, 2, 3} {
		if outcomes[i].Status != StatusFetched {
			t.Errorf("outcomes[%d].Status = %q, want fetched", i, outcomes[i].Status)
		}
	}
}

// TestWeatherService_FetchAll_BannerWithNoCities verifies the banner is printed
// even when there is nothing to fetch.
func TestWeatherService_FetchAll_BannerWithNoCities(t *testing.T) {
	var out bytes.Buffer
	svc := NewWeatherService(&mockWeatherClient{}, nil, 0, &out, nil)

	raw, outcomes := svc.FetchAll(context.Background(), nil)

	if out.String() != Banner {
		t.Errorf("output = %q, want banner only", out.String())
	}
	if raw.Len() != 0 || len(outcomes) != 0 {
		t.Errorf("got %d rows and %d outcomes, want none", raw.Len(), len(outcomes))
	}
}

// TestWeatherService_FetchAll_APIStatusSkipped verifies a body whose cod is not 200
// is skipped without aborting the batch.
func TestWeatherService_FetchAll_APIStatusSkipped(t *testing.T) {
	mc := &mockWeatherClient{
		bodies: map[string][]byte{
			"bad":  []byte(`{"cod":"404","message":"city not found"}`),
			"good": observationBody("Good", 50),
		},
	}
	svc := NewWeatherService(mc, nil, 0, nil, nil)

	raw, outcomes := svc.FetchAll(context.Background(), cities("bad", "good"))

	if raw.Len() != 1 {
		t.Fatalf("raw.Len() = %d, want 1", raw.Len())
	}
	if outcomes[0].Reason != client.ErrorCategoryAPIStatus {
		t.Errorf("outcomes[0].Reason = %q, want api_status", outcomes[0].Reason)
	}
	if name, _ := raw.Rows()[0].String(table.FieldName); name != "Good" {
		t.Errorf("row name = %q, want Good", name)
	}
}

// TestWeatherService_FetchAll_CacheHit verifies that a cached body is used and the
// API is not called for that city.
func TestWeatherService_FetchAll_CacheHit(t *testing.T) {
	mc := &mockWeatherClient{}
	cache := &mockCache{data: map[string][]byte{"hilo": observationBody("Hilo", 80)}}
	svc := NewWeatherService(mc, cache, time.Minute, nil, nil)

	raw, outcomes := svc.FetchAll(context.Background(), cities("Hilo"))

	if len(mc.calls) != 0 {
		t.Errorf("client called %v, want no calls on cache hit", mc.calls)
	}
	if raw.Len() != 1 {
		t.Fatalf("raw.Len() = %d, want 1", raw.Len())
	}
	if !outcomes[0].Cached {
		t.Error("outcomes[0].Cached = false, want true")
	}
}

// TestWeatherService_FetchAll_CacheReusedAcrossRuns verifies that a second run
// sharing the cache serves every city from it.
func TestWeatherService_FetchAll_CacheReusedAcrossRuns(t *testing.T) {
	mc := &mockWeatherClient{bodies: map[string][]byte{
		"Hilo": observationBody("Hilo", 80),
		"Nuuk": observationBody("Nuuk", 60),
	}}
	shared := cache.NewInMemoryCache()
	before := testutil.ToFloat64(observability.CacheHitsTotal)

	NewWeatherService(mc, shared, time.Minute, nil, nil).FetchAll(context.Background(), cities("Hilo", "Nuuk"))
	raw, outcomes := NewWeatherService(mc, shared, time.Minute, nil, nil).FetchAll(context.Background(), cities("Hilo", "Nuuk"))

	if len(mc.calls) != 2 {
		t.Errorf("client calls = %v, want only the first run's two", mc.calls)
	}
	if raw.Len() != 2 {
		t.Fatalf("raw.Len() = %d, want 2", raw.Len())
	}
	for _, o := range outcomes {
		if !o.Cached {
			t.Errorf("outcome for %+v Cached = false, want true", o.City)
		}
	}
	if got := testutil.ToFloat64(observability.CacheHitsTotal) - before; got != 2 {
		t.Errorf("cacheHitsTotal delta = %v, want 2", got)
	}
}

// TestWeatherService_FetchAll_CacheMissPopulates verifies that a fetched body is
// written back under the normalized city name.
func TestWeatherService_FetchAll_CacheMissPopulates(t *testing.T) {
	body := observationBody("Hilo", 80)
	mc := &mockWeatherClient{bodies: map[string][]byte{" Hilo": body}}
	cache := &mockCache{}
	svc := NewWeatherService(mc, cache, time.Minute, nil, nil)

	svc.FetchAll(context.Background(), cities(" Hilo"))

	got, ok := cache.data["hilo"]
	if !ok {
		t.Fatal("cache was not populated after fetch")
	}
	if !bytes.Equal(got, body) {
		t.Errorf("cached body = %s, want %s", got, body)
	}
}

// TestWeatherService_FetchAll_CacheErrorsIgnored verifies that cache failures never skip a city.
func TestWeatherService_FetchAll_CacheErrorsIgnored(t *testing.T) {
	mc := &mockWeatherClient{bodies: map[string][]byte{"hilo": observationBody("Hilo", 80)}}
	cache := &mockCache{getErr: errors.New("cache down"), setErr: errors.New("cache down")}
	svc := NewWeatherService(mc, cache, time.Minute, nil, nil)

	raw, outcomes := svc.FetchAll(context.Background(), cities("hilo"))

	if raw.Len() != 1 || outcomes[0].Status != StatusFetched {
		t.Errorf("got %d rows, outcome %+v; want fetched despite cache errors", raw.Len(), outcomes[0])
	}
}

// TestWeatherService_FetchAll_CorruptCacheEntry verifies an unreadable cache entry
// falls through to the API.
func TestWeatherService_FetchAll_CorruptCacheEntry(t *testing.T) {
	mc := &mockWeatherClient{bodies: map[string][]byte{"hilo": observationBody("Hilo", 80)}}
	cache := &mockCache{data: map[string][]byte{"hilo": []byte("not json")}}
	svc := NewWeatherService(mc, cache, time.Minute, nil, nil)

	_, outcomes := svc.FetchAll(context.Background(), cities("hilo"))

	if len(mc.calls) != 1 {
		t.Errorf("client calls = %d, want 1", len(mc.calls))
	}
	if outcomes[0].Cached {
		t.Error("outcomes[0].Cached = true, want false for corrupt entry")
	}
}

// TestWeatherService_FetchAll_Canceled verifies that after cancellation the
// remaining cities are skipped without requests and earlier rows are kept.
func TestWeatherService_FetchAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc := &mockWeatherClient{
		bodies: map[string][]byte{
			"a": observationBody("A", 10),
			"b": observationBody("B", 20),
			"c": observationBody("C", 30),
		},
		onCall: func(city string) {
			if city == "a" {
				cancel()
			}
		},
	}
	var out bytes.Buffer
	svc := NewWeatherService(mc, nil, 0, &out, nil)

	raw, outcomes := svc.FetchAll(ctx, cities("a", "b", "c"))

	if raw.Len() != 1 {
		t.Fatalf("raw.Len() = %d, want 1", raw.Len())
	}
	if len(mc.calls) != 1 {
		t.Errorf("client calls = %v, want only a", mc.calls)
	}
	for _, o := range outcomes[1:] {
		if o.Status != StatusSkipped || o.Reason != client.ErrorCategoryCanceled {
			t.Errorf("outcome %+v, want skipped canceled", o)
		}
	}
	if strings.Count(out.String(), "Processing Record") != 1 {
		t.Errorf("output = %q, want one progress line", out.String())
	}
}

func TestSummarize(t *testing.T) {
	outcomes := []Outcome{
		{Status: StatusFetched},
		{Status: StatusFetched, Cached: true},
		{Status: StatusSkipped, Reason: client.ErrorCategoryLocationNotFound},
		{Status: StatusSkipped, Reason: client.ErrorCategoryLocationNotFound},
		{Status: StatusSkipped, Reason: client.ErrorCategoryTimeout},
	}

	sum := Summarize(outcomes)

	if sum.Fetched != 2 || sum.Cached != 1 || sum.Skipped != 3 {
		t.Errorf("Summarize() = %+v, want fetched 2 cached 1 skipped 3", sum)
	}
	if sum.Reasons[client.ErrorCategoryLocationNotFound] != 2 {
		t.Errorf("Reasons[location_not_found] = %d, want 2", sum.Reasons[client.ErrorCategoryLocationNotFound])
	}
}
