package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kjstillabower/weatherpy/internal/table"
	"github.com/kjstillabower/weatherpy/internal/validation"
)

const testAPIKey = "test-api-key-12345"

func sampleResponse() map[string]interface{} {
	return map[string]interface{}{
		"coord": map[string]interface{}{"lon": 139.69, "lat": 35.69},
		"weather": []map[string]interface{}{
			{"id": 803, "main": "Clouds", "description": "broken clouds"},
		},
		"main": map[string]interface{}{
			"temp":     68.2,
			"temp_max": 71.6,
			"humidity": 62,
		},
		"wind":   map[string]interface{}{"speed": 5.82},
		"clouds": map[string]interface{}{"all": 75},
		"dt":     1700000000,
		"sys":    map[string]interface{}{"country": "JP"},
		"name":   "Tokyo",
		"cod":    200,
	}
}

func newTestClient(t *testing.T, url string) *OpenWeatherClient {
	t.Helper()
	c, err := NewOpenWeatherClient(testAPIKey, url, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func jsonHandler(t *testing.T, status int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode: %v", err)
		}
	}
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{"empty API key", "", ErrInvalidAPIKey},
		{"too short API key", "short", ErrInvalidAPIKey},
		{"valid API key", "valid-api-key-12345", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOpenWeatherClient() unexpected error: %v", err)
			}
		})
	}
}

func TestOpenWeatherClient_FetchCity_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("q") != "tokyo" {
			t.Errorf("q = %q, want tokyo", q.Get("q"))
		}
		if q.Get("appid") != testAPIKey {
			t.Errorf("appid = %q, want test key", q.Get("appid"))
		}
		if q.Get("units") != "imperial" {
			t.Errorf("units = %q, want imperial", q.Get("units"))
		}
		if r.Header.Get("X-Correlation-ID") != "run-1" {
			t.Errorf("X-Correlation-ID = %q, want run-1", r.Header.Get("X-Correlation-ID"))
		}
		jsonHandler(t, http.StatusOK, sampleResponse())(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	ctx := WithCorrelationID(context.Background(), "run-1")
	obs, err := c.FetchCity(ctx, "tokyo")
	if err != nil {
		t.Fatalf("FetchCity() error = %v", err)
	}
	if len(obs.Body) == 0 {
		t.Error("Observation.Body is empty")
	}

	rec := obs.Record
	wantFloats := map[string]float64{
		"main.humidity": 62,
		"main.temp_max": 71.6,
		"coord.lat":     35.69,
		"coord.lon":     139.69,
		"clouds.all":    75,
		"wind.speed":    5.82,
		"dt":            1700000000,
	}
	for k, want := range wantFloats {
		got, ok := rec.Float(k)
		if !ok || got != want {
			t.Errorf("Record[%q] = (%v, %v), want %v", k, got, ok, want)
		}
	}
	if got, _ := rec.String("sys.country"); got != "JP" {
		t.Errorf("Record[sys.country] = %q, want JP", got)
	}
	if got, _ := rec.String("name"); got != "Tokyo" {
		t.Errorf("Record[name] = %q, want Tokyo", got)
	}
	if got, _ := rec.String("weather.0.main"); got != "Clouds" {
		t.Errorf("Record[weather.0.main] = %q, want Clouds (arrays flatten by index)", got)
	}
}

// TestOpenWeatherClient_FetchCity_EscapesCity verifies city names with spaces
// and apostrophes reach the server intact.
func TestOpenWeatherClient_FetchCity_EscapesCity(t *testing.T) {
	var gotQ string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		jsonHandler(t, http.StatusOK, sampleResponse())(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.FetchCity(context.Background(), "st. john's"); err != nil {
		t.Fatalf("FetchCity() error = %v", err)
	}
	if gotQ != "st. john's" {
		t.Errorf("server saw q = %q, want %q", gotQ, "st. john's")
	}
}

func TestOpenWeatherClient_FetchCity_Errors(t *testing.T) {
	missingLat := sampleResponse()
	delete(missingLat["coord"].(map[string]interface{}), "lat")

	tests := []struct {
		name    string
		handler func(*testing.T) http.HandlerFunc
		wantErr error
	}{
		{
			name: "body cod not 200",
			handler: func(t *testing.T) http.HandlerFunc {
				return jsonHandler(t, http.StatusOK, map[string]interface{}{"cod": "404", "message": "city not found"})
			},
			wantErr: ErrAPIStatus,
		},
		{
			name: "body cod numeric 500",
			handler: func(t *testing.T) http.HandlerFunc {
				return jsonHandler(t, http.StatusOK, map[string]interface{}{"cod": 500})
			},
			wantErr: ErrAPIStatus,
		},
		{
			name: "HTTP 404",
			handler: func(t *testing.T) http.HandlerFunc {
				return jsonHandler(t, http.StatusNotFound, map[string]interface{}{"cod": "404", "message": "city not found"})
			},
			wantErr: ErrLocationNotFound,
		},
		{
			name: "HTTP 401",
			handler: func(t *testing.T) http.HandlerFunc {
				return jsonHandler(t, http.StatusUnauthorized, map[string]interface{}{"cod": 401})
			},
			wantErr: ErrInvalidAPIKey,
		},
		{
			name: "HTTP 429",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) }
			},
			wantErr: ErrRateLimited,
		},
		{
			name: "HTTP 502",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }
			},
			wantErr: ErrUpstreamFailure,
		},
		{
			name: "not JSON",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>oops</html>")) }
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "missing cod",
			handler: func(t *testing.T) http.HandlerFunc {
				return jsonHandler(t, http.StatusOK, map[string]interface{}{"name": "x"})
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "missing coord.lat",
			handler: func(t *testing.T) http.HandlerFunc {
				return jsonHandler(t, http.StatusOK, missingLat)
			},
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler(t))
			defer server.Close()

			c := newTestClient(t, server.URL)
			obs, err := c.FetchCity(context.Background(), "nowhere")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FetchCity() error = %v, want %v", err, tt.wantErr)
			}
			if obs.Record != nil {
				t.Errorf("FetchCity() returned a record on error: %v", obs.Record)
			}
		})
	}
}

func TestOpenWeatherClient_FetchCity_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c, err := NewOpenWeatherClient(testAPIKey, server.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	_, err = c.FetchCity(context.Background(), "slowtown")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("FetchCity() error = %v, want ErrTransport", err)
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", got)
	}
}

func TestOpenWeatherClient_FetchCity_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, url)
	_, err := c.FetchCity(context.Background(), "tokyo")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("FetchCity() error = %v, want ErrTransport", err)
	}
}

func TestOpenWeatherClient_FetchCity_InvalidCity(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	_, err := c.FetchCity(context.Background(), "   ")
	if !errors.Is(err, validation.ErrCityInvalid) {
		t.Fatalf("FetchCity() error = %v, want ErrCityInvalid", err)
	}
	if called {
		t.Error("server was called for an invalid city name")
	}
}

func TestParseObservation_MissingCountryDefaultsEmpty(t *testing.T) {
	resp := sampleResponse()
	delete(resp, "sys")
	body, _ := json.Marshal(resp)

	rec, err := ParseObservation(body)
	if err != nil {
		t.Fatalf("ParseObservation() error = %v", err)
	}
	if got, ok := rec.String(table.FieldCountry); !ok || got != "" {
		t.Errorf("Record[sys.country] = (%q, %v), want empty string", got, ok)
	}
}

func TestParseObservation_CodAsString200(t *testing.T) {
	resp := sampleResponse()
	resp["cod"] = "200"
	body, _ := json.Marshal(resp)

	if _, err := ParseObservation(body); err != nil {
		t.Errorf("ParseObservation() error = %v, want nil for cod \"200\"", err)
	}
}

// TestParseObservation_NonFiniteRequiredFields verifies that NaN or infinite
// values in required numeric fields make the body malformed.
func TestParseObservation_NonFiniteRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		group string
		field string
		value string
	}{
		{"humidity NaN", "main", "humidity", "NaN"},
		{"humidity Inf", "main", "humidity", "Inf"},
		{"humidity -Inf", "main", "humidity", "-Inf"},
		{"lat Infinity", "coord", "lat", "Infinity"},
		{"temp_max NaN", "main", "temp_max", "NaN"},
		{"wind speed Inf", "wind", "speed", "Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sampleResponse()
			resp[tt.group].(map[string]interface{})[tt.field] = tt.value
			body, _ := json.Marshal(resp)

			rec, err := ParseObservation(body)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("ParseObservation() error = %v, want ErrMalformedResponse", err)
			}
			if rec != nil {
				t.Errorf("ParseObservation() record = %v, want nil", rec)
			}
		})
	}
}
