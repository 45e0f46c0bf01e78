package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Jeffail/gabs/v2"

	"github.com/kjstillabower/weatherpy/internal/observability"
	"github.com/kjstillabower/weatherpy/internal/table"
	"github.com/kjstillabower/weatherpy/internal/validation"
)

// Units is the OpenWeatherMap unit system: Fahrenheit and miles per hour.
const Units = "imperial"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// WeatherClient fetches the current observation for one city.
type WeatherClient interface {
	FetchCity(ctx context.Context, city string) (Observation, error)
}

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrAPIStatus         = errors.New("api status not ok")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransport         = errors.New("transport failure")
)

// Observation is a successful response: the raw body and its flattened form.
type Observation struct {
	Body   []byte
	Record table.Record
}

type OpenWeatherClient struct {
	apiKey  string
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

// NewOpenWeatherClient returns a client for the current-weather endpoint at apiURL.
// timeout bounds each request.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// FetchCity issues one GET for city. It succeeds only when the HTTP status is
// 2xx and the body's cod field is 200. No retries are attempted.
func (c *OpenWeatherClient) FetchCity(ctx context.Context, city string) (Observation, error) {
	name, err := validation.ValidateCityName(city)
	if err != nil {
		return Observation{}, err
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, name)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return Observation{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Observation{}, fmt.Errorf("%w: request timeout: %w", ErrTransport, err)
		}
		return Observation{}, fmt.Errorf("%w: http request failed: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return Observation{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Observation{}, fmt.Errorf("%w: read response body: %w", ErrTransport, err)
	}

	rec, err := ParseObservation(body)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Body: body, Record: rec}, nil
}

// ParseObservation checks the body's cod field and flattens it into a Record
// keyed by dotted path (main.humidity, coord.lat, ...). It fails with
// ErrAPIStatus when cod is not 200 and ErrMalformedResponse when the body is
// not JSON or lacks a required field.
func ParseObservation(body []byte) (table.Record, error) {
	parsed, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrMalformedResponse, err)
	}
	if !parsed.Exists(table.FieldStatus) {
		return nil, fmt.Errorf("%w: missing cod", ErrMalformedResponse)
	}
	if cod := parsed.Path(table.FieldStatus).Data(); !isOK(cod) {
		msg, _ := parsed.Path("message").Data().(string)
		return nil, fmt.Errorf("%w: cod %v %s", ErrAPIStatus, cod, msg)
	}

	flat, err := parsed.Flatten()
	if err != nil {
		return nil, fmt.Errorf("%w: flatten response: %w", ErrMalformedResponse, err)
	}
	rec := table.Record(flat)
	for _, f := range table.RequiredFields {
		if f == table.FieldName {
			if _, ok := rec.String(f); !ok {
				return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, f)
			}
			continue
		}
		if _, ok := rec.Float(f); !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformedResponse, f)
		}
	}
	if _, ok := rec.String(table.FieldCountry); !ok {
		rec[table.FieldCountry] = ""
	}
	return rec, nil
}

// isOK reports whether a cod value means success. The API sends it as a
// number on success and as a string on most errors.
func isOK(cod any) bool {
	switch v := cod.(type) {
	case float64:
		return v == http.StatusOK
	case string:
		return v == "200"
	}
	return false
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("appid", c.apiKey)
	params.Set("q", city)
	params.Set("units", Units)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if id := CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

type correlationKey struct{}

// WithCorrelationID returns ctx carrying id, sent as X-Correlation-ID on requests.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
