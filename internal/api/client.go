// Package api is the HTTP client for the geopol backend.
//
// Every endpoint answers with an envelope {"success": bool, ..., "error": "..."};
// a success:false answer is reported as ErrBackend carrying the server message.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors
var (
	ErrBackend      = errors.New("backend reported failure")
	ErrStatus       = errors.New("unexpected HTTP status")
	ErrMissingField = errors.New("response missing expected field")
)

// BackendError carries the server-provided failure reason
type BackendError struct {
	Endpoint string
	Message  string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend reported failure", e.Endpoint)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// Unwrap lets errors.Is match ErrBackend
func (e *BackendError) Unwrap() error {
	return ErrBackend
}

// Envelope is the common response wrapper
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client handles communication with the geopol backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

// New creates a new API client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    15 * time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// FetchWithTimeout performs a request that is aborted after the client timeout
// (or earlier if ctx is cancelled) and returns the raw body of a 2xx response.
func (c *Client) FetchWithTimeout(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read body: %w", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request complete")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env Envelope
		if json.Unmarshal(data, &env) == nil && (env.Error != "" || env.Message != "") {
			return nil, fmt.Errorf("%s %s: %w %d: %s", method, path, ErrStatus, resp.StatusCode, firstNonEmpty(env.Error, env.Message))
		}
		return nil, fmt.Errorf("%s %s: %w %d", method, path, ErrStatus, resp.StatusCode)
	}
	return data, nil
}

// call performs a request and decodes the envelope into out, which must embed
// the fields of interest. A success:false envelope becomes a *BackendError.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	data, err := c.FetchWithTimeout(ctx, method, path, body)
	if err != nil {
		return err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s %s: invalid response: %w", method, path, err)
	}
	if !env.Success {
		return &BackendError{Endpoint: path, Message: firstNonEmpty(env.Error, env.Message)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: invalid response: %w", method, path, err)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// --- Overlay endpoints ---

type geojsonResponse struct {
	GeoJSON json.RawMessage `json:"geojson"`
}

func (c *Client) geojson(ctx context.Context, path string) (json.RawMessage, error) {
	var resp geojsonResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if isEmptyJSON(resp.GeoJSON) {
		return nil, fmt.Errorf("%s: %w: geojson", path, ErrMissingField)
	}
	return resp.GeoJSON, nil
}

// EntitiesGeoJSON fetches geopolitical entity shapes
func (c *Client) EntitiesGeoJSON(ctx context.Context) (json.RawMessage, error) {
	return c.geojson(ctx, "/api/geopol/entities/geojson")
}

// SDRGeoJSON fetches SDR receivers as GeoJSON
func (c *Client) SDRGeoJSON(ctx context.Context) (json.RawMessage, error) {
	return c.geojson(ctx, "/api/sdr/geojson")
}

// WeatherLayer fetches a weather layer for the given metric
func (c *Client) WeatherLayer(ctx context.Context, metric string) (json.RawMessage, error) {
	return c.geojson(ctx, "/api/weather/layer/"+url.PathEscape(metric))
}

// EarthquakesGeoJSON fetches earthquakes at or above minMagnitude
func (c *Client) EarthquakesGeoJSON(ctx context.Context, minMagnitude float64) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("min_magnitude", strconv.FormatFloat(minMagnitude, 'f', -1, 64))
	return c.geojson(ctx, "/api/earthquakes/geojson?"+q.Encode())
}

// Receiver is an SDR receiver as listed by the geopol API
type Receiver struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Status       string  `json:"status"`
	FrequencyKHz float64 `json:"frequency_khz,omitempty"`
	Users        int     `json:"users,omitempty"`
	Country      string  `json:"country,omitempty"`
}

// SDRReceivers fetches the receiver list
func (c *Client) SDRReceivers(ctx context.Context) ([]Receiver, error) {
	var resp struct {
		Receivers *[]Receiver `json:"receivers"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/geopol/sdr-receivers", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Receivers == nil {
		return nil, fmt.Errorf("/api/geopol/sdr-receivers: %w: receivers", ErrMissingField)
	}
	return *resp.Receivers, nil
}

// --- Status ---

// Status is the backend liveness payload
type Status struct {
	Cache struct {
		CacheSize int `json:"cache_size"`
	} `json:"cache"`
}

// Status fetches backend liveness information
func (c *Client) Status(ctx context.Context) (*Status, error) {
	data, err := c.FetchWithTimeout(ctx, http.MethodGet, "/api/geopol/status", nil)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("/api/geopol/status: invalid response: %w", err)
	}
	return &st, nil
}
