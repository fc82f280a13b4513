package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"panelrep/internal/panel"
)

// DefaultBaseURL is the public time-series endpoint of the reference data
// API.
const DefaultBaseURL = "https://api.bls.gov/publicAPI/v2/timeseries/data/"

// Client fetches reference series over the JSON API. Requests are rate
// limited because the upstream enforces a daily quota per key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different endpoint. Used by tests
// and by self-hosted mirrors.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithRateLimit overrides the request pacing.
func WithRateLimit(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// NewClient builds a reference data client. The API works without a key
// but allows far fewer series per request.
func NewClient(apiKey string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// seriesRequest is the JSON POST body the API expects.
type seriesRequest struct {
	SeriesIDs       []string `json:"seriesid"`
	StartYear       string   `json:"startyear"`
	EndYear         string   `json:"endyear"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

type seriesResponse struct {
	Status  string   `json:"status"`
	Message []string `json:"message"`
	Results struct {
		Series []struct {
			SeriesID string `json:"seriesID"`
			Data     []struct {
				Year   string `json:"year"`
				Period string `json:"period"`
				Value  string `json:"value"`
			} `json:"data"`
		} `json:"series"`
	} `json:"Results"`
}

// Observation is one reference series data point.
type Observation struct {
	SeriesID string
	Period   panel.Period
	Value    float64
}

// maxSeriesPerRequest is the API's cap on series per call with a key.
const maxSeriesPerRequest = 50

// FetchSeries pulls observations for the given series IDs across
// [startYear, endYear]. Monthly periods map to their calendar month,
// quarterly periods to the final month of the quarter; annual averages
// are skipped.
func (c *Client) FetchSeries(ctx context.Context, seriesIDs []string, startYear, endYear int) ([]Observation, error) {
	var out []Observation
	for start := 0; start < len(seriesIDs); start += maxSeriesPerRequest {
		end := start + maxSeriesPerRequest
		if end > len(seriesIDs) {
			end = len(seriesIDs)
		}
		obs, err := c.fetchBatch(ctx, seriesIDs[start:end], startYear, endYear)
		if err != nil {
			return nil, err
		}
		out = append(out, obs...)
	}
	return out, nil
}

func (c *Client) fetchBatch(ctx context.Context, seriesIDs []string, startYear, endYear int) ([]Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("reference fetch rate wait: %w", err)
	}

	body, err := json.Marshal(seriesRequest{
		SeriesIDs:       seriesIDs,
		StartYear:       strconv.Itoa(startYear),
		EndYear:         strconv.Itoa(endYear),
		RegistrationKey: c.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode series request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build series request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("fetching reference series",
		slog.Int("series_count", len(seriesIDs)),
		slog.Int("start_year", startYear),
		slog.Int("end_year", endYear))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reference fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reference API returned %d: %s", resp.StatusCode, snippet)
	}

	var payload seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode series response: %w", err)
	}
	if payload.Status != "REQUEST_SUCCEEDED" {
		return nil, fmt.Errorf("reference API rejected request: %s", joinMessages(payload.Message))
	}

	var out []Observation
	for _, s := range payload.Results.Series {
		for _, d := range s.Data {
			period, ok := parseAPIPeriod(d.Year, d.Period)
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(d.Value, 64)
			if err != nil {
				c.logger.Warn("skipping unparseable observation",
					slog.String("series_id", s.SeriesID),
					slog.String("value", d.Value))
				continue
			}
			out = append(out, Observation{SeriesID: s.SeriesID, Period: period, Value: v})
		}
	}
	return out, nil
}

// parseAPIPeriod decodes the API's period codes. M01..M12 are calendar
// months; Q01..Q04 map to the final month of the quarter; M13 (the
// annual average) and everything else is skipped.
func parseAPIPeriod(year, code string) (panel.Period, bool) {
	y, err := strconv.Atoi(year)
	if err != nil || len(code) != 3 {
		return panel.Period{}, false
	}
	n, err := strconv.Atoi(code[1:])
	if err != nil {
		return panel.Period{}, false
	}
	switch code[0] {
	case 'M':
		if n < 1 || n > 12 {
			return panel.Period{}, false
		}
		return panel.NewPeriod(y, time.Month(n)), true
	case 'Q':
		if n < 1 || n > 4 {
			return panel.Period{}, false
		}
		return panel.NewPeriod(y, time.Month(3*n)), true
	}
	return panel.Period{}, false
}

func joinMessages(msgs []string) string {
	if len(msgs) == 0 {
		return "no detail"
	}
	out := msgs[0]
	for _, m := range msgs[1:] {
		out += "; " + m
	}
	return out
}
