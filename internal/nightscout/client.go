// Package nightscout reads glucose snapshots from a Nightscout site.
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Required for Nightscout API secret hashing (legacy API requirement)
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/glucostatus/internal/glucose"
)

// Entry is a sensor glucose entry as served by /api/v1/entries.
type Entry struct {
	ID        string `json:"_id"`
	SGV       int    `json:"sgv"`  // mg/dL
	Date      int64  `json:"date"` // Unix milliseconds
	DateStr   string `json:"dateString"`
	Direction string `json:"direction"`
	Device    string `json:"device"`
	Type      string `json:"type"`
}

// Time returns the time of the entry.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Date)
}

// Client handles communication with the Nightscout API
type Client struct {
	baseURL    string
	apiSecret  string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a new Nightscout client. A token takes precedence over
// the API secret.
func NewClient(baseURL, apiSecret, apiToken string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		apiToken:  apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the source in stored readings.
func (c *Client) Name() string {
	return "nightscout"
}

// hashSecret generates SHA1 hash of the API secret
// Note: SHA1 is required for Nightscout API compatibility
func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // Required for Nightscout API
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

// buildRequest creates an HTTP request with proper authentication
func (c *Client) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	fullURL := c.baseURL + endpoint
	if params != nil {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	} else if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}

	return req, nil
}

// doRequest executes an HTTP request and returns the response body
func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// GetEntries retrieves sensor glucose entries newer than from, at most count.
func (c *Client) GetEntries(ctx context.Context, from time.Time, count int) ([]Entry, error) {
	params := url.Values{}
	if !from.IsZero() {
		params.Set("find[date][$gte]", strconv.FormatInt(from.UnixMilli(), 10))
	}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	req, err := c.buildRequest(ctx, "/api/v1/entries/sgv.json", params)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing entries: %w", err)
	}

	return entries, nil
}

// Readings returns the snapshot covering lookback, newest first.
func (c *Client) Readings(ctx context.Context, lookback time.Duration) ([]glucose.Reading, error) {
	// bursts from multiple uploaders can exceed one entry per 5 minutes
	count := int(lookback.Minutes())/5*2 + 1
	entries, err := c.GetEntries(ctx, time.Now().Add(-lookback), count)
	if err != nil {
		return nil, err
	}
	return ToReadings(entries), nil
}

// ToReadings converts entries to a newest-first snapshot, dropping entries
// without a sensor value.
func ToReadings(entries []Entry) []glucose.Reading {
	readings := make([]glucose.Reading, 0, len(entries))
	for _, e := range entries {
		if e.SGV <= 0 || e.Date == 0 {
			continue
		}
		readings = append(readings, glucose.Reading{
			Timestamp: e.Time(),
			Value:     float64(e.SGV),
		})
	}
	return glucose.SortNewestFirst(readings)
}
