// Package dexcom reads glucose snapshots from the Dexcom Share service.
package dexcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/jwulff/glucostatus/internal/glucose"
)

// Dexcom Share API endpoints
const (
	BaseURL    = "https://share2.dexcom.com/ShareWebServices/Services"
	BaseURLOUS = "https://shareous1.dexcom.com/ShareWebServices/Services"
	AppID      = "d89443d2-327c-4a6f-89e5-496bbb0317db"
)

// MaxCount is the largest number of readings the Share API returns per call.
const MaxCount = 288

// Client is an HTTP client for the Dexcom Share API.
type Client struct {
	Username   string
	Password   string
	BaseURL    string
	HTTPClient *http.Client
	sessionID  string
}

// NewClient creates a new Dexcom API client for the US region.
func NewClient(username, password string) *Client {
	return &Client{
		Username: username,
		Password: password,
		BaseURL:  BaseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the source in stored readings.
func (c *Client) Name() string {
	return "dexcom"
}

// Reading represents a glucose reading from Dexcom.
type Reading struct {
	WT    string // Timestamp like "Date(1234567890000)"
	ST    string // System time
	DT    string // Display time
	Value int    // Glucose in mg/dL
	Trend string // Trend direction
}

// post sends a JSON body and decodes a JSON response into out.
func (c *Client) post(ctx context.Context, endpoint string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

// authenticate gets a session ID from Dexcom.
func (c *Client) authenticate(ctx context.Context) error {
	// Step 1: Get account ID
	var accountID string
	_, err := c.post(ctx, "/General/AuthenticatePublisherAccount", map[string]string{
		"accountName":   c.Username,
		"password":      c.Password,
		"applicationId": AppID,
	}, &accountID)
	if err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}

	// Step 2: Get session ID
	var sessionID string
	_, err = c.post(ctx, "/General/LoginPublisherAccountById", map[string]string{
		"accountId":     accountID,
		"password":      c.Password,
		"applicationId": AppID,
	}, &sessionID)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.sessionID = sessionID
	return nil
}

// FetchReadings fetches raw glucose readings from Dexcom, newest first as
// returned by the service. An expired session is renewed once.
func (c *Client) FetchReadings(ctx context.Context, maxCount, minutes int) ([]Reading, error) {
	// Authenticate if we don't have a session
	if c.sessionID == "" {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	readings, status, err := c.fetch(ctx, maxCount, minutes)
	if err != nil && status != 0 && status != http.StatusOK {
		// Session might have expired, try re-authenticating
		c.sessionID = ""
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		readings, _, err = c.fetch(ctx, maxCount, minutes)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return readings, nil
}

func (c *Client) fetch(ctx context.Context, maxCount, minutes int) ([]Reading, int, error) {
	params := url.Values{}
	params.Set("sessionId", c.sessionID)
	params.Set("minutes", strconv.Itoa(minutes))
	params.Set("maxCount", strconv.Itoa(maxCount))

	var readings []Reading
	status, err := c.post(ctx, "/Publisher/ReadPublisherLatestGlucoseValues?"+params.Encode(), nil, &readings)
	return readings, status, err
}

// Readings returns the snapshot covering lookback, newest first. Entries
// with an unparseable timestamp are dropped.
func (c *Client) Readings(ctx context.Context, lookback time.Duration) ([]glucose.Reading, error) {
	minutes := int(lookback.Minutes())
	raw, err := c.FetchReadings(ctx, min(minutes/5+1, MaxCount), minutes)
	if err != nil {
		return nil, err
	}
	return ToReadings(raw), nil
}

// ToReadings converts Dexcom readings to a newest-first snapshot.
func ToReadings(raw []Reading) []glucose.Reading {
	readings := make([]glucose.Reading, 0, len(raw))
	for _, r := range raw {
		ms := ParseTimestamp(r.WT)
		if ms == 0 {
			continue
		}
		readings = append(readings, glucose.Reading{
			Timestamp: time.UnixMilli(ms),
			Value:     float64(r.Value),
		})
	}
	return glucose.SortNewestFirst(readings)
}

var timestampPattern = regexp.MustCompile(`Date\((\d+)(?:[+-]\d{4})?\)`)

// ParseTimestamp parses a Dexcom timestamp "Date(1234567890000)" to Unix milliseconds.
func ParseTimestamp(wt string) int64 {
	matches := timestampPattern.FindStringSubmatch(wt)
	if len(matches) < 2 {
		return 0
	}
	ms, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
