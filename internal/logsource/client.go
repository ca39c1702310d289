// Package logsource pulls firewall events from the upstream log API and turns
// them into ingest candidates.
package logsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"ipwarden/internal/domain"
	"ipwarden/internal/support"
)

const maxResponseBytes = 64 << 20

var (
	ErrMissingURL  = errors.New("logsource: api url is not configured")
	ErrMissingKey  = errors.New("logsource: api key is not configured")
	errBadResponse = errors.New("logsource: unexpected response")
)

// Client fetches one batch of events per call.
type Client struct {
	HTTP    *http.Client
	URL     string
	APIKey  string
	Limiter *rate.Limiter
}

type response struct {
	Logs []event `json:"logs"`
}

type event struct {
	RayID     string          `json:"rayId"`
	IP        string          `json:"ip"`
	Endpoint  string          `json:"endpoint"`
	UserAgent string          `json:"userAgent"`
	Action    string          `json:"action"`
	Country   string          `json:"country"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Fetch downloads the current event batch. A non-200 status is an error.
func (c *Client) Fetch(ctx context.Context) ([]domain.AddressRecord, error) {
	if strings.TrimSpace(c.URL) == "" {
		return nil, ErrMissingURL
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, ErrMissingKey
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := support.NewGetRequest(ctx, c.URL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.APIKey)
	req.Header.Set("Accept", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("%w: status %d: %s", errBadResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}

	return Decode(body)
}

// Decode converts an API payload into candidates. Missing string fields
// become "". An unreadable timestamp leaves ObservedAt zero.
func Decode(body []byte) ([]domain.AddressRecord, error) {
	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode logs: %v", errBadResponse, err)
	}

	records := make([]domain.AddressRecord, 0, len(payload.Logs))
	for _, ev := range payload.Logs {
		observed, err := parseTimestamp(ev.Timestamp)
		if err != nil {
			log.Warn("Unreadable event timestamp", "ray_id", ev.RayID, "value", string(ev.Timestamp), "error", err)
		}
		records = append(records, domain.AddressRecord{
			ObservedAt: observed,
			EventID:    ev.RayID,
			Address:    ev.IP,
			Endpoint:   ev.Endpoint,
			UserAgent:  ev.UserAgent,
			Action:     ev.Action,
			Country:    ev.Country,
		})
	}

	log.Debug("Decoded log batch", "events", len(records))
	return records, nil
}

// parseTimestamp accepts an RFC3339 string, a numeric string or a JSON
// number of epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return time.Time{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return time.Time{}, nil
		}
		if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return domain.ParseTimestamp(text)
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}
