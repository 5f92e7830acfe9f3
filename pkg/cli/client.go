package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/heartbeat/pkg/api"
	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
	"github.com/platinummonkey/heartbeat/pkg/httputil"
)

// StatsClient reads the aggregate API.
type StatsClient struct {
	baseURL string
	client  *http.Client
}

// NewStatsClient creates a client for the server at baseURL.
func NewStatsClient(baseURL string, client *http.Client) *StatsClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &StatsClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// DailySeries fetches the daily series of appID.
func (c *StatsClient) DailySeries(ctx context.Context, appID string, env heartbeat.Environment) (*api.DailyResponse, error) {
	var resp api.DailyResponse
	path := "/api/v1/apps/" + url.PathEscape(appID) + "/daily"
	if err := c.get(ctx, path, url.Values{"env": {string(env)}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Versions fetches the version breakdown of appID.
func (c *StatsClient) Versions(ctx context.Context, appID string, env heartbeat.Environment) (*api.VersionsResponse, error) {
	var resp api.VersionsResponse
	path := "/api/v1/apps/" + url.PathEscape(appID) + "/versions"
	if err := c.get(ctx, path, url.Values{"env": {string(env)}}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Leaderboard fetches the leaderboard of day; a zero day means today on
// the server.
func (c *StatsClient) Leaderboard(ctx context.Context, env heartbeat.Environment, day heartbeat.Date) (*api.LeaderboardResponse, error) {
	var resp api.LeaderboardResponse
	params := url.Values{"env": {string(env)}}
	if !day.IsZero() {
		params.Set("date", day.String())
	}
	if err := c.get(ctx, "/api/v1/leaderboard", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *StatsClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	target := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr httputil.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
