// Package footballdata is a REST client for the football-data.org v4 API.
package footballdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// DefaultBaseURL is the public v4 API root.
const DefaultBaseURL = "https://api.football-data.org/v4"

// Client fetches fixtures and live match detail.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client authenticating with the X-Auth-Token header.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// ListMatches returns fixtures between from and to (inclusive dates) for the
// given competition codes.
func (c *Client) ListMatches(ctx context.Context, from, to time.Time, competitions []string) ([]domain.MatchSnapshot, error) {
	params := url.Values{}
	params.Set("dateFrom", from.UTC().Format(time.DateOnly))
	params.Set("dateTo", to.UTC().Format(time.DateOnly))
	if len(competitions) > 0 {
		params.Set("competitions", strings.Join(competitions, ","))
	}

	body, err := c.doGet(ctx, "/matches?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("footballdata: list matches: %w", err)
	}

	var list matchList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("footballdata: decode matches: %w", err)
	}

	at := c.now()
	out := make([]domain.MatchSnapshot, 0, len(list.Matches))
	for _, m := range list.Matches {
		out = append(out, m.ToSnapshot(at))
	}
	return out, nil
}

// GetMatch returns the current state of one fixture.
func (c *Client) GetMatch(ctx context.Context, fixtureID int64) (domain.MatchSnapshot, error) {
	body, err := c.doGet(ctx, "/matches/"+strconv.FormatInt(fixtureID, 10))
	if err != nil {
		return domain.MatchSnapshot{}, fmt.Errorf("footballdata: get match %d: %w", fixtureID, err)
	}

	var m APIMatch
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.MatchSnapshot{}, fmt.Errorf("footballdata: decode match %d: %w", fixtureID, err)
	}
	return m.ToSnapshot(c.now()), nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		if statusCode >= 500 {
			return fmt.Errorf("%w: HTTP %d: %s", domain.ErrFeedUnavailable, statusCode, msg)
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
