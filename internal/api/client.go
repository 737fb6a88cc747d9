// Package api implements the discrete request/response boundary used when
// the push channel is unavailable.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pscheid92/reviewpulse/internal/domain"
	"github.com/pscheid92/reviewpulse/internal/metrics"
	platformerrors "github.com/pscheid92/reviewpulse/internal/platform/errors"
	"golang.org/x/sync/singleflight"
)

// Client is a JSON client for the backend's REST surface.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// analytics requests triggered from several places at once collapse
	// into one round trip.
	analyticsGroup singleflight.Group
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Text     string `json:"text"`
	SaveToDB bool   `json:"save_to_db"`
}

// AnalyzeText submits one text for analysis. A response body carrying a
// non-empty error field is an application-level failure even when the
// transport succeeded.
func (c *Client) AnalyzeText(ctx context.Context, text string, saveToDB bool) (*domain.AnalysisResult, error) {
	start := time.Now()
	defer func() {
		metrics.FallbackDuration.Observe(time.Since(start).Seconds())
	}()

	var result domain.AnalysisResult
	err := c.postJSON(ctx, "/api/analyze", analyzeRequest{Text: text, SaveToDB: saveToDB}, &result)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, platformerrors.ExternalError("analysis failed", fmt.Errorf("%s", result.Error))
	}
	return &result, nil
}

// RecentReviews fetches the most recent analyses.
func (c *Client) RecentReviews(ctx context.Context, limit, offset int) (*domain.RecentReviews, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var reviews domain.RecentReviews
	if err := c.getJSON(ctx, "/api/recent-reviews", query, &reviews); err != nil {
		return nil, err
	}
	return &reviews, nil
}

// Analytics fetches the aggregate analytics summary. Concurrent callers
// share a single round trip.
func (c *Client) Analytics(ctx context.Context) (*domain.AnalyticsSummary, error) {
	v, err, _ := c.analyticsGroup.Do("analytics", func() (any, error) {
		var summary domain.AnalyticsSummary
		if err := c.getJSON(ctx, "/api/analytics", nil, &summary); err != nil {
			return nil, err
		}
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.AnalyticsSummary), nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return platformerrors.InternalError("marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return platformerrors.InternalError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return platformerrors.InternalError("build request", err)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platformerrors.ExternalError("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return platformerrors.ExternalError(
			fmt.Sprintf("%s %s returned %d", req.Method, req.URL.Path, resp.StatusCode),
			fmt.Errorf("%s", bytes.TrimSpace(body)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return platformerrors.ExternalError("decode response", err)
	}
	return nil
}
