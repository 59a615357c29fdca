package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
)

// Client is the API client for devpulse
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetOrgSummary retrieves the organization activity summary
func (c *Client) GetOrgSummary(org string, start, end time.Time, granularity string) (*domain.OrgSummary, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/summary", org)
	params := c.buildTimeParams(start, end, granularity)

	var response struct {
		Data *domain.OrgSummary `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetMembersActivity retrieves activity for all members
func (c *Client) GetMembersActivity(org string, start, end time.Time) ([]*domain.MemberMetrics, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/members/activity", org)
	params := c.buildTimeParams(start, end, "")

	var response struct {
		Data []*domain.MemberMetrics `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetMemberActivity retrieves activity for one member
func (c *Client) GetMemberActivity(org, member string, start, end time.Time) (*domain.MemberMetrics, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/members/%s/activity", org, member)
	params := c.buildTimeParams(start, end, "")

	var response struct {
		Data *domain.MemberMetrics `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetTimeSeries retrieves bucketed counts for one record kind
func (c *Client) GetTimeSeries(org string, kind domain.RecordKind, start, end time.Time, granularity string) (*domain.TimeSeriesData, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/timeseries", org)
	params := c.buildTimeParams(start, end, granularity)
	params.Set("kind", string(kind))

	var response struct {
		Data *domain.TimeSeriesData `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetReleases retrieves releases, optionally filtered by environment
func (c *Client) GetReleases(org string, env domain.Environment, start, end time.Time) ([]domain.Release, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/releases", org)
	params := c.buildTimeParams(start, end, "")
	if env != "" {
		params.Set("env", string(env))
	}

	var response struct {
		Data []domain.Release `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetLatestRun retrieves the most recent collection run
func (c *Client) GetLatestRun(org string) (*domain.CollectionRun, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/runs/latest", org)

	var response struct {
		Data *domain.CollectionRun `json:"data"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) buildTimeParams(start, end time.Time, granularity string) url.Values {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.Format("2006-01-02"))
	}
	if !end.IsZero() {
		params.Set("end", end.Format("2006-01-02"))
	}
	if granularity != "" {
		params.Set("granularity", granularity)
	}
	return params
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
