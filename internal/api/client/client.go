// Package client is a typed client for the SiteWatch HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sitewatch/internal/models"
	"github.com/sitewatch/internal/monitor"
	"github.com/sitewatch/internal/notify"
	"github.com/sitewatch/internal/report"
)

const DefaultBaseURL = "http://localhost:8080"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Monitoring

func (c *Client) Scan(ctx context.Context) (*monitor.PassSummary, error) {
	var summary monitor.PassSummary
	if err := c.do(ctx, http.MethodPost, "/api/v1/monitoring/scan", nil, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) PollingStatus(ctx context.Context) (*monitor.SchedulerStatus, error) {
	var st monitor.SchedulerStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/monitoring/polling", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SetPolling starts or stops the server's polling loop.
func (c *Client) SetPolling(ctx context.Context, enabled bool) (map[string]interface{}, error) {
	action := "stop"
	if enabled {
		action = "start"
	}
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/api/v1/monitoring/polling/"+action, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sites

func (c *Client) ListSites(ctx context.Context, outagesOnly bool) ([]models.SiteMonitoring, error) {
	endpoint := "/api/v1/sites"
	if outagesOnly {
		endpoint = "/api/v1/sites/outages"
	}
	var sites []models.SiteMonitoring
	if err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

type SiteDetail struct {
	Site   models.SiteMonitoring `json:"site"`
	Events []models.AlertEvent   `json:"events"`
}

func (c *Client) GetSite(ctx context.Context, siteID string) (*SiteDetail, error) {
	var detail SiteDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/sites/"+url.PathEscape(siteID), nil, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Events

type EventQuery struct {
	Status    string
	Severity  string
	EventType string
	SiteID    string
	Limit     int
}

func (c *Client) ListEvents(ctx context.Context, q EventQuery) ([]models.AlertEvent, error) {
	query := url.Values{}
	setIf(query, "status", q.Status)
	setIf(query, "severity", q.Severity)
	setIf(query, "event_type", q.EventType)
	setIf(query, "site_id", q.SiteID)
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var events []models.AlertEvent
	if err := c.do(ctx, http.MethodGet, "/api/v1/events", query, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) ListActiveEvents(ctx context.Context) ([]models.AlertEvent, error) {
	var events []models.AlertEvent
	if err := c.do(ctx, http.MethodGet, "/api/v1/events/active", nil, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) GetEvent(ctx context.Context, id uint) (*models.AlertEvent, error) {
	var event models.AlertEvent
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/events/%d", id), nil, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) CreateEvent(ctx context.Context, in map[string]interface{}) (*models.AlertEvent, error) {
	var event models.AlertEvent
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", nil, in, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) AcknowledgeEvent(ctx context.Context, id uint, user, note string) (*models.AlertEvent, error) {
	return c.transition(ctx, id, "acknowledge", user, note)
}

func (c *Client) ResolveEvent(ctx context.Context, id uint, user, note string) (*models.AlertEvent, error) {
	return c.transition(ctx, id, "resolve", user, note)
}

func (c *Client) transition(ctx context.Context, id uint, action, user, note string) (*models.AlertEvent, error) {
	body := map[string]string{"user": user, "note": note}
	var event models.AlertEvent
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/events/%d/%s", id, action), nil, body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/events/%d", id), nil, nil, nil)
}

// Post-mortems

func (c *Client) ListPostMortems(ctx context.Context, status string, limit int) ([]models.PostMortem, error) {
	query := url.Values{}
	setIf(query, "status", status)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var pms []models.PostMortem
	if err := c.do(ctx, http.MethodGet, "/api/v1/post-mortems", query, nil, &pms); err != nil {
		return nil, err
	}
	return pms, nil
}

func (c *Client) GetPostMortem(ctx context.Context, id uint) (*models.PostMortem, error) {
	var pm models.PostMortem
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/post-mortems/%d", id), nil, nil, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func (c *Client) CreatePostMortem(ctx context.Context, eventID uint, in map[string]interface{}) (*models.PostMortem, error) {
	body := map[string]interface{}{"alert_event_id": eventID}
	for k, v := range in {
		body[k] = v
	}
	var pm models.PostMortem
	if err := c.do(ctx, http.MethodPost, "/api/v1/post-mortems", nil, body, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

// UpdatePostMortem sends a partial update; only keys present in fields change.
func (c *Client) UpdatePostMortem(ctx context.Context, id uint, fields map[string]interface{}) (*models.PostMortem, error) {
	var pm models.PostMortem
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/post-mortems/%d", id), nil, fields, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func (c *Client) CompletePostMortem(ctx context.Context, id uint) (*models.PostMortem, error) {
	var pm models.PostMortem
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/post-mortems/%d/complete", id), nil, nil, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func (c *Client) ReviewPostMortem(ctx context.Context, id uint, reviewer string) (*models.PostMortem, error) {
	var pm models.PostMortem
	body := map[string]string{"reviewer": reviewer}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/post-mortems/%d/review", id), nil, body, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func (c *Client) DeletePostMortem(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/post-mortems/%d", id), nil, nil, nil)
}

func (c *Client) PostMortemReport(ctx context.Context, id uint) (*report.Report, error) {
	var rep report.Report
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/post-mortems/%d/report", id), nil, nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *Client) ReliabilitySummary(ctx context.Context, from, to *time.Time) (*report.Summary, error) {
	query := url.Values{}
	if from != nil {
		query.Set("from", from.Format(time.RFC3339))
	}
	if to != nil {
		query.Set("to", to.Format(time.RFC3339))
	}
	var summary report.Summary
	if err := c.do(ctx, http.MethodGet, "/api/v1/post-mortems/metrics", query, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Notifications

func (c *Client) ListNotifications(ctx context.Context, eventID uint, status string, limit int) ([]models.AlertNotification, error) {
	query := url.Values{}
	if eventID > 0 {
		query.Set("event_id", strconv.FormatUint(uint64(eventID), 10))
	}
	setIf(query, "status", status)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var rows []models.AlertNotification
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications", query, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetNotification(ctx context.Context, id uint) (*models.AlertNotification, error) {
	var row models.AlertNotification
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/notifications/%d", id), nil, nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Client) RetryNotification(ctx context.Context, id uint) (*models.AlertNotification, error) {
	var row models.AlertNotification
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/retry", id), nil, nil, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Client) RecoverySweep(ctx context.Context) (*notify.SweepResult, error) {
	var res notify.SweepResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/notifications/recovery-sweep", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, data, v interface{}) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
