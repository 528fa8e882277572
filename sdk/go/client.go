package giglinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Gigline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	OwnerID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Order represents the API gig order model (partial).
type Order struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	VendorName  string  `json:"vendor_name"`
	ServiceName string  `json:"service_name"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	DueAt       string  `json:"due_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Escalation represents an SLA escalation record.
type Escalation struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	HoursOverdue int    `json:"hours_overdue"`
	DetectedAt   string `json:"detected_at"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
}

// DashboardMetrics mirrors the dashboard metrics block.
type DashboardMetrics struct {
	TotalOrders   int     `json:"total_orders"`
	OpenOrders    int     `json:"open_orders"`
	ClosedOrders  int     `json:"closed_orders"`
	ValueInFlight float64 `json:"value_in_flight"`
	EscrowHeld    float64 `json:"escrow_held"`
}

// Dashboard is the orders dashboard snapshot.
type Dashboard struct {
	OwnerID     string           `json:"owner_id"`
	GeneratedAt string           `json:"generated_at"`
	Orders      []Order          `json:"orders"`
	Metrics     DashboardMetrics `json:"metrics"`
	SLABreaches int              `json:"sla_breaches"`
	Alerts      []map[string]any `json:"alerts,omitempty"`
}

// Project represents the API project model (partial).
type Project struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// WorkspaceRecord is one workspace entity record.
type WorkspaceRecord struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Fields      map[string]any `json:"fields"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// OrdersDashboard fetches the company orders dashboard, optionally filtered
// by status bucket.
func (c *Client) OrdersDashboard(ctx context.Context, status string) (Dashboard, error) {
	endpoint := "v0/orders/dashboard"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListOrders returns the caller's orders.
func (c *Client) ListOrders(ctx context.Context, status string) ([]Order, error) {
	endpoint := "v0/orders"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Order
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateOrder creates a gig order.
func (c *Client) CreateOrder(ctx context.Context, vendorName, serviceName string, amount float64, dueAt string) (Order, error) {
	body := map[string]any{
		"vendor_name":  vendorName,
		"service_name": serviceName,
		"amount":       amount,
	}
	if dueAt != "" {
		body["due_at"] = dueAt
	}
	var resp Order
	err := c.do(ctx, http.MethodPost, "v0/orders", body, &resp)
	return resp, err
}

// UpdateOrderStatus transitions an order's status.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID, status string) (Order, error) {
	body := map[string]any{"status": status}
	var resp Order
	endpoint := fmt.Sprintf("v0/orders/%s", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// ListEscalations returns SLA escalations, optionally only open ones.
func (c *Client) ListEscalations(ctx context.Context, openOnly bool) ([]Escalation, error) {
	endpoint := "v0/escalations"
	if openOnly {
		endpoint += "?open=true"
	}
	var resp []Escalation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ResolveEscalations closes all open escalations for an order.
func (c *Client) ResolveEscalations(ctx context.Context, orderID, resolution string) (int, error) {
	body := map[string]any{"resolution": resolution}
	var resp struct {
		Resolved int `json:"resolved"`
	}
	endpoint := fmt.Sprintf("v0/orders/%s/escalations/resolve", url.PathEscape(orderID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Resolved, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name string) (Project, error) {
	body := map[string]any{"name": name}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// ListProjects returns the caller's projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// CreateWorkspaceEntity creates one workspace entity record.
func (c *Client) CreateWorkspaceEntity(ctx context.Context, projectID, entity string, payload map[string]any) (WorkspaceRecord, error) {
	var resp WorkspaceRecord
	endpoint := fmt.Sprintf("v0/projects/%s/workspace/management/%s", url.PathEscape(projectID), url.PathEscape(entity))
	err := c.do(ctx, http.MethodPost, endpoint, payload, &resp)
	return resp, err
}

// UpdateWorkspaceEntity updates one workspace entity record.
func (c *Client) UpdateWorkspaceEntity(ctx context.Context, projectID, entity, recordID string, payload map[string]any) (WorkspaceRecord, error) {
	var resp WorkspaceRecord
	endpoint := fmt.Sprintf("v0/projects/%s/workspace/management/%s/%s", url.PathEscape(projectID), url.PathEscape(entity), url.PathEscape(recordID))
	err := c.do(ctx, http.MethodPut, endpoint, payload, &resp)
	return resp, err
}

// DeleteWorkspaceEntity deletes one workspace entity record.
func (c *Client) DeleteWorkspaceEntity(ctx context.Context, projectID, entity, recordID string) error {
	endpoint := fmt.Sprintf("v0/projects/%s/workspace/management/%s/%s", url.PathEscape(projectID), url.PathEscape(entity), url.PathEscape(recordID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ListWorkspaceEntities lists records of one workspace entity kind.
func (c *Client) ListWorkspaceEntities(ctx context.Context, projectID, entity string) ([]WorkspaceRecord, error) {
	var resp []WorkspaceRecord
	endpoint := fmt.Sprintf("v0/projects/%s/workspace/management/%s", url.PathEscape(projectID), url.PathEscape(entity))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.OwnerID != "":
		req.Header.Set("X-Owner-Id", c.OwnerID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
