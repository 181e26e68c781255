package colaborasdk

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

// Client is a minimal Colabora HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
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

// Project represents the API project model.
type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// Request represents a collaboration request.
type Request struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	NeedRef      string `json:"need_ref,omitempty"`
	Title        string `json:"title"`
	RequestType  string `json:"request_type"`
	TargetQty    *int64 `json:"target_qty,omitempty"`
	ReservedQty  int64  `json:"reserved_qty"`
	FulfilledQty int64  `json:"fulfilled_qty"`
	Status       string `json:"status"`
}

// Commitment represents a pledge against a request.
type Commitment struct {
	ID          string `json:"id"`
	RequestID   string `json:"request_id"`
	ActorLabel  string `json:"actor_label,omitempty"`
	Amount      *int64 `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CommittedAt string `json:"committed_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Tokens holds an access/refresh pair from login.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for tokens and stores the access token on the
// client.
func (c *Client) Login(ctx context.Context, username, password string) (Tokens, error) {
	body := map[string]any{"username": username, "password": password}
	var resp Tokens
	if err := c.do(ctx, http.MethodPost, "v1/auth/login", body, &resp); err != nil {
		return resp, err
	}
	c.BearerToken = resp.AccessToken
	return resp, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, title, description string) (Project, error) {
	body := map[string]any{"title": title, "description": description}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// CreateRequest creates a collaboration request.
func (c *Client) CreateRequest(ctx context.Context, projectID, title, requestType string, targetQty *int64) (Request, error) {
	body := map[string]any{
		"project_id":   projectID,
		"title":        title,
		"request_type": requestType,
	}
	if targetQty != nil {
		body["target_qty"] = *targetQty
	}
	var resp Request
	err := c.do(ctx, http.MethodPost, "v1/requests", body, &resp)
	return resp, err
}

// ListRequests lists requests, optionally filtered by project and status.
func (c *Client) ListRequests(ctx context.Context, projectID, status string) ([]Request, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "v1/requests"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Request
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateCommitment pledges against an open request.
func (c *Client) CreateCommitment(ctx context.Context, requestID, actorLabel string, amount *int64) (Commitment, error) {
	body := map[string]any{
		"request_id":  requestID,
		"actor_label": actorLabel,
	}
	if amount != nil {
		body["amount"] = *amount
	}
	var resp Commitment
	err := c.do(ctx, http.MethodPost, "v1/commitments", body, &resp)
	return resp, err
}

// AcceptCommitment accepts a commitment.
func (c *Client) AcceptCommitment(ctx context.Context, id string) error {
	return c.transition(ctx, id, "accept")
}

// RejectCommitment rejects a commitment, reopening its request.
func (c *Client) RejectCommitment(ctx context.Context, id string) error {
	return c.transition(ctx, id, "reject")
}

// ExecuteCommitment executes a commitment.
func (c *Client) ExecuteCommitment(ctx context.Context, id string) error {
	return c.transition(ctx, id, "execute")
}

func (c *Client) transition(ctx context.Context, id, verb string) error {
	endpoint := fmt.Sprintf("v1/commitments/%s/%s", url.PathEscape(id), verb)
	var resp struct {
		OK bool `json:"ok"`
	}
	return c.do(ctx, http.MethodPost, endpoint, struct{}{}, &resp)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
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
