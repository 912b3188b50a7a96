package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings for reaching the EscrowPi API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AccessToken string // Pi access token of the user the agent acts for
	// Username is sent as X-Pi-Username instead of a token. Only a server
	// in demo mode accepts it.
	Username string
}

const maxResponseBytes = 1 << 20

// EscrowPiClient calls the EscrowPi HTTP API as one user and hands the
// raw JSON back to the tool handlers.
type EscrowPiClient struct {
	base       string
	cfg        Config
	httpClient *http.Client
}

// NewEscrowPiClient creates a new client for the EscrowPi API.
func NewEscrowPiClient(cfg Config) *EscrowPiClient {
	return &EscrowPiClient{
		base:       strings.TrimRight(cfg.APIURL, "/"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the API. Kind is the error kind of
// the JSON error body when there is one.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func orderPath(id string, rest ...string) string {
	p := "/v1/orders/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *EscrowPiClient) call(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	} else if c.cfg.Username != "" {
		req.Header.Set("X-Pi-Username", c.cfg.Username)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 300 {
		return json.RawMessage(raw), nil
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var decoded struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &decoded) == nil && decoded.Message != "" {
		apiErr.Kind, apiErr.Message = decoded.Error, decoded.Message
	}
	return nil, apiErr
}

// ListOrders lists the user's orders, newest first.
func (c *EscrowPiClient) ListOrders(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.call(ctx, http.MethodGet, "/v1/orders", q, nil)
}

// GetOrder fetches one order as the user sees it.
func (c *EscrowPiClient) GetOrder(ctx context.Context, id string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, orderPath(id), nil, nil)
}

type createBody struct {
	Counterparty string `json:"counterparty"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	Note         string `json:"note"`
}

// CreateOrder starts a send or request order.
func (c *EscrowPiClient) CreateOrder(ctx context.Context, counterparty, orderType, amount, note string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/v1/orders", nil, createBody{
		Counterparty: counterparty,
		Type:         orderType,
		Amount:       amount,
		Note:         note,
	})
}

type actionBody struct {
	Action         string `json:"action"`
	ExpectedStatus string `json:"expectedStatus"`
}

// Act applies a lifecycle action. expectedStatus is the status the agent
// last saw.
func (c *EscrowPiClient) Act(ctx context.Context, id, action, expectedStatus string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, orderPath(id, "actions"), nil, actionBody{action, expectedStatus})
}

type disputeBody struct {
	Percent string `json:"percent,omitempty"`
}

// Dispute sends one of propose, accept, withdraw or decline.
func (c *EscrowPiClient) Dispute(ctx context.Context, id, op, percent string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, orderPath(id, "dispute", op), nil, disputeBody{percent})
}

// AddComment posts to an order's thread.
func (c *EscrowPiClient) AddComment(ctx context.Context, id, text string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, orderPath(id, "comments"), nil, struct {
		Text string `json:"text"`
	}{text})
}
