// Package orderapi stores orders, comments and notifications in the
// existing EscrowPi backend over its REST API.
//
// The backend owns order numbers, status history and the comment thread.
// Status and dispute writes carry the state the caller last saw; the
// backend answers 409 when it has moved on.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/orders"
	"github.com/escrowpi/escrowpi/internal/pagination"
	"github.com/escrowpi/escrowpi/internal/retry"
	"github.com/escrowpi/escrowpi/internal/traces"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// DefaultTimeout bounds one backend call.
const DefaultTimeout = 15 * time.Second

// Conflict codes the backend returns in the error field of a 409.
const (
	codeStaleState      = "stale_state"
	codeProposalChanged = "proposal_changed"
	codeInvalid         = "invalid_transition"
)

// Client talks to the EscrowPi backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	reads      retry.Policy
}

var (
	_ orders.Store   = (*Client)(nil)
	_ comments.Store = (*CommentStore)(nil)
)

// New creates a client for the backend at baseURL, authenticating with a
// service token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		reads:      retry.DefaultPolicy,
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithReadRetry sets how GETs are retried. Writes are sent once.
func (c *Client) WithReadRetry(p retry.Policy) *Client {
	c.reads = p
	return c
}

// Comments returns the comment store backed by the same backend.
func (c *Client) Comments() *CommentStore {
	return &CommentStore{client: c}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusError is a non-2xx answer from the backend.
type statusError struct {
	Code int
	apiError
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("order api error (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("order api error (%d)", e.Code)
}

var errMalformed = errors.New("malformed response")

// doRequest sends one call. Reads are retried on transport failures and
// 5xx/429 answers; anything else is returned as is.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if method != http.MethodGet {
		return c.send(ctx, method, path, query, body, out)
	}
	return retry.Do(ctx, c.reads, func(ctx context.Context) error {
		err := c.send(ctx, method, path, query, body, out)
		if err != nil && !transient(ctx, err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, errMalformed) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	traces.Inject(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		se := &statusError{Code: resp.StatusCode}
		if json.Unmarshal(respBody, &se.apiError) != nil || se.Message == "" {
			se.Message = strings.TrimSpace(string(respBody))
		}
		return translate(se)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %w", errMalformed, err)
	}
	return nil
}

// translate maps backend answers onto the store's sentinel errors.
func translate(se *statusError) error {
	switch se.Code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", orders.ErrNotFound, se)
	case http.StatusConflict:
		switch se.Error {
		case codeProposalChanged:
			return fmt.Errorf("%w: %w", orders.ErrProposalChanged, se)
		case codeInvalid:
			return fmt.Errorf("%w: %w", txstate.ErrInvalidTransition, se)
		}
		return fmt.Errorf("%w: %w", orders.ErrStaleState, se)
	}
	return se
}

// PingContext checks the backend is reachable.
func (c *Client) PingContext(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Get fetches one order.
func (c *Client) Get(ctx context.Context, id string) (*orders.Order, error) {
	var resp struct {
		Order wireOrder `json:"order"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Order.toOrder()
}

// ListByUser lists the user's orders, newest first, after the cursor.
func (c *Client) ListByUser(ctx context.Context, username string, after *pagination.Cursor, limit int) ([]*orders.Order, error) {
	q := url.Values{}
	q.Set("username", username)
	if after != nil {
		q.Set("after", pagination.Encode(after.CreatedAt, after.ID))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.list(ctx, q)
}

// ListStale lists orders in one of statuses created before the cutoff.
func (c *Client) ListStale(ctx context.Context, statuses []txstate.Status, before time.Time, limit int) ([]*orders.Order, error) {
	q := url.Values{}
	for _, s := range statuses {
		q.Add("status", string(s))
	}
	q.Set("created_before", before.UTC().Format(time.RFC3339Nano))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.list(ctx, q)
}

func (c *Client) list(ctx context.Context, q url.Values) ([]*orders.Order, error) {
	var resp []wireOrder
	if err := c.doRequest(ctx, http.MethodGet, "/orders/", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]*orders.Order, 0, len(resp))
	for i := range resp {
		o, err := resp[i].toOrder()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Create registers a new order under the number the caller generated.
func (c *Client) Create(ctx context.Context, order *orders.Order) error {
	return c.doRequest(ctx, http.MethodPost, "/orders/", fromOrder(order), nil)
}

type statusRequest struct {
	Status         txstate.Status `json:"status"`
	ExpectedStatus txstate.Status `json:"expected_status"`
	Actor          string         `json:"actor"`
	PaymentID      string         `json:"payment_id,omitempty"`
	TxID           string         `json:"txid,omitempty"`
}

type orderCommentResponse struct {
	Order   wireOrder    `json:"order"`
	Comment *wireComment `json:"comment"`
}

func (r *orderCommentResponse) decode() (*orders.Order, *comments.Comment, error) {
	o, err := r.Order.toOrder()
	if err != nil {
		return nil, nil, err
	}
	if r.Comment == nil {
		return o, nil, nil
	}
	return o, r.Comment.toComment(), nil
}

// UpdateStatus commits a transition. The backend writes the audit comment
// and returns it alongside the order.
func (c *Client) UpdateStatus(ctx context.Context, id string, u orders.StatusUpdate) (*orders.Order, *comments.Comment, error) {
	req := statusRequest{Status: u.To, ExpectedStatus: u.From, Actor: u.Actor}
	if u.Receipt != nil {
		req.PaymentID = u.Receipt.PaymentID
		req.TxID = u.Receipt.TxID
	}
	var resp orderCommentResponse
	if err := c.doRequest(ctx, http.MethodPut, "/orders/update-status/"+url.PathEscape(id), nil, req, &resp); err != nil {
		return nil, nil, err
	}
	return resp.decode()
}

type disputeRequest struct {
	Op       string      `json:"op"`
	Expected wireDispute `json:"expected"`
	Dispute  wireDispute `json:"dispute"`
}

func (c *Client) writeDispute(ctx context.Context, id, op string, expected, next dispute.Dispute) (*orderCommentResponse, error) {
	req := disputeRequest{Op: op, Expected: fromDispute(expected), Dispute: fromDispute(next)}
	var resp orderCommentResponse
	if err := c.doRequest(ctx, http.MethodPut, "/orders/"+url.PathEscape(id)+"/dispute", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProposeDispute records a refund proposal.
func (c *Client) ProposeDispute(ctx context.Context, id string, expected, proposal dispute.Dispute) (*orders.Order, error) {
	resp, err := c.writeDispute(ctx, id, "propose", expected, proposal)
	if err != nil {
		return nil, err
	}
	return resp.Order.toOrder()
}

// AcceptDispute freezes the accepted proposal; the backend releases the
// order in the same write.
func (c *Client) AcceptDispute(ctx context.Context, id string, expected, accepted dispute.Dispute) (*orders.Order, *comments.Comment, error) {
	resp, err := c.writeDispute(ctx, id, "accept", expected, accepted)
	if err != nil {
		return nil, nil, err
	}
	return resp.decode()
}

// ClearDispute withdraws or declines the outstanding proposal.
func (c *Client) ClearDispute(ctx context.Context, id string, expected dispute.Dispute) (*orders.Order, error) {
	resp, err := c.writeDispute(ctx, id, "clear", expected, dispute.Dispute{Status: dispute.StatusNone})
	if err != nil {
		return nil, err
	}
	return resp.Order.toOrder()
}

// CommentStore is the comment thread in the backend.
type CommentStore struct {
	client *Client
}

// Add posts a comment.
func (s *CommentStore) Add(ctx context.Context, c *comments.Comment) error {
	return s.client.doRequest(ctx, http.MethodPost, "/comments/", fromComment(c), nil)
}

// List returns the newest limit comments of an order, oldest first. The
// backend returns whole threads; trimming happens here.
func (s *CommentStore) List(ctx context.Context, orderID string, limit int) ([]*comments.Comment, error) {
	var resp []wireComment
	err := s.client.doRequest(ctx, http.MethodGet, "/comments/"+url.PathEscape(orderID), nil, nil, &resp)
	if err != nil {
		// An order with no thread yet is an empty thread.
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]*comments.Comment, 0, len(resp))
	for i := range resp {
		out = append(out, resp[i].toComment())
	}
	return comments.Latest(out, limit), nil
}
