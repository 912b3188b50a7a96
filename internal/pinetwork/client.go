// Package pinetwork is a client for the Pi Platform API: it resolves user
// access tokens to usernames and approves/completes payments that a
// payer created with the Pi SDK.
package pinetwork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/payments"
)

var (
	ErrUnauthenticated = errors.New("pi access token rejected")
	ErrPaymentRequired = errors.New("payment identifier required")
	ErrNotOnChain      = errors.New("payment has no blockchain transaction yet")
	ErrForeignPayment  = errors.New("payment was created for a different order")
)

// Config holds the Pi Platform settings.
type Config struct {
	APIURL string // e.g. "https://api.minepi.com/v2"
	APIKey string // server API key, sent as "Key <apiKey>"
}

// Client is a pure HTTP client for the Pi Platform API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a Pi Platform client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// APIError is a non-2xx answer from the platform.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"error_message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pi api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pi api error (%d)", e.StatusCode)
}

// User is the authenticated Pioneer.
type User struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// PaymentStatus mirrors the platform's payment status flags.
type PaymentStatus struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

// Transaction is the on-chain part of a payment.
type Transaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// Payment is a Pi payment as reported by the platform.
type Payment struct {
	Identifier  string          `json:"identifier"`
	UserUID     string          `json:"user_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
	Metadata    map[string]any  `json:"metadata"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Direction   string          `json:"direction"`
	CreatedAt   string          `json:"created_at"`
	Network     string          `json:"network"`
	Status      PaymentStatus   `json:"status"`
	Transaction *Transaction    `json:"transaction"`
}

type authScheme int

const (
	userToken authScheme = iota
	serverKey
)

func (c *Client) do(ctx context.Context, method, path, credential string, scheme authScheme, body, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
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
	if scheme == serverKey {
		req.Header.Set("Authorization", "Key "+credential)
	} else {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Me returns the Pioneer owning accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/me", accessToken, userToken, nil, &u)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return User{}, ErrUnauthenticated
	}
	if err != nil {
		return User{}, err
	}
	if u.Username == "" {
		return User{}, ErrUnauthenticated
	}
	return u, nil
}

// CurrentUsername resolves an access token to a username.
func (c *Client) CurrentUsername(ctx context.Context, accessToken string) (string, error) {
	u, err := c.Me(ctx, accessToken)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// GetPayment fetches a payment by identifier.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	var p Payment
	err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), c.cfg.APIKey, serverKey, nil, &p)
	return p, err
}

// ApprovePayment marks the payment approved by this app.
func (c *Client) ApprovePayment(ctx context.Context, id string) (Payment, error) {
	var p Payment
	err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(id)+"/approve", c.cfg.APIKey, serverKey, nil, &p)
	return p, err
}

// CompletePayment acknowledges the on-chain transaction.
func (c *Client) CompletePayment(ctx context.Context, id, txid string) (Payment, error) {
	var p Payment
	err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(id)+"/complete", c.cfg.APIKey, serverKey,
		map[string]string{"txid": txid}, &p)
	return p, err
}

// Pay implements payments.Provider on top of a payment the payer created
// with the Pi SDK: it checks the payment belongs to the order and matches
// its total, approves it if needed and completes it with the on-chain txid.
//
// The payment's metadata.orderId must name req.OrderID. A payment this app
// already completed is only accepted under that binding, so a retry after a
// lost response resumes while a settled payment cannot fund another order.
func (c *Client) Pay(ctx context.Context, req payments.Request) (payments.Receipt, error) {
	if req.PaymentID == "" {
		return payments.Receipt{}, fmt.Errorf("%w: %w", payments.ErrDeclined, ErrPaymentRequired)
	}

	p, err := c.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return payments.Receipt{}, c.wrap(err)
	}
	if p.Status.Cancelled || p.Status.UserCancelled {
		return payments.Receipt{}, fmt.Errorf("%w: payment %s was cancelled", payments.ErrDeclined, p.Identifier)
	}
	if orderID, _ := p.Metadata["orderId"].(string); orderID == "" || orderID != req.OrderID {
		return payments.Receipt{}, fmt.Errorf("%w: %w: payment %s is bound to %q, not %s",
			payments.ErrDeclined, ErrForeignPayment, p.Identifier, orderID, req.OrderID)
	}
	if !p.Amount.Equal(req.Amount) {
		return payments.Receipt{}, fmt.Errorf("%w: rail has %s, order needs %s", payments.ErrAmountMismatch, p.Amount, req.Amount)
	}

	if !p.Status.DeveloperApproved {
		if p, err = c.ApprovePayment(ctx, req.PaymentID); err != nil {
			return payments.Receipt{}, c.wrap(err)
		}
	}

	txid := req.TxID
	if p.Transaction != nil && (txid == "" || p.Status.DeveloperCompleted) {
		txid = p.Transaction.TxID
	}
	if txid == "" {
		return payments.Receipt{}, fmt.Errorf("%w: %w", payments.ErrDeclined, ErrNotOnChain)
	}

	if !p.Status.DeveloperCompleted {
		if _, err := c.CompletePayment(ctx, req.PaymentID, txid); err != nil {
			return payments.Receipt{}, c.wrap(err)
		}
	}

	return payments.Receipt{
		PaymentID: req.PaymentID,
		TxID:      txid,
		Amount:    p.Amount,
		PaidAt:    time.Now(),
	}, nil
}

// wrap classifies platform errors: 4xx answers about the payment are
// declines, everything else means the rail is unavailable.
func (c *Client) wrap(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", payments.ErrDeclined, err)
	}
	return fmt.Errorf("%w: %w", payments.ErrUnavailable, err)
}

var _ payments.Provider = (*Client)(nil)
