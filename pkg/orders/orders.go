// Package orders is the typed client for the order/account collaborator.
// Call shapes mirror the collaborator's fixed contract: one POST per
// operation, an {ok, error} envelope around every response.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ contractx.OrderService = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("orders url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid orders url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type lookupCustomerResponse struct {
	envelope
	Customer contractx.Customer `json:"customer"`
}

type getOrderResponse struct {
	envelope
	Order contractx.Order `json:"order"`
}

type orderHistoryResponse struct {
	envelope
	Orders []contractx.Order `json:"orders"`
}

type refundResponse struct {
	envelope
	Refund contractx.RefundReceipt `json:"refund"`
}

func (c *Client) LookupCustomer(ctx context.Context, query contractx.CustomerQuery) (contractx.Customer, error) {
	if query.Empty() {
		return contractx.Customer{}, fmt.Errorf("%w: provide email or customer_id", contractx.ErrValidation)
	}

	var resp lookupCustomerResponse
	if err := c.post(ctx, "lookup_customer", query, &resp, nil); err != nil {
		return contractx.Customer{}, err
	}
	if !resp.OK {
		return contractx.Customer{}, fmt.Errorf("%w: %s", contractx.ErrCallRejected, resp.Error)
	}
	return resp.Customer, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (contractx.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return contractx.Order{}, fmt.Errorf("%w: order id is empty", contractx.ErrValidation)
	}

	var resp getOrderResponse
	if err := c.post(ctx, "get_order", map[string]string{"order_id": orderID}, &resp, nil); err != nil {
		return contractx.Order{}, err
	}
	if !resp.OK {
		return contractx.Order{}, fmt.Errorf("%w: %s", contractx.ErrCallRejected, resp.Error)
	}
	return resp.Order, nil
}

// OrderHistory returns the customer's orders, newest first.
func (c *Client) OrderHistory(ctx context.Context, customerID string) ([]contractx.Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: customer id is empty", contractx.ErrValidation)
	}

	var resp orderHistoryResponse
	if err := c.post(ctx, "order_history", map[string]string{"customer_id": customerID}, &resp, nil); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", contractx.ErrCallRejected, resp.Error)
	}
	return resp.Orders, nil
}

// Refund issues a refund. The call is not idempotent on the collaborator
// side, so each attempt carries a fresh idempotency key for the
// collaborator to deduplicate on if it chooses.
func (c *Client) Refund(ctx context.Context, req contractx.RefundRequest) (contractx.RefundReceipt, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return contractx.RefundReceipt{}, fmt.Errorf("%w: order id is empty", contractx.ErrValidation)
	}
	if req.Amount <= 0 {
		return contractx.RefundReceipt{}, fmt.Errorf("%w: refund amount must be positive", contractx.ErrValidation)
	}

	headers := map[string]string{"X-Idempotency-Key": uuid.NewString()}
	var resp refundResponse
	if err := c.post(ctx, "refund", req, &resp, headers); err != nil {
		return contractx.RefundReceipt{}, err
	}
	if !resp.OK {
		return contractx.RefundReceipt{}, fmt.Errorf("%w: %s", contractx.ErrCallRejected, resp.Error)
	}
	return resp.Refund, nil
}

func (c *Client) post(ctx context.Context, operation string, args any, out any, headers map[string]string) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal %s args: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+operation, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", operation, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s http status=%d body=%s", operation, resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
