// Package tickets is the typed client for the ticketing collaborator.
package tickets

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

var _ contractx.TicketService = (*Client)(nil)

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
		return nil, errors.New("tickets url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid tickets url: %w", err)
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

type ticketResponse struct {
	envelope
	Ticket contractx.Ticket `json:"ticket"`
}

type ticketListResponse struct {
	envelope
	Tickets []contractx.Ticket `json:"tickets"`
}

func (c *Client) CreateTicket(ctx context.Context, req contractx.CreateTicketRequest) (contractx.Ticket, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return contractx.Ticket{}, fmt.Errorf("%w: customer id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return contractx.Ticket{}, fmt.Errorf("%w: subject is empty", contractx.ErrValidation)
	}
	return c.ticketCall(ctx, "create_ticket", req)
}

func (c *Client) GetTicket(ctx context.Context, ticketID string) (contractx.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return contractx.Ticket{}, fmt.Errorf("%w: ticket id is empty", contractx.ErrValidation)
	}
	return c.ticketCall(ctx, "get_ticket", map[string]string{"ticket_id": ticketID})
}

func (c *Client) UpdateTicket(ctx context.Context, req contractx.UpdateTicketRequest) (contractx.Ticket, error) {
	if strings.TrimSpace(req.TicketID) == "" {
		return contractx.Ticket{}, fmt.Errorf("%w: ticket id is empty", contractx.ErrValidation)
	}
	return c.ticketCall(ctx, "update_ticket", req)
}

// EscalateTicket hands the ticket to a human queue. The collaborator raises
// priority one notch as a side effect; callers that need a specific priority
// set it explicitly through UpdateTicket.
func (c *Client) EscalateTicket(ctx context.Context, ticketID, reason string) (contractx.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return contractx.Ticket{}, fmt.Errorf("%w: ticket id is empty", contractx.ErrValidation)
	}
	args := map[string]string{"ticket_id": ticketID, "reason": reason}
	return c.ticketCall(ctx, "escalate_ticket", args)
}

func (c *Client) ListTickets(ctx context.Context, customerID string) ([]contractx.Ticket, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: customer id is empty", contractx.ErrValidation)
	}

	var resp ticketListResponse
	if err := c.post(ctx, "list_tickets", map[string]string{"customer_id": customerID}, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", contractx.ErrCallRejected, resp.Error)
	}
	return resp.Tickets, nil
}

func (c *Client) ResolveTicket(ctx context.Context, ticketID, resolution string) (contractx.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return contractx.Ticket{}, fmt.Errorf("%w: ticket id is empty", contractx.ErrValidation)
	}
	args := map[string]string{"ticket_id": ticketID, "resolution": resolution}
	return c.ticketCall(ctx, "resolve_ticket", args)
}

func (c *Client) ticketCall(ctx context.Context, operation string, args any) (contractx.Ticket, error) {
	var resp ticketResponse
	if err := c.post(ctx, operation, args, &resp); err != nil {
		return contractx.Ticket{}, err
	}
	if !resp.OK {
		return contractx.Ticket{}, fmt.Errorf("%w: %s", contractx.ErrCallRejected, resp.Error)
	}
	return resp.Ticket, nil
}

func (c *Client) post(ctx context.Context, operation string, args any, out any) error {
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
