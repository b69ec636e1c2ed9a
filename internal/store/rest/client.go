// Package rest is a store.Store backed by the household-finance REST API.
// Every request carries the configured bearer token.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opticash/internal/core"
	"opticash/internal/store"
)

var _ store.Store = (*Client)(nil)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response. It unwraps to the matching store
// sentinel.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return store.ErrConflict
	case e.StatusCode >= 500, e.StatusCode == http.StatusTooManyRequests:
		return store.ErrUnavailable
	default:
		return nil
	}
}

type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) ListBills(ctx context.Context, householdID string) ([]core.Bill, error) {
	var dtos []billDTO
	if err := c.do(ctx, http.MethodGet, "/bills", url.Values{"householdId": {householdID}}, nil, &dtos); err != nil {
		return nil, err
	}
	bills := make([]core.Bill, 0, len(dtos))
	for _, d := range dtos {
		b := d.toCore()
		// Older deployments ignore the filter.
		if householdID != "" && b.HouseholdID != "" && b.HouseholdID != householdID {
			continue
		}
		bills = append(bills, b)
	}
	return bills, nil
}

func (c *Client) GetBill(ctx context.Context, id string) (core.Bill, error) {
	var dto billDTO
	if err := c.do(ctx, http.MethodGet, "/bills/"+url.PathEscape(id), nil, nil, &dto); err != nil {
		return core.Bill{}, err
	}
	return dto.toCore(), nil
}

func (c *Client) ListContributions(ctx context.Context, householdID string) ([]core.Contribution, error) {
	var dtos []contributionDTO
	if err := c.do(ctx, http.MethodGet, "/contributions", url.Values{"householdId": {householdID}}, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]core.Contribution, 0, len(dtos))
	for _, d := range dtos {
		contrib := d.toCore()
		if householdID != "" && contrib.HouseholdID != "" && contrib.HouseholdID != householdID {
			continue
		}
		out = append(out, contrib)
	}
	return out, nil
}

func (c *Client) CreateContribution(ctx context.Context, contrib core.Contribution) (core.Contribution, error) {
	req := createContributionDTO{
		BillID:      wireID(contrib.BillID),
		HouseholdID: wireID(contrib.HouseholdID),
		Description: contrib.Description,
		Strategy:    string(contrib.Strategy),
	}
	if !contrib.DueDate.IsZero() {
		req.FechaLimite = contrib.DueDate.Format("2006-01-02")
	}
	var dto contributionDTO
	if err := c.do(ctx, http.MethodPost, "/contributions", nil, req, &dto); err != nil {
		return core.Contribution{}, err
	}
	created := dto.toCore()
	if created.ID == "" {
		return core.Contribution{}, fmt.Errorf("create contribution: response without id")
	}
	return created, nil
}

func (c *Client) ListMemberContributions(ctx context.Context, memberID string) ([]core.MemberContribution, error) {
	var dtos []memberContributionDTO
	if err := c.do(ctx, http.MethodGet, "/member-contributions", url.Values{"member_id": {memberID}}, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]core.MemberContribution, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toCore())
	}
	return out, nil
}

func (c *Client) CreateMemberContribution(ctx context.Context, mc core.MemberContribution) (core.MemberContribution, error) {
	req := createMemberContributionDTO{
		ContributionID: wireID(mc.ContributionID),
		MemberID:       wireID(mc.MemberID),
		Monto:          mc.Amount,
		Status:         statusToWire(mc.Status),
	}
	var dto memberContributionDTO
	if err := c.do(ctx, http.MethodPost, "/member-contributions", nil, req, &dto); err != nil {
		return core.MemberContribution{}, err
	}
	return dto.toCore(), nil
}

func (c *Client) PayMemberContribution(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	var dto memberContributionDTO
	path := "/member-contributions/" + url.PathEscape(id) + "/pay"
	if err := c.do(ctx, http.MethodPut, path, nil, payDTO{Monto: amount}, &dto); err != nil {
		// The API answers 409 when the record is already PAID.
		if errors.Is(err, store.ErrConflict) {
			return core.MemberContribution{}, fmt.Errorf("%w: %w", err, core.ErrAlreadyPaid)
		}
		return core.MemberContribution{}, err
	}
	return dto.toCore(), nil
}

func (c *Client) ListHouseholdMembers(ctx context.Context, householdID string) ([]core.Member, error) {
	var dtos []householdMemberDTO
	if err := c.do(ctx, http.MethodGet, "/household-members", url.Values{"householdId": {householdID}}, nil, &dtos); err != nil {
		return nil, err
	}
	members := make([]core.Member, 0, len(dtos))
	for _, d := range dtos {
		m := d.toCore()
		if m.HouseholdID == "" {
			m.HouseholdID = householdID
		}
		if m.HouseholdID != householdID {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	slog.DebugContext(ctx, "Store request completed",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s %s: empty response body", method, path)
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
