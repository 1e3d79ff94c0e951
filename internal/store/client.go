// Package store adapts the domain repositories onto a PostgREST-fronted
// Postgres instance (Supabase), talking plain HTTP+JSON rather than driving
// SQL directly — the store's own schema and query engine are an external
// collaborator; this package is the typed client in front of it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// Client is a thin PostgREST REST client: every repository in this package
// is built on top of one shared Client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient domain.HTTPClient
	logger     logger.Logger
}

// NewClient builds a Client targeting a PostgREST endpoint such as
// "https://<project>.supabase.co/rest/v1", authenticated with a service-role
// key (spec.md §6: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY).
func NewClient(baseURL, apiKey string, httpClient domain.HTTPClient, log logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     log,
	}
}

// Filter is one PostgREST query-string filter, e.g. Filter{"workspace_id", "eq", "abc"}.
type Filter struct {
	Column string
	Op     string // "eq", "gt", "gte", "lt", "lte", "in", "neq"
	Value  string
}

func (f Filter) encode() (string, string) {
	return f.Column, f.Op + "." + f.Value
}

type requestOptions struct {
	filters []Filter
	order   string
	limit   int
	prefer  string // e.g. "return=representation", "resolution=merge-duplicates"
}

// Option configures one store request.
type Option func(*requestOptions)

// WithFilter adds an "eq."-style filter to the request.
func WithFilter(column, op, value string) Option {
	return func(o *requestOptions) {
		o.filters = append(o.filters, Filter{Column: column, Op: op, Value: value})
	}
}

// WithOrder sets an "order=col.asc" / "order=col.desc" clause.
func WithOrder(clause string) Option {
	return func(o *requestOptions) { o.order = clause }
}

// WithLimit caps the number of rows returned.
func WithLimit(n int) Option {
	return func(o *requestOptions) { o.limit = n }
}

func withPrefer(prefer string) Option {
	return func(o *requestOptions) { o.prefer = prefer }
}

func (c *Client) buildURL(table string, opts requestOptions) string {
	q := url.Values{}
	for _, f := range opts.filters {
		k, v := f.encode()
		q.Add(k, v)
	}
	if opts.order != "" {
		q.Set("order", opts.order)
	}
	if opts.limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.limit))
	}
	u := fmt.Sprintf("%s/%s", c.baseURL, table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, table string, opts requestOptions, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(table, opts), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if opts.prefer != "" {
		req.Header.Set("Prefer", opts.prefer)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, okStatuses ...int) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", req.Method, req.URL.Path, err)
	}
	for _, ok := range okStatuses {
		if resp.StatusCode == ok {
			return resp, nil
		}
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return nil, &domain.ErrStore{
		Op:         req.Method + " " + req.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}

// Select fetches rows matching the given options into dest (a pointer to a slice).
func (c *Client) Select(ctx context.Context, table string, dest interface{}, opts ...Option) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	req, err := c.newRequest(ctx, http.MethodGet, table, o, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode select %s: %w", table, err)
	}
	return nil
}

// Insert creates one row and decodes the representation PostgREST returns
// back into dest (a pointer to a slice of one element, or nil to discard).
func (c *Client) Insert(ctx context.Context, table string, row interface{}, dest interface{}) error {
	o := requestOptions{}
	withPrefer("return=representation")(&o)
	req, err := c.newRequest(ctx, http.MethodPost, table, o, row)
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusCreated, http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode insert %s: %w", table, err)
	}
	return nil
}

// Upsert creates-or-replaces rows, merging on the given conflict columns
// (spec.md's "upsert keyed on (workspace_id, schedule_id, to_email)" pattern).
func (c *Client) Upsert(ctx context.Context, table string, rows interface{}, onConflict string) error {
	o := requestOptions{}
	withPrefer("resolution=merge-duplicates,return=minimal")(&o)
	req, err := c.newRequest(ctx, http.MethodPost, table, o, rows)
	if err != nil {
		return err
	}
	if onConflict != "" {
		q := req.URL.Query()
		q.Set("on_conflict", onConflict)
		req.URL.RawQuery = q.Encode()
	}
	resp, err := c.do(req, http.StatusCreated, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Update patches rows matching opts with the given partial body.
func (c *Client) Update(ctx context.Context, table string, body interface{}, opts ...Option) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	withPrefer("return=minimal")(&o)
	req, err := c.newRequest(ctx, http.MethodPatch, table, o, body)
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Delete removes rows matching opts.
func (c *Client) Delete(ctx context.Context, table string, opts ...Option) error {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	req, err := c.newRequest(ctx, http.MethodDelete, table, o, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, http.StatusOK, http.StatusNoContent)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
