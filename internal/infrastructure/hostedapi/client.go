// Package hostedapi is a small client for the hosted backend's REST gateway
// (PostgREST style /rest/v1 endpoints and RPC functions).
package hostedapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/sqlscript"
)

const maxErrorBody = 64 << 10

// Config configures a Client
type Config struct {
	BaseURL    string
	APIKey     string // anon key, sent as the apikey header
	ServiceKey string // service role key; preferred for the bearer token when set
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the hosted backend gateway
type Client struct {
	base       *url.URL
	apiKey     string
	bearer     string
	httpClient *http.Client
}

// APIError is a non-2xx gateway response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hosted api: status %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Hint != "" {
		b.WriteString(" (hint: " + e.Hint + ")")
	}
	return b.String()
}

// SQLState returns the PostgreSQL error code relayed by the gateway, or ""
// when the code is a gateway code (PGRSTxxx).
func (e *APIError) SQLState() string {
	if len(e.Code) == 5 && !strings.HasPrefix(e.Code, "PGRST") {
		return e.Code
	}
	return ""
}

// New creates a Client. BaseURL and one of the keys are required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("hostedapi: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("hostedapi: parse base url: %w", err)
	}
	key := cfg.APIKey
	bearer := cfg.ServiceKey
	if bearer == "" {
		bearer = key
	}
	if key == "" {
		key = bearer
	}
	if key == "" {
		return nil, errors.New("hostedapi: an api key or service key is required")
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, apiKey: key, bearer: bearer, httpClient: hc}, nil
}

// RPC calls the database function fn with args encoded as JSON and decodes the
// result into out when out is not nil. A missing function yields an error
// matching sqlscript.ErrUnavailable.
func (c *Client) RPC(ctx context.Context, fn string, args, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("hostedapi: encode rpc args: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, nil, bytes.NewReader(body), out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("rpc %s: %w", fn, errors.Join(sqlscript.ErrUnavailable, apiErr))
	}
	return err
}

// Probe selects the given columns from table with limit=0. It returns nil when
// the table and every column exist.
func (c *Client) Probe(ctx context.Context, table string, columns []string) error {
	q := url.Values{}
	sel := "*"
	if len(columns) > 0 {
		sel = strings.Join(columns, ",")
	}
	q.Set("select", sel)
	q.Set("limit", "0")
	return c.do(ctx, http.MethodGet, "/rest/v1/"+table, q, nil, nil)
}

// Health checks that the gateway answers and accepts the configured key.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/rest/v1/", nil, nil, nil)
}

// RPCFunctions lists the functions exposed under /rpc according to the
// gateway's OpenAPI description.
func (c *Client) RPCFunctions(ctx context.Context) ([]string, error) {
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/", nil, nil, &doc); err != nil {
		return nil, err
	}
	var fns []string
	for p := range doc.Paths {
		if name, ok := strings.CutPrefix(p, "/rpc/"); ok && name != "" {
			fns = append(fns, name)
		}
	}
	sort.Strings(fns)
	return fns, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("hostedapi: build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hostedapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, apiErr) != nil || (apiErr.Message == "" && apiErr.Code == "") {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hostedapi: read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("hostedapi: decode response: %w", err)
	}
	return nil
}
