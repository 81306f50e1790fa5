// Package proxyclient is the thin REST client for the fault-injection proxy
// control plane (base path /gremlin/v1): set the current test id, clear
// rules, add a rule, list installed rules.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gremlinsdk/harness/pkg/rule"
	"github.com/gremlinsdk/harness/pkg/testid"
)

// DefaultTimeout bounds a single proxy call when the caller supplies no
// deadline of its own.
const DefaultTimeout = 10 * time.Second

// TransportError wraps a dial/timeout failure reaching a proxy endpoint.
type TransportError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("proxyclient: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError wraps a non-2xx response from a proxy endpoint.
type HTTPError struct {
	Endpoint   string
	Op         string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("proxyclient: %s %s: status %d", e.Op, e.Endpoint, e.StatusCode)
}

// Client talks to a single proxy sidecar's control-plane endpoint, e.g.
// "productpage-sidecar:9091".
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New builds a Client against a single proxy endpoint (host:port, no
// scheme). Endpoints are always plain HTTP, per the proxy contract.
// A non-positive timeout falls back to DefaultTimeout.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("http://%s/gremlin/v1%s", c.endpoint, path)
}

// SetTestID sets the test id the proxy stamps on every log event it emits
// from now on.
func (c *Client) SetTestID(ctx context.Context, id testid.TestId) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url("/test/"+id.String()), nil)
	if err != nil {
		return fmt.Errorf("proxyclient: build SetTestID request: %w", err)
	}
	_, err = c.do(req, "SetTestID")
	return err
}

// ClearRules removes every rule currently installed on the proxy.
func (c *Client) ClearRules(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/rules"), nil)
	if err != nil {
		return fmt.Errorf("proxyclient: build ClearRules request: %w", err)
	}
	_, err = c.do(req, "ClearRules")
	return err
}

// AddRule installs one fault rule on the proxy.
func (c *Client) AddRule(ctx context.Context, r rule.Rule) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("proxyclient: marshal rule: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/rules/add"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("proxyclient: build AddRule request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, "AddRule")
	return err
}

// ListRules returns the proxy's currently installed rules, decoded from its
// JSON array into Rules.
func (c *Client) ListRules(ctx context.Context) ([]rule.Rule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/rules/list"), nil)
	if err != nil {
		return nil, fmt.Errorf("proxyclient: build ListRules request: %w", err)
	}

	respBody, err := c.do(req, "ListRules")
	if err != nil {
		return nil, err
	}

	var rules []rule.Rule
	if err := json.Unmarshal(respBody, &rules); err != nil {
		return nil, fmt.Errorf("proxyclient: unmarshal rules list from %s: %w", c.endpoint, err)
	}
	return rules, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Endpoint: c.endpoint, Op: op, StatusCode: resp.StatusCode}
	}
	return body, nil
}
