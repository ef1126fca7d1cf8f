package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/restinthemiddle/wrapperserver/internal/version"
	"github.com/restinthemiddle/wrapperserver/pkg/lifecycle"
)

// ErrUnexpectedStatus is returned when the control API answers with a
// status code outside its contract.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client drives a remote control API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the control API at baseURL. A nil
// httpClient uses a client with a 5s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Init asks the remote controller to start accepting.
func (c *Client) Init(ctx context.Context) (bool, error) {
	var resp OperationResponse
	if err := c.do(ctx, http.MethodPost, "/init", &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

// Shutdown asks the remote controller to release its port.
func (c *Client) Shutdown(ctx context.Context) (bool, error) {
	var resp OperationResponse
	if err := c.do(ctx, http.MethodPost, "/shutdown", &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

// IsActive reports the remote running flag.
func (c *Client) IsActive(ctx context.Context) (bool, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", &resp); err != nil {
		return false, err
	}
	return resp.Active, nil
}

// WaitForState polls /status until the remote flag equals active or ctx ends.
// Connection errors are retried, which covers a control process still
// starting up.
func (c *Client) WaitForState(ctx context.Context, active bool) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0

	op := func() error {
		got, err := c.IsActive(ctx)
		if err != nil {
			return err
		}
		if got != active {
			return fmt.Errorf("remote active=%t, waiting for %t", got, active)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("%s %s: %w %d", method, path, ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// Controller adapts the client to lifecycle.Controller. Each call gets its
// own timeout; any transport error reads as false.
func (c *Client) Controller(timeout time.Duration) lifecycle.Controller {
	return &remoteController{client: c, timeout: timeout}
}

type remoteController struct {
	client  *Client
	timeout time.Duration
}

func (r *remoteController) call(f func(context.Context) (bool, error)) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ok, err := f(ctx)
	return err == nil && ok
}

func (r *remoteController) Init() bool {
	return r.call(r.client.Init)
}

func (r *remoteController) Shutdown() bool {
	return r.call(r.client.Shutdown)
}

func (r *remoteController) IsActive() bool {
	return r.call(r.client.IsActive)
}
