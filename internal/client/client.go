package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fwdctl/internal/forward"
	"fwdctl/internal/server"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when no forward matches.
	ErrNotFound = errors.New("forward not found")
	// ErrAmbiguous is returned when a name matches several forwards.
	ErrAmbiguous = errors.New("forward name is ambiguous")
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fwdctl daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running `fwdctl serve`.
type Client struct {
	*http.Client

	baseURL string
}

// New returns a client for the API at baseURL. A nil httpClient uses a
// client with a short timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{Client: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var resp server.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

func (c *Client) List(ctx context.Context) ([]forward.Snapshot, error) {
	var snaps []forward.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/forwards", nil, &snaps)
	return snaps, err
}

func (c *Client) Get(ctx context.Context, id string) (forward.Snapshot, error) {
	var snap forward.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/forwards/"+id, nil, &snap)
	return snap, err
}

func (c *Client) Create(ctx context.Context, req server.ForwardRequest) (forward.Snapshot, error) {
	var snap forward.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/v1/forwards", req, &snap)
	return snap, err
}

func (c *Client) Update(ctx context.Context, id string, req server.ForwardRequest) (forward.Snapshot, error) {
	var snap forward.Snapshot
	err := c.do(ctx, http.MethodPut, "/api/v1/forwards/"+id, req, &snap)
	return snap, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/forwards/"+id, nil, nil)
}

func (c *Client) Start(ctx context.Context, id string) (forward.Snapshot, error) {
	var snap forward.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/v1/forwards/"+id+"/start", nil, &snap)
	return snap, err
}

func (c *Client) Stop(ctx context.Context, id string) (forward.Snapshot, error) {
	var snap forward.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/v1/forwards/"+id+"/stop", nil, &snap)
	return snap, err
}

func (c *Client) Logs(ctx context.Context, id string) (server.LogsResponse, error) {
	var resp server.LogsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/forwards/"+id+"/logs", nil, &resp)
	return resp, err
}

// Resolve finds a forward by exact id, then by unique name.
func (c *Client) Resolve(ctx context.Context, ref string) (forward.Snapshot, error) {
	snaps, err := c.List(ctx)
	if err != nil {
		return forward.Snapshot{}, err
	}

	var byName []forward.Snapshot
	for _, snap := range snaps {
		if snap.Definition.ID == ref {
			return snap, nil
		}
		if snap.Definition.Name == ref {
			byName = append(byName, snap)
		}
	}

	switch len(byName) {
	case 0:
		return forward.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return byName[0], nil
	default:
		return forward.Snapshot{}, fmt.Errorf("%w: %q matches %d forwards, use the id", ErrAmbiguous, ref, len(byName))
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach fwdctl daemon at %s (is `fwdctl serve` running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp server.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr != nil || errResp.Error == "" {
			errResp.Error = resp.Status
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, errResp.Error)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
