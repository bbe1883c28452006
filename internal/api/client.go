package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"feedsync/internal/serverutil"
)

// Client talks to a running feedsync service. Manual syncs go through it so
// the pipeline state they arm lives in the serving process.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Sync asks the service to sync feedIDs now. Without wait the service only
// accepts the request and the response lists the accepted ids.
func (c *Client) Sync(ctx context.Context, feedIDs []int64, wait bool) (*SyncResp, error) {
	var resp SyncResp
	if err := c.do(ctx, http.MethodPost, "/v1/sync", SyncReq{FeedIDs: feedIDs, Wait: wait}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends body as JSON and decodes a 2xx response into out. Error responses
// come back as *serverutil.Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		sErr := &serverutil.Error{}
		if err := json.NewDecoder(resp.Body).Decode(sErr); err != nil || sErr.Status == 0 {
			return serverutil.E(resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode))
		}
		return sErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
