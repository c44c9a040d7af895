package compute

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wardenhq/warden/errors"
	"github.com/wardenhq/warden/internal/httpclient"
)

// HTTPCanceller cancels compute tasks against the backend's REST API
type HTTPCanceller struct {
	baseURL  string
	apiToken string
	client   *httpclient.SaferClient
}

// NewHTTPCanceller creates a canceller for the given backend.
// baseURL must not be empty; callers with no backend configured should use
// NopCanceller instead.
func NewHTTPCanceller(baseURL, apiToken string, timeout time.Duration) *HTTPCanceller {
	return NewHTTPCancellerWithClient(baseURL, apiToken, httpclient.NewSaferClient(timeout))
}

// NewHTTPCancellerWithClient creates a canceller with a custom HTTP client
func NewHTTPCancellerWithClient(baseURL, apiToken string, client *httpclient.SaferClient) *HTTPCanceller {
	return &HTTPCanceller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		client:   client,
	}
}

// CancelTask asks the backend to cancel the task identified by token.
// Any non-2xx response is an error.
func (c *HTTPCanceller) CancelTask(ctx context.Context, token string) error {
	url := fmt.Sprintf("%s/tasks/%s/cancel", c.baseURL, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build cancel request")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "cancel request for task %s failed", token)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("cancel request for task %s returned %d: %s",
			token, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// NopCanceller stands in when no compute backend is configured. Every
// cancellation fails with a clear error so the tokens show up in the
// cancellation outcome instead of silently vanishing.
type NopCanceller struct{}

func (NopCanceller) CancelTask(ctx context.Context, token string) error {
	return errors.Newf("no compute backend configured, cannot cancel task %s", token)
}

var (
	_ Canceller = (*HTTPCanceller)(nil)
	_ Canceller = NopCanceller{}
)
