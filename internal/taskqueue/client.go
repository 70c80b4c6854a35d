// Package taskqueue enqueues build tasks against the external task queue
// service. The queue delivers each task to the build server as an HTTP GET
// callback; the backend never talks to the build server directly.
package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/remap-keys/remap-backend/internal/telemetry"
)

const defaultTimeout = 10 * time.Second

// Build task kinds, used as the dispatch metric label.
const (
	KindFirmware  = "firmware"
	KindWorkbench = "workbench"
)

// Enqueuer is the narrow interface the build commands depend on.
type Enqueuer interface {
	EnqueueBuildTask(ctx context.Context, kind, uid, taskID string) error
}

// Client enqueues HTTP-callback tasks against the queue service.
type Client struct {
	queueURL            string
	buildServerURL      string
	serviceAccountEmail string
	http                *http.Client
}

// NewClient creates a task queue client. serviceAccountEmail is optional;
// when set, the queue attaches an OIDC identity token to the callback so the
// build server can authenticate the caller.
func NewClient(queueURL, buildServerURL, serviceAccountEmail string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		queueURL:            queueURL,
		buildServerURL:      buildServerURL,
		serviceAccountEmail: serviceAccountEmail,
		http:                &http.Client{Timeout: timeout},
	}
}

// task mirrors the queue service's enqueue request body.
type task struct {
	HTTPRequest httpRequest `json:"httpRequest"`
}

type httpRequest struct {
	HTTPMethod string            `json:"httpMethod"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers,omitempty"`
	OIDCToken  *oidcToken        `json:"oidcToken,omitempty"`
}

type oidcToken struct {
	ServiceAccountEmail string `json:"serviceAccountEmail"`
}

// EnqueueBuildTask hands a build task to the queue. The queue will call
// GET {buildServerURL}/build?uid=<uid>&taskId=<taskID> when it dispatches.
func (c *Client) EnqueueBuildTask(ctx context.Context, kind, uid, taskID string) error {
	callback := fmt.Sprintf("%s/build?uid=%s&taskId=%s",
		c.buildServerURL, url.QueryEscape(uid), url.QueryEscape(taskID))

	t := task{
		HTTPRequest: httpRequest{
			HTTPMethod: http.MethodGet,
			URL:        callback,
			Headers:    map[string]string{"Content-Type": "text/plain"},
		},
	}
	if c.serviceAccountEmail != "" {
		t.HTTPRequest.OIDCToken = &oidcToken{ServiceAccountEmail: c.serviceAccountEmail}
	}

	encoded, err := json.Marshal(map[string]any{"task": t})
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queueURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create enqueue request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to enqueue build task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("task queue returned status %d", resp.StatusCode)
	}

	telemetry.BuildTaskDispatchesTotal.WithLabelValues(kind).Inc()
	return nil
}
