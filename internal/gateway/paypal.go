// Package gateway implements the PayPal Orders API client used by the
// workbench purchase commands. Only the two calls the purchase workflow
// needs are exposed: create an order for the fixed 10-builds package, and
// capture a previously approved order.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Gateway environments. The environment is always configured explicitly;
// it is never inferred from build flags or hostnames.
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

const (
	sandboxBaseURL    = "https://api-m.sandbox.paypal.com"
	productionBaseURL = "https://api-m.paypal.com"
)

const defaultTimeout = 10 * time.Second

// OrderResponse carries the gateway's reply to an order call. Success is
// decided on the HTTP status alone; Body holds the raw response for audit
// storage on the purchase history row.
type OrderResponse struct {
	StatusCode int
	OrderID    string
	Body       []byte
}

// Success reports whether the gateway accepted the call. The Orders API
// returns 201 for both create and capture; any 2xx counts.
func (r *OrderResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls the PayPal Orders v2 API with client-credentials OAuth.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client for the given environment. The
// underlying HTTP client refreshes the OAuth token transparently.
func NewClient(environment, clientID, clientSecret string, timeout time.Duration) (*Client, error) {
	var baseURL string
	switch environment {
	case EnvironmentSandbox:
		baseURL = sandboxBaseURL
	case EnvironmentProduction:
		baseURL = productionBaseURL
	default:
		return nil, fmt.Errorf("unknown gateway environment %q", environment)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	oauth := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
	}
	httpClient := oauth.Client(context.Background())
	httpClient.Timeout = timeout

	return &Client{baseURL: baseURL, http: httpClient}, nil
}

// orderRequest is the fixed 10-builds-package order body. Amounts are
// decimal strings per the Orders API.
func orderRequest(language string) map[string]any {
	itemName := "Remap 10 Builds Package"
	if language == "ja" {
		itemName = "Remap 10回ビルドパッケージ"
	}
	return map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"amount": map[string]any{
					"currency_code": "USD",
					"value":         "1.65",
					"breakdown": map[string]any{
						"item_total": map[string]any{"currency_code": "USD", "value": "1.50"},
						"tax_total":  map[string]any{"currency_code": "USD", "value": "0.15"},
					},
				},
				"items": []map[string]any{
					{
						"name":        itemName,
						"unit_amount": map[string]any{"currency_code": "USD", "value": "1.50"},
						"quantity":    "1",
						"sku":         "remap-10-builds-package",
					},
				},
			},
		},
		"application_context": map[string]any{
			"shipping_preference": "NO_SHIPPING",
		},
	}
}

// CreateOrder creates an order for the 10-builds package. language selects
// the item description shown in the approval UI ("ja" gets the Japanese
// label, everything else English).
func (c *Client) CreateOrder(ctx context.Context, language string) (*OrderResponse, error) {
	return c.post(ctx, c.baseURL+"/v2/checkout/orders", orderRequest(language))
}

// CaptureOrder captures an approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	return c.post(ctx, fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.baseURL, orderID), map[string]any{})
}

func (c *Client) post(ctx context.Context, url string, body any) (*OrderResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	result := &OrderResponse{StatusCode: resp.StatusCode, Body: raw}
	var parsed struct {
		ID string `json:"id"`
	}
	// Non-2xx bodies are error documents without an id; keep the raw body
	// for the audit column and leave OrderID empty.
	if err := json.Unmarshal(raw, &parsed); err == nil {
		result.OrderID = parsed.ID
	}
	return result, nil
}
