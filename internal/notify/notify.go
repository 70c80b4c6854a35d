// Package notify delivers outbound review notifications to the moderation
// Discord channel and to the author-facing notification endpoint (a Google
// Apps Script web app that relays mail). Deliveries are best-effort: callers
// run them through safego and failures are logged and counted, never retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/remap-keys/remap-backend/internal/telemetry"
)

const defaultTimeout = 10 * time.Second

// tokenLifetime bounds the signed notification token. The relay verifies the
// token before acting, so a short window limits replay.
const tokenLifetime = 3 * time.Minute

// ReviewStatusData carries the author-facing fields of a review status
// change notification.
type ReviewStatusData struct {
	Name        string
	ProductName string
	Status      string
	Email       string
	DisplayName string
}

// Notifier posts messages to the Discord webhook and signed payloads to the
// notification relay. Either destination may be unconfigured (empty URL), in
// which case the corresponding delivery is skipped silently.
type Notifier struct {
	webhookURL   string
	relayURL     string
	adminBaseURL string
	secret       []byte
	client       *http.Client
}

// NewNotifier creates a Notifier. adminBaseURL is the moderation console base
// used to build review links; secret signs the relay tokens.
func NewNotifier(webhookURL, relayURL, adminBaseURL string, secret []byte, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		webhookURL:   webhookURL,
		relayURL:     relayURL,
		adminBaseURL: adminBaseURL,
		secret:       secret,
		client:       &http.Client{Timeout: timeout},
	}
}

// Message posts a message to the Discord webhook with the definition's
// moderation console link appended.
func (n *Notifier) Message(ctx context.Context, definitionID, message string) error {
	if n.webhookURL == "" {
		return nil
	}
	content := fmt.Sprintf("%s %s/review/%s", message, n.adminBaseURL, definitionID)
	if err := n.postJSON(ctx, n.webhookURL, map[string]string{"content": content}); err != nil {
		telemetry.NotificationFailuresTotal.WithLabelValues("discord").Inc()
		return fmt.Errorf("failed to notify discord: %w", err)
	}
	return nil
}

// ReviewStatusChange posts the status-change message to Discord and then
// sends the author a signed notification through the relay. The two
// deliveries are independent; a Discord failure does not stop the relay send.
func (n *Notifier) ReviewStatusChange(ctx context.Context, definitionID string, data ReviewStatusData) error {
	message := fmt.Sprintf("The review status has been changed (%s): %s(%s)", data.Status, data.Name, data.ProductName)
	discordErr := n.Message(ctx, definitionID, message)

	relayErr := n.sendRelay(ctx, definitionID, data)
	if discordErr != nil {
		return discordErr
	}
	return relayErr
}

func (n *Notifier) sendRelay(ctx context.Context, definitionID string, data ReviewStatusData) error {
	if n.relayURL == "" {
		return nil
	}

	payload := map[string]any{
		"messageType":  "received",
		"email":        data.Email,
		"displayName":  data.DisplayName,
		"keyboard":     data.Name,
		"status":       data.Status,
		"definitionId": definitionID,
	}

	claims := jwt.MapClaims{"exp": time.Now().Add(tokenLifetime).Unix()}
	for k, v := range payload {
		claims[k] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
	if err != nil {
		return fmt.Errorf("failed to sign notification token: %w", err)
	}

	body := map[string]any{"token": token, "payload": payload}
	if err := n.postJSON(ctx, n.relayURL, body); err != nil {
		telemetry.NotificationFailuresTotal.WithLabelValues("gas").Inc()
		return fmt.Errorf("failed to notify relay: %w", err)
	}
	return nil
}

func (n *Notifier) postJSON(ctx context.Context, url string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
