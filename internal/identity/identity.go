// Package identity provides lookup of user records from the external identity
// service. The rest of the backend depends only on the Provider interface so
// tests can substitute fakes.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GitHubProviderID is the provider id checked when validating organization
// membership eligibility: organization members must sign in with GitHub.
const GitHubProviderID = "github.com"

// ProviderIdentity is one linked OAuth identity of a user.
type ProviderIdentity struct {
	ProviderID  string `json:"providerId"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// User is a user record as exposed by the identity service.
type User struct {
	UID                string             `json:"uid"`
	Email              string             `json:"email"`
	DisplayName        string             `json:"displayName"`
	ProviderIdentities []ProviderIdentity `json:"providerData"`
}

// HasProvider reports whether the user has a linked identity with the given
// provider id.
func (u *User) HasProvider(providerID string) bool {
	for _, p := range u.ProviderIdentities {
		if p.ProviderID == providerID {
			return true
		}
	}
	return false
}

// PrimaryIdentity returns the first linked provider identity, which carries
// the email and display name used for outbound notifications. Falls back to
// the top-level fields when no provider identity is linked.
func (u *User) PrimaryIdentity() ProviderIdentity {
	if len(u.ProviderIdentities) > 0 {
		return u.ProviderIdentities[0]
	}
	return ProviderIdentity{UID: u.UID, Email: u.Email, DisplayName: u.DisplayName}
}

// Provider looks up user records. A lookup of an unknown user returns
// (nil, nil), matching the repositories' not-found convention.
type Provider interface {
	GetUser(ctx context.Context, uid string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// HTTPProvider implements Provider against the identity service's HTTP API.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPProvider creates an HTTPProvider. timeout bounds every lookup; zero
// means 10 seconds.
func NewHTTPProvider(baseURL, token string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetUser retrieves a user record by uid
func (p *HTTPProvider) GetUser(ctx context.Context, uid string) (*User, error) {
	return p.get(ctx, fmt.Sprintf("%s/v1/users/%s", p.baseURL, url.PathEscape(uid)))
}

// GetUserByEmail retrieves a user record by email address
func (p *HTTPProvider) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return p.get(ctx, fmt.Sprintf("%s/v1/users:lookup?email=%s", p.baseURL, url.QueryEscape(email)))
}

func (p *HTTPProvider) get(ctx context.Context, requestURL string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity lookup failed: unexpected status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}
	return &user, nil
}
