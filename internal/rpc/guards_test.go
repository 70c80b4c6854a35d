package rpc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/remap-keys/remap-backend/internal/identity"
)

type fakeAdminStore map[string]bool

func (f fakeAdminStore) IsAdministrator(_ context.Context, email string) (bool, error) {
	return f[email], nil
}

type fakeMembershipStore map[string]map[string]bool

func (f fakeMembershipStore) IsMember(_ context.Context, orgID, uid string) (bool, error) {
	return f[orgID][uid], nil
}

type fakeIdentityProvider map[string]*identity.User

func (f fakeIdentityProvider) GetUser(_ context.Context, uid string) (*identity.User, error) {
	return f[uid], nil
}

func (f fakeIdentityProvider) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range f {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

// countingHandler returns a handler that records invocations, so tests can
// assert the handler body never executes behind a rejecting guard.
func countingHandler(runs *int) HandlerFunc {
	return func(ctx context.Context, req *Request) (*Result, error) {
		*runs++
		return OK(nil), nil
	}
}

func TestRequireAuthentication(t *testing.T) {
	runs := 0
	h := Chain(countingHandler(&runs), RequireAuthentication())

	_, err := h(context.Background(), &Request{Caller: nil, Data: Data{}})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
	if runs != 0 {
		t.Errorf("handler ran %d times without authentication", runs)
	}

	result, err := h(context.Background(), &Request{Caller: &Caller{UID: "u1"}, Data: Data{}})
	if err != nil {
		t.Fatalf("authenticated call: %v", err)
	}
	if !result.Success || runs != 1 {
		t.Errorf("authenticated call should reach handler (runs=%d)", runs)
	}
}

func TestRequireAdministrator(t *testing.T) {
	idp := fakeIdentityProvider{
		"admin-uid": {UID: "admin-uid", Email: "admin@example.com"},
		"plain-uid": {UID: "plain-uid", Email: "user@example.com"},
	}
	admins := fakeAdminStore{"admin@example.com": true}

	runs := 0
	h := Chain(countingHandler(&runs), RequireAuthentication(), RequireAdministrator(admins, idp))

	result, err := h(context.Background(), &Request{Caller: &Caller{UID: "plain-uid"}, Data: Data{}})
	if err != nil {
		t.Fatalf("non-admin call: %v", err)
	}
	if result.Success || result.ErrorCode != CodeNotAdministrator {
		t.Errorf("result = %+v, want NotAdministrator failure", result)
	}
	if !strings.Contains(result.ErrorMessage, "plain-uid") {
		t.Errorf("message %q should name the uid", result.ErrorMessage)
	}
	if runs != 0 {
		t.Error("handler must not run for non-admin")
	}

	result, err = h(context.Background(), &Request{Caller: &Caller{UID: "admin-uid"}, Data: Data{}})
	if err != nil || !result.Success {
		t.Errorf("admin call failed: result=%+v err=%v", result, err)
	}
}

func TestRequireOrganizationMember(t *testing.T) {
	members := fakeMembershipStore{"org-1": {"u1": true}}

	runs := 0
	h := Chain(countingHandler(&runs), RequireAuthentication(), RequireOrganizationMember(members))

	// Missing organizationId.
	result, err := h(context.Background(), &Request{Caller: &Caller{UID: "u1"}, Data: Data{}})
	if err != nil {
		t.Fatalf("missing org call: %v", err)
	}
	if result.ErrorCode != CodeOrganizationNotFound {
		t.Errorf("errorCode = %d, want OrganizationNotFound", result.ErrorCode)
	}

	// Non-member.
	result, _ = h(context.Background(), &Request{Caller: &Caller{UID: "u2"}, Data: Data{"organizationId": "org-1"}})
	if result.ErrorCode != CodeNotOrganizationMember {
		t.Errorf("errorCode = %d, want NotOrganizationMember", result.ErrorCode)
	}
	if runs != 0 {
		t.Error("handler must not run for non-member")
	}

	// Member.
	result, _ = h(context.Background(), &Request{Caller: &Caller{UID: "u1"}, Data: Data{"organizationId": "org-1"}})
	if !result.Success || runs != 1 {
		t.Errorf("member call should reach handler (result=%+v runs=%d)", result, runs)
	}
}

func TestRequireFields(t *testing.T) {
	runs := 0
	h := Chain(countingHandler(&runs), RequireFields("name", "vendorId"))

	result, err := h(context.Background(), &Request{Data: Data{"name": "kbd"}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Success || result.ErrorCode != CodeValidation {
		t.Errorf("result = %+v, want ValidationError", result)
	}
	if !strings.Contains(result.ErrorMessage, "vendorId") {
		t.Errorf("message %q should name the missing field", result.ErrorMessage)
	}
	if runs != 0 {
		t.Error("handler must not run with a missing field")
	}

	// Presence is strict: null and empty values still count as present.
	result, _ = h(context.Background(), &Request{Data: Data{"name": "", "vendorId": nil}})
	if !result.Success {
		t.Errorf("empty/null values should pass the presence check: %+v", result)
	}
}

func TestRequireOneOf(t *testing.T) {
	runs := 0
	h := Chain(countingHandler(&runs), RequireOneOf(map[string][]string{
		"status": {"draft", "in_review", "rejected", "approved"},
	}))

	result, _ := h(context.Background(), &Request{Data: Data{"status": "bogus"}})
	if result.Success || result.ErrorCode != CodeValidation {
		t.Errorf("result = %+v, want ValidationError for disallowed value", result)
	}

	result, _ = h(context.Background(), &Request{Data: Data{"status": "approved"}})
	if !result.Success {
		t.Errorf("allowed value rejected: %+v", result)
	}

	// Absent fields pass; RequireFields owns presence.
	result, _ = h(context.Background(), &Request{Data: Data{}})
	if !result.Success {
		t.Errorf("absent field rejected: %+v", result)
	}
}
