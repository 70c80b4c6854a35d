package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/remap-keys/remap-backend/internal/identity"
)

type fakeAdminStore struct {
	admins map[string]bool
	err    error
}

func (f *fakeAdminStore) IsAdministrator(_ context.Context, email string) (bool, error) {
	return f.admins[email], f.err
}

type fakeMembershipStore struct {
	members map[string]map[string]bool // orgID -> uid -> member
}

func (f *fakeMembershipStore) IsMember(_ context.Context, orgID, uid string) (bool, error) {
	return f.members[orgID][uid], nil
}

type fakeIdentityProvider struct {
	users map[string]*identity.User
	err   error
}

func (f *fakeIdentityProvider) GetUser(_ context.Context, uid string) (*identity.User, error) {
	return f.users[uid], f.err
}

func (f *fakeIdentityProvider) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, f.err
}

func TestIsAdministrator(t *testing.T) {
	idp := &fakeIdentityProvider{users: map[string]*identity.User{
		"admin-uid": {UID: "admin-uid", Email: "admin@example.com"},
		"plain-uid": {UID: "plain-uid", Email: "user@example.com"},
		"no-email":  {UID: "no-email"},
	}}
	admins := &fakeAdminStore{admins: map[string]bool{"admin@example.com": true}}

	cases := []struct {
		name string
		uid  string
		want bool
	}{
		{"administrator", "admin-uid", true},
		{"ordinary user", "plain-uid", false},
		{"user without email", "no-email", false},
		{"unknown uid", "ghost", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := IsAdministrator(context.Background(), admins, idp, tc.uid)
			if err != nil {
				t.Fatalf("IsAdministrator: %v", err)
			}
			if got != tc.want {
				t.Errorf("IsAdministrator(%s) = %v, want %v", tc.uid, got, tc.want)
			}
		})
	}
}

func TestIsAdministrator_IdentityError(t *testing.T) {
	idp := &fakeIdentityProvider{err: errors.New("identity down")}
	admins := &fakeAdminStore{}

	if _, err := IsAdministrator(context.Background(), admins, idp, "u1"); err == nil {
		t.Error("expected error when identity lookup fails")
	}
}

func TestIsOrganizationMember(t *testing.T) {
	store := &fakeMembershipStore{members: map[string]map[string]bool{
		"org-1": {"u1": true},
	}}

	if ok, _ := IsOrganizationMember(context.Background(), store, "u1", "org-1"); !ok {
		t.Error("u1 should be a member of org-1")
	}
	if ok, _ := IsOrganizationMember(context.Background(), store, "u2", "org-1"); ok {
		t.Error("u2 should not be a member of org-1")
	}
	if ok, _ := IsOrganizationMember(context.Background(), store, "u1", "missing-org"); ok {
		t.Error("membership in a missing organization should be false")
	}
	if ok, _ := IsOrganizationMember(context.Background(), store, "u1", ""); ok {
		t.Error("empty organization id should be false")
	}
}
