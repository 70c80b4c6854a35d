// Package authz provides authorization predicates used by the request
// pipeline guards. Predicates are free functions over narrow store
// interfaces, so commands and tests can supply fakes without touching the
// database.
package authz

import (
	"context"
	"fmt"

	"github.com/remap-keys/remap-backend/internal/identity"
)

// AdministratorStore answers administrator allow-list checks.
type AdministratorStore interface {
	IsAdministrator(ctx context.Context, email string) (bool, error)
}

// MembershipStore answers organization membership checks.
type MembershipStore interface {
	IsMember(ctx context.Context, orgID, uid string) (bool, error)
}

// IsAdministrator reports whether the user behind uid is on the
// administrators list. The list is keyed by email, so the uid is first
// resolved through the identity provider; a user without an email can never
// be an administrator.
func IsAdministrator(ctx context.Context, admins AdministratorStore, idp identity.Provider, uid string) (bool, error) {
	user, err := idp.GetUser(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("failed to resolve user %s: %w", uid, err)
	}
	if user == nil || user.Email == "" {
		return false, nil
	}
	return admins.IsAdministrator(ctx, user.Email)
}

// IsOrganizationMember reports whether uid is in the organization's member
// set. A missing organization yields false, not an error.
func IsOrganizationMember(ctx context.Context, members MembershipStore, uid, orgID string) (bool, error) {
	if orgID == "" {
		return false, nil
	}
	return members.IsMember(ctx, orgID, uid)
}
