// Package host implements the organization self-service commands used by
// organization members to manage their own member set.
package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/remap-keys/remap-backend/internal/authz"
	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/identity"
	"github.com/remap-keys/remap-backend/internal/rpc"
)

// OrganizationStore is the organization access the host commands need.
type OrganizationStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	AddMember(ctx context.Context, orgID, uid string) error
	RemoveMember(ctx context.Context, orgID, uid string) error
}

// Commands holds the host command handlers and their dependencies.
type Commands struct {
	orgs OrganizationStore
	idp  identity.Provider
}

// NewCommands creates the host command set.
func NewCommands(orgs OrganizationStore, idp identity.Provider) *Commands {
	return &Commands{orgs: orgs, idp: idp}
}

// Register binds the host commands to the dispatcher. Every command requires
// the caller to be a member of the target organization; deletion checks
// membership before field validation, matching the established contract.
func (c *Commands) Register(d *rpc.Dispatcher, members authz.MembershipStore) {
	auth := rpc.RequireAuthentication()
	orgMember := rpc.RequireOrganizationMember(members)

	d.Register("fetchOrganizationMembers", c.fetchOrganizationMembers,
		auth, rpc.RequireFields("organizationId"), orgMember)
	d.Register("addOrganizationMember", c.addOrganizationMember,
		auth, rpc.RequireFields("organizationId", "email"), orgMember)
	d.Register("deleteOrganizationMember", c.deleteOrganizationMember,
		auth, orgMember, rpc.RequireFields("organizationId", "uid"))
}

func (c *Commands) fetchOrganizationMembers(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	orgID, _ := req.Data.String("organizationId")
	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return rpc.Fail(rpc.CodeOrganizationNotFound, fmt.Sprintf("Organization not found: %s", orgID)), nil
	}

	members := make([]map[string]any, 0, len(org.Members))
	for _, uid := range org.Members {
		member := map[string]any{
			"uid":         uid,
			"email":       "",
			"displayName": "",
			"me":          uid == req.Caller.UID,
		}
		user, err := c.idp.GetUser(ctx, uid)
		if err != nil {
			return nil, err
		}
		if user != nil {
			member["email"] = user.Email
			member["displayName"] = user.DisplayName
		}
		members = append(members, member)
	}
	return rpc.OK(map[string]any{"members": members}), nil
}

func (c *Commands) addOrganizationMember(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	orgID, _ := req.Data.String("organizationId")
	email, _ := req.Data.String("email")

	user, err := c.idp.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasProvider(identity.GitHubProviderID) {
		return rpc.Fail(rpc.CodeAddingOrganizationMemberFailed,
			fmt.Sprintf("The user[%s] is not logged in to Remap with GitHub account", email)), nil
	}

	// Adding an existing member is a no-op; the operation is idempotent.
	if err := c.orgs.AddMember(ctx, orgID, user.UID); err != nil {
		slog.Error("Failed to add organization member", "organizationId", orgID, "uid", user.UID, "error", err)
		return rpc.Fail(rpc.CodeAddingOrganizationMemberFailed,
			fmt.Sprintf("Adding an organization member failed: %v", err)), nil
	}
	return rpc.OK(nil), nil
}

func (c *Commands) deleteOrganizationMember(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	orgID, _ := req.Data.String("organizationId")
	uid, _ := req.Data.String("uid")

	// Removing an absent member is a no-op; the operation is idempotent.
	if err := c.orgs.RemoveMember(ctx, orgID, uid); err != nil {
		slog.Error("Failed to delete organization member", "organizationId", orgID, "uid", uid, "error", err)
		return rpc.Fail(rpc.CodeDeletingOrganizationMemberFailed,
			fmt.Sprintf("Deleting an organization member failed: %v", err)), nil
	}
	return rpc.OK(nil), nil
}
