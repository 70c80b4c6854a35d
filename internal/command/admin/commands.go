// Package admin implements the moderation console commands: keyboard
// definition review management and organization administration. Every command
// here requires an authenticated administrator.
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/remap-keys/remap-backend/internal/authz"
	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/identity"
	"github.com/remap-keys/remap-backend/internal/notify"
	"github.com/remap-keys/remap-backend/internal/rpc"
	"github.com/remap-keys/remap-backend/internal/safego"
)

// DefinitionStore is the keyboard definition access the admin commands need.
type DefinitionStore interface {
	GetByID(ctx context.Context, id string) (*models.KeyboardDefinition, error)
	ListByStatus(ctx context.Context, status string) ([]*models.KeyboardDefinition, error)
	CountsByStatus(ctx context.Context) (map[string]int, error)
	UpdateStatus(ctx context.Context, id, status string, rejectReason *string) error
}

// OrganizationStore is the organization access the admin commands need.
type OrganizationStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	List(ctx context.Context) ([]*models.Organization, error)
	Create(ctx context.Context, org *models.Organization, initialMemberUID string) error
}

// Notifier sends the author-facing notification after a status update.
type Notifier interface {
	ReviewStatusChange(ctx context.Context, definitionID string, data notify.ReviewStatusData) error
}

// Commands holds the admin command handlers and their dependencies.
type Commands struct {
	definitions DefinitionStore
	orgs        OrganizationStore
	idp         identity.Provider
	notifier    Notifier
}

// NewCommands creates the admin command set.
func NewCommands(definitions DefinitionStore, orgs OrganizationStore, idp identity.Provider, notifier Notifier) *Commands {
	return &Commands{definitions: definitions, orgs: orgs, idp: idp, notifier: notifier}
}

// Register binds the admin commands to the dispatcher. Every command runs
// behind the authentication and administrator guards; validation guards
// follow in declaration order.
func (c *Commands) Register(d *rpc.Dispatcher, admins authz.AdministratorStore) {
	auth := rpc.RequireAuthentication()
	admin := rpc.RequireAdministrator(admins, c.idp)
	statusValues := map[string][]string{"status": models.DefinitionStatuses}

	d.Register("fetchKeyboardDefinitionListByStatus", c.fetchKeyboardDefinitionListByStatus,
		auth, admin, rpc.RequireFields("status"), rpc.RequireOneOf(statusValues))
	d.Register("fetchKeyboardDefinitionDetailById", c.fetchKeyboardDefinitionDetailByID,
		auth, admin, rpc.RequireFields("id"))
	d.Register("fetchKeyboardDefinitionStats", c.fetchKeyboardDefinitionStats,
		auth, admin)
	d.Register("updateKeyboardDefinitionStatus", c.updateKeyboardDefinitionStatus,
		auth, admin, rpc.RequireFields("id", "status", "rejectReason"), rpc.RequireOneOf(statusValues))
	d.Register("createOrganization", c.createOrganization,
		auth, admin, rpc.RequireFields(
			"name", "description", "websiteUrl", "iconImageUrl", "contactEmailAddress",
			"contactTel", "contactAddress", "contactPersonName", "memberEmailAddress"))
	d.Register("fetchOrganizations", c.fetchOrganizations,
		auth, admin)
	d.Register("fetchOrganizationById", c.fetchOrganizationByID,
		auth, admin, rpc.RequireFields("id"))
}

func definitionFields(def *models.KeyboardDefinition) map[string]any {
	return map[string]any{
		"id":                               def.ID,
		"authorType":                       def.AuthorType,
		"authorUid":                        def.AuthorUID,
		"organizationId":                   def.OrganizationID,
		"name":                             def.Name,
		"vendorId":                         def.VendorID,
		"productId":                        def.ProductID,
		"productName":                      def.ProductName,
		"status":                           def.Status,
		"rejectReason":                     def.RejectReason,
		"json":                             def.JSON,
		"firmwareCodePlace":                def.FirmwareCodePlace,
		"qmkRepositoryFirstPullRequestUrl": def.QmkRepositoryFirstPullRequestURL,
		"forkedRepositoryUrl":              def.ForkedRepositoryURL,
		"forkedRepositoryEvidence":         def.ForkedRepositoryEvidence,
		"otherPlaceHowToGet":               def.OtherPlaceHowToGet,
		"otherPlaceSourceCodeEvidence":     def.OtherPlaceSourceCodeEvidence,
		"otherPlacePublisherEvidence":      def.OtherPlacePublisherEvidence,
		"contactInformation":               def.ContactInformation,
		"createdAt":                        models.EpochMillis(def.CreatedAt),
		"updatedAt":                        models.EpochMillis(def.UpdatedAt),
	}
}

func (c *Commands) fetchKeyboardDefinitionListByStatus(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	status, _ := req.Data.String("status")
	definitions, err := c.definitions.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	list := make([]map[string]any, 0, len(definitions))
	for _, def := range definitions {
		list = append(list, definitionFields(def))
	}
	return rpc.OK(map[string]any{"keyboardDefinitionList": list}), nil
}

func (c *Commands) fetchKeyboardDefinitionDetailByID(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	id, _ := req.Data.String("id")
	def, err := c.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return rpc.Fail(rpc.CodeDefinitionNotFound, fmt.Sprintf("Keyboard Definition not found: %s", id)), nil
	}

	detail := definitionFields(def)
	author, err := c.idp.GetUser(ctx, def.AuthorUID)
	if err != nil {
		return nil, err
	}
	if author != nil {
		primary := author.PrimaryIdentity()
		detail["githubUid"] = primary.UID
		detail["githubDisplayName"] = primary.DisplayName
		detail["githubEmail"] = primary.Email
	}
	return rpc.OK(map[string]any{"keyboardDefinitionDetail": detail}), nil
}

func (c *Commands) fetchKeyboardDefinitionStats(ctx context.Context, _ *rpc.Request) (*rpc.Result, error) {
	counts, err := c.definitions.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}
	return rpc.OK(map[string]any{
		"totalCount":    total,
		"draftCount":    counts[models.DefinitionStatusDraft],
		"inReviewCount": counts[models.DefinitionStatusInReview],
		"rejectedCount": counts[models.DefinitionStatusRejected],
		"approvedCount": counts[models.DefinitionStatusApproved],
	}), nil
}

func (c *Commands) updateKeyboardDefinitionStatus(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	id, _ := req.Data.String("id")
	status, _ := req.Data.String("status")
	rejectReason, _ := req.Data.String("rejectReason")

	def, err := c.definitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return rpc.Fail(rpc.CodeDefinitionNotFound, fmt.Sprintf("Keyboard Definition not found: %s", id)), nil
	}

	if err := c.definitions.UpdateStatus(ctx, id, status, &rejectReason); err != nil {
		return nil, err
	}

	// Notify the author off the request path; a notification failure must
	// not fail the moderation action.
	safego.Go(func() {
		c.notifyAuthor(context.WithoutCancel(ctx), def, status)
	})
	return rpc.OK(nil), nil
}

func (c *Commands) notifyAuthor(ctx context.Context, def *models.KeyboardDefinition, status string) {
	data := notify.ReviewStatusData{
		Name:        def.Name,
		ProductName: def.ProductName,
		Status:      status,
	}
	author, err := c.idp.GetUser(ctx, def.AuthorUID)
	if err != nil {
		slog.Error("Failed to resolve definition author for notification", "definitionId", def.ID, "error", err)
	} else if author != nil {
		primary := author.PrimaryIdentity()
		data.Email = primary.Email
		data.DisplayName = primary.DisplayName
	}
	if err := c.notifier.ReviewStatusChange(ctx, def.ID, data); err != nil {
		slog.Error("Failed to send status change notification", "definitionId", def.ID, "error", err)
	}
}

func (c *Commands) createOrganization(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	memberEmail, _ := req.Data.String("memberEmailAddress")
	member, err := c.idp.GetUserByEmail(ctx, memberEmail)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.HasProvider(identity.GitHubProviderID) {
		return rpc.Fail(rpc.CodeCreatingOrganizationFailed,
			fmt.Sprintf("The user[%s] is not logged in to Remap with GitHub account", memberEmail)), nil
	}

	org := &models.Organization{
		Name:                req.Data.StringOr("name", ""),
		Description:         req.Data.StringOr("description", ""),
		WebsiteURL:          req.Data.StringOr("websiteUrl", ""),
		IconImageURL:        req.Data.StringOr("iconImageUrl", ""),
		ContactEmailAddress: req.Data.StringOr("contactEmailAddress", ""),
		ContactPersonName:   req.Data.StringOr("contactPersonName", ""),
		ContactTel:          req.Data.StringOr("contactTel", ""),
		ContactAddress:      req.Data.StringOr("contactAddress", ""),
	}
	if err := c.orgs.Create(ctx, org, member.UID); err != nil {
		slog.Error("Failed to create organization", "name", org.Name, "error", err)
		return rpc.Fail(rpc.CodeCreatingOrganizationFailed, fmt.Sprintf("Creating an organization failed: %v", err)), nil
	}
	return rpc.OK(map[string]any{"organizationId": org.ID}), nil
}

func organizationFields(org *models.Organization) map[string]any {
	return map[string]any{
		"id":                  org.ID,
		"name":                org.Name,
		"description":         org.Description,
		"iconImageUrl":        org.IconImageURL,
		"websiteUrl":          org.WebsiteURL,
		"contactEmailAddress": org.ContactEmailAddress,
		"contactPersonName":   org.ContactPersonName,
		"contactTel":          org.ContactTel,
		"contactAddress":      org.ContactAddress,
		"members":             org.Members,
		"createdAt":           models.EpochMillis(org.CreatedAt),
		"updatedAt":           models.EpochMillis(org.UpdatedAt),
	}
}

func (c *Commands) resolveMembers(ctx context.Context, uids []string) ([]map[string]any, error) {
	members := make([]map[string]any, 0, len(uids))
	for _, uid := range uids {
		member := map[string]any{"uid": uid, "email": "", "displayName": ""}
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
	return members, nil
}

func (c *Commands) fetchOrganizations(ctx context.Context, _ *rpc.Request) (*rpc.Result, error) {
	orgs, err := c.orgs.List(ctx)
	if err != nil {
		return nil, err
	}

	withMembers := make([]map[string]any, 0, len(orgs))
	for _, org := range orgs {
		members, err := c.resolveMembers(ctx, org.Members)
		if err != nil {
			return nil, err
		}
		withMembers = append(withMembers, map[string]any{
			"organization":        organizationFields(org),
			"organizationMembers": members,
		})
	}
	return rpc.OK(map[string]any{"organizations": withMembers}), nil
}

func (c *Commands) fetchOrganizationByID(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	id, _ := req.Data.String("id")
	org, err := c.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return rpc.Fail(rpc.CodeOrganizationNotFound, fmt.Sprintf("Organization not found: %s", id)), nil
	}

	members, err := c.resolveMembers(ctx, org.Members)
	if err != nil {
		return nil, err
	}
	return rpc.OK(map[string]any{
		"organization":        organizationFields(org),
		"organizationMembers": members,
	}), nil
}
