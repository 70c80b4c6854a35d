package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/remap-keys/remap-backend/internal/db/models"
)

// OrganizationRepository handles database operations for organizations and
// their membership sets.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `
	id, name, description, website_url, icon_image_url, contact_email_address,
	contact_person_name, contact_tel, contact_address, created_at, updated_at`

// GetByID retrieves an organization by ID, including its member set.
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT` + organizationColumns + ` FROM organizations WHERE id = $1`

	org := &models.Organization{}
	if err := r.db.GetContext(ctx, org, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	members, err := r.GetMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	org.Members = members
	return org, nil
}

// List retrieves all organizations with their member sets.
func (r *OrganizationRepository) List(ctx context.Context) ([]*models.Organization, error) {
	query := `SELECT` + organizationColumns + ` FROM organizations ORDER BY name`

	orgs := []*models.Organization{}
	if err := r.db.SelectContext(ctx, &orgs, query); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	memberQuery := `SELECT organization_id, uid, created_at FROM organization_members ORDER BY organization_id`
	memberRows := []*models.OrganizationMember{}
	if err := r.db.SelectContext(ctx, &memberRows, memberQuery); err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}

	byOrg := map[string][]string{}
	for _, m := range memberRows {
		byOrg[m.OrganizationID] = append(byOrg[m.OrganizationID], m.UID)
	}
	for _, org := range orgs {
		org.Members = byOrg[org.ID]
		if org.Members == nil {
			org.Members = []string{}
		}
	}
	return orgs, nil
}

// Create inserts an organization and seeds its member set with the given uid
// in a single transaction, so an organization can never exist without its
// founding member.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization, initialMemberUID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO organizations (
			name, description, website_url, icon_image_url, contact_email_address,
			contact_person_name, contact_tel, contact_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	if err := tx.QueryRowContext(ctx, query,
		org.Name, org.Description, org.WebsiteURL, org.IconImageURL,
		org.ContactEmailAddress, org.ContactPersonName, org.ContactTel, org.ContactAddress,
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	memberQuery := `INSERT INTO organization_members (organization_id, uid) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, memberQuery, org.ID, initialMemberUID); err != nil {
		return fmt.Errorf("failed to seed organization member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization creation: %w", err)
	}
	org.Members = []string{initialMemberUID}
	return nil
}

// GetMembers retrieves the member uid set of an organization.
func (r *OrganizationRepository) GetMembers(ctx context.Context, orgID string) ([]string, error) {
	query := `SELECT uid FROM organization_members WHERE organization_id = $1 ORDER BY created_at`

	members := []string{}
	if err := r.db.SelectContext(ctx, &members, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to get organization members: %w", err)
	}
	return members, nil
}

// IsMember reports whether uid belongs to the organization's member set.
func (r *OrganizationRepository) IsMember(ctx context.Context, orgID, uid string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM organization_members WHERE organization_id = $1 AND uid = $2)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, orgID, uid); err != nil {
		return false, fmt.Errorf("failed to check organization membership: %w", err)
	}
	return exists, nil
}

// AddMember adds a uid to the member set. Adding an existing member is a
// no-op, not an error: the primary key plus ON CONFLICT DO NOTHING makes the
// operation idempotent.
func (r *OrganizationRepository) AddMember(ctx context.Context, orgID, uid string) error {
	query := `
		INSERT INTO organization_members (organization_id, uid)
		VALUES ($1, $2)
		ON CONFLICT (organization_id, uid) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, orgID, uid); err != nil {
		return fmt.Errorf("failed to add organization member: %w", err)
	}
	return nil
}

// RemoveMember removes a uid from the member set. Removing an absent uid is a
// no-op, not an error.
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, uid string) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND uid = $2`

	if _, err := r.db.ExecContext(ctx, query, orgID, uid); err != nil {
		return fmt.Errorf("failed to remove organization member: %w", err)
	}
	return nil
}
