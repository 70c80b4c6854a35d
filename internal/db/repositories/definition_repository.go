// Package repositories implements database access for the Remap backend.
// Repositories contain no business logic: they map between storage rows and
// the typed records in internal/db/models. Not-found is reported as
// (nil, nil), never as an error.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/remap-keys/remap-backend/internal/db/models"
)

// DefinitionRepository handles database operations for keyboard definitions
type DefinitionRepository struct {
	db *sqlx.DB
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sqlx.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

const definitionColumns = `
	id, author_type, author_uid, organization_id, name, vendor_id, product_id,
	product_name, status, reject_reason, json, firmware_code_place,
	qmk_repository_first_pull_request_url, forked_repository_url,
	forked_repository_evidence, other_place_how_to_get,
	other_place_source_code_evidence, other_place_publisher_evidence,
	contact_information, created_at, updated_at`

// GetByID retrieves a keyboard definition by ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.KeyboardDefinition, error) {
	query := `SELECT` + definitionColumns + ` FROM keyboard_definitions WHERE id = $1`

	def := &models.KeyboardDefinition{}
	if err := r.db.GetContext(ctx, def, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get keyboard definition: %w", err)
	}
	return def, nil
}

// ListByStatus retrieves all keyboard definitions with the given status,
// newest first.
func (r *DefinitionRepository) ListByStatus(ctx context.Context, status string) ([]*models.KeyboardDefinition, error) {
	query := `SELECT` + definitionColumns + `
		FROM keyboard_definitions WHERE status = $1 ORDER BY updated_at DESC`

	defs := []*models.KeyboardDefinition{}
	if err := r.db.SelectContext(ctx, &defs, query, status); err != nil {
		return nil, fmt.Errorf("failed to list keyboard definitions by status: %w", err)
	}
	return defs, nil
}

// ListByVendorProduct retrieves all keyboard definitions sharing a
// (vendor_id, product_id) pair, regardless of status.
func (r *DefinitionRepository) ListByVendorProduct(ctx context.Context, vendorID, productID int) ([]*models.KeyboardDefinition, error) {
	query := `SELECT` + definitionColumns + `
		FROM keyboard_definitions WHERE vendor_id = $1 AND product_id = $2`

	defs := []*models.KeyboardDefinition{}
	if err := r.db.SelectContext(ctx, &defs, query, vendorID, productID); err != nil {
		return nil, fmt.Errorf("failed to list keyboard definitions by vendor/product: %w", err)
	}
	return defs, nil
}

// CountsByStatus aggregates definition counts per status in a single query.
func (r *DefinitionRepository) CountsByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM keyboard_definitions GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count keyboard definitions: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// UpdateStatus writes a definition's status and reject reason, bumping
// updated_at. A nil rejectReason clears the column.
func (r *DefinitionRepository) UpdateStatus(ctx context.Context, id, status string, rejectReason *string) error {
	query := `
		UPDATE keyboard_definitions
		SET status = $2, reject_reason = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, status, rejectReason)
	if err != nil {
		return fmt.Errorf("failed to update keyboard definition status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("keyboard definition %s not found", id)
	}
	return nil
}
