package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AdministratorRepository handles the administrators allow-list.
// Administrators are identified by the email of their identity-provider
// account, not by uid, so revoking an email revokes every linked identity.
type AdministratorRepository struct {
	db *sqlx.DB
}

// NewAdministratorRepository creates a new administrator repository
func NewAdministratorRepository(db *sqlx.DB) *AdministratorRepository {
	return &AdministratorRepository{db: db}
}

// IsAdministrator reports whether the given email is on the administrators list.
func (r *AdministratorRepository) IsAdministrator(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM administrators WHERE email = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, fmt.Errorf("failed to check administrator list: %w", err)
	}
	return exists, nil
}
