package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/remap-keys/remap-backend/internal/db/models"
)

// OperationLogRepository handles read access to frontend operation logs
type OperationLogRepository struct {
	db *sqlx.DB
}

// NewOperationLogRepository creates a new operation log repository
func NewOperationLogRepository(db *sqlx.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

// ListForDefinitionSince retrieves operation logs for a definition created at
// or after the given time, oldest first.
func (r *OperationLogRepository) ListForDefinitionSince(ctx context.Context, definitionID string, since time.Time) ([]*models.OperationLog, error) {
	query := `
		SELECT id, keyboard_definition_id, uid, operation, created_at
		FROM operation_logs
		WHERE keyboard_definition_id = $1 AND created_at >= $2
		ORDER BY created_at ASC`

	logs := []*models.OperationLog{}
	if err := r.db.SelectContext(ctx, &logs, query, definitionID, since); err != nil {
		return nil, fmt.Errorf("failed to list operation logs: %w", err)
	}
	return logs, nil
}
