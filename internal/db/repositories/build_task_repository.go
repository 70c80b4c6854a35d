package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/remap-keys/remap-backend/internal/db/models"
)

// ErrUnfinishedTaskExists is returned by CreateExclusive when the caller
// already has a task in waiting or building state. The partial unique index
// on build_tasks(uid) makes this atomic: under concurrent submissions exactly
// one insert wins and every other one receives this error.
var ErrUnfinishedTaskExists = errors.New("an unfinished build task already exists for this user")

// BuildTaskRepository handles database operations for build tasks
type BuildTaskRepository struct {
	db *sqlx.DB
}

// NewBuildTaskRepository creates a new build task repository
func NewBuildTaskRepository(db *sqlx.DB) *BuildTaskRepository {
	return &BuildTaskRepository{db: db}
}

const buildTaskColumns = `
	id, uid, firmware_id, project_id, status, firmware_file_path, stdout, stderr,
	created_at, updated_at`

// GetByID retrieves a build task by ID
func (r *BuildTaskRepository) GetByID(ctx context.Context, id string) (*models.BuildTask, error) {
	query := `SELECT` + buildTaskColumns + ` FROM build_tasks WHERE id = $1`

	task := &models.BuildTask{}
	if err := r.db.GetContext(ctx, task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get build task: %w", err)
	}
	return task, nil
}

// HasUnfinished reports whether the user has a task in waiting or building
// state. Commands use this for the fast-path rejection; the unique index
// behind CreateExclusive is the authoritative guard.
func (r *BuildTaskRepository) HasUnfinished(ctx context.Context, uid string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM build_tasks WHERE uid = $1 AND status IN ('waiting', 'building'))`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, uid); err != nil {
		return false, fmt.Errorf("failed to check unfinished build tasks: %w", err)
	}
	return exists, nil
}

// CreateExclusive inserts a new waiting task for the user. If an unfinished
// task already exists the partial unique index rejects the insert and
// ErrUnfinishedTaskExists is returned.
func (r *BuildTaskRepository) CreateExclusive(ctx context.Context, task *models.BuildTask) error {
	query := `
		INSERT INTO build_tasks (uid, firmware_id, project_id, status)
		VALUES ($1, $2, $3, 'waiting')
		RETURNING id, status, firmware_file_path, stdout, stderr, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, task.UID, task.FirmwareID, task.ProjectID).Scan(
		&task.ID,
		&task.Status,
		&task.FirmwareFilePath,
		&task.Stdout,
		&task.Stderr,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrUnfinishedTaskExists
		}
		return fmt.Errorf("failed to create build task: %w", err)
	}
	return nil
}
