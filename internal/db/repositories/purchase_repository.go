package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/remap-keys/remap-backend/internal/db/models"
)

// ErrStatusMismatch is returned by TransitionStatus when the history row is
// not in the expected current status. Capture uses this to reject
// double-capture and out-of-order capture attempts.
var ErrStatusMismatch = errors.New("purchase history is not in the expected status")

// PurchaseRepository handles database operations for purchase histories and
// user purchase accounts.
type PurchaseRepository struct {
	db *sqlx.DB
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *sqlx.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

const purchaseColumns = `
	id, uid, status, order_id, error_message, create_order_response,
	capture_order_response, created_at, updated_at`

// Create inserts a new purchase history row in creating_order status.
func (r *PurchaseRepository) Create(ctx context.Context, uid string) (*models.PurchaseHistory, error) {
	query := `
		INSERT INTO purchase_histories (uid, status)
		VALUES ($1, 'creating_order')
		RETURNING id, created_at, updated_at`

	history := &models.PurchaseHistory{UID: uid, Status: models.PurchaseStatusCreatingOrder}
	if err := r.db.QueryRowContext(ctx, query, uid).Scan(&history.ID, &history.CreatedAt, &history.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create purchase history: %w", err)
	}
	return history, nil
}

// FindByUIDAndOrder retrieves every history row matching (uid, orderId).
// Callers must treat more than one row as a hard error, never pick one.
func (r *PurchaseRepository) FindByUIDAndOrder(ctx context.Context, uid, orderID string) ([]*models.PurchaseHistory, error) {
	query := `SELECT` + purchaseColumns + ` FROM purchase_histories WHERE uid = $1 AND order_id = $2`

	histories := []*models.PurchaseHistory{}
	if err := r.db.SelectContext(ctx, &histories, query, uid, orderID); err != nil {
		return nil, fmt.Errorf("failed to find purchase histories: %w", err)
	}
	return histories, nil
}

// MarkOrderCreated advances a creating_order row to order_created, recording
// the gateway-assigned order id and the raw response payload.
func (r *PurchaseRepository) MarkOrderCreated(ctx context.Context, id, orderID string, response []byte) error {
	query := `
		UPDATE purchase_histories
		SET status = 'order_created', order_id = $2, create_order_response = $3, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, orderID, response); err != nil {
		return fmt.Errorf("failed to mark order created: %w", err)
	}
	return nil
}

// TransitionStatus moves a history row from exactly `from` to `to` under a
// row lock. If the row is missing or not in `from`, ErrStatusMismatch is
// returned and nothing changes. The SELECT ... FOR UPDATE closes the
// query-then-mutate race between concurrent capture attempts.
func (r *PurchaseRepository) TransitionStatus(ctx context.Context, id, from, to string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var current string
	lockQuery := `SELECT status FROM purchase_histories WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lockQuery, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("failed to lock purchase history: %w", err)
	}
	if current != from {
		return ErrStatusMismatch
	}

	updateQuery := `UPDATE purchase_histories SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, id, to); err != nil {
		return fmt.Errorf("failed to transition purchase history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status transition: %w", err)
	}
	return nil
}

// MarkOrderCaptured advances a row to order_captured, recording the raw
// capture response payload.
func (r *PurchaseRepository) MarkOrderCaptured(ctx context.Context, id string, response []byte) error {
	query := `
		UPDATE purchase_histories
		SET status = 'order_captured', capture_order_response = $2, updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, response); err != nil {
		return fmt.Errorf("failed to mark order captured: %w", err)
	}
	return nil
}

// AnnotateError records an error message on a history row. Used as
// best-effort bookkeeping by failure branches; callers swallow the returned
// error after logging so the annotation never masks the original failure.
func (r *PurchaseRepository) AnnotateError(ctx context.Context, id, errorMessage string) error {
	query := `UPDATE purchase_histories SET error_message = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, errorMessage); err != nil {
		return fmt.Errorf("failed to annotate purchase history: %w", err)
	}
	return nil
}

// GrantBuilds increments a user's remaining build count, creating the
// account row on first grant.
func (r *PurchaseRepository) GrantBuilds(ctx context.Context, uid string, count int) error {
	query := `
		INSERT INTO user_purchase_accounts (uid, remaining_build_count)
		VALUES ($1, $2)
		ON CONFLICT (uid) DO UPDATE
		SET remaining_build_count = user_purchase_accounts.remaining_build_count + EXCLUDED.remaining_build_count,
		    updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, uid, count); err != nil {
		return fmt.Errorf("failed to grant builds: %w", err)
	}
	return nil
}

// GetAccount retrieves a user's purchase account
func (r *PurchaseRepository) GetAccount(ctx context.Context, uid string) (*models.UserPurchaseAccount, error) {
	query := `SELECT uid, remaining_build_count, created_at, updated_at FROM user_purchase_accounts WHERE uid = $1`

	account := &models.UserPurchaseAccount{}
	if err := r.db.GetContext(ctx, account, query, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase account: %w", err)
	}
	return account, nil
}
