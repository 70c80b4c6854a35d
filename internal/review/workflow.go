// Package review implements the keyboard definition uniqueness review. A run
// checks whether a definition's (Vendor ID, Product ID, Product Name) triple
// collides with an already approved definition, rejects it if so, and
// notifies the moderation channel and the author.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/identity"
	"github.com/remap-keys/remap-backend/internal/notify"
	"github.com/remap-keys/remap-backend/internal/telemetry"
)

// RejectReasonDuplicate is the fixed reason written when a colliding
// approved definition exists.
const RejectReasonDuplicate = "The same keyboard definition (Vendor ID, Product ID and Product Name) already exists."

// DefinitionStore is the definition access the workflow needs.
type DefinitionStore interface {
	GetByID(ctx context.Context, id string) (*models.KeyboardDefinition, error)
	ListByVendorProduct(ctx context.Context, vendorID, productID int) ([]*models.KeyboardDefinition, error)
	UpdateStatus(ctx context.Context, id, status string, rejectReason *string) error
}

// Notifier is the outbound notification surface the workflow needs.
type Notifier interface {
	Message(ctx context.Context, definitionID, message string) error
	ReviewStatusChange(ctx context.Context, definitionID string, data notify.ReviewStatusData) error
}

// Workflow runs uniqueness reviews. Runs are triggered by the definition
// event endpoints and execute asynchronously; a per-definition lock
// deduplicates concurrent triggers for the same definition.
type Workflow struct {
	definitions DefinitionStore
	idp         identity.Provider
	notifier    Notifier
	locker      Locker
}

// NewWorkflow creates a review workflow.
func NewWorkflow(definitions DefinitionStore, idp identity.Provider, notifier Notifier, locker Locker) *Workflow {
	return &Workflow{definitions: definitions, idp: idp, notifier: notifier, locker: locker}
}

// Run reviews one definition. Notification failures are logged and never
// retried; they do not roll back a status write. All failures are terminal
// for the run — there is no retry orchestration.
func (w *Workflow) Run(ctx context.Context, definitionID string) {
	acquired, err := w.locker.TryAcquire(ctx, definitionID)
	if err != nil {
		slog.Error("Failed to acquire review lock", "definitionId", definitionID, "error", err)
		telemetry.ReviewRunsTotal.WithLabelValues("error").Inc()
		return
	}
	if !acquired {
		slog.Info("Review already in progress, skipping", "definitionId", definitionID)
		telemetry.ReviewRunsTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer w.locker.Release(ctx, definitionID)

	telemetry.ReviewRunsTotal.WithLabelValues(w.run(ctx, definitionID)).Inc()
}

func (w *Workflow) run(ctx context.Context, definitionID string) string {
	definition, err := w.definitions.GetByID(ctx, definitionID)
	if err != nil {
		slog.Error("Failed to load keyboard definition for review", "definitionId", definitionID, "error", err)
		return "error"
	}
	if definition == nil {
		slog.Error("The keyboard definition not found", "definitionId", definitionID)
		return "error"
	}

	siblings, err := w.definitions.ListByVendorProduct(ctx, definition.VendorID, definition.ProductID)
	if err != nil {
		slog.Error("Failed to list keyboard definitions for review", "definitionId", definitionID, "error", err)
		return "error"
	}
	// The definition itself matches its own (vendor, product) pair, so an
	// empty result means the stored row vanished mid-run.
	if len(siblings) == 0 {
		slog.Error("Illegal state: no definitions for vendor/product pair",
			"vendorId", definition.VendorID, "productId", definition.ProductID)
		return "error"
	}
	if len(siblings) == 1 {
		w.notifyUnique(ctx, definition)
		return "unique"
	}

	for _, sibling := range siblings {
		if sibling.ID == definition.ID {
			continue
		}
		if sibling.ProductName == definition.ProductName && sibling.Status == models.DefinitionStatusApproved {
			return w.reject(ctx, definition)
		}
	}
	w.notifyUnique(ctx, definition)
	return "unique"
}

func (w *Workflow) notifyUnique(ctx context.Context, definition *models.KeyboardDefinition) {
	message := fmt.Sprintf("The Vendor ID, Product ID and Product Name of the keyboard %s(%s) is unique.",
		definition.Name, definition.ProductName)
	if err := w.notifier.Message(ctx, definition.ID, message); err != nil {
		slog.Error("Failed to send uniqueness notification", "definitionId", definition.ID, "error", err)
	}
}

func (w *Workflow) reject(ctx context.Context, definition *models.KeyboardDefinition) string {
	reason := RejectReasonDuplicate
	if err := w.definitions.UpdateStatus(ctx, definition.ID, models.DefinitionStatusRejected, &reason); err != nil {
		slog.Error("Failed to reject keyboard definition", "definitionId", definition.ID, "error", err)
		return "error"
	}

	data := notify.ReviewStatusData{
		Name:        definition.Name,
		ProductName: definition.ProductName,
		Status:      models.DefinitionStatusRejected,
	}
	if author, err := w.idp.GetUser(ctx, definition.AuthorUID); err != nil {
		slog.Error("Failed to resolve definition author", "definitionId", definition.ID, "error", err)
	} else if author != nil {
		primary := author.PrimaryIdentity()
		data.Email = primary.Email
		data.DisplayName = primary.DisplayName
	}

	if err := w.notifier.ReviewStatusChange(ctx, definition.ID, data); err != nil {
		slog.Error("Failed to send review status notification", "definitionId", definition.ID, "error", err)
	}
	return "rejected"
}
