// Package workbench implements the build-credit purchase commands. A
// purchase is a two-phase flow against the payment gateway: createOrder
// opens an order, the frontend drives the buyer through approval, and
// captureOrder settles it and grants the build credit.
package workbench

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/remap-keys/remap-backend/internal/db/models"
	"github.com/remap-keys/remap-backend/internal/gateway"
	"github.com/remap-keys/remap-backend/internal/rpc"
	"github.com/remap-keys/remap-backend/internal/telemetry"
)

// PurchaseStore is the purchase history access the commands need.
type PurchaseStore interface {
	Create(ctx context.Context, uid string) (*models.PurchaseHistory, error)
	FindByUIDAndOrder(ctx context.Context, uid, orderID string) ([]*models.PurchaseHistory, error)
	MarkOrderCreated(ctx context.Context, id, orderID string, response []byte) error
	TransitionStatus(ctx context.Context, id, from, to string) error
	MarkOrderCaptured(ctx context.Context, id string, response []byte) error
	AnnotateError(ctx context.Context, id, errorMessage string) error
	GrantBuilds(ctx context.Context, uid string, count int) error
}

// Gateway is the payment gateway surface the commands need.
type Gateway interface {
	CreateOrder(ctx context.Context, language string) (*gateway.OrderResponse, error)
	CaptureOrder(ctx context.Context, orderID string) (*gateway.OrderResponse, error)
}

// Commands holds the workbench command handlers and their dependencies.
type Commands struct {
	purchases PurchaseStore
	gateway   Gateway

	isStatusMismatch func(error) bool
}

// NewCommands creates the workbench command set. isStatusMismatch reports
// whether a TransitionStatus error means the history row was not in the
// expected status.
func NewCommands(purchases PurchaseStore, gw Gateway, isStatusMismatch func(error) bool) *Commands {
	return &Commands{purchases: purchases, gateway: gw, isStatusMismatch: isStatusMismatch}
}

// Register binds the workbench commands to the dispatcher.
func (c *Commands) Register(d *rpc.Dispatcher) {
	auth := rpc.RequireAuthentication()

	d.Register("createOrder", c.createOrder, auth, rpc.RequireFields("language"))
	d.Register("captureOrder", c.captureOrder, auth, rpc.RequireFields("orderId"))
}

// annotate records an error message on a history row, best effort. The
// annotation itself failing is logged and swallowed so it never masks the
// failure being recorded.
func (c *Commands) annotate(ctx context.Context, historyID, message string) {
	if err := c.purchases.AnnotateError(ctx, historyID, message); err != nil {
		slog.Error("Failed to record purchase error message", "historyId", historyID, "error", err)
	}
}

func (c *Commands) createOrder(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	language, _ := req.Data.String("language")
	uid := req.Caller.UID

	history, err := c.purchases.Create(ctx, uid)
	if err != nil {
		return nil, err
	}

	resp, err := c.gateway.CreateOrder(ctx, language)
	if err != nil {
		slog.Error("Order creation request failed", "historyId", history.ID, "error", err)
		c.annotate(ctx, history.ID, fmt.Sprintf("Order creation failed: %v", err))
		telemetry.PurchasePhasesTotal.WithLabelValues("create", "failure").Inc()
		return rpc.Fail(rpc.CodeOrderCreateFailed, "Order creation failed"), nil
	}
	if !resp.Success() || resp.OrderID == "" {
		slog.Error("Order creation rejected by gateway", "historyId", history.ID, "status", resp.StatusCode)
		c.annotate(ctx, history.ID, fmt.Sprintf("Order creation failed: status %d", resp.StatusCode))
		telemetry.PurchasePhasesTotal.WithLabelValues("create", "failure").Inc()
		return rpc.Fail(rpc.CodeOrderCreateFailed, "Order creation failed"), nil
	}

	if err := c.purchases.MarkOrderCreated(ctx, history.ID, resp.OrderID, resp.Body); err != nil {
		c.annotate(ctx, history.ID, fmt.Sprintf("Recording created order failed: %v", err))
		return nil, err
	}

	telemetry.PurchasePhasesTotal.WithLabelValues("create", "success").Inc()
	return rpc.OK(map[string]any{"orderId": resp.OrderID}), nil
}

func (c *Commands) captureOrder(ctx context.Context, req *rpc.Request) (*rpc.Result, error) {
	orderID, _ := req.Data.String("orderId")
	uid := req.Caller.UID

	histories, err := c.purchases.FindByUIDAndOrder(ctx, uid, orderID)
	if err != nil {
		return nil, err
	}
	if len(histories) == 0 {
		return rpc.Fail(rpc.CodeCaptureOrderFailed, fmt.Sprintf("The order[%s] is not found", orderID)), nil
	}
	if len(histories) > 1 {
		return rpc.Fail(rpc.CodeDuplicateOrder, fmt.Sprintf("The order[%s] is duplicated", orderID)), nil
	}
	history := histories[0]

	// The transition both validates the current status and claims the row,
	// so concurrent capture attempts cannot both proceed.
	err = c.purchases.TransitionStatus(ctx, history.ID, models.PurchaseStatusOrderCreated, models.PurchaseStatusCapturingOrder)
	if err != nil {
		if c.isStatusMismatch(err) {
			c.annotate(ctx, history.ID, fmt.Sprintf("The order[%s] is not in the correct status", orderID))
			telemetry.PurchasePhasesTotal.WithLabelValues("capture", "failure").Inc()
			return rpc.Fail(rpc.CodeCaptureOrderFailed, fmt.Sprintf("The order[%s] is not in the correct status", orderID)), nil
		}
		return nil, err
	}

	resp, err := c.gateway.CaptureOrder(ctx, orderID)
	if err != nil {
		slog.Error("Order capture request failed", "historyId", history.ID, "error", err)
		c.annotate(ctx, history.ID, fmt.Sprintf("Capture order failed: %v", err))
		telemetry.PurchasePhasesTotal.WithLabelValues("capture", "failure").Inc()
		return rpc.Fail(rpc.CodeCaptureOrderFailed, "Capture order failed"), nil
	}
	if !resp.Success() {
		slog.Error("Order capture rejected by gateway", "historyId", history.ID, "status", resp.StatusCode)
		c.annotate(ctx, history.ID, fmt.Sprintf("Failed to capture order: %d", resp.StatusCode))
		telemetry.PurchasePhasesTotal.WithLabelValues("capture", "failure").Inc()
		return rpc.Fail(rpc.CodeCaptureOrderFailed, fmt.Sprintf("Failed to capture order: %d", resp.StatusCode)), nil
	}

	if err := c.purchases.MarkOrderCaptured(ctx, history.ID, resp.Body); err != nil {
		c.annotate(ctx, history.ID, fmt.Sprintf("Recording captured order failed: %v", err))
		return nil, err
	}

	if err := c.purchases.GrantBuilds(ctx, uid, models.BuildCountGrantPerOrder); err != nil {
		slog.Error("Failed to grant builds after capture", "historyId", history.ID, "uid", uid, "error", err)
		c.annotate(ctx, history.ID, fmt.Sprintf("Granting builds failed: %v", err))
		telemetry.PurchasePhasesTotal.WithLabelValues("capture", "failure").Inc()
		return rpc.Fail(rpc.CodeCaptureOrderFailed, "Capture order failed"), nil
	}

	telemetry.PurchasePhasesTotal.WithLabelValues("capture", "success").Inc()
	return rpc.OK(nil), nil
}
