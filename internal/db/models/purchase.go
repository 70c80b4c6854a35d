package models

import "time"

// Purchase history statuses. Status only ever moves forward in this order;
// a flow aborted mid-way is left at its current status with ErrorMessage set
// and is never automatically retried.
const (
	PurchaseStatusCreatingOrder  = "creating_order"
	PurchaseStatusOrderCreated   = "order_created"
	PurchaseStatusCapturingOrder = "capturing_order"
	PurchaseStatusOrderCaptured  = "order_captured"
)

// BuildCountGrantPerOrder is the number of builds granted to the purchaser
// when an order capture succeeds.
const BuildCountGrantPerOrder = 10

// PurchaseHistory is an audit/state record tracking one payment-gateway order
// through its lifecycle. OrderID is assigned once the gateway confirms order
// creation. The raw gateway responses are kept for triage.
type PurchaseHistory struct {
	ID                   string    `db:"id" json:"id"`
	UID                  string    `db:"uid" json:"uid"`
	Status               string    `db:"status" json:"status"`
	OrderID              *string   `db:"order_id" json:"orderId,omitempty"`
	ErrorMessage         *string   `db:"error_message" json:"errorMessage,omitempty"`
	CreateOrderResponse  []byte    `db:"create_order_response" json:"-"`
	CaptureOrderResponse []byte    `db:"capture_order_response" json:"-"`
	CreatedAt            time.Time `db:"created_at" json:"-"`
	UpdatedAt            time.Time `db:"updated_at" json:"-"`
}

// UserPurchaseAccount tracks a user's remaining build credit. It is
// incremented only upon successful order capture.
type UserPurchaseAccount struct {
	UID                 string    `db:"uid" json:"uid"`
	RemainingBuildCount int       `db:"remaining_build_count" json:"remainingBuildCount"`
	CreatedAt           time.Time `db:"created_at" json:"-"`
	UpdatedAt           time.Time `db:"updated_at" json:"-"`
}
