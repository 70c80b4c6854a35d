package models

import "time"

// Operations recorded by the frontend against a keyboard definition.
const (
	OperationConfigureOpen  = "configure/open"
	OperationConfigureFlash = "configure/flash"
)

// OperationLog is one frontend operation event, aggregated by the keyboard
// statistics command into daily time series.
type OperationLog struct {
	ID                   string    `db:"id" json:"id"`
	KeyboardDefinitionID string    `db:"keyboard_definition_id" json:"keyboardDefinitionId"`
	UID                  string    `db:"uid" json:"uid"`
	Operation            string    `db:"operation" json:"operation"`
	CreatedAt            time.Time `db:"created_at" json:"createdAt"`
}
