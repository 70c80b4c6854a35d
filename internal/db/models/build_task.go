package models

import "time"

// Build task statuses. The external build worker advances waiting → building
// → done/failed; this backend only ever creates tasks in "waiting".
const (
	BuildTaskStatusWaiting  = "waiting"
	BuildTaskStatusBuilding = "building"
	BuildTaskStatusDone     = "done"
	BuildTaskStatusFailed   = "failed"
)

// BuildTask is a unit of work dispatched to the external compilation worker.
// Exactly one of FirmwareID and ProjectID is set: FirmwareID for firmware
// builds, ProjectID for workbench builds.
type BuildTask struct {
	ID               string    `db:"id" json:"id"`
	UID              string    `db:"uid" json:"uid"`
	FirmwareID       *string   `db:"firmware_id" json:"firmwareId,omitempty"`
	ProjectID        *string   `db:"project_id" json:"projectId,omitempty"`
	Status           string    `db:"status" json:"status"`
	FirmwareFilePath string    `db:"firmware_file_path" json:"firmwareFilePath"`
	Stdout           string    `db:"stdout" json:"stdout"`
	Stderr           string    `db:"stderr" json:"stderr"`
	CreatedAt        time.Time `db:"created_at" json:"-"`
	UpdatedAt        time.Time `db:"updated_at" json:"-"`
}
