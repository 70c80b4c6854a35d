// Package models defines the database entities of the Remap backend. Every
// struct maps one-to-one to a table; no business logic lives here. Timestamps
// are stored as timestamptz and converted to epoch milliseconds only at the
// RPC boundary.
package models

import "time"

// Keyboard definition lifecycle statuses.
const (
	DefinitionStatusDraft    = "draft"
	DefinitionStatusInReview = "in_review"
	DefinitionStatusRejected = "rejected"
	DefinitionStatusApproved = "approved"
)

// DefinitionStatuses lists every valid status, in lifecycle order.
var DefinitionStatuses = []string{
	DefinitionStatusDraft,
	DefinitionStatusInReview,
	DefinitionStatusRejected,
	DefinitionStatusApproved,
}

// Author types for a keyboard definition.
const (
	AuthorTypeIndividual   = "individual"
	AuthorTypeOrganization = "organization"
)

// Firmware code places.
const (
	FirmwareCodePlaceQMK    = "qmk"
	FirmwareCodePlaceForked = "forked"
	FirmwareCodePlaceOther  = "other"
)

// KeyboardDefinition represents a keyboard hardware/firmware description
// record subject to moderation. OrganizationID is set iff AuthorType is
// "organization". RejectReason is set iff Status is "rejected".
type KeyboardDefinition struct {
	ID             string  `db:"id" json:"id"`
	AuthorType     string  `db:"author_type" json:"authorType"`
	AuthorUID      string  `db:"author_uid" json:"authorUid"`
	OrganizationID *string `db:"organization_id" json:"organizationId,omitempty"`
	Name           string  `db:"name" json:"name"`
	VendorID       int     `db:"vendor_id" json:"vendorId"`
	ProductID      int     `db:"product_id" json:"productId"`
	ProductName    string  `db:"product_name" json:"productName"`
	Status         string  `db:"status" json:"status"`
	RejectReason   *string `db:"reject_reason" json:"rejectReason,omitempty"`
	JSON           string  `db:"json" json:"json"`

	FirmwareCodePlace *string `db:"firmware_code_place" json:"firmwareCodePlace,omitempty"`

	// Provenance / evidence fields, populated according to FirmwareCodePlace.
	QmkRepositoryFirstPullRequestURL *string `db:"qmk_repository_first_pull_request_url" json:"qmkRepositoryFirstPullRequestUrl,omitempty"`
	ForkedRepositoryURL              *string `db:"forked_repository_url" json:"forkedRepositoryUrl,omitempty"`
	ForkedRepositoryEvidence         *string `db:"forked_repository_evidence" json:"forkedRepositoryEvidence,omitempty"`
	OtherPlaceHowToGet               *string `db:"other_place_how_to_get" json:"otherPlaceHowToGet,omitempty"`
	OtherPlaceSourceCodeEvidence     *string `db:"other_place_source_code_evidence" json:"otherPlaceSourceCodeEvidence,omitempty"`
	OtherPlacePublisherEvidence      *string `db:"other_place_publisher_evidence" json:"otherPlacePublisherEvidence,omitempty"`
	ContactInformation               *string `db:"contact_information" json:"contactInformation,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// EpochMillis converts a timestamp to the epoch-millisecond representation
// used at the RPC boundary.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
