package models

import "time"

// Organization represents a named group entity used for shared ownership of
// keyboard definitions. Members are kept in the organization_members table;
// the Members field is populated by the repository on read.
type Organization struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Description         string    `db:"description" json:"description"`
	WebsiteURL          string    `db:"website_url" json:"websiteUrl"`
	IconImageURL        string    `db:"icon_image_url" json:"iconImageUrl"`
	ContactEmailAddress string    `db:"contact_email_address" json:"contactEmailAddress"`
	ContactPersonName   string    `db:"contact_person_name" json:"contactPersonName"`
	ContactTel          string    `db:"contact_tel" json:"contactTel"`
	ContactAddress      string    `db:"contact_address" json:"contactAddress"`
	CreatedAt           time.Time `db:"created_at" json:"-"`
	UpdatedAt           time.Time `db:"updated_at" json:"-"`

	Members []string `db:"-" json:"members"`
}

// OrganizationMember represents one row of the membership set.
type OrganizationMember struct {
	OrganizationID string    `db:"organization_id" json:"organizationId"`
	UID            string    `db:"uid" json:"uid"`
	CreatedAt      time.Time `db:"created_at" json:"-"`
}
