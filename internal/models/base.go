package models

import (
	"github.com/google/uuid"
)

// UnallocatedSiteID is the sentinel site meaning "not assigned to a site";
// it maps to the organization-level opening balance.
const UnallocatedSiteID = "unallocated"

const UnallocatedSiteName = "Unallocated"

// OrgScoped is embedded by every tenant-owned table.
type OrgScoped struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organizationId"`
}

func (o *OrgScoped) SetOrganizationID(id uuid.UUID) {
	o.OrganizationID = id
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
