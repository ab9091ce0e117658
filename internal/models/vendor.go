package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vendor supplies materials; receipts and purchases denormalize its name.
type Vendor struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgScoped
	Name      string    `gorm:"size:200;not null" json:"name"`
	Phone     string    `gorm:"size:30" json:"phone"`
	GSTIN     string    `gorm:"column:gstin;size:15" json:"gstin"`
	Address   string    `gorm:"size:500" json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
