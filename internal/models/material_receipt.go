package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaterialReceipt is a physical goods-in event captured at the weighbridge.
// LinkedPurchaseID is only ever changed by the reconciliation engine.
type MaterialReceipt struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgScoped
	Date          time.Time `gorm:"index;not null" json:"date"`
	VehicleNumber string    `gorm:"size:30;not null" json:"vehicleNumber"`

	MaterialID   uuid.UUID `gorm:"type:uuid;index;not null" json:"materialId"`
	MaterialName string    `gorm:"size:150;not null" json:"materialName"`

	FilledWeight decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"filledWeight"`
	EmptyWeight  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"emptyWeight"`
	NetWeight    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"netWeight"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`

	VendorID   *uuid.UUID `gorm:"type:uuid;index" json:"vendorId"`
	VendorName string     `gorm:"size:200" json:"vendorName"`

	SiteID   string `gorm:"size:64;index;not null" json:"siteId"`
	SiteName string `gorm:"size:150;not null" json:"siteName"`

	LinkedPurchaseID *uuid.UUID `gorm:"type:uuid;index" json:"linkedPurchaseId"`

	ChallanNumber string     `gorm:"size:50" json:"challanNumber"`
	Remarks       string     `gorm:"size:500" json:"remarks"`
	BatchID       *uuid.UUID `gorm:"type:uuid;index" json:"batchId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *MaterialReceipt) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (r *MaterialReceipt) IsLinked() bool {
	return r.LinkedPurchaseID != nil
}
