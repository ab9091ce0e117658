package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase is the commercial record backed by one or more receipts.
// LinkedReceiptID keeps the first linked receipt for single-link consumers;
// the full set is the receipts whose LinkedPurchaseID points here.
type Purchase struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgScoped
	MaterialID   uuid.UUID `gorm:"type:uuid;index;not null" json:"materialId"`
	MaterialName string    `gorm:"size:150;not null" json:"materialName"`
	Site         string    `gorm:"size:150;not null" json:"site"`

	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitRate    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unitRate"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"totalAmount"`

	VendorID      *uuid.UUID `gorm:"type:uuid;index" json:"vendorId"`
	Vendor        string     `gorm:"size:200" json:"vendor"`
	InvoiceNumber string     `gorm:"size:50" json:"invoiceNumber"`
	PurchaseDate  time.Time  `gorm:"index;not null" json:"purchaseDate"`
	ReceiptNumber string     `gorm:"size:50" json:"receiptNumber"`

	ConsumedQuantity  decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"consumedQuantity"`
	RemainingQuantity decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"remainingQuantity"`

	LinkedReceiptID *uuid.UUID `gorm:"type:uuid" json:"linkedReceiptId"`

	Lines []PurchaseLine `gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// MarshalJSON also exposes UnitRate as costPerUnit for older form code.
func (p Purchase) MarshalJSON() ([]byte, error) {
	type alias Purchase
	return json.Marshal(struct {
		alias
		CostPerUnit decimal.Decimal `json:"costPerUnit"`
	}{alias(p), p.UnitRate})
}

// PurchaseLine records the rate each receipt was billed at. Position is the
// receipt's place in the submitted selection.
type PurchaseLine struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	OrgScoped
	PurchaseID uuid.UUID       `gorm:"type:uuid;index;not null" json:"-"`
	ReceiptID  uuid.UUID       `gorm:"type:uuid;index;not null" json:"receiptId"`
	Position   int             `gorm:"not null;default:0" json:"position"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitRate   decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"unitRate"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
}

func (l *PurchaseLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
