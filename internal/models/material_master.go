package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type MaterialCategory string

const (
	CategoryCement     MaterialCategory = "cement"
	CategorySteel      MaterialCategory = "steel"
	CategorySand       MaterialCategory = "sand"
	CategoryAggregate  MaterialCategory = "aggregate"
	CategoryBricks     MaterialCategory = "bricks"
	CategoryConcrete   MaterialCategory = "concrete"
	CategoryTimber     MaterialCategory = "timber"
	CategoryElectrical MaterialCategory = "electrical"
	CategoryPlumbing   MaterialCategory = "plumbing"
	CategoryPaint      MaterialCategory = "paint"
	CategoryOther      MaterialCategory = "other"
)

var materialCategories = map[MaterialCategory]struct{}{
	CategoryCement: {}, CategorySteel: {}, CategorySand: {}, CategoryAggregate: {},
	CategoryBricks: {}, CategoryConcrete: {}, CategoryTimber: {}, CategoryElectrical: {},
	CategoryPlumbing: {}, CategoryPaint: {}, CategoryOther: {},
}

func (c MaterialCategory) Valid() bool {
	_, ok := materialCategories[c]
	return ok
}

// MaterialMaster is the catalog entry of a material together with its stock
// snapshot. Quantity and ConsumedQuantity are owned by the reconciliation
// rollup; OpeningBalance and SiteAllocations by catalog management.
type MaterialMaster struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgScoped
	Name         string           `gorm:"size:150;not null" json:"name"`
	Category     MaterialCategory `gorm:"size:30;not null" json:"category"`
	Unit         string           `gorm:"size:20;not null" json:"unit"`
	StandardRate decimal.Decimal  `gorm:"type:decimal(18,2);not null" json:"standardRate"`
	IsActive     bool             `gorm:"not null" json:"isActive"`

	Quantity         decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"quantity"` // remaining
	ConsumedQuantity decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"consumedQuantity"`
	OpeningBalance   decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"openingBalance"`
	Version          int                 `gorm:"not null;default:0" json:"version"`

	SiteAllocations []MaterialSiteAllocation `gorm:"foreignKey:MaterialID;constraint:OnDelete:CASCADE" json:"siteAllocations"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *MaterialMaster) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// MaterialSiteAllocation is the per-site opening balance of a material.
type MaterialSiteAllocation struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	OrgScoped
	MaterialID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_material_site" json:"-"`
	SiteID     string          `gorm:"size:64;not null;uniqueIndex:idx_material_site" json:"siteId"`
	SiteName   string          `gorm:"size:150;not null" json:"siteName"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
}

func (a *MaterialSiteAllocation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
