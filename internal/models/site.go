package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Site is a construction site of an organization.
type Site struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgScoped
	Name      string    `gorm:"size:150;not null" json:"name"`
	Address   string    `gorm:"size:255" json:"address"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Site) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
