package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
	AuditActionLink   AuditAction = "link"
	AuditActionUnlink AuditAction = "unlink"
	AuditActionSync   AuditAction = "sync"
)

type AuditLog struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgScoped
	CreatedAt time.Time `json:"createdAt"`

	UserID   *uuid.UUID `gorm:"type:uuid" json:"userId"`
	UserName string     `gorm:"size:100" json:"userName"`

	// "material_receipt", "purchase", "material_master", ...
	EntityType string    `gorm:"size:50;index" json:"entityType"`
	EntityID   uuid.UUID `gorm:"type:uuid;index" json:"entityId"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	BeforeData datatypes.JSON `json:"beforeData"`
	AfterData  datatypes.JSON `json:"afterData"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
