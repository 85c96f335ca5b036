package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceUserMapping links a terminal-local user id to an employee.
// EmployeeID is owned by the enrollment workflow; catalog syncs only
// refresh the descriptive columns.
type DeviceUserMapping struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_device_user" json:"deviceId"`
	DeviceUserID     string     `gorm:"not null;uniqueIndex:idx_device_user" json:"deviceUserId"`
	EmployeeID       *uuid.UUID `gorm:"type:uuid;index" json:"employeeId"`
	DeviceUserName   string     `json:"deviceUserName"`
	CardNumber       string     `json:"cardNumber"`
	FingerprintCount int        `gorm:"default:0" json:"fingerprintCount"`
	Privilege        int        `gorm:"default:0" json:"privilege"`
	LastSyncedAt     *time.Time `json:"lastSyncedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for DeviceUserMapping
func (DeviceUserMapping) TableName() string {
	return "device_user_mappings"
}

// BeforeCreate assigns a primary key when the caller did not
func (m *DeviceUserMapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
