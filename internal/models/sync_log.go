package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus is the state of a sync log row
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// SyncLog records one orchestrated run against a device.
// It is created once in_progress and finalized exactly once.
type SyncLog struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"companyId"`
	DeviceID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"deviceId"`
	SyncType      string            `gorm:"not null" json:"syncType"` // test_connection, sync_attendance, sync_users, get_device_info
	Status        RunStatus         `gorm:"not null;index" json:"status"`
	TriggeredBy   *uuid.UUID        `gorm:"type:uuid" json:"triggeredBy"`
	StartedAt     time.Time         `gorm:"not null" json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt"`
	RecordsSynced int               `gorm:"default:0" json:"recordsSynced"`
	RecordsFailed int               `gorm:"default:0" json:"recordsFailed"`
	ErrorMessage  string            `gorm:"type:text" json:"errorMessage"`
	SyncDetails   datatypes.JSONMap `gorm:"type:jsonb;default:'{}'" json:"syncDetails"`
	CreatedAt     time.Time         `json:"-"`
	UpdatedAt     time.Time         `json:"-"`
}

// TableName specifies the table name
func (SyncLog) TableName() string {
	return "time_clock_sync_logs"
}

// BeforeCreate assigns a primary key when the caller did not
func (l *SyncLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// SyncLogResult is the terminal state written when a run is finalized
type SyncLogResult struct {
	Status        RunStatus
	CompletedAt   time.Time
	RecordsSynced int
	RecordsFailed int
	ErrorMessage  string
	SyncDetails   map[string]interface{}
}

// All returns every model owned by this service, in migration order
func All() []interface{} {
	return []interface{}{
		&TimeClockDevice{},
		&DeviceUserMapping{},
		&TimeClockEntry{},
		&SyncLog{},
	}
}
