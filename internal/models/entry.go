package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntryStatus is the lifecycle state of a ledger entry
type EntryStatus string

const (
	EntryStatusClockedIn EntryStatus = "clocked_in"
	EntryStatusCompleted EntryStatus = "completed"
)

// TimeClockEntry is one row of the attendance ledger.
// An entry is open while ClockOut is nil.
type TimeClockEntry struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	EmployeeID     uuid.UUID   `gorm:"type:uuid;not null;index:idx_entry_employee_clock_in,priority:1" json:"employeeId"`
	ClockIn        time.Time   `gorm:"not null;index:idx_entry_employee_clock_in,priority:2" json:"clockIn"`
	ClockInMethod  string      `json:"clockInMethod"`
	ClockOut       *time.Time  `json:"clockOut"`
	ClockOutMethod string      `json:"clockOutMethod"`
	Status         EntryStatus `gorm:"not null;default:'clocked_in'" json:"status"`
	SourceDeviceID *uuid.UUID  `gorm:"type:uuid" json:"sourceDeviceId"`
	WorkCode       string      `json:"workCode,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TableName specifies the table name for TimeClockEntry
func (TimeClockEntry) TableName() string {
	return "time_clock_entries"
}

// BeforeCreate assigns a primary key when the caller did not
func (e *TimeClockEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IsOpen reports whether the entry still awaits a clock-out
func (e *TimeClockEntry) IsOpen() bool {
	return e.ClockOut == nil
}
