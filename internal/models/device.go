package models

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeviceSyncStatus is the last known reachability of a terminal
type DeviceSyncStatus string

const (
	DeviceStatusOnline  DeviceSyncStatus = "online"
	DeviceStatusOffline DeviceSyncStatus = "offline"
	DeviceStatusUnknown DeviceSyncStatus = "unknown"
)

// Settings keys stored in TimeClockDevice.Settings
const (
	SettingDeviceInfo = "deviceInfo"
	SettingTimezone   = "timezone"
)

// TimeClockDevice is a biometric/RFID terminal registered by the admin UI.
// This service only mutates the status, heartbeat and sync fields and the
// deviceInfo cache inside Settings.
// Convention: Go PascalCase -> DB snake_case (GORM auto) -> JSON camelCase
type TimeClockDevice struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"companyId"`
	Name            string            `json:"name"`
	SerialNumber    string            `json:"serialNumber"`
	IPAddress       string            `gorm:"column:ip_address" json:"ipAddress"`
	Port            int               `gorm:"default:4370" json:"port"`
	SyncStatus      DeviceSyncStatus  `gorm:"default:'unknown'" json:"syncStatus"`
	LastHeartbeatAt *time.Time        `json:"lastHeartbeatAt"`
	LastSyncAt      *time.Time        `json:"lastSyncAt"`
	PendingPunches  int               `gorm:"default:0" json:"pendingPunches"`
	Settings        datatypes.JSONMap `gorm:"type:jsonb;default:'{}'" json:"settings"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// TableName specifies the table name for TimeClockDevice
func (TimeClockDevice) TableName() string {
	return "time_clock_devices"
}

// BeforeCreate assigns a primary key when the caller did not
func (d *TimeClockDevice) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Address returns host:port, using defaultPort when none is stored
func (d *TimeClockDevice) Address(defaultPort int) string {
	port := d.Port
	if port <= 0 {
		port = defaultPort
	}
	return net.JoinHostPort(d.IPAddress, strconv.Itoa(port))
}

// Timezone returns the IANA zone configured in settings, or ""
func (d *TimeClockDevice) Timezone() string {
	if d.Settings == nil {
		return ""
	}
	if tz, ok := d.Settings[SettingTimezone].(string); ok {
		return tz
	}
	return ""
}

// Location resolves the device timezone, falling back to def
func (d *TimeClockDevice) Location(def *time.Location) *time.Location {
	tz := d.Timezone()
	if tz == "" {
		return def
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return def
	}
	return loc
}

func (d *TimeClockDevice) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}
