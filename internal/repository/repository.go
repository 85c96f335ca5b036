// Package repository persists devices, user mappings, ledger entries and
// sync logs. GormStore is the PostgreSQL implementation; MemoryStore keeps
// the same semantics in process.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xelth-com/eckclockgo/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Store is everything the sync service reads and writes
type Store interface {
	DeviceStore
	MappingStore
	LedgerStore
	SyncLogStore
}

// DeviceStore covers terminal registration rows
type DeviceStore interface {
	CreateDevice(ctx context.Context, d *models.TimeClockDevice) error
	GetDevice(ctx context.Context, deviceID, companyID uuid.UUID) (*models.TimeClockDevice, error)
	// TouchDevice records reachability; it never moves last_heartbeat_at backwards.
	TouchDevice(ctx context.Context, deviceID uuid.UUID, status models.DeviceSyncStatus, at time.Time) error
	// MarkDeviceSynced records a finished attendance pull and clears pending_punches.
	MarkDeviceSynced(ctx context.Context, deviceID uuid.UUID, status models.DeviceSyncStatus, at time.Time) error
	CacheDeviceInfo(ctx context.Context, deviceID uuid.UUID, info map[string]interface{}) error
}

// MappingStore covers device user to employee links
type MappingStore interface {
	// LoadEmployeeMapping returns device_user_id -> employee_id for mapped users.
	LoadEmployeeMapping(ctx context.Context, deviceID uuid.UUID) (map[string]uuid.UUID, error)
	UpsertDeviceUser(ctx context.Context, m *models.DeviceUserMapping) error
	ListDeviceUsers(ctx context.Context, deviceID uuid.UUID) ([]models.DeviceUserMapping, error)
}

// LedgerStore covers attendance entries
type LedgerStore interface {
	HasEntryNear(ctx context.Context, employeeID uuid.UUID, at time.Time, window time.Duration, matchClockOut bool) (bool, error)
	CreateEntry(ctx context.Context, entry *models.TimeClockEntry) error
	FindOpenEntry(ctx context.Context, employeeID uuid.UUID) (*models.TimeClockEntry, error)
	CloseEntry(ctx context.Context, entryID uuid.UUID, clockOut time.Time, method string) (bool, error)
	ListEntries(ctx context.Context, employeeID uuid.UUID) ([]models.TimeClockEntry, error)
}

// SyncLogStore covers the run audit trail
type SyncLogStore interface {
	CreateSyncLog(ctx context.Context, l *models.SyncLog) error
	// FinalizeSyncLog writes the terminal state of a run that is still in progress.
	// It returns false when the log was already finalized.
	FinalizeSyncLog(ctx context.Context, id uuid.UUID, result models.SyncLogResult) (bool, error)
	GetSyncLog(ctx context.Context, id uuid.UUID) (*models.SyncLog, error)
	ListSyncLogs(ctx context.Context, deviceID uuid.UUID, limit int) ([]models.SyncLog, error)
}
