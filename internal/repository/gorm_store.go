package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/eckclockgo/internal/models"
)

// GormStore implements Store on PostgreSQL through GORM
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

// ============ DEVICES ============

func (s *GormStore) CreateDevice(ctx context.Context, d *models.TimeClockDevice) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *GormStore) GetDevice(ctx context.Context, deviceID, companyID uuid.UUID) (*models.TimeClockDevice, error) {
	var d models.TimeClockDevice
	err := s.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", deviceID, companyID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *GormStore) TouchDevice(ctx context.Context, deviceID uuid.UUID, status models.DeviceSyncStatus, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.TimeClockDevice{}).
		Where("id = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)", deviceID, at).
		Updates(map[string]interface{}{
			"sync_status":       status,
			"last_heartbeat_at": at,
		}).Error
}

func (s *GormStore) MarkDeviceSynced(ctx context.Context, deviceID uuid.UUID, status models.DeviceSyncStatus, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.TimeClockDevice{}).
		Where("id = ? AND (last_sync_at IS NULL OR last_sync_at < ?)", deviceID, at).
		Updates(map[string]interface{}{
			"sync_status":     status,
			"last_sync_at":    at,
			"pending_punches": 0,
		}).Error
}

// CacheDeviceInfo replaces settings.deviceInfo and leaves other settings keys alone
func (s *GormStore) CacheDeviceInfo(ctx context.Context, deviceID uuid.UUID, info map[string]interface{}) error {
	return s.db.WithContext(ctx).
		Model(&models.TimeClockDevice{}).
		Where("id = ?", deviceID).
		UpdateColumn("settings", datatypes.JSONSet("settings").Set("{"+models.SettingDeviceInfo+"}", info)).Error
}

// ============ USER MAPPINGS ============

func (s *GormStore) LoadEmployeeMapping(ctx context.Context, deviceID uuid.UUID) (map[string]uuid.UUID, error) {
	var rows []models.DeviceUserMapping
	err := s.db.WithContext(ctx).
		Select("device_user_id", "employee_id").
		Where("device_id = ? AND employee_id IS NOT NULL", deviceID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	mapping := make(map[string]uuid.UUID, len(rows))
	for _, r := range rows {
		if r.EmployeeID != nil {
			mapping[r.DeviceUserID] = *r.EmployeeID
		}
	}
	return mapping, nil
}

// UpsertDeviceUser inserts a mapping or refreshes the descriptive columns of
// an existing one. employee_id is never part of the update set.
func (s *GormStore) UpsertDeviceUser(ctx context.Context, m *models.DeviceUserMapping) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "device_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"device_user_name",
			"card_number",
			"fingerprint_count",
			"privilege",
			"last_synced_at",
			"updated_at",
		}),
	}).Omit("employee_id").Create(m).Error
}

func (s *GormStore) ListDeviceUsers(ctx context.Context, deviceID uuid.UUID) ([]models.DeviceUserMapping, error) {
	var rows []models.DeviceUserMapping
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("device_user_id").
		Find(&rows).Error
	return rows, err
}

// ============ LEDGER ============

func (s *GormStore) HasEntryNear(ctx context.Context, employeeID uuid.UUID, at time.Time, window time.Duration, matchClockOut bool) (bool, error) {
	lo, hi := at.Add(-window), at.Add(window)

	q := s.db.WithContext(ctx).Model(&models.TimeClockEntry{}).Where("employee_id = ?", employeeID)
	if matchClockOut {
		q = q.Where("((clock_in BETWEEN ? AND ?) OR (clock_out BETWEEN ? AND ?))", lo, hi, lo, hi)
	} else {
		q = q.Where("clock_in BETWEEN ? AND ?", lo, hi)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) CreateEntry(ctx context.Context, entry *models.TimeClockEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) FindOpenEntry(ctx context.Context, employeeID uuid.UUID) (*models.TimeClockEntry, error) {
	var e models.TimeClockEntry
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND clock_out IS NULL", employeeID).
		Order("clock_in DESC").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *GormStore) CloseEntry(ctx context.Context, entryID uuid.UUID, clockOut time.Time, method string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.TimeClockEntry{}).
		Where("id = ? AND clock_out IS NULL", entryID).
		Updates(map[string]interface{}{
			"clock_out":        clockOut,
			"clock_out_method": method,
			"status":           models.EntryStatusCompleted,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListEntries(ctx context.Context, employeeID uuid.UUID) ([]models.TimeClockEntry, error) {
	var rows []models.TimeClockEntry
	err := s.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("clock_in").
		Find(&rows).Error
	return rows, err
}

// ============ SYNC LOGS ============

func (s *GormStore) CreateSyncLog(ctx context.Context, l *models.SyncLog) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *GormStore) FinalizeSyncLog(ctx context.Context, id uuid.UUID, result models.SyncLogResult) (bool, error) {
	details := datatypes.JSONMap(result.SyncDetails)
	if details == nil {
		details = datatypes.JSONMap{}
	}

	res := s.db.WithContext(ctx).
		Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, models.RunStatusInProgress).
		Updates(map[string]interface{}{
			"status":         result.Status,
			"completed_at":   result.CompletedAt,
			"records_synced": result.RecordsSynced,
			"records_failed": result.RecordsFailed,
			"error_message":  result.ErrorMessage,
			"sync_details":   details,
		})
	if res.Error != nil {
		return false, fmt.Errorf("finalize sync log %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) GetSyncLog(ctx context.Context, id uuid.UUID) (*models.SyncLog, error) {
	var l models.SyncLog
	err := s.db.WithContext(ctx).First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *GormStore) ListSyncLogs(ctx context.Context, deviceID uuid.UUID, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.SyncLog
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
