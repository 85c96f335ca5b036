package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/xelth-com/eckclockgo/internal/models"
)

// MemoryStore implements Store in process with the same conditioned-update
// rules as GormStore. Faults can be injected per operation name.
type MemoryStore struct {
	mu       sync.Mutex
	devices  map[uuid.UUID]*models.TimeClockDevice
	mappings map[uuid.UUID]map[string]*models.DeviceUserMapping
	entries  map[uuid.UUID]*models.TimeClockEntry
	logs     map[uuid.UUID]*models.SyncLog
	faults   map[string]error
	writes   int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:  make(map[uuid.UUID]*models.TimeClockDevice),
		mappings: make(map[uuid.UUID]map[string]*models.DeviceUserMapping),
		entries:  make(map[uuid.UUID]*models.TimeClockEntry),
		logs:     make(map[uuid.UUID]*models.SyncLog),
		faults:   make(map[string]error),
	}
}

var _ Store = (*MemoryStore)(nil)

// Fail makes every later call of op (a method name such as "CreateEntry")
// return err. A nil err clears the fault.
func (s *MemoryStore) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// MapEmployee links a device user to an employee, as the enrollment workflow would
func (s *MemoryStore) MapEmployee(deviceID uuid.UUID, deviceUserID string, employeeID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.mappingLocked(deviceID, deviceUserID)
	id := employeeID
	m.EmployeeID = &id
}

// LedgerWrites counts successful entry inserts and closes
func (s *MemoryStore) LedgerWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) fault(op string) error {
	return s.faults[op]
}

func (s *MemoryStore) mappingLocked(deviceID uuid.UUID, deviceUserID string) *models.DeviceUserMapping {
	byUser, ok := s.mappings[deviceID]
	if !ok {
		byUser = make(map[string]*models.DeviceUserMapping)
		s.mappings[deviceID] = byUser
	}
	m, ok := byUser[deviceUserID]
	if !ok {
		now := time.Now().UTC()
		m = &models.DeviceUserMapping{ID: uuid.New(), DeviceID: deviceID, DeviceUserID: deviceUserID, CreatedAt: now, UpdatedAt: now}
		byUser[deviceUserID] = m
	}
	return m
}

// ============ DEVICES ============

func (s *MemoryStore) CreateDevice(ctx context.Context, d *models.TimeClockDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateDevice"); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.SyncStatus == "" {
		d.SyncStatus = models.DeviceStatusUnknown
	}
	if d.Settings == nil {
		d.Settings = datatypes.JSONMap{}
	}
	cp := *d
	s.devices[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDevice(ctx context.Context, deviceID, companyID uuid.UUID) (*models.TimeClockDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetDevice"); err != nil {
		return nil, err
	}
	d, ok := s.devices[deviceID]
	if !ok || d.CompanyID != companyID {
		return nil, ErrNotFound
	}
	cp := *d
	cp.Settings = copyMap(d.Settings)
	return &cp, nil
}

func (s *MemoryStore) TouchDevice(ctx context.Context, deviceID uuid.UUID, status models.DeviceSyncStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("TouchDevice"); err != nil {
		return err
	}
	d, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	if d.LastHeartbeatAt == nil || d.LastHeartbeatAt.Before(at) {
		t := at
		d.LastHeartbeatAt = &t
		d.SyncStatus = status
	}
	return nil
}

func (s *MemoryStore) MarkDeviceSynced(ctx context.Context, deviceID uuid.UUID, status models.DeviceSyncStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkDeviceSynced"); err != nil {
		return err
	}
	d, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	if d.LastSyncAt == nil || d.LastSyncAt.Before(at) {
		t := at
		d.LastSyncAt = &t
		d.SyncStatus = status
		d.PendingPunches = 0
	}
	return nil
}

func (s *MemoryStore) CacheDeviceInfo(ctx context.Context, deviceID uuid.UUID, info map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CacheDeviceInfo"); err != nil {
		return err
	}
	d, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	if d.Settings == nil {
		d.Settings = datatypes.JSONMap{}
	}
	d.Settings[models.SettingDeviceInfo] = copyMap(info)
	return nil
}

// ============ USER MAPPINGS ============

func (s *MemoryStore) LoadEmployeeMapping(ctx context.Context, deviceID uuid.UUID) (map[string]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("LoadEmployeeMapping"); err != nil {
		return nil, err
	}
	out := make(map[string]uuid.UUID)
	for id, m := range s.mappings[deviceID] {
		if m.EmployeeID != nil {
			out[id] = *m.EmployeeID
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertDeviceUser(ctx context.Context, in *models.DeviceUserMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertDeviceUser"); err != nil {
		return err
	}
	m := s.mappingLocked(in.DeviceID, in.DeviceUserID)
	m.DeviceUserName = in.DeviceUserName
	m.CardNumber = in.CardNumber
	m.FingerprintCount = in.FingerprintCount
	m.Privilege = in.Privilege
	m.LastSyncedAt = in.LastSyncedAt
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListDeviceUsers(ctx context.Context, deviceID uuid.UUID) ([]models.DeviceUserMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListDeviceUsers"); err != nil {
		return nil, err
	}
	out := make([]models.DeviceUserMapping, 0, len(s.mappings[deviceID]))
	for _, m := range s.mappings[deviceID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceUserID < out[j].DeviceUserID })
	return out, nil
}

// ============ LEDGER ============

func (s *MemoryStore) HasEntryNear(ctx context.Context, employeeID uuid.UUID, at time.Time, window time.Duration, matchClockOut bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("HasEntryNear"); err != nil {
		return false, err
	}
	lo, hi := at.Add(-window), at.Add(window)
	within := func(t time.Time) bool { return !t.Before(lo) && !t.After(hi) }

	for _, e := range s.entries {
		if e.EmployeeID != employeeID {
			continue
		}
		if within(e.ClockIn) {
			return true, nil
		}
		if matchClockOut && e.ClockOut != nil && within(*e.ClockOut) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateEntry(ctx context.Context, entry *models.TimeClockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateEntry"); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now().UTC()
	entry.CreatedAt, entry.UpdatedAt = now, now
	cp := *entry
	s.entries[entry.ID] = &cp
	s.writes++
	return nil
}

func (s *MemoryStore) FindOpenEntry(ctx context.Context, employeeID uuid.UUID) (*models.TimeClockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FindOpenEntry"); err != nil {
		return nil, err
	}
	var latest *models.TimeClockEntry
	for _, e := range s.entries {
		if e.EmployeeID != employeeID || e.ClockOut != nil {
			continue
		}
		if latest == nil || e.ClockIn.After(latest.ClockIn) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) CloseEntry(ctx context.Context, entryID uuid.UUID, clockOut time.Time, method string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CloseEntry"); err != nil {
		return false, err
	}
	e, ok := s.entries[entryID]
	if !ok || e.ClockOut != nil {
		return false, nil
	}
	t := clockOut
	e.ClockOut = &t
	e.ClockOutMethod = method
	e.Status = models.EntryStatusCompleted
	e.UpdatedAt = time.Now().UTC()
	s.writes++
	return true, nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, employeeID uuid.UUID) ([]models.TimeClockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimeClockEntry
	for _, e := range s.entries {
		if e.EmployeeID == employeeID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClockIn.Before(out[j].ClockIn) })
	return out, nil
}

// ============ SYNC LOGS ============

func (s *MemoryStore) CreateSyncLog(ctx context.Context, l *models.SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CreateSyncLog"); err != nil {
		return err
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	cp := *l
	cp.SyncDetails = copyMap(l.SyncDetails)
	s.logs[l.ID] = &cp
	return nil
}

func (s *MemoryStore) FinalizeSyncLog(ctx context.Context, id uuid.UUID, result models.SyncLogResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FinalizeSyncLog"); err != nil {
		return false, err
	}
	l, ok := s.logs[id]
	if !ok || l.Status != models.RunStatusInProgress {
		return false, nil
	}
	completed := result.CompletedAt
	l.Status = result.Status
	l.CompletedAt = &completed
	l.RecordsSynced = result.RecordsSynced
	l.RecordsFailed = result.RecordsFailed
	l.ErrorMessage = result.ErrorMessage
	l.SyncDetails = copyMap(result.SyncDetails)
	return true, nil
}

func (s *MemoryStore) GetSyncLog(ctx context.Context, id uuid.UUID) (*models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListSyncLogs(ctx context.Context, deviceID uuid.UUID, limit int) ([]models.SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListSyncLogs"); err != nil {
		return nil, err
	}
	var out []models.SyncLog
	for _, l := range s.logs {
		if l.DeviceID == deviceID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyMap(m map[string]interface{}) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
