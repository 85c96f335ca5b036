package usercatalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckclockgo/internal/models"
	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/terminal"
)

// flakyStore fails upserts for selected device user ids
type flakyStore struct {
	*repository.MemoryStore
	failFor map[string]bool
}

func (f *flakyStore) UpsertDeviceUser(ctx context.Context, m *models.DeviceUserMapping) error {
	if f.failFor[m.DeviceUserID] {
		return errors.New("unique violation")
	}
	return f.MemoryStore.UpsertDeviceUser(ctx, m)
}

func TestSyncUpsertsAndKeepsEmployeeLinks(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	device, employee := uuid.New(), uuid.New()
	store.MapEmployee(device, "1", employee)

	syncer := NewSyncer(store)
	fixed := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	syncer.now = func() time.Time { return fixed }

	users := []terminal.User{
		{DeviceUserID: "1", Name: "Ada", CardNumber: "0042", FingerprintCount: 2},
		{DeviceUserID: "2", Name: "Linus"},
	}

	res := syncer.Sync(ctx, device, users)
	assert.Equal(t, 2, res.Synced)
	assert.Zero(t, res.Failed)

	// a second run is an update, not a second row
	users[0].FingerprintCount = 3
	res = syncer.Sync(ctx, device, users)
	assert.Equal(t, 2, res.Synced)

	rows, err := store.ListDeviceUsers(ctx, device)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 3, rows[0].FingerprintCount)
	assert.Equal(t, "0042", rows[0].CardNumber)
	require.NotNil(t, rows[0].EmployeeID)
	assert.Equal(t, employee, *rows[0].EmployeeID)
	require.NotNil(t, rows[0].LastSyncedAt)
	assert.Equal(t, fixed, *rows[0].LastSyncedAt)

	assert.Nil(t, rows[1].EmployeeID, "catalog sync never assigns employees")
}

func TestSyncTalliesRowFailures(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), failFor: map[string]bool{"2": true}}
	device := uuid.New()

	res := NewSyncer(store).Sync(ctx, device, []terminal.User{
		{DeviceUserID: "1", Name: "Ada"},
		{DeviceUserID: "2", Name: "Broken"},
		{Name: "No id"},
		{DeviceUserID: "3", Name: "Grace"},
	})

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0].Error(), "unique violation")

	rows, _ := store.ListDeviceUsers(ctx, device)
	assert.Len(t, rows, 2)
}
