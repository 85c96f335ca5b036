package usercatalog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xelth-com/eckclockgo/internal/models"
	"github.com/xelth-com/eckclockgo/internal/terminal"
)

// Store persists device user mappings
type Store interface {
	UpsertDeviceUser(ctx context.Context, m *models.DeviceUserMapping) error
}

// Result tallies one catalog sync
type Result struct {
	Total  int
	Synced int
	Failed int
	Errors []error
}

// Syncer refreshes DeviceUserMapping rows from a terminal's user directory
type Syncer struct {
	store Store
	now   func() time.Time
}

// NewSyncer creates a syncer over store
func NewSyncer(store Store) *Syncer {
	return &Syncer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Sync upserts one mapping per user keyed by (deviceID, DeviceUserID).
// Only descriptive columns are written; employee links are left as they are.
// A failed row is counted and the batch continues.
func (s *Syncer) Sync(ctx context.Context, deviceID uuid.UUID, users []terminal.User) *Result {
	res := &Result{Total: len(users)}
	syncedAt := s.now()

	for _, u := range users {
		if u.DeviceUserID == "" {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("user %q has no device user id", u.Name))
			continue
		}

		ts := syncedAt
		m := &models.DeviceUserMapping{
			DeviceID:         deviceID,
			DeviceUserID:     u.DeviceUserID,
			DeviceUserName:   u.Name,
			CardNumber:       u.CardNumber,
			FingerprintCount: u.FingerprintCount,
			Privilege:        u.Privilege,
			LastSyncedAt:     &ts,
		}
		if err := s.store.UpsertDeviceUser(ctx, m); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("upsert device user %s: %w", u.DeviceUserID, err))
			continue
		}
		res.Synced++
	}

	log.Printf("👥 Device %s users: %d synced, %d failed", deviceID, res.Synced, res.Failed)
	return res
}
