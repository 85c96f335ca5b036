package timeclock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/xelth-com/eckclockgo/internal/events"
	"github.com/xelth-com/eckclockgo/internal/models"
)

// finalizeTimeout bounds the audit write once the caller's context is gone
const finalizeTimeout = 5 * time.Second

// run tracks the sync log of one orchestrated action
type run struct {
	o      *Orchestrator
	entry  *models.SyncLog
	device *models.TimeClockDevice
	action Action
	done   bool
}

func (o *Orchestrator) startRun(ctx context.Context, device *models.TimeClockDevice, req Request) (*run, error) {
	entry := &models.SyncLog{
		ID:          uuid.New(),
		CompanyID:   device.CompanyID,
		DeviceID:    device.ID,
		SyncType:    string(req.Action),
		Status:      models.RunStatusInProgress,
		TriggeredBy: req.UserID,
		StartedAt:   o.now(),
		SyncDetails: datatypes.JSONMap{},
	}
	if err := o.store.CreateSyncLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}
	log.Printf("▶️ %s on %s (run %s)", req.Action, device, entry.ID)
	return &run{o: o, entry: entry, device: device, action: req.Action}, nil
}

// finish writes the terminal state once. The write detaches from ctx so a
// cancelled request still leaves a finalized log behind.
func (r *run) finish(ctx context.Context, status models.RunStatus, synced, failed int, errMsg string, details map[string]interface{}) {
	if r.done {
		return
	}
	r.done = true

	completed := r.o.now()
	if details == nil {
		details = map[string]interface{}{}
	}
	details["durationMs"] = completed.Sub(r.entry.StartedAt).Milliseconds()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	ok, err := r.o.store.FinalizeSyncLog(fctx, r.entry.ID, models.SyncLogResult{
		Status:        status,
		CompletedAt:   completed,
		RecordsSynced: synced,
		RecordsFailed: failed,
		ErrorMessage:  errMsg,
		SyncDetails:   details,
	})
	switch {
	case err != nil:
		log.Printf("❌ Failed to finalize sync log %s: %v", r.entry.ID, err)
	case !ok:
		log.Printf("⚠️ Sync log %s was already finalized", r.entry.ID)
	}

	r.o.metrics.ObserveRun(string(r.action), string(status), completed.Sub(r.entry.StartedAt))

	total, _ := details["total"].(int)
	if r.o.notifier != nil {
		ev := events.RunEvent{
			RunID:      r.entry.ID,
			DeviceID:   r.device.ID,
			CompanyID:  r.device.CompanyID,
			Action:     string(r.action),
			Status:     string(status),
			Synced:     synced,
			Failed:     failed,
			Total:      total,
			Error:      errMsg,
			FinishedAt: completed,
		}
		if err := r.o.notifier.NotifyRun(fctx, ev); err != nil {
			log.Printf("⚠️ Run %s notification failed: %v", r.entry.ID, err)
		}
	}

	if status == models.RunStatusFailed {
		log.Printf("❌ %s on %s failed: synced=%d failed=%d %s", r.action, r.device, synced, failed, errMsg)
		return
	}
	log.Printf("✅ %s on %s done: synced=%d failed=%d", r.action, r.device, synced, failed)
}

func (r *run) fail(ctx context.Context, err error) {
	r.finish(ctx, models.RunStatusFailed, 0, 0, err.Error(), nil)
}

// abandon finalizes a run that returned or panicked without finishing
func (r *run) abandon(ctx context.Context) {
	if !r.done {
		r.finish(ctx, models.RunStatusFailed, 0, 0, "run aborted before completion", nil)
	}
}
