// Package timeclock runs sync actions against registered terminals: it takes
// the per-device lock, opens the sync log, drives the device session and
// feeds what it reads into reconciliation or the user catalog.
package timeclock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xelth-com/eckclockgo/internal/config"
	"github.com/xelth-com/eckclockgo/internal/events"
	"github.com/xelth-com/eckclockgo/internal/lock"
	"github.com/xelth-com/eckclockgo/internal/metrics"
	"github.com/xelth-com/eckclockgo/internal/models"
	"github.com/xelth-com/eckclockgo/internal/punch"
	"github.com/xelth-com/eckclockgo/internal/reconcile"
	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/terminal"
	"github.com/xelth-com/eckclockgo/internal/usercatalog"
)

// DeviceSession is the slice of terminal.Session a run uses
type DeviceSession interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	GetDeviceInfo(ctx context.Context) (*terminal.DeviceInfo, error)
	GetAttendanceLogs(ctx context.Context) ([]byte, error)
	GetUsers(ctx context.Context) ([]terminal.User, error)
}

// SessionFactory opens a fresh session for one run
type SessionFactory func(addr string) DeviceSession

// Deps wires an Orchestrator. Store is required; the rest have defaults.
type Deps struct {
	Store    repository.Store
	Locker   lock.Locker
	Sessions SessionFactory
	Notifier events.Notifier
	Metrics  *metrics.Collector
	Config   *config.SyncConfig
}

// Orchestrator executes sync runs
type Orchestrator struct {
	store    repository.Store
	locker   lock.Locker
	sessions SessionFactory
	notifier events.Notifier
	metrics  *metrics.Collector
	cfg      *config.SyncConfig
	engine   *reconcile.Engine
	catalog  *usercatalog.Syncer
	now      func() time.Time
}

// New builds an orchestrator from deps
func New(d Deps) *Orchestrator {
	cfg := d.Config
	if cfg == nil {
		cfg = config.LoadSyncConfig()
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = TerminalSessions(cfg)
	}

	return &Orchestrator{
		store:    d.Store,
		locker:   locker,
		sessions: sessions,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		cfg:      cfg,
		engine:   reconcile.NewEngine(d.Store, reconcile.Options{Window: cfg.DedupeWindow, Workers: cfg.ReconcileWorkers}),
		catalog:  usercatalog.NewSyncer(d.Store),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TerminalSessions returns a factory for real TCP sessions tuned by cfg
func TerminalSessions(cfg *config.SyncConfig) SessionFactory {
	opts := terminal.Options{
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
		MaxChunks:      cfg.MaxChunks,
	}
	return func(addr string) DeviceSession {
		return terminal.NewSession(addr, opts)
	}
}

// Run executes one request.
//
// Precondition failures (bad request, unknown or unconfigured device, busy
// device) return an error and leave no sync log. Once the log exists the run
// always finalizes it; a device failure returns the finalized response
// together with the error so callers can report both.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	device, err := o.store.GetDevice(ctx, req.DeviceID, req.CompanyID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, req.DeviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	if device.IPAddress == "" {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotConfigured, device)
	}

	loc := device.Location(o.cfg.Location())
	start, end, err := req.Options.Range(loc)
	if err != nil {
		return nil, err
	}

	release, err := o.locker.TryLock(ctx, device.ID)
	if errors.Is(err, lock.ErrLocked) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, device)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	defer release()

	r, err := o.startRun(ctx, device, req)
	if err != nil {
		return nil, err
	}
	defer r.abandon(ctx)

	sess := o.sessions(device.Address(o.cfg.DefaultPort))

	switch req.Action {
	case ActionTestConnection:
		return o.testConnection(ctx, r, sess)
	case ActionSyncAttendance:
		return o.syncAttendance(ctx, r, sess, loc, start, end)
	case ActionSyncUsers:
		return o.syncUsers(ctx, r, sess)
	default:
		return o.getDeviceInfo(ctx, r, sess)
	}
}

// withSession connects, runs fn and always disconnects afterwards
func withSession(ctx context.Context, sess DeviceSession, fn func() error) error {
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Disconnect(ctx)
	return fn()
}

func (o *Orchestrator) touch(ctx context.Context, r *run, status models.DeviceSyncStatus) {
	if err := o.store.TouchDevice(ctx, r.device.ID, status, o.now()); err != nil {
		log.Printf("⚠️ Failed to update status of %s: %v", r.device, err)
	}
}

func (o *Orchestrator) failed(ctx context.Context, r *run, message string, err error) (*Response, error) {
	r.fail(ctx, err)
	return &Response{
		Success:   false,
		Message:   message,
		Error:     err.Error(),
		SyncLogID: r.entry.ID.String(),
	}, err
}

func (o *Orchestrator) testConnection(ctx context.Context, r *run, sess DeviceSession) (*Response, error) {
	var info *terminal.DeviceInfo
	err := withSession(ctx, sess, func() (err error) {
		info, err = sess.GetDeviceInfo(ctx)
		return err
	})
	if err != nil {
		o.touch(ctx, r, models.DeviceStatusOffline)
		return o.failed(ctx, r, "Connection failed", err)
	}

	o.touch(ctx, r, models.DeviceStatusOnline)
	if err := o.store.CacheDeviceInfo(ctx, r.device.ID, info.Map()); err != nil {
		log.Printf("⚠️ Failed to cache device info for %s: %v", r.device, err)
	}

	r.finish(ctx, models.RunStatusCompleted, 0, 0, "", map[string]interface{}{"deviceInfo": info.Map()})
	return &Response{
		Success:    true,
		Message:    "Connection successful",
		DeviceInfo: info,
		SyncLogID:  r.entry.ID.String(),
	}, nil
}

func (o *Orchestrator) getDeviceInfo(ctx context.Context, r *run, sess DeviceSession) (*Response, error) {
	var info *terminal.DeviceInfo
	err := withSession(ctx, sess, func() (err error) {
		info, err = sess.GetDeviceInfo(ctx)
		return err
	})
	if err != nil {
		return o.failed(ctx, r, "Failed to read device info", err)
	}

	r.finish(ctx, models.RunStatusCompleted, 0, 0, "", map[string]interface{}{"deviceInfo": info.Map()})
	return &Response{
		Success:    true,
		Message:    "Device info retrieved",
		DeviceInfo: info,
		SyncLogID:  r.entry.ID.String(),
	}, nil
}

func (o *Orchestrator) syncAttendance(ctx context.Context, r *run, sess DeviceSession, loc *time.Location, start, end *time.Time) (*Response, error) {
	var raw []byte
	err := withSession(ctx, sess, func() (err error) {
		raw, err = sess.GetAttendanceLogs(ctx)
		return err
	})
	if err != nil {
		o.touch(ctx, r, models.DeviceStatusOffline)
		return o.failed(ctx, r, "Attendance sync failed", err)
	}
	o.touch(ctx, r, models.DeviceStatusOnline)

	decoded, decodeErrs := punch.NewDecoder(loc).Decode(raw)
	for _, de := range decodeErrs {
		log.Printf("⚠️ %s: %v", r.device, de)
	}
	punches := punch.FilterRange(decoded, start, end)

	mapping, err := o.store.LoadEmployeeMapping(ctx, r.device.ID)
	if err != nil {
		return o.failed(ctx, r, "Attendance sync failed", fmt.Errorf("load employee mapping: %w", err))
	}

	res := o.engine.Reconcile(ctx, r.device.ID, punches, mapping)
	o.metrics.AddPunches(res.Synced, res.Failed, res.Duplicates)

	if err := o.store.MarkDeviceSynced(ctx, r.device.ID, models.DeviceStatusOnline, o.now()); err != nil {
		log.Printf("⚠️ Failed to record sync time for %s: %v", r.device, err)
	}

	status := runStatus(res.Synced, res.Failed)
	summary := res.Summary(o.cfg.ErrorLogLimit)
	r.finish(ctx, status, res.Synced, res.Failed, summary, map[string]interface{}{
		"total":        res.Total,
		"duplicates":   res.Duplicates,
		"decoded":      len(decoded),
		"decodeErrors": len(decodeErrs),
		"outOfRange":   len(decoded) - len(punches),
	})

	resp := &Response{
		Success:   status == models.RunStatusCompleted,
		Message:   fmt.Sprintf("Synced %d of %d punches", res.Synced, res.Total),
		Synced:    intPtr(res.Synced),
		Failed:    intPtr(res.Failed),
		Total:     intPtr(res.Total),
		SyncLogID: r.entry.ID.String(),
	}
	if res.Failed > 0 {
		resp.Error = summary
	}
	return resp, nil
}

func (o *Orchestrator) syncUsers(ctx context.Context, r *run, sess DeviceSession) (*Response, error) {
	var users []terminal.User
	err := withSession(ctx, sess, func() (err error) {
		users, err = sess.GetUsers(ctx)
		return err
	})
	if err != nil {
		o.touch(ctx, r, models.DeviceStatusOffline)
		return o.failed(ctx, r, "User sync failed", err)
	}
	o.touch(ctx, r, models.DeviceStatusOnline)

	res := o.catalog.Sync(ctx, r.device.ID, users)
	status := runStatus(res.Synced, res.Failed)
	summary := reconcile.SummarizeErrors(res.Errors, o.cfg.ErrorLogLimit)
	r.finish(ctx, status, res.Synced, res.Failed, summary, map[string]interface{}{"total": res.Total})

	resp := &Response{
		Success:   status == models.RunStatusCompleted,
		Message:   fmt.Sprintf("Synced %d of %d users", res.Synced, res.Total),
		Synced:    intPtr(res.Synced),
		Failed:    intPtr(res.Failed),
		Total:     intPtr(res.Total),
		Users:     users,
		SyncLogID: r.entry.ID.String(),
	}
	if res.Failed > 0 {
		resp.Error = summary
	}
	return resp, nil
}

// runStatus fails a run only when nothing got through
func runStatus(synced, failed int) models.RunStatus {
	if synced == 0 && failed > 0 {
		return models.RunStatusFailed
	}
	return models.RunStatusCompleted
}
