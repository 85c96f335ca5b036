package reconcile

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xelth-com/eckclockgo/internal/models"
	"github.com/xelth-com/eckclockgo/internal/punch"
)

// Ledger is the slice of attendance storage the engine needs
type Ledger interface {
	// HasEntryNear reports whether the employee has an entry whose clock_in
	// (or, when matchClockOut is set, clock_out) lies within at±window.
	HasEntryNear(ctx context.Context, employeeID uuid.UUID, at time.Time, window time.Duration, matchClockOut bool) (bool, error)
	CreateEntry(ctx context.Context, entry *models.TimeClockEntry) error
	// FindOpenEntry returns the most recent entry with no clock_out, or nil.
	FindOpenEntry(ctx context.Context, employeeID uuid.UUID) (*models.TimeClockEntry, error)
	// CloseEntry sets clock_out on an entry that is still open.
	// It returns false when the entry was no longer open.
	CloseEntry(ctx context.Context, entryID uuid.UUID, clockOut time.Time, method string) (bool, error)
}

// Options tunes the engine
type Options struct {
	Window  time.Duration // dedupe tolerance around a punch
	Workers int           // employees reconciled in parallel
}

// Engine merges decoded punches into the attendance ledger
type Engine struct {
	ledger  Ledger
	window  time.Duration
	workers int
}

// NewEngine creates an engine over ledger
func NewEngine(ledger Ledger, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Window < 0 {
		opts.Window = 0
	}
	return &Engine{ledger: ledger, window: opts.Window, workers: opts.Workers}
}

// Result tallies one reconciliation pass.
// Duplicates are counted in Total only: Synced+Failed+Duplicates == Total.
type Result struct {
	Total      int
	Synced     int
	Failed     int
	Duplicates int
	Errors     []error
}

// Summary renders the first limit errors for the audit log
func (r *Result) Summary(limit int) string {
	return SummarizeErrors(r.Errors, limit)
}

func (r *Result) fail(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err)
}

func (r *Result) merge(o *Result) {
	if o == nil {
		return
	}
	r.Synced += o.Synced
	r.Failed += o.Failed
	r.Duplicates += o.Duplicates
	r.Errors = append(r.Errors, o.Errors...)
}

// Reconcile applies punches from deviceID. mapping resolves device user ids
// to employees. Punches of one employee are applied in timestamp order;
// different employees run concurrently. Failures are collected, never returned.
func (e *Engine) Reconcile(ctx context.Context, deviceID uuid.UUID, punches []punch.Punch, mapping map[string]uuid.UUID) *Result {
	res := &Result{Total: len(punches)}

	var order []uuid.UUID
	byEmployee := make(map[uuid.UUID][]punch.Punch)
	for _, p := range punches {
		employeeID, ok := mapping[p.DeviceUserID]
		if !ok {
			res.fail(&MappingError{DeviceUserID: p.DeviceUserID, At: p.Timestamp})
			continue
		}
		if _, seen := byEmployee[employeeID]; !seen {
			order = append(order, employeeID)
		}
		byEmployee[employeeID] = append(byEmployee[employeeID], p)
	}

	var source *uuid.UUID
	if deviceID != uuid.Nil {
		source = &deviceID
	}

	partial := make([]*Result, len(order))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, employeeID := range order {
		group := byEmployee[employeeID]
		sort.SliceStable(group, func(a, b int) bool {
			return group[a].Timestamp.Before(group[b].Timestamp)
		})
		g.Go(func() error {
			partial[i] = e.applyEmployee(ctx, source, employeeID, group)
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range partial {
		res.merge(p)
	}

	log.Printf("🔄 Reconciled %d punches: %d synced, %d duplicates, %d failed", res.Total, res.Synced, res.Duplicates, res.Failed)
	return res
}

func (e *Engine) applyEmployee(ctx context.Context, source *uuid.UUID, employeeID uuid.UUID, punches []punch.Punch) *Result {
	res := &Result{}
	for _, p := range punches {
		dup, err := e.ledger.HasEntryNear(ctx, employeeID, p.Timestamp, e.window, p.Direction == punch.CheckOut)
		if err != nil {
			res.fail(&PersistenceError{EmployeeID: employeeID, At: p.Timestamp, Op: "duplicate check", Err: err})
			continue
		}
		if dup {
			res.Duplicates++
			continue
		}

		if p.Direction == punch.CheckIn {
			err = e.checkIn(ctx, source, employeeID, p)
		} else {
			err = e.checkOut(ctx, employeeID, p)
		}
		if err != nil {
			res.fail(err)
			continue
		}
		res.Synced++
	}
	return res
}

func (e *Engine) checkIn(ctx context.Context, source *uuid.UUID, employeeID uuid.UUID, p punch.Punch) error {
	entry := &models.TimeClockEntry{
		EmployeeID:     employeeID,
		ClockIn:        p.Timestamp,
		ClockInMethod:  p.VerifyMethod,
		Status:         models.EntryStatusClockedIn,
		SourceDeviceID: source,
		WorkCode:       p.WorkCode,
	}
	if err := e.ledger.CreateEntry(ctx, entry); err != nil {
		return &PersistenceError{EmployeeID: employeeID, At: p.Timestamp, Op: "insert entry", Err: err}
	}
	return nil
}

func (e *Engine) checkOut(ctx context.Context, employeeID uuid.UUID, p punch.Punch) error {
	open, err := e.ledger.FindOpenEntry(ctx, employeeID)
	if err != nil {
		return &PersistenceError{EmployeeID: employeeID, At: p.Timestamp, Op: "find open entry", Err: err}
	}
	if open == nil {
		return &PairingError{EmployeeID: employeeID, At: p.Timestamp, Reason: "no open entry"}
	}
	if p.Timestamp.Before(open.ClockIn) {
		return &PairingError{EmployeeID: employeeID, At: p.Timestamp, Reason: "precedes open clock-in at " + open.ClockIn.Format(time.RFC3339)}
	}

	closed, err := e.ledger.CloseEntry(ctx, open.ID, p.Timestamp, p.VerifyMethod)
	if err != nil {
		return &PersistenceError{EmployeeID: employeeID, At: p.Timestamp, Op: "close entry", Err: err}
	}
	if !closed {
		return &PairingError{EmployeeID: employeeID, At: p.Timestamp, Reason: "open entry was closed concurrently"}
	}
	return nil
}
