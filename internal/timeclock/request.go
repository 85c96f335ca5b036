package timeclock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xelth-com/eckclockgo/internal/terminal"
)

// Action selects what a run does with the device
type Action string

const (
	ActionTestConnection Action = "test_connection"
	ActionSyncAttendance Action = "sync_attendance"
	ActionSyncUsers      Action = "sync_users"
	ActionGetDeviceInfo  Action = "get_device_info"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionTestConnection, ActionSyncAttendance, ActionSyncUsers, ActionGetDeviceInfo:
		return true
	}
	return false
}

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceNotConfigured = errors.New("device has no ip address configured")
	ErrRunInProgress       = errors.New("a sync for this device is already running")
)

// Request asks for one run against one device
type Request struct {
	Action    Action     `json:"action"`
	DeviceID  uuid.UUID  `json:"device_id"`
	CompanyID uuid.UUID  `json:"company_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Options   *Options   `json:"options,omitempty"`
}

// Options narrows sync_attendance to a date range.
// Values are dates (2006-01-02, read in the device timezone) or RFC 3339 timestamps.
type Options struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Validate checks the fields every action needs
func (r *Request) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, r.Action)
	}
	if r.DeviceID == uuid.Nil {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRequest)
	}
	if r.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: company_id is required", ErrInvalidRequest)
	}
	return nil
}

// Range resolves the options into inclusive bounds. A date-only end covers the whole day.
func (o *Options) Range(loc *time.Location) (start, end *time.Time, err error) {
	if o == nil {
		return nil, nil, nil
	}
	if s := strings.TrimSpace(o.StartDate); s != "" {
		t, _, err := parseBound(s, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: start_date: %v", ErrInvalidRequest, err)
		}
		start = &t
	}
	if s := strings.TrimSpace(o.EndDate); s != "" {
		t, dateOnly, err := parseBound(s, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: end_date: %v", ErrInvalidRequest, err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("%w: end_date precedes start_date", ErrInvalidRequest)
	}
	return start, end, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
	}
	return t.UTC(), false, nil
}

// Response summarizes a run; details live in the sync log
type Response struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message,omitempty"`
	Error      string               `json:"error,omitempty"`
	Synced     *int                 `json:"synced,omitempty"`
	Failed     *int                 `json:"failed,omitempty"`
	Total      *int                 `json:"total,omitempty"`
	DeviceInfo *terminal.DeviceInfo `json:"deviceInfo,omitempty"`
	Users      []terminal.User      `json:"users,omitempty"`
	SyncLogID  string               `json:"syncLogId,omitempty"`
}

func intPtr(n int) *int {
	return &n
}
