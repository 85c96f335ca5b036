package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MappingError: the punch belongs to a device user with no employee
type MappingError struct {
	DeviceUserID string
	At           time.Time
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("device user %s is not mapped to an employee (punch at %s)", e.DeviceUserID, e.At.Format(time.RFC3339))
}

// PersistenceError: a ledger read or write failed
type PersistenceError struct {
	EmployeeID uuid.UUID
	At         time.Time
	Op         string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for employee %s at %s: %v", e.Op, e.EmployeeID, e.At.Format(time.RFC3339), e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PairingError: a check-out found no open entry it could close
type PairingError struct {
	EmployeeID uuid.UUID
	At         time.Time
	Reason     string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("check-out for employee %s at %s: %s", e.EmployeeID, e.At.Format(time.RFC3339), e.Reason)
}

// SummarizeErrors joins the first limit messages and notes how many were left out
func SummarizeErrors(errs []error, limit int) string {
	if len(errs) == 0 {
		return ""
	}
	if limit <= 0 || limit > len(errs) {
		limit = len(errs)
	}

	msgs := make([]string, 0, limit+1)
	for _, err := range errs[:limit] {
		msgs = append(msgs, err.Error())
	}
	if rest := len(errs) - limit; rest > 0 {
		msgs = append(msgs, fmt.Sprintf("…and %d more", rest))
	}
	return strings.Join(msgs, "; ")
}
