package drive

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
)

// ErrorKind classifies the lifecycle errors.
type ErrorKind string

const (
	KindMissingField       ErrorKind = "missing_field"
	KindSchedulingTooSoon  ErrorKind = "scheduling_too_soon"
	KindSchedulingConflict ErrorKind = "scheduling_conflict"
	KindInvalidTransition  ErrorKind = "invalid_transition"
)

// MissingFieldError is returned when required drive attributes are absent or empty.
type MissingFieldError struct {
	Fields []string
}

func (err *MissingFieldError) Error() string {
	return "missing required fields: " + strings.Join(err.Fields, ", ")
}

// SchedulingTooSoonError is returned when a drive is scheduled with less than the minimum notice.
type SchedulingTooSoonError struct {
	Date          core.Date
	Earliest      core.Date
	MinNoticeDays int
}

func (err *SchedulingTooSoonError) Error() string {
	return fmt.Sprintf(
		"vaccination drive must be scheduled at least %d days in advance (on or after %s)",
		err.MinNoticeDays, err.Earliest,
	)
}

// SchedulingConflictError is returned when non-cancelled drives already cover one of the classes on the same day.
type SchedulingConflictError struct {
	Date     core.Date
	Classes  []string // the colliding classes
	DriveIDs []string // the colliding drives
}

func (err *SchedulingConflictError) Error() string {
	return fmt.Sprintf(
		"scheduling conflict on %s for classes %s with drives %s",
		err.Date, strings.Join(err.Classes, ", "), strings.Join(err.DriveIDs, ", "),
	)
}

// InvalidTransitionError is returned when a status change is not in the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (err *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", err.From, err.To)
}

// KindOf returns the lifecycle kind of `err`, or "" when `err` is not a lifecycle error.
func KindOf(err error) ErrorKind {
	switch errors.Cause(err).(type) {
	case *MissingFieldError:
		return KindMissingField
	case *SchedulingTooSoonError:
		return KindSchedulingTooSoon
	case *SchedulingConflictError:
		return KindSchedulingConflict
	case *InvalidTransitionError:
		return KindInvalidTransition
	}
	return ""
}
