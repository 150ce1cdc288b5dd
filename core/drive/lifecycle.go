package drive

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
)

// transitions lists the statuses reachable from each status. Terminal statuses map to nothing.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// Policy holds the tunable scheduling rules. The zero Location means UTC.
type Policy struct {
	MinNoticeDays       int
	RecheckNoticeOnEdit bool
	Location            *time.Location
}

var DefaultPolicy = Policy{MinNoticeDays: 15, RecheckNoticeOnEdit: true, Location: time.UTC}

func NewPolicy(conf *core.Config) Policy {
	return Policy{
		MinNoticeDays:       conf.Drive.MinNoticeDays,
		RecheckNoticeOnEdit: conf.Drive.RecheckNoticeOnEdit,
		Location:            conf.Drive.Location(),
	}
}

// CanTransition reports whether a drive may go from `from` to `to`.
func CanTransition(from, to Status) bool {
	for _, st := range transitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

func AllowedTransitions(from Status) []Status {
	return append([]Status(nil), transitions[from]...)
}

// ValidateNewDrive runs the creation rules against the existing drives of the store with DefaultPolicy.
func ValidateNewDrive(candidate NewDrive, existing []Drive, now time.Time) (Drive, error) {
	return DefaultPolicy.ValidateNewDrive(candidate, existing, now)
}

// ValidateEdit runs the edit rules with DefaultPolicy.
func ValidateEdit(d Drive, patch UpdateDrive, others []Drive, now time.Time) (Drive, error) {
	return DefaultPolicy.ValidateEdit(d, patch, others, now)
}

// Transition returns `d` with its status set to `to`, if the transition table allows it.
func Transition(d Drive, to Status) (Drive, error) {
	if !CanTransition(d.Status, to) {
		return Drive{}, &InvalidTransitionError{From: d.Status, To: to}
	}
	d.Status = to
	return d, nil
}

// FindConflicts returns the drives of `drives` that block a drive on `date` for `classes`.
// The drive with id `excludeID` is skipped.
func FindConflicts(date core.Date, classes []string, drives []Drive, excludeID string) []Drive {
	classes = core.CleanStrings(classes)
	var conflicts []Drive
	for _, d := range drives {
		if excludeID != "" && d.ID == excludeID {
			continue
		}
		if d.ConflictsWith(date, classes) {
			conflicts = append(conflicts, d)
		}
	}
	return conflicts
}

// ValidateNewDrive checks the required fields, the advance notice and the class conflicts of `candidate`.
// On success, it returns the drive to store with the scheduled status.
func (p Policy) ValidateNewDrive(candidate NewDrive, existing []Drive, now time.Time) (Drive, error) {
	candidate.Clean()

	var missing []string
	if candidate.VaccineName == "" {
		missing = append(missing, "vaccine_name")
	}
	if candidate.date().IsZero() {
		missing = append(missing, "scheduled_date")
	}
	if candidate.AvailableDoses == 0 {
		missing = append(missing, "available_doses")
	}
	if len(candidate.ApplicableClasses) == 0 {
		missing = append(missing, "applicable_classes")
	}
	if candidate.Coordinator == "" {
		missing = append(missing, "coordinator")
	}
	if len(missing) > 0 {
		return Drive{}, &MissingFieldError{Fields: missing}
	}
	if candidate.AvailableDoses < 0 {
		return Drive{}, dosesError("available doses must be at least 1")
	}

	d := Drive{
		VaccineName:       candidate.VaccineName,
		ScheduledDate:     candidate.date(),
		AvailableDoses:    candidate.AvailableDoses,
		ApplicableClasses: candidate.ApplicableClasses,
		Status:            StatusScheduled,
		Coordinator:       candidate.Coordinator,
		Notes:             candidate.Notes,
	}
	if err := p.checkNotice(d.ScheduledDate, now); err != nil {
		return Drive{}, err
	}
	if err := checkConflicts(d.ScheduledDate, d.ApplicableClasses, existing, ""); err != nil {
		return Drive{}, err
	}
	return d, nil
}

// ValidateEdit applies `patch` to `d` and checks the result against `others` (the other drives of the store).
func (p Policy) ValidateEdit(d Drive, patch UpdateDrive, others []Drive, now time.Time) (Drive, error) {
	if d.Status.IsTerminal() {
		return Drive{}, core.NewValidationError(errors.Errorf("a %s drive can no longer be edited", d.Status))
	}
	patch.Clean()

	var missing []string
	updated := d
	if patch.VaccineName != nil {
		if updated.VaccineName = *patch.VaccineName; updated.VaccineName == "" {
			missing = append(missing, "vaccine_name")
		}
	}
	if patch.ScheduledDate != nil {
		if updated.ScheduledDate = *patch.ScheduledDate; updated.ScheduledDate.IsZero() {
			missing = append(missing, "scheduled_date")
		}
	}
	if patch.AvailableDoses != nil {
		if updated.AvailableDoses = *patch.AvailableDoses; updated.AvailableDoses == 0 {
			missing = append(missing, "available_doses")
		}
	}
	if patch.ApplicableClasses != nil {
		if updated.ApplicableClasses = patch.ApplicableClasses; len(updated.ApplicableClasses) == 0 {
			missing = append(missing, "applicable_classes")
		}
	}
	if patch.Coordinator != nil {
		if updated.Coordinator = *patch.Coordinator; updated.Coordinator == "" {
			missing = append(missing, "coordinator")
		}
	}
	if patch.Notes != nil {
		updated.Notes = *patch.Notes
	}
	if len(missing) > 0 {
		return Drive{}, &MissingFieldError{Fields: missing}
	}
	if updated.AvailableDoses < 0 {
		return Drive{}, dosesError("available doses must be at least 1")
	}
	if updated.AvailableDoses < updated.VaccinatedCount {
		return Drive{}, dosesError("available doses cannot be less than the doses already administered")
	}

	dateChanged := !updated.ScheduledDate.Equal(d.ScheduledDate)
	classesChanged := !equalStrings(updated.ApplicableClasses, d.ApplicableClasses)
	if dateChanged && p.RecheckNoticeOnEdit {
		if err := p.checkNotice(updated.ScheduledDate, now); err != nil {
			return Drive{}, err
		}
	}
	if dateChanged || classesChanged {
		if err := checkConflicts(updated.ScheduledDate, updated.ApplicableClasses, others, d.ID); err != nil {
			return Drive{}, err
		}
	}
	return updated, nil
}

// EarliestDate returns the first date a drive may be scheduled on at `now`.
func (p Policy) EarliestDate(now time.Time) core.Date {
	return core.Today(now, p.Location).AddDays(p.MinNoticeDays)
}

func (p Policy) checkNotice(date core.Date, now time.Time) error {
	if earliest := p.EarliestDate(now); date.Before(earliest) {
		return &SchedulingTooSoonError{Date: date, Earliest: earliest, MinNoticeDays: p.MinNoticeDays}
	}
	return nil
}

func checkConflicts(date core.Date, classes []string, drives []Drive, excludeID string) error {
	conflicts := FindConflicts(date, classes, drives, excludeID)
	if len(conflicts) == 0 {
		return nil
	}
	err := &SchedulingConflictError{Date: date, DriveIDs: make([]string, 0, len(conflicts))}
	var shared []string
	for _, c := range conflicts {
		err.DriveIDs = append(err.DriveIDs, c.ID)
		shared = append(shared, c.SharedClasses(classes)...)
	}
	err.Classes = core.CleanStrings(shared)
	sort.Strings(err.DriveIDs)
	return err
}

// ScheduleKeys returns the serialization keys of a drive held on `date` for `classes`.
// Two writes that could conflict always share at least one key.
func ScheduleKeys(date core.Date, classes []string) []string {
	keys := make([]string, 0, len(classes))
	for _, c := range core.CleanStrings(classes) {
		keys = append(keys, "drive:"+date.String()+"|"+c)
	}
	return keys
}

func dosesError(msg string) error {
	err := errors.New(msg)
	return core.NewValidationError(err, core.FieldError{Field: "available_doses", Error: msg})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
