package drive

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolvax/core"
)

type Status string

// Statuses
const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var Statuses = []Status{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled}

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves `s`.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

type Drive struct {
	ID                string    `json:"id"`
	VaccineName       string    `json:"vaccine_name"`
	ScheduledDate     core.Date `json:"scheduled_date"`
	AvailableDoses    int       `json:"available_doses"`
	ApplicableClasses []string  `json:"applicable_classes"`
	Status            Status    `json:"status"`
	Coordinator       string    `json:"coordinator"`
	VaccinatedCount   int       `json:"vaccinated_count"`
	Notes             string    `json:"notes"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

func (d Drive) RemainingDoses() int {
	if n := d.AvailableDoses - d.VaccinatedCount; n > 0 {
		return n
	}
	return 0
}

// IsApplicableTo reports whether students of `class` are eligible for the drive.
func (d Drive) IsApplicableTo(class string) bool {
	class = core.CleanString(class)
	for _, c := range d.ApplicableClasses {
		if core.CleanString(c) == class {
			return true
		}
	}
	return false
}

// SharedClasses returns the classes of `d` that are also in `classes`, sorted.
func (d Drive) SharedClasses(classes []string) []string {
	return core.Intersect(core.CleanStrings(d.ApplicableClasses), core.CleanStrings(classes))
}

// ConflictsWith reports whether `d` blocks another drive on `date` for `classes`.
// Cancelled drives never conflict.
func (d Drive) ConflictsWith(date core.Date, classes []string) bool {
	if d.Status == StatusCancelled || !d.ScheduledDate.Equal(date) {
		return false
	}
	return len(d.SharedClasses(classes)) > 0
}

// NewDrive contains information needed to create a new Drive.
// Presence of the required fields is checked by the lifecycle rules; tags only check the format.
type NewDrive struct {
	VaccineName       string     `json:"vaccine_name" validate:"omitempty,max=120"`
	ScheduledDate     *core.Date `json:"scheduled_date"`
	AvailableDoses    int        `json:"available_doses" validate:"omitempty,min=1,max=100000"`
	ApplicableClasses []string   `json:"applicable_classes" validate:"omitempty,max=100,dive,classlabel"`
	Coordinator       string     `json:"coordinator" validate:"omitempty,max=120"`
	Notes             string     `json:"notes" validate:"omitempty,max=2000"`
}

func (nd *NewDrive) Clean() {
	nd.VaccineName = core.CleanString(nd.VaccineName)
	nd.ApplicableClasses = core.CleanStrings(nd.ApplicableClasses)
	nd.Coordinator = core.CleanString(nd.Coordinator)
	nd.Notes = core.CleanString(nd.Notes)
}

func (nd *NewDrive) Validate(validate *validator.Validate) error {
	nd.Clean()
	return validate.Struct(nd)
}

func (nd NewDrive) date() core.Date {
	if nd.ScheduledDate == nil {
		return core.Date{}
	}
	return *nd.ScheduledDate
}

// UpdateDrive defines what information may be provided to modify an existing Drive.
// nil fields are left unchanged.
type UpdateDrive struct {
	VaccineName       *string    `json:"vaccine_name" validate:"omitempty,max=120"`
	ScheduledDate     *core.Date `json:"scheduled_date"`
	AvailableDoses    *int       `json:"available_doses" validate:"omitempty,min=1,max=100000"`
	ApplicableClasses []string   `json:"applicable_classes" validate:"omitempty,max=100,dive,classlabel"`
	Coordinator       *string    `json:"coordinator" validate:"omitempty,max=120"`
	Notes             *string    `json:"notes" validate:"omitempty,max=2000"`
}

func (ud *UpdateDrive) Clean() {
	cleanPtr := func(s *string) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s)
		return &c
	}
	ud.VaccineName = cleanPtr(ud.VaccineName)
	ud.Coordinator = cleanPtr(ud.Coordinator)
	ud.Notes = cleanPtr(ud.Notes)
	if ud.ApplicableClasses != nil {
		ud.ApplicableClasses = core.CleanStrings(ud.ApplicableClasses)
	}
}

func (ud *UpdateDrive) Validate(validate *validator.Validate) error {
	ud.Clean()
	return validate.Struct(ud)
}

func (ud UpdateDrive) IsEmpty() bool {
	return ud.VaccineName == nil && ud.ScheduledDate == nil && ud.AvailableDoses == nil &&
		ud.ApplicableClasses == nil && ud.Coordinator == nil && ud.Notes == nil
}

type StatusUpdate struct {
	Status Status `json:"status" validate:"required,drivestatus"`
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	su.Status = Status(core.CleanString(string(su.Status), true /* lower */))
	return validate.Struct(su)
}

type QueryFilter struct {
	Search   string    `query:"search"` // vaccine name
	Statuses []Status  `query:"status"`
	Class    string    `query:"class"`
	DateFrom core.Date `query:"date_from"`
	DateTo   core.Date `query:"date_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Statuses == nil && qf.Class == "" && qf.DateFrom.IsZero() && qf.DateTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Class = core.CleanString(qf.Class)
	statuses := make([]Status, 0, len(qf.Statuses))
	for _, st := range qf.Statuses {
		if st = Status(core.CleanString(string(st), true /* lower */)); st != "" {
			statuses = append(statuses, st)
		}
	}
	if len(statuses) == 0 {
		statuses = nil
	}
	qf.Statuses = statuses
}

// Match applies the filter on a single Drive. Used by storages that cannot express it as a query.
func (qf *QueryFilter) Match(d Drive) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" && !containsFold(d.VaccineName, qf.Search) {
		return false
	}
	if qf.Statuses != nil {
		var found bool
		for _, st := range qf.Statuses {
			if d.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.Class != "" && !d.IsApplicableTo(qf.Class) {
		return false
	}
	if !qf.DateFrom.IsZero() && d.ScheduledDate.Before(qf.DateFrom) {
		return false
	}
	if !qf.DateTo.IsZero() && d.ScheduledDate.After(qf.DateTo) {
		return false
	}
	return true
}

type Stats struct {
	Total      int `json:"total"`
	Upcoming   int `json:"upcoming"`
	Scheduled  int `json:"scheduled"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
