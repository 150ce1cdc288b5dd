package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolvax/core"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

var Genders = []Gender{GenderMale, GenderFemale, GenderOther}

func (g Gender) IsValid() bool {
	for _, gd := range Genders {
		if g == gd {
			return true
		}
	}
	return false
}

type VaccinationStatus string

const (
	NotVaccinated       VaccinationStatus = "not-vaccinated"
	PartiallyVaccinated VaccinationStatus = "partially-vaccinated"
	FullyVaccinated     VaccinationStatus = "fully-vaccinated"
)

var VaccinationStatuses = []VaccinationStatus{NotVaccinated, PartiallyVaccinated, FullyVaccinated}

func (vs VaccinationStatus) IsValid() bool {
	for _, st := range VaccinationStatuses {
		if vs == st {
			return true
		}
	}
	return false
}

type VaccinationRecord struct {
	VaccineName string    `json:"vaccine_name"`
	Date        core.Date `json:"date"`
	DoseNumber  int       `json:"dose_number"`
	DriveID     string    `json:"drive_id"`
}

type Student struct {
	ID                 string              `json:"id"`
	StudentID          string              `json:"student_id"` // school roll number
	Name               string              `json:"name"`
	Class              string              `json:"class"`
	DateOfBirth        core.Date           `json:"date_of_birth"`
	Gender             Gender              `json:"gender"`
	ParentName         string              `json:"parent_name"`
	ContactNumber      string              `json:"contact_number"`
	VaccinationStatus  VaccinationStatus   `json:"vaccination_status"`
	VaccinationHistory []VaccinationRecord `json:"vaccination_history"`
	CreatedAt          time.Time           `json:"created_at"` // UTC
	UpdatedAt          time.Time           `json:"updated_at"` // UTC
}

func (s Student) IsVaccinated() bool { return len(s.VaccinationHistory) > 0 }

// RecordFor returns the vaccination record of the drive `driveID`, if any.
func (s Student) RecordFor(driveID string) (VaccinationRecord, bool) {
	for _, rec := range s.VaccinationHistory {
		if rec.DriveID == driveID {
			return rec, true
		}
	}
	return VaccinationRecord{}, false
}

// DosesOf counts the doses of `vaccine` already received.
func (s Student) DosesOf(vaccine string) int {
	var n int
	for _, rec := range s.VaccinationHistory {
		if core.CleanString(rec.VaccineName, true) == core.CleanString(vaccine, true) {
			n++
		}
	}
	return n
}

// NewStudent contains information needed to create a new Student.
// Its Validate method is the single validation predicate of every creation path (single, bulk and CSV).
type NewStudent struct {
	StudentID     string     `json:"student_id" validate:"required,max=30"`
	Name          string     `json:"name" validate:"required,max=120"`
	Class         string     `json:"class" validate:"required,max=20"`
	DateOfBirth   *core.Date `json:"date_of_birth" validate:"required"`
	Gender        Gender     `json:"gender" validate:"required,gender"`
	ParentName    string     `json:"parent_name" validate:"required,max=120"`
	ContactNumber string     `json:"contact_number" validate:"required,phone"`
}

func (ns *NewStudent) Clean() {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.Name = core.CleanString(ns.Name)
	ns.Class = core.CleanString(ns.Class)
	ns.Gender = Gender(core.CleanString(string(ns.Gender), true /* lower */))
	ns.ParentName = core.CleanString(ns.ParentName)
	ns.ContactNumber = core.CleanString(ns.ContactNumber)
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Clean()
	return validate.Struct(ns)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// nil fields are left unchanged.
type UpdateStudent struct {
	StudentID     *string    `json:"student_id" validate:"omitempty,min=1,max=30"`
	Name          *string    `json:"name" validate:"omitempty,min=1,max=120"`
	Class         *string    `json:"class" validate:"omitempty,min=1,max=20"`
	DateOfBirth   *core.Date `json:"date_of_birth"`
	Gender        *Gender    `json:"gender" validate:"omitempty,gender"`
	ParentName    *string    `json:"parent_name" validate:"omitempty,min=1,max=120"`
	ContactNumber *string    `json:"contact_number" validate:"omitempty,phone"`
}

func (us *UpdateStudent) Clean() {
	cleanPtr := func(s *string) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s)
		return &c
	}
	us.StudentID = cleanPtr(us.StudentID)
	us.Name = cleanPtr(us.Name)
	us.Class = cleanPtr(us.Class)
	us.ParentName = cleanPtr(us.ParentName)
	us.ContactNumber = cleanPtr(us.ContactNumber)
	if us.Gender != nil {
		g := Gender(core.CleanString(string(*us.Gender), true /* lower */))
		us.Gender = &g
	}
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Clean()
	return validate.Struct(us)
}

// apply returns `s` with the provided fields of `us` set.
func (us UpdateStudent) apply(s Student) Student {
	if us.StudentID != nil {
		s.StudentID = *us.StudentID
	}
	if us.Name != nil {
		s.Name = *us.Name
	}
	if us.Class != nil {
		s.Class = *us.Class
	}
	if us.DateOfBirth != nil {
		s.DateOfBirth = *us.DateOfBirth
	}
	if us.Gender != nil {
		s.Gender = *us.Gender
	}
	if us.ParentName != nil {
		s.ParentName = *us.ParentName
	}
	if us.ContactNumber != nil {
		s.ContactNumber = *us.ContactNumber
	}
	return s
}

// NewVaccination records that a student received a dose during an in-progress drive.
type NewVaccination struct {
	DriveID   string `json:"drive_id" validate:"required"`
	FinalDose bool   `json:"final_dose"` // the student is fully vaccinated after this dose
}

type QueryFilter struct {
	Search     string              `query:"search"` // name or student ID
	Classes    []string            `query:"class"`
	Statuses   []VaccinationStatus `query:"vaccination_status"`
	Vaccinated *bool               `query:"-"`        // has at least one vaccination record
	DriveID    string              `query:"drive_id"` // vaccinated during this drive
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Classes == nil && qf.Statuses == nil && qf.Vaccinated == nil && qf.DriveID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Classes = core.CleanStrings(qf.Classes)
	if len(qf.Classes) == 0 {
		qf.Classes = nil
	}
	statuses := make([]VaccinationStatus, 0, len(qf.Statuses))
	for _, st := range qf.Statuses {
		if st = VaccinationStatus(core.CleanString(string(st), true /* lower */)); st != "" {
			statuses = append(statuses, st)
		}
	}
	if len(statuses) == 0 {
		statuses = nil
	}
	qf.Statuses = statuses
	qf.DriveID = core.CleanString(qf.DriveID)
}

// Match applies the filter on a single Student. Used by storages that cannot express it as a query.
func (qf *QueryFilter) Match(s Student) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" && !containsFold(s.Name, qf.Search) && !containsFold(s.StudentID, qf.Search) {
		return false
	}
	if qf.Classes != nil && !containsString(qf.Classes, s.Class) {
		return false
	}
	if qf.Statuses != nil {
		var found bool
		for _, st := range qf.Statuses {
			if s.VaccinationStatus == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.Vaccinated != nil && s.IsVaccinated() != *qf.Vaccinated {
		return false
	}
	if qf.DriveID != "" {
		if _, ok := s.RecordFor(qf.DriveID); !ok {
			return false
		}
	}
	return true
}

// ImportRow is a student to create in bulk, with its position in the source (array index or CSV line).
type ImportRow struct {
	Row     int
	Student NewStudent
}

// ImportRowError reports the invalid fields of a rejected row.
type ImportRowError struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

type ImportResult struct {
	Total    int              `json:"total"`
	Imported int              `json:"imported"`
	Students []Student        `json:"students"`
	Errors   []ImportRowError `json:"errors"`
}

// ClassStats is the vaccination breakdown of one class.
type ClassStats struct {
	Class           string `json:"class" db:"class"`
	Total           int    `json:"total" db:"total"`
	Vaccinated      int    `json:"vaccinated" db:"vaccinated"`
	FullyVaccinated int    `json:"fully_vaccinated" db:"fully_vaccinated"`
}
