package student

import (
	"context"
	"strconv"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
)

var (
	// errors
	ErrNotFound          = errors.New("student not found")
	ErrStudentIDExists   = errors.New("a student with this student ID already exists")
	ErrAlreadyVaccinated = errors.New("the student was already vaccinated during this drive")
	ErrClassNotEligible  = errors.New("the student's class is not eligible for this drive")

	// NowFunc returns the current time; mocked in tests.
	NowFunc = time.Now
)

type (
	Repository interface {
		// CreateStudents inserts all `students` or none; a taken student ID fails with ErrStudentIDExists.
		CreateStudents(ctx context.Context, students []Student, exec ...core.DBExecutor) ([]Student, error)
		GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		// QueryStudents applies AND operation on available QueryFilter fields; it returns the page and the total count.
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]Student, int, error)
		CountStudents(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		// QueryClassStats returns the breakdown of every class, sorted by class.
		QueryClassStats(ctx context.Context, exec ...core.DBExecutor) ([]ClassStats, error)
		// ExistingStudentIDs returns the subset of `studentIDs` already taken.
		ExistingStudentIDs(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]string, error)
		UpdateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service struct {
		uow        core.UnitOfWork
		repo       Repository
		drives     drive.Repository
		validate   *validator.Validate
		translator ut.Translator
		loc        *time.Location
	}
)

func NewService(
	uow core.UnitOfWork,
	repo Repository,
	drives drive.Repository,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
) *Service {
	return &Service{
		uow:        uow,
		repo:       repo,
		drives:     drives,
		validate:   validate,
		translator: translator,
		loc:        conf.Drive.Location(),
	}
}

func (svc *Service) newStudent(ns NewStudent, now time.Time) Student {
	return Student{
		StudentID:          ns.StudentID,
		Name:               ns.Name,
		Class:              ns.Class,
		DateOfBirth:        *ns.DateOfBirth,
		Gender:             ns.Gender,
		ParentName:         ns.ParentName,
		ContactNumber:      ns.ContactNumber,
		VaccinationStatus:  NotVaccinated,
		VaccinationHistory: []VaccinationRecord{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := ns.Validate(svc.validate); err != nil {
		return Student{}, err
	}

	var created []Student
	err := svc.uow.Atomically(ctx, studentIDKeys(ns.StudentID), func(exec core.DBExecutor) (err error) {
		created, err = svc.repo.CreateStudents(ctx, []Student{svc.newStudent(ns, NowFunc().UTC())}, exec)
		return err
	})
	if err != nil {
		return Student{}, svc.trapStudentIDErr(err)
	}
	return created[0], nil
}

// Import validates every row with the same predicate as Create, then inserts the valid ones at once.
// Invalid rows, duplicated student IDs and taken student IDs are reported per row.
func (svc *Service) Import(ctx context.Context, rows []ImportRow) (ImportResult, error) {
	result := ImportResult{Total: len(rows), Students: []Student{}, Errors: []ImportRowError{}}
	if len(rows) > MaxImportRows {
		return result, fileError("too many rows, the maximum is " + strconv.Itoa(MaxImportRows))
	}

	valid := make([]ImportRow, 0, len(rows))
	seen := make(map[string]int, len(rows)) // {studentID: row}
	for _, row := range rows {
		ns := row.Student
		if err := ns.Validate(svc.validate); err != nil {
			fields := core.TranslateErrors(err, svc.translator)
			if fields == nil {
				return result, err
			}
			result.Errors = append(result.Errors, ImportRowError{Row: row.Row, Fields: fields})
			continue
		}
		if _, dup := seen[ns.StudentID]; dup {
			result.Errors = append(result.Errors, ImportRowError{
				Row:    row.Row,
				Fields: map[string]string{"student_id": "duplicated student ID in the import"},
			})
			continue
		}
		seen[ns.StudentID] = row.Row
		valid = append(valid, ImportRow{Row: row.Row, Student: ns})
	}
	if len(valid) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(valid))
	for _, row := range valid {
		ids = append(ids, row.Student.StudentID)
	}
	err := svc.uow.Atomically(ctx, studentIDKeys(ids...), func(exec core.DBExecutor) error {
		taken, err := svc.repo.ExistingStudentIDs(ctx, ids, exec)
		if err != nil {
			return errors.Wrap(err, "checking student IDs")
		}
		takenSet := make(map[string]struct{}, len(taken))
		for _, id := range taken {
			takenSet[id] = struct{}{}
		}

		now := NowFunc().UTC()
		students := make([]Student, 0, len(valid))
		for _, row := range valid {
			if _, ok := takenSet[row.Student.StudentID]; ok {
				result.Errors = append(result.Errors, ImportRowError{
					Row:    row.Row,
					Fields: map[string]string{"student_id": ErrStudentIDExists.Error()},
				})
				continue
			}
			students = append(students, svc.newStudent(row.Student, now))
		}
		if len(students) == 0 {
			return nil
		}
		created, err := svc.repo.CreateStudents(ctx, students, exec)
		if err != nil {
			return err
		}
		result.Students = created
		return nil
	})
	if err != nil {
		return result, svc.trapStudentIDErr(err)
	}
	result.Imported = len(result.Students)
	return result, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

// Query returns the students matching `filter`, sorted by `ordering` (name by default), and the pagination.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Student, core.Pagination, error) {
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	students, total, err := svc.repo.QueryStudents(ctx, filter, ordering, page)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	return students, core.NewPagination(page, total), nil
}

func (svc *Service) Count(ctx context.Context, filter *QueryFilter) (int, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.CountStudents(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	if err := us.Validate(svc.validate); err != nil {
		return Student{}, err
	}

	keys := studentKeys(id)
	if us.StudentID != nil {
		keys = append(keys, studentIDKeys(*us.StudentID)...)
	}
	var updated Student
	err := svc.uow.Atomically(ctx, keys, func(exec core.DBExecutor) error {
		s, err := svc.repo.GetStudentByID(ctx, id, exec)
		if err != nil {
			return err
		}
		s = us.apply(s)
		s.UpdatedAt = NowFunc().UTC()
		updated, err = svc.repo.UpdateStudent(ctx, s, exec)
		return err
	})
	if err != nil {
		return Student{}, svc.trapStudentIDErr(err)
	}
	return updated, nil
}

// RecordVaccination adds a dose to the history of the student `id` and uses one dose of the drive.
func (svc *Service) RecordVaccination(ctx context.Context, id string, nv NewVaccination) (Student, error) {
	nv.DriveID = core.CleanString(nv.DriveID)
	if err := svc.validate.Struct(nv); err != nil {
		return Student{}, err
	}

	var updated Student
	keys := append(studentKeys(id), drive.DriveKeys(nv.DriveID)...)
	err := svc.uow.Atomically(ctx, keys, func(exec core.DBExecutor) error {
		s, err := svc.repo.GetStudentByID(ctx, id, exec)
		if err != nil {
			return err
		}
		drv, err := svc.drives.GetDriveByID(ctx, nv.DriveID, exec)
		if err != nil {
			if errors.Cause(err) == drive.ErrNotFound {
				return driveFieldError(err)
			}
			return err
		}
		if drv.Status != drive.StatusInProgress {
			return driveFieldError(drive.ErrNotInProgress)
		}
		if !drv.IsApplicableTo(s.Class) {
			return driveFieldError(ErrClassNotEligible)
		}
		if _, ok := s.RecordFor(drv.ID); ok {
			return driveFieldError(ErrAlreadyVaccinated)
		}
		if _, err = svc.drives.IncrementVaccinatedCount(ctx, drv.ID, exec); err != nil {
			if errors.Cause(err) == drive.ErrNoDosesLeft {
				return driveFieldError(err)
			}
			return errors.Wrap(err, "using drive dose")
		}

		s.VaccinationHistory = append(s.VaccinationHistory, VaccinationRecord{
			VaccineName: drv.VaccineName,
			Date:        core.Today(NowFunc(), svc.loc),
			DoseNumber:  s.DosesOf(drv.VaccineName) + 1,
			DriveID:     drv.ID,
		})
		switch {
		case nv.FinalDose:
			s.VaccinationStatus = FullyVaccinated
		case s.VaccinationStatus != FullyVaccinated:
			s.VaccinationStatus = PartiallyVaccinated
		}
		s.UpdatedAt = NowFunc().UTC()

		updated, err = svc.repo.UpdateStudent(ctx, s, exec)
		return errors.Wrap(err, "recording vaccination")
	})
	if err != nil {
		return Student{}, err
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	var keys []string
	for _, id := range ids {
		keys = append(keys, studentKeys(id)...)
	}
	return svc.uow.Atomically(ctx, keys, func(exec core.DBExecutor) error {
		return svc.repo.DeleteStudentsByID(ctx, ids, exec)
	})
}

// trapStudentIDErr maps ErrStudentIDExists to a field error.
func (svc *Service) trapStudentIDErr(err error) error {
	if errors.Cause(err) == ErrStudentIDExists {
		return core.NewValidationError(ErrStudentIDExists, core.FieldError{Field: "student_id", Error: ErrStudentIDExists.Error()})
	}
	return err
}

func driveFieldError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "drive_id", Error: err.Error()})
}

func studentKeys(id string) []string {
	return []string{"student:" + id}
}

func studentIDKeys(studentIDs ...string) []string {
	keys := make([]string, 0, len(studentIDs))
	for _, sid := range studentIDs {
		keys = append(keys, "student-id:"+sid)
	}
	return keys
}
