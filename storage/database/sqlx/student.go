package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/student"
)

const studentIDConstraint = "student_student_id_key"

var studentOrderingFields = map[string]bool{
	"student_id":         true,
	"name":               true,
	"class":              true,
	"date_of_birth":      true,
	"gender":             true,
	"vaccination_status": true,
	"created_at":         true,
	"updated_at":         true,
}

type studentRow struct {
	ID                 string         `db:"id"`
	StudentID          string         `db:"student_id"`
	Name               string         `db:"name"`
	Class              string         `db:"class"`
	DateOfBirth        core.Date      `db:"date_of_birth"`
	Gender             string         `db:"gender"`
	ParentName         string         `db:"parent_name"`
	ContactNumber      string         `db:"contact_number"`
	VaccinationStatus  string         `db:"vaccination_status"`
	VaccinationHistory types.JSONText `db:"vaccination_history"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sqlx.DB) student.Repository {
	return &studentRepository{db: db}
}

func (repo studentRepository) toStudent(row studentRow) (student.Student, error) {
	history := make([]student.VaccinationRecord, 0)
	if len(row.VaccinationHistory) > 0 {
		if err := row.VaccinationHistory.Unmarshal(&history); err != nil {
			return student.Student{}, errors.Wrap(err, "decoding vaccination history")
		}
	}
	return student.Student{
		ID:                 row.ID,
		StudentID:          row.StudentID,
		Name:               row.Name,
		Class:              row.Class,
		DateOfBirth:        row.DateOfBirth,
		Gender:             student.Gender(row.Gender),
		ParentName:         row.ParentName,
		ContactNumber:      row.ContactNumber,
		VaccinationStatus:  student.VaccinationStatus(row.VaccinationStatus),
		VaccinationHistory: history,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, nil
}

func (repo studentRepository) toStudents(rows []studentRow) ([]student.Student, error) {
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		s, err := repo.toStudent(row)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

func (repo studentRepository) history(s student.Student) (types.JSONText, error) {
	history := s.VaccinationHistory
	if history == nil {
		history = []student.VaccinationRecord{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, errors.Wrap(err, "encoding vaccination history")
	}
	return types.JSONText(data), nil
}

func (repo studentRepository) filter(filter *student.QueryFilter) (*where, error) {
	w := new(where)
	if filter == nil {
		return w, nil
	}
	if filter.Search != "" {
		val := containsPattern(filter.Search)
		w.add("(name ILIKE ? OR student_id ILIKE ?)", val, val)
	}
	if len(filter.Classes) > 0 {
		w.add("class = ANY(?)", pq.StringArray(filter.Classes))
	}
	if len(filter.Statuses) > 0 {
		statuses := make(pq.StringArray, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		w.add("vaccination_status = ANY(?)", statuses)
	}
	if filter.Vaccinated != nil {
		if *filter.Vaccinated {
			w.add("jsonb_array_length(vaccination_history) > 0")
		} else {
			w.add("jsonb_array_length(vaccination_history) = 0")
		}
	}
	if filter.DriveID != "" {
		contains, err := json.Marshal([]map[string]string{{"drive_id": filter.DriveID}})
		if err != nil {
			return nil, errors.Wrap(err, "encoding drive filter")
		}
		w.add("vaccination_history @> ?::jsonb", types.JSONText(contains))
	}
	return w, nil
}

func (repo studentRepository) CreateStudents(ctx context.Context, students []student.Student, exec ...core.DBExecutor) ([]student.Student, error) {
	ext := getExec(repo.db, exec)
	q := ext.Rebind(`
		INSERT INTO student (id, student_id, name, class, date_of_birth, gender, parent_name, contact_number,
		                     vaccination_status, vaccination_history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING *`)

	created := make([]student.Student, 0, len(students))
	for _, s := range students {
		history, err := repo.history(s)
		if err != nil {
			return nil, err
		}
		var row studentRow
		err = sqlx.GetContext(
			ctx, ext, &row, q,
			uuid.New().String(), s.StudentID, s.Name, s.Class, s.DateOfBirth, string(s.Gender), s.ParentName,
			s.ContactNumber, string(s.VaccinationStatus), history, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err, studentIDConstraint) {
				return nil, student.ErrStudentIDExists
			}
			return nil, errors.Wrap(err, "inserting student")
		}
		cs, err := repo.toStudent(row)
		if err != nil {
			return nil, err
		}
		created = append(created, cs)
	}
	return created, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	ext := getExec(repo.db, exec)

	var row studentRow
	if err := sqlx.GetContext(ctx, ext, &row, ext.Rebind("SELECT * FROM student WHERE id = ?"), id); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "finding student by ID")
	}
	return repo.toStudent(row)
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]student.Student, int, error) {
	ext := getExec(repo.db, exec)
	w, err := repo.filter(filter)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err = sqlx.GetContext(ctx, ext, &total, ext.Rebind("SELECT COUNT(*) FROM student"+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting students")
	}

	var rows []studentRow
	q := "SELECT * FROM student" + w.String() + orderBy(ordering, studentOrderingFields) + limitOffset(page)
	if err = sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying students")
	}
	students, err := repo.toStudents(rows)
	return students, total, err
}

func (repo studentRepository) CountStudents(ctx context.Context, filter *student.QueryFilter, exec ...core.DBExecutor) (int, error) {
	ext := getExec(repo.db, exec)
	w, err := repo.filter(filter)
	if err != nil {
		return 0, err
	}

	var total int
	if err = sqlx.GetContext(ctx, ext, &total, ext.Rebind("SELECT COUNT(*) FROM student"+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return total, nil
}

func (repo studentRepository) QueryClassStats(ctx context.Context, exec ...core.DBExecutor) ([]student.ClassStats, error) {
	ext := getExec(repo.db, exec)
	q := ext.Rebind(`
		SELECT class,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE jsonb_array_length(vaccination_history) > 0) AS vaccinated,
		       COUNT(*) FILTER (WHERE vaccination_status = ?) AS fully_vaccinated
		FROM student
		GROUP BY class
		ORDER BY class`)

	stats := make([]student.ClassStats, 0)
	if err := sqlx.SelectContext(ctx, ext, &stats, q, string(student.FullyVaccinated)); err != nil {
		return nil, errors.Wrap(err, "querying class stats")
	}
	return stats, nil
}

func (repo studentRepository) ExistingStudentIDs(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	ext := getExec(repo.db, exec)
	q, args, err := sqlx.In("SELECT student_id FROM student WHERE student_id IN (?)", studentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building student IDs query")
	}

	var taken []string
	if err = sqlx.SelectContext(ctx, ext, &taken, ext.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "checking student IDs")
	}
	return taken, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	if _, err := uuid.Parse(s.ID); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	history, err := repo.history(s)
	if err != nil {
		return student.Student{}, err
	}
	ext := getExec(repo.db, exec)
	q := ext.Rebind(`
		UPDATE student
		SET student_id = ?, name = ?, class = ?, date_of_birth = ?, gender = ?, parent_name = ?,
		    contact_number = ?, vaccination_status = ?, vaccination_history = ?, updated_at = ?
		WHERE id = ?
		RETURNING *`)

	var row studentRow
	err = sqlx.GetContext(
		ctx, ext, &row, q,
		s.StudentID, s.Name, s.Class, s.DateOfBirth, string(s.Gender), s.ParentName, s.ContactNumber,
		string(s.VaccinationStatus), history, s.UpdatedAt.UTC(), s.ID,
	)
	if err != nil {
		if isUniqueViolation(err, studentIDConstraint) {
			return student.Student{}, student.ErrStudentIDExists
		}
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "updating student")
	}
	return repo.toStudent(row)
}

func (repo studentRepository) DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if ids = validIDs(ids); len(ids) == 0 {
		return nil
	}
	ext := getExec(repo.db, exec)
	if _, err := ext.ExecContext(ctx, ext.Rebind("DELETE FROM student WHERE id = ANY(?::uuid[])"), pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return nil
}
