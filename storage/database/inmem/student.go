package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/student"
)

type studentRepository struct {
	db *studentTable
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func copyStudent(s student.Student) student.Student {
	s.VaccinationHistory = append([]student.VaccinationRecord{}, s.VaccinationHistory...)
	return s
}

// query returns a copy of every student matching `filter`, in insertion order. The caller holds the lock.
func (repo *studentRepository) query(filter *student.QueryFilter) []student.Student {
	students := make([]student.Student, 0, len(repo.db.order))
	for _, id := range repo.db.order {
		if s := repo.db.table[id]; filter.Match(*s) {
			students = append(students, copyStudent(*s))
		}
	}
	return students
}

// studentIDTaken reports whether another student than `excludedID` has the roll number `sid`. The caller holds the lock.
func (repo *studentRepository) studentIDTaken(sid, excludedID string) bool {
	for id, s := range repo.db.table {
		if s.StudentID == sid && id != excludedID {
			return true
		}
	}
	return false
}

func (repo *studentRepository) CreateStudents(ctx context.Context, students []student.Student, exec ...core.DBExecutor) ([]student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	seen := make(map[string]struct{}, len(students))
	for _, s := range students {
		if _, dup := seen[s.StudentID]; dup || repo.studentIDTaken(s.StudentID, "") {
			return nil, student.ErrStudentIDExists
		}
		seen[s.StudentID] = struct{}{}
	}

	created := make([]student.Student, 0, len(students))
	for _, s := range students {
		stored := copyStudent(s)
		stored.ID = uuid.New().String()
		repo.db.table[stored.ID] = &stored
		repo.db.order = append(repo.db.order, stored.ID)
		created = append(created, copyStudent(stored))
	}
	return created, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.table[id]; ok {
		return copyStudent(*s), nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]student.Student, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := repo.query(filter)
	sortBy(len(students), func(i, j int) { students[i], students[j] = students[j], students[i] }, ordering, func(i int, name string) (interface{}, bool) {
		return studentField(students[i], name)
	})
	start, end := paginate(len(students), page)
	return students[start:end], len(students), nil
}

func (repo *studentRepository) CountStudents(ctx context.Context, filter *student.QueryFilter, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.query(filter)), nil
}

func (repo *studentRepository) QueryClassStats(ctx context.Context, exec ...core.DBExecutor) ([]student.ClassStats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	byClass := make(map[string]*student.ClassStats)
	for _, s := range repo.db.table {
		cs, ok := byClass[s.Class]
		if !ok {
			cs = &student.ClassStats{Class: s.Class}
			byClass[s.Class] = cs
		}
		cs.Total++
		if s.IsVaccinated() {
			cs.Vaccinated++
		}
		if s.VaccinationStatus == student.FullyVaccinated {
			cs.FullyVaccinated++
		}
	}
	stats := make([]student.ClassStats, 0, len(byClass))
	for _, cs := range byClass {
		stats = append(stats, *cs)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Class < stats[j].Class })
	return stats, nil
}

func (repo *studentRepository) ExistingStudentIDs(ctx context.Context, studentIDs []string, exec ...core.DBExecutor) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var taken []string
	for _, sid := range studentIDs {
		if repo.studentIDTaken(sid, "") {
			taken = append(taken, sid)
		}
	}
	return taken, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[s.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	if repo.studentIDTaken(s.StudentID, s.ID) {
		return student.Student{}, student.ErrStudentIDExists
	}
	s = copyStudent(s)
	repo.db.table[s.ID] = &s
	return copyStudent(s), nil
}

func (repo *studentRepository) DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	repo.db.order = removeIDs(repo.db.order, ids)
	return nil
}

func studentField(s student.Student, name string) (interface{}, bool) {
	switch name {
	case "student_id":
		return s.StudentID, true
	case "name":
		return s.Name, true
	case "class":
		return s.Class, true
	case "date_of_birth":
		return s.DateOfBirth, true
	case "gender":
		return string(s.Gender), true
	case "vaccination_status":
		return string(s.VaccinationStatus), true
	case "created_at":
		return s.CreatedAt, true
	case "updated_at":
		return s.UpdatedAt, true
	}
	return nil, false
}
