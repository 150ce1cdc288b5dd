package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
)

var june20th = core.NewDate(2025, time.June, 20)

func createDrives(t *testing.T, repo drive.Repository, drives ...drive.Drive) []drive.Drive {
	created := make([]drive.Drive, 0, len(drives))
	for _, d := range drives {
		c, err := repo.CreateDrive(context.Background(), d)
		require.NoError(t, err)
		created = append(created, c)
	}
	return created
}

func TestDriveRepository_QueryDrives(t *testing.T) {
	repo := NewDriveRepository(Open())
	ctx := context.Background()
	createDrives(t, repo,
		drive.Drive{VaccineName: "Polio", ScheduledDate: june20th, AvailableDoses: 5, Status: drive.StatusScheduled},
		drive.Drive{VaccineName: "measles", ScheduledDate: june20th.AddDays(-2), AvailableDoses: 9, Status: drive.StatusScheduled},
		drive.Drive{VaccineName: "BCG", ScheduledDate: june20th, AvailableDoses: 7, Status: drive.StatusCancelled},
	)

	names := func(drives []drive.Drive) []string {
		var n []string
		for _, d := range drives {
			n = append(n, d.VaccineName)
		}
		return n
	}
	tests := []struct {
		name      string
		ordering  []core.DBOrdering
		page      core.Page
		want      []string
		wantTotal int
	}{
		{name: "insertion order", want: []string{"Polio", "measles", "BCG"}, wantTotal: 3},
		{name: "case insensitive name", ordering: []core.DBOrdering{{Field: "vaccine_name", Ascending: true}}, want: []string{"BCG", "measles", "Polio"}, wantTotal: 3},
		{
			name:      "date then doses desc",
			ordering:  []core.DBOrdering{{Field: "scheduled_date", Ascending: true}, {Field: "available_doses"}},
			want:      []string{"measles", "BCG", "Polio"},
			wantTotal: 3,
		},
		{name: "unknown field ignored", ordering: []core.DBOrdering{{Field: "nope"}}, want: []string{"Polio", "measles", "BCG"}, wantTotal: 3},
		{name: "second page", page: core.Page{Page: 2, Limit: 2}, want: []string{"BCG"}, wantTotal: 3},
		{name: "past the end", page: core.Page{Page: 5, Limit: 2}, want: nil, wantTotal: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.QueryDrives(ctx, nil, tt.ordering, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestDriveRepository_QueryConflictCandidates(t *testing.T) {
	repo := NewDriveRepository(Open())
	ctx := context.Background()
	drives := createDrives(t, repo,
		drive.Drive{ScheduledDate: june20th, ApplicableClasses: []string{"5A", "6A"}, Status: drive.StatusScheduled},
		drive.Drive{ScheduledDate: june20th, ApplicableClasses: []string{"5A"}, Status: drive.StatusCancelled},
		drive.Drive{ScheduledDate: june20th, ApplicableClasses: []string{"6B"}, Status: drive.StatusInProgress},
		drive.Drive{ScheduledDate: june20th.AddDays(1), ApplicableClasses: []string{"5A"}, Status: drive.StatusScheduled},
	)

	got, err := repo.QueryConflictCandidates(ctx, june20th, []string{"6B", " 5A"}, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, drives[0].ID, got[0].ID)
	assert.Equal(t, drives[2].ID, got[1].ID)

	got, err = repo.QueryConflictCandidates(ctx, june20th, []string{"5A"}, drives[0].ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDriveRepository_IncrementVaccinatedCount(t *testing.T) {
	repo := NewDriveRepository(Open())
	ctx := context.Background()
	drv := createDrives(t, repo, drive.Drive{AvailableDoses: 1, Status: drive.StatusInProgress})[0]

	got, err := repo.IncrementVaccinatedCount(ctx, drv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.VaccinatedCount)

	_, err = repo.IncrementVaccinatedCount(ctx, drv.ID)
	assert.Equal(t, drive.ErrNoDosesLeft, err)
	_, err = repo.IncrementVaccinatedCount(ctx, "nope")
	assert.Equal(t, drive.ErrNotFound, err)
}

func TestDriveRepository_copies(t *testing.T) {
	repo := NewDriveRepository(Open())
	ctx := context.Background()
	drv := createDrives(t, repo, drive.Drive{ApplicableClasses: []string{"5A"}})[0]

	drv.ApplicableClasses[0] = "6A"
	stored, err := repo.GetDriveByID(ctx, drv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"5A"}, stored.ApplicableClasses)
}

func TestStudentRepository_CreateStudents(t *testing.T) {
	db := Open()
	repo := NewStudentRepository(db)
	ctx := context.Background()

	_, err := repo.CreateStudents(ctx, []student.Student{{StudentID: "S-001"}, {StudentID: "S-002"}})
	require.NoError(t, err)

	// all or nothing
	_, err = repo.CreateStudents(ctx, []student.Student{{StudentID: "S-003"}, {StudentID: "S-001"}})
	assert.Equal(t, student.ErrStudentIDExists, err)
	_, err = repo.CreateStudents(ctx, []student.Student{{StudentID: "S-004"}, {StudentID: "S-004"}})
	assert.Equal(t, student.ErrStudentIDExists, err)

	n, err := repo.CountStudents(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	taken, err := repo.ExistingStudentIDs(ctx, []string{"S-002", "S-003", "S-001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"S-002", "S-001"}, taken)

	db.Flush()
	n, err = repo.CountStudents(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStudentRepository_CreateStudents_storesEveryRow(t *testing.T) {
	repo := NewStudentRepository(Open())
	ctx := context.Background()

	created, err := repo.CreateStudents(ctx, []student.Student{
		{StudentID: "S-001", Name: "Ann", Class: "5A"},
		{StudentID: "S-002", Name: "Bob", Class: "5B"},
		{StudentID: "S-003", Name: "Cyn", Class: "6A"},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	for _, c := range created {
		stored, err := repo.GetStudentByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.StudentID, stored.StudentID)
		assert.Equal(t, c.Name, stored.Name)
		assert.Equal(t, c.Class, stored.Class)
	}
	assert.NotEqual(t, created[0].ID, created[1].ID)
}

func TestUnitOfWork_Atomically(t *testing.T) {
	uow := NewUnitOfWork(Open())

	var called bool
	err := uow.Atomically(context.Background(), []string{"k"}, func(exec core.DBExecutor) error {
		called = true
		assert.Nil(t, exec)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = uow.Atomically(ctx, nil, func(core.DBExecutor) error {
		t.Error("fn called with a cancelled context")
		return nil
	})
	assert.Equal(t, context.Canceled, err)
}
