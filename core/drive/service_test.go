package drive_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	emailsvc "github.com/trezcool/schoolvax/services/email"
	inmemdb "github.com/trezcool/schoolvax/storage/database/inmem"
	testutil "github.com/trezcool/schoolvax/tests"
)

func newService(t *testing.T) (*drive.Service, drive.Repository) {
	conf := testutil.NewConfig()
	validate, _ := testutil.NewValidator(t)
	testutil.FreezeTime(t)

	db := inmemdb.Open()
	repo := inmemdb.NewDriveRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))
	emailsvc.ResetSentMessages()
	t.Cleanup(emailsvc.ResetSentMessages)

	return drive.NewService(inmemdb.NewUnitOfWork(db), repo, mailSvc, validate, conf), repo
}

func newDrive(date core.Date, classes ...string) drive.NewDrive {
	return drive.NewDrive{
		VaccineName:       "Polio",
		ScheduledDate:     date.Ptr(),
		AvailableDoses:    30,
		ApplicableClasses: classes,
		Coordinator:       "nurse-1",
	}
}

func TestService_Create(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	existing := testutil.CreateDrive(t, repo, "Measles", testutil.Day(20), drive.StatusScheduled, 10, "5B")

	tests := []struct {
		name     string
		nd       drive.NewDrive
		wantKind drive.ErrorKind
	}{
		{name: "missing fields", nd: drive.NewDrive{}, wantKind: drive.KindMissingField},
		{name: "too soon", nd: newDrive(testutil.Day(14), "5A"), wantKind: drive.KindSchedulingTooSoon},
		{name: "conflict", nd: newDrive(testutil.Day(20), "5A", "5B"), wantKind: drive.KindSchedulingConflict},
		{name: "exactly 15 days ahead", nd: newDrive(testutil.Day(15), "5A")},
		{name: "other class on the same day", nd: newDrive(testutil.Day(20), "6A")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Create(ctx, tt.nd)
			if tt.wantKind != "" {
				if kind := drive.KindOf(err); kind != tt.wantKind {
					t.Errorf("Create() error = %v, want kind %v", err, tt.wantKind)
				}
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.NotEqual(t, existing.ID, got.ID)
			assert.Equal(t, drive.StatusScheduled, got.Status)
			assert.Equal(t, testutil.Now, got.CreatedAt)

			stored, err := repo.GetDriveByID(ctx, got.ID)
			require.NoError(t, err)
			assert.Equal(t, got.ApplicableClasses, stored.ApplicableClasses)
		})
	}

	var conflict *drive.SchedulingConflictError
	_, err := svc.Create(ctx, newDrive(testutil.Day(20), "5B"))
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{existing.ID}, conflict.DriveIDs)
}

func TestService_Create_notifies(t *testing.T) {
	svc, _ := newService(t)

	drv, err := svc.Create(context.Background(), newDrive(testutil.Day(30), "5A"))
	require.NoError(t, err)

	sent := emailsvc.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "New vaccination drive: Polio", sent[0].Subject)
	assert.Equal(t, "nurse@school.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, drv.ScheduledDate.String())
}

func TestService_Create_concurrent(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	date := testutil.Day(20)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, newDrive(date, "5A"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case drive.KindOf(err) == drive.KindSchedulingConflict:
				conflicts++
			default:
				t.Errorf("Create() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, conflicts)
	total, err := repo.CountDrives(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestService_Update(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	strPtr := func(s string) *string { return &s }

	drv := testutil.CreateDrive(t, repo, "Polio", testutil.Day(20), drive.StatusScheduled, 10, "5A")
	testutil.CreateDrive(t, repo, "Measles", testutil.Day(25), drive.StatusScheduled, 10, "5A")
	done := testutil.CreateDrive(t, repo, "Hepatitis B", testutil.Day(-3), drive.StatusCompleted, 10, "6A")

	tests := []struct {
		name     string
		id       string
		ud       drive.UpdateDrive
		wantErr  error
		wantKind drive.ErrorKind
		want     string
	}{
		{name: "not found", id: "nope", ud: drive.UpdateDrive{Notes: strPtr("x")}, wantErr: drive.ErrNotFound},
		{name: "nothing to save", id: drv.ID, ud: drive.UpdateDrive{}, wantErr: drive.ErrNothingToSave},
		{name: "moved onto a conflicting day", id: drv.ID, ud: drive.UpdateDrive{ScheduledDate: testutil.Day(25).Ptr()}, wantKind: drive.KindSchedulingConflict},
		{name: "moved too close", id: drv.ID, ud: drive.UpdateDrive{ScheduledDate: testutil.Day(3).Ptr()}, wantKind: drive.KindSchedulingTooSoon},
		{name: "terminal drive", id: done.ID, ud: drive.UpdateDrive{Notes: strPtr("late")}},
		{name: "rename", id: drv.ID, ud: drive.UpdateDrive{VaccineName: strPtr("  Polio booster ")}, want: "Polio booster"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Update(ctx, tt.id, tt.ud)
			switch {
			case tt.wantErr != nil:
				cause := errors.Cause(err)
				if vErr, ok := cause.(*core.ValidationError); ok {
					cause = vErr.Err
				}
				if cause != tt.wantErr {
					t.Errorf("Update() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantKind != "":
				if kind := drive.KindOf(err); kind != tt.wantKind {
					t.Errorf("Update() error = %v, want kind %v", err, tt.wantKind)
				}
			case tt.want == "":
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.VaccineName)
				assert.Equal(t, testutil.Now, got.UpdatedAt)
			}
		})
	}
}

func TestService_SetStatus(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	drv := testutil.CreateDrive(t, repo, "Polio", testutil.Day(0), drive.StatusScheduled, 10, "5A")

	steps := []struct {
		to       drive.Status
		wantKind drive.ErrorKind
	}{
		{to: drive.StatusCompleted, wantKind: drive.KindInvalidTransition},
		{to: drive.StatusInProgress},
		{to: drive.StatusScheduled, wantKind: drive.KindInvalidTransition},
		{to: drive.StatusCompleted},
		{to: drive.StatusCancelled, wantKind: drive.KindInvalidTransition},
	}
	for _, st := range steps {
		got, err := svc.SetStatus(ctx, drv.ID, drive.StatusUpdate{Status: st.to})
		if st.wantKind != "" {
			assert.Equal(t, st.wantKind, drive.KindOf(err), "SetStatus(%v)", st.to)
			continue
		}
		require.NoError(t, err, "SetStatus(%v)", st.to)
		assert.Equal(t, st.to, got.Status)
	}

	stored, err := repo.GetDriveByID(ctx, drv.ID)
	require.NoError(t, err)
	assert.Equal(t, drive.StatusCompleted, stored.Status)
	assert.Len(t, emailsvc.GetSentMessages(), 2)

	_, err = svc.SetStatus(ctx, drv.ID, drive.StatusUpdate{Status: "paused"})
	assert.Error(t, err)
	_, err = svc.SetStatus(ctx, "nope", drive.StatusUpdate{Status: drive.StatusCancelled})
	assert.Equal(t, drive.ErrNotFound, errors.Cause(err))
}

func TestService_QueryAndStats(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	testutil.CreateDrive(t, repo, "Polio", testutil.Day(20), drive.StatusScheduled, 10, "5A")
	testutil.CreateDrive(t, repo, "Measles", testutil.Day(16), drive.StatusScheduled, 10, "5B")
	testutil.CreateDrive(t, repo, "Hepatitis B", testutil.Day(-1), drive.StatusScheduled, 10, "5A")
	testutil.CreateDrive(t, repo, "Rubella", testutil.Day(0), drive.StatusInProgress, 10, "6A")
	testutil.CreateDrive(t, repo, "Tetanus", testutil.Day(-10), drive.StatusCompleted, 10, "6A")
	testutil.CreateDrive(t, repo, "Typhoid", testutil.Day(20), drive.StatusCancelled, 10, "6B")

	drives, pg, err := svc.Query(ctx, &drive.QueryFilter{Class: " 5A "}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, drives, 2)
	assert.Equal(t, "Hepatitis B", drives[0].VaccineName) // sorted by date
	assert.Equal(t, 2, pg.Total)

	drives, pg, err = svc.Query(ctx, nil, []core.DBOrdering{{Field: "vaccine_name", Ascending: true}}, core.Page{Page: 2, Limit: 4})
	require.NoError(t, err)
	require.Len(t, drives, 2)
	assert.Equal(t, "Tetanus", drives[0].VaccineName)
	assert.Equal(t, core.Pagination{Page: 2, Limit: 4, Total: 6, Pages: 2}, pg)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, drive.Stats{Total: 6, Upcoming: 2, Scheduled: 3, InProgress: 1, Completed: 1, Cancelled: 1}, stats)
}

func TestService_Delete(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	a := testutil.CreateDrive(t, repo, "Polio", testutil.Day(20), drive.StatusScheduled, 10, "5A")
	b := testutil.CreateDrive(t, repo, "Measles", testutil.Day(20), drive.StatusCancelled, 10, "5A")

	require.NoError(t, svc.Delete(ctx))
	require.NoError(t, svc.Delete(ctx, a.ID))

	_, err := repo.GetDriveByID(ctx, a.ID)
	assert.Equal(t, drive.ErrNotFound, errors.Cause(err))
	_, err = repo.GetDriveByID(ctx, b.ID)
	assert.NoError(t, err)
}

func TestService_SendReminders(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	testutil.CreateDrive(t, repo, "Polio", testutil.Day(1), drive.StatusScheduled, 10, "5A")
	testutil.CreateDrive(t, repo, "Measles", testutil.Day(1), drive.StatusScheduled, 10, "5B")
	testutil.CreateDrive(t, repo, "Typhoid", testutil.Day(1), drive.StatusCancelled, 10, "6A")
	testutil.CreateDrive(t, repo, "Rubella", testutil.Day(2), drive.StatusScheduled, 10, "6A")

	n, err := svc.SendReminders(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := emailsvc.GetSentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "Upcoming vaccination drive: Measles", sent[0].Subject)
	assert.Equal(t, "Upcoming vaccination drive: Polio", sent[1].Subject)
	assert.Contains(t, sent[1].TextContent, "in 1 day(s)")

	n, err = svc.SendReminders(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.SendReminders(ctx, -1)
	assert.Error(t, err)
}
