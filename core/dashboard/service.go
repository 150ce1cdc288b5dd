package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
)

// NowFunc returns the current time; mocked in tests.
var NowFunc = time.Now

type (
	Summary struct {
		TotalStudents        int     `json:"total_students"`
		VaccinatedStudents   int     `json:"vaccinated_students"` // at least one dose
		FullyVaccinated      int     `json:"fully_vaccinated_students"`
		UnvaccinatedStudents int     `json:"unvaccinated_students"`
		VaccinationRate      float64 `json:"vaccination_rate"`      // % of students with at least one dose
		FullyVaccinatedRate  float64 `json:"fully_vaccinated_rate"` // % of fully vaccinated students
		UpcomingDrives       int     `json:"upcoming_drives"`
	}

	DriveReport struct {
		drive.Drive
		EligibleStudents   int     `json:"eligible_students"`
		VaccinatedStudents int     `json:"vaccinated_students"`
		VaccinationRate    float64 `json:"vaccination_rate"`
	}

	ScheduledDrive struct {
		drive.Drive
		EligibleStudents int `json:"eligible_students"`
	}

	Service struct {
		drives   drive.Repository
		students student.Repository
		loc      *time.Location
	}
)

func NewService(drives drive.Repository, students student.Repository, conf *core.Config) *Service {
	return &Service{drives: drives, students: students, loc: conf.Drive.Location()}
}

func (svc *Service) today() core.Date {
	return core.Today(NowFunc(), svc.loc)
}

func (svc *Service) Summary(ctx context.Context) (Summary, error) {
	var (
		sm  Summary
		err error
	)
	countStudents := func(dest *int, filter *student.QueryFilter) {
		if err != nil {
			return
		}
		*dest, err = svc.students.CountStudents(ctx, filter)
	}
	vaccinated := true

	countStudents(&sm.TotalStudents, nil)
	countStudents(&sm.VaccinatedStudents, &student.QueryFilter{Vaccinated: &vaccinated})
	countStudents(&sm.FullyVaccinated, &student.QueryFilter{Statuses: []student.VaccinationStatus{student.FullyVaccinated}})
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting students")
	}
	sm.UnvaccinatedStudents = sm.TotalStudents - sm.VaccinatedStudents
	sm.VaccinationRate = rate(sm.VaccinatedStudents, sm.TotalStudents)
	sm.FullyVaccinatedRate = rate(sm.FullyVaccinated, sm.TotalStudents)

	sm.UpcomingDrives, err = svc.drives.CountDrives(ctx, &drive.QueryFilter{
		Statuses: []drive.Status{drive.StatusScheduled},
		DateFrom: svc.today(),
	})
	if err != nil {
		return Summary{}, errors.Wrap(err, "counting upcoming drives")
	}
	return sm, nil
}

// TodayDrives returns the non-cancelled drives held today.
func (svc *Service) TodayDrives(ctx context.Context) ([]drive.Drive, error) {
	today := svc.today()
	drives, _, err := svc.drives.QueryDrives(
		ctx,
		&drive.QueryFilter{
			Statuses: []drive.Status{drive.StatusScheduled, drive.StatusInProgress, drive.StatusCompleted},
			DateFrom: today,
			DateTo:   today,
		},
		[]core.DBOrdering{{Field: "vaccine_name", Ascending: true}},
		core.Page{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying today's drives")
	}
	return drives, nil
}

// DriveReport returns the drives held between `from` and `to` (both optional) with their coverage.
func (svc *Service) DriveReport(ctx context.Context, from, to core.Date) ([]DriveReport, error) {
	drives, _, err := svc.drives.QueryDrives(
		ctx,
		&drive.QueryFilter{DateFrom: from, DateTo: to},
		[]core.DBOrdering{{Field: "scheduled_date", Ascending: true}},
		core.Page{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying drives")
	}

	reports := make([]DriveReport, 0, len(drives))
	for _, d := range drives {
		eligible, err := svc.students.CountStudents(ctx, &student.QueryFilter{Classes: d.ApplicableClasses})
		if err != nil {
			return nil, errors.Wrap(err, "counting eligible students")
		}
		vaccinated, err := svc.students.CountStudents(ctx, &student.QueryFilter{DriveID: d.ID})
		if err != nil {
			return nil, errors.Wrap(err, "counting vaccinated students")
		}
		reports = append(reports, DriveReport{
			Drive:              d,
			EligibleStudents:   eligible,
			VaccinatedStudents: vaccinated,
			VaccinationRate:    rate(vaccinated, eligible),
		})
	}
	return reports, nil
}

// Schedule returns the scheduled drives from today on, or between `from` and `to` when both are set.
func (svc *Service) Schedule(ctx context.Context, from, to core.Date) ([]ScheduledDrive, error) {
	filter := &drive.QueryFilter{Statuses: []drive.Status{drive.StatusScheduled}, DateFrom: svc.today()}
	if !from.IsZero() && !to.IsZero() {
		filter.DateFrom, filter.DateTo = from, to
	}
	drives, _, err := svc.drives.QueryDrives(
		ctx, filter, []core.DBOrdering{{Field: "scheduled_date", Ascending: true}}, core.Page{},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying scheduled drives")
	}

	schedule := make([]ScheduledDrive, 0, len(drives))
	for _, d := range drives {
		eligible, err := svc.students.CountStudents(ctx, &student.QueryFilter{Classes: d.ApplicableClasses})
		if err != nil {
			return nil, errors.Wrap(err, "counting eligible students")
		}
		schedule = append(schedule, ScheduledDrive{Drive: d, EligibleStudents: eligible})
	}
	return schedule, nil
}

func (svc *Service) ClassStats(ctx context.Context) ([]student.ClassStats, error) {
	stats, err := svc.students.QueryClassStats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying class stats")
	}
	return stats, nil
}

// rate returns `part` as a percentage of `total`, rounded to 2 decimals.
func rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
