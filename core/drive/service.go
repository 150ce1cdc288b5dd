package drive

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
)

var (
	// errors
	ErrNotFound      = errors.New("vaccination drive not found")
	ErrNoDosesLeft   = errors.New("no doses left for this vaccination drive")
	ErrNotInProgress = errors.New("vaccinations can only be recorded for in-progress drives")
	ErrNothingToSave = errors.New("nothing to update")

	// NowFunc returns the current time; mocked in tests.
	NowFunc = time.Now

	maxUpdateAttempts = 3
)

type (
	Repository interface {
		CreateDrive(ctx context.Context, drv Drive, exec ...core.DBExecutor) (Drive, error)
		GetDriveByID(ctx context.Context, id string, exec ...core.DBExecutor) (Drive, error)
		// QueryDrives applies AND operation on available QueryFilter fields; it returns the page and the total count.
		QueryDrives(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]Drive, int, error)
		// QueryConflictCandidates returns the non-cancelled drives on `date` sharing a class with `classes`,
		// `excludeID` excluded.
		QueryConflictCandidates(ctx context.Context, date core.Date, classes []string, excludeID string, exec ...core.DBExecutor) ([]Drive, error)
		CountDrives(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) (int, error)
		UpdateDrive(ctx context.Context, drv Drive, exec ...core.DBExecutor) (Drive, error)
		// IncrementVaccinatedCount adds one administered dose, failing with ErrNoDosesLeft when all doses are used.
		IncrementVaccinatedCount(ctx context.Context, id string, exec ...core.DBExecutor) (Drive, error)
		DeleteDrivesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error
	}

	Service struct {
		uow      core.UnitOfWork
		repo     Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		policy   Policy
		notify   []mail.Address
	}
)

func NewService(uow core.UnitOfWork, repo Repository, mailSvc core.EmailService, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{
		uow:      uow,
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
		policy:   NewPolicy(conf),
		notify:   conf.NotifyEmails,
	}
}

func (svc *Service) Policy() Policy { return svc.policy }

// Create schedules a new drive. The conflict check and the insert run in one unit of work
// keyed on the (date, class) pairs of the drive.
func (svc *Service) Create(ctx context.Context, nd NewDrive) (Drive, error) {
	if err := nd.Validate(svc.validate); err != nil {
		return Drive{}, err
	}

	var created Drive
	keys := ScheduleKeys(nd.date(), nd.ApplicableClasses)
	err := svc.uow.Atomically(ctx, keys, func(exec core.DBExecutor) error {
		var existing []Drive
		if date := nd.date(); !date.IsZero() && len(nd.ApplicableClasses) > 0 {
			var err error
			existing, err = svc.repo.QueryConflictCandidates(ctx, date, nd.ApplicableClasses, "", exec)
			if err != nil {
				return errors.Wrap(err, "querying conflicting drives")
			}
		}

		now := NowFunc()
		drv, err := svc.policy.ValidateNewDrive(nd, existing, now)
		if err != nil {
			return err
		}
		drv.CreatedAt = now.UTC()
		drv.UpdatedAt = drv.CreatedAt

		created, err = svc.repo.CreateDrive(ctx, drv, exec)
		return errors.Wrap(err, "creating drive")
	})
	if err != nil {
		return Drive{}, err
	}

	svc.sendNotification("drive_scheduled", "New vaccination drive: "+created.VaccineName, created)
	return created, nil
}

// Update edits a non-terminal drive.
func (svc *Service) Update(ctx context.Context, id string, ud UpdateDrive) (Drive, error) {
	if err := ud.Validate(svc.validate); err != nil {
		return Drive{}, err
	}
	if ud.IsEmpty() {
		return Drive{}, core.NewValidationError(ErrNothingToSave)
	}

	for attempt := 1; ; attempt++ {
		current, err := svc.repo.GetDriveByID(ctx, id)
		if err != nil {
			return Drive{}, err
		}
		date, classes := current.ScheduledDate, current.ApplicableClasses
		if ud.ScheduledDate != nil {
			date = *ud.ScheduledDate
		}
		if ud.ApplicableClasses != nil {
			classes = ud.ApplicableClasses
		}
		keys := append(DriveKeys(id), ScheduleKeys(date, classes)...)
		keys = append(keys, ScheduleKeys(current.ScheduledDate, current.ApplicableClasses)...)

		var updated Drive
		err = svc.uow.Atomically(ctx, keys, func(exec core.DBExecutor) error {
			fresh, err := svc.repo.GetDriveByID(ctx, id, exec)
			if err != nil {
				return err
			}
			if !fresh.UpdatedAt.Equal(current.UpdatedAt) {
				return errConcurrentUpdate
			}

			var others []Drive
			if !date.IsZero() && len(classes) > 0 {
				others, err = svc.repo.QueryConflictCandidates(ctx, date, classes, id, exec)
				if err != nil {
					return errors.Wrap(err, "querying conflicting drives")
				}
			}

			now := NowFunc()
			drv, err := svc.policy.ValidateEdit(fresh, ud, others, now)
			if err != nil {
				return err
			}
			drv.UpdatedAt = now.UTC()

			updated, err = svc.repo.UpdateDrive(ctx, drv, exec)
			return errors.Wrap(err, "updating drive")
		})
		if errors.Cause(err) == errConcurrentUpdate && attempt < maxUpdateAttempts {
			continue // the drive moved under us: lock the new keys
		}
		if err != nil {
			return Drive{}, err
		}
		return updated, nil
	}
}

// SetStatus moves a drive along the transition table.
func (svc *Service) SetStatus(ctx context.Context, id string, su StatusUpdate) (Drive, error) {
	if err := su.Validate(svc.validate); err != nil {
		return Drive{}, err
	}

	var updated Drive
	err := svc.uow.Atomically(ctx, DriveKeys(id), func(exec core.DBExecutor) error {
		drv, err := svc.repo.GetDriveByID(ctx, id, exec)
		if err != nil {
			return err
		}
		if drv, err = Transition(drv, su.Status); err != nil {
			return err
		}
		drv.UpdatedAt = NowFunc().UTC()

		updated, err = svc.repo.UpdateDrive(ctx, drv, exec)
		return errors.Wrap(err, "updating drive status")
	})
	if err != nil {
		return Drive{}, err
	}

	svc.sendNotification("drive_status_changed", "Vaccination drive "+string(updated.Status)+": "+updated.VaccineName, updated)
	return updated, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Drive, error) {
	return svc.repo.GetDriveByID(ctx, id)
}

// Query returns the drives matching `filter`, sorted by `ordering` (scheduled date by default), and the pagination.
func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) ([]Drive, core.Pagination, error) {
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "scheduled_date", Ascending: true}}
	}
	drives, total, err := svc.repo.QueryDrives(ctx, filter, ordering, page)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	return drives, core.NewPagination(page, total), nil
}

// Stats counts the drives per status. Upcoming drives are the scheduled ones from today on.
func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		err   error
	)
	count := func(dest *int, filter *QueryFilter) {
		if err != nil {
			return
		}
		*dest, err = svc.repo.CountDrives(ctx, filter)
	}
	today := core.Today(NowFunc(), svc.policy.Location)

	count(&stats.Total, nil)
	count(&stats.Scheduled, &QueryFilter{Statuses: []Status{StatusScheduled}})
	count(&stats.InProgress, &QueryFilter{Statuses: []Status{StatusInProgress}})
	count(&stats.Completed, &QueryFilter{Statuses: []Status{StatusCompleted}})
	count(&stats.Cancelled, &QueryFilter{Statuses: []Status{StatusCancelled}})
	count(&stats.Upcoming, &QueryFilter{Statuses: []Status{StatusScheduled}, DateFrom: today})
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting drives")
	}
	return stats, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	var keys []string
	for _, id := range ids {
		keys = append(keys, DriveKeys(id)...)
	}
	return svc.uow.Atomically(ctx, keys, func(exec core.DBExecutor) error {
		return svc.repo.DeleteDrivesByID(ctx, ids, exec)
	})
}

// SendReminders e-mails the notification recipients about every drive scheduled `daysAhead` days from today.
// It returns the number of drives reminded.
func (svc *Service) SendReminders(ctx context.Context, daysAhead int) (int, error) {
	if daysAhead < 0 {
		return 0, errors.Errorf("invalid reminder delay: %d days", daysAhead)
	}
	date := core.Today(NowFunc(), svc.policy.Location).AddDays(daysAhead)
	drives, _, err := svc.repo.QueryDrives(
		ctx,
		&QueryFilter{Statuses: []Status{StatusScheduled}, DateFrom: date, DateTo: date},
		[]core.DBOrdering{{Field: "vaccine_name", Ascending: true}},
		core.Page{},
	)
	if err != nil {
		return 0, errors.Wrap(err, "querying drives to remind")
	}

	for _, drv := range drives {
		svc.sendNotification("drive_reminder", "Upcoming vaccination drive: "+drv.VaccineName, reminder{Drive: drv, DaysAhead: daysAhead})
	}
	return len(drives), nil
}

type reminder struct {
	Drive
	DaysAhead int
}

func (svc *Service) sendNotification(tmpl, subject string, data interface{}) {
	if svc.mailSvc == nil || len(svc.notify) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           svc.notify,
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
}

var errConcurrentUpdate = errors.New("drive changed concurrently")

// DriveKeys returns the serialization keys of the writes touching the drive `id` itself.
func DriveKeys(id string) []string {
	return []string{"drive:" + id}
}
