package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
)

var driveOrderingFields = map[string]bool{
	"vaccine_name":     true,
	"scheduled_date":   true,
	"available_doses":  true,
	"vaccinated_count": true,
	"status":           true,
	"coordinator":      true,
	"created_at":       true,
	"updated_at":       true,
}

type driveRow struct {
	ID                string         `db:"id"`
	VaccineName       string         `db:"vaccine_name"`
	ScheduledDate     core.Date      `db:"scheduled_date"`
	AvailableDoses    int            `db:"available_doses"`
	ApplicableClasses pq.StringArray `db:"applicable_classes"`
	Status            string         `db:"status"`
	Coordinator       string         `db:"coordinator"`
	VaccinatedCount   int            `db:"vaccinated_count"`
	Notes             null.String    `db:"notes"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

type driveRepository struct {
	db *sqlx.DB
}

var _ drive.Repository = (*driveRepository)(nil) // interface compliance check

func NewDriveRepository(db *sqlx.DB) drive.Repository {
	return &driveRepository{db: db}
}

func (repo driveRepository) toDrive(row driveRow) drive.Drive {
	classes := []string(row.ApplicableClasses)
	if classes == nil {
		classes = []string{}
	}
	return drive.Drive{
		ID:                row.ID,
		VaccineName:       row.VaccineName,
		ScheduledDate:     row.ScheduledDate,
		AvailableDoses:    row.AvailableDoses,
		ApplicableClasses: classes,
		Status:            drive.Status(row.Status),
		Coordinator:       row.Coordinator,
		VaccinatedCount:   row.VaccinatedCount,
		Notes:             row.Notes.String,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

func (repo driveRepository) toDrives(rows []driveRow) []drive.Drive {
	drives := make([]drive.Drive, 0, len(rows))
	for _, row := range rows {
		drives = append(drives, repo.toDrive(row))
	}
	return drives
}

func (repo driveRepository) filter(filter *drive.QueryFilter) *where {
	w := new(where)
	if filter == nil {
		return w
	}
	if filter.Search != "" {
		w.add("vaccine_name ILIKE ?", containsPattern(filter.Search))
	}
	if len(filter.Statuses) > 0 {
		statuses := make(pq.StringArray, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		w.add("status = ANY(?)", statuses)
	}
	if filter.Class != "" {
		w.add("? = ANY(applicable_classes)", filter.Class)
	}
	if !filter.DateFrom.IsZero() {
		w.add("scheduled_date >= ?", filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		w.add("scheduled_date <= ?", filter.DateTo)
	}
	return w
}

func (repo driveRepository) CreateDrive(ctx context.Context, drv drive.Drive, exec ...core.DBExecutor) (drive.Drive, error) {
	ext := getExec(repo.db, exec)
	q := ext.Rebind(`
		INSERT INTO drive (id, vaccine_name, scheduled_date, available_doses, applicable_classes, status,
		                   coordinator, vaccinated_count, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING *`)

	var row driveRow
	err := sqlx.GetContext(
		ctx, ext, &row, q,
		uuid.New().String(), drv.VaccineName, drv.ScheduledDate, drv.AvailableDoses,
		pq.StringArray(drv.ApplicableClasses), string(drv.Status), drv.Coordinator, drv.VaccinatedCount,
		null.NewString(drv.Notes, drv.Notes != ""), drv.CreatedAt.UTC(), drv.UpdatedAt.UTC(),
	)
	if err != nil {
		return drive.Drive{}, errors.Wrap(err, "inserting drive")
	}
	return repo.toDrive(row), nil
}

func (repo driveRepository) GetDriveByID(ctx context.Context, id string, exec ...core.DBExecutor) (drive.Drive, error) {
	if _, err := uuid.Parse(id); err != nil {
		return drive.Drive{}, drive.ErrNotFound
	}
	ext := getExec(repo.db, exec)

	var row driveRow
	if err := sqlx.GetContext(ctx, ext, &row, ext.Rebind("SELECT * FROM drive WHERE id = ?"), id); err != nil {
		return drive.Drive{}, trapNoRowsErr(err, drive.ErrNotFound, "finding drive by ID")
	}
	return repo.toDrive(row), nil
}

func (repo driveRepository) QueryDrives(ctx context.Context, filter *drive.QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]drive.Drive, int, error) {
	ext := getExec(repo.db, exec)
	w := repo.filter(filter)

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, ext.Rebind("SELECT COUNT(*) FROM drive"+w.String()), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting drives")
	}

	var rows []driveRow
	q := "SELECT * FROM drive" + w.String() + orderBy(ordering, driveOrderingFields) + limitOffset(page)
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(q), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying drives")
	}
	return repo.toDrives(rows), total, nil
}

func (repo driveRepository) QueryConflictCandidates(ctx context.Context, date core.Date, classes []string, excludeID string, exec ...core.DBExecutor) ([]drive.Drive, error) {
	ext := getExec(repo.db, exec)
	w := new(where)
	w.add("scheduled_date = ?", date)
	w.add("status <> ?", string(drive.StatusCancelled))
	w.add("applicable_classes && ?", pq.StringArray(core.CleanStrings(classes)))
	if _, err := uuid.Parse(excludeID); err == nil {
		w.add("id <> ?", excludeID)
	}

	var rows []driveRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind("SELECT * FROM drive"+w.String()+" ORDER BY id"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying conflicting drives")
	}
	return repo.toDrives(rows), nil
}

func (repo driveRepository) CountDrives(ctx context.Context, filter *drive.QueryFilter, exec ...core.DBExecutor) (int, error) {
	ext := getExec(repo.db, exec)
	w := repo.filter(filter)

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, ext.Rebind("SELECT COUNT(*) FROM drive"+w.String()), w.args...); err != nil {
		return 0, errors.Wrap(err, "counting drives")
	}
	return total, nil
}

func (repo driveRepository) UpdateDrive(ctx context.Context, drv drive.Drive, exec ...core.DBExecutor) (drive.Drive, error) {
	if _, err := uuid.Parse(drv.ID); err != nil {
		return drive.Drive{}, drive.ErrNotFound
	}
	ext := getExec(repo.db, exec)
	q := ext.Rebind(`
		UPDATE drive
		SET vaccine_name = ?, scheduled_date = ?, available_doses = ?, applicable_classes = ?, status = ?,
		    coordinator = ?, notes = ?, updated_at = ?
		WHERE id = ?
		RETURNING *`)

	var row driveRow
	err := sqlx.GetContext(
		ctx, ext, &row, q,
		drv.VaccineName, drv.ScheduledDate, drv.AvailableDoses, pq.StringArray(drv.ApplicableClasses),
		string(drv.Status), drv.Coordinator, null.NewString(drv.Notes, drv.Notes != ""), drv.UpdatedAt.UTC(),
		drv.ID,
	)
	if err != nil {
		return drive.Drive{}, trapNoRowsErr(err, drive.ErrNotFound, "updating drive")
	}
	return repo.toDrive(row), nil
}

func (repo driveRepository) IncrementVaccinatedCount(ctx context.Context, id string, exec ...core.DBExecutor) (drive.Drive, error) {
	if _, err := uuid.Parse(id); err != nil {
		return drive.Drive{}, drive.ErrNotFound
	}
	ext := getExec(repo.db, exec)
	q := ext.Rebind(`
		UPDATE drive
		SET vaccinated_count = vaccinated_count + 1
		WHERE id = ? AND vaccinated_count < available_doses
		RETURNING *`)

	var row driveRow
	if err := sqlx.GetContext(ctx, ext, &row, q, id); err != nil {
		if errors.Cause(err) != sql.ErrNoRows {
			return drive.Drive{}, errors.Wrap(err, "incrementing vaccinated count")
		}
		// either the drive does not exist or all its doses are used
		if _, err = repo.GetDriveByID(ctx, id, exec...); err != nil {
			return drive.Drive{}, err
		}
		return drive.Drive{}, drive.ErrNoDosesLeft
	}
	return repo.toDrive(row), nil
}

func (repo driveRepository) DeleteDrivesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if ids = validIDs(ids); len(ids) == 0 {
		return nil
	}
	ext := getExec(repo.db, exec)
	if _, err := ext.ExecContext(ctx, ext.Rebind("DELETE FROM drive WHERE id = ANY(?::uuid[])"), pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "deleting drives")
	}
	return nil
}
