package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
)

type driveRepository struct {
	db *driveTable
}

var _ drive.Repository = (*driveRepository)(nil) // interface compliance check

func NewDriveRepository(db *DB) drive.Repository {
	return &driveRepository{db: db.drive}
}

func copyDrive(d drive.Drive) drive.Drive {
	d.ApplicableClasses = append([]string(nil), d.ApplicableClasses...)
	return d
}

// query returns a copy of every drive matching `filter`, in insertion order. The caller holds the lock.
func (repo *driveRepository) query(filter *drive.QueryFilter) []drive.Drive {
	drives := make([]drive.Drive, 0, len(repo.db.order))
	for _, id := range repo.db.order {
		if d := repo.db.table[id]; filter.Match(*d) {
			drives = append(drives, copyDrive(*d))
		}
	}
	return drives
}

func (repo *driveRepository) CreateDrive(ctx context.Context, drv drive.Drive, exec ...core.DBExecutor) (drive.Drive, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	drv = copyDrive(drv)
	drv.ID = uuid.New().String()
	repo.db.table[drv.ID] = &drv
	repo.db.order = append(repo.db.order, drv.ID)
	return copyDrive(drv), nil
}

func (repo *driveRepository) GetDriveByID(ctx context.Context, id string, exec ...core.DBExecutor) (drive.Drive, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.table[id]; ok {
		return copyDrive(*d), nil
	}
	return drive.Drive{}, drive.ErrNotFound
}

func (repo *driveRepository) QueryDrives(ctx context.Context, filter *drive.QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]drive.Drive, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	drives := repo.query(filter)
	sortBy(len(drives), func(i, j int) { drives[i], drives[j] = drives[j], drives[i] }, ordering, func(i int, name string) (interface{}, bool) {
		return driveField(drives[i], name)
	})
	start, end := paginate(len(drives), page)
	return drives[start:end], len(drives), nil
}

func (repo *driveRepository) QueryConflictCandidates(ctx context.Context, date core.Date, classes []string, excludeID string, exec ...core.DBExecutor) ([]drive.Drive, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes = core.CleanStrings(classes)
	var drives []drive.Drive
	for _, d := range repo.query(nil) {
		if d.ID != excludeID && d.ConflictsWith(date, classes) {
			drives = append(drives, d)
		}
	}
	return drives, nil
}

func (repo *driveRepository) CountDrives(ctx context.Context, filter *drive.QueryFilter, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.query(filter)), nil
}

func (repo *driveRepository) UpdateDrive(ctx context.Context, drv drive.Drive, exec ...core.DBExecutor) (drive.Drive, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[drv.ID]; !ok {
		return drive.Drive{}, drive.ErrNotFound
	}
	drv = copyDrive(drv)
	repo.db.table[drv.ID] = &drv
	return copyDrive(drv), nil
}

func (repo *driveRepository) IncrementVaccinatedCount(ctx context.Context, id string, exec ...core.DBExecutor) (drive.Drive, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.table[id]
	if !ok {
		return drive.Drive{}, drive.ErrNotFound
	}
	if d.VaccinatedCount >= d.AvailableDoses {
		return drive.Drive{}, drive.ErrNoDosesLeft
	}
	d.VaccinatedCount++
	return copyDrive(*d), nil
}

func (repo *driveRepository) DeleteDrivesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	repo.db.order = removeIDs(repo.db.order, ids)
	return nil
}

func driveField(d drive.Drive, name string) (interface{}, bool) {
	switch name {
	case "vaccine_name":
		return d.VaccineName, true
	case "scheduled_date":
		return d.ScheduledDate, true
	case "available_doses":
		return d.AvailableDoses, true
	case "vaccinated_count":
		return d.VaccinatedCount, true
	case "status":
		return string(d.Status), true
	case "coordinator":
		return d.Coordinator, true
	case "created_at":
		return d.CreatedAt, true
	case "updated_at":
		return d.UpdatedAt, true
	}
	return nil, false
}
