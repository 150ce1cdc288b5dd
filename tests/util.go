package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
	appfs "github.com/trezcool/schoolvax/fs"
	logsvc "github.com/trezcool/schoolvax/services/logger"
)

// Now is the frozen clock of the tests: 2025-06-01 09:30 UTC.
var Now = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.Storage = "memory"
	conf.SecretKey = "secret"
	conf.NotifyEmails = []mail.Address{{Name: "Nurse", Address: "nurse@school.test"}}
	conf.Drive.MinNoticeDays = 15
	conf.Drive.RecheckNoticeOnEdit = true
	conf.Drive.Timezone = "UTC"
	return conf
}

// NewLogger returns a logger writing nowhere, with error reporting disabled.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with every app validator registered, and its translator.
func NewValidator(t *testing.T) (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	drive.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true); err != nil {
		t.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	return validate, translator
}

// FreezeTime sets every NowFunc to Now until the test ends.
func FreezeTime(t *testing.T) {
	drvNow, stdNow := drive.NowFunc, student.NowFunc
	now := func() time.Time { return Now }
	drive.NowFunc, student.NowFunc = now, now
	t.Cleanup(func() {
		drive.NowFunc, student.NowFunc = drvNow, stdNow
	})
}

// Day returns the calendar date `days` days after Now.
func Day(days int) core.Date {
	return core.DateOf(Now).AddDays(days)
}

func CreateDrive(
	t *testing.T,
	repo drive.Repository,
	vaccine string,
	date core.Date,
	status drive.Status,
	doses int,
	classes ...string,
) drive.Drive {
	drv, err := repo.CreateDrive(context.Background(), drive.Drive{
		VaccineName:       vaccine,
		ScheduledDate:     date,
		AvailableDoses:    doses,
		ApplicableClasses: core.CleanStrings(classes),
		Status:            status,
		Coordinator:       "nurse-1",
		CreatedAt:         Now,
		UpdatedAt:         Now,
	})
	if err != nil {
		t.Fatalf("CreateDrive() failed: %v", err)
	}
	return drv
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	studentID, name, class string,
	history ...student.VaccinationRecord,
) student.Student {
	status := student.NotVaccinated
	if len(history) > 0 {
		status = student.PartiallyVaccinated
	}
	created, err := repo.CreateStudents(context.Background(), []student.Student{{
		StudentID:          studentID,
		Name:               name,
		Class:              class,
		DateOfBirth:        core.NewDate(2015, time.March, 10),
		Gender:             student.GenderFemale,
		ParentName:         "Parent of " + name,
		ContactNumber:      "+254 700 000000",
		VaccinationStatus:  status,
		VaccinationHistory: history,
		CreatedAt:          Now,
		UpdatedAt:          Now,
	}})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return created[0]
}
