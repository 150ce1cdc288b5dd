package dig_container

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/schoolvax/apps/api/echo"
	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/dashboard"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
	emailsvc "github.com/trezcool/schoolvax/services/email"
	logsvc "github.com/trezcool/schoolvax/services/logger"
	schedulersvc "github.com/trezcool/schoolvax/services/scheduler"
	"github.com/trezcool/schoolvax/storage/database"
	inmemdb "github.com/trezcool/schoolvax/storage/database/inmem"
	sqlxrepos "github.com/trezcool/schoolvax/storage/database/sqlx"
)

const memoryStorage = "memory"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// StorageResult holds the repositories of the configured storage.
type StorageResult struct {
	dig.Out
	UnitOfWork core.UnitOfWork
	Drives     drive.Repository
	Students   student.Repository
	Closer     io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) StorageResult {
	if conf.Storage == memoryStorage {
		loggerParam.Logger.Warn("using the in-memory storage: data is lost on shutdown")
		db := inmemdb.Open()
		return StorageResult{
			UnitOfWork: inmemdb.NewUnitOfWork(db),
			Drives:     inmemdb.NewDriveRepository(db),
			Students:   inmemdb.NewStudentRepository(db),
			Closer:     closerFunc(func() error { return nil }),
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return StorageResult{
		UnitOfWork: sqlxrepos.NewUnitOfWork(db),
		Drives:     sqlxrepos.NewDriveRepository(db),
		Students:   sqlxrepos.NewStudentRepository(db),
		Closer:     db,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newScheduler(conf *core.Config, logger core.Logger, driveSvc *drive.Service) *schedulersvc.Scheduler {
	return schedulersvc.NewScheduler(conf, logger, driveSvc)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(drive.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(dashboard.NewService))
	must(c.Provide(newScheduler))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
