package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
	logsvc "github.com/trezcool/schoolvax/services/logger"
	"github.com/trezcool/schoolvax/storage/database"
	inmemdb "github.com/trezcool/schoolvax/storage/database/inmem"
	sqlxrepos "github.com/trezcool/schoolvax/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	drive.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	cli := commandLine{
		conf:       conf,
		out:        os.Stdout,
		validate:   validate,
		translator: translator,
	}

	// set up storage
	var (
		uow      core.UnitOfWork
		drives   drive.Repository
		students student.Repository
	)
	if conf.Storage == "memory" {
		db := inmemdb.Open()
		uow, drives, students = inmemdb.NewUnitOfWork(db), inmemdb.NewDriveRepository(db), inmemdb.NewStudentRepository(db)
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer db.Close()
		cli.db = db
		uow, drives, students = sqlxrepos.NewUnitOfWork(db), sqlxrepos.NewDriveRepository(db), sqlxrepos.NewStudentRepository(db)
	}
	cli.studentSvc = student.NewService(uow, students, drives, validate, translator, conf)

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
