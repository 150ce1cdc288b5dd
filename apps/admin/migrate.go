package main

import (
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/schoolvax/storage/database"
)

var gooseRunFunc database.MigrateFunc = goose.Run // mockable

var errNoDatabase = errors.New("migrations need the postgres storage")

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return database.RunMigrations(gooseRunFunc, cli.db, args[0], args[1:]...)
}
