package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/kat-co/vala"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/student"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf       *core.Config
	out        io.Writer
	db         *sqlx.DB // nil with the in-memory storage
	studentSvc *student.Service
	validate   *validator.Validate
	translator ut.Translator
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)\n")
	cli.printf("  issuetoken -subject ID [-name NAME] [-admin] [-expires DURATION] - issue an API token for a coordinator\n")
	cli.printf("  importstudents -file PATH - import students from a CSV file\n")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	issueTokenCmd := flag.NewFlagSet("issuetoken", flag.ExitOnError)
	issueTokenCmd.SetOutput(cli.out)
	tokenSubject := issueTokenCmd.String("subject", "", "The coordinator reference carried by the token.")
	tokenName := issueTokenCmd.String("name", "", "The coordinator's display name.")
	tokenAdmin := issueTokenCmd.Bool("admin", false, "Allow the token to change drives and students.")
	tokenExpires := issueTokenCmd.Duration("expires", cli.conf.Server.JWTExpirationDelta, "The token lifetime.")

	importCmd := flag.NewFlagSet("importstudents", flag.ExitOnError)
	importCmd.SetOutput(cli.out)
	importFile := importCmd.String("file", "", "The CSV file holding the students, with a header line.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "issuetoken":
		if err := issueTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := vala.BeginValidation().Validate(
			vala.StringNotEmpty(core.CleanString(*tokenSubject), "subject"),
			vala.GreaterThan(int(tokenExpires.Seconds()), 0, "expires"),
		).Check(); err != nil {
			cli.printf("%v\n", err)
			issueTokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(core.CleanString(*tokenSubject), core.CleanString(*tokenName), *tokenAdmin, *tokenExpires)
	case "importstudents":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := vala.BeginValidation().Validate(
			vala.StringNotEmpty(*importFile, "file"),
		).Check(); err != nil {
			cli.printf("%v\n", err)
			importCmd.Usage()
			return errHelp
		}
		return cli.importStudents(*importFile)
	default:
		cli.printUsage()
		return errHelp
	}
}
