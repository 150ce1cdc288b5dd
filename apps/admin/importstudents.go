package main

import (
	"context"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/student"
)

// importStudents creates the valid students of the CSV file at `path` and reports the rejected rows.
func (cli *commandLine) importStudents(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer f.Close()

	rows, rowErrs, err := student.ParseCSV(f)
	if err != nil {
		return cli.fieldsError(err)
	}
	result, err := cli.studentSvc.Import(context.Background(), rows)
	if err != nil {
		return cli.fieldsError(err)
	}
	result.Errors = append(rowErrs, result.Errors...)
	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })

	cli.printf("imported %d of %d students\n", result.Imported, result.Total+len(rowErrs))
	for _, rowErr := range result.Errors {
		fields := make([]string, 0, len(rowErr.Fields))
		for fld := range rowErr.Fields {
			fields = append(fields, fld)
		}
		sort.Strings(fields)
		for _, fld := range fields {
			cli.printf("  line %d: %s: %s\n", rowErr.Row, fld, rowErr.Fields[fld])
		}
	}
	return nil
}

// fieldsError flattens validation errors into a single readable error.
func (cli *commandLine) fieldsError(err error) error {
	fields := core.TranslateErrors(err, cli.translator)
	if fields == nil {
		return err
	}
	if msg, ok := fields["file"]; ok {
		return errors.New(msg)
	}
	return err
}
