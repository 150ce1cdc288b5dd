package student

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolvax/core"
)

// MaxImportRows caps the number of rows accepted by a single import.
var MaxImportRows = 5000

type csvColumn int

const (
	colStudentID csvColumn = iota
	colName
	colClass
	colDateOfBirth
	colGender
	colParentName
	colContactNumber
)

// csvHeaders maps normalized header names (lower case, letters and digits only) to their column.
var csvHeaders = map[string]csvColumn{
	"studentid":     colStudentID,
	"rollno":        colStudentID,
	"rollnumber":    colStudentID,
	"id":            colStudentID,
	"name":          colName,
	"studentname":   colName,
	"fullname":      colName,
	"class":         colClass,
	"grade":         colClass,
	"dateofbirth":   colDateOfBirth,
	"dob":           colDateOfBirth,
	"birthdate":     colDateOfBirth,
	"gender":        colGender,
	"sex":           colGender,
	"parentname":    colParentName,
	"parent":        colParentName,
	"guardianname":  colParentName,
	"contactnumber": colContactNumber,
	"contact":       colContactNumber,
	"phone":         colContactNumber,
	"phonenumber":   colContactNumber,
}

var csvColumnFields = map[csvColumn]string{
	colStudentID:     "student_id",
	colName:          "name",
	colClass:         "class",
	colDateOfBirth:   "date_of_birth",
	colGender:        "gender",
	colParentName:    "parent_name",
	colContactNumber: "contact_number",
}

func normalizeHeader(h string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, h)
}

// ParseCSV reads students from a CSV document whose first line holds the column names.
// Rows that cannot be decoded are reported with their line number; field validation is left to the service.
func ParseCSV(r io.Reader) ([]ImportRow, []ImportRowError, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if err == io.EOF {
		return nil, nil, fileError("the file is empty")
	}
	if err != nil {
		return nil, nil, fileError(errors.Wrap(err, "reading csv header").Error())
	}

	columns := make(map[csvColumn]int, len(csvColumnFields))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff") // BOM
		}
		if col, ok := csvHeaders[normalizeHeader(h)]; ok {
			if _, dup := columns[col]; !dup {
				columns[col] = i
			}
		}
	}
	var missing []string
	for col := colStudentID; col <= colContactNumber; col++ {
		if _, ok := columns[col]; !ok {
			missing = append(missing, csvColumnFields[col])
		}
	}
	if len(missing) > 0 {
		return nil, nil, fileError("missing columns: " + strings.Join(missing, ", "))
	}

	var (
		rows    []ImportRow
		rowErrs []ImportRowError
	)
	for {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if pErr, ok := err.(*csv.ParseError); ok {
				rowErrs = append(rowErrs, ImportRowError{Row: pErr.Line, Fields: map[string]string{"row": pErr.Err.Error()}})
				continue
			}
			return nil, nil, errors.Wrap(err, "reading csv")
		}
		if len(rows)+len(rowErrs) >= MaxImportRows {
			return nil, nil, fileError("too many rows, the maximum is " + strconv.Itoa(MaxImportRows))
		}
		if isBlank(record) {
			continue
		}
		line, _ := rdr.FieldPos(0)

		get := func(col csvColumn) string {
			if idx := columns[col]; idx < len(record) {
				return core.CleanString(record[idx])
			}
			return ""
		}
		ns := NewStudent{
			StudentID:     get(colStudentID),
			Name:          get(colName),
			Class:         get(colClass),
			Gender:        Gender(get(colGender)),
			ParentName:    get(colParentName),
			ContactNumber: get(colContactNumber),
		}
		if dob := get(colDateOfBirth); dob != "" {
			date, err := core.ParseDate(dob)
			if err != nil {
				rowErrs = append(rowErrs, ImportRowError{Row: line, Fields: map[string]string{"date_of_birth": err.Error()}})
				continue
			}
			ns.DateOfBirth = &date
		}
		rows = append(rows, ImportRow{Row: line, Student: ns})
	}
	return rows, rowErrs, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fileError(msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: "file", Error: msg})
}
