package student

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolvax/core"
)

func TestParseCSV(t *testing.T) {
	doc := "\ufeffRoll No, Student Name,CLASS,D.O.B,Sex,Guardian Name,Phone\n" +
		"S-001,Amina Yusuf,5A,2015-03-10,female,Halima Yusuf,+254 700 000001\n" +
		"\n" +
		"S-002,Brian Otieno,5B,10/03/2015,male,Peter Otieno,+254 700 000002\n" +
		"S-003,\"Chebet, Faith\",6A,,female,Ruth Chebet,0700000003\n"

	rows, rowErrs, err := ParseCSV(strings.NewReader(doc))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Row)
	assert.Equal(t, NewStudent{
		StudentID:     "S-001",
		Name:          "Amina Yusuf",
		Class:         "5A",
		DateOfBirth:   core.NewDate(2015, time.March, 10).Ptr(),
		Gender:        GenderFemale,
		ParentName:    "Halima Yusuf",
		ContactNumber: "+254 700 000001",
	}, rows[0].Student)
	assert.Equal(t, 5, rows[1].Row)
	assert.Equal(t, "Chebet, Faith", rows[1].Student.Name)
	assert.Nil(t, rows[1].Student.DateOfBirth)

	require.Len(t, rowErrs, 1)
	assert.Equal(t, 4, rowErrs[0].Row)
	assert.Contains(t, rowErrs[0].Fields, "date_of_birth")
}

func TestParseCSV_errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{name: "empty", doc: "", wantMsg: "the file is empty"},
		{
			name:    "missing columns",
			doc:     "student_id,name,class\nS-001,Amina,5A\n",
			wantMsg: "missing columns: date_of_birth, gender, parent_name, contact_number",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseCSV(strings.NewReader(tt.doc))
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("ParseCSV() error = %v, want *core.ValidationError", err)
			}
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, "file", vErr.Fields[0].Field)
			assert.Equal(t, tt.wantMsg, vErr.Fields[0].Error)
		})
	}
}

func TestParseCSV_tooManyRows(t *testing.T) {
	max := MaxImportRows
	MaxImportRows = 2
	defer func() { MaxImportRows = max }()

	doc := "student_id,name,class,date_of_birth,gender,parent_name,contact_number\n" +
		"S-1,A,5A,2015-01-01,male,P,0700000001\n" +
		"S-2,B,5A,2015-01-01,male,P,0700000002\n" +
		"S-3,C,5A,2015-01-01,male,P,0700000003\n"
	_, _, err := ParseCSV(strings.NewReader(doc))
	assert.EqualError(t, err, "too many rows, the maximum is 2")
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Student ID", want: "studentid"},
		{header: " date_of_birth ", want: "dateofbirth"},
		{header: "D.O.B", want: "dob"},
		{header: "Contact-Number", want: "contactnumber"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := normalizeHeader(tt.header); got != tt.want {
				t.Errorf("normalizeHeader() = %v, want %v", got, tt.want)
			}
		})
	}
}
