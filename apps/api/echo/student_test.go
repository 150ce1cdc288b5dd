package echoapi_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolvax/core"
	"github.com/trezcool/schoolvax/core/drive"
	"github.com/trezcool/schoolvax/core/student"
	testutil "github.com/trezcool/schoolvax/tests"
)

func newCSVRequest(t *testing.T, token, content string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "students.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/students/import", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func TestStudentAPI_create(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, true)
	testutil.CreateStudent(t, app.stdRepo, "S-001", "Amani Otieno", "5A")

	tests := []httpTest{
		{
			name:     "non-admin",
			method:   http.MethodPost,
			path:     "/v1/students",
			body:     []byte(`{}`),
			token:    getToken(t, app.conf, false),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/v1/students",
			body:     []byte(`{"student_id": "S-002", "name": "Baraka"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"class":          "this field is required",
				"date_of_birth":  "this field is required",
				"gender":         "this field is required",
				"parent_name":    "this field is required",
				"contact_number": "this field is required",
			}),
		},
		{
			name:   "invalid fields",
			method: http.MethodPost,
			path:   "/v1/students",
			body: []byte(`{"student_id": "S-002", "name": "Baraka", "class": "5A", "date_of_birth": "2030-01-01",
				"gender": "x", "parent_name": "Mama Baraka", "contact_number": "call me"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"date_of_birth":  "date_of_birth must be a past date",
				"gender":         "gender must be one of male, female or other",
				"contact_number": "contact_number must be a valid phone number",
			}),
		},
		{
			name:   "student ID taken",
			method: http.MethodPost,
			path:   "/v1/students",
			body: []byte(`{"student_id": "S-001", "name": "Baraka", "class": "5A", "date_of_birth": "2015-01-01",
				"gender": "male", "parent_name": "Mama Baraka", "contact_number": "+254 711 222333"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": student.ErrStudentIDExists.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		body := []byte(`{"student_id": " S-002 ", "name": "Baraka", "class": "5A", "date_of_birth": "2015-01-01",
			"gender": "Male", "parent_name": "Mama Baraka", "contact_number": "+254 711 222333"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/students", token, body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var std student.Student
		unmarchallObj(t, rec.Body.Bytes(), &std)
		assert.NotEmpty(t, std.ID)
		assert.Equal(t, "S-002", std.StudentID)
		assert.Equal(t, student.GenderMale, std.Gender)
		assert.Equal(t, core.NewDate(2015, 1, 1), std.DateOfBirth)
		assert.Equal(t, student.NotVaccinated, std.VaccinationStatus)
		assert.Empty(t, std.VaccinationHistory)
	})
}

func TestStudentAPI_createMultiple(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, true)

	t.Run("not an array", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/bulk", token, []byte(`{"name": "Amani"}`))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid rows are imported", func(t *testing.T) {
		body := []byte(`[
			{"student_id": "S-001", "name": "Amani", "class": "5A", "date_of_birth": "2015-01-01",
			 "gender": "female", "parent_name": "Mama Amani", "contact_number": "+254 711 222333"},
			{"student_id": "S-002", "name": "Baraka", "class": "5A", "gender": "male",
			 "parent_name": "Mama Baraka", "contact_number": "+254 711 222444"},
			{"student_id": "S-001", "name": "Chege", "class": "5B", "date_of_birth": "2015-02-01",
			 "gender": "male", "parent_name": "Mama Chege", "contact_number": "+254 711 222555"}
		]`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/bulk", token, body)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var result student.ImportResult
		unmarchallObj(t, rec.Body.Bytes(), &result)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, 1, result.Imported)
		if assert.Len(t, result.Students, 1) {
			assert.Equal(t, "Amani", result.Students[0].Name)
		}
		assert.Equal(t, []student.ImportRowError{
			{Row: 2, Fields: map[string]string{"date_of_birth": "this field is required"}},
			{Row: 3, Fields: map[string]string{"student_id": "duplicated student ID in the import"}},
		}, result.Errors)
	})
}

func TestStudentAPI_importCSV(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, true)
	testutil.CreateStudent(t, app.stdRepo, "S-009", "Zawadi", "6A")

	t.Run("missing file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/import", token)
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "a CSV file is required"}),
		}, rec)
	})

	t.Run("missing columns", func(t *testing.T) {
		req, rec := newCSVRequest(t, token, "Student ID,Name\nS-001,Amani\n")
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"file": "missing columns: class, date_of_birth, gender, parent_name, contact_number",
			}),
		}, rec)
	})

	t.Run("rows", func(t *testing.T) {
		content := "Student ID,Name,Class,Date of Birth,Gender,Parent Name,Contact Number\n" +
			"S-001,Amani,5A,2015-01-01,female,Mama Amani,+254 711 222333\n" +
			"S-002,Baraka,5A,01/02/2015,male,Mama Baraka,+254 711 222444\n" +
			"S-009,Zawadi,6A,2014-05-05,female,Mama Zawadi,+254 711 222555\n" +
			"\n" +
			"S-003,Chege,5B,2015-03-03,male,Mama Chege,+254 711 222666\n"
		req, rec := newCSVRequest(t, token, content)
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var result student.ImportResult
		unmarchallObj(t, rec.Body.Bytes(), &result)
		assert.Equal(t, 4, result.Total)
		assert.Equal(t, 2, result.Imported)
		if assert.Len(t, result.Errors, 2) {
			assert.Equal(t, 3, result.Errors[0].Row)
			assert.Contains(t, result.Errors[0].Fields, "date_of_birth")
			assert.Equal(t, student.ImportRowError{
				Row:    4,
				Fields: map[string]string{"student_id": student.ErrStudentIDExists.Error()},
			}, result.Errors[1])
		}

		count, err := app.stdRepo.CountStudents(testContext(), nil)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestStudentAPI_query(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, false)
	drv := testutil.CreateDrive(t, app.driveRepo, "Polio", testutil.Day(-10), drive.StatusCompleted, 30, "5A")
	s1 := testutil.CreateStudent(t, app.stdRepo, "S-001", "Amani", "5A", student.VaccinationRecord{
		VaccineName: "Polio", Date: testutil.Day(-10), DoseNumber: 1, DriveID: drv.ID,
	})
	s2 := testutil.CreateStudent(t, app.stdRepo, "S-002", "Baraka", "5A")
	s3 := testutil.CreateStudent(t, app.stdRepo, "S-003", "Chege", "6B")

	list := func(pagination core.Pagination, students ...student.Student) []byte {
		if students == nil {
			students = []student.Student{}
		}
		return marchallObj(t, echo.Map{"results": students, "pagination": pagination})
	}
	one := core.Pagination{Page: 1, Limit: 1, Total: 1, Pages: 1}

	tests := []httpTest{
		{
			name:     "all, by name",
			method:   http.MethodGet,
			path:     "/v1/students",
			token:    token,
			wantCode: http.StatusOK,
			wantData: list(core.Pagination{Page: 1, Limit: 3, Total: 3, Pages: 1}, s1, s2, s3),
		},
		{
			name:     "search",
			method:   http.MethodGet,
			path:     "/v1/students?search=s-003",
			token:    token,
			wantCode: http.StatusOK,
			wantData: list(one, s3),
		},
		{
			name:     "by class",
			method:   http.MethodGet,
			path:     "/v1/students?class=5A&ordering=-name",
			token:    token,
			wantCode: http.StatusOK,
			wantData: list(core.Pagination{Page: 1, Limit: 2, Total: 2, Pages: 1}, s2, s1),
		},
		{
			name:     "vaccinated",
			method:   http.MethodGet,
			path:     "/v1/students?vaccinated=true",
			token:    token,
			wantCode: http.StatusOK,
			wantData: list(one, s1),
		},
		{
			name:     "not vaccinated, by status",
			method:   http.MethodGet,
			path:     "/v1/students?vaccination_status=not-vaccinated&limit=1",
			token:    token,
			wantCode: http.StatusOK,
			wantData: list(core.Pagination{Page: 1, Limit: 1, Total: 2, Pages: 2}, s2),
		},
		{
			name:     "vaccinated during a drive",
			method:   http.MethodGet,
			path:     "/v1/students?drive_id=" + drv.ID,
			token:    token,
			wantCode: http.StatusOK,
			wantData: list(one, s1),
		},
		{
			name:     "invalid boolean",
			method:   http.MethodGet,
			path:     "/v1/students?vaccinated=maybe",
			token:    token,
			wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, app, tests)
}

func TestStudentAPI_update(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, true)
	s1 := testutil.CreateStudent(t, app.stdRepo, "S-001", "Amani", "5A")
	testutil.CreateStudent(t, app.stdRepo, "S-002", "Baraka", "5A")

	tests := []httpTest{
		{
			name:     "student ID taken",
			method:   http.MethodPatch,
			path:     "/v1/students/" + s1.ID,
			body:     []byte(`{"student_id": "S-002"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": student.ErrStudentIDExists.Error()}),
		},
		{
			name:     "not found",
			method:   http.MethodPatch,
			path:     "/v1/students/4d0e4b1c-0000-4000-8000-000000000000",
			body:     []byte(`{"name": "Amani O."}`),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, "/v1/students/"+s1.ID, token, []byte(`{"class": "6A", "name": " Amani O. "}`))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var std student.Student
		unmarchallObj(t, rec.Body.Bytes(), &std)
		assert.Equal(t, "Amani O.", std.Name)
		assert.Equal(t, "6A", std.Class)
		assert.Equal(t, s1.StudentID, std.StudentID)
	})
}

func TestStudentAPI_recordVaccination(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, true)
	active := testutil.CreateDrive(t, app.driveRepo, "Polio", testutil.Day(0), drive.StatusInProgress, 1, "5A")
	upcoming := testutil.CreateDrive(t, app.driveRepo, "MMR", testutil.Day(20), drive.StatusScheduled, 10, "5A")
	s1 := testutil.CreateStudent(t, app.stdRepo, "S-001", "Amani", "5A")
	s2 := testutil.CreateStudent(t, app.stdRepo, "S-002", "Baraka", "5A")
	s3 := testutil.CreateStudent(t, app.stdRepo, "S-003", "Chege", "6B")

	path := func(s student.Student) string { return "/v1/students/" + s.ID + "/vaccinations" }
	body := func(d drive.Drive) []byte { return []byte(`{"drive_id": "` + d.ID + `"}`) }
	driveErr := func(err error) []byte { return marchallObj(t, map[string]string{"drive_id": err.Error()}) }

	tests := []httpTest{
		{
			name:     "missing drive",
			method:   http.MethodPost,
			path:     path(s1),
			body:     []byte(`{}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"drive_id": "this field is required"}),
		},
		{
			name:     "drive not in progress",
			method:   http.MethodPost,
			path:     path(s1),
			body:     body(upcoming),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: driveErr(drive.ErrNotInProgress),
		},
		{
			name:     "class not eligible",
			method:   http.MethodPost,
			path:     path(s3),
			body:     body(active),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: driveErr(student.ErrClassNotEligible),
		},
		{
			name:     "recorded",
			method:   http.MethodPost,
			path:     path(s1),
			body:     body(active),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "already vaccinated",
			method:   http.MethodPost,
			path:     path(s1),
			body:     body(active),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: driveErr(student.ErrAlreadyVaccinated),
		},
		{
			name:     "no doses left",
			method:   http.MethodPost,
			path:     path(s2),
			body:     body(active),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: driveErr(drive.ErrNoDosesLeft),
		},
	}
	runHTTPTests(t, app, tests)

	std, err := app.stdRepo.GetStudentByID(testContext(), s1.ID)
	require.NoError(t, err)
	assert.Equal(t, student.PartiallyVaccinated, std.VaccinationStatus)
	assert.Equal(t, []student.VaccinationRecord{
		{VaccineName: "Polio", Date: testutil.Day(0), DoseNumber: 1, DriveID: active.ID},
	}, std.VaccinationHistory)

	drv, err := app.driveRepo.GetDriveByID(testContext(), active.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, drv.VaccinatedCount)
}

func TestStudentAPI_destroy(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, true)
	s1 := testutil.CreateStudent(t, app.stdRepo, "S-001", "Amani", "5A")
	s2 := testutil.CreateStudent(t, app.stdRepo, "S-002", "Baraka", "5A")
	s3 := testutil.CreateStudent(t, app.stdRepo, "S-003", "Chege", "5A")

	tests := []httpTest{
		{
			name:     "one",
			method:   http.MethodDelete,
			path:     "/v1/students/" + s1.ID,
			token:    token,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "one, not found",
			method:   http.MethodDelete,
			path:     "/v1/students/" + s1.ID,
			token:    token,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "many",
			method:   http.MethodDelete,
			path:     "/v1/students",
			body:     []byte(`{"ids": ["` + s2.ID + `", "` + s3.ID + `"]}`),
			token:    token,
			wantCode: http.StatusNoContent,
		},
	}
	runHTTPTests(t, app, tests)

	count, err := app.stdRepo.CountStudents(testContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
