package echoapi_test

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadence-academy/backend/core/catalog"
	"github.com/cadence-academy/backend/core/grading"
	"github.com/cadence-academy/backend/core/result"
	"github.com/cadence-academy/backend/core/user"
	"github.com/cadence-academy/backend/tests"
)

type resultFixture struct {
	*testApp
	token         string
	teacher       user.User
	alice, bob    user.User
	math, english catalog.Subject
}

func newResultFixture(t *testing.T) resultFixture {
	app := newTestApp(t)
	teacher := app.createUser(t, "teacher", user.RoleTeacher)
	return resultFixture{
		testApp: app,
		token:   app.getToken(t, teacher),
		teacher: teacher,
		alice:   app.createUser(t, "alice", user.RoleStudent),
		bob:     app.createUser(t, "bob", user.RoleStudent),
		math:    testutil.CreateSubject(t, app.catalogRepo, "Mathematics", "MTH101"),
		english: testutil.CreateSubject(t, app.catalogRepo, "English", "ENG101"),
	}
}

// mustServe serves tt, checks its status code & decodes the response into v.
func (f resultFixture) mustServe(t *testing.T, tt httpTest, v interface{}) {
	t.Helper()
	tt.token = f.token
	rec := f.serve(tt)
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	if v != nil {
		decode(t, rec, v)
	}
}

func (f resultFixture) create(t *testing.T, student user.User, subject catalog.Subject, first, second, exam string) result.Detail {
	t.Helper()
	var det result.Detail
	f.mustServe(t, httpTest{
		method: http.MethodPost, path: "/api/results", wantCode: http.StatusCreated,
		body: []byte(`{"student_id": ` + strconv.Itoa(student.ID) + `, "subject_id": ` + strconv.Itoa(subject.ID) +
			`, "first_test_score": ` + first + `, "second_test_score": ` + second + `, "exam_score": ` + exam + `}`),
	}, &det)
	return det
}

func resultIDs(details []result.Detail) []int {
	ids := make([]int, 0, len(details))
	for _, det := range details {
		ids = append(ids, det.ID)
	}
	return ids
}

func Test_resultApi_create(t *testing.T) {
	f := newResultFixture(t)

	f.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/results", body: []byte(`{}`), wantCode: http.StatusUnauthorized},
		{name: "missing refs", method: http.MethodPost, path: "/api/results", token: f.token, body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": "this field is required", "subject_id": "this field is required"})},
		{
			name: "too many decimals", method: http.MethodPost, path: "/api/results", token: f.token,
			body:     []byte(`{"student_id": 2, "subject_id": 1, "first_test_score": 10.555, "exam_score": 1000}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"first_test_score": "ensure that there are no more than 2 decimal places",
				"exam_score":       "ensure that there are no more than 5 digits in total",
			}),
		},
		{name: "not a student", method: http.MethodPost, path: "/api/results", token: f.token, body: []byte(`{"student_id": 1, "subject_id": 1}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_id": "user 1 is not a student"})},
		{name: "unknown student", method: http.MethodPost, path: "/api/results", token: f.token, body: []byte(`{"student_id": 42, "subject_id": 1}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_id": `invalid pk "42" - object does not exist`})},
		{name: "unknown subject", method: http.MethodPost, path: "/api/results", token: f.token, body: []byte(`{"student_id": 2, "subject_id": 9}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"subject_id": `invalid pk "9" - object does not exist`})},
	})

	det := f.create(t, f.alice, f.math, "15", `"20.5"`, "55")
	assert.Equal(t, 1, det.ID)
	assert.Equal(t, f.alice.Summary(), det.Student)
	assert.Equal(t, f.math, det.Subject)
	assert.Equal(t, "15.00", det.FirstTestScore)
	assert.Equal(t, "20.50", det.SecondTestScore)
	assert.Equal(t, "55.00", det.ExamScore)
	assert.Equal(t, "90.50", det.TotalScore)
	assert.Equal(t, grading.GradeA, det.Grade)
	assert.Equal(t, "Distinction", det.Remark)
	assert.False(t, det.DateRecorded.IsZero())

	// missing scores default to 0
	det = f.create(t, f.bob, f.math, "null", "null", "59.99")
	assert.Equal(t, "0.00", det.FirstTestScore)
	assert.Equal(t, "59.99", det.TotalScore)
	assert.Equal(t, grading.GradeF, det.Grade)
	assert.Equal(t, "Fail", det.Remark)

	f.run(t, []httpTest{{
		name: "duplicate", method: http.MethodPost, path: "/api/results", token: f.token,
		body:     []byte(`{"student_id": 2, "subject_id": 1, "exam_score": 10}`),
		wantCode: http.StatusConflict,
		wantData: marchallObj(t, httpErr{Detail: "a result for this student and subject already exists"}),
	}})
}

func Test_resultApi_update(t *testing.T) {
	f := newResultFixture(t)
	orig := f.create(t, f.alice, f.math, "15", "20", "55")
	f.create(t, f.bob, f.math, "10", "10", "10")
	path := "/api/results/" + strconv.Itoa(orig.ID)

	var det result.Detail
	f.mustServe(t, httpTest{method: http.MethodPatch, path: path, body: []byte(`{"exam_score": 30}`)}, &det)
	assert.Equal(t, "15.00", det.FirstTestScore)
	assert.Equal(t, "30.00", det.ExamScore)
	assert.Equal(t, "65.00", det.TotalScore)
	assert.Equal(t, grading.GradeD, det.Grade)
	assert.Equal(t, "Pass", det.Remark)
	assert.True(t, orig.DateRecorded.Equal(det.DateRecorded))

	f.mustServe(t, httpTest{method: http.MethodPatch, path: path, body: []byte(`{"second_test_score": 35, "exam_score": 40}`)}, &det)
	assert.Equal(t, "90.00", det.TotalScore)
	assert.Equal(t, grading.GradeA, det.Grade)

	// a full update resets the omitted scores
	f.mustServe(t, httpTest{method: http.MethodPut, path: path, body: []byte(`{"student_id": 2, "subject_id": 2, "exam_score": 72}`)}, &det)
	assert.Equal(t, f.english, det.Subject)
	assert.Equal(t, "0.00", det.FirstTestScore)
	assert.Equal(t, "0.00", det.SecondTestScore)
	assert.Equal(t, "72.00", det.TotalScore)
	assert.Equal(t, grading.GradeC, det.Grade)
	assert.Equal(t, "Lower Credit", det.Remark)

	f.run(t, []httpTest{
		{name: "put: refs required", method: http.MethodPut, path: path, token: f.token, body: []byte(`{"exam_score": 72}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": "this field is required", "subject_id": "this field is required"})},
		{name: "patch: bad score", method: http.MethodPatch, path: path, token: f.token, body: []byte(`{"exam_score": 12.345}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"exam_score": "ensure that there are no more than 2 decimal places"})},
		{name: "patch: taken pair", method: http.MethodPatch, path: path, token: f.token, body: []byte(`{"student_id": 3, "subject_id": 1}`), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Detail: "a result for this student and subject already exists"})},
		{name: "patch: teacher as student", method: http.MethodPatch, path: path, token: f.token, body: []byte(`{"student_id": 1}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": "user 1 is not a student"})},
		{name: "patch: unknown", method: http.MethodPatch, path: "/api/results/99", token: f.token, body: []byte(`{}`), wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Detail: "result not found"})},
	})
}

func Test_resultApi_queryDelete(t *testing.T) {
	f := newResultFixture(t)
	r1 := f.create(t, f.alice, f.math, "10", "10", "10")
	r2 := f.create(t, f.bob, f.math, "10", "10", "10")
	r3 := f.create(t, f.alice, f.english, "10", "10", "10")

	tests := []struct {
		name    string
		query   string
		wantIDs []int
	}{
		{"all", "", []int{r1.ID, r2.ID, r3.ID}},
		{"by student", "?student=" + strconv.Itoa(f.alice.ID), []int{r1.ID, r3.ID}},
		{"by subject", "?subject=" + strconv.Itoa(f.math.ID), []int{r1.ID, r2.ID}},
		{"by student & subject", "?student=" + strconv.Itoa(f.alice.ID) + "&subject=" + strconv.Itoa(f.english.ID), []int{r3.ID}},
		{"no match", "?student=" + strconv.Itoa(f.teacher.ID), []int{}},
		{"descending", "?ordering=-id", []int{r3.ID, r2.ID, r1.ID}},
		{"unknown ordering ignored", "?ordering=grade", []int{r1.ID, r2.ID, r3.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var details []result.Detail
			f.mustServe(t, httpTest{path: "/api/results" + tt.query}, &details)
			assert.Equal(t, tt.wantIDs, resultIDs(details))
		})
	}

	path := "/api/results/" + strconv.Itoa(r1.ID)
	f.run(t, []httpTest{
		{name: "bad filter", path: "/api/results?student=alice", token: f.token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student": "A valid integer is required."})},
		{name: "retrieve", path: path, token: f.token},
		{name: "delete", method: http.MethodDelete, path: path, token: f.token, wantCode: http.StatusNoContent},
		{name: "retrieve: gone", path: path, token: f.token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Detail: "result not found"})},
		{name: "delete: gone", method: http.MethodDelete, path: path, token: f.token, wantCode: http.StatusNotFound},
	})

	// deleting a subject drops its results
	f.mustServe(t, httpTest{method: http.MethodDelete, path: "/api/subjects/" + strconv.Itoa(f.math.ID), wantCode: http.StatusNoContent}, nil)
	var details []result.Detail
	f.mustServe(t, httpTest{path: "/api/results"}, &details)
	assert.Equal(t, []int{r3.ID}, resultIDs(details))
}
