package result_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/catalog"
	"github.com/cadence-academy/backend/core/grading"
	. "github.com/cadence-academy/backend/core/result"
	"github.com/cadence-academy/backend/core/user"
	emailsvc "github.com/cadence-academy/backend/services/email"
	dummydb "github.com/cadence-academy/backend/storage/database/dummy"
	"github.com/cadence-academy/backend/tests"
)

type fixture struct {
	svc           *Service
	repo          Repository
	teacher       user.User
	alice, bob    user.User
	math, english catalog.Subject
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := testutil.NewConfig()
	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	catalogRepo := dummydb.NewCatalogRepository(db)
	repo := dummydb.NewResultRepository(db)

	catSvc := catalog.NewService(catalogRepo, usrRepo)
	usrSvc := user.NewService(usrRepo, catSvc, emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf)), conf)
	return fixture{
		svc:     NewService(repo, usrSvc, catSvc),
		repo:    repo,
		teacher: testutil.CreateUser(t, usrRepo, "teacher", "teacher@test.cd", "", user.RoleTeacher, true),
		alice:   testutil.CreateUser(t, usrRepo, "alice", "alice@test.cd", "", user.RoleStudent, true),
		bob:     testutil.CreateUser(t, usrRepo, "bob", "bob@test.cd", "", user.RoleStudent, true),
		math:    testutil.CreateSubject(t, catalogRepo, "Mathematics", "MTH101"),
		english: testutil.CreateSubject(t, catalogRepo, "English", "ENG101"),
	}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want a *core.ValidationError, got %v", err)
	flds := make(map[string]string, len(vErr.Fields))
	for _, fld := range vErr.Fields {
		flds[fld.Field] = fld.Error
	}
	return flds
}

func TestNewResult_Validate(t *testing.T) {
	validate := testutil.NewValidator(testutil.NewTranslator())
	tests := []struct {
		name string
		nr   NewResult
		want map[string]string
	}{
		{"valid", NewResult{StudentID: 1, SubjectID: 1, FirstTestScore: dec("999.99"), ExamScore: dec("-12.5")}, nil},
		{"decimal places", NewResult{StudentID: 1, SubjectID: 1, SecondTestScore: dec("1.001")},
			map[string]string{"second_test_score": "ensure that there are no more than 2 decimal places"}},
		{"digits", NewResult{StudentID: 1, SubjectID: 1, FirstTestScore: dec("1000"), ExamScore: dec("-1000.5")},
			map[string]string{
				"first_test_score": "ensure that there are no more than 5 digits in total",
				"exam_score":       "ensure that there are no more than 5 digits in total",
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nr.Validate(validate)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, fieldErrors(t, err))
		})
	}
}

func TestService_CreateUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, NewResult{StudentID: f.teacher.ID, SubjectID: f.math.ID})
	assert.Equal(t, map[string]string{"student_id": "user 1 is not a student"}, fieldErrors(t, err))
	_, err = f.svc.Create(ctx, NewResult{StudentID: f.alice.ID, SubjectID: 42})
	assert.Equal(t, map[string]string{"subject_id": `invalid pk "42" - object does not exist`}, fieldErrors(t, err))

	det, err := f.svc.Create(ctx, NewResult{
		StudentID:       f.alice.ID,
		SubjectID:       f.math.ID,
		FirstTestScore:  dec("18.25"),
		SecondTestScore: dec("17"),
		ExamScore:       dec("44.75"),
	})
	require.NoError(t, err)
	assert.Equal(t, f.alice.Summary(), det.Student)
	assert.Equal(t, f.math, det.Subject)
	assert.Equal(t, "80.00", det.TotalScore)
	assert.Equal(t, grading.GradeB, det.Grade)
	assert.Equal(t, "Upper Credit", det.Remark)

	_, err = f.svc.Create(ctx, NewResult{StudentID: f.alice.ID, SubjectID: f.math.ID})
	assert.ErrorIs(t, err, ErrResultExists)

	updated, err := f.svc.Update(ctx, det.ID, UpdateResult{ExamScore: dec("34.74")})
	require.NoError(t, err)
	assert.Equal(t, "18.25", updated.FirstTestScore)
	assert.Equal(t, "69.99", updated.TotalScore)
	assert.Equal(t, grading.GradeD, updated.Grade)
	assert.True(t, det.DateRecorded.Equal(updated.DateRecorded))

	stored, err := f.repo.GetResult(ctx, det.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExamScore.Equal(decimal.RequireFromString("34.74")))

	// moving onto a taken pair
	other, err := f.svc.Create(ctx, NewResult{StudentID: f.bob.ID, SubjectID: f.math.ID})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, other.ID, UpdateResult{StudentID: &f.alice.ID})
	assert.ErrorIs(t, err, ErrResultExists)

	_, err = f.svc.Update(ctx, 99, UpdateResult{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_QueryDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	create := func(student user.User, subject catalog.Subject) Detail {
		det, err := f.svc.Create(ctx, NewResult{StudentID: student.ID, SubjectID: subject.ID, ExamScore: dec("50")})
		require.NoError(t, err)
		return det
	}
	r1, r2, r3 := create(f.alice, f.math), create(f.bob, f.math), create(f.alice, f.english)

	ids := func(details []Detail) []int {
		got := make([]int, 0, len(details))
		for _, det := range details {
			got = append(got, det.ID)
		}
		return got
	}

	tests := []struct {
		name   string
		filter QueryFilter
		ords   []core.DBOrdering
		want   []int
	}{
		{"all", QueryFilter{}, nil, []int{r1.ID, r2.ID, r3.ID}},
		{"student", QueryFilter{StudentID: f.alice.ID}, nil, []int{r1.ID, r3.ID}},
		{"subject", QueryFilter{SubjectID: f.math.ID}, nil, []int{r1.ID, r2.ID}},
		{"both", QueryFilter{StudentID: f.bob.ID, SubjectID: f.english.ID}, nil, []int{}},
		{"id desc", QueryFilter{}, []core.DBOrdering{{Field: "id"}}, []int{r3.ID, r2.ID, r1.ID}},
		{"unknown field", QueryFilter{}, []core.DBOrdering{{Field: "exam_score"}}, []int{r1.ID, r2.ID, r3.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details, err := f.svc.Query(ctx, tt.filter, tt.ords...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(details))
		})
	}

	details, err := f.svc.Query(ctx, QueryFilter{StudentID: f.bob.ID})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, f.bob.Summary(), details[0].Student)
	assert.Equal(t, f.math, details[0].Subject)
	assert.Equal(t, "0.00", details[0].FirstTestScore)

	require.NoError(t, f.svc.Delete(ctx, r2.ID))
	_, err = f.svc.Get(ctx, r2.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, r2.ID), ErrNotFound)
}
