package result

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/catalog"
	"github.com/cadence-academy/backend/core/user"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("result not found")
	ErrResultExists = core.NewConflictError("a result for this student and subject already exists")

	// orderings
	OrderingFields = []string{"id", "date_recorded"}
)

type (
	Repository interface {
		CreateResult(ctx context.Context, res Result) (Result, error) // ErrResultExists
		GetResult(ctx context.Context, id int) (Result, error)
		QueryResults(ctx context.Context, filter QueryFilter, ords ...core.DBOrdering) ([]Result, error) // ordered by ID by default
		UpdateResult(ctx context.Context, res Result) (Result, error) // ErrResultExists
		DeleteResult(ctx context.Context, id int) error
	}

	UserFinder interface {
		GetByID(ctx context.Context, id int) (user.User, error)
		QueryByIDs(ctx context.Context, ids ...int) ([]user.User, error)
	}

	SubjectFinder interface {
		GetSubject(ctx context.Context, id int) (catalog.Subject, error)
		QuerySubjects(ctx context.Context, ids ...int) ([]catalog.Subject, error)
	}

	Service struct {
		repo     Repository
		users    UserFinder
		subjects SubjectFinder
	}
)

func NewService(repo Repository, users UserFinder, subjects SubjectFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(subjects, "subjects"),
	).CheckAndPanic()

	return &Service{repo: repo, users: users, subjects: subjects}
}

func (svc *Service) Create(ctx context.Context, nr NewResult) (Detail, error) {
	var res Result
	nr.FullUpdate().apply(&res)
	student, subject, err := svc.checkRefs(ctx, res)
	if err != nil {
		return Detail{}, err
	}

	res.DateRecorded = time.Now().UTC()
	if res, err = svc.repo.CreateResult(ctx, res); err != nil {
		return Detail{}, errors.Wrap(err, "creating result")
	}
	return NewDetail(res, student, subject), nil
}

func (svc *Service) Get(ctx context.Context, id int) (Detail, error) {
	res, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	student, err := svc.users.GetByID(ctx, res.StudentID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "finding student")
	}
	subject, err := svc.subjects.GetSubject(ctx, res.SubjectID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "finding subject")
	}
	return NewDetail(res, student, subject), nil
}

// Query returns the results matching filter. Unknown ordering fields are ignored.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, ords ...core.DBOrdering) ([]Detail, error) {
	results, err := svc.repo.QueryResults(ctx, filter, core.AllowedOrderings(ords, OrderingFields...)...)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	if len(results) == 0 {
		return []Detail{}, nil
	}

	studentIDs := make([]int, 0, len(results))
	subjectIDs := make([]int, 0, len(results))
	for _, res := range results {
		studentIDs = append(studentIDs, res.StudentID)
		subjectIDs = append(subjectIDs, res.SubjectID)
	}

	students, err := svc.users.QueryByIDs(ctx, studentIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	studentByID := make(map[int]user.User, len(students))
	for _, usr := range students {
		studentByID[usr.ID] = usr
	}

	subjects, err := svc.subjects.QuerySubjects(ctx, subjectIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjectByID := make(map[int]catalog.Subject, len(subjects))
	for _, sub := range subjects {
		subjectByID[sub.ID] = sub
	}

	details := make([]Detail, 0, len(results))
	for _, res := range results {
		details = append(details, NewDetail(res, studentByID[res.StudentID], subjectByID[res.SubjectID]))
	}
	return details, nil
}

func (svc *Service) Update(ctx context.Context, id int, ur UpdateResult) (Detail, error) {
	res, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	ur.apply(&res)
	student, subject, err := svc.checkRefs(ctx, res)
	if err != nil {
		return Detail{}, err
	}
	if res, err = svc.repo.UpdateResult(ctx, res); err != nil {
		return Detail{}, errors.Wrap(err, "updating result")
	}
	return NewDetail(res, student, subject), nil
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteResult(ctx, id)
}

// checkRefs returns the student & subject of res, ensuring the student holds the student role.
func (svc *Service) checkRefs(ctx context.Context, res Result) (user.User, catalog.Subject, error) {
	student, err := svc.users.GetByID(ctx, res.StudentID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, catalog.Subject{}, invalidPKError("student_id", res.StudentID)
		}
		return user.User{}, catalog.Subject{}, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() {
		return user.User{}, catalog.Subject{}, core.NewFieldValidationError("student_id", fmt.Sprintf("user %d is not a student", student.ID))
	}

	subject, err := svc.subjects.GetSubject(ctx, res.SubjectID)
	if err != nil {
		if errors.Cause(err) == catalog.ErrSubjectNotFound {
			return user.User{}, catalog.Subject{}, invalidPKError("subject_id", res.SubjectID)
		}
		return user.User{}, catalog.Subject{}, errors.Wrap(err, "finding subject")
	}
	return student, subject, nil
}

func invalidPKError(field string, id int) error {
	return core.NewFieldValidationError(field, fmt.Sprintf(`invalid pk "%d" - object does not exist`, id))
}
