package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/user"
)

var (
	// errors
	ErrSubjectNotFound = core.NewNotFoundError("subject not found")
	ErrClassNotFound   = core.NewNotFoundError("class not found")

	ErrSubjectCodeExists = errors.New("subject with this code already exists")
)

type (
	Repository interface {
		CreateSubject(ctx context.Context, sub Subject) (Subject, error) // ErrSubjectCodeExists
		GetSubject(ctx context.Context, id int) (Subject, error)
		QuerySubjects(ctx context.Context, ids ...int) ([]Subject, error) // all when no ids; ordered by ID
		UpdateSubject(ctx context.Context, sub Subject) (Subject, error)  // ErrSubjectCodeExists
		DeleteSubject(ctx context.Context, id int) error

		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClass(ctx context.Context, id int) (Class, error)
		QueryClasses(ctx context.Context) ([]Class, error) // ordered by ID
		UpdateClass(ctx context.Context, cls Class) (Class, error)
		DeleteClass(ctx context.Context, id int) error
	}

	Service struct {
		repo    Repository
		usrRepo user.Repository
	}
)

var _ user.ClassRoster = (*Service)(nil) // interface compliance check

func NewService(repo Repository, usrRepo user.Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(usrRepo, "usrRepo"),
	).CheckAndPanic()

	return &Service{repo: repo, usrRepo: usrRepo}
}

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	sub, err := svc.repo.CreateSubject(ctx, Subject{Name: ns.Name, Code: ns.Code})
	if err != nil {
		return Subject{}, subjectWriteError(err, "creating subject")
	}
	return sub, nil
}

func (svc *Service) GetSubject(ctx context.Context, id int) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

// QuerySubjects returns the subjects with the given IDs, or all of them when none is given.
func (svc *Service) QuerySubjects(ctx context.Context, ids ...int) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, ids...)
}

func (svc *Service) UpdateSubject(ctx context.Context, id int, us UpdateSubject) (Subject, error) {
	sub, err := svc.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	us.apply(&sub)
	if sub, err = svc.repo.UpdateSubject(ctx, sub); err != nil {
		return Subject{}, subjectWriteError(err, "updating subject")
	}
	return sub, nil
}

// DeleteSubject removes the subject, its results & its class enrolments.
func (svc *Service) DeleteSubject(ctx context.Context, id int) error {
	return svc.repo.DeleteSubject(ctx, id)
}

func subjectWriteError(err error, msg string) error {
	if errors.Cause(err) == ErrSubjectCodeExists {
		return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	return errors.Wrap(err, msg)
}

func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (ClassDetail, error) {
	var cls Class
	nc.FullUpdate().apply(&cls)
	if err := svc.checkMembers(ctx, cls); err != nil {
		return ClassDetail{}, err
	}
	cls, err := svc.repo.CreateClass(ctx, cls)
	if err != nil {
		return ClassDetail{}, errors.Wrap(err, "creating class")
	}
	return svc.detail(ctx, cls)
}

func (svc *Service) GetClass(ctx context.Context, id int) (ClassDetail, error) {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return ClassDetail{}, err
	}
	return svc.detail(ctx, cls)
}

func (svc *Service) QueryClasses(ctx context.Context) ([]ClassDetail, error) {
	classes, err := svc.repo.QueryClasses(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	details := make([]ClassDetail, 0, len(classes))
	for _, cls := range classes {
		det, err := svc.detail(ctx, cls)
		if err != nil {
			return nil, err
		}
		details = append(details, det)
	}
	return details, nil
}

func (svc *Service) UpdateClass(ctx context.Context, id int, uc UpdateClass) (ClassDetail, error) {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return ClassDetail{}, err
	}
	uc.apply(&cls)
	if err = svc.checkMembers(ctx, cls); err != nil {
		return ClassDetail{}, err
	}
	if cls, err = svc.repo.UpdateClass(ctx, cls); err != nil {
		return ClassDetail{}, errors.Wrap(err, "updating class")
	}
	return svc.detail(ctx, cls)
}

// DeleteClass removes the class. Its members are left untouched.
func (svc *Service) DeleteClass(ctx context.Context, id int) error {
	return svc.repo.DeleteClass(ctx, id)
}

func (svc *Service) ClassExists(ctx context.Context, classID int) (bool, error) {
	_, err := svc.repo.GetClass(ctx, classID)
	switch errors.Cause(err) {
	case nil:
		return true, nil
	case ErrClassNotFound:
		return false, nil
	default:
		return false, errors.Wrap(err, "finding class")
	}
}

// checkMembers ensures the teacher holds the teacher role, the students the student role,
// and that every subject exists.
func (svc *Service) checkMembers(ctx context.Context, cls Class) error {
	if cls.TeacherID.Valid {
		usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: cls.TeacherID.Int})
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return invalidPKError("teacher_id", cls.TeacherID.Int)
			}
			return errors.Wrap(err, "finding teacher")
		}
		if !usr.IsTeacher() {
			return core.NewFieldValidationError("teacher_id", fmt.Sprintf("user %d is not a teacher", usr.ID))
		}
	}

	if len(cls.StudentIDs) > 0 {
		students, err := svc.usrRepo.QueryUsers(ctx, user.QueryFilter{IDs: cls.StudentIDs})
		if err != nil {
			return errors.Wrap(err, "querying students")
		}
		found := make(map[int]user.User, len(students))
		for _, usr := range students {
			found[usr.ID] = usr
		}
		for _, id := range cls.StudentIDs {
			usr, ok := found[id]
			if !ok {
				return invalidPKError("student_ids", id)
			}
			if !usr.IsStudent() {
				return core.NewFieldValidationError("student_ids", fmt.Sprintf("user %d is not a student", id))
			}
		}
	}

	if len(cls.SubjectIDs) > 0 {
		subjects, err := svc.repo.QuerySubjects(ctx, cls.SubjectIDs...)
		if err != nil {
			return errors.Wrap(err, "querying subjects")
		}
		found := make(map[int]bool, len(subjects))
		for _, sub := range subjects {
			found[sub.ID] = true
		}
		for _, id := range cls.SubjectIDs {
			if !found[id] {
				return invalidPKError("subject_ids", id)
			}
		}
	}
	return nil
}

func (svc *Service) detail(ctx context.Context, cls Class) (ClassDetail, error) {
	det := ClassDetail{
		ID:       cls.ID,
		Name:     cls.Name,
		Students: make([]user.Summary, 0, len(cls.StudentIDs)),
		Subjects: make([]Subject, 0, len(cls.SubjectIDs)),
	}

	if cls.TeacherID.Valid {
		teacher, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: cls.TeacherID.Int})
		switch errors.Cause(err) {
		case nil:
			summary := teacher.Summary()
			det.Teacher = &summary
		case user.ErrNotFound:
		default:
			return ClassDetail{}, errors.Wrap(err, "finding teacher")
		}
	}

	if len(cls.StudentIDs) > 0 {
		students, err := svc.usrRepo.QueryUsers(ctx, user.QueryFilter{IDs: cls.StudentIDs})
		if err != nil {
			return ClassDetail{}, errors.Wrap(err, "querying students")
		}
		for _, usr := range students {
			det.Students = append(det.Students, usr.Summary())
		}
		sort.Slice(det.Students, func(i, j int) bool { return det.Students[i].ID < det.Students[j].ID })
	}

	if len(cls.SubjectIDs) > 0 {
		subjects, err := svc.repo.QuerySubjects(ctx, cls.SubjectIDs...)
		if err != nil {
			return ClassDetail{}, errors.Wrap(err, "querying subjects")
		}
		det.Subjects = append(det.Subjects, subjects...)
	}
	return det, nil
}

func invalidPKError(field string, id int) error {
	return core.NewFieldValidationError(field, fmt.Sprintf(`invalid pk "%d" - object does not exist`, id))
}

// uniqueIDs returns the sorted set of ids.
func uniqueIDs(ids []int) []int {
	set := make(map[int]struct{}, len(ids))
	uniq := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			uniq = append(uniq, id)
		}
	}
	sort.Ints(uniq)
	return uniq
}
