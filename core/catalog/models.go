package catalog

import (
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/user"
)

type Subject struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Class groups students under an optional teacher, with the subjects they take.
type Class struct {
	ID         int
	Name       string
	TeacherID  null.Int
	StudentIDs []int // ascending
	SubjectIDs []int // ascending
}

// ClassDetail is the read view of a Class, with its members resolved.
type ClassDetail struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Teacher  *user.Summary  `json:"teacher"`
	Students []user.Summary `json:"students"`
	Subjects []Subject      `json:"subjects"`
}

type NewSubject struct {
	Name string `json:"name" validate:"required,max=100"`
	Code string `json:"code" validate:"required,max=10"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code)
	return validate.Struct(ns)
}

// UpdateSubject is a partial update: nil fields are left untouched.
type UpdateSubject struct {
	Name *string `json:"name" validate:"omitempty,max=100"`
	Code *string `json:"code" validate:"omitempty,max=10"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	if us.Name != nil {
		name := core.CleanString(*us.Name)
		if name == "" {
			return core.NewFieldValidationError("name", "this field may not be blank")
		}
		us.Name = &name
	}
	if us.Code != nil {
		code := core.CleanString(*us.Code)
		if code == "" {
			return core.NewFieldValidationError("code", "this field may not be blank")
		}
		us.Code = &code
	}
	return validate.Struct(us)
}

func (us UpdateSubject) apply(sub *Subject) {
	if us.Name != nil {
		sub.Name = *us.Name
	}
	if us.Code != nil {
		sub.Code = *us.Code
	}
}

// OptionalID is a nullable ID that remembers whether it was present in the decoded JSON,
// so that `"teacher_id": null` can be told apart from an absent key.
type OptionalID struct {
	null.Int
	Set bool
}

func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	return o.Int.UnmarshalJSON(data)
}

type NewClass struct {
	Name       string   `json:"name" validate:"required,max=100"`
	TeacherID  null.Int `json:"teacher_id"`
	StudentIDs []int    `json:"student_ids"`
	SubjectIDs []int    `json:"subject_ids"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// UpdateClass is a partial update: absent fields are left untouched, an empty list clears the members.
type UpdateClass struct {
	Name       *string    `json:"name" validate:"omitempty,max=100"`
	TeacherID  OptionalID `json:"teacher_id"`
	StudentIDs *[]int     `json:"student_ids"`
	SubjectIDs *[]int     `json:"subject_ids"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	if uc.Name != nil {
		name := core.CleanString(*uc.Name)
		if name == "" {
			return core.NewFieldValidationError("name", "this field may not be blank")
		}
		uc.Name = &name
	}
	return validate.Struct(uc)
}

// FullUpdate turns a NewClass into an UpdateClass replacing every field.
func (nc NewClass) FullUpdate() UpdateClass {
	students, subjects := nc.StudentIDs, nc.SubjectIDs
	if students == nil {
		students = []int{}
	}
	if subjects == nil {
		subjects = []int{}
	}
	return UpdateClass{
		Name:       &nc.Name,
		TeacherID:  OptionalID{Int: nc.TeacherID, Set: true},
		StudentIDs: &students,
		SubjectIDs: &subjects,
	}
}

func (uc UpdateClass) apply(cls *Class) {
	if uc.Name != nil {
		cls.Name = *uc.Name
	}
	if uc.TeacherID.Set {
		cls.TeacherID = uc.TeacherID.Int
	}
	if uc.StudentIDs != nil {
		cls.StudentIDs = uniqueIDs(*uc.StudentIDs)
	}
	if uc.SubjectIDs != nil {
		cls.SubjectIDs = uniqueIDs(*uc.SubjectIDs)
	}
}

// FullUpdate turns a NewSubject into an UpdateSubject replacing every field.
func (ns NewSubject) FullUpdate() UpdateSubject {
	return UpdateSubject{Name: &ns.Name, Code: &ns.Code}
}
