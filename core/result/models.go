package result

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/catalog"
	"github.com/cadence-academy/backend/core/grading"
	"github.com/cadence-academy/backend/core/user"
)

const (
	scoreDecimalPlaces = 2
	scoreMaxDigits     = 5
)

// scores are stored as NUMERIC(5,2)
var scoreLimit = decimal.New(1, scoreMaxDigits-scoreDecimalPlaces)

// Result holds one student's scores for one subject.
type Result struct {
	ID              int
	StudentID       int
	SubjectID       int
	FirstTestScore  decimal.Decimal
	SecondTestScore decimal.Decimal
	ExamScore       decimal.Decimal
	DateRecorded    time.Time // UTC, set on creation
}

func (r Result) Evaluate() grading.Evaluation {
	return grading.Evaluate(r.FirstTestScore, r.SecondTestScore, r.ExamScore)
}

// Detail is the read view of a Result. Total, grade and remark are computed on every read.
type Detail struct {
	ID              int             `json:"id"`
	Student         user.Summary    `json:"student"`
	Subject         catalog.Subject `json:"subject"`
	FirstTestScore  string          `json:"first_test_score"`
	SecondTestScore string          `json:"second_test_score"`
	ExamScore       string          `json:"exam_score"`
	TotalScore      string          `json:"total_score"`
	Grade           grading.Grade   `json:"grade"`
	Remark          string          `json:"remark"`
	DateRecorded    time.Time       `json:"date_recorded"`
}

func NewDetail(res Result, student user.User, subject catalog.Subject) Detail {
	eval := res.Evaluate()
	return Detail{
		ID:              res.ID,
		Student:         student.Summary(),
		Subject:         subject,
		FirstTestScore:  res.FirstTestScore.StringFixed(scoreDecimalPlaces),
		SecondTestScore: res.SecondTestScore.StringFixed(scoreDecimalPlaces),
		ExamScore:       res.ExamScore.StringFixed(scoreDecimalPlaces),
		TotalScore:      eval.Total.StringFixed(scoreDecimalPlaces),
		Grade:           eval.Grade,
		Remark:          eval.Remark,
		DateRecorded:    res.DateRecorded,
	}
}

// NewResult contains the information needed to record a Result. Missing scores default to 0.
type NewResult struct {
	StudentID       int              `json:"student_id" validate:"required"`
	SubjectID       int              `json:"subject_id" validate:"required"`
	FirstTestScore  *decimal.Decimal `json:"first_test_score"`
	SecondTestScore *decimal.Decimal `json:"second_test_score"`
	ExamScore       *decimal.Decimal `json:"exam_score"`
}

func (nr *NewResult) Validate(validate *validator.Validate) error {
	if err := validate.Struct(nr); err != nil {
		return err
	}
	return validateScores(scoreFields(nr.FirstTestScore, nr.SecondTestScore, nr.ExamScore))
}

// FullUpdate turns a NewResult into an UpdateResult replacing every field.
func (nr NewResult) FullUpdate() UpdateResult {
	zero := decimal.Zero
	orZero := func(d *decimal.Decimal) *decimal.Decimal {
		if d == nil {
			return &zero
		}
		return d
	}
	return UpdateResult{
		StudentID:       &nr.StudentID,
		SubjectID:       &nr.SubjectID,
		FirstTestScore:  orZero(nr.FirstTestScore),
		SecondTestScore: orZero(nr.SecondTestScore),
		ExamScore:       orZero(nr.ExamScore),
	}
}

// UpdateResult is a partial update: nil fields are left untouched.
type UpdateResult struct {
	StudentID       *int             `json:"student_id" validate:"omitempty,min=1"`
	SubjectID       *int             `json:"subject_id" validate:"omitempty,min=1"`
	FirstTestScore  *decimal.Decimal `json:"first_test_score"`
	SecondTestScore *decimal.Decimal `json:"second_test_score"`
	ExamScore       *decimal.Decimal `json:"exam_score"`
}

func (ur *UpdateResult) Validate(validate *validator.Validate) error {
	if err := validate.Struct(ur); err != nil {
		return err
	}
	return validateScores(scoreFields(ur.FirstTestScore, ur.SecondTestScore, ur.ExamScore))
}

func (ur UpdateResult) apply(res *Result) {
	if ur.StudentID != nil {
		res.StudentID = *ur.StudentID
	}
	if ur.SubjectID != nil {
		res.SubjectID = *ur.SubjectID
	}
	if ur.FirstTestScore != nil {
		res.FirstTestScore = *ur.FirstTestScore
	}
	if ur.SecondTestScore != nil {
		res.SecondTestScore = *ur.SecondTestScore
	}
	if ur.ExamScore != nil {
		res.ExamScore = *ur.ExamScore
	}
}

// QueryFilter applies AND operation on its non-zero fields.
type QueryFilter struct {
	StudentID int
	SubjectID int
}

type scoreField struct {
	name  string
	value *decimal.Decimal
}

func scoreFields(first, second, exam *decimal.Decimal) []scoreField {
	return []scoreField{
		{"first_test_score", first},
		{"second_test_score", second},
		{"exam_score", exam},
	}
}

func validateScores(fields []scoreField) error {
	var errs []core.FieldError
	for _, fld := range fields {
		if fld.value == nil {
			continue
		}
		if msg := checkScore(*fld.value); msg != "" {
			errs = append(errs, core.FieldError{Field: fld.name, Error: msg})
		}
	}
	if len(errs) > 0 {
		return core.NewValidationError(errors.New("invalid scores"), errs...)
	}
	return nil
}

// checkScore returns why d does not fit the score column, if it does not.
func checkScore(d decimal.Decimal) string {
	if !d.Equal(d.Round(scoreDecimalPlaces)) {
		return fmt.Sprintf("ensure that there are no more than %d decimal places", scoreDecimalPlaces)
	}
	if d.Abs().GreaterThanOrEqual(scoreLimit) {
		return fmt.Sprintf("ensure that there are no more than %d digits in total", scoreMaxDigits)
	}
	return ""
}
