// Package grading maps exam scores to letter grades.
package grading

import "github.com/shopspring/decimal"

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

var (
	// thresholds, highest first. A total >= Min earns the grade.
	scale = []struct {
		Min   decimal.Decimal
		Grade Grade
	}{
		{decimal.NewFromInt(90), GradeA},
		{decimal.NewFromInt(80), GradeB},
		{decimal.NewFromInt(70), GradeC},
		{decimal.NewFromInt(60), GradeD},
	}

	remarks = map[Grade]string{
		GradeA: "Distinction",
		GradeB: "Upper Credit",
		GradeC: "Lower Credit",
		GradeD: "Pass",
		GradeF: "Fail",
	}
)

func (g Grade) Remark() string {
	return remarks[g]
}

type Evaluation struct {
	Total  decimal.Decimal
	Grade  Grade
	Remark string
}

// GradeFor returns the grade earned by total. Totals are not clamped.
func GradeFor(total decimal.Decimal) Grade {
	for _, step := range scale {
		if total.GreaterThanOrEqual(step.Min) {
			return step.Grade
		}
	}
	return GradeF
}

// Evaluate sums the component scores and grades the total.
func Evaluate(firstTest, secondTest, exam decimal.Decimal) Evaluation {
	total := firstTest.Add(secondTest).Add(exam)
	grade := GradeFor(total)
	return Evaluation{Total: total, Grade: grade, Remark: grade.Remark()}
}
