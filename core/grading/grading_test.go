package grading

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		total      string
		wantGrade  Grade
		wantRemark string
	}{
		{total: "100", wantGrade: GradeA, wantRemark: "Distinction"},
		{total: "95", wantGrade: GradeA, wantRemark: "Distinction"},
		{total: "90", wantGrade: GradeA, wantRemark: "Distinction"},
		{total: "89.99", wantGrade: GradeB, wantRemark: "Upper Credit"},
		{total: "80", wantGrade: GradeB, wantRemark: "Upper Credit"},
		{total: "79.99", wantGrade: GradeC, wantRemark: "Lower Credit"},
		{total: "70", wantGrade: GradeC, wantRemark: "Lower Credit"},
		{total: "69.5", wantGrade: GradeD, wantRemark: "Pass"},
		{total: "60", wantGrade: GradeD, wantRemark: "Pass"},
		{total: "59.99", wantGrade: GradeF, wantRemark: "Fail"},
		{total: "55", wantGrade: GradeF, wantRemark: "Fail"},
		{total: "0", wantGrade: GradeF, wantRemark: "Fail"},
		// no clamping
		{total: "-10", wantGrade: GradeF, wantRemark: "Fail"},
		{total: "250", wantGrade: GradeA, wantRemark: "Distinction"},
	}
	for _, tt := range tests {
		t.Run(tt.total, func(t *testing.T) {
			grade := GradeFor(dec(tt.total))
			assert.Equal(t, tt.wantGrade, grade)
			assert.Equal(t, tt.wantRemark, grade.Remark())
		})
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name                string
		first, second, exam string
		wantTotal           string
		wantGrade           Grade
		wantRemark          string
	}{
		{name: "alice distinction", first: "20", second: "15", exam: "60", wantTotal: "95", wantGrade: GradeA, wantRemark: "Distinction"},
		{name: "alice fail", first: "10", second: "15", exam: "30", wantTotal: "55", wantGrade: GradeF, wantRemark: "Fail"},
		{name: "decimals", first: "19.75", second: "20.25", exam: "40", wantTotal: "80", wantGrade: GradeB, wantRemark: "Upper Credit"},
		{name: "zeros", first: "0", second: "0", exam: "0", wantTotal: "0", wantGrade: GradeF, wantRemark: "Fail"},
		{name: "negative component", first: "-5", second: "30", exam: "45", wantTotal: "70", wantGrade: GradeC, wantRemark: "Lower Credit"},
		{name: "over 100", first: "50", second: "50", exam: "100", wantTotal: "200", wantGrade: GradeA, wantRemark: "Distinction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evaluate(dec(tt.first), dec(tt.second), dec(tt.exam))
			assert.True(t, ev.Total.Equal(dec(tt.wantTotal)), "total = %s; want %s", ev.Total, tt.wantTotal)
			assert.Equal(t, tt.wantGrade, ev.Grade)
			assert.Equal(t, tt.wantRemark, ev.Remark)
		})
	}
}
