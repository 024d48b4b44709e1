package result_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadence-academy/backend/core/catalog"
	. "github.com/cadence-academy/backend/core/result"
	"github.com/cadence-academy/backend/core/user"
)

func TestNewDetail_totalScore(t *testing.T) {
	tests := []struct {
		name                string
		first, second, exam string
		want                string
	}{
		{name: "no scores", first: "0", second: "0", exam: "0", want: "0.00"},
		{name: "tenths", first: "0.1", second: "0.2", exam: "0", want: "0.30"},
		{name: "hundredths carry", first: "33.33", second: "33.33", exam: "33.34", want: "100.00"},
		{name: "just below a boundary", first: "19.99", second: "20", exam: "29.99", want: "69.98"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Result{
				FirstTestScore:  decimal.RequireFromString(tt.first),
				SecondTestScore: decimal.RequireFromString(tt.second),
				ExamScore:       decimal.RequireFromString(tt.exam),
			}
			det := NewDetail(res, user.User{}, catalog.Subject{})
			assert.Equal(t, tt.want, det.TotalScore)

			data, err := json.Marshal(det)
			require.NoError(t, err)
			var wire map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &wire))
			assert.Equal(t, tt.want, wire["total_score"])
		})
	}
}
