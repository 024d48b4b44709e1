package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/result"
)

var resultColumns = []string{
	"id", "student_id", "subject_id", "first_test_score", "second_test_score", "exam_score", "date_recorded",
}

type resultRow struct {
	ID              int             `db:"id"`
	StudentID       int             `db:"student_id"`
	SubjectID       int             `db:"subject_id"`
	FirstTestScore  decimal.Decimal `db:"first_test_score"`
	SecondTestScore decimal.Decimal `db:"second_test_score"`
	ExamScore       decimal.Decimal `db:"exam_score"`
	DateRecorded    time.Time       `db:"date_recorded"`
}

func (r resultRow) result() result.Result {
	return result.Result{
		ID:              r.ID,
		StudentID:       r.StudentID,
		SubjectID:       r.SubjectID,
		FirstTestScore:  r.FirstTestScore,
		SecondTestScore: r.SecondTestScore,
		ExamScore:       r.ExamScore,
		DateRecorded:    r.DateRecorded.UTC(),
	}
}

type resultRepository struct {
	db *sqlx.DB
}

var _ result.Repository = (*resultRepository)(nil) // interface compliance check

func NewResultRepository(db *sqlx.DB) result.Repository {
	return &resultRepository{db: db}
}

func resultWriteError(err error) error {
	if uniqueViolation(err) == "results_student_id_subject_id_key" {
		return result.ErrResultExists
	}
	return err
}

func (repo *resultRepository) CreateResult(ctx context.Context, res result.Result) (result.Result, error) {
	qb := psql.Insert("results").
		Columns(resultColumns[1:]...).
		Values(res.StudentID, res.SubjectID, res.FirstTestScore, res.SecondTestScore, res.ExamScore, res.DateRecorded).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &res.ID, qb); err != nil {
		return result.Result{}, resultWriteError(err)
	}
	return res, nil
}

func (repo *resultRepository) GetResult(ctx context.Context, id int) (result.Result, error) {
	var row resultRow
	if err := get(ctx, repo.db, &row, psql.Select(resultColumns...).From("results").Where(sq.Eq{"id": id})); err != nil {
		if isNoRows(err) {
			return result.Result{}, result.ErrNotFound
		}
		return result.Result{}, err
	}
	return row.result(), nil
}

func (repo *resultRepository) QueryResults(ctx context.Context, filter result.QueryFilter, ords ...core.DBOrdering) ([]result.Result, error) {
	qb := psql.Select(resultColumns...).From("results")
	if filter.StudentID != 0 {
		qb = qb.Where(sq.Eq{"student_id": filter.StudentID})
	}
	if filter.SubjectID != 0 {
		qb = qb.Where(sq.Eq{"subject_id": filter.SubjectID})
	}
	for _, ord := range core.AllowedOrderings(ords, result.OrderingFields...) {
		qb = qb.OrderBy(ord.String())
	}
	qb = qb.OrderBy("id")

	var rows []resultRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, err
	}
	results := make([]result.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.result())
	}
	return results, nil
}

// UpdateResult leaves date_recorded untouched.
func (repo *resultRepository) UpdateResult(ctx context.Context, res result.Result) (result.Result, error) {
	qb := psql.Update("results").
		SetMap(map[string]interface{}{
			"student_id":        res.StudentID,
			"subject_id":        res.SubjectID,
			"first_test_score":  res.FirstTestScore,
			"second_test_score": res.SecondTestScore,
			"exam_score":        res.ExamScore,
		}).
		Where(sq.Eq{"id": res.ID}).
		Suffix("RETURNING date_recorded")
	if err := get(ctx, repo.db, &res.DateRecorded, qb); err != nil {
		if isNoRows(err) {
			return result.Result{}, result.ErrNotFound
		}
		return result.Result{}, resultWriteError(err)
	}
	res.DateRecorded = res.DateRecorded.UTC()
	return res, nil
}

func (repo *resultRepository) DeleteResult(ctx context.Context, id int) error {
	found, err := exec(ctx, repo.db, psql.Delete("results").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if !found {
		return result.ErrNotFound
	}
	return nil
}
