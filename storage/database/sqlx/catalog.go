package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cadence-academy/backend/core/catalog"
)

type (
	subjectRow struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
		Code string `db:"code"`
	}

	classRow struct {
		ID        int      `db:"id"`
		Name      string   `db:"name"`
		TeacherID null.Int `db:"teacher_id"`
	}

	memberRow struct {
		ClassID  int `db:"class_id"`
		MemberID int `db:"member_id"`
	}
)

func (r subjectRow) subject() catalog.Subject {
	return catalog.Subject{ID: r.ID, Name: r.Name, Code: r.Code}
}

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *sqlx.DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func subjectWriteError(err error) error {
	if uniqueViolation(err) == "subjects_code_key" {
		return catalog.ErrSubjectCodeExists
	}
	return err
}

func (repo *catalogRepository) CreateSubject(ctx context.Context, sub catalog.Subject) (catalog.Subject, error) {
	qb := psql.Insert("subjects").
		Columns("name", "code").
		Values(sub.Name, sub.Code).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &sub.ID, qb); err != nil {
		return catalog.Subject{}, subjectWriteError(err)
	}
	return sub, nil
}

func (repo *catalogRepository) GetSubject(ctx context.Context, id int) (catalog.Subject, error) {
	var row subjectRow
	if err := get(ctx, repo.db, &row, psql.Select("id", "name", "code").From("subjects").Where(sq.Eq{"id": id})); err != nil {
		if isNoRows(err) {
			return catalog.Subject{}, catalog.ErrSubjectNotFound
		}
		return catalog.Subject{}, err
	}
	return row.subject(), nil
}

func (repo *catalogRepository) QuerySubjects(ctx context.Context, ids ...int) ([]catalog.Subject, error) {
	qb := psql.Select("id", "name", "code").From("subjects").OrderBy("id")
	if len(ids) > 0 {
		qb = qb.Where(sq.Eq{"id": ids})
	}
	var rows []subjectRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, err
	}
	subjects := make([]catalog.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.subject())
	}
	return subjects, nil
}

func (repo *catalogRepository) UpdateSubject(ctx context.Context, sub catalog.Subject) (catalog.Subject, error) {
	qb := psql.Update("subjects").
		Set("name", sub.Name).
		Set("code", sub.Code).
		Where(sq.Eq{"id": sub.ID})
	found, err := exec(ctx, repo.db, qb)
	if err != nil {
		return catalog.Subject{}, subjectWriteError(err)
	}
	if !found {
		return catalog.Subject{}, catalog.ErrSubjectNotFound
	}
	return sub, nil
}

// DeleteSubject relies on ON DELETE CASCADE for results & class_subjects.
func (repo *catalogRepository) DeleteSubject(ctx context.Context, id int) error {
	found, err := exec(ctx, repo.db, psql.Delete("subjects").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if !found {
		return catalog.ErrSubjectNotFound
	}
	return nil
}

func (repo *catalogRepository) CreateClass(ctx context.Context, cls catalog.Class) (catalog.Class, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		qb := psql.Insert("classes").
			Columns("name", "teacher_id").
			Values(cls.Name, cls.TeacherID).
			Suffix("RETURNING id")
		if err := get(ctx, tx, &cls.ID, qb); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, cls)
	})
	if err != nil {
		return catalog.Class{}, err
	}
	return cls, nil
}

func (repo *catalogRepository) GetClass(ctx context.Context, id int) (catalog.Class, error) {
	classes, err := repo.queryClasses(ctx, sq.Eq{"id": id})
	if err != nil {
		return catalog.Class{}, err
	}
	if len(classes) == 0 {
		return catalog.Class{}, catalog.ErrClassNotFound
	}
	return classes[0], nil
}

func (repo *catalogRepository) QueryClasses(ctx context.Context) ([]catalog.Class, error) {
	return repo.queryClasses(ctx, nil)
}

func (repo *catalogRepository) queryClasses(ctx context.Context, where sq.Sqlizer) ([]catalog.Class, error) {
	qb := psql.Select("id", "name", "teacher_id").From("classes").OrderBy("id")
	if where != nil {
		qb = qb.Where(where)
	}
	var rows []classRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []catalog.Class{}, nil
	}

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	students, err := repo.members(ctx, "class_students", "student_id", ids)
	if err != nil {
		return nil, errors.Wrap(err, "selecting class students")
	}
	subjects, err := repo.members(ctx, "class_subjects", "subject_id", ids)
	if err != nil {
		return nil, errors.Wrap(err, "selecting class subjects")
	}

	classes := make([]catalog.Class, 0, len(rows))
	for _, row := range rows {
		cls := catalog.Class{
			ID:         row.ID,
			Name:       row.Name,
			TeacherID:  row.TeacherID,
			StudentIDs: students[row.ID],
			SubjectIDs: subjects[row.ID],
		}
		if cls.StudentIDs == nil {
			cls.StudentIDs = []int{}
		}
		if cls.SubjectIDs == nil {
			cls.SubjectIDs = []int{}
		}
		classes = append(classes, cls)
	}
	return classes, nil
}

// members returns the ascending member IDs of each class, from a join table.
func (repo *catalogRepository) members(ctx context.Context, table, column string, classIDs []int) (map[int][]int, error) {
	qb := psql.Select("class_id", column+" AS member_id").
		From(table).
		Where(sq.Eq{"class_id": classIDs}).
		OrderBy("class_id", column)
	var rows []memberRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, err
	}
	members := make(map[int][]int, len(classIDs))
	for _, row := range rows {
		members[row.ClassID] = append(members[row.ClassID], row.MemberID)
	}
	return members, nil
}

func (repo *catalogRepository) UpdateClass(ctx context.Context, cls catalog.Class) (catalog.Class, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		qb := psql.Update("classes").
			Set("name", cls.Name).
			Set("teacher_id", cls.TeacherID).
			Where(sq.Eq{"id": cls.ID})
		found, err := exec(ctx, tx, qb)
		if err != nil {
			return err
		}
		if !found {
			return catalog.ErrClassNotFound
		}
		return replaceMembers(ctx, tx, cls)
	})
	if err != nil {
		return catalog.Class{}, err
	}
	return cls, nil
}

func replaceMembers(ctx context.Context, tx *sqlx.Tx, cls catalog.Class) error {
	tables := []struct {
		table, column string
		ids           []int
	}{
		{"class_students", "student_id", cls.StudentIDs},
		{"class_subjects", "subject_id", cls.SubjectIDs},
	}
	for _, t := range tables {
		if _, err := exec(ctx, tx, psql.Delete(t.table).Where(sq.Eq{"class_id": cls.ID})); err != nil {
			return errors.Wrapf(err, "clearing %s", t.table)
		}
		if len(t.ids) == 0 {
			continue
		}
		qb := psql.Insert(t.table).Columns("class_id", t.column)
		for _, id := range t.ids {
			qb = qb.Values(cls.ID, id)
		}
		if _, err := exec(ctx, tx, qb); err != nil {
			return errors.Wrapf(err, "inserting %s", t.table)
		}
	}
	return nil
}

// DeleteClass relies on ON DELETE CASCADE for the memberships.
func (repo *catalogRepository) DeleteClass(ctx context.Context, id int) error {
	found, err := exec(ctx, repo.db, psql.Delete("classes").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if !found {
		return catalog.ErrClassNotFound
	}
	return nil
}
