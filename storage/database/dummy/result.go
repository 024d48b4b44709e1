package dummydb

import (
	"context"
	"sort"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/result"
)

type resultRepository struct {
	db *DB
}

var _ result.Repository = (*resultRepository)(nil) // interface compliance check

func NewResultRepository(db *DB) result.Repository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) pairTaken(res result.Result) bool {
	for _, r := range repo.db.results {
		if r.ID != res.ID && r.StudentID == res.StudentID && r.SubjectID == res.SubjectID {
			return true
		}
	}
	return false
}

func (repo *resultRepository) CreateResult(_ context.Context, res result.Result) (result.Result, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.pairTaken(res) {
		return result.Result{}, result.ErrResultExists
	}
	repo.db.resultSeq++
	res.ID = repo.db.resultSeq
	repo.db.results[res.ID] = &res
	return res, nil
}

func (repo *resultRepository) GetResult(_ context.Context, id int) (result.Result, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if res, ok := repo.db.results[id]; ok {
		return *res, nil
	}
	return result.Result{}, result.ErrNotFound
}

func (repo *resultRepository) QueryResults(_ context.Context, filter result.QueryFilter, ords ...core.DBOrdering) ([]result.Result, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	results := make([]result.Result, 0, len(repo.db.results))
	for _, res := range repo.db.results {
		if filter.StudentID != 0 && res.StudentID != filter.StudentID {
			continue
		}
		if filter.SubjectID != 0 && res.SubjectID != filter.SubjectID {
			continue
		}
		results = append(results, *res)
	}

	sort.Slice(results, func(i, j int) bool {
		for _, ord := range ords {
			c := compareResults(results[i], results[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (repo *resultRepository) UpdateResult(_ context.Context, res result.Result) (result.Result, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.results[res.ID]
	if !ok {
		return result.Result{}, result.ErrNotFound
	}
	if repo.pairTaken(res) {
		return result.Result{}, result.ErrResultExists
	}
	res.DateRecorded = orig.DateRecorded
	repo.db.results[res.ID] = &res
	return res, nil
}

func (repo *resultRepository) DeleteResult(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.results[id]; !ok {
		return result.ErrNotFound
	}
	delete(repo.db.results, id)
	return nil
}

func compareResults(a, b result.Result, field string) int {
	switch field {
	case "id":
		return a.ID - b.ID
	case "date_recorded":
		return a.DateRecorded.Compare(b.DateRecorded)
	}
	return 0
}
