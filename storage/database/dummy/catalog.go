package dummydb

import (
	"context"
	"sort"

	"github.com/cadence-academy/backend/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) codeTaken(code string, excludedID int) bool {
	for _, sub := range repo.db.subjects {
		if sub.ID != excludedID && sub.Code == code {
			return true
		}
	}
	return false
}

func (repo *catalogRepository) CreateSubject(_ context.Context, sub catalog.Subject) (catalog.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.codeTaken(sub.Code, 0) {
		return catalog.Subject{}, catalog.ErrSubjectCodeExists
	}
	repo.db.subjectSeq++
	sub.ID = repo.db.subjectSeq
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *catalogRepository) GetSubject(_ context.Context, id int) (catalog.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.subjects[id]; ok {
		return *sub, nil
	}
	return catalog.Subject{}, catalog.ErrSubjectNotFound
}

func (repo *catalogRepository) QuerySubjects(_ context.Context, ids ...int) ([]catalog.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]catalog.Subject, 0, len(repo.db.subjects))
	for _, sub := range repo.db.subjects {
		if len(ids) == 0 || containsID(ids, sub.ID) {
			subjects = append(subjects, *sub)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}

func (repo *catalogRepository) UpdateSubject(_ context.Context, sub catalog.Subject) (catalog.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[sub.ID]; !ok {
		return catalog.Subject{}, catalog.ErrSubjectNotFound
	}
	if repo.codeTaken(sub.Code, sub.ID) {
		return catalog.Subject{}, catalog.ErrSubjectCodeExists
	}
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *catalogRepository) DeleteSubject(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return catalog.ErrSubjectNotFound
	}
	delete(repo.db.subjects, id)
	for resID, res := range repo.db.results {
		if res.SubjectID == id {
			delete(repo.db.results, resID)
		}
	}
	for _, cls := range repo.db.classes {
		cls.SubjectIDs = removeID(cls.SubjectIDs, id)
	}
	return nil
}

// copyClass detaches the member lists from the stored class.
func copyClass(cls catalog.Class) catalog.Class {
	cls.StudentIDs = append([]int{}, cls.StudentIDs...)
	cls.SubjectIDs = append([]int{}, cls.SubjectIDs...)
	return cls
}

func (repo *catalogRepository) CreateClass(_ context.Context, cls catalog.Class) (catalog.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.classSeq++
	cls.ID = repo.db.classSeq
	stored := copyClass(cls)
	repo.db.classes[cls.ID] = &stored
	return copyClass(cls), nil
}

func (repo *catalogRepository) GetClass(_ context.Context, id int) (catalog.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return copyClass(*cls), nil
	}
	return catalog.Class{}, catalog.ErrClassNotFound
}

func (repo *catalogRepository) QueryClasses(_ context.Context) ([]catalog.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]catalog.Class, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		classes = append(classes, copyClass(*cls))
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes, nil
}

func (repo *catalogRepository) UpdateClass(_ context.Context, cls catalog.Class) (catalog.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[cls.ID]; !ok {
		return catalog.Class{}, catalog.ErrClassNotFound
	}
	stored := copyClass(cls)
	repo.db.classes[cls.ID] = &stored
	return copyClass(cls), nil
}

func (repo *catalogRepository) DeleteClass(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return catalog.ErrClassNotFound
	}
	delete(repo.db.classes, id)
	return nil
}
