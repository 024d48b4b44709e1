// Package dummydb is an in-memory storage engine. Every table lives behind a single lock so that
// uniqueness checks & cascading deletes stay atomic.
package dummydb

import (
	"sync"

	"github.com/cadence-academy/backend/core/catalog"
	"github.com/cadence-academy/backend/core/result"
	"github.com/cadence-academy/backend/core/user"
)

type DB struct {
	sync.RWMutex

	users    map[int]*user.User
	profiles map[int]*user.Profile      // by user ID
	tokens   map[string]*user.AuthToken // by key
	subjects map[int]*catalog.Subject
	classes  map[int]*catalog.Class
	results  map[int]*result.Result

	userSeq, subjectSeq, classSeq, resultSeq int
}

func Open() *DB {
	return &DB{
		users:    make(map[int]*user.User),
		profiles: make(map[int]*user.Profile),
		tokens:   make(map[string]*user.AuthToken),
		subjects: make(map[int]*catalog.Subject),
		classes:  make(map[int]*catalog.Class),
		results:  make(map[int]*result.Result),
	}
}

func removeID(ids []int, id int) []int {
	kept := ids[:0]
	for _, i := range ids {
		if i != id {
			kept = append(kept, i)
		}
	}
	return kept
}

func containsID(ids []int, id int) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
