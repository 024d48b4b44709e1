package dummydb

import (
	"context"
	"sort"

	"github.com/cadence-academy/backend/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// query returns the users sorted by username. Callers must hold the lock.
func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.checkUniqueness(username, email, excludedUsers...)
}

func (repo *userRepository) checkUniqueness(username, email string, excludedUsers ...user.User) error {
	excluded := make(map[int]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	return repo.insert(usr)
}

// insert stores usr under a new ID. Callers must hold the lock.
func (repo *userRepository) insert(usr user.User) (user.User, error) {
	if err := repo.checkUniqueness(usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}
	repo.db.userSeq++
	usr.ID = repo.db.userSeq
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) CreateStudent(_ context.Context, usr user.User, classID int) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cls, ok := repo.db.classes[classID]
	if !ok {
		return user.User{}, user.ErrUnknownClass
	}
	usr, err := repo.insert(usr)
	if err != nil {
		return user.User{}, err
	}
	cls.StudentIDs = append(cls.StudentIDs, usr.ID)
	sort.Ints(cls.StudentIDs)
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ids map[int]bool
	if filter.IDs != nil {
		ids = make(map[int]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if ids != nil && !ids[usr.ID] {
			continue
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUniqueness(usr.Username, usr.Email, usr); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetProfile(_ context.Context, userID int) (user.Profile, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if prof, ok := repo.db.profiles[userID]; ok {
		return *prof, nil
	}
	return user.Profile{}, user.ErrProfileNotFound
}

func (repo *userRepository) SaveProfile(_ context.Context, prof user.Profile) (user.Profile, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[prof.UserID]; !ok {
		return user.Profile{}, user.ErrNotFound
	}
	repo.db.profiles[prof.UserID] = &prof
	return prof, nil
}

func (repo *userRepository) GetToken(_ context.Context, key string) (user.AuthToken, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if token, ok := repo.db.tokens[key]; ok {
		return *token, nil
	}
	return user.AuthToken{}, user.ErrTokenNotFound
}

func (repo *userRepository) GetUserToken(_ context.Context, userID int) (user.AuthToken, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, token := range repo.db.tokens {
		if token.UserID == userID {
			return *token, nil
		}
	}
	return user.AuthToken{}, user.ErrTokenNotFound
}

func (repo *userRepository) CreateToken(_ context.Context, token user.AuthToken) (user.AuthToken, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, t := range repo.db.tokens {
		if t.UserID == token.UserID {
			return user.AuthToken{}, user.ErrTokenExists
		}
	}
	repo.db.tokens[token.Key] = &token
	return token, nil
}

func (repo *userRepository) DeleteUserToken(_ context.Context, userID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for key, token := range repo.db.tokens {
		if token.UserID == userID {
			delete(repo.db.tokens, key)
			return nil
		}
	}
	return user.ErrTokenNotFound
}

// DeleteUser removes the user with everything referencing them: profile, token, results &
// class memberships. Classes they teach lose their teacher.
func (repo *userRepository) DeleteUser(_ context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.users, id)
	delete(repo.db.profiles, id)
	for key, token := range repo.db.tokens {
		if token.UserID == id {
			delete(repo.db.tokens, key)
		}
	}
	for resID, res := range repo.db.results {
		if res.StudentID == id {
			delete(repo.db.results, resID)
		}
	}
	for _, cls := range repo.db.classes {
		if cls.TeacherID.Valid && cls.TeacherID.Int == id {
			cls.TeacherID.Valid = false
			cls.TeacherID.Int = 0
		}
		cls.StudentIDs = removeID(cls.StudentIDs, id)
	}
	return nil
}
