package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cadence-academy/backend/core/user"
)

const dateLayout = "2006-01-02"

var userColumns = []string{
	"id", "username", "email", "password_hash", "role", "is_superuser", "is_active",
	"profile_picture", "last_login", "created_at", "updated_at",
}

type (
	userRow struct {
		ID             int       `db:"id"`
		Username       string    `db:"username"`
		Email          string    `db:"email"`
		PasswordHash   []byte    `db:"password_hash"`
		Role           user.Role `db:"role"`
		IsSuperuser    bool      `db:"is_superuser"`
		IsActive       bool      `db:"is_active"`
		ProfilePicture string    `db:"profile_picture"`
		LastLogin      null.Time `db:"last_login"`
		CreatedAt      time.Time `db:"created_at"`
		UpdatedAt      time.Time `db:"updated_at"`
	}

	profileRow struct {
		UserID      int       `db:"user_id"`
		Bio         string    `db:"bio"`
		Address     string    `db:"address"`
		Country     string    `db:"country"`
		DateOfBirth null.Time `db:"date_of_birth"`
	}

	tokenRow struct {
		Key       string    `db:"key"`
		UserID    int       `db:"user_id"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (r userRow) user() user.User {
	return user.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		Role:           r.Role,
		IsSuperuser:    r.IsSuperuser,
		IsActive:       r.IsActive,
		ProfilePicture: r.ProfilePicture,
		LastLogin:      r.LastLogin.Time.UTC(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r profileRow) profile() user.Profile {
	prof := user.Profile{UserID: r.UserID, Bio: r.Bio, Address: r.Address, Country: r.Country}
	if r.DateOfBirth.Valid {
		prof.DateOfBirth = null.StringFrom(r.DateOfBirth.Time.Format(dateLayout))
	}
	return prof
}

func (r tokenRow) token() user.AuthToken {
	return user.AuthToken{Key: r.Key, UserID: r.UserID, CreatedAt: r.CreatedAt.UTC()}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func userWriteError(err error) error {
	switch uniqueViolation(err) {
	case "users_username_key":
		return user.ErrUsernameExists
	case "users_email_key":
		return user.ErrEmailExists
	}
	return err
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	where := sq.And{sq.Or{sq.Eq{"username": username}, sq.Eq{"email": email}}}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		where = append(where, sq.NotEq{"id": ids})
	}

	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	qb := psql.Select("username", "email").From("users").Where(where).Limit(2)
	if err := selectAll(ctx, repo.db, &taken, qb); err != nil {
		return errors.Wrap(err, "selecting users")
	}
	for _, t := range taken {
		if t.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func insertUser(ctx context.Context, q sqlx.QueryerContext, usr user.User) (user.User, error) {
	qb := psql.Insert("users").
		Columns(userColumns[1:]...).
		Values(
			usr.Username, usr.Email, usr.PasswordHash, usr.Role, usr.IsSuperuser, usr.IsActive,
			usr.ProfilePicture, null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()), usr.CreatedAt, usr.UpdatedAt,
		).
		Suffix("RETURNING id")
	if err := get(ctx, q, &usr.ID, qb); err != nil {
		return user.User{}, userWriteError(err)
	}
	return usr, nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	return insertUser(ctx, repo.db, usr)
}

func (repo *userRepository) CreateStudent(ctx context.Context, usr user.User, classID int) (user.User, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if usr, err = insertUser(ctx, tx, usr); err != nil {
			return err
		}
		qb := psql.Insert("class_students").Columns("class_id", "student_id").Values(classID, usr.ID)
		if _, err = exec(ctx, tx, qb); err != nil {
			if foreignKeyViolation(err) == "class_students_class_id_fkey" {
				return user.ErrUnknownClass
			}
			return errors.Wrap(err, "inserting class student")
		}
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var where sq.Sqlizer
	switch {
	case filter.ID != 0:
		where = sq.Eq{"id": filter.ID}
	case filter.Username != "":
		where = sq.Eq{"username": filter.Username}
	case filter.Email != "":
		where = sq.Eq{"email": filter.Email}
	case filter.UsernameOrEmail != "":
		where = sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := get(ctx, repo.db, &row, psql.Select(userColumns...).From("users").Where(where).Limit(1)); err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	qb := psql.Select(userColumns...).From("users").OrderBy("username")
	if filter.IDs != nil {
		qb = qb.Where(sq.Eq{"id": filter.IDs})
	}
	if filter.Role != "" {
		qb = qb.Where(sq.Eq{"role": filter.Role})
	}

	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, qb); err != nil {
		return nil, err
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	qb := psql.Update("users").
		SetMap(map[string]interface{}{
			"username":        usr.Username,
			"email":           usr.Email,
			"password_hash":   usr.PasswordHash,
			"role":            usr.Role,
			"is_superuser":    usr.IsSuperuser,
			"is_active":       usr.IsActive,
			"profile_picture": usr.ProfilePicture,
			"last_login":      null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
			"updated_at":      usr.UpdatedAt,
		}).
		Where(sq.Eq{"id": usr.ID})
	found, err := exec(ctx, repo.db, qb)
	if err != nil {
		return user.User{}, userWriteError(err)
	}
	if !found {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUser(ctx context.Context, id int) error {
	found, err := exec(ctx, repo.db, psql.Delete("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	if !found {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) GetProfile(ctx context.Context, userID int) (user.Profile, error) {
	var row profileRow
	qb := psql.Select("user_id", "bio", "address", "country", "date_of_birth").
		From("profiles").
		Where(sq.Eq{"user_id": userID})
	if err := get(ctx, repo.db, &row, qb); err != nil {
		if isNoRows(err) {
			return user.Profile{}, user.ErrProfileNotFound
		}
		return user.Profile{}, err
	}
	return row.profile(), nil
}

func (repo *userRepository) SaveProfile(ctx context.Context, prof user.Profile) (user.Profile, error) {
	var dob null.Time
	if prof.DateOfBirth.Valid {
		t, err := time.Parse(dateLayout, prof.DateOfBirth.String)
		if err != nil {
			return user.Profile{}, errors.Wrap(err, "parsing date of birth")
		}
		dob = null.TimeFrom(t)
	}

	qb := psql.Insert("profiles").
		Columns("user_id", "bio", "address", "country", "date_of_birth").
		Values(prof.UserID, prof.Bio, prof.Address, prof.Country, dob).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			bio = EXCLUDED.bio,
			address = EXCLUDED.address,
			country = EXCLUDED.country,
			date_of_birth = EXCLUDED.date_of_birth`)
	if _, err := exec(ctx, repo.db, qb); err != nil {
		return user.Profile{}, err
	}
	return prof, nil
}

func (repo *userRepository) getToken(ctx context.Context, where sq.Eq) (user.AuthToken, error) {
	var row tokenRow
	qb := psql.Select("key", "user_id", "created_at").From("auth_tokens").Where(where)
	if err := get(ctx, repo.db, &row, qb); err != nil {
		if isNoRows(err) {
			return user.AuthToken{}, user.ErrTokenNotFound
		}
		return user.AuthToken{}, err
	}
	return row.token(), nil
}

func (repo *userRepository) GetToken(ctx context.Context, key string) (user.AuthToken, error) {
	return repo.getToken(ctx, sq.Eq{"key": key})
}

func (repo *userRepository) GetUserToken(ctx context.Context, userID int) (user.AuthToken, error) {
	return repo.getToken(ctx, sq.Eq{"user_id": userID})
}

func (repo *userRepository) CreateToken(ctx context.Context, token user.AuthToken) (user.AuthToken, error) {
	qb := psql.Insert("auth_tokens").
		Columns("key", "user_id", "created_at").
		Values(token.Key, token.UserID, token.CreatedAt)
	if _, err := exec(ctx, repo.db, qb); err != nil {
		if uniqueViolation(err) == "auth_tokens_user_id_key" {
			return user.AuthToken{}, user.ErrTokenExists
		}
		return user.AuthToken{}, err
	}
	return token, nil
}

func (repo *userRepository) DeleteUserToken(ctx context.Context, userID int) error {
	found, err := exec(ctx, repo.db, psql.Delete("auth_tokens").Where(sq.Eq{"user_id": userID}))
	if err != nil {
		return err
	}
	if !found {
		return user.ErrTokenNotFound
	}
	return nil
}
