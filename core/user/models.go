package user

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/cadence-academy/backend/core"
)

// Roles
const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var (
	Roles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

	ErrInvalidRole = errors.New("invalid role")
)

// Role is fixed when the account is created.
type Role string

// ParseRole normalizes s ("Teacher", " STUDENT ") into one of Roles.
func ParseRole(s string) (Role, error) {
	role := Role(core.CleanString(s, true /* lower */))
	if !role.Valid() {
		return "", errors.Wrapf(ErrInvalidRole, "%q", s)
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Scan implements sql.Scanner, normalizing legacy upper-case values.
func (r *Role) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("user.Role.Scan: unsupported type %T", src)
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, errors.Wrapf(ErrInvalidRole, "%q", string(r))
	}
	return string(r), nil
}

type User struct {
	ID             int       `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	IsSuperuser    bool      `json:"is_superuser"`
	IsActive       bool      `json:"is_active"`
	ProfilePicture string    `json:"profile_picture"`
	PasswordHash   []byte    `json:"-"`
	LastLogin      time.Time `json:"last_login"` // UTC
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// Profile holds the personal attributes of a User.
type Profile struct {
	UserID      int         `json:"user_id"`
	Bio         string      `json:"bio"`
	Address     string      `json:"address"`
	Country     string      `json:"country"`
	DateOfBirth null.String `json:"date_of_birth"` // YYYY-MM-DD
}

// AuthToken is the opaque credential handed out at login.
type AuthToken struct {
	Key       string    `json:"key"`
	UserID    int       `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	Username string `json:"username" validate:"required,max=150,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	ClassID  *int   `json:"class_id"` // students only
}

func (nu *NewUser) Validate(validate *validator.Validate, role Role) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	if role == RoleStudent && nu.ClassID == nil {
		return core.NewFieldValidationError("class_id", "this field is required")
	}
	return nil
}

// UpdateProfile defines which Profile fields may be changed. Nil fields are left untouched.
type UpdateProfile struct {
	Bio         *string `json:"bio"`
	Address     *string `json:"address" validate:"omitempty,max=255"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"` // "" clears it
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	return validate.Struct(up)
}

func (up UpdateProfile) apply(prof *Profile) {
	if up.Bio != nil {
		prof.Bio = core.CleanString(*up.Bio)
	}
	if up.Address != nil {
		prof.Address = core.CleanString(*up.Address)
	}
	if up.Country != nil {
		prof.Country = core.CleanString(*up.Country)
	}
	if up.DateOfBirth != nil {
		dob := core.CleanString(*up.DateOfBirth)
		prof.DateOfBirth = null.NewString(dob, dob != "")
	}
}

// UpdateUserProfile defines what a User may change on their own account.
type UpdateUserProfile struct {
	Username       *string        `json:"username" validate:"omitempty,max=150,username"`
	Email          *string        `json:"email" validate:"omitempty,email,max=254"`
	ProfilePicture *string        `json:"profile_picture" validate:"omitempty,max=255"`
	Role           *string        `json:"role"` // immutable; accepted only when unchanged
	Profile        *UpdateProfile `json:"profile"`
}

func (uu *UpdateUserProfile) Validate(validate *validator.Validate, origUsr User) error {
	if uu.Username != nil {
		uname := core.CleanString(*uu.Username, true /* lower */)
		uu.Username = &uname
	}
	if uu.Email != nil {
		email := core.CleanString(*uu.Email, true /* lower */)
		uu.Email = &email
	}
	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Role != nil {
		if role, err := ParseRole(*uu.Role); err != nil || role != origUsr.Role {
			return core.NewFieldValidationError("role", errRoleImmutable)
		}
	}
	return nil
}

type ChangePassword struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`

	usr User // password similarity
}

func (cp *ChangePassword) Validate(validate *validator.Validate, usr User) error {
	cp.usr = usr
	return validate.Struct(cp)
}

type ResetUserPassword struct {
	UID         string `json:"-"`
	Token       string `json:"-"`
	NewPassword string `json:"new_password" validate:"required"`

	usr User // password similarity
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate, usr User) error {
	rp.usr = usr
	return validate.Struct(rp)
}

type GetFilter struct {
	ID              int
	Username        string
	Email           string
	UsernameOrEmail string
}

// QueryFilter applies AND operation on its non-zero fields.
type QueryFilter struct {
	IDs  []int
	Role Role
}

// Summary is the short view of a User embedded in other resources.
type Summary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Email: u.Email}
}
