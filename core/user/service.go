package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("user not found")
	ErrProfileNotFound = core.NewNotFoundError("profile not found")
	ErrTokenNotFound   = core.NewNotFoundError("token not found")

	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrTokenExists          = errors.New("the user already has a token")
	ErrAuthenticationFailed = errors.New("unable to log in with provided credentials")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrInvalidResetLink     = errors.New("invalid reset link")
	ErrUnknownClass         = errors.New("class does not exist")
	ErrWrongPassword        = errors.New("wrong password")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when taken by anyone but excludedUsers.
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error) // ErrUsernameExists, ErrEmailExists
		// CreateStudent creates usr and enrols them in the class in one write. ErrUnknownClass
		CreateStudent(ctx context.Context, usr User, classID int) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error) // ordered by username
		UpdateUser(ctx context.Context, usr User) (User, error) // ErrUsernameExists, ErrEmailExists
		DeleteUser(ctx context.Context, id int) error // cascades to profile, token, results & class memberships

		GetProfile(ctx context.Context, userID int) (Profile, error)
		SaveProfile(ctx context.Context, prof Profile) (Profile, error) // creates or updates

		GetToken(ctx context.Context, key string) (AuthToken, error)
		GetUserToken(ctx context.Context, userID int) (AuthToken, error)
		CreateToken(ctx context.Context, token AuthToken) (AuthToken, error) // ErrTokenExists
		DeleteUserToken(ctx context.Context, userID int) error
	}

	// ClassRoster checks the class of registering students before their password is hashed.
	ClassRoster interface {
		ClassExists(ctx context.Context, classID int) (bool, error)
	}

	Service struct {
		repo            Repository
		roster          ClassRoster
		mailSvc         core.EmailService
		tokens          tokenGenerator
		frontendBaseURL string
	}
)

func NewService(repo Repository, roster ClassRoster, mailSvc core.EmailService, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:            repo,
		roster:          roster,
		mailSvc:         mailSvc,
		tokens:          newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeout),
		frontendBaseURL: conf.FrontendBaseURL,
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers...); err != nil {
		return userWriteError(err, "checking uniqueness")
	}
	return nil
}

// userWriteError reports a taken username or email as a field error, whichever write detected it.
func userWriteError(err error, msg string) error {
	var field string
	switch errors.Cause(err) {
	case ErrUsernameExists:
		field = "username"
	case ErrEmailExists:
		field = "email"
	default:
		return errors.Wrap(err, msg)
	}
	return core.NewValidationError(errors.Cause(err), core.FieldError{Field: field, Error: errors.Cause(err).Error()})
}

func unknownClassError(classID int) error {
	return core.NewFieldValidationError("class_id", fmt.Sprintf(`invalid pk "%d" - object does not exist`, classID))
}

// Register creates a User with the given role. Students are attached to NewUser.ClassID.
func (svc *Service) Register(ctx context.Context, role Role, nu NewUser) (User, error) {
	if !role.Valid() {
		return User{}, errors.Wrapf(ErrInvalidRole, "%q", role)
	}
	if err := svc.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}
	if role == RoleStudent {
		if nu.ClassID == nil {
			return User{}, core.NewFieldValidationError("class_id", "this field is required")
		}
		exists, err := svc.roster.ClassExists(ctx, *nu.ClassID)
		if err != nil {
			return User{}, errors.Wrap(err, "checking class")
		}
		if !exists {
			return User{}, unknownClassError(*nu.ClassID)
		}
	}

	now := time.Now().UTC()
	usr := User{
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	if role != RoleStudent {
		usr, err := svc.repo.CreateUser(ctx, usr)
		if err != nil {
			return User{}, userWriteError(err, "creating user")
		}
		return usr, nil
	}

	usr, err := svc.repo.CreateStudent(ctx, usr, *nu.ClassID)
	if err != nil {
		if errors.Cause(err) == ErrUnknownClass { // deleted since checked
			return User{}, unknownClassError(*nu.ClassID)
		}
		return User{}, userWriteError(err, "creating student")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// ListByRole returns the users holding role, ordered by username.
func (svc *Service) ListByRole(ctx context.Context, role Role) ([]User, error) {
	if !role.Valid() {
		return nil, errors.Wrapf(ErrInvalidRole, "%q", role)
	}
	return svc.repo.QueryUsers(ctx, QueryFilter{Role: role})
}

// QueryByIDs returns the users with the given IDs. Unknown IDs are ignored.
func (svc *Service) QueryByIDs(ctx context.Context, ids ...int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	return svc.repo.QueryUsers(ctx, QueryFilter{IDs: ids})
}

// Authenticate checks the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = time.Now().UTC()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

// Login authenticates the user and returns their token, creating it when absent.
func (svc *Service) Login(ctx context.Context, uname, pwd string) (AuthToken, User, error) {
	usr, err := svc.Authenticate(ctx, uname, pwd)
	if err != nil {
		return AuthToken{}, User{}, err
	}

	token, err := svc.repo.GetUserToken(ctx, usr.ID)
	if err == nil {
		return token, usr, nil
	}
	if errors.Cause(err) != ErrTokenNotFound {
		return AuthToken{}, User{}, errors.Wrap(err, "finding user token")
	}

	token, err = svc.repo.CreateToken(ctx, AuthToken{
		Key:       newTokenKey(),
		UserID:    usr.ID,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Cause(err) == ErrTokenExists { // concurrent login
		token, err = svc.repo.GetUserToken(ctx, usr.ID)
	}
	if err != nil {
		return AuthToken{}, User{}, errors.Wrap(err, "creating user token")
	}
	return token, usr, nil
}

// Logout deletes the user's token. ErrTokenNotFound is returned if they have none.
func (svc *Service) Logout(ctx context.Context, usr User) error {
	return svc.repo.DeleteUserToken(ctx, usr.ID)
}

// GetTokenUser returns the active user owning the token key.
func (svc *Service) GetTokenUser(ctx context.Context, key string) (User, error) {
	token, err := svc.repo.GetToken(ctx, key)
	if err != nil {
		return User{}, err
	}
	usr, err := svc.GetByID(ctx, token.UserID)
	if err != nil {
		return User{}, errors.Wrap(err, "finding token user")
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return usr, nil
}

// ChangePassword sets a new password after checking the old one.
func (svc *Service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) error {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return core.NewValidationError(ErrWrongPassword, core.FieldError{Field: "old_password", Error: "Wrong password."})
	}
	return svc.setPassword(ctx, usr, cp.NewPassword)
}

func (svc *Service) setPassword(ctx context.Context, usr User, pwd string) error {
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// ResetLink returns the password reset link of usr.
func (svc *Service) ResetLink(usr User) string {
	path := fmt.Sprintf("reset/%s/%s/", EncodeUID(usr), svc.tokens.makeToken(usr))
	if svc.frontendBaseURL == "" {
		return path
	}
	return svc.frontendBaseURL + "/" + path
}

// RequestPasswordReset returns the reset link of the user owning email and mails it to them.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	link := svc.ResetLink(usr)
	svc.sendPasswordResetMail(usr, link)
	return link, nil
}

func (svc *Service) sendPasswordResetMail(usr User, link string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Username, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Username":  usr.Username,
			"ResetLink": link,
		},
	})
}

// VerifyResetLink returns the user a reset link was issued to.
// Every failure cause is reported as ErrInvalidResetLink.
func (svc *Service) VerifyResetLink(ctx context.Context, uid, token string) (User, error) {
	id, err := decodeUID(strings.TrimSpace(uid))
	if err != nil {
		return User{}, ErrInvalidResetLink
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidResetLink
		}
		return User{}, errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, token); err != nil {
		return User{}, ErrInvalidResetLink
	}
	return usr, nil
}

// ResetPassword sets a new password for the user the reset link was issued to.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	usr, err := svc.VerifyResetLink(ctx, rp.UID, rp.Token)
	if err != nil {
		return err
	}
	return svc.setPassword(ctx, usr, rp.NewPassword)
}

// GetOrCreateProfile returns the profile of usr, creating an empty one on first access.
func (svc *Service) GetOrCreateProfile(ctx context.Context, usr User) (Profile, error) {
	prof, err := svc.repo.GetProfile(ctx, usr.ID)
	if err == nil {
		return prof, nil
	}
	if errors.Cause(err) != ErrProfileNotFound {
		return Profile{}, errors.Wrap(err, "finding profile")
	}
	prof, err = svc.repo.SaveProfile(ctx, Profile{UserID: usr.ID})
	return prof, errors.Wrap(err, "creating profile")
}

// GetProfile returns the existing profile of the user.
func (svc *Service) GetProfile(ctx context.Context, userID int) (Profile, error) {
	return svc.repo.GetProfile(ctx, userID)
}

// UpdateProfile updates the existing profile of the user.
func (svc *Service) UpdateProfile(ctx context.Context, userID int, up UpdateProfile) (Profile, error) {
	prof, err := svc.repo.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	up.apply(&prof)
	prof, err = svc.repo.SaveProfile(ctx, prof)
	return prof, errors.Wrap(err, "saving profile")
}

// UpdateUserProfile applies a self-service update to usr and their profile.
func (svc *Service) UpdateUserProfile(ctx context.Context, usr User, uu UpdateUserProfile) (User, Profile, error) {
	uname, email := usr.Username, usr.Email
	if uu.Username != nil && *uu.Username != "" {
		uname = *uu.Username
	}
	if uu.Email != nil && *uu.Email != "" {
		email = *uu.Email
	}
	if uname != usr.Username || email != usr.Email {
		if err := svc.CheckUniqueness(ctx, uname, email, usr); err != nil {
			return User{}, Profile{}, err
		}
	}

	if uname != usr.Username || email != usr.Email || uu.ProfilePicture != nil {
		usr.Username = uname
		usr.Email = email
		if uu.ProfilePicture != nil {
			usr.ProfilePicture = core.CleanString(*uu.ProfilePicture)
		}
		usr.UpdatedAt = time.Now().UTC()

		var err error
		if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
			return User{}, Profile{}, userWriteError(err, "updating user")
		}
	}

	prof, err := svc.GetOrCreateProfile(ctx, usr)
	if err != nil {
		return User{}, Profile{}, err
	}
	if uu.Profile != nil {
		uu.Profile.apply(&prof)
		if prof, err = svc.repo.SaveProfile(ctx, prof); err != nil {
			return User{}, Profile{}, errors.Wrap(err, "saving profile")
		}
	}
	return usr, prof, nil
}

// newTokenKey returns a random 32 chars hex key.
func newTokenKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
