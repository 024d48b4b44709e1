package user_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/catalog"
	. "github.com/cadence-academy/backend/core/user"
	appfs "github.com/cadence-academy/backend/fs"
	emailsvc "github.com/cadence-academy/backend/services/email"
	dummydb "github.com/cadence-academy/backend/storage/database/dummy"
	"github.com/cadence-academy/backend/tests"
)

const pwd = "Zebra-Horizon-42"

func TestMain(m *testing.M) {
	conf := testutil.NewConfig()
	core.ParseEmailTemplates(appfs.FS, conf, testutil.NewLogger(conf))
	os.Exit(m.Run())
}

type fixture struct {
	svc         *Service
	repo        Repository
	catalogRepo catalog.Repository
	mailSvc     *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := testutil.NewConfig()
	db := dummydb.Open()
	repo := dummydb.NewUserRepository(db)
	catalogRepo := dummydb.NewCatalogRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))
	return fixture{
		svc:         NewService(repo, catalog.NewService(catalogRepo, repo), mailSvc, conf),
		repo:        repo,
		catalogRepo: catalogRepo,
		mailSvc:     mailSvc,
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want a *core.ValidationError, got %v", err)
	flds := make(map[string]string, len(vErr.Fields))
	for _, fld := range vErr.Fields {
		flds[fld.Field] = fld.Error
	}
	return flds
}

func TestService_Register(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cls := testutil.CreateClass(t, f.catalogRepo, catalog.Class{Name: "JSS 1"})
	testutil.CreateUser(t, f.repo, "taken", "taken@test.cd", pwd, RoleTeacher, true)

	_, err := f.svc.Register(ctx, Role("janitor"), NewUser{Username: "jan", Email: "jan@test.cd", Password: pwd})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = f.svc.Register(ctx, RoleTeacher, NewUser{Username: "taken", Email: "new@test.cd", Password: pwd})
	assert.Equal(t, map[string]string{"username": "a user with this username already exists"}, fieldErrors(t, err))

	_, err = f.svc.Register(ctx, RoleTeacher, NewUser{Username: "new", Email: "taken@test.cd", Password: pwd})
	assert.Equal(t, map[string]string{"email": "a user with this email already exists"}, fieldErrors(t, err))

	_, err = f.svc.Register(ctx, RoleStudent, NewUser{Username: "kid", Email: "kid@test.cd", Password: pwd})
	assert.Equal(t, map[string]string{"class_id": "this field is required"}, fieldErrors(t, err))

	classID := cls.ID
	usr, err := f.svc.Register(ctx, RoleStudent, NewUser{Username: "kid", Email: "kid@test.cd", Password: pwd, ClassID: &classID})
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, usr.Role)
	assert.True(t, usr.IsActive)
	assert.False(t, usr.IsSuperuser)
	assert.NoError(t, usr.CheckPassword(pwd))

	cls, err = f.catalogRepo.GetClass(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{usr.ID}, cls.StudentIDs)
}

// uncheckedRepository lets every pre-write uniqueness check pass, as when a rival write lands in between.
type uncheckedRepository struct {
	Repository
}

func (uncheckedRepository) CheckUniqueness(context.Context, string, string, ...User) error {
	return nil
}

// staleRoster reports every class as existing.
type staleRoster struct{}

func (staleRoster) ClassExists(context.Context, int) (bool, error) {
	return true, nil
}

func TestService_UniquenessEnforcedOnWrite(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := NewService(uncheckedRepository{f.repo}, staleRoster{}, f.mailSvc, testutil.NewConfig())
	cls := testutil.CreateClass(t, f.catalogRepo, catalog.Class{Name: "JSS 1"})
	testutil.CreateUser(t, f.repo, "taken", "taken@test.cd", pwd, RoleTeacher, true)
	usr := testutil.CreateUser(t, f.repo, "free", "free@test.cd", pwd, RoleTeacher, true)
	classID := cls.ID

	_, err := svc.Register(ctx, RoleTeacher, NewUser{Username: "taken", Email: "new@test.cd", Password: pwd})
	assert.Equal(t, map[string]string{"username": "a user with this username already exists"}, fieldErrors(t, err))

	_, err = svc.Register(ctx, RoleStudent, NewUser{Username: "kid", Email: "taken@test.cd", Password: pwd, ClassID: &classID})
	assert.Equal(t, map[string]string{"email": "a user with this email already exists"}, fieldErrors(t, err))

	taken := "taken"
	_, _, err = svc.UpdateUserProfile(ctx, usr, UpdateUserProfile{Username: &taken})
	assert.Equal(t, map[string]string{"username": "a user with this username already exists"}, fieldErrors(t, err))

	cls, err = f.catalogRepo.GetClass(ctx, cls.ID)
	require.NoError(t, err)
	assert.Empty(t, cls.StudentIDs)
}

func TestService_RegisterStudentInDeletedClass(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := NewService(f.repo, staleRoster{}, f.mailSvc, testutil.NewConfig())
	cls := testutil.CreateClass(t, f.catalogRepo, catalog.Class{Name: "JSS 1"})
	require.NoError(t, f.catalogRepo.DeleteClass(ctx, cls.ID))

	classID := cls.ID
	_, err := svc.Register(ctx, RoleStudent, NewUser{Username: "kid", Email: "kid@test.cd", Password: pwd, ClassID: &classID})
	assert.Equal(t, map[string]string{"class_id": fmt.Sprintf(`invalid pk "%d" - object does not exist`, classID)}, fieldErrors(t, err))

	_, err = f.repo.GetUser(ctx, GetFilter{Username: "kid"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_LoginLogout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.repo, "teacher", "teacher@test.cd", pwd, RoleTeacher, true)
	testutil.CreateUser(t, f.repo, "gone", "gone@test.cd", pwd, RoleTeacher, false)

	_, _, err := f.svc.Login(ctx, "teacher", "nope")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = f.svc.Login(ctx, "nobody", pwd)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, _, err = f.svc.Login(ctx, "gone", pwd)
	assert.ErrorIs(t, err, ErrAccountDeactivated)

	token, loggedIn, err := f.svc.Login(ctx, "teacher@test.cd", pwd)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, loggedIn.ID)
	assert.Len(t, token.Key, 32)
	assert.False(t, loggedIn.LastLogin.IsZero())

	again, _, err := f.svc.Login(ctx, "teacher", pwd)
	require.NoError(t, err)
	assert.Equal(t, token.Key, again.Key)

	tokenUsr, err := f.svc.GetTokenUser(ctx, token.Key)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, tokenUsr.ID)

	require.NoError(t, f.svc.Logout(ctx, tokenUsr))
	_, err = f.svc.GetTokenUser(ctx, token.Key)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.ErrorIs(t, f.svc.Logout(ctx, tokenUsr), ErrTokenNotFound)

	// a new login issues a new token
	fresh, _, err := f.svc.Login(ctx, "teacher", pwd)
	require.NoError(t, err)
	assert.NotEqual(t, token.Key, fresh.Key)
}

func TestService_ChangePassword(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.repo, "student", "student@test.cd", pwd, RoleStudent, true)
	newPwd := "Quiet-Lantern-77"

	err := f.svc.ChangePassword(ctx, usr, ChangePassword{OldPassword: "wrong", NewPassword: newPwd})
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, map[string]string{"old_password": "Wrong password."}, fieldErrors(t, err))

	_, err = f.svc.Authenticate(ctx, "student", pwd)
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassword(ctx, usr, ChangePassword{OldPassword: pwd, NewPassword: newPwd}))
	_, err = f.svc.Authenticate(ctx, "student", pwd)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = f.svc.Authenticate(ctx, "student", newPwd)
	assert.NoError(t, err)
}

func TestService_PasswordReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.repo, "forgetful", "forgetful@test.cd", pwd, RoleTeacher, true)
	newPwd := "Quiet-Lantern-77"

	_, err := f.svc.RequestPasswordReset(ctx, "nobody@test.cd")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.mailSvc.SentMessages())

	link, err := f.svc.RequestPasswordReset(ctx, usr.Email)
	require.NoError(t, err)
	assert.Equal(t, f.svc.ResetLink(usr), link)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Password Reset", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, link)

	parts := strings.Split(strings.TrimPrefix(link, "http://localhost:3000/reset/"), "/")
	require.Len(t, parts, 3)
	uid, token := parts[0], parts[1]
	assert.Equal(t, EncodeUID(usr), uid)

	verified, err := f.svc.VerifyResetLink(ctx, uid, token)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, verified.ID)

	for _, bad := range [][2]string{{"", token}, {"!!", token}, {EncodeUID(User{ID: 99}), token}, {uid, token + "0"}, {uid, "abc-def"}} {
		_, err = f.svc.VerifyResetLink(ctx, bad[0], bad[1])
		assert.ErrorIs(t, err, ErrInvalidResetLink, "uid %q token %q", bad[0], bad[1])
	}

	require.NoError(t, f.svc.ResetPassword(ctx, ResetUserPassword{UID: uid, Token: token, NewPassword: newPwd}))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, ResetUserPassword{UID: uid, Token: token, NewPassword: pwd}), ErrInvalidResetLink)

	_, err = f.svc.Authenticate(ctx, usr.Username, pwd)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = f.svc.Authenticate(ctx, usr.Username, newPwd)
	assert.NoError(t, err)
}

func TestService_Profiles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, f.repo, "me", "me@test.cd", pwd, RoleStudent, true)
	testutil.CreateUser(t, f.repo, "other", "other@test.cd", pwd, RoleStudent, true)

	_, err := f.svc.GetProfile(ctx, usr.ID)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = f.svc.UpdateProfile(ctx, usr.ID, UpdateProfile{})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	prof, err := f.svc.GetOrCreateProfile(ctx, usr)
	require.NoError(t, err)
	assert.Equal(t, Profile{UserID: usr.ID}, prof)

	taken := "other"
	_, _, err = f.svc.UpdateUserProfile(ctx, usr, UpdateUserProfile{Username: &taken})
	assert.Equal(t, map[string]string{"username": "a user with this username already exists"}, fieldErrors(t, err))

	email, bio, dob := "me@school.cd", " hi ", "2009-04-01"
	updated, prof, err := f.svc.UpdateUserProfile(ctx, usr, UpdateUserProfile{
		Email:   &email,
		Profile: &UpdateProfile{Bio: &bio, DateOfBirth: &dob},
	})
	require.NoError(t, err)
	assert.Equal(t, "me@school.cd", updated.Email)
	assert.Equal(t, usr.Role, updated.Role)
	assert.Equal(t, "hi", prof.Bio)
	assert.Equal(t, dob, prof.DateOfBirth.String)

	empty := ""
	country := "Kenya"
	prof, err = f.svc.UpdateProfile(ctx, usr.ID, UpdateProfile{Country: &country, DateOfBirth: &empty})
	require.NoError(t, err)
	assert.Equal(t, Profile{UserID: usr.ID, Bio: "hi", Country: "Kenya"}, prof)

	got, err := f.svc.GetProfile(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, prof, got)
}

func TestService_ListByRole(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	zed := testutil.CreateUser(t, f.repo, "zed", "zed@test.cd", pwd, RoleTeacher, true)
	amy := testutil.CreateUser(t, f.repo, "amy", "amy@test.cd", pwd, RoleTeacher, true)
	testutil.CreateUser(t, f.repo, "kid", "kid@test.cd", pwd, RoleStudent, true)

	teachers, err := f.svc.ListByRole(ctx, RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, []User{amy, zed}, teachers)

	admins, err := f.svc.ListByRole(ctx, RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, admins)
}
