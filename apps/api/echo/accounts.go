package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core"
	"github.com/cadence-academy/backend/core/user"
)

type accountsApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerAccountsAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := accountsApi{svc: deps.UserSvc, validate: deps.Validate}

	// un-authed endpoints
	g.POST("/register/admin", api.register(user.RoleAdmin))
	g.POST("/register/teacher", api.register(user.RoleTeacher))
	g.POST("/register/student", api.register(user.RoleStudent))
	g.POST("/login", api.login)
	g.POST("/password-reset-request", api.requestPasswordReset)
	g.POST("/password-reset-confirm/:uid/:token", api.confirmPasswordReset)

	// authed endpoints
	g.POST("/logout", api.logout, auth)
	g.POST("/password-change", api.changePassword, auth)
	g.GET("/user/profile/:id", api.retrieveOwnProfile, auth)
	g.PATCH("/user/profile/:id", api.updateOwnProfile, auth)
	g.GET("/teacher/profile", api.retrieveMyProfile, auth, teacherMiddleware)
	g.GET("/student/profile", api.retrieveMyProfile, auth, studentMiddleware)

	// admin endpoints
	g.GET("/admin/profile-detail/:id", api.retrieveProfile, auth, adminMiddleware)
	g.PATCH("/admin/profile-detail/:id", api.updateProfile, auth, adminMiddleware)
	g.GET("/teachers", api.listByRole(user.RoleTeacher), auth, adminMiddleware)
	g.GET("/students", api.listByRole(user.RoleStudent), auth, adminMiddleware)

	registerClassRoutes(g.Group("/classes", auth, writeRoleMiddleware(user.RoleAdmin)), deps)
}

// Handlers

func (api *accountsApi) register(role user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data user.NewUser
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewUser")
		}
		if role != user.RoleStudent {
			data.ClassID = nil
		}
		if err := data.Validate(api.validate, role); err != nil {
			return err
		}

		usr, err := api.svc.Register(ctx.Request().Context(), role, data)
		if err != nil {
			return errors.Wrapf(mapUserError(err), "registering %s", role)
		}
		return ctx.JSON(http.StatusCreated, newUserView(usr))
	}
}

func (api *accountsApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, usr, err := api.svc.Login(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return errors.Wrap(mapUserError(err), "logging in")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:  token.Key,
		UserID: usr.ID,
		Email:  usr.Email,
		Role:   usr.Role,
	})
}

func (api *accountsApi) logout(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Logout(ctx.Request().Context(), usr); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountsApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(api.validate, usr); err != nil {
		return err
	}

	if err = api.svc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, DetailResponse{Detail: "Password has been changed."})
}

func (api *accountsApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	link, err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, echo.Map{"email": "No user found with this email address."})
		}
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, PasswordResetResponse{ResetLink: link})
}

func (api *accountsApi) confirmPasswordReset(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	uid, token := ctx.Param("uid"), ctx.Param("token")

	usr, err := api.svc.VerifyResetLink(reqCtx, uid, token)
	if err != nil {
		return errors.Wrap(mapUserError(err), "verifying reset link")
	}

	var data user.ResetUserPassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	data.UID, data.Token = uid, token
	if err = data.Validate(api.validate, usr); err != nil {
		return err
	}

	if err = api.svc.ResetPassword(reqCtx, data); err != nil {
		return errors.Wrap(mapUserError(err), "resetting password")
	}
	return ctx.JSON(http.StatusOK, DetailResponse{Detail: "Password has been reset successfully."})
}

// ownProfileUser returns the context user when they are the one targeted by the `id` path param.
func (api *accountsApi) ownProfileUser(ctx echo.Context) (user.User, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return user.User{}, err
	}
	id, err := pathID(ctx)
	if err != nil {
		return user.User{}, err
	}
	if id != usr.ID {
		return user.User{}, errForbidden
	}
	return usr, nil
}

func (api *accountsApi) retrieveOwnProfile(ctx echo.Context) error {
	usr, err := api.ownProfileUser(ctx)
	if err != nil {
		return err
	}
	prof, err := api.svc.GetOrCreateProfile(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, newProfileView(usr, prof))
}

func (api *accountsApi) updateOwnProfile(ctx echo.Context) error {
	usr, err := api.ownProfileUser(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUserProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUserProfile")
	}
	if err = data.Validate(api.validate, usr); err != nil {
		return err
	}

	usr, prof, err := api.svc.UpdateUserProfile(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, newProfileView(usr, prof))
}

func (api *accountsApi) retrieveMyProfile(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	prof, err := api.svc.GetOrCreateProfile(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, newProfileView(usr, prof))
}

func (api *accountsApi) retrieveProfile(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	prof, err := api.svc.GetProfile(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *accountsApi) updateProfile(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	prof, err := api.svc.UpdateProfile(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *accountsApi) listByRole(role user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		users, err := api.svc.ListByRole(ctx.Request().Context(), role)
		if err != nil {
			return errors.Wrapf(err, "listing %ss", role)
		}
		views := make([]UserView, 0, len(users))
		for _, usr := range users {
			views = append(views, newUserView(usr))
		}
		return ctx.JSON(http.StatusOK, views)
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"` // or email
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token  string    `json:"token"`
		UserID int       `json:"user_id"`
		Email  string    `json:"email"`
		Role   user.Role `json:"role"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	PasswordResetResponse struct {
		ResetLink string `json:"reset_link"`
	}

	DetailResponse struct {
		Detail string `json:"detail"`
	}

	UserView struct {
		ID       int       `json:"id"`
		Username string    `json:"username"`
		Email    string    `json:"email"`
		Role     user.Role `json:"role"`
	}

	ProfileView struct {
		UserView
		ProfilePicture string       `json:"profile_picture"`
		Profile        user.Profile `json:"profile"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func newUserView(usr user.User) UserView {
	return UserView{ID: usr.ID, Username: usr.Username, Email: usr.Email, Role: usr.Role}
}

func newProfileView(usr user.User, prof user.Profile) ProfileView {
	return ProfileView{UserView: newUserView(usr), ProfilePicture: usr.ProfilePicture, Profile: prof}
}
