package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core/user"
)

const (
	authScheme     = "Token"
	contextUserKey = "user"
)

// tokenAuthMiddleware authenticates requests carrying an `Authorization: Token <key>` header.
func tokenAuthMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				return errUnauthorized
			}
			scheme, key, found := strings.Cut(auth, " ")
			if !found || !strings.EqualFold(scheme, authScheme) {
				return errInvalidToken
			}
			key = strings.TrimSpace(key)
			if key == "" || strings.Contains(key, " ") {
				return errInvalidToken
			}

			usr, err := svc.GetTokenUser(ctx.Request().Context(), key)
			if err != nil {
				switch errors.Cause(err) {
				case user.ErrTokenNotFound, user.ErrNotFound:
					return errInvalidToken
				case user.ErrAccountDeactivated:
					return errAccountDeactivated
				}
				return errors.Wrap(err, "authenticating token")
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}
