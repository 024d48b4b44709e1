package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cadence-academy/backend/core/user"
)

// roleMiddleware only lets through authenticated users holding one of roles.
// It must run after tokenAuthMiddleware.
func roleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			for _, role := range roles {
				if usr.Role == role {
					return next(ctx)
				}
			}
			return errForbidden
		}
	}
}

var (
	adminMiddleware   = roleMiddleware(user.RoleAdmin)
	teacherMiddleware = roleMiddleware(user.RoleTeacher)
	studentMiddleware = roleMiddleware(user.RoleStudent)
)

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// writeRoleMiddleware applies roleMiddleware to unsafe methods only.
func writeRoleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	guard := roleMiddleware(roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := guard(next)
		return func(ctx echo.Context) error {
			if isSafeMethod(ctx.Request().Method) {
				return next(ctx)
			}
			return guarded(ctx)
		}
	}
}

// catalogWriteMiddleware enforces the catalog write policy:
// any authenticated user may write when openWrites, admins & teachers otherwise.
func catalogWriteMiddleware(openWrites bool) echo.MiddlewareFunc {
	if openWrites {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return writeRoleMiddleware(user.RoleAdmin, user.RoleTeacher)
}
