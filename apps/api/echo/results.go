package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cadence-academy/backend/core/result"
)

type resultApi struct {
	svc      *result.Service
	validate *validator.Validate
}

func registerResultAPI(g *echo.Group, deps ServerDeps) {
	api := resultApi{svc: deps.ResultSvc, validate: deps.Validate}

	g.GET("", api.query)
	g.POST("", api.create)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.replace)
	g.PATCH("/:id", api.update)
	g.DELETE("/:id", api.destroy)
}

// query supports the `student`, `subject` & `ordering` (id, date_recorded) query params.
func (api *resultApi) query(ctx echo.Context) error {
	var filter result.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		Int("student", &filter.StudentID).
		Int("subject", &filter.SubjectID).
		BindError()
	if err != nil {
		if bErr, ok := err.(*echo.BindingError); ok {
			return echo.NewHTTPError(http.StatusBadRequest, echo.Map{bErr.Field: "A valid integer is required."})
		}
		return badRequest(err)
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	results, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *resultApi) create(ctx echo.Context) error {
	var data result.NewResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResult")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating result")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *resultApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resultApi) replace(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data result.NewResult
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResult")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	return api.save(ctx, id, data.FullUpdate())
}

func (api *resultApi) update(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data result.UpdateResult
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateResult")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	return api.save(ctx, id, data)
}

func (api *resultApi) save(ctx echo.Context, id int, data result.UpdateResult) error {
	res, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *resultApi) destroy(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting result")
	}
	return ctx.NoContent(http.StatusNoContent)
}
