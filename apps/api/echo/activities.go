package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
)

func (s *Server) registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	ag := g.Group("/activities", jwt)
	ag.GET("", s.activityQuery)
	ag.POST("", s.activityCreate)
}

func (s *Server) activityQuery(ctx echo.Context) error {
	filter := activity.QueryFilter{
		Actor:  ctx.QueryParam("actor"),
		Action: ctx.QueryParam("action"),
	}
	if val := ctx.QueryParam("limit"); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "limit", Error: "must be an integer"})
		}
		filter.Limit = limit
	}

	entries, err := s.activitySvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (s *Server) activityCreate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data := new(activity.NewEntry)
	if err = ctx.Bind(data); err != nil {
		return err
	}

	entry, err := s.activitySvc.Append(ctx.Request().Context(), claims.Identity(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, entry)
}
