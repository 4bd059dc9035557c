package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/record"
)

func (s *Server) registerRecordAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	rg := g.Group("/records", jwt)
	rg.GET("", s.recordQuery)
	rg.POST("", s.recordCreate)
	rg.GET("/stats", s.recordStats)

	// detail endpoints
	rg.GET("/:id", s.recordRetrieve)
	rg.PUT("/:id", s.recordUpdate)
	rg.DELETE("/:id", s.recordDestroy, adminMiddleware())
}

func bindRecordFilter(ctx echo.Context) (*record.QueryFilter, error) {
	filter := &record.QueryFilter{
		Search:    ctx.QueryParam("search"),
		Owner:     ctx.QueryParam("owner"),
		Email:     ctx.QueryParam("email"),
		DueBefore: ctx.QueryParam("due_before"),
	}
	for _, val := range ctx.QueryParams()["status"] {
		filter.Statuses = append(filter.Statuses, core.SplitCSV(val)...)
	}
	if val := ctx.QueryParam("suppressed"); val != "" {
		suppressed, err := strconv.ParseBool(val)
		if err != nil {
			return nil, core.NewValidationError(err, core.FieldError{Field: "suppressed", Error: "must be true or false"})
		}
		filter.Suppressed = &suppressed
	}
	filter.Clean()
	if filter.IsEmpty() {
		return nil, nil
	}
	return filter, nil
}

func (s *Server) recordQuery(ctx echo.Context) error {
	filter, err := bindRecordFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	records, err := s.recordSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, records)
}

func (s *Server) recordStats(ctx echo.Context) error {
	stats, err := s.recordSvc.Stats(ctx.Request().Context(), s.today())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (s *Server) recordCreate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data := new(record.NewRecord)
	if err = ctx.Bind(data); err != nil {
		return err
	}

	rec, err := s.recordSvc.Create(ctx.Request().Context(), *data, claims.Identity())
	if err != nil {
		return err
	}

	s.log(ctx, claims.Identity(), activity.ActionRecordCreate, "record_id="+rec.ID)
	return ctx.JSON(http.StatusCreated, rec)
}

func (s *Server) recordRetrieve(ctx echo.Context) error {
	rec, err := s.recordSvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) recordUpdate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data := new(record.UpdateRecord)
	if err = ctx.Bind(data); err != nil {
		return err
	}

	rec, err := s.recordSvc.Update(ctx.Request().Context(), ctx.Param("id"), *data)
	if err != nil {
		return err
	}

	s.log(ctx, claims.Identity(), activity.ActionRecordUpdate, "record_id="+rec.ID)
	return ctx.JSON(http.StatusOK, rec)
}

func (s *Server) recordDestroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	if err = s.recordSvc.Delete(ctx.Request().Context(), id); err != nil {
		return err
	}

	s.log(ctx, claims.Identity(), activity.ActionRecordDelete, "record_id="+id)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "record deleted"})
}
