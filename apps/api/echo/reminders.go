package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) registerReminderAPI(g *echo.Group) {
	rg := g.Group("/reminders", batchSecretMiddleware(s.conf.Reminders.BatchSecret))
	rg.GET("/run", s.reminderRun)
}

// reminderRun runs one batch for ?date=YYYY-MM-DD, today by default, and returns its summary.
func (s *Server) reminderRun(ctx echo.Context) error {
	sum, err := s.runner.Run(ctx.Request().Context(), ctx.QueryParam("date"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}
