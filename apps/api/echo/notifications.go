package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
)

func (s *Server) registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	ng := g.Group("/notifications", jwt)
	ng.POST("/send", s.notificationSend)
}

// notificationSend delivers a single ad hoc email, without retries.
func (s *Server) notificationSend(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data := new(NotificationRequest)
	if err = ctx.Bind(data); err != nil {
		return err
	}
	if err = data.Validate(s.validate); err != nil {
		return err
	}
	if !s.mailSvc.Configured() {
		return core.ErrMailUnconfigured
	}

	msg := &core.EmailMessage{
		To:          []mail.Address{{Address: data.Recipient}},
		Subject:     data.Subject,
		HTMLContent: data.HTMLBody,
	}
	if err = s.mailSvc.Send(ctx.Request().Context(), msg); err != nil {
		return err
	}

	s.log(ctx, claims.Identity(), activity.ActionNotificationSend, "subject="+data.Subject)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "notification sent"})
}
