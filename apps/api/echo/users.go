package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/user"
)

func (s *Server) registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", s.userLogin)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", s.userRefreshToken)
	ag.GET("/me", s.userMe)
	ag.POST("", s.userCreate, adminMiddleware())
}

func (s *Server) userLogin(ctx echo.Context) error {
	data := new(LoginRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(s.validate); err != nil {
		return err
	}

	usr, claims, err := s.authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		return err
	}
	token, err := s.GenerateToken(claims)
	if err != nil {
		return err
	}

	s.log(ctx, usr.Identity(), activity.ActionUserLogin, "")
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *Server) userRefreshToken(ctx echo.Context) error {
	token, err := s.refreshToken(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *Server) userMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.userSvc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) userCreate(ctx echo.Context) error {
	data := new(user.NewUser)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	usr, err := s.userSvc.Create(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}
