package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minimoodle/core/access"
	"github.com/trezcool/minimoodle/core/account"
)

func (s *server) registerAccountAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	ag := g.Group("/accounts")

	// un-authed endpoints
	ag.POST("/register/:role", s.register)
	ag.POST("/login/:role", s.login)

	// authed endpoints
	mg := ag.Group("", authed...)
	mg.GET("/me", s.me)
	mg.POST("/token-refresh", s.tokenRefresh)
	mg.GET("/pending", s.pendingInstructors)
	mg.POST("/:id/approve", s.approveAccount)
	mg.POST("/:id/revoke", s.revokeAccount)
}

// entryRole is the role of the portal named by the :role path param.
func entryRole(ctx echo.Context) (access.Role, error) {
	role := access.Role(ctx.Param("role"))
	if !role.Valid() {
		return access.RoleNone, errHttpNotFound
	}
	return role, nil
}

func (s *server) register(ctx echo.Context) error {
	role, err := entryRole(ctx)
	if err != nil {
		return err
	}
	var data RegisterRequest
	if err = bind(ctx, &data, "RegisterRequest"); err != nil {
		return err
	}

	var acc account.Account
	reqCtx := ctx.Request().Context()
	switch role {
	case access.RoleStudent:
		acc, err = s.deps.AccountSvc.RegisterStudent(reqCtx, data.Credentials, data.Department, s.now())
	case access.RoleInstructor:
		acc, err = s.deps.AccountSvc.RegisterInstructor(reqCtx, data.Credentials, data.Department, s.now())
	default: // moderators are created with the admin tool
		return errHttpNotFound
	}
	if err != nil {
		return errors.Wrap(err, "registering account")
	}
	return ctx.JSON(http.StatusCreated, acc)
}

func (s *server) login(ctx echo.Context) error {
	role, err := entryRole(ctx)
	if err != nil {
		return err
	}
	var data LoginRequest
	if err = bind(ctx, &data, "LoginRequest"); err != nil {
		return err
	}
	if err = data.Validate(); err != nil {
		return err
	}

	acc, err := s.deps.AccountSvc.Authenticate(ctx.Request().Context(), data.Username, data.Password, role, s.now())
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := s.auth.generateToken(s.auth.accountClaims(acc))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Account: &acc})
}

func (s *server) me(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (s *server) tokenRefresh(ctx echo.Context) error {
	token, err := s.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *server) pendingInstructors(ctx echo.Context) error {
	accs, err := s.deps.AccountSvc.PendingInstructors(ctx.Request().Context(), contextActor(ctx))
	if err != nil {
		return errors.Wrap(err, "querying pending instructors")
	}
	return ctx.JSON(http.StatusOK, accs)
}

func (s *server) approveAccount(ctx echo.Context) error {
	acc, err := s.deps.AccountSvc.Approve(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), s.now())
	if err != nil {
		return errors.Wrap(err, "approving account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (s *server) revokeAccount(ctx echo.Context) error {
	acc, err := s.deps.AccountSvc.Revoke(ctx.Request().Context(), contextActor(ctx), ctx.Param("id"), s.now())
	if err != nil {
		return errors.Wrap(err, "revoking account")
	}
	return ctx.JSON(http.StatusOK, acc)
}
