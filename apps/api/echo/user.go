package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/user"
)

const (
	msgCheckInbox = "If the email address supplied is associated with an account on this system, " +
		"an email will arrive in your inbox shortly with further instructions."
	msgPasswordReset = "Password has been reset with the new password."
)

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
	tokens   tokenIssuer
}

func registerUserAPI(
	g *echo.Group,
	svc *user.Service,
	validate *validator.Validate,
	tokens tokenIssuer,
	limiter, required, refresh echo.MiddlewareFunc,
) {
	api := userApi{svc: svc, validate: validate, tokens: tokens}

	ug := g.Group("/users")

	// un-authed endpoints
	lg := ug.Group("", limiter)
	lg.POST("/signup", api.signup)
	lg.POST("/login", api.login)
	lg.POST("/verify", api.verify)
	lg.POST("/verify/resend", api.resendVerification)
	lg.POST("/password-reset", api.requestPasswordReset)
	lg.POST("/password-reset/confirm", api.confirmPasswordReset)

	// authed endpoints
	ug.POST("/token-refresh", api.refreshToken, refresh)
	ug.GET("/me", api.me, required)
}

// Handlers

func (api *userApi) signup(ctx echo.Context) error {
	data, err := bindBody[user.NewUser](ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, newUserResponse(usr))
}

func (api *userApi) login(ctx echo.Context) error {
	data, err := bindValid[LoginRequest](ctx, api.validate)
	if err != nil {
		return err
	}
	usr, err := api.svc.Login(ctx.Request().Context(), data.Email, data.Password)
	switch {
	case errors.Is(err, user.ErrInvalidCredentials):
		return core.NewValidationError(user.ErrInvalidCredentials)
	case err != nil:
		return errors.Wrap(err, "authenticating")
	}

	resp, err := api.tokens.pair(usr, 0)
	if err != nil {
		return errors.Wrap(err, "issuing tokens")
	}
	return ctx.JSON(http.StatusOK, resp)
}

// refreshToken issues a new access token. The session start (orig_iat) carries over, so a refresh
// chain cannot outlive the refresh window.
func (api *userApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	// re-read the account: it may be gone or unverified since the login
	usr, err := api.svc.GetByEmail(ctx.Request().Context(), claims.Subject)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return errInvalidToken
	case err != nil:
		return errors.Wrap(err, "loading token subject")
	case !usr.IsVerified:
		return errNotVerified
	}

	token, err := api.tokens.generate(api.tokens.claims(usr, false, claims.OrigIssuedAt))
	if err != nil {
		return errors.Wrap(err, "issuing access token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *userApi) verify(ctx echo.Context) error {
	data, err := bindValid[TokenRequest](ctx, api.validate)
	if err != nil {
		return err
	}
	usr, err := api.svc.Verify(ctx.Request().Context(), data.Token)
	if err != nil {
		return errors.Wrap(err, "verifying email")
	}
	return ctx.JSON(http.StatusOK, newUserResponse(usr))
}

// resendVerification and requestPasswordReset answer the same way whether or not the account exists.
func (api *userApi) resendVerification(ctx echo.Context) error {
	return api.mailAccount(ctx, api.svc.SendVerification)
}

func (api *userApi) requestPasswordReset(ctx echo.Context) error {
	return api.mailAccount(ctx, api.svc.RequestPasswordReset)
}

func (api *userApi) mailAccount(ctx echo.Context, send func(ctx context.Context, email string) error) error {
	data, err := bindValid[EmailRequest](ctx, api.validate)
	if err != nil {
		return err
	}
	if err := send(ctx.Request().Context(), data.Email); err != nil {
		return errors.Wrapf(err, "mailing %s", ctx.Path())
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msgCheckInbox})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	data, err := bindBody[user.ResetPassword](ctx)
	if err != nil {
		return err
	}
	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msgPasswordReset})
}

func (api *userApi) me(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	usr, err := api.svc.GetByEmail(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "loading current user")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"principal": p, "user": newUserResponse(usr)})
}
