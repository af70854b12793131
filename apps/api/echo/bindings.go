package echoapi

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/review"
	"github.com/trezcool/coursereview/core/user"
)

const (
	staleHeader   = "X-Data-Stale"
	orderingParam = "ordering"
	groupedParam  = "grouped"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	TokenResponse struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token,omitempty"`
	}

	EmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	TokenRequest struct {
		Token string `json:"token" validate:"required"`
	}

	IDsRequest struct {
		IDs []string `json:"ids"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	// UserResponse is the public view of an account.
	UserResponse struct {
		Email      string    `json:"email"`
		Display    string    `json:"display"`
		Role       string    `json:"role"`
		IsVerified bool      `json:"is_verified"`
		CreatedAt  time.Time `json:"created_at"`
	}

	GroupedPage struct {
		Groups []review.TypeGroup `json:"results"`
		Total  int                `json:"total"`
		Stale  bool               `json:"stale"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	er.Email = core.CleanString(er.Email, true /* lower */)
	return validate.Struct(er)
}

func (tr *TokenRequest) Validate(validate *validator.Validate) error {
	tr.Token = core.CleanString(tr.Token)
	return validate.Struct(tr)
}

type selfValidating[T any] interface {
	*T
	Validate(validate *validator.Validate) error
}

// bindBody binds the request body to a new T.
func bindBody[T any](ctx echo.Context) (T, error) {
	var data T
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrapf(err, "binding to %T", data)
	}
	return data, nil
}

// bindValid binds the request body to a new T and validates it.
func bindValid[T any, PT selfValidating[T]](ctx echo.Context, validate *validator.Validate) (T, error) {
	data, err := bindBody[T](ctx)
	if err != nil {
		return data, err
	}
	return data, PT(&data).Validate(validate)
}

func newUserResponse(usr user.User) UserResponse {
	return UserResponse{
		Email:      usr.Email,
		Display:    usr.Display,
		Role:       usr.Role,
		IsVerified: usr.IsVerified,
		CreatedAt:  usr.CreatedAt,
	}
}

// bindQuery reads the review filter and the ordering from the query string.
func bindQuery(ctx echo.Context) (review.Query, error) {
	var f review.Filter
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &f); err != nil {
		return review.Query{}, core.NewValidationError(err, core.FieldError{Field: "query", Error: "invalid query parameters"})
	}
	return review.NewQuery(f, ctx.QueryParam(orderingParam))
}

func wantGrouped(ctx echo.Context) bool {
	grouped, _ := strconv.ParseBool(ctx.QueryParam(groupedParam))
	return grouped
}

// setStale flags responses served from the last-known-good snapshot.
func setStale(ctx echo.Context, stale bool) {
	if stale {
		ctx.Response().Header().Set(staleHeader, "true")
	}
}
