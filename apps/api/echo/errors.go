package echoapi

import (
	"fmt"
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/catalog"
	"github.com/trezcool/coursereview/core/user"
)

const retryAfterSeconds = 5

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errMissingToken  = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken  = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errNotVerified   = echo.NewHTTPError(http.StatusForbidden, user.ErrNotVerified.Error())
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
	errHttpConflict  = echo.NewHTTPError(http.StatusConflict, "the data changed concurrently, please retry")
	errUnavailable   = echo.NewHTTPError(http.StatusServiceUnavailable, "the review store is unreachable, please retry later")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Validator errors are translated with translator.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) {
			err = core.TranslateValidationErrors(valErrs, translator)
		}

		var (
			code    int
			message interface{}
			vErr    *core.ValidationError
			hErr    *echo.HTTPError
		)

		switch {
		case errors.As(err, &vErr):
			code = http.StatusBadRequest
			if len(vErr.Fields) > 0 {
				fldErrs := make(map[string]string, len(vErr.Fields))
				for _, fErr := range vErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = vErr.Error()
			}
		case errors.As(err, &hErr):
			if herr, ok := hErr.Internal.(*echo.HTTPError); ok {
				hErr = herr
			}
			code = hErr.Code
			message = hErr.Message
		case errors.Is(err, user.ErrInvalidToken), errors.Is(err, user.ErrTokenExpired):
			code = http.StatusBadRequest
			message = map[string]string{"token": errors.Cause(err).Error()}
		case errors.Is(err, user.ErrNotVerified):
			code, message = errNotVerified.Code, errNotVerified.Message
		case errors.Is(err, core.ErrPermissionDenied):
			code, message = errHttpForbidden.Code, errHttpForbidden.Message
		case errors.Is(err, user.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
			code, message = errHttpNotFound.Code, errHttpNotFound.Message
		case errors.Is(err, core.ErrConflict):
			code, message = errHttpConflict.Code, errHttpConflict.Message
		case core.IsStoreUnavailable(err):
			code, message = errUnavailable.Code, errUnavailable.Message
			ctx.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			logger.Warn(fmt.Sprintf("store unavailable: %v", err), getContextPrincipal(ctx))
		default: // fatal store errors and any other error are server errors
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), getContextPrincipal(ctx))
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
