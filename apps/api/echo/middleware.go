package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/core/user"
)

const authRateBurst = 5

// adminMiddleware lets admins through. The role claimed by the token is checked against the account,
// so a demotion takes effect on the next request.
func adminMiddleware(users *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p := getContextPrincipal(ctx)
			if !p.IsAdmin() {
				return errHttpForbidden
			}
			usr, err := users.GetByEmail(ctx.Request().Context(), p.ID)
			switch {
			case errors.Is(err, user.ErrNotFound):
				return errInvalidToken
			case err != nil:
				return errors.Wrap(err, "loading admin account")
			case usr.Role != core.RoleAdmin:
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// authLimiter limits auth endpoints per client IP. A non-positive limit disables it.
func authLimiter(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     authRateBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	})
}

// metricsMiddleware records every request once the error handler has written its response.
func metricsMiddleware(rec HTTPRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			path := ctx.Path()
			if path == "" {
				path = "unknown"
			}
			rec.HTTPRequest(ctx.Request().Method, path, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
