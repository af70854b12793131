package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core/review"
)

type reviewApi struct {
	svc *review.Service
}

func registerReviewAPI(g *echo.Group, svc *review.Service, optional echo.MiddlewareFunc) {
	api := reviewApi{svc: svc}

	rg := g.Group("/reviews")
	rg.POST("", api.submit, optional)
	rg.GET("", api.browse)
	rg.GET("/summary", api.summary)
	rg.GET("/counts", api.counts)
}

// Handlers

func (api *reviewApi) submit(ctx echo.Context) error {
	data, err := bindBody[review.NewReview](ctx)
	if err != nil {
		return err
	}
	rev, err := api.svc.Submit(ctx.Request().Context(), getContextPrincipal(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting review")
	}
	return ctx.JSON(http.StatusCreated, rev)
}

func (api *reviewApi) browse(ctx echo.Context) error {
	q, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	page, err := api.svc.Approved(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "querying approved reviews")
	}
	return renderPage(ctx, page)
}

func (api *reviewApi) summary(ctx echo.Context) error {
	q, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	sp, err := api.svc.Summary(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "summarizing reviews")
	}
	setStale(ctx, sp.Stale)
	return ctx.JSON(http.StatusOK, sp)
}

func (api *reviewApi) counts(ctx echo.Context) error {
	counts, err := api.svc.Counts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting reviews")
	}
	setStale(ctx, counts.Stale)
	return ctx.JSON(http.StatusOK, counts)
}

// renderPage writes page, grouped by course when the request asks for it.
func renderPage(ctx echo.Context, page review.Page) error {
	setStale(ctx, page.Stale)
	if wantGrouped(ctx) {
		return ctx.JSON(http.StatusOK, GroupedPage{Groups: review.Group(page.Reviews), Total: page.Total, Stale: page.Stale})
	}
	return ctx.JSON(http.StatusOK, page)
}
