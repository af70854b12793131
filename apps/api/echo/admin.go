package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core/review"
)

var exportContentTypes = map[string]string{
	review.FormatCSV:  "text/csv; charset=utf-8",
	review.FormatJSON: echo.MIMEApplicationJSONCharsetUTF8,
}

type adminApi struct {
	svc *review.Service
}

func registerAdminAPI(g *echo.Group, svc *review.Service, required, admin echo.MiddlewareFunc) {
	api := adminApi{svc: svc}

	ag := g.Group("/admin/reviews", required, admin)
	ag.GET("/pending", api.pending)
	ag.POST("/approve", api.approveMany)
	ag.POST("/reject", api.rejectMany)
	ag.POST("/:id/approve", api.approve)
	ag.POST("/:id/reject", api.reject)
	ag.GET("/summary", api.summary)
	ag.GET("/export.csv", api.export(review.FormatCSV))
	ag.GET("/export.json", api.export(review.FormatJSON))
}

// Handlers

func (api *adminApi) pending(ctx echo.Context) error {
	q, err := bindQuery(ctx)
	if err != nil {
		return err
	}
	page, err := api.svc.Pending(ctx.Request().Context(), getContextPrincipal(ctx), q)
	if err != nil {
		return errors.Wrap(err, "querying pending reviews")
	}
	return renderPage(ctx, page)
}

func (api *adminApi) approveMany(ctx echo.Context) error {
	data, err := bindBody[IDsRequest](ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.ApproveMany(ctx.Request().Context(), getContextPrincipal(ctx), data.IDs)
	if err != nil {
		return errors.Wrap(err, "approving reviews")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) rejectMany(ctx echo.Context) error {
	data, err := bindBody[IDsRequest](ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.RejectMany(ctx.Request().Context(), getContextPrincipal(ctx), data.IDs)
	if err != nil {
		return errors.Wrap(err, "rejecting reviews")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) approve(ctx echo.Context) error {
	res, err := api.svc.Approve(ctx.Request().Context(), getContextPrincipal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving review")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) reject(ctx echo.Context) error {
	res, err := api.svc.Reject(ctx.Request().Context(), getContextPrincipal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting review")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) summary(ctx echo.Context) error {
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

// export buffers the whole export so that a failure still yields a JSON error response.
func (api *adminApi) export(format string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var buf bytes.Buffer
		if err := api.svc.Export(ctx.Request().Context(), getContextPrincipal(ctx), format, &buf); err != nil {
			return errors.Wrap(err, "exporting reviews")
		}
		ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "reviews."+format))
		return ctx.Blob(http.StatusOK, exportContentTypes[format], buf.Bytes())
	}
}
