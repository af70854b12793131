package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/coursereview/core/catalog"
)

type catalogApi struct {
	cat *catalog.Catalog
}

func registerCatalogAPI(g *echo.Group, cat *catalog.Catalog) {
	api := catalogApi{cat: cat}

	cg := g.Group("/catalog")
	cg.GET("/types", api.listTypes)
	cg.GET("/types/:type/faculties", api.listFaculties)
	cg.GET("/types/:type/faculties/:faculty/courses", api.listCourses)
	cg.GET("/courses", api.filterCourses)
	cg.GET("/courses/:code", api.lookup)
}

func (api *catalogApi) listTypes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.cat.ListTypes())
}

func (api *catalogApi) listFaculties(ctx echo.Context) error {
	facs, err := api.cat.ListFaculties(ctx.Param("type"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, facs)
}

func (api *catalogApi) listCourses(ctx echo.Context) error {
	courses, err := api.cat.ListCourses(ctx.Param("type"), ctx.Param("faculty"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *catalogApi) filterCourses(ctx echo.Context) error {
	var q catalog.Query
	if err := ctx.Bind(&q); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"results": api.cat.Filter(q),
		"years":   api.cat.Years(q.Type, q.Faculty),
	})
}

func (api *catalogApi) lookup(ctx echo.Context) error {
	course, ok := api.cat.Lookup(ctx.Param("code"))
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, course)
}
